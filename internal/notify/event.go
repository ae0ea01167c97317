// Package notify is the notification side of the request lifecycle. The
// Dispatcher turns committed transitions into persisted per-user
// notifications and live events; the Hub fans live events out to connected
// subscribers; the RedisBus lets several server instances share them.
package notify

import (
	"context"
	"time"

	"github.com/tbourn/go-marketplace-backend/internal/domain"
)

// Event is the live form of a notification pushed to subscribers.
type Event struct {
	ID        string                  `json:"id"`
	UserID    int64                   `json:"user_id"`
	Kind      domain.NotificationKind `json:"kind"`
	RequestID int64                   `json:"request_id"`
	Status    domain.RequestStatus    `json:"status"`
	Message   string                  `json:"message"`
	CreatedAt time.Time               `json:"created_at"`
}

// Publisher delivers live events. Implementations must not block on slow
// subscribers.
type Publisher interface {
	Publish(ctx context.Context, e Event) error
}
