package services

import (
	"context"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/tbourn/go-marketplace-backend/internal/domain"
)

//go:generate mockgen -source=notifier.go -destination=mocks/notifier_mock.go -package=mocks

// Notifier receives every committed transition together with the request as
// it stands after the change. The actor is t.ActorID. Implementations own
// recipient selection, suppression preferences, persistence, and delivery;
// the lifecycle engine ignores whether any of that succeeded.
type Notifier interface {
	NotifyTransition(ctx context.Context, t domain.RequestTransition, r domain.ServiceRequest) error
}

// loggerFrom returns the request-scoped logger when one was attached to ctx,
// otherwise the global logger.
func loggerFrom(ctx context.Context) *zerolog.Logger {
	if l := zerolog.Ctx(ctx); l.GetLevel() != zerolog.Disabled {
		return l
	}
	return &log.Logger
}
