package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"unicode/utf8"

	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/tbourn/go-marketplace-backend/internal/domain"
	"github.com/tbourn/go-marketplace-backend/internal/repo"
)

const maxMessageRunes = 255

// Dispatcher implements services.Notifier. For every recipient of a
// transition it honours the recipient's mute preference, persists a
// Notification, and publishes the live Event.
type Dispatcher struct {
	DB *gorm.DB
	// Publisher receives live events. Nil disables live delivery.
	Publisher Publisher
}

// NewDispatcher constructs a Dispatcher.
func NewDispatcher(db *gorm.DB, pub Publisher) *Dispatcher {
	return &Dispatcher{DB: db, Publisher: pub}
}

// payload is the JSON body stored with each notification.
type payload struct {
	From         domain.RequestStatus `json:"from"`
	To           domain.RequestStatus `json:"to"`
	PriceOffered *decimal.Decimal     `json:"price_offered,omitempty"`
	PriceAgreed  *decimal.Decimal     `json:"price_agreed,omitempty"`
	Notes        string               `json:"notes,omitempty"`
}

// NotifyTransition delivers t to every recipient chosen by the targeting
// rule. A failure for one recipient does not stop the others; all failures
// are joined into the returned error.
func (d *Dispatcher) NotifyTransition(ctx context.Context, t domain.RequestTransition, r domain.ServiceRequest) error {
	kind, ok := domain.KindFor(t.ToStatus, t.Notes)
	if !ok {
		return nil
	}

	tr := otel.Tracer("notify/Dispatcher")
	ctx, span := tr.Start(ctx, "NotifyTransition", trace.WithAttributes(
		attribute.Int64("request.id", r.ID),
		attribute.String("notification.kind", string(kind)),
	))
	defer span.End()

	body, err := json.Marshal(payloadFor(t))
	if err != nil {
		return err
	}
	msg := messageFor(kind, r.Title)

	var errs []error
	for _, userID := range domain.Recipients(t.ActorID, r.ClientID, r.ProviderID) {
		muted, err := repo.IsMuted(ctx, d.DB, userID, kind)
		if err != nil {
			errs = append(errs, fmt.Errorf("preference for user %d: %w", userID, err))
			continue
		}
		if muted {
			continue
		}

		n := &domain.Notification{
			UserID:       userID,
			Kind:         kind,
			RequestID:    r.ID,
			TransitionID: t.ID,
			ActorID:      t.ActorID,
			Message:      msg,
			Payload:      datatypes.JSON(body),
		}
		if err := repo.CreateNotification(ctx, d.DB, n); err != nil {
			errs = append(errs, fmt.Errorf("persist for user %d: %w", userID, err))
			continue
		}
		if d.Publisher == nil {
			continue
		}
		if err := d.Publisher.Publish(ctx, Event{
			ID:        n.ID,
			UserID:    userID,
			Kind:      kind,
			RequestID: r.ID,
			Status:    r.Status,
			Message:   msg,
			CreatedAt: n.CreatedAt,
		}); err != nil {
			errs = append(errs, fmt.Errorf("publish for user %d: %w", userID, err))
		}
	}
	return errors.Join(errs...)
}

func payloadFor(t domain.RequestTransition) payload {
	p := payload{From: t.FromStatus, To: t.ToStatus, Notes: t.Notes}
	if t.PriceOffered.Valid {
		p.PriceOffered = &t.PriceOffered.Decimal
	}
	if t.PriceAgreed.Valid {
		p.PriceAgreed = &t.PriceAgreed.Decimal
	}
	return p
}

func messageFor(kind domain.NotificationKind, title string) string {
	var s string
	switch kind {
	case domain.KindOffered:
		s = fmt.Sprintf("New offer on %q", title)
	case domain.KindAccepted:
		s = fmt.Sprintf("Offer accepted for %q", title)
	case domain.KindStarted:
		s = fmt.Sprintf("Work started on %q", title)
	case domain.KindCompleted:
		s = fmt.Sprintf("%q was completed", title)
	case domain.KindCancelled:
		s = fmt.Sprintf("%q was cancelled", title)
	case domain.KindCancelledByAdmin:
		s = fmt.Sprintf("%q was cancelled by an administrator", title)
	default:
		s = fmt.Sprintf("%q was updated", title)
	}
	if utf8.RuneCountInString(s) > maxMessageRunes {
		s = string([]rune(s)[:maxMessageRunes])
	}
	return s
}
