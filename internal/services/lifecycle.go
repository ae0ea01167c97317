// Package services – LifecycleService
//
// This file implements the request lifecycle state machine. Every operation
// follows the same sequence, with the authorization gate colocated in the
// operation itself:
//
//  1. role gate on the closed domain.Role enum
//  2. input validation
//  3. transactional load of the lifecycle fields (row-locked on PostgreSQL)
//  4. standing checks (owner client, assigned provider)
//  5. state precondition against the transition graph
//  6. version-guarded update plus one appended transition row
//
// After commit the transition is counted and handed to the Notifier on a
// context detached from the caller's cancellation. Notifier errors are logged
// and swallowed.
//
// Observability: all public methods are OpenTelemetry-instrumented; spans
// carry the operation, actor, and request id.
package services

import (
	"context"
	"errors"
	"strings"
	"unicode/utf8"

	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/gorm"

	"github.com/tbourn/go-marketplace-backend/internal/domain"
	"github.com/tbourn/go-marketplace-backend/internal/observability"
	"github.com/tbourn/go-marketplace-backend/internal/repo"
)

// MaxReasonRunes caps cancellation reasons stored in transition notes.
const MaxReasonRunes = 500

var maxPrice = decimal.NewFromInt(1_000_000)

// LifecycleService moves service requests along the lifecycle graph.
type LifecycleService struct {
	// DB is the GORM handle; each operation opens its own transaction.
	DB *gorm.DB
	// Notifier receives committed transitions. Nil disables notifications.
	Notifier Notifier
}

// NewLifecycleService constructs a LifecycleService.
func NewLifecycleService(db *gorm.DB, n Notifier) *LifecycleService {
	return &LifecycleService{DB: db, Notifier: n}
}

// decision is what an operation wants done to the loaded request.
type decision struct {
	change repo.LifecycleChange
	notes  string
	// silent persists the change without a transition row or notification.
	silent bool
	// noop leaves the request untouched and reports success.
	noop bool
}

// carry starts a change from the request's current lifecycle fields.
func carry(cur *domain.ServiceRequest) repo.LifecycleChange {
	return repo.LifecycleChange{
		Status:       cur.Status,
		ProviderID:   cur.ProviderID,
		PriceOffered: cur.PriceOffered,
		PriceAgreed:  cur.PriceAgreed,
	}
}

func isAssigned(cur *domain.ServiceRequest, userID int64) bool {
	return cur.ProviderID != nil && *cur.ProviderID == userID
}

// Claim attaches a provider to a PENDING request with an optional offered
// price, moving it to OFFERED.
//
// A repeated claim by the same provider while OFFERED only updates the
// offered price: no transition is logged and nobody is notified. A claim on a
// request held by another provider fails with ErrAlreadyClaimed.
func (s *LifecycleService) Claim(ctx context.Context, id domain.Identity, requestID int64, price *decimal.Decimal) (*domain.ServiceRequest, error) {
	ctx, span := startSpan(ctx, "Claim", id, requestID)
	defer span.End()

	switch id.Role {
	case domain.RoleProvider:
	case domain.RoleClient, domain.RoleAdmin:
		return nil, s.reject(ctx, "claim", ErrRoleNotAllowed)
	default:
		return nil, s.reject(ctx, "claim", ErrRoleNotAllowed)
	}
	if err := validatePrice(price); err != nil {
		return nil, s.reject(ctx, "claim", err)
	}

	return s.apply(ctx, "claim", id, requestID, func(cur *domain.ServiceRequest) (decision, error) {
		if cur.ClientID == id.UserID {
			return decision{}, ErrSelfClaim
		}
		if cur.ProviderID != nil && !isAssigned(cur, id.UserID) && !cur.Status.Terminal() {
			return decision{}, ErrAlreadyClaimed
		}

		next := carry(cur)
		if price != nil {
			next.PriceOffered = decimal.NewNullDecimal(*price)
		}
		switch cur.Status {
		case domain.StatusPending:
			next.Status = domain.StatusOffered
			next.ProviderID = id.Actor()
			return decision{change: next}, nil
		case domain.StatusOffered:
			if price == nil || (cur.PriceOffered.Valid && cur.PriceOffered.Decimal.Equal(*price)) {
				return decision{noop: true}, nil
			}
			return decision{change: next, silent: true}, nil
		}
		return decision{}, ErrInvalidTransition
	})
}

// Accept lets the owning client accept an OFFERED request. Without an
// explicit price the current offered price becomes the agreed price.
func (s *LifecycleService) Accept(ctx context.Context, id domain.Identity, requestID int64, price *decimal.Decimal) (*domain.ServiceRequest, error) {
	ctx, span := startSpan(ctx, "Accept", id, requestID)
	defer span.End()

	switch id.Role {
	case domain.RoleClient:
	case domain.RoleProvider, domain.RoleAdmin:
		return nil, s.reject(ctx, "accept", ErrRoleNotAllowed)
	default:
		return nil, s.reject(ctx, "accept", ErrRoleNotAllowed)
	}
	if err := validatePrice(price); err != nil {
		return nil, s.reject(ctx, "accept", err)
	}

	return s.apply(ctx, "accept", id, requestID, func(cur *domain.ServiceRequest) (decision, error) {
		if cur.ClientID != id.UserID {
			return decision{}, ErrNotOwner
		}
		if cur.Status != domain.StatusOffered {
			return decision{}, ErrInvalidTransition
		}
		next := carry(cur)
		next.Status = domain.StatusAccepted
		switch {
		case price != nil:
			next.PriceAgreed = decimal.NewNullDecimal(*price)
		case cur.PriceOffered.Valid:
			next.PriceAgreed = cur.PriceOffered
		default:
			return decision{}, ErrNoPrice
		}
		return decision{change: next}, nil
	})
}

// Start moves an ACCEPTED request to IN_PROGRESS for its assigned provider.
func (s *LifecycleService) Start(ctx context.Context, id domain.Identity, requestID int64) (*domain.ServiceRequest, error) {
	ctx, span := startSpan(ctx, "Start", id, requestID)
	defer span.End()
	return s.providerStep(ctx, "start", id, requestID, domain.StatusAccepted, domain.StatusInProgress)
}

// Complete moves an IN_PROGRESS request to DONE for its assigned provider.
func (s *LifecycleService) Complete(ctx context.Context, id domain.Identity, requestID int64) (*domain.ServiceRequest, error) {
	ctx, span := startSpan(ctx, "Complete", id, requestID)
	defer span.End()
	return s.providerStep(ctx, "complete", id, requestID, domain.StatusInProgress, domain.StatusDone)
}

func (s *LifecycleService) providerStep(ctx context.Context, op string, id domain.Identity, requestID int64, from, to domain.RequestStatus) (*domain.ServiceRequest, error) {
	switch id.Role {
	case domain.RoleProvider:
	case domain.RoleClient, domain.RoleAdmin:
		return nil, s.reject(ctx, op, ErrRoleNotAllowed)
	default:
		return nil, s.reject(ctx, op, ErrRoleNotAllowed)
	}

	return s.apply(ctx, op, id, requestID, func(cur *domain.ServiceRequest) (decision, error) {
		if !isAssigned(cur, id.UserID) {
			return decision{}, ErrNotAssigned
		}
		if cur.Status != from {
			return decision{}, ErrInvalidTransition
		}
		next := carry(cur)
		next.Status = to
		return decision{change: next}, nil
	})
}

// Cancel moves a request to CANCELLED on behalf of one of its parties.
//
// Clients may cancel their own request from PENDING, OFFERED, or ACCEPTED.
// Providers may cancel a request assigned to them from OFFERED or ACCEPTED.
// Admins are routed to AdminCancel with the reason appended to the note.
func (s *LifecycleService) Cancel(ctx context.Context, id domain.Identity, requestID int64, reason string) (*domain.ServiceRequest, error) {
	ctx, span := startSpan(ctx, "Cancel", id, requestID)
	defer span.End()

	reason = clipReason(reason)
	var (
		standing func(cur *domain.ServiceRequest) error
		allowed  []domain.RequestStatus
	)
	switch id.Role {
	case domain.RoleAdmin:
		return s.adminCancel(ctx, "cancel", id, requestID, reason)
	case domain.RoleClient:
		standing = func(cur *domain.ServiceRequest) error {
			if cur.ClientID != id.UserID {
				return ErrNotOwner
			}
			return nil
		}
		allowed = []domain.RequestStatus{domain.StatusPending, domain.StatusOffered, domain.StatusAccepted}
	case domain.RoleProvider:
		standing = func(cur *domain.ServiceRequest) error {
			if !isAssigned(cur, id.UserID) {
				return ErrNotAssigned
			}
			return nil
		}
		allowed = []domain.RequestStatus{domain.StatusOffered, domain.StatusAccepted}
	default:
		return nil, s.reject(ctx, "cancel", ErrRoleNotAllowed)
	}

	return s.apply(ctx, "cancel", id, requestID, func(cur *domain.ServiceRequest) (decision, error) {
		if err := standing(cur); err != nil {
			return decision{}, err
		}
		if !containsStatus(allowed, cur.Status) {
			return decision{}, ErrInvalidTransition
		}
		next := carry(cur)
		next.Status = domain.StatusCancelled
		return decision{change: next, notes: reason}, nil
	})
}

// AdminCancel cancels any non-terminal request regardless of parties. The
// transition note starts with domain.AdminCancelNote so notification
// consumers can tell it apart from a peer cancellation.
func (s *LifecycleService) AdminCancel(ctx context.Context, id domain.Identity, requestID int64, reason string) (*domain.ServiceRequest, error) {
	ctx, span := startSpan(ctx, "AdminCancel", id, requestID)
	defer span.End()

	switch id.Role {
	case domain.RoleAdmin:
	case domain.RoleClient, domain.RoleProvider:
		return nil, s.reject(ctx, "admin_cancel", ErrRoleNotAllowed)
	default:
		return nil, s.reject(ctx, "admin_cancel", ErrRoleNotAllowed)
	}
	return s.adminCancel(ctx, "admin_cancel", id, requestID, clipReason(reason))
}

func (s *LifecycleService) adminCancel(ctx context.Context, op string, id domain.Identity, requestID int64, reason string) (*domain.ServiceRequest, error) {
	notes := domain.AdminCancelNote
	if reason != "" {
		notes += " " + reason
	}
	return s.apply(ctx, op, id, requestID, func(cur *domain.ServiceRequest) (decision, error) {
		if cur.Status.Terminal() {
			return decision{}, ErrInvalidTransition
		}
		next := carry(cur)
		next.Status = domain.StatusCancelled
		return decision{change: next, notes: notes}, nil
	})
}

// apply runs decide against the locked request and persists the outcome.
func (s *LifecycleService) apply(ctx context.Context, op string, id domain.Identity, requestID int64, decide func(cur *domain.ServiceRequest) (decision, error)) (*domain.ServiceRequest, error) {
	var (
		out *domain.ServiceRequest
		tr  *domain.RequestTransition
	)
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		cur, err := repo.LockRequest(ctx, tx, requestID)
		if err != nil {
			if repo.IsNotFound(err) {
				return ErrRequestNotFound
			}
			return err
		}

		d, err := decide(cur)
		if err != nil {
			return err
		}
		if !d.noop {
			if d.change.Status != cur.Status && !domain.CanTransition(cur.Status, d.change.Status) {
				return ErrInvalidTransition
			}
			if _, err := repo.UpdateLifecycle(ctx, tx, cur.ID, cur.Version, d.change); err != nil {
				if errors.Is(err, repo.ErrStale) {
					return ErrConcurrentUpdate
				}
				return err
			}
			if !d.silent {
				tr = &domain.RequestTransition{
					RequestID:    cur.ID,
					ActorID:      id.Actor(),
					FromStatus:   cur.Status,
					ToStatus:     d.change.Status,
					PriceOffered: d.change.PriceOffered,
					PriceAgreed:  d.change.PriceAgreed,
					Notes:        d.notes,
				}
				if err := repo.AppendTransition(ctx, tx, tr); err != nil {
					return err
				}
			}
		}

		out, err = repo.GetRequest(ctx, tx, requestID)
		return err
	})
	if err != nil {
		return nil, s.reject(ctx, op, err)
	}

	if tr != nil {
		observability.RecordTransition(string(tr.FromStatus), string(tr.ToStatus))
		loggerFrom(ctx).Info().
			Str("op", op).
			Int64("request_id", out.ID).
			Int64("actor_id", id.UserID).
			Str("from", string(tr.FromStatus)).
			Str("to", string(tr.ToStatus)).
			Msg("request transition")
		s.notify(ctx, *tr, *out)
	}
	return out, nil
}

// notify hands a committed transition to the Notifier. The call survives the
// caller's cancellation and its failure never reaches the caller.
func (s *LifecycleService) notify(ctx context.Context, t domain.RequestTransition, r domain.ServiceRequest) {
	if s.Notifier == nil {
		return
	}
	if err := s.Notifier.NotifyTransition(context.WithoutCancel(ctx), t, r); err != nil {
		observability.RecordDispatchFailure()
		loggerFrom(ctx).Warn().Err(err).
			Int64("request_id", r.ID).
			Int64("transition_id", t.ID).
			Msg("notification dispatch failed")
	}
}

// reject records a failed operation and returns err unchanged.
func (s *LifecycleService) reject(ctx context.Context, op string, err error) error {
	kind := KindOf(err)
	observability.RecordRejection(op, kind)
	span := trace.SpanFromContext(ctx)
	span.SetAttributes(attribute.String("error.kind", kind))
	if kind == "internal" {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		loggerFrom(ctx).Error().Err(err).Str("op", op).Msg("lifecycle operation failed")
	}
	return err
}

func startSpan(ctx context.Context, name string, id domain.Identity, requestID int64) (context.Context, trace.Span) {
	tr := otel.Tracer("services/LifecycleService")
	return tr.Start(ctx, name,
		trace.WithAttributes(
			attribute.Int64("request.id", requestID),
			attribute.Int64("user.id", id.UserID),
			attribute.String("user.role", string(id.Role)),
		),
	)
}

// validatePrice accepts nil or a value in (0, 1_000_000] with at most two
// decimal places.
func validatePrice(p *decimal.Decimal) error {
	if p == nil {
		return nil
	}
	if !p.IsPositive() || p.GreaterThan(maxPrice) {
		return ErrPriceRange
	}
	if !p.Round(2).Equal(*p) {
		return validationf("price must have at most 2 decimal places")
	}
	return nil
}

func clipReason(s string) string {
	s = strings.TrimSpace(s)
	if utf8.RuneCountInString(s) > MaxReasonRunes {
		s = string([]rune(s)[:MaxReasonRunes])
	}
	return s
}

func containsStatus(set []domain.RequestStatus, s domain.RequestStatus) bool {
	for _, v := range set {
		if v == s {
			return true
		}
	}
	return false
}
