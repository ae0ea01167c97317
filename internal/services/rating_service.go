// Package services – RatingService
//
// This file implements RatingService, which lets the two parties of a
// completed request rate each other. It enforces the business rules
// (request existence, DONE state, party membership, score range, one rating
// per rater) and persists the rating atomically. Predictable failures are
// returned as service errors (ErrRequestNotFound, ErrRatingNotAllowed,
// ErrNotParty, ErrInvalidScore, ErrDuplicateRating) so handlers can map them
// to HTTP results consistently.
package services

import (
	"context"
	"errors"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/gorm"

	"github.com/tbourn/go-marketplace-backend/internal/domain"
	"github.com/tbourn/go-marketplace-backend/internal/repo"
)

// MaxCommentRunes caps the free-text part of a rating.
const MaxCommentRunes = 1000

// RatingService implements the rating use-cases.
type RatingService struct {
	// DB is the database handle used for all rating operations.
	DB *gorm.DB
}

// Rate records score for requestID on behalf of the caller. The ratee is the
// counterparty: a client rates the provider and a provider rates the client.
//
// Semantics and validation:
//   - score must be within 1..5; otherwise ErrInvalidScore.
//   - requestID must exist; otherwise ErrRequestNotFound.
//   - The caller must be the request's client or assigned provider;
//     otherwise ErrNotParty.
//   - The request must be DONE; otherwise ErrRatingNotAllowed.
//   - One rating per (request, rater); a second yields ErrDuplicateRating.
func (s *RatingService) Rate(ctx context.Context, id domain.Identity, requestID int64, score int, comment string) (*domain.Rating, error) {
	tr := otel.Tracer("services/RatingService")
	ctx, span := tr.Start(ctx, "Rate", trace.WithAttributes(
		attribute.Int64("request.id", requestID),
		attribute.Int64("user.id", id.UserID),
	))
	defer span.End()

	switch id.Role {
	case domain.RoleClient, domain.RoleProvider:
	case domain.RoleAdmin:
		return nil, ErrRoleNotAllowed
	default:
		return nil, ErrRoleNotAllowed
	}
	if score < 1 || score > 5 {
		return nil, ErrInvalidScore
	}
	comment = clipRunes(strings.TrimSpace(comment), MaxCommentRunes)

	var out *domain.Rating
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		r, err := repo.GetRequest(ctx, tx, requestID)
		if err != nil {
			if repo.IsNotFound(err) {
				return ErrRequestNotFound
			}
			return err
		}

		var ratee int64
		switch {
		case r.ClientID == id.UserID && id.Role == domain.RoleClient:
			if r.ProviderID == nil {
				return ErrRatingNotAllowed
			}
			ratee = *r.ProviderID
		case isAssigned(r, id.UserID) && id.Role == domain.RoleProvider:
			ratee = r.ClientID
		default:
			return ErrNotParty
		}
		if r.Status != domain.StatusDone {
			return ErrRatingNotAllowed
		}

		out, err = repo.CreateRating(ctx, tx, r.ID, id.UserID, ratee, score, comment)
		if errors.Is(err, repo.ErrDuplicate) {
			return ErrDuplicateRating
		}
		return err
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Received returns the most recent ratings userID received.
func (s *RatingService) Received(ctx context.Context, userID int64, limit int) ([]domain.Rating, error) {
	return repo.ListRatingsFor(ctx, s.DB, userID, limit)
}
