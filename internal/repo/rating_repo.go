// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides repository functions for ratings.
//
// Duplicate ratings (same request_id, rater_id) are rejected by the unique
// index and surfaced as ErrDuplicate so the service layer can translate
// them into a conflict.
package repo

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/tbourn/go-marketplace-backend/internal/domain"
)

// CreateRating inserts a rating row. Score validation is expected at higher
// layers; the schema also enforces 1..5.
func CreateRating(ctx context.Context, db *gorm.DB, requestID, raterID, rateeID int64, score int, comment string) (*domain.Rating, error) {
	r := &domain.Rating{
		ID:        uuid.NewString(),
		RequestID: requestID,
		RaterID:   raterID,
		RateeID:   rateeID,
		Score:     score,
		Comment:   comment,
		CreatedAt: time.Now().UTC(),
	}
	if err := db.WithContext(ctx).Omit("Request").Create(r).Error; err != nil {
		if isUniqueViolation(err) {
			return nil, ErrDuplicate
		}
		return nil, err
	}
	return r, nil
}

// ListRatingsFor returns the ratings received by rateeID, newest first.
func ListRatingsFor(ctx context.Context, db *gorm.DB, rateeID int64, limit int) ([]domain.Rating, error) {
	var out []domain.Rating
	q := db.WithContext(ctx).Where("ratee_id = ?", rateeID).Order("created_at DESC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	err := q.Find(&out).Error
	return out, err
}
