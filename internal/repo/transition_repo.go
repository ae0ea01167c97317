// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides the append-only transition log store.
package repo

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/tbourn/go-marketplace-backend/internal/domain"
)

// AppendTransition inserts one transition row. Rows are never updated or
// deleted by the application.
func AppendTransition(ctx context.Context, db *gorm.DB, t *domain.RequestTransition) error {
	if t.CreatedAt.IsZero() {
		t.CreatedAt = time.Now().UTC()
	}
	return db.WithContext(ctx).Omit("Request").Create(t).Error
}

// ListTransitions returns the transitions of a request ordered deterministically
// (CreatedAt ASC, ID ASC).
func ListTransitions(ctx context.Context, db *gorm.DB, requestID int64) ([]domain.RequestTransition, error) {
	var out []domain.RequestTransition
	err := db.WithContext(ctx).
		Where("request_id = ?", requestID).
		Order("created_at ASC, id ASC").
		Find(&out).Error
	return out, err
}

// HasActed reports whether actorID authored any transition of requestID.
func HasActed(ctx context.Context, db *gorm.DB, requestID, actorID int64) (bool, error) {
	var n int64
	err := db.WithContext(ctx).
		Model(&domain.RequestTransition{}).
		Where("request_id = ? AND actor_id = ?", requestID, actorID).
		Count(&n).Error
	return n > 0, err
}
