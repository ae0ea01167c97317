// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides repository helpers for the creation
// idempotency keys used to make request creation safe to retry.
package repo

import (
	"context"
	"errors"
	"strings"
	"time"

	"gorm.io/gorm"

	"github.com/tbourn/go-marketplace-backend/internal/domain"
)

// GetIdempotencyKey returns the mapping recorded for key or ErrNotFound.
func GetIdempotencyKey(ctx context.Context, db *gorm.DB, key string) (*domain.IdempotencyKey, error) {
	if strings.TrimSpace(key) == "" {
		return nil, ErrNotFound
	}
	var rec domain.IdempotencyKey
	err := db.WithContext(ctx).Where("key = ?", key).Take(&rec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

// CreateIdempotencyKey records key -> requestID and returns ErrDuplicate when
// the key is already taken.
func CreateIdempotencyKey(ctx context.Context, db *gorm.DB, key string, userID, requestID int64) (*domain.IdempotencyKey, error) {
	rec := &domain.IdempotencyKey{
		Key:       key,
		UserID:    userID,
		RequestID: requestID,
		CreatedAt: time.Now().UTC(),
	}
	if err := db.WithContext(ctx).Omit("Request").Create(rec).Error; err != nil {
		if isUniqueViolation(err) {
			return nil, ErrDuplicate
		}
		return nil, err
	}
	return rec, nil
}
