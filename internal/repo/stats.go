// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides small aggregate queries used for
// conditional responses (ETag generation) in the HTTP layer.
package repo

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/tbourn/go-marketplace-backend/internal/domain"
)

// RequestsStats returns aggregate metadata for the requests matching f: the
// total number of rows and the maximum UpdatedAt timestamp among those rows.
//
// When nothing matches, the returned count is 0 and maxUpdatedAt is nil.
func RequestsStats(ctx context.Context, db *gorm.DB, f RequestFilter) (count int64, maxUpdatedAt *time.Time, err error) {
	if count, err = CountRequests(ctx, db, f); err != nil {
		return 0, nil, err
	}
	if count == 0 {
		return 0, nil, nil
	}

	// Get latest updated_at (avoid MAX() -> TEXT in SQLite)
	var row struct {
		UpdatedAt time.Time
	}
	q := f.apply(db.WithContext(ctx).Model(&domain.ServiceRequest{}))
	if err = q.Select("updated_at").Order("updated_at DESC").Limit(1).Scan(&row).Error; err != nil {
		return 0, nil, err
	}
	return count, &row.UpdatedAt, nil
}

// TimelineStats returns the number of transitions of a request and the
// timestamp of the newest one.
func TimelineStats(ctx context.Context, db *gorm.DB, requestID int64) (count int64, maxCreatedAt *time.Time, err error) {
	scope := func() *gorm.DB {
		return db.WithContext(ctx).Model(&domain.RequestTransition{}).Where("request_id = ?", requestID)
	}
	if err = scope().Count(&count).Error; err != nil {
		return 0, nil, err
	}
	if count == 0 {
		return 0, nil, nil
	}
	var row struct {
		CreatedAt time.Time
	}
	if err = scope().Select("created_at").Order("created_at DESC, id DESC").Limit(1).Scan(&row).Error; err != nil {
		return 0, nil, err
	}
	return count, &row.CreatedAt, nil
}
