// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides the service request store.
//
// All functions are context-aware and accept a *gorm.DB handle, making them
// safe for use within transactions. They follow the "thin repository"
// approach: no business rules, only persistence and query composition.
//
// Error semantics:
//   - A missing request yields ErrNotFound.
//   - A lifecycle update whose expected version no longer matches yields
//     ErrStale; the caller decides how to surface the lost race.
//   - Other DB errors are propagated unchanged.
package repo

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/tbourn/go-marketplace-backend/internal/domain"
)

// lifecycleColumns are the only fields a lifecycle operation needs to decide
// and apply a transition.
var lifecycleColumns = []string{
	"id", "status", "client_id", "provider_id", "price_offered", "price_agreed", "version", "updated_at",
}

// CreateRequest inserts a fully populated request row.
func CreateRequest(ctx context.Context, db *gorm.DB, r *domain.ServiceRequest) error {
	now := time.Now().UTC()
	if r.CreatedAt.IsZero() {
		r.CreatedAt = now
	}
	r.UpdatedAt = r.CreatedAt
	return db.WithContext(ctx).Create(r).Error
}

// GetRequest fetches a full request by id.
func GetRequest(ctx context.Context, db *gorm.DB, id int64) (*domain.ServiceRequest, error) {
	var r domain.ServiceRequest
	if err := db.WithContext(ctx).Where("id = ?", id).First(&r).Error; err != nil {
		return nil, err
	}
	return &r, nil
}

// LockRequest loads the lifecycle fields of a request for a decision inside
// tx. On PostgreSQL the row is locked FOR UPDATE until tx ends; SQLite has no
// row locks and relies on its single writer plus the version check in
// UpdateLifecycle.
func LockRequest(ctx context.Context, tx *gorm.DB, id int64) (*domain.ServiceRequest, error) {
	q := tx.WithContext(ctx).Model(&domain.ServiceRequest{}).Select(lifecycleColumns).Where("id = ?", id)
	if tx.Dialector.Name() == "postgres" {
		q = q.Clauses(clause.Locking{Strength: "UPDATE"})
	}
	var r domain.ServiceRequest
	if err := q.Take(&r).Error; err != nil {
		return nil, err
	}
	return &r, nil
}

// LifecycleChange is the post-transition value of every lifecycle field.
type LifecycleChange struct {
	Status       domain.RequestStatus
	ProviderID   *int64
	PriceOffered decimal.NullDecimal
	PriceAgreed  decimal.NullDecimal
}

// UpdateLifecycle writes change to request id only if its version still
// equals expectedVersion, bumping the version. It returns the update time.
//
// Returns ErrStale when no row matched (another writer got there first).
func UpdateLifecycle(ctx context.Context, tx *gorm.DB, id, expectedVersion int64, change LifecycleChange) (time.Time, error) {
	now := time.Now().UTC()
	res := tx.WithContext(ctx).
		Model(&domain.ServiceRequest{}).
		Where("id = ? AND version = ?", id, expectedVersion).
		Updates(map[string]any{
			"status":        change.Status,
			"provider_id":   change.ProviderID,
			"price_offered": change.PriceOffered,
			"price_agreed":  change.PriceAgreed,
			"version":       gorm.Expr("version + 1"),
			"updated_at":    now,
		})
	if res.Error != nil {
		return time.Time{}, res.Error
	}
	if res.RowsAffected == 0 {
		return time.Time{}, ErrStale
	}
	return now, nil
}

// RequestFilter scopes a request listing. Nil fields do not filter.
type RequestFilter struct {
	ClientID   *int64
	ProviderID *int64
	Status     *domain.RequestStatus
}

func (f RequestFilter) apply(q *gorm.DB) *gorm.DB {
	if f.ClientID != nil {
		q = q.Where("client_id = ?", *f.ClientID)
	}
	if f.ProviderID != nil {
		q = q.Where("provider_id = ?", *f.ProviderID)
	}
	if f.Status != nil {
		q = q.Where("status = ?", *f.Status)
	}
	return q
}

// CountRequests returns the number of requests matching f.
func CountRequests(ctx context.Context, db *gorm.DB, f RequestFilter) (int64, error) {
	var total int64
	err := f.apply(db.WithContext(ctx).Model(&domain.ServiceRequest{})).Count(&total).Error
	return total, err
}

// ListRequestsPage returns a page of requests matching f, newest first.
//
// The caller is responsible for computing offset and limit (e.g., (page-1)*pageSize).
func ListRequestsPage(ctx context.Context, db *gorm.DB, f RequestFilter, offset, limit int) ([]domain.ServiceRequest, error) {
	var out []domain.ServiceRequest
	err := f.apply(db.WithContext(ctx).Model(&domain.ServiceRequest{})).
		Order("created_at DESC, id DESC").
		Offset(offset).
		Limit(limit).
		Find(&out).Error
	return out, err
}

// IsNotFound reports whether err means the record is missing.
func IsNotFound(err error) bool { return errors.Is(err, ErrNotFound) }
