// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides the open-feed candidate query.
package repo

import (
	"context"

	"gorm.io/gorm"

	"github.com/tbourn/go-marketplace-backend/internal/domain"
	"github.com/tbourn/go-marketplace-backend/internal/geo"
)

// FeedFilter selects open requests a provider may claim.
type FeedFilter struct {
	ProviderID     int64
	ServiceTypeIDs []int64
	Box            geo.Box
}

// ListFeedCandidates returns PENDING requests inside the bounding box that
// provider may see: not their own, not pinned to someone else, of a service
// type they offer, and never acted on by them. Exact distance filtering is
// left to the caller.
func ListFeedCandidates(ctx context.Context, db *gorm.DB, f FeedFilter) ([]domain.ServiceRequest, error) {
	var out []domain.ServiceRequest
	if len(f.ServiceTypeIDs) == 0 {
		return out, nil
	}
	q := db.WithContext(ctx).
		Model(&domain.ServiceRequest{}).
		Where("status = ?", domain.StatusPending).
		Where("client_id <> ?", f.ProviderID).
		Where("(provider_id IS NULL OR provider_id = ?)", f.ProviderID).
		Where("service_type_id IN ?", f.ServiceTypeIDs).
		Where("lat IS NOT NULL AND lng IS NOT NULL").
		Where("lat BETWEEN ? AND ?", f.Box.MinLat, f.Box.MaxLat).
		Where("NOT EXISTS (SELECT 1 FROM request_transitions t WHERE t.request_id = service_requests.id AND t.actor_id = ?)", f.ProviderID)
	if !f.Box.WrapsLng() {
		q = q.Where("lng BETWEEN ? AND ?", f.Box.MinLng, f.Box.MaxLng)
	}
	err := q.Order("created_at DESC, id DESC").Find(&out).Error
	return out, err
}
