// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file reads the collaborator-owned tables: users,
// service types, and provider profiles.
package repo

import (
	"context"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/tbourn/go-marketplace-backend/internal/domain"
)

// GetServiceType fetches a service type by id.
func GetServiceType(ctx context.Context, db *gorm.DB, id int64) (*domain.ServiceType, error) {
	var st domain.ServiceType
	if err := db.WithContext(ctx).Where("id = ?", id).Take(&st).Error; err != nil {
		return nil, err
	}
	return &st, nil
}

// GetProviderProfile fetches the provider profile for userID.
func GetProviderProfile(ctx context.Context, db *gorm.DB, userID int64) (*domain.ProviderProfile, error) {
	var p domain.ProviderProfile
	if err := db.WithContext(ctx).Where("user_id = ?", userID).Take(&p).Error; err != nil {
		return nil, err
	}
	return &p, nil
}

// UpsertProviderProfile creates or moves a provider's home location.
func UpsertProviderProfile(ctx context.Context, db *gorm.DB, p *domain.ProviderProfile) error {
	return db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "user_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"lat", "lng", "updated_at"}),
	}).Create(p).Error
}

// ProviderServiceTypeIDs lists the service types a provider offers.
func ProviderServiceTypeIDs(ctx context.Context, db *gorm.DB, providerID int64) ([]int64, error) {
	var ids []int64
	err := db.WithContext(ctx).
		Model(&domain.ProviderServiceType{}).
		Where("provider_id = ?", providerID).
		Order("service_type_id").
		Pluck("service_type_id", &ids).Error
	return ids, err
}

// GetUsers returns the users with the given ids keyed by id. Missing ids are
// simply absent from the map.
func GetUsers(ctx context.Context, db *gorm.DB, ids []int64) (map[int64]domain.User, error) {
	out := make(map[int64]domain.User, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	var rows []domain.User
	if err := db.WithContext(ctx).Where("id IN ?", ids).Find(&rows).Error; err != nil {
		return nil, err
	}
	for _, u := range rows {
		out[u.ID] = u
	}
	return out, nil
}
