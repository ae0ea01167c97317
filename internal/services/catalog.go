package services

import (
	"context"

	"gorm.io/gorm"

	"github.com/tbourn/go-marketplace-backend/internal/domain"
	"github.com/tbourn/go-marketplace-backend/internal/repo"
)

// Catalog resolves the collaborator-owned references a request points at.
type Catalog interface {
	// ServiceType returns the service type or ErrServiceTypeNotFound.
	ServiceType(ctx context.Context, id int64) (*domain.ServiceType, error)
	// User returns the user snapshot or ErrUserNotFound.
	User(ctx context.Context, id int64) (*domain.User, error)
}

// DBCatalog reads the catalog tables from the service database.
type DBCatalog struct {
	DB *gorm.DB
}

// ServiceType implements Catalog.
func (c DBCatalog) ServiceType(ctx context.Context, id int64) (*domain.ServiceType, error) {
	st, err := repo.GetServiceType(ctx, c.DB, id)
	if repo.IsNotFound(err) {
		return nil, ErrServiceTypeNotFound
	}
	return st, err
}

// User implements Catalog.
func (c DBCatalog) User(ctx context.Context, id int64) (*domain.User, error) {
	users, err := repo.GetUsers(ctx, c.DB, []int64{id})
	if err != nil {
		return nil, err
	}
	u, ok := users[id]
	if !ok {
		return nil, ErrUserNotFound
	}
	return &u, nil
}
