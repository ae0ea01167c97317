package services

import (
	"context"
	"fmt"
	"testing"

	"github.com/bwmarrin/snowflake"
	sqlite "github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/tbourn/go-marketplace-backend/internal/domain"
	"github.com/tbourn/go-marketplace-backend/internal/repo"
)

// Athens, used as the provider's home location.
const (
	homeLat = 37.9838
	homeLng = 23.7275
)

var (
	client    = domain.Identity{UserID: 1, Role: domain.RoleClient}
	client2   = domain.Identity{UserID: 2, Role: domain.RoleClient}
	provider  = domain.Identity{UserID: 10, Role: domain.RoleProvider}
	provider2 = domain.Identity{UserID: 11, Role: domain.RoleProvider}
	admin     = domain.Identity{UserID: 99, Role: domain.RoleAdmin}
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:svc_%s?mode=memory&cache=shared", uuid.NewString())

	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Silent),
		TranslateError: true,
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	sqlDB, _ := db.DB()
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })
	db.Exec("PRAGMA foreign_keys=ON;")
	if err := repo.AutoMigrate(db); err != nil {
		t.Fatalf("automigrate: %v", err)
	}
	return db
}

// newSeededDB returns a database holding the users, catalog, and provider
// profile the service tests rely on.
//
// Service types: 1 active (offered by both providers), 2 inactive, 3 active
// but offered by nobody. Only provider has a profile.
func newSeededDB(t *testing.T) *gorm.DB {
	t.Helper()
	db := newTestDB(t)
	seed := []any{
		&domain.User{ID: client.UserID, Name: "Cleo", Role: domain.RoleClient},
		&domain.User{ID: client2.UserID, Name: "Chris", Role: domain.RoleClient},
		&domain.User{ID: provider.UserID, Name: "Pat", Role: domain.RoleProvider},
		&domain.User{ID: provider2.UserID, Name: "Paz", Role: domain.RoleProvider},
		&domain.User{ID: admin.UserID, Name: "Ada", Role: domain.RoleAdmin},
		&domain.ServiceType{ID: 1, Name: "Plumbing", Active: true},
		&domain.ServiceType{ID: 2, Name: "Retired", Active: false},
		&domain.ServiceType{ID: 3, Name: "Gardening", Active: true},
		&domain.ProviderServiceType{ProviderID: provider.UserID, ServiceTypeID: 1},
		&domain.ProviderServiceType{ProviderID: provider2.UserID, ServiceTypeID: 1},
		&domain.ProviderProfile{UserID: provider.UserID, Lat: homeLat, Lng: homeLng},
	}
	for _, row := range seed {
		if err := db.Create(row).Error; err != nil {
			t.Fatalf("seed %T: %v", row, err)
		}
	}
	return db
}

func newRequestService(t *testing.T, db *gorm.DB) *RequestService {
	t.Helper()
	node, err := snowflake.NewNode(1)
	if err != nil {
		t.Fatalf("snowflake node: %v", err)
	}
	return NewRequestService(db, node)
}

func plumbing(title string) CreateInput {
	lat, lng := homeLat+0.005, homeLng+0.002
	return CreateInput{ServiceTypeID: 1, Title: title, Lat: &lat, Lng: &lng}
}

// mustCreate creates a request for client with optional tweaks applied to
// the default input.
func mustCreate(t *testing.T, s *RequestService, who domain.Identity, tweak ...func(*CreateInput)) *domain.ServiceRequest {
	t.Helper()
	in := plumbing("Fix the sink")
	for _, fn := range tweak {
		fn(&in)
	}
	r, err := s.Create(context.Background(), who, in)
	if err != nil {
		t.Fatalf("create request: %v", err)
	}
	return r
}

func dec(s string) *decimal.Decimal {
	d := decimal.RequireFromString(s)
	return &d
}

func ptr[T any](v T) *T { return &v }

// counterValue sums every series of the named counter in the default registry.
func counterValue(t *testing.T, name string) float64 {
	t.Helper()
	mfs, err := prometheus.DefaultGatherer.Gather()
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	var sum float64
	for _, mf := range mfs {
		if mf.GetName() != name {
			continue
		}
		for _, m := range mf.GetMetric() {
			sum += m.GetCounter().GetValue()
		}
	}
	return sum
}

func transitions(t *testing.T, db *gorm.DB, requestID int64) []domain.RequestTransition {
	t.Helper()
	rows, err := repo.ListTransitions(context.Background(), db, requestID)
	if err != nil {
		t.Fatalf("list transitions: %v", err)
	}
	return rows
}
