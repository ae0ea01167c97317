package repo

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tbourn/go-marketplace-backend/internal/domain"
)

func TestCreateAndGetRequest(t *testing.T) {
	db := newMigratedDB(t)
	ctx := context.Background()

	lat, lng := 37.98, 23.72
	r := &domain.ServiceRequest{
		ID: 100, ClientID: 1, ServiceTypeID: 3, Status: domain.StatusPending, Title: "Paint wall",
		PriceOffered: decimal.NewNullDecimal(decimal.RequireFromString("120.00")),
		Lat:          &lat, Lng: &lng,
	}
	require.NoError(t, CreateRequest(ctx, db, r))
	assert.False(t, r.CreatedAt.IsZero())
	assert.Equal(t, r.CreatedAt, r.UpdatedAt)

	got, err := GetRequest(ctx, db, 100)
	require.NoError(t, err)
	assert.Equal(t, "Paint wall", got.Title)
	assert.True(t, got.PriceOffered.Decimal.Equal(decimal.NewFromInt(120)))
	assert.InDelta(t, lat, *got.Lat, 1e-9)

	_, err = GetRequest(ctx, db, 999)
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestLockRequest_LoadsLifecycleFields(t *testing.T) {
	db := newMigratedDB(t)
	ctx := context.Background()
	seedRequest(t, db, 1, 5, domain.StatusPending, time.Now().UTC())

	got, err := LockRequest(ctx, db, 1)
	require.NoError(t, err)
	assert.Equal(t, int64(5), got.ClientID)
	assert.Equal(t, domain.StatusPending, got.Status)
	assert.Equal(t, int64(0), got.Version)
	assert.Empty(t, got.Title, "non-lifecycle columns are not loaded")

	_, err = LockRequest(ctx, db, 2)
	assert.True(t, IsNotFound(err))
}

func TestUpdateLifecycle_CompareAndSwap(t *testing.T) {
	db := newMigratedDB(t)
	ctx := context.Background()
	seedRequest(t, db, 1, 5, domain.StatusPending, time.Now().UTC().Add(-time.Hour))

	provider := int64(9)
	change := LifecycleChange{
		Status:       domain.StatusOffered,
		ProviderID:   &provider,
		PriceOffered: decimal.NewNullDecimal(decimal.RequireFromString("55.50")),
	}
	at, err := UpdateLifecycle(ctx, db, 1, 0, change)
	require.NoError(t, err)

	got, err := GetRequest(ctx, db, 1)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusOffered, got.Status)
	require.NotNil(t, got.ProviderID)
	assert.Equal(t, provider, *got.ProviderID)
	assert.Equal(t, int64(1), got.Version)
	assert.False(t, got.PriceAgreed.Valid)
	assert.WithinDuration(t, at, got.UpdatedAt, time.Millisecond)

	// A writer still holding version 0 loses.
	_, err = UpdateLifecycle(ctx, db, 1, 0, LifecycleChange{Status: domain.StatusCancelled})
	assert.ErrorIs(t, err, ErrStale)

	got, _ = GetRequest(ctx, db, 1)
	assert.Equal(t, domain.StatusOffered, got.Status)
}

func TestListRequestsPage_FiltersAndOrder(t *testing.T) {
	db := newMigratedDB(t)
	ctx := context.Background()
	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	seedRequest(t, db, 1, 1, domain.StatusPending, base)
	seedRequest(t, db, 2, 1, domain.StatusPending, base.Add(time.Minute))
	seedRequest(t, db, 3, 2, domain.StatusPending, base.Add(2*time.Minute))
	provider := int64(50)
	require.NoError(t, db.Model(&domain.ServiceRequest{}).Where("id = ?", 3).Update("provider_id", provider).Error)

	client := int64(1)
	items, err := ListRequestsPage(ctx, db, RequestFilter{ClientID: &client}, 0, 10)
	require.NoError(t, err)
	require.Len(t, items, 2)
	assert.Equal(t, int64(2), items[0].ID, "newest first")

	total, err := CountRequests(ctx, db, RequestFilter{ProviderID: &provider})
	require.NoError(t, err)
	assert.Equal(t, int64(1), total)

	all, err := ListRequestsPage(ctx, db, RequestFilter{}, 1, 1)
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, int64(2), all[0].ID)
}
