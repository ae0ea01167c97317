package repo

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tbourn/go-marketplace-backend/internal/domain"
)

func TestCreateRating_SuccessAndDuplicate(t *testing.T) {
	db := newMigratedDB(t)
	ctx := context.Background()
	seedRequest(t, db, 1, 10, domain.StatusDone, time.Now().UTC())

	r, err := CreateRating(ctx, db, 1, 10, 20, 5, "great")
	require.NoError(t, err)
	assert.Len(t, r.ID, 36)

	_, err = CreateRating(ctx, db, 1, 10, 20, 4, "again")
	assert.True(t, errors.Is(err, ErrDuplicate))

	// The counterparty may still rate.
	_, err = CreateRating(ctx, db, 1, 20, 10, 3, "")
	require.NoError(t, err)

	got, err := ListRatingsFor(ctx, db, 20, 0)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, 5, got[0].Score)
}

func TestCreateRating_ScoreCheck(t *testing.T) {
	db := newMigratedDB(t)
	seedRequest(t, db, 1, 10, domain.StatusDone, time.Now().UTC())
	_, err := CreateRating(context.Background(), db, 1, 10, 20, 9, "")
	assert.Error(t, err)
	assert.False(t, errors.Is(err, ErrDuplicate))
}
