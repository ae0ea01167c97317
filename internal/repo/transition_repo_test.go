package repo

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tbourn/go-marketplace-backend/internal/domain"
)

func TestTransitions_AppendListAndHasActed(t *testing.T) {
	db := newMigratedDB(t)
	ctx := context.Background()
	now := time.Now().UTC()
	seedRequest(t, db, 1, 10, domain.StatusPending, now)

	provider := int64(20)
	same := now.Add(time.Second)
	// Identical timestamps are ordered by id.
	require.NoError(t, AppendTransition(ctx, db, &domain.RequestTransition{RequestID: 1, ActorID: &provider, FromStatus: domain.StatusPending, ToStatus: domain.StatusOffered, CreatedAt: same}))
	require.NoError(t, AppendTransition(ctx, db, &domain.RequestTransition{RequestID: 1, FromStatus: domain.StatusOffered, ToStatus: domain.StatusCancelled, Notes: domain.AdminCancelNote, CreatedAt: same}))

	rows, err := ListTransitions(ctx, db, 1)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, domain.StatusOffered, rows[0].ToStatus)
	assert.Equal(t, domain.StatusCancelled, rows[1].ToStatus)
	assert.Nil(t, rows[1].ActorID)
	assert.Less(t, rows[0].ID, rows[1].ID)

	acted, err := HasActed(ctx, db, 1, provider)
	require.NoError(t, err)
	assert.True(t, acted)
	acted, err = HasActed(ctx, db, 1, 99)
	require.NoError(t, err)
	assert.False(t, acted)
}

func TestAppendTransition_RequiresExistingRequest(t *testing.T) {
	db := newMigratedDB(t)
	err := AppendTransition(context.Background(), db, &domain.RequestTransition{RequestID: 404, FromStatus: domain.StatusPending, ToStatus: domain.StatusOffered})
	assert.Error(t, err, "foreign key must reject orphan transitions")
}
