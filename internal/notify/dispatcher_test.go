package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"

	sqlite "github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/tbourn/go-marketplace-backend/internal/domain"
	"github.com/tbourn/go-marketplace-backend/internal/repo"
	"github.com/tbourn/go-marketplace-backend/internal/services"
)

var _ services.Notifier = (*Dispatcher)(nil)

const (
	clientID   int64 = 1
	providerID int64 = 10
	adminID    int64 = 99
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:notify_%s?mode=memory&cache=shared", uuid.NewString())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Silent),
		TranslateError: true,
	})
	require.NoError(t, err)
	sqlDB, _ := db.DB()
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })
	require.NoError(t, repo.AutoMigrate(db))
	return db
}

type recorder struct {
	mu     sync.Mutex
	events []Event
	err    error
}

func (r *recorder) Publish(_ context.Context, e Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
	return r.err
}

func offered() (domain.RequestTransition, domain.ServiceRequest) {
	pid := providerID
	price := decimal.NewNullDecimal(decimal.RequireFromString("45.5"))
	t := domain.RequestTransition{
		ID: 3, RequestID: 42, ActorID: &pid,
		FromStatus: domain.StatusPending, ToStatus: domain.StatusOffered,
		PriceOffered: price,
	}
	r := domain.ServiceRequest{
		ID: 42, ClientID: clientID, ProviderID: &pid, Status: domain.StatusOffered,
		Title: "Fix the sink", PriceOffered: price,
	}
	return t, r
}

func inbox(t *testing.T, db *gorm.DB, userID int64) []domain.Notification {
	t.Helper()
	rows, err := repo.ListNotificationsPage(context.Background(), db, userID, false, 0, 100)
	require.NoError(t, err)
	return rows
}

func TestDispatcher_ProviderActionNotifiesClient(t *testing.T) {
	db := newTestDB(t)
	pub := &recorder{}
	d := NewDispatcher(db, pub)

	tr, r := offered()
	require.NoError(t, d.NotifyTransition(context.Background(), tr, r))

	rows := inbox(t, db, clientID)
	require.Len(t, rows, 1)
	n := rows[0]
	assert.Equal(t, domain.KindOffered, n.Kind)
	assert.Equal(t, int64(42), n.RequestID)
	assert.Equal(t, int64(3), n.TransitionID)
	assert.Equal(t, `New offer on "Fix the sink"`, n.Message)

	var body map[string]any
	require.NoError(t, json.Unmarshal(n.Payload, &body))
	assert.Equal(t, "PENDING", body["from"])
	assert.Equal(t, "OFFERED", body["to"])
	assert.Equal(t, "45.5", body["price_offered"])
	assert.NotContains(t, body, "price_agreed")

	assert.Empty(t, inbox(t, db, providerID), "the actor is not notified")

	require.Len(t, pub.events, 1)
	assert.Equal(t, clientID, pub.events[0].UserID)
	assert.Equal(t, n.ID, pub.events[0].ID)
	assert.Equal(t, domain.StatusOffered, pub.events[0].Status)
}

func TestDispatcher_AdminCancelNotifiesBothParties(t *testing.T) {
	db := newTestDB(t)
	pub := &recorder{}
	d := NewDispatcher(db, pub)

	tr, r := offered()
	aid := adminID
	tr.ActorID = &aid
	tr.FromStatus, tr.ToStatus = domain.StatusOffered, domain.StatusCancelled
	tr.Notes = domain.AdminCancelNote + " duplicate listing"
	r.Status = domain.StatusCancelled

	require.NoError(t, d.NotifyTransition(context.Background(), tr, r))

	for _, uid := range []int64{clientID, providerID} {
		rows := inbox(t, db, uid)
		require.Len(t, rows, 1, "user %d", uid)
		assert.Equal(t, domain.KindCancelledByAdmin, rows[0].Kind)
	}
	assert.Len(t, pub.events, 2)
}

func TestDispatcher_ClientActionWithoutProviderNotifiesNobody(t *testing.T) {
	db := newTestDB(t)
	d := NewDispatcher(db, nil)

	cid := clientID
	tr := domain.RequestTransition{ID: 1, RequestID: 5, ActorID: &cid, FromStatus: domain.StatusPending, ToStatus: domain.StatusCancelled}
	r := domain.ServiceRequest{ID: 5, ClientID: clientID, Status: domain.StatusCancelled, Title: "x"}

	require.NoError(t, d.NotifyTransition(context.Background(), tr, r))
	assert.Empty(t, inbox(t, db, clientID))
}

func TestDispatcher_MutedKindIsSkipped(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	pub := &recorder{}
	d := NewDispatcher(db, pub)
	require.NoError(t, repo.SetPreference(ctx, db, clientID, domain.KindOffered, true))

	tr, r := offered()
	require.NoError(t, d.NotifyTransition(ctx, tr, r))
	assert.Empty(t, inbox(t, db, clientID))
	assert.Empty(t, pub.events)

	// Muting one kind leaves the others alone.
	tr.FromStatus, tr.ToStatus = domain.StatusAccepted, domain.StatusInProgress
	r.Status = domain.StatusInProgress
	require.NoError(t, d.NotifyTransition(ctx, tr, r))
	rows := inbox(t, db, clientID)
	require.Len(t, rows, 1)
	assert.Equal(t, domain.KindStarted, rows[0].Kind)
}

func TestDispatcher_PublishErrorIsReportedAfterPersisting(t *testing.T) {
	db := newTestDB(t)
	pub := &recorder{err: errors.New("redis down")}
	d := NewDispatcher(db, pub)

	tr, r := offered()
	err := d.NotifyTransition(context.Background(), tr, r)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "redis down")
	assert.Len(t, inbox(t, db, clientID), 1)
}

func TestDispatcher_NonNotifyingTransition(t *testing.T) {
	db := newTestDB(t)
	d := NewDispatcher(db, nil)
	tr, r := offered()
	tr.ToStatus = domain.StatusPending
	require.NoError(t, d.NotifyTransition(context.Background(), tr, r))
	assert.Empty(t, inbox(t, db, clientID))
}

func TestMessageFor_Clips(t *testing.T) {
	long := make([]byte, 400)
	for i := range long {
		long[i] = 'a'
	}
	msg := messageFor(domain.KindCompleted, string(long))
	assert.Len(t, []rune(msg), maxMessageRunes)
}
