package repo

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/tbourn/go-marketplace-backend/internal/domain"
)

func TestGetIdempotencyKey_BlankKey_ReturnsNotFound(t *testing.T) {
	db := newMigratedDB(t)
	rec, err := GetIdempotencyKey(context.Background(), db, "   ")
	if rec != nil || !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected (nil, ErrNotFound) for blank key, got (%v, %v)", rec, err)
	}
}

func TestGetIdempotencyKey_Missing_ReturnsNotFound(t *testing.T) {
	db := newMigratedDB(t)
	rec, err := GetIdempotencyKey(context.Background(), db, "nope")
	if rec != nil || !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected (nil, ErrNotFound), got (%v, %v)", rec, err)
	}
}

func TestCreateIdempotencyKey_SuccessAndDuplicate(t *testing.T) {
	db := newMigratedDB(t)
	ctx := context.Background()
	seedRequest(t, db, 42, 7, domain.StatusPending, time.Now().UTC())

	rec, err := CreateIdempotencyKey(ctx, db, "k1", 7, 42)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if rec.Key != "k1" || rec.UserID != 7 || rec.RequestID != 42 {
		t.Fatalf("unexpected record: %+v", rec)
	}

	got, err := GetIdempotencyKey(ctx, db, "k1")
	if err != nil || got.RequestID != 42 {
		t.Fatalf("get: %+v %v", got, err)
	}

	// Keys are global: another user reusing the key collides too.
	if _, err := CreateIdempotencyKey(ctx, db, "k1", 8, 42); !errors.Is(err, ErrDuplicate) {
		t.Fatalf("expected ErrDuplicate, got %v", err)
	}
}

func TestCreateIdempotencyKey_Error_NoTable(t *testing.T) {
	db := newTestDB(t)
	if _, err := CreateIdempotencyKey(context.Background(), db, "k", 1, 1); err == nil || errors.Is(err, ErrDuplicate) {
		t.Fatalf("expected raw DB error for missing table, got %v", err)
	}
}
