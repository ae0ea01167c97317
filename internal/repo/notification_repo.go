// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides the notification inbox and per-kind
// mute preferences.
package repo

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/tbourn/go-marketplace-backend/internal/domain"
)

// CreateNotification inserts n, assigning a UUID and timestamp when unset.
func CreateNotification(ctx context.Context, db *gorm.DB, n *domain.Notification) error {
	if n.ID == "" {
		n.ID = uuid.NewString()
	}
	if n.CreatedAt.IsZero() {
		n.CreatedAt = time.Now().UTC()
	}
	return db.WithContext(ctx).Create(n).Error
}

func notificationScope(db *gorm.DB, userID int64, unreadOnly bool) *gorm.DB {
	q := db.Model(&domain.Notification{}).Where("user_id = ?", userID)
	if unreadOnly {
		q = q.Where("read_at IS NULL")
	}
	return q
}

// CountNotifications returns the size of a user's inbox.
func CountNotifications(ctx context.Context, db *gorm.DB, userID int64, unreadOnly bool) (int64, error) {
	var total int64
	err := notificationScope(db.WithContext(ctx), userID, unreadOnly).Count(&total).Error
	return total, err
}

// ListNotificationsPage returns a page of a user's inbox, newest first.
func ListNotificationsPage(ctx context.Context, db *gorm.DB, userID int64, unreadOnly bool, offset, limit int) ([]domain.Notification, error) {
	var out []domain.Notification
	err := notificationScope(db.WithContext(ctx), userID, unreadOnly).
		Order("created_at DESC, id DESC").
		Offset(offset).
		Limit(limit).
		Find(&out).Error
	return out, err
}

// MarkNotificationRead stamps read_at on a notification owned by userID.
// Marking an already-read notification keeps the original timestamp.
// Returns ErrNotFound if the notification does not exist for that user.
func MarkNotificationRead(ctx context.Context, db *gorm.DB, id string, userID int64, at time.Time) (*domain.Notification, error) {
	var n domain.Notification
	if err := db.WithContext(ctx).Where("id = ? AND user_id = ?", id, userID).Take(&n).Error; err != nil {
		return nil, err
	}
	if n.ReadAt != nil {
		return &n, nil
	}
	if err := db.WithContext(ctx).Model(&n).Update("read_at", at).Error; err != nil {
		return nil, err
	}
	n.ReadAt = &at
	return &n, nil
}

// IsMuted reports whether userID muted notifications of kind.
func IsMuted(ctx context.Context, db *gorm.DB, userID int64, kind domain.NotificationKind) (bool, error) {
	var n int64
	err := db.WithContext(ctx).
		Model(&domain.NotificationPreference{}).
		Where("user_id = ? AND kind = ? AND muted = ?", userID, kind, true).
		Count(&n).Error
	return n > 0, err
}

// SetPreference upserts the mute flag for (userID, kind).
func SetPreference(ctx context.Context, db *gorm.DB, userID int64, kind domain.NotificationKind, muted bool) error {
	p := &domain.NotificationPreference{UserID: userID, Kind: kind, Muted: muted, UpdatedAt: time.Now().UTC()}
	return db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "user_id"}, {Name: "kind"}},
		DoUpdates: clause.AssignmentColumns([]string{"muted", "updated_at"}),
	}).Create(p).Error
}

// ListPreferences returns every stored preference of userID.
func ListPreferences(ctx context.Context, db *gorm.DB, userID int64) ([]domain.NotificationPreference, error) {
	var out []domain.NotificationPreference
	err := db.WithContext(ctx).Where("user_id = ?", userID).Order("kind").Find(&out).Error
	return out, err
}
