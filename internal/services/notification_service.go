// Package services – NotificationService
//
// This file implements the inbox side of notifications: paginated listing,
// marking entries read, and per-kind mute preferences. Producing
// notifications is the job of the Notifier implementation.
package services

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/tbourn/go-marketplace-backend/internal/domain"
	"github.com/tbourn/go-marketplace-backend/internal/repo"
	"github.com/tbourn/go-marketplace-backend/internal/utils"
)

// NotificationService serves a user's notification inbox.
type NotificationService struct {
	DB *gorm.DB
}

// Preference is the effective mute state of one notification kind.
type Preference struct {
	Kind  domain.NotificationKind `json:"kind"`
	Muted bool                    `json:"muted"`
}

// List returns a page of the caller's inbox, newest first.
func (s *NotificationService) List(ctx context.Context, id domain.Identity, unreadOnly bool, page, limit int) (*Page[domain.Notification], error) {
	page, limit, offset := utils.Paginate(page, limit)
	out := &Page[domain.Notification]{Items: []domain.Notification{}, Page: page, Limit: limit}

	total, err := repo.CountNotifications(ctx, s.DB, id.UserID, unreadOnly)
	if err != nil {
		return nil, err
	}
	out.Total, out.Pages = total, utils.TotalPages(total, limit)
	if total == 0 || offset >= int(total) {
		return out, nil
	}
	items, err := repo.ListNotificationsPage(ctx, s.DB, id.UserID, unreadOnly, offset, limit)
	if err != nil {
		return nil, err
	}
	out.Items = items
	return out, nil
}

// MarkRead marks one of the caller's notifications as read. Repeating the
// call is harmless.
func (s *NotificationService) MarkRead(ctx context.Context, id domain.Identity, notificationID string) (*domain.Notification, error) {
	n, err := repo.MarkNotificationRead(ctx, s.DB, notificationID, id.UserID, time.Now().UTC())
	if repo.IsNotFound(err) {
		return nil, ErrNotificationNotFound
	}
	return n, err
}

// SetPreference mutes or unmutes one notification kind for the caller.
func (s *NotificationService) SetPreference(ctx context.Context, id domain.Identity, kind string, muted bool) error {
	k, ok := domain.ParseKind(kind)
	if !ok {
		return ErrUnknownKind
	}
	return repo.SetPreference(ctx, s.DB, id.UserID, k, muted)
}

// Preferences returns the caller's mute state for every kind; kinds never
// configured are reported unmuted.
func (s *NotificationService) Preferences(ctx context.Context, id domain.Identity) ([]Preference, error) {
	stored, err := repo.ListPreferences(ctx, s.DB, id.UserID)
	if err != nil {
		return nil, err
	}
	muted := make(map[domain.NotificationKind]bool, len(stored))
	for _, p := range stored {
		muted[p.Kind] = p.Muted
	}
	out := make([]Preference, 0, len(domain.AllKinds))
	for _, k := range domain.AllKinds {
		out = append(out, Preference{Kind: k, Muted: muted[k]})
	}
	return out, nil
}
