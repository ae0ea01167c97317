package domain

import (
	"strings"
	"time"

	"gorm.io/datatypes"
)

// NotificationKind classifies a lifecycle notification.
type NotificationKind string

const (
	KindOffered          NotificationKind = "request.offered"
	KindAccepted         NotificationKind = "request.accepted"
	KindStarted          NotificationKind = "request.started"
	KindCompleted        NotificationKind = "request.completed"
	KindCancelled        NotificationKind = "request.cancelled"
	KindCancelledByAdmin NotificationKind = "request.cancelled_by_admin"
)

// AllKinds lists every notification kind a user may mute.
var AllKinds = []NotificationKind{
	KindOffered, KindAccepted, KindStarted, KindCompleted, KindCancelled, KindCancelledByAdmin,
}

// ParseKind converts a wire value into a NotificationKind.
func ParseKind(s string) (NotificationKind, bool) {
	for _, k := range AllKinds {
		if string(k) == s {
			return k, true
		}
	}
	return "", false
}

// Notification is a persisted, per-user record of a lifecycle event.
type Notification struct {
	ID           string           `json:"id"            gorm:"type:char(36);primaryKey"`
	UserID       int64            `json:"user_id"       gorm:"not null;index:idx_notifications_user,priority:1"`
	Kind         NotificationKind `json:"kind"          gorm:"type:varchar(64);not null"`
	RequestID    int64            `json:"request_id"    gorm:"not null;index"`
	TransitionID int64            `json:"transition_id" gorm:"not null"`
	ActorID      *int64           `json:"actor_id"`
	Message      string           `json:"message"       gorm:"type:varchar(255);not null"`
	Payload      datatypes.JSON   `json:"payload"`
	ReadAt       *time.Time       `json:"read_at,omitempty"`
	CreatedAt    time.Time        `json:"created_at"    gorm:"not null;index:idx_notifications_user,priority:2"`
}

// TableName returns the database table name for Notification.
func (Notification) TableName() string { return "notifications" }

// NotificationPreference records whether a user muted one notification kind.
type NotificationPreference struct {
	ID        int64            `gorm:"primaryKey;autoIncrement"`
	UserID    int64            `gorm:"not null;uniqueIndex:ux_pref_user_kind,priority:1"`
	Kind      NotificationKind `gorm:"type:varchar(64);not null;uniqueIndex:ux_pref_user_kind,priority:2"`
	Muted     bool             `gorm:"not null"`
	UpdatedAt time.Time
}

// TableName returns the database table name for NotificationPreference.
func (NotificationPreference) TableName() string { return "notification_preferences" }

// KindFor classifies a transition into its notification kind. Cancellations
// whose notes carry AdminCancelNote are reported as administrative.
func KindFor(to RequestStatus, notes string) (NotificationKind, bool) {
	switch to {
	case StatusOffered:
		return KindOffered, true
	case StatusAccepted:
		return KindAccepted, true
	case StatusInProgress:
		return KindStarted, true
	case StatusDone:
		return KindCompleted, true
	case StatusCancelled:
		if strings.HasPrefix(notes, AdminCancelNote) {
			return KindCancelledByAdmin, true
		}
		return KindCancelled, true
	}
	return "", false
}
