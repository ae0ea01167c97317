// Package domain defines the persistence models for service requests, their
// transition log, and the collaborator data the lifecycle engine reads. These
// types are mapped with GORM and shared across the repo and services layers.
package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// User is the read-only identity snapshot owned by the auth/user collaborator.
// The core uses it only to annotate timelines with actor names.
type User struct {
	ID        int64     `json:"id"         gorm:"primaryKey;autoIncrement:false"`
	Name      string    `json:"name"       gorm:"type:varchar(120);not null"`
	Role      Role      `json:"role"       gorm:"type:varchar(16);not null"`
	CreatedAt time.Time `json:"created_at"`
}

// TableName returns the database table name for User.
func (User) TableName() string { return "users" }

// ServiceType is a catalog entry a request is classified under.
type ServiceType struct {
	ID     int64  `json:"id"     gorm:"primaryKey;autoIncrement:false"`
	Name   string `json:"name"   gorm:"type:varchar(120);not null"`
	Active bool   `json:"active" gorm:"not null"`
}

// TableName returns the database table name for ServiceType.
func (ServiceType) TableName() string { return "service_types" }

// ProviderProfile holds the provider's home location used by the open feed.
type ProviderProfile struct {
	UserID    int64     `json:"user_id" gorm:"primaryKey;autoIncrement:false"`
	Lat       float64   `json:"lat"     gorm:"not null"`
	Lng       float64   `json:"lng"     gorm:"not null"`
	UpdatedAt time.Time `json:"updated_at"`
}

// TableName returns the database table name for ProviderProfile.
func (ProviderProfile) TableName() string { return "provider_profiles" }

// ProviderServiceType links a provider to a service type they offer.
type ProviderServiceType struct {
	ProviderID    int64 `gorm:"primaryKey;autoIncrement:false"`
	ServiceTypeID int64 `gorm:"primaryKey;autoIncrement:false"`
}

// TableName returns the database table name for ProviderServiceType.
func (ProviderServiceType) TableName() string { return "provider_service_types" }

// ServiceRequest is the mutable current-state record of a client's request.
//
// Fields:
//   - ID: snowflake id assigned at creation.
//   - ClientID: owning client; immutable.
//   - ProviderID: nil until claimed, or set at creation when pinned to a provider.
//   - ServiceTypeID: catalog classification; immutable.
//   - Status: lifecycle state, changed only by the lifecycle engine.
//   - PriceOffered / PriceAgreed: nullable decimals; PriceAgreed is set from ACCEPTED on.
//   - Title, Description, Address, Lat, Lng, ScheduledAt: descriptive content.
//   - Version: optimistic-concurrency counter bumped on every lifecycle write.
type ServiceRequest struct {
	ID            int64               `json:"id"             gorm:"primaryKey;autoIncrement:false"`
	ClientID      int64               `json:"client_id"      gorm:"not null;index:idx_requests_client,priority:1"`
	ProviderID    *int64              `json:"provider_id"    gorm:"index:idx_requests_provider,priority:1"`
	ServiceTypeID int64               `json:"service_type_id" gorm:"not null;index"`
	Status        RequestStatus       `json:"status"         gorm:"type:varchar(16);not null;index;check:chk_request_status,status IN ('PENDING','OFFERED','ACCEPTED','IN_PROGRESS','DONE','CANCELLED')"`
	PriceOffered  decimal.NullDecimal `json:"price_offered"  gorm:"type:numeric(12,2)"`
	PriceAgreed   decimal.NullDecimal `json:"price_agreed"   gorm:"type:numeric(12,2)"`
	Title         string              `json:"title"          gorm:"type:varchar(255);not null"`
	Description   string              `json:"description"    gorm:"type:text"`
	Address       string              `json:"address"        gorm:"type:varchar(255)"`
	Lat           *float64            `json:"lat,omitempty"`
	Lng           *float64            `json:"lng,omitempty"`
	ScheduledAt   *time.Time          `json:"scheduled_at,omitempty"`
	Version       int64               `json:"-"              gorm:"not null;default:0"`
	CreatedAt     time.Time           `json:"created_at"     gorm:"index:idx_requests_client,priority:2;index:idx_requests_provider,priority:2"`
	UpdatedAt     time.Time           `json:"updated_at"`
}

// TableName returns the database table name for ServiceRequest.
func (ServiceRequest) TableName() string { return "service_requests" }

// RequestTransition is one immutable entry of the audit trail. Rows are only
// ever inserted; ordering by (CreatedAt, ID) reconstructs the status history.
//
// ActorID is nil for system actors. Price fields snapshot the request prices
// as they stood after the change.
type RequestTransition struct {
	ID           int64               `json:"id"            gorm:"primaryKey;autoIncrement"`
	RequestID    int64               `json:"request_id"    gorm:"not null;index:idx_transitions_request,priority:1"`
	ActorID      *int64              `json:"actor_id"      gorm:"index"`
	FromStatus   RequestStatus       `json:"from_status"   gorm:"type:varchar(16);not null"`
	ToStatus     RequestStatus       `json:"to_status"     gorm:"type:varchar(16);not null"`
	PriceOffered decimal.NullDecimal `json:"price_offered" gorm:"type:numeric(12,2)"`
	PriceAgreed  decimal.NullDecimal `json:"price_agreed"  gorm:"type:numeric(12,2)"`
	Notes        string              `json:"notes,omitempty" gorm:"type:text"`
	CreatedAt    time.Time           `json:"created_at"    gorm:"not null;index:idx_transitions_request,priority:2"`

	// Request is the owning request; transitions are cascade-deleted with it.
	Request ServiceRequest `json:"-" gorm:"foreignKey:RequestID;references:ID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE"`
}

// TableName returns the database table name for RequestTransition.
func (RequestTransition) TableName() string { return "request_transitions" }

// AdminCancelNote prefixes the notes of a transition produced by an
// administrative cancellation.
const AdminCancelNote = "[admin-cancel]"

// Rating is recorded by the rating collaborator once a request is DONE.
type Rating struct {
	ID        string    `json:"id"         gorm:"type:char(36);primaryKey"`
	RequestID int64     `json:"request_id" gorm:"not null;uniqueIndex:ux_rating_request_rater,priority:1"`
	RaterID   int64     `json:"rater_id"   gorm:"not null;uniqueIndex:ux_rating_request_rater,priority:2"`
	RateeID   int64     `json:"ratee_id"   gorm:"not null;index"`
	Score     int       `json:"score"      gorm:"not null;check:score BETWEEN 1 AND 5"`
	Comment   string    `json:"comment,omitempty" gorm:"type:text"`
	CreatedAt time.Time `json:"created_at"`

	Request ServiceRequest `json:"-" gorm:"foreignKey:RequestID;references:ID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE"`
}

// TableName returns the database table name for Rating.
func (Rating) TableName() string { return "ratings" }
