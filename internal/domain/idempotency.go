package domain

import "time"

// IdempotencyKey maps a client-supplied creation key to the request it
// produced. Keys are globally unique and never expire, so a retried create
// always resolves to the same request.
type IdempotencyKey struct {
	Key       string    `gorm:"type:varchar(200);primaryKey"`
	UserID    int64     `gorm:"not null;index"`
	RequestID int64     `gorm:"not null"`
	CreatedAt time.Time `gorm:"not null;autoCreateTime"`

	Request ServiceRequest `gorm:"foreignKey:RequestID;references:ID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE"`
}

// TableName implements the GORM tabler interface.
func (IdempotencyKey) TableName() string { return "idempotency_keys" }
