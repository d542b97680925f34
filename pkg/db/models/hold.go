package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/ticketloom/ticketloom-backend/pkg/enums"
)

// Hold is a time-boxed claim on tier inventory created during checkout.
// A hold terminates exactly once: the status flips from active to committed
// or released via a compare-and-swap update.
type Hold struct {
	ID             uuid.UUID        `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	TierID         uuid.UUID        `gorm:"column:tier_id;type:uuid;not null;index"`
	UserID         uuid.UUID        `gorm:"column:user_id;type:uuid;not null;index"`
	OrderID        *uuid.UUID       `gorm:"column:order_id;type:uuid;index"`
	Quantity       int              `gorm:"column:quantity;not null"`
	Status         enums.HoldStatus `gorm:"column:status;type:hold_status;not null;default:'active'"`
	IdempotencyKey *string          `gorm:"column:idempotency_key;type:text;uniqueIndex"`
	ExpiresAt      time.Time        `gorm:"column:expires_at;not null;index"`
	Extensions     int              `gorm:"column:extensions;not null;default:0"`
	ReleasedAt     *time.Time       `gorm:"column:released_at"`
	CommittedAt    *time.Time       `gorm:"column:committed_at"`
	CreatedAt      time.Time        `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt      time.Time        `gorm:"column:updated_at;autoUpdateTime"`
}

// Expired reports whether the hold TTL elapsed as of now.
func (h Hold) Expired(now time.Time) bool {
	return !h.ExpiresAt.After(now)
}
