package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/ticketloom/ticketloom-backend/pkg/enums"
)

// WaitlistEntry queues a buyer for a sold-out tier. Position is assigned at
// join time and never reshuffled, so notification order stays FIFO.
type WaitlistEntry struct {
	ID                    uuid.UUID            `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	EventID               uuid.UUID            `gorm:"column:event_id;type:uuid;not null;uniqueIndex:idx_waitlist_member"`
	UserID                uuid.UUID            `gorm:"column:user_id;type:uuid;not null;uniqueIndex:idx_waitlist_member"`
	TierID                uuid.UUID            `gorm:"column:tier_id;type:uuid;not null;uniqueIndex:idx_waitlist_member;index"`
	Quantity              int                  `gorm:"column:quantity;not null;default:1"`
	Status                enums.WaitlistStatus `gorm:"column:status;type:waitlist_status;not null;default:'waiting'"`
	Position              int64                `gorm:"column:position;not null"`
	NotifiedAt            *time.Time           `gorm:"column:notified_at"`
	NotificationExpiresAt *time.Time           `gorm:"column:notification_expires_at;index"`
	FulfilledAt           *time.Time           `gorm:"column:fulfilled_at"`
	CreatedAt             time.Time            `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt             time.Time            `gorm:"column:updated_at;autoUpdateTime"`
}
