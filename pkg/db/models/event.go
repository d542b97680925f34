package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/ticketloom/ticketloom-backend/pkg/enums"
)

// Event represents a sellable event owned by an organizer.
type Event struct {
	ID          uuid.UUID         `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	OrganizerID uuid.UUID         `gorm:"column:organizer_id;type:uuid;not null"`
	Title       string            `gorm:"column:title;type:text;not null"`
	Description *string           `gorm:"column:description;type:text"`
	Venue       *string           `gorm:"column:venue;type:text"`
	Status      enums.EventStatus `gorm:"column:status;type:event_status;not null;default:'draft'"`
	StartsAt    time.Time         `gorm:"column:starts_at;not null"`
	EndsAt      *time.Time        `gorm:"column:ends_at"`
	Tiers       []TicketTier      `gorm:"foreignKey:EventID;constraint:OnDelete:CASCADE"`
	CreatedAt   time.Time         `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt   time.Time         `gorm:"column:updated_at;autoUpdateTime"`
}
