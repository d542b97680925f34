package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/ticketloom/ticketloom-backend/pkg/enums"
)

// Ticket is a single admission credential issued from a confirmed order.
type Ticket struct {
	ID              uuid.UUID          `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	OrderID         uuid.UUID          `gorm:"column:order_id;type:uuid;not null;index"`
	OrderItemID     uuid.UUID          `gorm:"column:order_item_id;type:uuid;not null;index"`
	EventID         uuid.UUID          `gorm:"column:event_id;type:uuid;not null;index"`
	TierID          uuid.UUID          `gorm:"column:tier_id;type:uuid;not null;index"`
	OwnerID         uuid.UUID          `gorm:"column:owner_id;type:uuid;not null;index"`
	TicketCode      string             `gorm:"column:ticket_code;type:text;not null;uniqueIndex"`
	Status          enums.TicketStatus `gorm:"column:status;type:ticket_status;not null;default:'valid'"`
	AttendeeName    *string            `gorm:"column:attendee_name;type:text"`
	AttendeeEmail   *string            `gorm:"column:attendee_email;type:text"`
	CheckedInAt     *time.Time         `gorm:"column:checked_in_at"`
	TransferredFrom *uuid.UUID         `gorm:"column:transferred_from;type:uuid"`
	TransferredAt   *time.Time         `gorm:"column:transferred_at"`
	CreatedAt       time.Time          `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt       time.Time          `gorm:"column:updated_at;autoUpdateTime"`
}
