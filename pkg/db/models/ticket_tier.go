package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// TicketTier is the inventory ledger row for one price band of an event.
//
// Quantity, Sold, and Reserved are the ledger counters: Sold+Reserved must
// never exceed Quantity, and every mutation happens under a row lock with a
// guarded UPDATE so concurrent checkouts cannot oversell.
type TicketTier struct {
	ID           uuid.UUID       `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	EventID      uuid.UUID       `gorm:"column:event_id;type:uuid;not null;index"`
	Name         string          `gorm:"column:name;type:text;not null"`
	Description  *string         `gorm:"column:description;type:text"`
	Price        decimal.Decimal `gorm:"column:price;type:numeric(12,2);not null"`
	CurrencyCode string          `gorm:"column:currency_code;not null;default:'USD'"`
	Quantity     int             `gorm:"column:quantity;not null"`
	Sold         int             `gorm:"column:sold;not null;default:0"`
	Reserved     int             `gorm:"column:reserved;not null;default:0"`
	MinPurchase  int             `gorm:"column:min_purchase;not null;default:1"`
	MaxPurchase  int             `gorm:"column:max_purchase;not null;default:10"`
	SalesStartAt *time.Time      `gorm:"column:sales_start_at"`
	SalesEndAt   *time.Time      `gorm:"column:sales_end_at"`
	IsActive     bool            `gorm:"column:is_active;not null;default:true"`
	Transferable bool            `gorm:"column:transferable;not null;default:true"`
	Position     int             `gorm:"column:position;not null;default:0"`
	CreatedAt    time.Time       `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt    time.Time       `gorm:"column:updated_at;autoUpdateTime"`
}

// Available returns the quantity still open to new holds or sales.
func (t TicketTier) Available() int {
	return t.Quantity - t.Sold - t.Reserved
}
