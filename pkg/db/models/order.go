package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/ticketloom/ticketloom-backend/pkg/enums"
)

// Order is the purchase aggregate produced from committed holds.
type Order struct {
	ID            uuid.UUID           `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	UserID        uuid.UUID           `gorm:"column:user_id;type:uuid;not null;index"`
	EventID       uuid.UUID           `gorm:"column:event_id;type:uuid;not null;index"`
	OrderNumber   string              `gorm:"column:order_number;type:text;not null;uniqueIndex"`
	Status        enums.OrderStatus   `gorm:"column:status;type:order_status;not null;default:'pending'"`
	PaymentStatus enums.PaymentStatus `gorm:"column:payment_status;type:payment_status;not null;default:'pending'"`
	CurrencyCode  string              `gorm:"column:currency_code;not null;default:'USD'"`
	Subtotal      decimal.Decimal     `gorm:"column:subtotal;type:numeric(12,2);not null"`
	ServiceFee    decimal.Decimal     `gorm:"column:service_fee;type:numeric(12,2);not null"`
	Total         decimal.Decimal     `gorm:"column:total;type:numeric(12,2);not null"`
	PaymentRef    *string             `gorm:"column:payment_ref;type:text"`
	ExpiresAt     *time.Time          `gorm:"column:expires_at;index"`
	ConfirmedAt   *time.Time          `gorm:"column:confirmed_at"`
	CancelledAt   *time.Time          `gorm:"column:cancelled_at"`
	RefundedAt    *time.Time          `gorm:"column:refunded_at"`
	RefundReason  *string             `gorm:"column:refund_reason;type:text"`
	RefundAmount  *decimal.Decimal    `gorm:"column:refund_amount;type:numeric(12,2)"`
	Items         []OrderItem         `gorm:"foreignKey:OrderID;constraint:OnDelete:CASCADE"`
	Tickets       []Ticket            `gorm:"foreignKey:OrderID;constraint:OnDelete:CASCADE"`
	CreatedAt     time.Time           `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt     time.Time           `gorm:"column:updated_at;autoUpdateTime"`
}
