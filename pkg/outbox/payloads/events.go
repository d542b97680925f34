package payloads

import (
	"time"

	"github.com/google/uuid"

	"github.com/ticketloom/ticketloom-backend/pkg/enums"
)

// OrderCreatedEvent signals a pending order built from committed holds.
type OrderCreatedEvent struct {
	OrderID     uuid.UUID  `json:"order_id"`
	EventID     uuid.UUID  `json:"event_id"`
	UserID      uuid.UUID  `json:"user_id"`
	OrderNumber string     `json:"order_number"`
	Total       string     `json:"total"`
	ExpiresAt   *time.Time `json:"expires_at,omitempty"`
}

// OrderConfirmedEvent is emitted once payment completes and tickets issue.
type OrderConfirmedEvent struct {
	OrderID     uuid.UUID   `json:"order_id"`
	EventID     uuid.UUID   `json:"event_id"`
	UserID      uuid.UUID   `json:"user_id"`
	OrderNumber string      `json:"order_number"`
	TicketIDs   []uuid.UUID `json:"ticket_ids"`
	ConfirmedAt time.Time   `json:"confirmed_at"`
}

// OrderCancelledEvent covers buyer cancellations and payment failures.
type OrderCancelledEvent struct {
	OrderID     uuid.UUID `json:"order_id"`
	EventID     uuid.UUID `json:"event_id"`
	UserID      uuid.UUID `json:"user_id"`
	CancelledAt time.Time `json:"cancelled_at"`
	Reason      string    `json:"reason,omitempty"`
}

// OrderRefundedEvent reports a refunded order and whether seats restocked.
type OrderRefundedEvent struct {
	OrderID      uuid.UUID `json:"order_id"`
	EventID      uuid.UUID `json:"event_id"`
	UserID       uuid.UUID `json:"user_id"`
	RefundAmount string    `json:"refund_amount"`
	Restocked    bool      `json:"restocked"`
	RefundedAt   time.Time `json:"refunded_at"`
}

// OrderExpiredEvent reports an abandoned pending order reclaimed by the sweep.
type OrderExpiredEvent struct {
	OrderID   uuid.UUID `json:"order_id"`
	EventID   uuid.UUID `json:"event_id"`
	UserID    uuid.UUID `json:"user_id"`
	ExpiredAt time.Time `json:"expired_at"`
}

// HoldReleasedEvent reports inventory returned by release or expiry.
type HoldReleasedEvent struct {
	HoldID   uuid.UUID `json:"hold_id"`
	TierID   uuid.UUID `json:"tier_id"`
	Quantity int       `json:"quantity"`
	Expired  bool      `json:"expired"`
}

// TicketCheckedInEvent records a gate scan.
type TicketCheckedInEvent struct {
	TicketID    uuid.UUID `json:"ticket_id"`
	EventID     uuid.UUID `json:"event_id"`
	TicketCode  string    `json:"ticket_code"`
	CheckedInAt time.Time `json:"checked_in_at"`
}

// TicketTransferredEvent records a change of ticket ownership.
type TicketTransferredEvent struct {
	TicketID      uuid.UUID `json:"ticket_id"`
	EventID       uuid.UUID `json:"event_id"`
	FromUserID    uuid.UUID `json:"from_user_id"`
	ToUserID      uuid.UUID `json:"to_user_id"`
	TransferredAt time.Time `json:"transferred_at"`
}

// WaitlistNotifiedEvent tells downstream systems to alert a waitlisted buyer.
type WaitlistNotifiedEvent struct {
	EntryID   uuid.UUID              `json:"entry_id"`
	EventID   uuid.UUID              `json:"event_id"`
	TierID    uuid.UUID              `json:"tier_id"`
	UserID    uuid.UUID              `json:"user_id"`
	Quantity  int                    `json:"quantity"`
	ExpiresAt time.Time              `json:"expires_at"`
	Type      enums.NotificationType `json:"type"`
}

// WaitlistExpiredEvent reports a lapsed purchase window.
type WaitlistExpiredEvent struct {
	EntryID   uuid.UUID `json:"entry_id"`
	TierID    uuid.UUID `json:"tier_id"`
	UserID    uuid.UUID `json:"user_id"`
	ExpiredAt time.Time `json:"expired_at"`
}
