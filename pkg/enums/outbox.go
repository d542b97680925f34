package enums

import "fmt"

// OutboxAggregateType maps to the aggregate_type enum in Postgres.
type OutboxAggregateType string

const (
	AggregateOrder    OutboxAggregateType = "order"
	AggregateHold     OutboxAggregateType = "hold"
	AggregateTicket   OutboxAggregateType = "ticket"
	AggregateTier     OutboxAggregateType = "ticket_tier"
	AggregateWaitlist OutboxAggregateType = "waitlist_entry"
	AggregateEvent    OutboxAggregateType = "event"
)

var validAggregateTypes = []OutboxAggregateType{
	AggregateOrder,
	AggregateHold,
	AggregateTicket,
	AggregateTier,
	AggregateWaitlist,
	AggregateEvent,
}

// IsValid reports whether the value matches the canonical aggregate_type enum.
func (a OutboxAggregateType) IsValid() bool {
	for _, candidate := range validAggregateTypes {
		if candidate == a {
			return true
		}
	}
	return false
}

// ParseOutboxAggregateType converts raw input into OutboxAggregateType.
func ParseOutboxAggregateType(value string) (OutboxAggregateType, error) {
	for _, candidate := range validAggregateTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid aggregate type %q", value)
}

// OutboxEventType maps to the event_type enum in Postgres.
type OutboxEventType string

const (
	EventOrderCreated      OutboxEventType = "order_created"
	EventOrderConfirmed    OutboxEventType = "order_confirmed"
	EventOrderCancelled    OutboxEventType = "order_cancelled"
	EventOrderRefunded     OutboxEventType = "order_refunded"
	EventOrderExpired      OutboxEventType = "order_expired"
	EventHoldReleased      OutboxEventType = "hold_released"
	EventTicketCheckedIn   OutboxEventType = "ticket_checked_in"
	EventTicketTransferred OutboxEventType = "ticket_transferred"
	EventWaitlistNotified  OutboxEventType = "waitlist_notified"
	EventWaitlistExpired   OutboxEventType = "waitlist_expired"
)

var validOutboxEventTypes = []OutboxEventType{
	EventOrderCreated,
	EventOrderConfirmed,
	EventOrderCancelled,
	EventOrderRefunded,
	EventOrderExpired,
	EventHoldReleased,
	EventTicketCheckedIn,
	EventTicketTransferred,
	EventWaitlistNotified,
	EventWaitlistExpired,
}

// IsValid reports whether the value matches the canonical event_type enum.
func (e OutboxEventType) IsValid() bool {
	for _, candidate := range validOutboxEventTypes {
		if candidate == e {
			return true
		}
	}
	return false
}

// ParseOutboxEventType converts raw input into OutboxEventType.
func ParseOutboxEventType(value string) (OutboxEventType, error) {
	for _, candidate := range validOutboxEventTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid event type %q", value)
}

// OutboxStatus tracks publication progress of an outbox row.
type OutboxStatus string

const (
	OutboxStatusPending   OutboxStatus = "pending"
	OutboxStatusPublished OutboxStatus = "published"
	OutboxStatusFailed    OutboxStatus = "failed"
	OutboxStatusTerminal  OutboxStatus = "terminal"
)

var validOutboxStatuses = []OutboxStatus{
	OutboxStatusPending,
	OutboxStatusPublished,
	OutboxStatusFailed,
	OutboxStatusTerminal,
}

// IsValid reports whether the value is a known OutboxStatus.
func (s OutboxStatus) IsValid() bool {
	for _, candidate := range validOutboxStatuses {
		if candidate == s {
			return true
		}
	}
	return false
}
