package enums

import "fmt"

// EventStatus tracks the publication lifecycle of an event.
type EventStatus string

const (
	EventStatusDraft     EventStatus = "draft"
	EventStatusPublished EventStatus = "published"
	EventStatusCancelled EventStatus = "cancelled"
	EventStatusCompleted EventStatus = "completed"
)

var validEventStatuses = []EventStatus{
	EventStatusDraft,
	EventStatusPublished,
	EventStatusCancelled,
	EventStatusCompleted,
}

// String implements fmt.Stringer.
func (e EventStatus) String() string {
	return string(e)
}

// IsValid reports whether the value is a known EventStatus.
func (e EventStatus) IsValid() bool {
	for _, candidate := range validEventStatuses {
		if candidate == e {
			return true
		}
	}
	return false
}

// AllowsSales reports whether tickets can be sold for events in this status.
func (e EventStatus) AllowsSales() bool {
	return e == EventStatusPublished
}

// ParseEventStatus converts raw input into an EventStatus.
func ParseEventStatus(value string) (EventStatus, error) {
	for _, candidate := range validEventStatuses {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid event status %q", value)
}
