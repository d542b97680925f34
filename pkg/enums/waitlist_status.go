package enums

import "fmt"

// WaitlistStatus tracks an entry's progress through the waitlist.
type WaitlistStatus string

const (
	WaitlistStatusWaiting   WaitlistStatus = "waiting"
	WaitlistStatusNotified  WaitlistStatus = "notified"
	WaitlistStatusExpired   WaitlistStatus = "expired"
	WaitlistStatusFulfilled WaitlistStatus = "fulfilled"
)

var validWaitlistStatuses = []WaitlistStatus{
	WaitlistStatusWaiting,
	WaitlistStatusNotified,
	WaitlistStatusExpired,
	WaitlistStatusFulfilled,
}

// String implements fmt.Stringer.
func (w WaitlistStatus) String() string {
	return string(w)
}

// IsValid reports whether the value is a known WaitlistStatus.
func (w WaitlistStatus) IsValid() bool {
	for _, candidate := range validWaitlistStatuses {
		if candidate == w {
			return true
		}
	}
	return false
}

// ParseWaitlistStatus converts raw input into a WaitlistStatus.
func ParseWaitlistStatus(value string) (WaitlistStatus, error) {
	for _, candidate := range validWaitlistStatuses {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid waitlist status %q", value)
}
