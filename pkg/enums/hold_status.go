package enums

// HoldStatus tracks the lifecycle of an inventory hold. A hold leaves the
// active state exactly once: committed converts reserved stock to sold,
// released returns it to available.
type HoldStatus string

const (
	HoldStatusActive    HoldStatus = "active"
	HoldStatusCommitted HoldStatus = "committed"
	HoldStatusReleased  HoldStatus = "released"
)

var validHoldStatuses = []HoldStatus{
	HoldStatusActive,
	HoldStatusCommitted,
	HoldStatusReleased,
}

// String implements fmt.Stringer.
func (h HoldStatus) String() string {
	return string(h)
}

// IsValid reports whether the value is a known HoldStatus.
func (h HoldStatus) IsValid() bool {
	for _, candidate := range validHoldStatuses {
		if candidate == h {
			return true
		}
	}
	return false
}

// IsTerminal reports whether the hold can no longer change state.
func (h HoldStatus) IsTerminal() bool {
	return h == HoldStatusCommitted || h == HoldStatusReleased
}
