package enums

import "fmt"

// GroupBuyStatus is the lifecycle state of a purchasing round. The only
// transition is active -> closed; closed is terminal.
type GroupBuyStatus string

const (
	GroupBuyStatusActive GroupBuyStatus = "active"
	GroupBuyStatusClosed GroupBuyStatus = "closed"
)

var validGroupBuyStatuses = []GroupBuyStatus{
	GroupBuyStatusActive,
	GroupBuyStatusClosed,
}

// String implements fmt.Stringer.
func (s GroupBuyStatus) String() string {
	return string(s)
}

// IsValid reports whether the value is a known GroupBuyStatus.
func (s GroupBuyStatus) IsValid() bool {
	for _, candidate := range validGroupBuyStatuses {
		if candidate == s {
			return true
		}
	}
	return false
}

// ParseGroupBuyStatus converts raw input into a GroupBuyStatus.
func ParseGroupBuyStatus(value string) (GroupBuyStatus, error) {
	for _, candidate := range validGroupBuyStatuses {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid group buy status %q", value)
}
