package enums

import "fmt"

// CartStatus tracks the lifecycle of a buyer cart.
type CartStatus string

const (
	CartStatusActive    CartStatus = "ACTIVE"
	CartStatusSubmitted CartStatus = "SUBMITTED"
	CartStatusExpired   CartStatus = "EXPIRED"
)

var validCartStatuses = []CartStatus{
	CartStatusActive,
	CartStatusSubmitted,
	CartStatusExpired,
}

// String implements fmt.Stringer.
func (s CartStatus) String() string {
	return string(s)
}

// IsValid reports whether the value is a known CartStatus.
func (s CartStatus) IsValid() bool {
	for _, candidate := range validCartStatuses {
		if candidate == s {
			return true
		}
	}
	return false
}

// ParseCartStatus converts raw input into a CartStatus.
func ParseCartStatus(value string) (CartStatus, error) {
	for _, candidate := range validCartStatuses {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid cart status %q", value)
}
