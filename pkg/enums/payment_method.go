package enums

import "fmt"

// PaymentMethod selects how payment instructions reach the buyer.
type PaymentMethod string

const (
	PaymentMethodChannel PaymentMethod = "channel"
	PaymentMethodDirect  PaymentMethod = "direct"
)

var validPaymentMethods = []PaymentMethod{
	PaymentMethodChannel,
	PaymentMethodDirect,
}

// String implements fmt.Stringer.
func (m PaymentMethod) String() string {
	return string(m)
}

// IsValid reports whether the value is a known PaymentMethod.
func (m PaymentMethod) IsValid() bool {
	for _, candidate := range validPaymentMethods {
		if candidate == m {
			return true
		}
	}
	return false
}

// ParsePaymentMethod converts raw input into a PaymentMethod.
func ParsePaymentMethod(value string) (PaymentMethod, error) {
	for _, candidate := range validPaymentMethods {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid payment method %q", value)
}
