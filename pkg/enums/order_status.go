package enums

import "fmt"

// OrderStatus tracks the payment lifecycle of an order. The values are
// wire-visible and stored as-is.
type OrderStatus string

const (
	OrderStatusAwaitingApproval OrderStatus = "AWAITING_APPROVAL"
	OrderStatusApproved         OrderStatus = "APPROVED"
	OrderStatusInviteSent       OrderStatus = "INVITE_SENT"
	OrderStatusAwaitingReceipt  OrderStatus = "AWAITING_RECEIPT"
	OrderStatusPaid             OrderStatus = "PAID"
	OrderStatusCompleted        OrderStatus = "COMPLETED"
	OrderStatusCancelled        OrderStatus = "CANCELLED"
)

var validOrderStatuses = []OrderStatus{
	OrderStatusAwaitingApproval,
	OrderStatusApproved,
	OrderStatusInviteSent,
	OrderStatusAwaitingReceipt,
	OrderStatusPaid,
	OrderStatusCompleted,
	OrderStatusCancelled,
}

// String implements fmt.Stringer.
func (s OrderStatus) String() string {
	return string(s)
}

// IsValid reports whether the value is a known OrderStatus.
func (s OrderStatus) IsValid() bool {
	for _, candidate := range validOrderStatuses {
		if candidate == s {
			return true
		}
	}
	return false
}

// IsTerminal reports whether no further transitions are allowed.
func (s OrderStatus) IsTerminal() bool {
	return s == OrderStatusCancelled || s == OrderStatusCompleted
}

// ParseOrderStatus converts raw input into an OrderStatus.
func ParseOrderStatus(value string) (OrderStatus, error) {
	for _, candidate := range validOrderStatuses {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid order status %q", value)
}
