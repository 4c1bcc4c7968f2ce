package enums

import "fmt"

// OrderEventType names the append-only audit events recorded on an order.
type OrderEventType string

const (
	EventOrderCreated           OrderEventType = "order_created"
	EventOrderApproved          OrderEventType = "order_approved"
	EventOrderRejected          OrderEventType = "order_rejected"
	EventApprovalFallbackDirect OrderEventType = "approval_fallback_direct"
	EventInviteSent             OrderEventType = "invite_sent"
	EventInstructionsSent       OrderEventType = "instructions_sent"
	EventInviteCreationFailed   OrderEventType = "invite_creation_failed"
	EventInviteExpired          OrderEventType = "invite_expired"
	EventReceiptSubmitted       OrderEventType = "receipt_submitted"
	EventReceiptApproved        OrderEventType = "receipt_approved"
	EventReceiptRejected        OrderEventType = "receipt_rejected"
	EventChannelCleanup         OrderEventType = "channel_cleanup"
	EventOrderCompleted         OrderEventType = "order_completed"
)

var validOrderEventTypes = []OrderEventType{
	EventOrderCreated,
	EventOrderApproved,
	EventOrderRejected,
	EventApprovalFallbackDirect,
	EventInviteSent,
	EventInstructionsSent,
	EventInviteCreationFailed,
	EventInviteExpired,
	EventReceiptSubmitted,
	EventReceiptApproved,
	EventReceiptRejected,
	EventChannelCleanup,
	EventOrderCompleted,
}

// String implements fmt.Stringer.
func (e OrderEventType) String() string {
	return string(e)
}

// IsValid reports whether the value is a known OrderEventType.
func (e OrderEventType) IsValid() bool {
	for _, candidate := range validOrderEventTypes {
		if candidate == e {
			return true
		}
	}
	return false
}

// ParseOrderEventType converts raw input into an OrderEventType.
func ParseOrderEventType(value string) (OrderEventType, error) {
	for _, candidate := range validOrderEventTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid order event type %q", value)
}
