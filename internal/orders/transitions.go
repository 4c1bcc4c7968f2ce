package orders

import "github.com/mvalderrama/shopflow-backend/pkg/enums"

// allowedTransitions is the order lifecycle. Anything not listed here is
// rejected as a state conflict.
var allowedTransitions = map[enums.OrderStatus][]enums.OrderStatus{
	enums.OrderStatusAwaitingApproval: {
		enums.OrderStatusApproved,
		enums.OrderStatusCancelled,
	},
	enums.OrderStatusApproved: {
		enums.OrderStatusInviteSent,
		enums.OrderStatusAwaitingReceipt,
	},
	enums.OrderStatusInviteSent: {
		enums.OrderStatusAwaitingReceipt,
		enums.OrderStatusCancelled,
	},
	enums.OrderStatusAwaitingReceipt: {
		enums.OrderStatusPaid,
		enums.OrderStatusCancelled,
	},
	enums.OrderStatusPaid: {
		enums.OrderStatusCompleted,
	},
}

// CanTransition reports whether from -> to is a legal lifecycle move.
func CanTransition(from, to enums.OrderStatus) bool {
	for _, candidate := range allowedTransitions[from] {
		if candidate == to {
			return true
		}
	}
	return false
}
