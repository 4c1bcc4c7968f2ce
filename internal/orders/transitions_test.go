package orders

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/mvalderrama/shopflow-backend/pkg/enums"
)

func TestCanTransition(t *testing.T) {
	cases := []struct {
		name    string
		from    enums.OrderStatus
		to      enums.OrderStatus
		allowed bool
	}{
		{"approve pending order", enums.OrderStatusAwaitingApproval, enums.OrderStatusApproved, true},
		{"reject pending order", enums.OrderStatusAwaitingApproval, enums.OrderStatusCancelled, true},
		{"invite after approval", enums.OrderStatusApproved, enums.OrderStatusInviteSent, true},
		{"direct instructions after approval", enums.OrderStatusApproved, enums.OrderStatusAwaitingReceipt, true},
		{"receipt submitted from invite", enums.OrderStatusInviteSent, enums.OrderStatusAwaitingReceipt, true},
		{"invite expires", enums.OrderStatusInviteSent, enums.OrderStatusCancelled, true},
		{"receipt accepted", enums.OrderStatusAwaitingReceipt, enums.OrderStatusPaid, true},
		{"paid order fulfilled", enums.OrderStatusPaid, enums.OrderStatusCompleted, true},
		{"skip straight to paid", enums.OrderStatusAwaitingApproval, enums.OrderStatusPaid, false},
		{"un-approve", enums.OrderStatusApproved, enums.OrderStatusAwaitingApproval, false},
		{"cancel a paid order", enums.OrderStatusPaid, enums.OrderStatusCancelled, false},
		{"reopen completed order", enums.OrderStatusCompleted, enums.OrderStatusAwaitingReceipt, false},
		{"cancel is terminal", enums.OrderStatusCancelled, enums.OrderStatusAwaitingApproval, false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.allowed, CanTransition(tc.from, tc.to))
		})
	}
}
