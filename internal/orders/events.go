package orders

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/mvalderrama/shopflow-backend/pkg/db/models"
	"github.com/mvalderrama/shopflow-backend/pkg/enums"
)

// Actor identifies who performed a lifecycle action. A zero ActorID with
// ActorTypeSystem means the background worker.
type Actor struct {
	Type enums.ActorType
	ID   *uuid.UUID
}

// SystemActor is the actor recorded for worker-driven transitions.
var SystemActor = Actor{Type: enums.ActorTypeSystem}

// ManagerActor builds the actor for a manager-driven transition.
func ManagerActor(id uuid.UUID) Actor {
	return Actor{Type: enums.ActorTypeManager, ID: &id}
}

// BuyerActor builds the actor for a buyer-driven action.
func BuyerActor(id uuid.UUID) Actor {
	return Actor{Type: enums.ActorTypeBuyer, ID: &id}
}

// Event payloads. One struct per event type so readers never parse loose JSON.

// OrderCreatedPayload records the money breakdown and the discounts applied
// at checkout.
type OrderCreatedPayload struct {
	SubtotalCents int               `json:"subtotal_cents"`
	DiscountCents int               `json:"discount_cents"`
	TotalCents    int               `json:"total_cents"`
	Discounts     []AppliedDiscount `json:"discounts,omitempty"`
}

// AppliedDiscount is the audit view of one discount applied at checkout.
type AppliedDiscount struct {
	DiscountID  uuid.UUID `json:"discount_id"`
	Name        string    `json:"name"`
	AmountCents int       `json:"amount_cents"`
}

// ApprovalPayload records the effective payment method at approval time.
type ApprovalPayload struct {
	PaymentMethod enums.PaymentMethod `json:"payment_method"`
}

// RejectionPayload records an optional manager-supplied reason.
type RejectionPayload struct {
	Reason string `json:"reason,omitempty"`
}

// FallbackPayload explains why the channel method was not used.
type FallbackPayload struct {
	Reason string `json:"reason"`
}

// InviteSentPayload records the invite issued for the payment channel.
type InviteSentPayload struct {
	InviteLink string    `json:"invite_link"`
	ExpiresAt  time.Time `json:"expires_at"`
}

// InviteFailedPayload records why invite creation failed.
type InviteFailedPayload struct {
	Error string `json:"error"`
}

// InviteExpiredPayload records the lapsed window that triggered cancellation.
type InviteExpiredPayload struct {
	ExpiredAt time.Time `json:"expired_at"`
}

// ReceiptPayload ties a receipt event to the receipt row.
type ReceiptPayload struct {
	ReceiptID uuid.UUID `json:"receipt_id"`
}

// NewEvent builds an audit event row with a marshaled typed payload. A nil
// payload produces an event with no payload column.
func NewEvent(orderID uuid.UUID, actor Actor, eventType enums.OrderEventType, payload any) (*models.OrderEvent, error) {
	event := &models.OrderEvent{
		ID:        uuid.New(),
		OrderID:   orderID,
		ActorType: actor.Type,
		ActorID:   actor.ID,
		Type:      eventType,
	}
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("marshal %s payload: %w", eventType, err)
		}
		event.Payload = raw
	}
	return event, nil
}
