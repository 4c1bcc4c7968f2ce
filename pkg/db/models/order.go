package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/mvalderrama/shopflow-backend/pkg/enums"
)

// Order is the immutable-once-created record of a committed purchase. Money
// fields are integer minor units. Invariant: TotalCents = SubtotalCents -
// min(DiscountCents, SubtotalCents).
type Order struct {
	ID          uuid.UUID  `gorm:"column:id;type:uuid;primaryKey"`
	OrderNumber int64      `gorm:"column:order_number;autoIncrement;uniqueIndex"`
	UserID      uuid.UUID  `gorm:"column:user_id;type:uuid;not null;index"`
	CartID      *uuid.UUID `gorm:"column:cart_id;type:uuid"`

	SubtotalCents int `gorm:"column:subtotal_cents;not null"`
	DiscountCents int `gorm:"column:discount_cents;not null;default:0"`
	TotalCents    int `gorm:"column:total_cents;not null"`

	Status enums.OrderStatus `gorm:"column:status;type:text;not null;default:'AWAITING_APPROVAL';index"`

	// Payment-channel fields, cleared together by channel cleanup.
	InviteLink       *string    `gorm:"column:invite_link"`
	InviteSentAt     *time.Time `gorm:"column:invite_sent_at"`
	InviteExpiresAt  *time.Time `gorm:"column:invite_expires_at;index"`
	ChannelMessageID *int64     `gorm:"column:channel_message_id"`

	Items    []OrderItem  `gorm:"foreignKey:OrderID;constraint:OnDelete:CASCADE"`
	Events   []OrderEvent `gorm:"foreignKey:OrderID;constraint:OnDelete:CASCADE"`
	Receipts []Receipt    `gorm:"foreignKey:OrderID;constraint:OnDelete:CASCADE"`

	CreatedAt time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt time.Time `gorm:"column:updated_at;autoUpdateTime"`
}
