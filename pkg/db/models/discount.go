package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/mvalderrama/shopflow-backend/pkg/enums"
)

// Discount is a reusable pricing rule. A discount with Code set is manual
// (redeemed at checkout); one with AutoRule or neither is automatic.
type Discount struct {
	ID             uuid.UUID          `gorm:"column:id;type:uuid;primaryKey"`
	Name           string             `gorm:"column:name;not null"`
	Type           enums.DiscountType `gorm:"column:type;type:text;not null"`
	Value          int                `gorm:"column:value;not null"`
	Code           *string            `gorm:"column:code;uniqueIndex"`
	AutoRule       *string            `gorm:"column:auto_rule"`
	MinAmountCents *int               `gorm:"column:min_amount_cents"`
	MinQty         *int               `gorm:"column:min_qty"`
	MaxUses        *int               `gorm:"column:max_uses"`
	PerUserLimit   *int               `gorm:"column:per_user_limit"`
	Stackable      bool               `gorm:"column:stackable;not null;default:false"`
	StartsAt       *time.Time         `gorm:"column:starts_at"`
	EndsAt         *time.Time         `gorm:"column:ends_at"`
	IsActive       bool               `gorm:"column:is_active;not null;default:true"`
	CreatedAt      time.Time          `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt      time.Time          `gorm:"column:updated_at;autoUpdateTime"`
}

// DiscountUsage records one application of a discount to an order. Rows are
// append-only and double as the audit trail of what was actually charged.
type DiscountUsage struct {
	ID          uuid.UUID `gorm:"column:id;type:uuid;primaryKey"`
	DiscountID  uuid.UUID `gorm:"column:discount_id;type:uuid;not null;index"`
	UserID      uuid.UUID `gorm:"column:user_id;type:uuid;not null;index"`
	OrderID     uuid.UUID `gorm:"column:order_id;type:uuid;not null"`
	AmountCents int       `gorm:"column:amount_cents;not null"`
	CreatedAt   time.Time `gorm:"column:created_at;autoCreateTime"`
}
