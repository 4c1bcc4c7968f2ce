package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/mvalderrama/shopflow-backend/pkg/enums"
)

// Receipt is buyer-submitted proof of payment, subject to human review.
type Receipt struct {
	ID         uuid.UUID           `gorm:"column:id;type:uuid;primaryKey"`
	OrderID    uuid.UUID           `gorm:"column:order_id;type:uuid;not null;index"`
	UserID     uuid.UUID           `gorm:"column:user_id;type:uuid;not null"`
	FileID     string              `gorm:"column:file_id;not null"`
	Note       *string             `gorm:"column:note"`
	Status     enums.ReceiptStatus `gorm:"column:status;type:text;not null;default:'PENDING';index"`
	ReviewedBy *uuid.UUID          `gorm:"column:reviewed_by;type:uuid"`
	ReviewedAt *time.Time          `gorm:"column:reviewed_at"`
	CreatedAt  time.Time           `gorm:"column:created_at;autoCreateTime"`
}
