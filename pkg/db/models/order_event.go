package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/mvalderrama/shopflow-backend/pkg/enums"
)

// OrderEvent is an append-only audit record of one order lifecycle action.
// Rows are never mutated or deleted.
type OrderEvent struct {
	ID        uuid.UUID            `gorm:"column:id;type:uuid;primaryKey"`
	OrderID   uuid.UUID            `gorm:"column:order_id;type:uuid;not null;index"`
	ActorType enums.ActorType      `gorm:"column:actor_type;type:text;not null"`
	ActorID   *uuid.UUID           `gorm:"column:actor_id;type:uuid"`
	Type      enums.OrderEventType `gorm:"column:type;type:text;not null"`
	Payload   json.RawMessage      `gorm:"column:payload;type:jsonb"`
	CreatedAt time.Time            `gorm:"column:created_at;autoCreateTime"`
}
