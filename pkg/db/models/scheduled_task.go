package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/mvalderrama/shopflow-backend/pkg/enums"
)

// ScheduledTask is a persisted "do this later" record consumed by the worker
// sweep. It replaces in-process timers so deferred side effects survive
// restarts.
type ScheduledTask struct {
	ID        uuid.UUID                 `gorm:"column:id;type:uuid;primaryKey"`
	Type      enums.ScheduledTaskType   `gorm:"column:type;type:text;not null"`
	Status    enums.ScheduledTaskStatus `gorm:"column:status;type:text;not null;default:'pending';index"`
	DueAt     time.Time                 `gorm:"column:due_at;not null;index"`
	Attempts  int                       `gorm:"column:attempts;not null;default:0"`
	LastError *string                   `gorm:"column:last_error"`
	Payload   json.RawMessage           `gorm:"column:payload;type:jsonb"`
	CreatedAt time.Time                 `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt time.Time                 `gorm:"column:updated_at;autoUpdateTime"`
}
