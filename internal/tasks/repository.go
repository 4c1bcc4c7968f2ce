package tasks

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/mvalderrama/shopflow-backend/pkg/db/models"
	"github.com/mvalderrama/shopflow-backend/pkg/enums"
	"gorm.io/gorm"
)

// DeleteMessagePayload schedules removal of a previously sent chat message.
type DeleteMessagePayload struct {
	ChatID    int64 `json:"chat_id"`
	MessageID int64 `json:"message_id"`
}

// Repository persists deferred side effects consumed by the worker sweep.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, task *models.ScheduledTask) error
	FindDue(ctx context.Context, now time.Time, limit int) ([]models.ScheduledTask, error)
	MarkDone(ctx context.Context, taskID uuid.UUID) error
	MarkFailed(ctx context.Context, taskID uuid.UUID, attempts int, lastError string, terminal bool) error
}

type repository struct {
	db *gorm.DB
}

// NewRepository builds a scheduled-tasks repository bound to the provided DB.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) Create(ctx context.Context, task *models.ScheduledTask) error {
	return r.db.WithContext(ctx).Create(task).Error
}

func (r *repository) FindDue(ctx context.Context, now time.Time, limit int) ([]models.ScheduledTask, error) {
	var due []models.ScheduledTask
	query := r.db.WithContext(ctx).
		Where("status = ? AND due_at <= ?", enums.TaskStatusPending, now).
		Order("due_at ASC")
	if limit > 0 {
		query = query.Limit(limit)
	}
	if err := query.Find(&due).Error; err != nil {
		return nil, err
	}
	return due, nil
}

func (r *repository) MarkDone(ctx context.Context, taskID uuid.UUID) error {
	return r.db.WithContext(ctx).
		Model(&models.ScheduledTask{}).
		Where("id = ?", taskID).
		Updates(map[string]any{"status": enums.TaskStatusDone}).Error
}

// MarkFailed records the attempt; terminal failures stop being retried.
func (r *repository) MarkFailed(ctx context.Context, taskID uuid.UUID, attempts int, lastError string, terminal bool) error {
	status := enums.TaskStatusPending
	if terminal {
		status = enums.TaskStatusFailed
	}
	return r.db.WithContext(ctx).
		Model(&models.ScheduledTask{}).
		Where("id = ?", taskID).
		Updates(map[string]any{
			"status":     status,
			"attempts":   attempts,
			"last_error": lastError,
		}).Error
}

// NewDeleteMessageTask builds a delete_message task due at the given time.
func NewDeleteMessageTask(chatID, messageID int64, dueAt time.Time) (*models.ScheduledTask, error) {
	raw, err := json.Marshal(DeleteMessagePayload{ChatID: chatID, MessageID: messageID})
	if err != nil {
		return nil, fmt.Errorf("marshal delete message payload: %w", err)
	}
	return &models.ScheduledTask{
		ID:      uuid.New(),
		Type:    enums.TaskDeleteMessage,
		Status:  enums.TaskStatusPending,
		DueAt:   dueAt,
		Payload: raw,
	}, nil
}
