package cron

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/mvalderrama/shopflow-backend/internal/tasks"
	"github.com/mvalderrama/shopflow-backend/pkg/db/models"
	"github.com/mvalderrama/shopflow-backend/pkg/enums"
	"github.com/mvalderrama/shopflow-backend/pkg/logger"
	"github.com/mvalderrama/shopflow-backend/pkg/messaging"
	"github.com/mvalderrama/shopflow-backend/pkg/metrics"
	"go.uber.org/multierr"
)

const (
	defaultTaskBatchSize   = 50
	defaultTaskMaxAttempts = 5
)

// ScheduledTaskJobParams configure the deferred side-effect runner.
type ScheduledTaskJobParams struct {
	Logger      *logger.Logger
	Tasks       tasks.Repository
	Gateway     messaging.Gateway
	Metrics     *metrics.WorkerJobMetrics
	BatchSize   int
	MaxAttempts int
}

// NewScheduledTaskJob builds the sweep that executes due scheduled tasks,
// currently chat message deletions.
func NewScheduledTaskJob(params ScheduledTaskJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Tasks == nil {
		return nil, fmt.Errorf("tasks repository required")
	}
	if params.Gateway == nil {
		return nil, fmt.Errorf("messaging gateway required")
	}
	batchSize := params.BatchSize
	if batchSize <= 0 {
		batchSize = defaultTaskBatchSize
	}
	maxAttempts := params.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = defaultTaskMaxAttempts
	}
	return &scheduledTaskJob{
		logg:        params.Logger,
		tasks:       params.Tasks,
		gateway:     params.Gateway,
		metrics:     params.Metrics,
		batchSize:   batchSize,
		maxAttempts: maxAttempts,
		now:         time.Now,
	}, nil
}

type scheduledTaskJob struct {
	logg        *logger.Logger
	tasks       tasks.Repository
	gateway     messaging.Gateway
	metrics     *metrics.WorkerJobMetrics
	batchSize   int
	maxAttempts int
	now         func() time.Time
}

func (j *scheduledTaskJob) Name() string { return "scheduled-tasks" }

func (j *scheduledTaskJob) Run(ctx context.Context) error {
	due, err := j.tasks.FindDue(ctx, j.now().UTC(), j.batchSize)
	if err != nil {
		return fmt.Errorf("query due tasks: %w", err)
	}

	var errs []error
	done := 0
	for _, task := range due {
		if err := j.runTask(ctx, task); err != nil {
			errs = append(errs, fmt.Errorf("task %s: %w", task.ID, err))
			continue
		}
		done++
	}
	j.metrics.AddProcessed(j.Name(), done)

	logCtx := j.logg.WithFields(ctx, map[string]any{"due": len(due), "done": done})
	j.logg.Info(logCtx, "scheduled task sweep complete")
	return multierr.Combine(errs...)
}

func (j *scheduledTaskJob) runTask(ctx context.Context, task models.ScheduledTask) error {
	ctx = j.logg.WithField(ctx, "task_id", task.ID.String())

	if err := j.execute(ctx, task); err != nil {
		attempts := task.Attempts + 1
		terminal := attempts >= j.maxAttempts
		if markErr := j.tasks.MarkFailed(ctx, task.ID, attempts, err.Error(), terminal); markErr != nil {
			return fmt.Errorf("mark failed: %w", markErr)
		}
		if terminal {
			j.logg.Error(ctx, "scheduled task failed permanently", err)
		}
		return err
	}
	return j.tasks.MarkDone(ctx, task.ID)
}

func (j *scheduledTaskJob) execute(ctx context.Context, task models.ScheduledTask) error {
	switch task.Type {
	case enums.TaskDeleteMessage:
		var payload tasks.DeleteMessagePayload
		if err := json.Unmarshal(task.Payload, &payload); err != nil {
			return fmt.Errorf("decode delete message payload: %w", err)
		}
		return j.gateway.DeleteMessage(ctx, payload.ChatID, payload.MessageID)
	default:
		return fmt.Errorf("unknown task type %q", task.Type)
	}
}
