package cron

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/mvalderrama/shopflow-backend/internal/tasks"
	"github.com/mvalderrama/shopflow-backend/pkg/db/models"
	"github.com/mvalderrama/shopflow-backend/pkg/enums"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func newScheduledTaskJob(t *testing.T, db *gorm.DB, gateway *stubGateway, maxAttempts int) Job {
	t.Helper()
	job, err := NewScheduledTaskJob(ScheduledTaskJobParams{
		Logger:      testLogger(),
		Tasks:       tasks.NewRepository(db),
		Gateway:     gateway,
		MaxAttempts: maxAttempts,
	})
	require.NoError(t, err)
	return job
}

func seedDeleteTask(t *testing.T, db *gorm.DB, dueAt time.Time) *models.ScheduledTask {
	t.Helper()
	task, err := tasks.NewDeleteMessageTask(900, 1234, dueAt)
	require.NoError(t, err)
	require.NoError(t, db.Create(task).Error)
	return task
}

func TestScheduledTaskJob_runsDueTasks(t *testing.T) {
	db := setupCronTestDB(t)
	gateway := &stubGateway{}
	job := newScheduledTaskJob(t, db, gateway, 5)

	task := seedDeleteTask(t, db, time.Now().UTC().Add(-time.Minute))
	future := seedDeleteTask(t, db, time.Now().UTC().Add(time.Hour))

	require.NoError(t, job.Run(context.Background()))

	require.Len(t, gateway.deletes, 1)
	assert.Equal(t, int64(1234), gateway.deletes[0])

	var done models.ScheduledTask
	require.NoError(t, db.Where("id = ?", task.ID).First(&done).Error)
	assert.Equal(t, enums.TaskStatusDone, done.Status)

	var pending models.ScheduledTask
	require.NoError(t, db.Where("id = ?", future.ID).First(&pending).Error)
	assert.Equal(t, enums.TaskStatusPending, pending.Status)
}

func TestScheduledTaskJob_retriesThenGivesUp(t *testing.T) {
	db := setupCronTestDB(t)
	gateway := &stubGateway{delErr: errors.New("message to delete not found")}
	job := newScheduledTaskJob(t, db, gateway, 2)

	task := seedDeleteTask(t, db, time.Now().UTC().Add(-time.Minute))

	// First attempt fails but the task stays pending for a retry.
	require.Error(t, job.Run(context.Background()))
	var reloaded models.ScheduledTask
	require.NoError(t, db.Where("id = ?", task.ID).First(&reloaded).Error)
	assert.Equal(t, enums.TaskStatusPending, reloaded.Status)
	assert.Equal(t, 1, reloaded.Attempts)
	require.NotNil(t, reloaded.LastError)
	assert.Contains(t, *reloaded.LastError, "not found")

	// Second failure exhausts the attempt budget.
	require.Error(t, job.Run(context.Background()))
	require.NoError(t, db.Where("id = ?", task.ID).First(&reloaded).Error)
	assert.Equal(t, enums.TaskStatusFailed, reloaded.Status)
	assert.Equal(t, 2, reloaded.Attempts)

	// Failed tasks are never picked up again.
	require.NoError(t, job.Run(context.Background()))
	require.NoError(t, db.Where("id = ?", task.ID).First(&reloaded).Error)
	assert.Equal(t, 2, reloaded.Attempts)
}
