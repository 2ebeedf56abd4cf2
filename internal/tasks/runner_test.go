package tasks

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"andaman_booking_echo/internal/models"
	"andaman_booking_echo/internal/testutil"
)

func newEnv(t *testing.T) (*Env, *gorm.DB) {
	t.Helper()
	db := testutil.NewDB(t)
	return &Env{DB: db, Log: testutil.QuietLogger()}, db
}

func createTask(t *testing.T, db *gorm.DB, task *models.ScheduledTask) *models.ScheduledTask {
	t.Helper()
	require.NoError(t, db.Create(task).Error)
	return task
}

func histories(t *testing.T, db *gorm.DB, taskID uint) []models.ScheduledTaskHistory {
	t.Helper()
	var out []models.ScheduledTaskHistory
	require.NoError(t, db.Where("scheduled_task_id = ?", taskID).Order("attempt_number").Find(&out).Error)
	return out
}

func reload(t *testing.T, db *gorm.DB, id uint) models.ScheduledTask {
	t.Helper()
	var task models.ScheduledTask
	require.NoError(t, db.First(&task, id).Error)
	return task
}

func TestRunnerRetriesUntilSuccess(t *testing.T) {
	env, db := newEnv(t)
	registry := NewRegistry()
	calls := 0
	registry.Register("flaky", func(context.Context, *Env, models.ScheduledTask) (map[string]interface{}, error) {
		calls++
		if calls < 3 {
			return nil, errors.New("not yet")
		}
		return map[string]interface{}{"ok": true}, nil
	})

	task := createTask(t, db, &models.ScheduledTask{
		TaskName: "flaky", Due: time.Now().Add(-time.Minute),
		Status: models.ScheduledTaskStatusActive, TaskType: models.ScheduledTaskTypeOneTime, MaxAttempt: 3,
	})

	ran := NewRunner(registry, env).ProcessDue(context.Background())
	assert.Equal(t, 1, ran)
	assert.Equal(t, 3, calls)

	h := histories(t, db, task.ID)
	require.Len(t, h, 3)
	assert.Equal(t, "failure", h[0].Status)
	assert.Equal(t, "success", h[2].Status)
	assert.Equal(t, 3, h[2].AttemptNumber)
	assert.Equal(t, models.ScheduledTaskStatusDone, reload(t, db, task.ID).Status)
}

func TestRunnerMarksFailureAfterMaxAttempts(t *testing.T) {
	env, db := newEnv(t)
	registry := NewRegistry()
	calls := 0
	registry.Register("broken", func(context.Context, *Env, models.ScheduledTask) (map[string]interface{}, error) {
		calls++
		return nil, errors.New("always")
	})

	task := createTask(t, db, &models.ScheduledTask{
		TaskName: "broken", Due: time.Now().Add(-time.Minute),
		Status: models.ScheduledTaskStatusActive, TaskType: models.ScheduledTaskTypeOneTime, MaxAttempt: 2,
	})

	NewRunner(registry, env).ProcessDue(context.Background())
	assert.Equal(t, 2, calls)
	assert.Len(t, histories(t, db, task.ID), 2)

	got := reload(t, db, task.ID)
	assert.Equal(t, models.ScheduledTaskStatusFailure, got.Status)
	assert.NotNil(t, got.LastRun)
}

func TestRunnerUnknownHandler(t *testing.T) {
	env, db := newEnv(t)
	task := createTask(t, db, &models.ScheduledTask{
		TaskName: "nope", Due: time.Now().Add(-time.Minute),
		Status: models.ScheduledTaskStatusActive, TaskType: models.ScheduledTaskTypeOneTime, MaxAttempt: 1,
	})

	NewRunner(NewRegistry(), env).ProcessDue(context.Background())

	h := histories(t, db, task.ID)
	require.Len(t, h, 1)
	assert.Equal(t, "handler_not_found", h[0].Status)
	assert.Equal(t, models.ScheduledTaskStatusFailure, reload(t, db, task.ID).Status)
}

func TestRunnerAdvancesRecurringTask(t *testing.T) {
	env, db := newEnv(t)
	registry := NewRegistry()
	DefineTasks(registry)

	rule := "FREQ=MINUTELY;INTERVAL=15"
	due := time.Now().Add(-time.Minute).Truncate(time.Second)
	task := createTask(t, db, &models.ScheduledTask{
		TaskName: LogInfoTask.TaskID(), Arguments: map[string]interface{}{"message": "tick"},
		Due: due, RecurringInterval: &rule,
		Status: models.ScheduledTaskStatusActive, TaskType: models.ScheduledTaskTypeRecurring, MaxAttempt: 1,
	})

	NewRunner(registry, env).ProcessDue(context.Background())

	got := reload(t, db, task.ID)
	assert.Equal(t, models.ScheduledTaskStatusActive, got.Status)
	assert.True(t, got.Due.After(time.Now()))
	assert.WithinDuration(t, due.Add(15*time.Minute), got.Due, time.Second)

	h := histories(t, db, task.ID)
	require.Len(t, h, 1)
	assert.Equal(t, "tick", h[0].Result["message"])
}

func TestRunnerSkipsFutureAndInactiveTasks(t *testing.T) {
	env, db := newEnv(t)
	registry := NewRegistry()
	DefineTasks(registry)

	createTask(t, db, &models.ScheduledTask{
		TaskName: LogInfoTask.TaskID(), Due: time.Now().Add(time.Hour),
		Status: models.ScheduledTaskStatusActive, TaskType: models.ScheduledTaskTypeOneTime, MaxAttempt: 1,
	})
	createTask(t, db, &models.ScheduledTask{
		TaskName: LogInfoTask.TaskID(), Due: time.Now().Add(-time.Hour),
		Status: models.ScheduledTaskStatusDisabled, TaskType: models.ScheduledTaskTypeOneTime, MaxAttempt: 1,
	})

	assert.Zero(t, NewRunner(registry, env).ProcessDue(context.Background()))
}
