package tasks

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	"andaman_booking_echo/internal/models"
)

// Runner executes due scheduled tasks.
type Runner struct {
	registry *Registry
	env      *Env
	now      func() time.Time
}

func NewRunner(registry *Registry, env *Env) *Runner {
	return &Runner{registry: registry, env: env, now: time.Now}
}

// Run processes due tasks immediately and then on every tick until ctx is
// done.
func (r *Runner) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	r.ProcessDue(ctx)
	for {
		select {
		case <-ticker.C:
			r.ProcessDue(ctx)
		case <-ctx.Done():
			return
		}
	}
}

// ProcessDue runs every active task whose due time has passed and returns how
// many it ran.
func (r *Runner) ProcessDue(ctx context.Context) int {
	var pendingTasks []models.ScheduledTask
	if err := r.env.DB.WithContext(ctx).
		Where("status = ? AND due <= ?", models.ScheduledTaskStatusActive, r.now()).
		Order("due").
		Find(&pendingTasks).Error; err != nil {
		r.env.Log.WithError(err).Error("Error fetching pending tasks")
		return 0
	}

	if len(pendingTasks) == 0 {
		r.env.Log.Debug("No pending tasks found.")
		return 0
	}
	r.env.Log.Infof("Found %d pending tasks.", len(pendingTasks))

	ran := 0
	for _, task := range pendingTasks {
		if ctx.Err() != nil {
			break
		}
		r.Execute(ctx, task)
		ran++
	}
	return ran
}

// Execute runs task, retrying in place up to MaxAttempt times, writes one
// history row per attempt and moves the task to its next state.
func (r *Runner) Execute(ctx context.Context, task models.ScheduledTask) {
	log := r.env.Log.WithFields(logrus.Fields{"task": task.TaskName, "task_id": task.ID})

	handler, found := r.registry.Get(task.TaskName)
	if !found {
		log.Warn("Task handler not found, marking as failure")
		now := r.now()
		r.env.DB.WithContext(ctx).Model(&task).Updates(map[string]interface{}{
			"status":   models.ScheduledTaskStatusFailure,
			"last_run": &now,
		})
		r.env.DB.WithContext(ctx).Create(&models.ScheduledTaskHistory{
			ScheduledTaskID: task.ID,
			TaskName:        task.TaskName,
			RunAt:           now,
			Status:          "handler_not_found",
			AttemptNumber:   1,
			Arguments:       task.Arguments,
			Result:          map[string]interface{}{"error": "Handler not found"},
		})
		return
	}

	maxAttempt := task.MaxAttempt
	if maxAttempt < 1 {
		maxAttempt = 1
	}

	var startTime time.Time
	succeeded := false
	for attempt := 1; attempt <= maxAttempt && !succeeded; attempt++ {
		if ctx.Err() != nil {
			return
		}
		startTime = r.now()
		result, err := handler(ctx, r.env, task)
		runtime := r.now().Sub(startTime)

		status := "success"
		if err != nil {
			status = "failure"
			result = map[string]interface{}{"error": err.Error()}
			log.WithError(err).WithField("attempt", attempt).Warn("Task failed")
		} else {
			succeeded = true
			log.WithField("runtime_ms", runtime.Milliseconds()).Info("Task completed successfully")
		}

		r.env.DB.WithContext(ctx).Create(&models.ScheduledTaskHistory{
			ScheduledTaskID: task.ID,
			TaskName:        task.TaskName,
			RunAt:           startTime,
			RuntimeMillis:   runtime.Milliseconds(),
			Status:          status,
			AttemptNumber:   attempt,
			Arguments:       task.Arguments,
			Result:          result,
		})
	}

	updates := map[string]interface{}{"last_run": &startTime}
	switch {
	case task.TaskType == models.ScheduledTaskTypeRecurring:
		// a failed run of a recurring task still moves on to the next slot
		nextDue := task.NextDue(r.now())
		if nextDue.After(task.Due) {
			updates["status"] = models.ScheduledTaskStatusActive
			updates["due"] = nextDue
		} else if succeeded {
			updates["status"] = models.ScheduledTaskStatusDone
		} else {
			updates["status"] = models.ScheduledTaskStatusFailure
		}
	case succeeded:
		updates["status"] = models.ScheduledTaskStatusDone
	default:
		updates["status"] = models.ScheduledTaskStatusFailure
	}

	r.env.DB.WithContext(ctx).Model(&task).Updates(updates)
}
