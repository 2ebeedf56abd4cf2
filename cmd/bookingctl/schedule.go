package main

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"andaman_booking_echo/internal/models"
	"andaman_booking_echo/internal/services"
	"andaman_booking_echo/internal/tasks"
)

const dueLayout = "2006-01-02 15:04"

func scheduleCmd() *cobra.Command {
	var (
		taskName   string
		arguments  string
		due        string
		taskType   string
		recurring  string
		maxAttempt int
	)

	cmd := &cobra.Command{
		Use:   "schedule",
		Short: "Create a scheduled task for the worker",
		Example: `  bookingctl schedule --task-name reconcile_pending_payments --arguments '{"limit":20}' \
    --due "2026-11-01 09:00" --type recurring --recurring "FREQ=HOURLY"`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			task, err := buildTask(taskName, arguments, due, taskType, recurring, maxAttempt, time.Local)
			if err != nil {
				return err
			}

			cfg, log, err := loadConfig()
			if err != nil {
				return err
			}
			if err := cfg.RequireDatabase(); err != nil {
				return err
			}
			db, err := services.InitDB(cfg.DatabaseURL, log)
			if err != nil {
				return err
			}
			if err := db.WithContext(cmd.Context()).Create(task).Error; err != nil {
				return fmt.Errorf("create task: %w", err)
			}

			fmt.Fprintf(cmd.OutOrStdout(), "Created task %d\nTask: %s\nDue: %s\nType: %s\n",
				task.ID, task.TaskName, task.Due.Format(time.RFC3339), task.TaskType)
			return nil
		},
	}

	cmd.Flags().StringVar(&taskName, "task-name", "", "Name of the registered task")
	cmd.Flags().StringVar(&arguments, "arguments", "{}", "JSON object passed to the task")
	cmd.Flags().StringVar(&due, "due", "", "Due time, RFC3339 or \"2006-01-02 15:04\" in local time")
	cmd.Flags().StringVar(&taskType, "type", string(models.ScheduledTaskTypeOneTime), "onetime or recurring")
	cmd.Flags().StringVar(&recurring, "recurring", "", "RRULE for recurring tasks, e.g. FREQ=MINUTELY;INTERVAL=15")
	cmd.Flags().IntVar(&maxAttempt, "max-attempt", 3, "Attempts per run")
	_ = cmd.MarkFlagRequired("task-name")
	_ = cmd.MarkFlagRequired("due")
	return cmd
}

// buildTask validates the flags and turns them into an active task.
func buildTask(name, arguments, due, taskType, recurring string, maxAttempt int, loc *time.Location) (*models.ScheduledTask, error) {
	var args map[string]interface{}
	if err := json.Unmarshal([]byte(arguments), &args); err != nil {
		return nil, fmt.Errorf("invalid JSON arguments: %w", err)
	}

	dueAt, err := parseDue(due, loc)
	if err != nil {
		return nil, err
	}

	if maxAttempt < 1 {
		return nil, fmt.Errorf("max-attempt must be at least 1, got %d", maxAttempt)
	}

	var rule *string
	switch tt := models.ScheduledTaskType(taskType); tt {
	case models.ScheduledTaskTypeOneTime:
		if recurring != "" {
			return nil, fmt.Errorf("--recurring requires --type recurring")
		}
	case models.ScheduledTaskTypeRecurring:
		if recurring == "" {
			return nil, fmt.Errorf("recurring tasks need --recurring")
		}
		rule = &recurring
	default:
		return nil, fmt.Errorf("unknown task type %q", taskType)
	}

	task, err := tasks.BuildScheduledTask(name, args, dueAt, rule, models.ScheduledTaskType(taskType), maxAttempt)
	if err != nil {
		return nil, err
	}
	if rule != nil && !task.NextDue(dueAt).After(dueAt) {
		return nil, fmt.Errorf("invalid recurrence rule %q", recurring)
	}
	return task, nil
}

func parseDue(s string, loc *time.Location) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, nil
	}
	t, err := time.ParseInLocation(dueLayout, s, loc)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid due %q: use RFC3339 or %q", s, dueLayout)
	}
	return t, nil
}
