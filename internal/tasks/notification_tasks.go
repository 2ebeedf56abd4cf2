package tasks

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"andaman_booking_echo/internal/models"
)

const (
	ChannelEmail    = "email"
	ChannelWhatsApp = "whatsapp"
)

// NotificationRecipient carries its own channel list, taken from the
// booking's email and WhatsApp update flags.
type NotificationRecipient struct {
	Name     string   `json:"name"`
	Email    string   `json:"email"`
	Phone    string   `json:"phone"`
	Channels []string `json:"channels"`
}

// SendNotificationArgs defines the arguments for a notification task
type SendNotificationArgs struct {
	Recipients    []NotificationRecipient `json:"recipients"`
	NotifTemplate string                  `json:"notiftemplate"`
	Subject       string                  `json:"subject"`
	BookingNumber string                  `json:"booking_number"`
	BookingStatus string                  `json:"booking_status"`
	Reference     string                  `json:"reference"`
	PNR           string                  `json:"pnr"`
	Route         string                  `json:"route"`
	TravelDate    string                  `json:"travel_date"`
	Amount        string                  `json:"amount"`
	Message       string                  `json:"message"`
	AttemptCount  int                     `json:"attempt_count"`
}

// SendNotificationTaskDef encapsulates the notification task logic
type SendNotificationTaskDef struct{}

// TaskID returns the unique identifier for this task
func (t *SendNotificationTaskDef) TaskID() string {
	return "send_notification"
}

// CreateTask builds a ScheduledTask record for this task
func (t *SendNotificationTaskDef) CreateTask(args SendNotificationArgs) (*models.ScheduledTask, error) {
	return BuildScheduledTask(t.TaskID(), args, time.Now(), nil, models.ScheduledTaskTypeOneTime, 3)
}

// HandleExecution delivers the message on every channel of every recipient.
// Failed deliveries are rescheduled as a new task holding only what failed,
// until the task's max attempts is reached.
func (t *SendNotificationTaskDef) HandleExecution(ctx context.Context, env *Env, task models.ScheduledTask) (map[string]interface{}, error) {
	var parsedArgs SendNotificationArgs
	if err := decodeArgs(task, &parsedArgs); err != nil {
		return nil, err
	}
	if parsedArgs.NotifTemplate == "" {
		return nil, errors.New("notiftemplate is missing")
	}

	successCount := 0
	skippedCount := 0
	failureCount := 0
	var failures []string
	var failed []NotificationRecipient

	for _, recipient := range parsedArgs.Recipients {
		msg := replacePlaceholders(parsedArgs.NotifTemplate, recipient, parsedArgs)
		var failedChannels []string

		for _, channel := range recipient.Channels {
			fields := logrus.Fields{"recipient": recipient.Name, "channel": channel, "booking": parsedArgs.BookingNumber}
			err := deliver(ctx, env, channel, recipient, parsedArgs.Subject, msg)
			switch {
			case errors.Is(err, errSkipped):
				env.Log.WithFields(fields).Info("Skipping notification")
				skippedCount++
			case err != nil:
				env.Log.WithFields(fields).WithError(err).Warn("Failed to send notification")
				failureCount++
				failures = append(failures, fmt.Sprintf("%s/%s: %v", recipient.Name, channel, err))
				failedChannels = append(failedChannels, channel)
			default:
				successCount++
			}
		}

		if len(failedChannels) > 0 {
			retry := recipient
			retry.Channels = failedChannels
			failed = append(failed, retry)
		}
	}

	result := map[string]interface{}{
		"total":   len(parsedArgs.Recipients),
		"success": successCount,
		"skipped": skippedCount,
		"failure": failureCount,
	}
	if failureCount == 0 {
		return result, nil
	}

	result["errors"] = failures
	attempt := parsedArgs.AttemptCount
	maxRetries := task.MaxAttempt

	if attempt >= maxRetries {
		env.Log.WithField("failed", len(failed)).Warnf("Max attempts (%d) reached for notification", maxRetries)
		return result, fmt.Errorf("max attempts reached, failed to deliver %d messages", failureCount)
	}

	newArgs := parsedArgs
	newArgs.Recipients = failed
	newArgs.AttemptCount = attempt + 1

	newTask, err := BuildScheduledTask(t.TaskID(), newArgs, time.Now().Add(5*time.Minute), nil, models.ScheduledTaskTypeOneTime, maxRetries)
	if err != nil {
		return result, fmt.Errorf("failed to build retry task: %w", err)
	}
	if err := env.DB.WithContext(ctx).Create(newTask).Error; err != nil {
		return result, fmt.Errorf("failed to create retry task: %w", err)
	}
	env.Log.WithField("attempt", newArgs.AttemptCount).Info("Partial notification failure, retry scheduled")
	result["retry_task_id"] = newTask.ID
	return result, nil
}

// SendNotificationTask is the singleton instance of SendNotificationTaskDef
var SendNotificationTask = &SendNotificationTaskDef{}

var errSkipped = errors.New("skipped")

func deliver(ctx context.Context, env *Env, channel string, r NotificationRecipient, subject, msg string) error {
	switch channel {
	case ChannelEmail:
		if r.Email == "" {
			return errSkipped
		}
		if env.Email == nil {
			return errors.New("email sender not configured")
		}
		if subject == "" {
			subject = "Booking update"
		}
		return env.Email.SendEmail([]string{r.Email}, subject, msg)
	case ChannelWhatsApp:
		if r.Phone == "" {
			return errSkipped
		}
		if env.WhatsApp == nil {
			return errors.New("whatsapp sender not configured")
		}
		return env.WhatsApp.SendMessage(ctx, r.Phone, msg)
	default:
		return errSkipped
	}
}

func replacePlaceholders(template string, r NotificationRecipient, args SendNotificationArgs) string {
	return strings.NewReplacer(
		"$name", r.Name,
		"$email", r.Email,
		"$booking_number", args.BookingNumber,
		"$status", args.BookingStatus,
		"$reference", args.Reference,
		"$pnr", args.PNR,
		"$route", args.Route,
		"$travel_date", args.TravelDate,
		"$amount", args.Amount,
		"$message", args.Message,
	).Replace(template)
}
