package tasks

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"

	"andaman_booking_echo/internal/booking"
	"andaman_booking_echo/internal/models"
)

// ReconcilePendingArgs bounds the sweep. Payments younger than MinAgeMinutes
// are left to the browser poller.
type ReconcilePendingArgs struct {
	MinAgeMinutes int `json:"min_age_minutes"`
	MaxAgeHours   int `json:"max_age_hours"`
	Limit         int `json:"limit"`
}

func (a *ReconcilePendingArgs) defaults() {
	if a.MinAgeMinutes <= 0 {
		a.MinAgeMinutes = 10
	}
	if a.MaxAgeHours <= 0 {
		a.MaxAgeHours = 48
	}
	if a.Limit <= 0 {
		a.Limit = 50
	}
}

// ReconcilePendingTaskDef re-runs reconciliation for payments the customer
// abandoned: still pending at the gateway as far as we know, or captured but
// without a booking record.
type ReconcilePendingTaskDef struct{}

func (t *ReconcilePendingTaskDef) TaskID() string {
	return "reconcile_pending_payments"
}

// DefaultRule runs the sweep every fifteen minutes.
const DefaultRule = "FREQ=MINUTELY;INTERVAL=15"

func (t *ReconcilePendingTaskDef) CreateTask(args ReconcilePendingArgs, start time.Time, rule string) (*models.ScheduledTask, error) {
	return BuildScheduledTask(t.TaskID(), args, start, &rule, models.ScheduledTaskTypeRecurring, 1)
}

// EnsureRecurringTask creates the recurring sweep unless an active one exists.
func EnsureRecurringTask(ctx context.Context, db *gorm.DB, rule string) (*models.ScheduledTask, bool, error) {
	var existing models.ScheduledTask
	err := db.WithContext(ctx).
		Where("task_name = ? AND status = ?", ReconcilePendingTask.TaskID(), models.ScheduledTaskStatusActive).
		First(&existing).Error
	if err == nil {
		return &existing, false, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, false, err
	}

	task, err := ReconcilePendingTask.CreateTask(ReconcilePendingArgs{}, time.Now(), rule)
	if err != nil {
		return nil, false, err
	}
	if err := db.WithContext(ctx).Create(task).Error; err != nil {
		return nil, false, err
	}
	return task, true, nil
}

func (t *ReconcilePendingTaskDef) HandleExecution(ctx context.Context, env *Env, task models.ScheduledTask) (map[string]interface{}, error) {
	if env.Reconciler == nil {
		return nil, errors.New("reconciler not configured")
	}
	var args ReconcilePendingArgs
	if err := decodeArgs(task, &args); err != nil {
		return nil, err
	}
	args.defaults()

	now := time.Now()
	orphaned := env.DB.Model(&models.BookingRecord{}).Select("payment_id")

	var payments []models.PaymentRecord
	err := env.DB.WithContext(ctx).
		Where("(status = ? AND created_at <= ? AND created_at >= ?)",
			models.PaymentStatusPending,
			now.Add(-time.Duration(args.MinAgeMinutes)*time.Minute),
			now.Add(-time.Duration(args.MaxAgeHours)*time.Hour)).
		Or("(status = ? AND (reconcile_error IS NULL OR reconcile_error = '') AND id NOT IN (?))",
			models.PaymentStatusSuccess, orphaned).
		Order("created_at").
		Limit(args.Limit).
		Find(&payments).Error
	if err != nil {
		return nil, err
	}

	counts := map[string]int{}
	for _, p := range payments {
		if ctx.Err() != nil {
			break
		}
		out, err := env.Reconciler.Reconcile(ctx, p.MerchantOrderID)
		key := "error"
		switch {
		case err != nil:
			env.Log.WithField("merchant_order_id", p.MerchantOrderID).WithError(err).Warn("sweep reconcile failed")
		case out.Booking != nil && out.Duplicate:
			key = "duplicate"
		case out.Booking != nil:
			key = "booked"
		default:
			key = string(out.State)
		}
		counts[key]++
	}

	result := map[string]interface{}{"checked": len(payments)}
	for k, v := range counts {
		result[k] = v
	}
	return result, nil
}

var ReconcilePendingTask = &ReconcilePendingTaskDef{}

var _ PaymentReconciler = (*booking.Reconciler)(nil)
