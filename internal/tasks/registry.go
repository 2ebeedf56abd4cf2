package tasks

import (
	"context"
	"sync"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"andaman_booking_echo/internal/booking"
	"andaman_booking_echo/internal/models"
)

type EmailSender interface {
	SendEmail(to []string, subject, body string) error
}

type WhatsAppSender interface {
	SendMessage(ctx context.Context, chatID, text string) error
}

// PaymentReconciler is the part of the reconciler the sweep task drives.
type PaymentReconciler interface {
	Reconcile(ctx context.Context, merchantOrderID string) (*booking.Outcome, error)
}

// Env carries the dependencies task handlers share. Senders and the
// reconciler are optional; handlers that need a missing one fail the run.
type Env struct {
	DB         *gorm.DB
	Log        *logrus.Logger
	Email      EmailSender
	WhatsApp   WhatsAppSender
	Reconciler PaymentReconciler
}

// TaskHandler runs one scheduled task and returns a result map that is
// stored in the task history.
type TaskHandler func(ctx context.Context, env *Env, task models.ScheduledTask) (map[string]interface{}, error)

// Registry stores the mapping of task names to handlers
type Registry struct {
	mu       sync.RWMutex
	handlers map[string]TaskHandler
}

func NewRegistry() *Registry {
	return &Registry{handlers: make(map[string]TaskHandler)}
}

// Register adds a handler for a task name
func (r *Registry) Register(name string, handler TaskHandler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handlers[name] = handler
}

// Get retrieves a handler for a task name
func (r *Registry) Get(name string) (TaskHandler, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	handler, ok := r.handlers[name]
	return handler, ok
}
