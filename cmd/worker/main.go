package main

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"

	"andaman_booking_echo/internal/app"
	"andaman_booking_echo/internal/config"
	"andaman_booking_echo/internal/logging"
	"andaman_booking_echo/internal/tasks"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logrus.Fatalf("Failed to load config: %v", err)
	}
	log := logging.New(cfg.LogLevel, cfg.LogFormat)

	a, err := app.New(cfg, log, app.Options{})
	if err != nil {
		log.Fatalf("Failed to initialise: %v", err)
	}
	defer a.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	registry := tasks.NewRegistry()
	tasks.DefineTasks(registry)

	sweep, created, err := tasks.EnsureRecurringTask(ctx, a.DB, tasks.DefaultRule)
	if err != nil {
		log.Fatalf("Failed to schedule reconciliation sweep: %v", err)
	}
	log.WithFields(logrus.Fields{"task_id": sweep.ID, "created": created, "due": sweep.Due}).Info("Reconciliation sweep scheduled")

	log.WithField("interval", cfg.WorkerInterval).Info("Worker started")
	tasks.NewRunner(registry, a.TaskEnv()).Run(ctx, cfg.WorkerInterval)
	log.Info("Worker stopped")
}
