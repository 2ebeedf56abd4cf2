// Command bookingctl is the operator tool for the booking service: it
// schedules worker tasks, re-runs reconciliation and polls payment status.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"andaman_booking_echo/internal/app"
	"andaman_booking_echo/internal/config"
	"andaman_booking_echo/internal/logging"
)

var Version = "dev"

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	err := rootCmd().ExecuteContext(ctx)
	stop()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "bookingctl",
		Short:         "Operate the ferry booking service",
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.AddCommand(scheduleCmd())
	root.AddCommand(reconcileCmd())
	root.AddCommand(retryCmd())
	root.AddCommand(runTasksCmd())
	root.AddCommand(pollCmd())
	root.AddCommand(whatsappCmd())
	return root
}

func loadConfig() (*config.Config, *logrus.Logger, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, err
	}
	return cfg, logging.New(cfg.LogLevel, cfg.LogFormat), nil
}

func openApp() (*app.App, error) {
	cfg, log, err := loadConfig()
	if err != nil {
		return nil, err
	}
	return app.New(cfg, log, app.Options{})
}
