package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"andaman_booking_echo/internal/poller"
)

func pollCmd() *cobra.Command {
	var (
		baseURL    string
		interval   time.Duration
		maxRetries int
		timeout    time.Duration
	)

	cmd := &cobra.Command{
		Use:   "poll <merchantOrderId>",
		Short: "Poll the payment status endpoint the way the return page does",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			p := poller.New(args[0], poller.NewHTTPChecker(baseURL, timeout),
				poller.WithConfig(poller.Config{MaxRetries: maxRetries, Interval: interval}),
			)
			defer p.Stop()

			p.Start(cmd.Context())
			select {
			case <-p.Done():
			case <-cmd.Context().Done():
				return cmd.Context().Err()
			}

			fmt.Fprintf(out, "Final state %s after %d check(s)\n", p.State(), p.Attempts())
			if last := p.Last(); last != nil {
				if last.Message != "" {
					fmt.Fprintln(out, last.Message)
				}
				if last.ErrorType != "" {
					fmt.Fprintf(out, "Error type %s, refund required: %t\n", last.ErrorType, last.RequiresRefund)
				}
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&baseURL, "base-url", "http://localhost:8080", "Booking service URL")
	cmd.Flags().DurationVar(&interval, "interval", poller.DefaultInterval, "Delay between checks")
	cmd.Flags().IntVar(&maxRetries, "max-retries", poller.DefaultMaxRetries, "Checks before giving up")
	cmd.Flags().DurationVar(&timeout, "timeout", 10*time.Second, "Per-request timeout")
	return cmd
}
