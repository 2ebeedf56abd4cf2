package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strconv"

	"github.com/spf13/cobra"

	"andaman_booking_echo/internal/booking"
	"andaman_booking_echo/internal/tasks"
)

func reconcileCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "reconcile <merchantOrderId>",
		Short: "Check a payment with its gateway and book the ferry if it was captured",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp()
			if err != nil {
				return err
			}
			defer a.Close()

			out, err := a.Reconciler.Reconcile(cmd.Context(), args[0])
			if out != nil {
				if perr := printOutcome(cmd.OutOrStdout(), out); perr != nil {
					return perr
				}
			}
			return err
		},
	}
}

func retryCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "retry <bookingId>",
		Short: "Retry the operator booking for a paid booking that is still pending",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := strconv.ParseUint(args[0], 10, 64)
			if err != nil {
				return fmt.Errorf("invalid booking id %q", args[0])
			}

			a, err := openApp()
			if err != nil {
				return err
			}
			defer a.Close()

			out, err := a.Reconciler.RetryProvider(cmd.Context(), uint(id))
			if err != nil {
				return err
			}
			return printOutcome(cmd.OutOrStdout(), out)
		},
	}
}

func runTasksCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "run-tasks",
		Short: "Run every due scheduled task once and exit",
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := openApp()
			if err != nil {
				return err
			}
			defer a.Close()

			registry := tasks.NewRegistry()
			tasks.DefineTasks(registry)
			n := tasks.NewRunner(registry, a.TaskEnv()).ProcessDue(cmd.Context())
			fmt.Fprintf(cmd.OutOrStdout(), "Ran %d task(s)\n", n)
			return nil
		},
	}
}

type outcomeView struct {
	MerchantOrderID string `json:"merchantOrderId"`
	State           string `json:"state"`
	TransactionID   string `json:"transactionId,omitempty"`
	BookingID       uint   `json:"bookingId,omitempty"`
	BookingNumber   string `json:"bookingNumber,omitempty"`
	BookingStatus   string `json:"bookingStatus,omitempty"`
	PNR             string `json:"pnr,omitempty"`
	ProviderError   string `json:"providerError,omitempty"`
	ErrorType       string `json:"errorType,omitempty"`
	RequiresRefund  bool   `json:"requiresRefund,omitempty"`
	Duplicate       bool   `json:"duplicate,omitempty"`
}

func viewOutcome(out *booking.Outcome) outcomeView {
	v := outcomeView{
		State:         string(out.State),
		TransactionID: out.TransactionID,
		Duplicate:     out.Duplicate,
	}
	if out.Payment != nil {
		v.MerchantOrderID = out.Payment.MerchantOrderID
	}
	if out.Booking != nil {
		v.BookingID = out.Booking.ID
		v.BookingNumber = out.Booking.BookingNumber
		v.BookingStatus = string(out.Booking.Status)
	}
	if out.Provider != nil {
		v.PNR = out.Provider.PNR
		v.ProviderError = out.Provider.Error
	}
	if out.Classification != nil {
		v.ErrorType = string(out.Classification.ErrorType)
		v.RequiresRefund = out.Classification.RequiresRefund
	}
	return v
}

func printOutcome(w io.Writer, out *booking.Outcome) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(viewOutcome(out))
}
