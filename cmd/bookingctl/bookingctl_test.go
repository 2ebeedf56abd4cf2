package main

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"andaman_booking_echo/internal/booking"
	"andaman_booking_echo/internal/gateway"
	"andaman_booking_echo/internal/models"
)

func TestParseDue(t *testing.T) {
	jakarta := time.FixedZone("WIB", 7*3600)

	tests := []struct {
		name    string
		in      string
		want    time.Time
		wantErr bool
	}{
		{name: "rfc3339", in: "2026-11-01T09:00:00Z", want: time.Date(2026, 11, 1, 9, 0, 0, 0, time.UTC)},
		{name: "local layout", in: "2026-11-01 09:00", want: time.Date(2026, 11, 1, 9, 0, 0, 0, jakarta)},
		{name: "date only", in: "2026-11-01", wantErr: true},
		{name: "empty", in: "", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := parseDue(tt.in, jakarta)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.True(t, tt.want.Equal(got), "got %s", got)
		})
	}
}

func TestBuildTask(t *testing.T) {
	tests := []struct {
		name       string
		arguments  string
		taskType   string
		recurring  string
		maxAttempt int
		wantErr    string
	}{
		{name: "one time", arguments: `{"message":"hi"}`, taskType: "onetime", maxAttempt: 3},
		{name: "recurring", arguments: `{}`, taskType: "recurring", recurring: "FREQ=MINUTELY;INTERVAL=15", maxAttempt: 1},
		{name: "bad json", arguments: `{`, taskType: "onetime", maxAttempt: 3, wantErr: "invalid JSON"},
		{name: "recurring without rule", arguments: `{}`, taskType: "recurring", maxAttempt: 1, wantErr: "--recurring"},
		{name: "rule on one time", arguments: `{}`, taskType: "onetime", recurring: "FREQ=DAILY", maxAttempt: 1, wantErr: "--type recurring"},
		{name: "unparsable rule", arguments: `{}`, taskType: "recurring", recurring: "EVERY=SOMETIMES", maxAttempt: 1, wantErr: "invalid recurrence"},
		{name: "unknown type", arguments: `{}`, taskType: "weekly", maxAttempt: 1, wantErr: "unknown task type"},
		{name: "zero attempts", arguments: `{}`, taskType: "onetime", maxAttempt: 0, wantErr: "max-attempt"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			task, err := buildTask("log_info", tt.arguments, "2026-11-01T09:00:00Z", tt.taskType, tt.recurring, tt.maxAttempt, time.UTC)
			if tt.wantErr != "" {
				assert.ErrorContains(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, "log_info", task.TaskName)
			assert.Equal(t, models.ScheduledTaskStatusActive, task.Status)
			assert.Equal(t, models.ScheduledTaskType(tt.taskType), task.TaskType)
			assert.Equal(t, tt.maxAttempt, task.MaxAttempt)
		})
	}
}

func TestViewOutcome(t *testing.T) {
	out := &booking.Outcome{
		Payment:        &models.PaymentRecord{MerchantOrderID: "AE_1"},
		State:          gateway.StateCompleted,
		TransactionID:  "T1",
		Booking:        &models.BookingRecord{ID: 7, BookingNumber: "AB12345678", Status: models.BookingStatusPending},
		Provider:       &booking.ProviderBookingResult{Error: "No seats available"},
		Classification: &booking.Classification{ErrorType: booking.ErrorTypeSeatUnavailable, RequiresRefund: true},
	}

	var buf bytes.Buffer
	require.NoError(t, printOutcome(&buf, out))

	assert.JSONEq(t, `{
		"merchantOrderId": "AE_1",
		"state": "COMPLETED",
		"transactionId": "T1",
		"bookingId": 7,
		"bookingNumber": "AB12345678",
		"bookingStatus": "pending",
		"providerError": "No seats available",
		"errorType": "SEAT_UNAVAILABLE",
		"requiresRefund": true
	}`, buf.String())
}

func TestPollCommand(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "AE_1", r.URL.Query().Get("merchantTransactionId"))
		w.Header().Set("Content-Type", "application/json")
		if calls.Add(1) < 3 {
			_, _ = w.Write([]byte(`{"success":false,"status":"PENDING"}`))
			return
		}
		_, _ = w.Write([]byte(`{"success":true,"status":"COMPLETED","message":"Booking confirmed"}`))
	}))
	t.Cleanup(srv.Close)

	cmd := rootCmd()
	var buf bytes.Buffer
	cmd.SetOut(&buf)
	cmd.SetArgs([]string{"poll", "AE_1", "--base-url", srv.URL, "--interval", "10ms"})

	require.NoError(t, cmd.Execute())
	assert.Contains(t, buf.String(), "Final state success after 3 check(s)")
	assert.Contains(t, buf.String(), "Booking confirmed")
}

func TestPollCommandGivesUp(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"success":false,"status":"PENDING"}`))
	}))
	t.Cleanup(srv.Close)

	cmd := rootCmd()
	var buf bytes.Buffer
	cmd.SetOut(&buf)
	cmd.SetArgs([]string{"poll", "AE_1", "--base-url", srv.URL, "--interval", "5ms", "--max-retries", "2"})

	require.NoError(t, cmd.Execute())
	assert.Contains(t, buf.String(), "Final state pending after 2 check(s)")
}

func TestCommandsRequireArguments(t *testing.T) {
	for _, args := range [][]string{
		{"reconcile"},
		{"retry"},
		{"poll"},
		{"schedule", "--due", "2026-11-01 09:00"},
		{"whatsapp"},
	} {
		t.Run(args[0], func(t *testing.T) {
			cmd := rootCmd()
			cmd.SetOut(&bytes.Buffer{})
			cmd.SetErr(&bytes.Buffer{})
			cmd.SetArgs(args)
			assert.Error(t, cmd.Execute())
		})
	}
}
