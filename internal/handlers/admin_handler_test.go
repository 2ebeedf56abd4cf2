package handlers

import (
	"context"
	"fmt"
	"net/http"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"andaman_booking_echo/internal/booking"
	"andaman_booking_echo/internal/models"
	"andaman_booking_echo/internal/testutil"
)

func newAdminEnv(t *testing.T) *env {
	e := newEnv(t)
	h := NewAdminHandler(e.db, testutil.QuietLogger(), e.reconciler)
	admin := e.echo.Group("/api/admin", func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			c.Set("userEmail", "ops@example.com")
			return next(c)
		}
	})
	admin.GET("/bookings", h.ListBookings)
	admin.GET("/bookings/:id", h.GetBooking)
	admin.POST("/bookings/:id/retry", h.RetryBooking)
	admin.POST("/bookings/:id/refund", h.RefundBooking)
	return e
}

// failedBooking reconciles a payment whose operator call failed and returns
// the pending record.
func failedBooking(t *testing.T, e *env) models.BookingRecord {
	t.Helper()
	e.operator.setResult(&booking.ProviderBookingResult{Success: false, Error: "Internal server error"})
	e.createPayment(t, "AE_123", ferryPayload)
	_, err := e.reconciler.Reconcile(context.Background(), "AE_123")
	require.NoError(t, err)
	rec := e.onlyBooking(t)
	require.Equal(t, models.BookingStatusPending, rec.Status)
	return rec
}

func TestAdminListBookings(t *testing.T) {
	e := newAdminEnv(t)
	failedBooking(t, e)

	rec := e.serve(http.MethodGet, "/api/admin/bookings?status=pending", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	resp := decode[struct {
		Data []models.BookingRecord `json:"data"`
	}](t, rec)
	require.Len(t, resp.Data, 1)
	require.Len(t, resp.Data[0].Items, 1)
	assert.Equal(t, "TECHNICAL_ERROR", resp.Data[0].Items[0].ProviderBooking.ErrorType)

	rec = e.serve(http.MethodGet, "/api/admin/bookings?status=confirmed", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, decode[struct {
		Data []models.BookingRecord `json:"data"`
	}](t, rec).Data)

	assert.Equal(t, http.StatusBadRequest, e.serve(http.MethodGet, "/api/admin/bookings?status=lost", "", nil).Code)
	assert.Equal(t, http.StatusBadRequest, e.serve(http.MethodGet, "/api/admin/bookings?limit=0", "", nil).Code)
}

func TestAdminGetBooking(t *testing.T) {
	e := newAdminEnv(t)
	b := failedBooking(t, e)

	rec := e.serve(http.MethodGet, fmt.Sprintf("/api/admin/bookings/%d", b.ID), "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	got := decode[struct {
		Data models.BookingRecord `json:"data"`
	}](t, rec)
	assert.Equal(t, b.BookingNumber, got.Data.BookingNumber)
	assert.Len(t, got.Data.Passengers, 2)

	assert.Equal(t, http.StatusNotFound, e.serve(http.MethodGet, "/api/admin/bookings/999", "", nil).Code)
	assert.Equal(t, http.StatusBadRequest, e.serve(http.MethodGet, "/api/admin/bookings/abc", "", nil).Code)
}

func TestAdminRetryBooking(t *testing.T) {
	e := newAdminEnv(t)
	b := failedBooking(t, e)
	e.operator.setResult(&booking.ProviderBookingResult{Success: true, PNR: "GO999"})

	rec := e.serve(http.MethodPost, fmt.Sprintf("/api/admin/bookings/%d/retry", b.ID), "", nil)

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.True(t, decode[map[string]interface{}](t, rec)["success"].(bool))
	stored := e.onlyBooking(t)
	assert.Equal(t, models.BookingStatusConfirmed, stored.Status)
	pb := stored.FerryItem().ProviderBooking
	assert.Equal(t, "GO999", pb.PNR)
	assert.Equal(t, "Internal server error", pb.ErrorMessage)

	rec = e.serve(http.MethodPost, fmt.Sprintf("/api/admin/bookings/%d/retry", b.ID), "", nil)
	assert.Equal(t, http.StatusConflict, rec.Code)

	assert.Equal(t, http.StatusNotFound, e.serve(http.MethodPost, "/api/admin/bookings/999/retry", "", nil).Code)
}

func TestAdminRetryStillFailing(t *testing.T) {
	e := newAdminEnv(t)
	b := failedBooking(t, e)
	e.operator.setResult(&booking.ProviderBookingResult{Success: false, Error: "No seats available"})

	rec := e.serve(http.MethodPost, fmt.Sprintf("/api/admin/bookings/%d/retry", b.ID), "", nil)

	require.Equal(t, http.StatusOK, rec.Code)
	resp := decode[map[string]interface{}](t, rec)
	assert.False(t, resp["success"].(bool))
	assert.Equal(t, "SEAT_UNAVAILABLE", resp["errorType"])
	assert.Equal(t, models.BookingStatusPending, e.onlyBooking(t).Status)
}

func TestAdminRefundBooking(t *testing.T) {
	e := newAdminEnv(t)
	b := failedBooking(t, e)
	path := fmt.Sprintf("/api/admin/bookings/%d/refund", b.ID)

	assert.Equal(t, http.StatusBadRequest, e.serve(http.MethodPost, path, `{}`, nil).Code)
	assert.Equal(t, http.StatusBadRequest, e.serve(http.MethodPost, path, `{"reason":"x","amount":"999999"}`, nil).Code)

	rec := e.serve(http.MethodPost, path, `{"reason":"operator could not seat"}`, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	stored := e.onlyBooking(t)
	assert.Equal(t, models.BookingStatusCancelled, stored.Status)
	assert.Equal(t, models.BookingPaymentRefunded, stored.PaymentStatus)

	var refund models.Refund
	require.NoError(t, e.db.First(&refund).Error)
	assert.Equal(t, "ops@example.com", refund.RefundedBy)
	assert.True(t, decimal.NewFromInt(3000).Equal(refund.Amount))
	assert.Equal(t, models.PaymentGatewayPhonePe, refund.Gateway)

	assert.Equal(t, http.StatusConflict, e.serve(http.MethodPost, path, `{"reason":"again"}`, nil).Code)
}
