package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"andaman_booking_echo/internal/booking"
	"andaman_booking_echo/internal/models"
)

const (
	defaultAdminPageSize = 50
	maxAdminPageSize     = 200
)

// AdminHandler is the support desk's view of bookings that need a human.
type AdminHandler struct {
	db         *gorm.DB
	log        *logrus.Logger
	reconciler *booking.Reconciler
}

func NewAdminHandler(db *gorm.DB, log *logrus.Logger, reconciler *booking.Reconciler) *AdminHandler {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &AdminHandler{db: db, log: log, reconciler: reconciler}
}

// ListBookings handles GET /api/admin/bookings?status=&limit=.
func (h *AdminHandler) ListBookings(c echo.Context) error {
	limit := defaultAdminPageSize
	if v := c.QueryParam("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			return echo.NewHTTPError(http.StatusBadRequest, "limit must be a positive integer")
		}
		limit = min(n, maxAdminPageSize)
	}

	q := h.db.WithContext(c.Request().Context()).Preload("Items").Order("created_at DESC").Limit(limit)
	if status := c.QueryParam("status"); status != "" {
		switch models.BookingStatus(status) {
		case models.BookingStatusConfirmed, models.BookingStatusPending,
			models.BookingStatusFailed, models.BookingStatusCancelled:
		default:
			return echo.NewHTTPError(http.StatusBadRequest, "Unknown booking status")
		}
		q = q.Where("status = ?", status)
	}

	var bookings []models.BookingRecord
	if err := q.Find(&bookings).Error; err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "Failed to load bookings").SetInternal(err)
	}
	return c.JSON(http.StatusOK, map[string]interface{}{"success": true, "data": bookings})
}

// GetBooking handles GET /api/admin/bookings/:id.
func (h *AdminHandler) GetBooking(c echo.Context) error {
	id, err := bookingID(c)
	if err != nil {
		return err
	}
	var rec models.BookingRecord
	err = h.db.WithContext(c.Request().Context()).Preload("Items").Preload("Passengers").First(&rec, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return echo.NewHTTPError(http.StatusNotFound, "Booking not found")
	}
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, map[string]interface{}{"success": true, "data": rec})
}

// RetryBooking handles POST /api/admin/bookings/:id/retry.
func (h *AdminHandler) RetryBooking(c echo.Context) error {
	id, err := bookingID(c)
	if err != nil {
		return err
	}

	out, err := h.reconciler.RetryProvider(c.Request().Context(), id)
	switch {
	case errors.Is(err, booking.ErrBookingNotFound):
		return echo.NewHTTPError(http.StatusNotFound, "Booking not found")
	case errors.Is(err, booking.ErrNothingToRetry):
		return echo.NewHTTPError(http.StatusConflict, "Booking has no failed ferry reservation")
	case booking.IsBookingDataError(err):
		return echo.NewHTTPError(http.StatusUnprocessableEntity, "Stored booking data is invalid").SetInternal(err)
	case err != nil:
		return err
	}

	h.log.WithFields(logrus.Fields{
		"booking_number": out.Booking.BookingNumber,
		"admin":          c.Get("userEmail"),
		"success":        out.Provider.Success,
	}).Info("admin retried ferry booking")

	resp := map[string]interface{}{
		"success": out.Provider.Success,
		"data":    out.Booking,
	}
	if out.Classification != nil {
		resp["errorType"] = out.Classification.ErrorType
		resp["requiresRefund"] = out.Classification.RequiresRefund
		resp["message"] = out.Provider.Error
	}
	return c.JSON(http.StatusOK, resp)
}

type refundRequest struct {
	Amount          *decimal.Decimal `json:"amount"`
	Reason          string           `json:"reason" validate:"required"`
	GatewayRefundID string           `json:"gatewayRefundId"`
}

// RefundBooking handles POST /api/admin/bookings/:id/refund. It records a
// refund already issued at the gateway; it does not move money.
func (h *AdminHandler) RefundBooking(c echo.Context) error {
	id, err := bookingID(c)
	if err != nil {
		return err
	}
	var req refundRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "Invalid request body")
	}
	if err := c.Validate(&req); err != nil {
		return err
	}

	ctx := c.Request().Context()
	var rec models.BookingRecord
	err = h.db.WithContext(ctx).First(&rec, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return echo.NewHTTPError(http.StatusNotFound, "Booking not found")
	}
	if err != nil {
		return err
	}
	if rec.PaymentStatus == models.BookingPaymentRefunded {
		return echo.NewHTTPError(http.StatusConflict, "Booking is already refunded")
	}

	amount := rec.Total
	if req.Amount != nil {
		if !req.Amount.IsPositive() || req.Amount.GreaterThan(rec.Total) {
			return echo.NewHTTPError(http.StatusBadRequest, "amount must be positive and at most the booking total")
		}
		amount = *req.Amount
	}

	var payment models.PaymentRecord
	if err := h.db.WithContext(ctx).First(&payment, rec.PaymentID).Error; err != nil {
		return err
	}
	refundedBy, _ := c.Get("userEmail").(string)
	refund := &models.Refund{
		Amount:          amount,
		Gateway:         payment.Gateway,
		GatewayRefundID: req.GatewayRefundID,
		Reason:          req.Reason,
		RefundedBy:      refundedBy,
	}
	if err := h.reconciler.MarkRefunded(ctx, &rec, refund); err != nil {
		return err
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"success": true,
		"data":    rec,
		"refund":  refund,
	})
}

func bookingID(c echo.Context) (uint, error) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil || id == 0 {
		return 0, echo.NewHTTPError(http.StatusBadRequest, "Invalid booking id")
	}
	return uint(id), nil
}
