package handlers

import (
	"errors"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"andaman_booking_echo/internal/booking"
	"andaman_booking_echo/internal/gateway"
	"andaman_booking_echo/internal/models"
)

const errorTypeRecordFailed = "BOOKING_RECORD_FAILED"

// StatusResponse is the body of the status endpoint. Business failures are a
// 200 with success false; the HTTP call itself succeeded.
type StatusResponse struct {
	Success         bool                    `json:"success"`
	Status          string                  `json:"status"`
	TransactionID   string                  `json:"transactionId,omitempty"`
	Booking         *BookingSummary         `json:"booking,omitempty"`
	ProviderBooking *ProviderBookingSummary `json:"providerBooking,omitempty"`
	Message         string                  `json:"message"`
	ErrorType       string                  `json:"errorType,omitempty"`
	RequiresRefund  bool                    `json:"requiresRefund,omitempty"`
	Details         string                  `json:"details,omitempty"`
}

type BookingSummary struct {
	ID            uint                        `json:"id"`
	BookingNumber string                      `json:"bookingNumber"`
	BookingType   models.BookingType          `json:"bookingType"`
	Status        models.BookingStatus        `json:"status"`
	PaymentStatus models.BookingPaymentStatus `json:"paymentStatus"`
	CustomerName  string                      `json:"customerName,omitempty"`
	CustomerEmail string                      `json:"customerEmail,omitempty"`
	Total         decimal.Decimal             `json:"total"`
	Currency      string                      `json:"currency"`
}

type ProviderBookingSummary struct {
	Operator          string                       `json:"operator,omitempty"`
	BookingStatus     models.ProviderBookingStatus `json:"bookingStatus"`
	ProviderBookingID string                       `json:"providerBookingId,omitempty"`
	PNR               string                       `json:"pnr,omitempty"`
	ErrorMessage      string                       `json:"errorMessage,omitempty"`
	ErrorType         string                       `json:"errorType,omitempty"`
	RequiresRefund    bool                         `json:"requiresRefund"`
}

func summarize(rec *models.BookingRecord) (*BookingSummary, *ProviderBookingSummary) {
	if rec == nil {
		return nil, nil
	}
	b := &BookingSummary{
		ID:            rec.ID,
		BookingNumber: rec.BookingNumber,
		BookingType:   rec.BookingType,
		Status:        rec.Status,
		PaymentStatus: rec.PaymentStatus,
		CustomerName:  rec.CustomerName,
		CustomerEmail: rec.CustomerEmail,
		Total:         rec.Total,
		Currency:      rec.Currency,
	}
	item := rec.FerryItem()
	if item == nil {
		return b, nil
	}
	pb := item.ProviderBooking
	return b, &ProviderBookingSummary{
		Operator:          item.Operator,
		BookingStatus:     pb.BookingStatus,
		ProviderBookingID: pb.ProviderBookingID,
		PNR:               pb.PNR,
		ErrorMessage:      pb.ErrorMessage,
		ErrorType:         pb.ErrorType,
		RequiresRefund:    pb.RequiresRefund,
	}
}

// PhonePeStatus handles GET /api/payments/phonepe/status. It is safe to call
// any number of times for the same order.
func (h *PaymentHandler) PhonePeStatus(c echo.Context) error {
	id := strings.TrimSpace(c.QueryParam("merchantTransactionId"))
	if id == "" {
		return c.JSON(http.StatusBadRequest, StatusResponse{
			Message: "merchantTransactionId is required",
		})
	}

	out, err := h.reconciler.Reconcile(c.Request().Context(), id)
	return h.respondOutcome(c, id, out, err)
}

// respondOutcome renders a reconciliation result, or its failure, for the
// polling client.
func (h *PaymentHandler) respondOutcome(c echo.Context, merchantOrderID string, out *booking.Outcome, err error) error {
	txnID := ""
	if out != nil {
		txnID = out.TransactionID
	}
	fields := logrus.Fields{"merchant_order_id": merchantOrderID}

	switch {
	case err == nil:
	case errors.Is(err, booking.ErrPaymentNotFound):
		return c.JSON(http.StatusNotFound, StatusResponse{
			Message: "Payment not found",
		})
	case booking.IsBookingDataError(err):
		return c.JSON(http.StatusBadRequest, StatusResponse{
			Status:        string(gateway.StateCompleted),
			TransactionID: txnID,
			Message:       "Payment received, but the booking details could not be read. Our team will contact you.",
			ErrorType:     string(booking.ErrorTypeTechnical),
			Details:       err.Error(),
		})
	case errors.Is(err, booking.ErrRecordWrite):
		h.log.WithFields(fields).WithError(err).Error("payment captured but booking record not written")
		return c.JSON(http.StatusInternalServerError, StatusResponse{
			Status:        string(gateway.StateCompleted),
			TransactionID: txnID,
			Message: "Your payment was received but we could not save your booking. " +
				"Please contact support with transaction id " + txnID + ".",
			ErrorType: errorTypeRecordFailed,
			Details:   err.Error(),
		})
	case errors.Is(err, gateway.ErrStatusCheckFailed), errors.Is(err, gateway.ErrUnknownGateway):
		h.log.WithFields(fields).WithError(err).Warn("payment status check failed")
		return c.JSON(http.StatusBadGateway, StatusResponse{
			Status:  "UNKNOWN",
			Message: "Unable to verify payment status right now",
			Details: err.Error(),
		})
	default:
		h.log.WithFields(fields).WithError(err).Error("reconciliation failed")
		return c.JSON(http.StatusServiceUnavailable, StatusResponse{
			Status:  "UNKNOWN",
			Message: "Payment is being processed, please retry shortly",
		})
	}

	resp := StatusResponse{
		Status:        string(out.State),
		TransactionID: txnID,
	}
	switch out.State {
	case gateway.StatePending:
		resp.Message = "Payment is pending"
		return c.JSON(http.StatusOK, resp)
	case gateway.StateFailed:
		resp.Message = "Payment failed"
		return c.JSON(http.StatusOK, resp)
	}

	resp.Booking, resp.ProviderBooking = summarize(out.Booking)
	if out.Classification != nil {
		resp.ErrorType = string(out.Classification.ErrorType)
		resp.RequiresRefund = out.Classification.RequiresRefund
		resp.Message = out.Classification.Render(bookingRef(out.Booking), txnID)
		if out.Provider != nil {
			resp.Details = out.Provider.Error
		}
		return c.JSON(http.StatusOK, resp)
	}

	resp.Success = true
	resp.Message = "Booking confirmed"
	return c.JSON(http.StatusOK, resp)
}

func bookingRef(rec *models.BookingRecord) string {
	if rec == nil {
		return ""
	}
	return rec.BookingNumber
}
