package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/sirupsen/logrus"

	"andaman_booking_echo/internal/booking"
	"andaman_booking_echo/internal/gateway"
	"andaman_booking_echo/internal/models"
)

// PhonePeInitiate handles POST /api/payments/phonepe/initiate.
func (h *PaymentHandler) PhonePeInitiate(c echo.Context) error {
	if h.phonepe == nil {
		return echo.NewHTTPError(http.StatusServiceUnavailable, "PhonePe is not configured")
	}
	req, err := h.bindCheckout(c)
	if err != nil {
		return err
	}

	ctx := c.Request().Context()
	payment, err := h.createPayment(ctx, models.PaymentGatewayPhonePe, req)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "Failed to create payment").SetInternal(err)
	}

	url, err := h.phonepe.Initiate(ctx, gateway.PayRequest{
		MerchantTransactionID: payment.MerchantOrderID,
		MerchantUserID:        "MU" + payment.MerchantOrderID,
		Amount:                payment.Amount,
		MobileNumber:          payment.CustomerPhone,
		RedirectURL:           h.appURL + "/booking/status?merchantTransactionId=" + payment.MerchantOrderID,
	})
	if err != nil {
		h.log.WithField("merchant_order_id", payment.MerchantOrderID).WithError(err).Error("phonepe initiate failed")
		return echo.NewHTTPError(http.StatusBadGateway, "Failed to initiate payment").SetInternal(err)
	}

	return c.JSON(http.StatusOK, map[string]interface{}{
		"success":               true,
		"merchantTransactionId": payment.MerchantOrderID,
		"redirectUrl":           url,
	})
}

type phonePeCallback struct {
	Response string `json:"response"`
}

// PhonePeWebhook handles the server-to-server callback. Every body is logged
// to the callback history, verified or not.
func (h *PaymentHandler) PhonePeWebhook(c echo.Context) error {
	if h.phonepe == nil {
		return echo.NewHTTPError(http.StatusServiceUnavailable, "PhonePe is not configured")
	}
	body, err := readBody(c)
	if err != nil {
		return err
	}
	var cb phonePeCallback
	if err := json.Unmarshal(body, &cb); err != nil || cb.Response == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "Invalid callback body")
	}

	ctx := c.Request().Context()
	verified := h.phonepe.VerifyCallback(cb.Response, c.Request().Header.Get("X-VERIFY"))
	orderID, status, decodeErr := h.phonepe.DecodeCallback(cb.Response)
	event := "callback"
	if status != nil {
		event = status.RawState
	}
	h.recordCallback(ctx, models.PaymentGatewayPhonePe, orderID, event, verified, body)

	if !verified {
		h.log.WithField("merchant_order_id", orderID).Warn("phonepe callback with bad checksum")
		return echo.NewHTTPError(http.StatusUnauthorized, "Invalid checksum")
	}
	if decodeErr != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "Invalid callback payload").SetInternal(decodeErr)
	}

	payment, err := h.reconciler.FindPayment(ctx, orderID)
	if errors.Is(err, booking.ErrPaymentNotFound) {
		return echo.NewHTTPError(http.StatusNotFound, "Payment not found")
	}
	if err != nil {
		return err
	}

	out, err := h.applyState(ctx, payment, status)
	fields := logrus.Fields{"merchant_order_id": orderID, "state": status.State}
	if err != nil {
		// The poller and the sweep task will retry; the gateway need not.
		h.log.WithFields(fields).WithError(err).Error("phonepe callback reconciliation failed")
	} else {
		h.log.WithFields(fields).Info("phonepe callback processed")
	}

	resp := map[string]interface{}{"success": true}
	if out != nil && out.Booking != nil {
		resp["bookingNumber"] = out.Booking.BookingNumber
	}
	return c.JSON(http.StatusOK, resp)
}
