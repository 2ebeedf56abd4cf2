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

// MidtransInitiate handles POST /api/payments/midtrans/initiate.
func (h *PaymentHandler) MidtransInitiate(c echo.Context) error {
	if h.midtrans == nil {
		return echo.NewHTTPError(http.StatusServiceUnavailable, "Midtrans is not configured")
	}
	req, err := h.bindCheckout(c)
	if err != nil {
		return err
	}
	if req.Currency == "INR" {
		req.Currency = "IDR"
	}

	ctx := c.Request().Context()
	payment, err := h.createPayment(ctx, models.PaymentGatewayMidtrans, req)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "Failed to create payment").SetInternal(err)
	}

	snapResp, err := h.midtrans.CreateTransaction(payment.MerchantOrderID, payment.Amount)
	if err != nil {
		h.log.WithField("merchant_order_id", payment.MerchantOrderID).WithError(err).Error("midtrans create transaction failed")
		return echo.NewHTTPError(http.StatusBadGateway, "Failed to initiate payment").SetInternal(err)
	}

	return c.JSON(http.StatusOK, map[string]interface{}{
		"success":         true,
		"merchantOrderId": payment.MerchantOrderID,
		"token":           snapResp.Token,
		"redirectUrl":     snapResp.RedirectURL,
	})
}

type midtransNotification struct {
	OrderID           string `json:"order_id"`
	TransactionID     string `json:"transaction_id"`
	TransactionStatus string `json:"transaction_status"`
	FraudStatus       string `json:"fraud_status"`
	StatusCode        string `json:"status_code"`
	GrossAmount       string `json:"gross_amount"`
	SignatureKey      string `json:"signature_key"`
}

// MidtransNotification handles POST /api/payments/midtrans/notification.
func (h *PaymentHandler) MidtransNotification(c echo.Context) error {
	if h.midtrans == nil {
		return echo.NewHTTPError(http.StatusServiceUnavailable, "Midtrans is not configured")
	}
	body, err := readBody(c)
	if err != nil {
		return err
	}
	var n midtransNotification
	if err := json.Unmarshal(body, &n); err != nil || n.OrderID == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "Invalid notification body")
	}

	ctx := c.Request().Context()
	verified := h.midtrans.VerifySignature(n.OrderID, n.StatusCode, n.GrossAmount, n.SignatureKey)
	h.recordCallback(ctx, models.PaymentGatewayMidtrans, n.OrderID, n.TransactionStatus, verified, body)
	if !verified {
		h.log.WithField("merchant_order_id", n.OrderID).Warn("midtrans notification with bad signature")
		return echo.NewHTTPError(http.StatusUnauthorized, "Invalid signature")
	}

	payment, err := h.reconciler.FindPayment(ctx, n.OrderID)
	if errors.Is(err, booking.ErrPaymentNotFound) {
		return echo.NewHTTPError(http.StatusNotFound, "Payment not found")
	}
	if err != nil {
		return err
	}

	status := &gateway.Status{
		State:         gateway.MidtransState(n.TransactionStatus, n.FraudStatus),
		RawState:      n.TransactionStatus,
		TransactionID: n.TransactionID,
	}
	fields := logrus.Fields{"merchant_order_id": n.OrderID, "state": status.State}
	if _, err := h.applyState(ctx, payment, status); err != nil {
		h.log.WithFields(fields).WithError(err).Error("midtrans notification reconciliation failed")
	} else {
		h.log.WithFields(fields).Info("midtrans notification processed")
	}
	return c.JSON(http.StatusOK, map[string]interface{}{"success": true})
}
