package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"andaman_booking_echo/internal/booking"
	"andaman_booking_echo/internal/gateway"
	"andaman_booking_echo/internal/models"
)

// Razorpay handles POST /api/payments?action=create-order|verify|webhook.
func (h *PaymentHandler) Razorpay(c echo.Context) error {
	if h.razorpay == nil {
		return echo.NewHTTPError(http.StatusServiceUnavailable, "Razorpay is not configured")
	}
	switch c.QueryParam("action") {
	case "create-order":
		return h.razorpayCreateOrder(c)
	case "verify":
		return h.razorpayVerify(c)
	case "webhook":
		return h.razorpayWebhook(c)
	default:
		return echo.NewHTTPError(http.StatusBadRequest, "Unknown action")
	}
}

func (h *PaymentHandler) razorpayCreateOrder(c echo.Context) error {
	req, err := h.bindCheckout(c)
	if err != nil {
		return err
	}

	ctx := c.Request().Context()
	payment, err := h.createPayment(ctx, models.PaymentGatewayRazorpay, req)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "Failed to create payment").SetInternal(err)
	}

	order, err := h.razorpay.CreateOrder(ctx, payment.Amount, payment.Currency, payment.MerchantOrderID)
	if err != nil {
		h.log.WithField("merchant_order_id", payment.MerchantOrderID).WithError(err).Error("razorpay create order failed")
		return echo.NewHTTPError(http.StatusBadGateway, "Failed to create order").SetInternal(err)
	}
	if err := h.db.WithContext(ctx).Model(payment).Update("gateway_order_id", order.ID).Error; err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "Failed to store order").SetInternal(err)
	}

	return c.JSON(http.StatusOK, map[string]interface{}{
		"success":         true,
		"orderId":         order.ID,
		"amount":          order.Amount,
		"currency":        order.Currency,
		"keyId":           h.razorpay.KeyID(),
		"merchantOrderId": payment.MerchantOrderID,
	})
}

type razorpayVerifyRequest struct {
	OrderID   string `json:"razorpay_order_id" validate:"required"`
	PaymentID string `json:"razorpay_payment_id" validate:"required"`
	Signature string `json:"razorpay_signature" validate:"required"`
}

// razorpayVerify confirms a checkout from its signature and then books.
func (h *PaymentHandler) razorpayVerify(c echo.Context) error {
	var req razorpayVerifyRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "Invalid request body")
	}
	if err := c.Validate(&req); err != nil {
		return err
	}
	if !h.razorpay.VerifyPaymentSignature(req.OrderID, req.PaymentID, req.Signature) {
		h.log.WithField("razorpay_order_id", req.OrderID).Warn("razorpay signature mismatch")
		return echo.NewHTTPError(http.StatusBadRequest, "Invalid payment signature")
	}

	ctx := c.Request().Context()
	payment, err := h.findBy(ctx, "gateway_order_id", req.OrderID)
	if err != nil {
		return h.respondOutcome(c, req.OrderID, nil, err)
	}
	out, err := h.reconciler.ConfirmPaid(ctx, payment, req.PaymentID)
	return h.respondOutcome(c, payment.MerchantOrderID, out, err)
}

type razorpayEvent struct {
	Event   string `json:"event"`
	Payload struct {
		Payment *struct {
			Entity razorpayPaymentEntity `json:"entity"`
		} `json:"payment"`
		Refund *struct {
			Entity razorpayRefundEntity `json:"entity"`
		} `json:"refund"`
	} `json:"payload"`
}

type razorpayPaymentEntity struct {
	ID               string `json:"id"`
	OrderID          string `json:"order_id"`
	Status           string `json:"status"`
	Amount           int64  `json:"amount"`
	ErrorDescription string `json:"error_description"`
}

type razorpayRefundEntity struct {
	ID        string `json:"id"`
	PaymentID string `json:"payment_id"`
	Amount    int64  `json:"amount"`
	Status    string `json:"status"`
}

func (h *PaymentHandler) razorpayWebhook(c echo.Context) error {
	body, err := readBody(c)
	if err != nil {
		return err
	}
	verified := h.razorpay.VerifyWebhookSignature(body, c.Request().Header.Get("X-Razorpay-Signature"))

	var ev razorpayEvent
	decodeErr := json.Unmarshal(body, &ev)

	ctx := c.Request().Context()
	payment := h.webhookPayment(c, &ev)
	orderID := ""
	if payment != nil {
		orderID = payment.MerchantOrderID
	}
	h.recordCallback(ctx, models.PaymentGatewayRazorpay, orderID, ev.Event, verified, body)

	if !verified {
		h.log.WithField("event", ev.Event).Warn("razorpay webhook with bad signature")
		return echo.NewHTTPError(http.StatusBadRequest, "Invalid signature")
	}
	if decodeErr != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "Invalid webhook body")
	}

	fields := logrus.Fields{"event": ev.Event, "merchant_order_id": orderID}
	if payment == nil {
		h.log.WithFields(fields).Warn("razorpay webhook for unknown payment")
		return c.JSON(http.StatusOK, map[string]interface{}{"success": true, "ignored": true})
	}

	switch ev.Event {
	case "payment.captured", "order.paid":
		txnID := ""
		if ev.Payload.Payment != nil {
			txnID = ev.Payload.Payment.Entity.ID
		}
		if _, err := h.reconciler.ConfirmPaid(ctx, payment, txnID); err != nil {
			h.log.WithFields(fields).WithError(err).Error("razorpay capture reconciliation failed")
		}
	case "payment.failed":
		status := &gateway.Status{State: gateway.StateFailed, RawState: "failed"}
		if ev.Payload.Payment != nil {
			status.TransactionID = ev.Payload.Payment.Entity.ID
		}
		if _, err := h.applyState(ctx, payment, status); err != nil {
			h.log.WithFields(fields).WithError(err).Error("razorpay failure update failed")
		}
	case "refund.processed":
		if ev.Payload.Refund == nil {
			return echo.NewHTTPError(http.StatusBadRequest, "Refund event without refund entity")
		}
		if err := h.applyRefund(c, payment, ev.Payload.Refund.Entity); err != nil {
			h.log.WithFields(fields).WithError(err).Error("razorpay refund update failed")
		}
	default:
		h.log.WithFields(fields).Debug("razorpay event ignored")
	}
	return c.JSON(http.StatusOK, map[string]interface{}{"success": true})
}

// webhookPayment resolves the payment an event refers to, by order id for
// payment events and by captured payment id for refunds.
func (h *PaymentHandler) webhookPayment(c echo.Context, ev *razorpayEvent) *models.PaymentRecord {
	ctx := c.Request().Context()
	var (
		payment *models.PaymentRecord
		err     error
	)
	switch {
	case ev.Payload.Payment != nil && ev.Payload.Payment.Entity.OrderID != "":
		payment, err = h.findBy(ctx, "gateway_order_id", ev.Payload.Payment.Entity.OrderID)
	case ev.Payload.Refund != nil && ev.Payload.Refund.Entity.PaymentID != "":
		payment, err = h.findBy(ctx, "gateway_transaction_id", ev.Payload.Refund.Entity.PaymentID)
	default:
		return nil
	}
	if err != nil {
		if !errors.Is(err, booking.ErrPaymentNotFound) {
			h.log.WithError(err).Error("razorpay webhook payment lookup failed")
		}
		return nil
	}
	return payment
}

func (h *PaymentHandler) applyRefund(c echo.Context, payment *models.PaymentRecord, refund razorpayRefundEntity) error {
	ctx := c.Request().Context()
	rec, err := h.reconciler.Writer().Find(ctx, payment.ID)
	if err != nil {
		return err
	}
	if rec == nil {
		return booking.ErrBookingNotFound
	}
	return h.reconciler.MarkRefunded(ctx, rec, &models.Refund{
		Amount:          decimal.New(refund.Amount, -2),
		Gateway:         models.PaymentGatewayRazorpay,
		GatewayRefundID: refund.ID,
		Reason:          "refund processed by gateway",
	})
}
