package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/midtrans/midtrans-go/snap"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"andaman_booking_echo/internal/booking"
	"andaman_booking_echo/internal/gateway"
	"andaman_booking_echo/internal/models"
)

type PhonePeGateway interface {
	Initiate(ctx context.Context, pr gateway.PayRequest) (string, error)
	VerifyCallback(encodedResponse, xVerify string) bool
	DecodeCallback(encodedResponse string) (string, *gateway.Status, error)
}

type RazorpayGateway interface {
	CreateOrder(ctx context.Context, amount decimal.Decimal, currency, receipt string) (*gateway.RazorpayOrder, error)
	VerifyPaymentSignature(orderID, paymentID, signature string) bool
	VerifyWebhookSignature(body []byte, signature string) bool
	KeyID() string
}

type MidtransGateway interface {
	CreateTransaction(orderID string, amount decimal.Decimal) (*snap.Response, error)
	VerifySignature(orderID, statusCode, grossAmount, signatureKey string) bool
}

// PaymentHandler serves checkout, gateway callbacks and the status endpoint
// the return page polls.
type PaymentHandler struct {
	db         *gorm.DB
	log        *logrus.Logger
	reconciler *booking.Reconciler
	phonepe    PhonePeGateway
	razorpay   RazorpayGateway
	midtrans   MidtransGateway
	appURL     string
}

type PaymentHandlerConfig struct {
	DB         *gorm.DB
	Log        *logrus.Logger
	Reconciler *booking.Reconciler
	PhonePe    PhonePeGateway
	Razorpay   RazorpayGateway
	Midtrans   MidtransGateway
	AppURL     string
}

func NewPaymentHandler(cfg PaymentHandlerConfig) *PaymentHandler {
	if cfg.Log == nil {
		cfg.Log = logrus.StandardLogger()
	}
	return &PaymentHandler{
		db:         cfg.DB,
		log:        cfg.Log,
		reconciler: cfg.Reconciler,
		phonepe:    cfg.PhonePe,
		razorpay:   cfg.Razorpay,
		midtrans:   cfg.Midtrans,
		appURL:     strings.TrimRight(cfg.AppURL, "/"),
	}
}

// CheckoutRequest is posted by the cart when the customer pays.
type CheckoutRequest struct {
	Amount        decimal.Decimal `json:"amount"`
	Currency      string          `json:"currency" validate:"omitempty,len=3"`
	CustomerName  string          `json:"customerName" validate:"required"`
	CustomerEmail string          `json:"customerEmail" validate:"omitempty,email"`
	CustomerPhone string          `json:"customerPhone"`
	BookingData   json.RawMessage `json:"bookingData" validate:"required"`
}

// NewMerchantOrderID returns an id unique per payment attempt.
func NewMerchantOrderID() string {
	return fmt.Sprintf("AE_%d%s", time.Now().UnixMilli(), strings.ToUpper(uuid.NewString()[:4]))
}

// bindCheckout validates the checkout body. The cart payload must parse into
// a complete booking before any gateway is contacted.
func (h *PaymentHandler) bindCheckout(c echo.Context) (*CheckoutRequest, error) {
	var req CheckoutRequest
	if err := c.Bind(&req); err != nil {
		return nil, echo.NewHTTPError(http.StatusBadRequest, "Invalid request body")
	}
	if err := c.Validate(&req); err != nil {
		return nil, err
	}
	if !req.Amount.IsPositive() {
		return nil, echo.NewHTTPError(http.StatusBadRequest, "amount must be positive")
	}
	if req.Currency == "" {
		req.Currency = "INR"
	}
	if _, err := booking.ParsePayload(req.BookingData); err != nil {
		return nil, echo.NewHTTPError(http.StatusBadRequest, "Invalid booking data").SetInternal(err)
	}
	return &req, nil
}

func (h *PaymentHandler) createPayment(ctx context.Context, gw models.PaymentGateway, req *CheckoutRequest) (*models.PaymentRecord, error) {
	payment := &models.PaymentRecord{
		MerchantOrderID: NewMerchantOrderID(),
		Gateway:         gw,
		Status:          models.PaymentStatusPending,
		Amount:          req.Amount,
		Currency:        strings.ToUpper(req.Currency),
		CustomerName:    req.CustomerName,
		CustomerEmail:   req.CustomerEmail,
		CustomerPhone:   req.CustomerPhone,
		BookingData:     datatypes.JSON(req.BookingData),
	}
	if err := h.db.WithContext(ctx).Create(payment).Error; err != nil {
		return nil, fmt.Errorf("create payment record: %w", err)
	}
	h.log.WithFields(logrus.Fields{
		"merchant_order_id": payment.MerchantOrderID,
		"gateway":           gw,
		"amount":            payment.Amount.String(),
	}).Info("payment record created")
	return payment, nil
}

// applyState moves a payment to what a verified gateway callback reported.
// A capture runs the booking pipeline.
func (h *PaymentHandler) applyState(ctx context.Context, payment *models.PaymentRecord, status *gateway.Status) (*booking.Outcome, error) {
	if status.State == gateway.StateCompleted {
		return h.reconciler.ConfirmPaid(ctx, payment, status.TransactionID)
	}

	next := status.State.PaymentStatus()
	if !payment.CanTransitionTo(next) {
		return nil, nil
	}
	updates := map[string]interface{}{"status": next}
	if status.TransactionID != "" {
		updates["gateway_transaction_id"] = status.TransactionID
	}
	if err := h.db.WithContext(ctx).Model(payment).Updates(updates).Error; err != nil {
		return nil, fmt.Errorf("update payment status: %w", err)
	}
	h.log.WithFields(logrus.Fields{
		"merchant_order_id": payment.MerchantOrderID,
		"status":            next,
	}).Info("payment status updated from callback")
	return nil, nil
}

func (h *PaymentHandler) recordCallback(ctx context.Context, gw models.PaymentGateway, orderID, event string, verified bool, body []byte) {
	meta := datatypes.JSON(body)
	if !json.Valid(body) {
		raw, _ := json.Marshal(string(body))
		meta = raw
	}
	entry := models.PaymentCallbackHistory{
		PaymentGateway:  gw,
		MerchantOrderID: orderID,
		Event:           event,
		Verified:        verified,
		Metadata:        meta,
	}
	if err := h.db.WithContext(ctx).Create(&entry).Error; err != nil {
		h.log.WithFields(logrus.Fields{
			"gateway":           gw,
			"merchant_order_id": orderID,
		}).WithError(err).Error("failed to store callback history")
	}
}

func (h *PaymentHandler) findBy(ctx context.Context, column, value string) (*models.PaymentRecord, error) {
	var payment models.PaymentRecord
	err := h.db.WithContext(ctx).Where(column+" = ?", value).First(&payment).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, booking.ErrPaymentNotFound
	}
	if err != nil {
		return nil, err
	}
	return &payment, nil
}

const maxCallbackBody = 1 << 20

func readBody(c echo.Context) ([]byte, error) {
	body, err := io.ReadAll(io.LimitReader(c.Request().Body, maxCallbackBody))
	if err != nil {
		return nil, echo.NewHTTPError(http.StatusBadRequest, "Unable to read body").SetInternal(err)
	}
	return body, nil
}
