package gateway

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"andaman_booking_echo/internal/config"
)

type RazorpayClient struct {
	cfg    config.RazorpayConfig
	client *http.Client
	log    *logrus.Logger
}

func NewRazorpayClient(cfg config.RazorpayConfig, timeout time.Duration, log *logrus.Logger) *RazorpayClient {
	return &RazorpayClient{
		cfg:    cfg,
		client: &http.Client{Timeout: timeout},
		log:    log,
	}
}

type razorpayPayment struct {
	ID      string `json:"id"`
	OrderID string `json:"order_id"`
	Amount  int64  `json:"amount"`
	Status  string `json:"status"`
}

type RazorpayOrder struct {
	ID       string `json:"id"`
	Amount   int64  `json:"amount"`
	Currency string `json:"currency"`
	Receipt  string `json:"receipt"`
	Status   string `json:"status"`
}

// CheckStatus takes the Razorpay order id. Any captured payment on the order
// completes it; the order fails only when every attempt failed.
func (c *RazorpayClient) CheckStatus(ctx context.Context, orderID string) (*Status, error) {
	code, body, err := do(ctx, c.client, request{
		method: http.MethodGet,
		url:    fmt.Sprintf("%s/v1/orders/%s/payments", c.cfg.BaseURL, orderID),
		user:   c.cfg.KeyID,
		pass:   c.cfg.KeySecret,
	})
	if err != nil {
		return nil, checkFailed("razorpay: %v", err)
	}
	if code < 200 || code >= 300 {
		return nil, checkFailed("razorpay: status %d: %s", code, body)
	}

	var list struct {
		Items []razorpayPayment `json:"items"`
	}
	if err := json.Unmarshal(body, &list); err != nil {
		return nil, checkFailed("razorpay: decode response: %v", err)
	}

	status := &Status{State: StatePending, RawState: "created", Raw: body}
	failed := 0
	for _, p := range list.Items {
		switch p.Status {
		case "captured":
			status.State = StateCompleted
			status.RawState = p.Status
			status.TransactionID = p.ID
			status.Amount = decimal.New(p.Amount, -2)
			return status, nil
		case "failed":
			failed++
		}
		status.RawState = p.Status
		status.TransactionID = p.ID
	}
	if len(list.Items) > 0 && failed == len(list.Items) {
		status.State = StateFailed
	}
	return status, nil
}

// CreateOrder registers an order for amount with receipt as our merchant
// order id.
func (c *RazorpayClient) CreateOrder(ctx context.Context, amount decimal.Decimal, currency, receipt string) (*RazorpayOrder, error) {
	body, err := marshal(map[string]interface{}{
		"amount":   amount.Shift(2).Round(0).IntPart(),
		"currency": currency,
		"receipt":  receipt,
	})
	if err != nil {
		return nil, err
	}

	code, resp, err := do(ctx, c.client, request{
		method: http.MethodPost,
		url:    c.cfg.BaseURL + "/v1/orders",
		body:   body,
		user:   c.cfg.KeyID,
		pass:   c.cfg.KeySecret,
	})
	if err != nil {
		return nil, fmt.Errorf("razorpay create order: %w", err)
	}
	if code < 200 || code >= 300 {
		return nil, fmt.Errorf("razorpay create order: status %d: %s", code, resp)
	}

	var order RazorpayOrder
	if err := json.Unmarshal(resp, &order); err != nil {
		return nil, fmt.Errorf("razorpay create order: decode response: %w", err)
	}
	return &order, nil
}

// VerifyPaymentSignature checks the checkout signature over
// "order_id|payment_id" with the key secret.
func (c *RazorpayClient) VerifyPaymentSignature(orderID, paymentID, signature string) bool {
	return verifyHMAC([]byte(orderID+"|"+paymentID), c.cfg.KeySecret, signature)
}

// VerifyWebhookSignature checks X-Razorpay-Signature over the raw body.
func (c *RazorpayClient) VerifyWebhookSignature(body []byte, signature string) bool {
	return verifyHMAC(body, c.cfg.WebhookSecret, signature)
}

func (c *RazorpayClient) KeyID() string { return c.cfg.KeyID }

func verifyHMAC(message []byte, secret, signature string) bool {
	if secret == "" || signature == "" {
		return false
	}
	return hmac.Equal([]byte(SignHMAC(message, secret)), []byte(signature))
}

// SignHMAC is exposed for tests and local tooling that need to forge a valid
// signature.
func SignHMAC(message []byte, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(message)
	return hex.EncodeToString(mac.Sum(nil))
}
