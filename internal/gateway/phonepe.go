package gateway

import (
	"context"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"andaman_booking_echo/internal/config"
)

const (
	phonePePayPath    = "/pg/v1/pay"
	phonePeStatusPath = "/pg/v1/status/%s/%s"
)

type PhonePeClient struct {
	cfg    config.PhonePeConfig
	client *http.Client
	log    *logrus.Logger
}

func NewPhonePeClient(cfg config.PhonePeConfig, timeout time.Duration, log *logrus.Logger) *PhonePeClient {
	return &PhonePeClient{
		cfg:    cfg,
		client: &http.Client{Timeout: timeout},
		log:    log,
	}
}

// phonePeEnvelope is the body of every PhonePe response and of the base64
// callback payload.
type phonePeEnvelope struct {
	Success bool   `json:"success"`
	Code    string `json:"code"`
	Message string `json:"message"`
	Data    struct {
		MerchantID            string `json:"merchantId"`
		MerchantTransactionID string `json:"merchantTransactionId"`
		TransactionID         string `json:"transactionId"`
		Amount                int64  `json:"amount"`
		State                 string `json:"state"`
		ResponseCode          string `json:"responseCode"`
		InstrumentResponse    struct {
			RedirectInfo struct {
				URL string `json:"url"`
			} `json:"redirectInfo"`
		} `json:"instrumentResponse"`
	} `json:"data"`
}

func (e *phonePeEnvelope) status(raw []byte) *Status {
	rawState := e.Data.State
	if rawState == "" {
		rawState = e.Code
	}
	return &Status{
		State:         NormalizeState(rawState),
		RawState:      rawState,
		TransactionID: e.Data.TransactionID,
		Amount:        decimal.New(e.Data.Amount, -2),
		Raw:           raw,
	}
}

// checksum computes PhonePe's X-VERIFY header for body followed by path.
func (c *PhonePeClient) checksum(body, path string) string {
	sum := sha256.Sum256([]byte(body + path + c.cfg.SaltKey))
	return hex.EncodeToString(sum[:]) + "###" + c.cfg.SaltIndex
}

func (c *PhonePeClient) CheckStatus(ctx context.Context, merchantOrderID string) (*Status, error) {
	path := fmt.Sprintf(phonePeStatusPath, c.cfg.MerchantID, merchantOrderID)

	code, body, err := do(ctx, c.client, request{
		method: http.MethodGet,
		url:    c.cfg.BaseURL + path,
		headers: map[string]string{
			"X-VERIFY":      c.checksum("", path),
			"X-MERCHANT-ID": c.cfg.MerchantID,
		},
	})
	if err != nil {
		return nil, checkFailed("phonepe: %v", err)
	}
	if code < 200 || code >= 300 {
		return nil, checkFailed("phonepe: status %d: %s", code, body)
	}

	var env phonePeEnvelope
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, checkFailed("phonepe: decode response: %v", err)
	}

	status := env.status(body)
	c.log.WithFields(logrus.Fields{
		"merchant_order_id": merchantOrderID,
		"raw_state":         status.RawState,
		"state":             status.State,
	}).Debug("phonepe status checked")
	return status, nil
}

type PayRequest struct {
	MerchantTransactionID string
	MerchantUserID        string
	Amount                decimal.Decimal
	MobileNumber          string
	RedirectURL           string
}

// Initiate creates a PhonePe pay page and returns its URL.
func (c *PhonePeClient) Initiate(ctx context.Context, pr PayRequest) (string, error) {
	payload := map[string]interface{}{
		"merchantId":            c.cfg.MerchantID,
		"merchantTransactionId": pr.MerchantTransactionID,
		"merchantUserId":        pr.MerchantUserID,
		"amount":                pr.Amount.Shift(2).Round(0).IntPart(),
		"redirectUrl":           pr.RedirectURL,
		"redirectMode":          "REDIRECT",
		"callbackUrl":           c.cfg.CallbackURL,
		"paymentInstrument":     map[string]string{"type": "PAY_PAGE"},
	}
	if pr.MobileNumber != "" {
		payload["mobileNumber"] = pr.MobileNumber
	}

	data, err := marshal(payload)
	if err != nil {
		return "", err
	}
	encoded := base64.StdEncoding.EncodeToString(data)
	body, err := marshal(map[string]string{"request": encoded})
	if err != nil {
		return "", err
	}

	code, resp, err := do(ctx, c.client, request{
		method:  http.MethodPost,
		url:     c.cfg.BaseURL + phonePePayPath,
		headers: map[string]string{"X-VERIFY": c.checksum(encoded, phonePePayPath)},
		body:    body,
	})
	if err != nil {
		return "", fmt.Errorf("phonepe pay: %w", err)
	}

	var env phonePeEnvelope
	if err := json.Unmarshal(resp, &env); err != nil {
		return "", fmt.Errorf("phonepe pay: decode response: %w", err)
	}
	if code >= 300 || !env.Success {
		return "", fmt.Errorf("phonepe pay: %s: %s", env.Code, env.Message)
	}

	url := env.Data.InstrumentResponse.RedirectInfo.URL
	if url == "" {
		return "", fmt.Errorf("phonepe pay: response has no redirect url")
	}
	return url, nil
}

// VerifyCallback checks the X-VERIFY header of a server-to-server callback.
func (c *PhonePeClient) VerifyCallback(encodedResponse, xVerify string) bool {
	expected := c.checksum(encodedResponse, "")
	return subtle.ConstantTimeCompare([]byte(expected), []byte(xVerify)) == 1
}

// DecodeCallback decodes the base64 callback response into the merchant
// transaction id and its status.
func (c *PhonePeClient) DecodeCallback(encodedResponse string) (string, *Status, error) {
	raw, err := base64.StdEncoding.DecodeString(encodedResponse)
	if err != nil {
		return "", nil, fmt.Errorf("phonepe callback: decode base64: %w", err)
	}
	var env phonePeEnvelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return "", nil, fmt.Errorf("phonepe callback: decode json: %w", err)
	}
	if env.Data.MerchantTransactionID == "" {
		return "", nil, fmt.Errorf("phonepe callback: missing merchantTransactionId")
	}
	return env.Data.MerchantTransactionID, env.status(raw), nil
}
