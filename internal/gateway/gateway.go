package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"andaman_booking_echo/internal/models"
)

// State is the gateway-independent payment state.
type State string

const (
	StatePending   State = "PENDING"
	StateCompleted State = "COMPLETED"
	StateFailed    State = "FAILED"
)

// ErrStatusCheckFailed means the gateway could not tell us the state. It is
// never a statement that the payment failed.
var ErrStatusCheckFailed = errors.New("payment status check failed")

// ErrUnknownGateway is returned by the registry for an unregistered gateway.
var ErrUnknownGateway = errors.New("unknown payment gateway")

type Status struct {
	State         State           `json:"state"`
	RawState      string          `json:"rawState"`
	TransactionID string          `json:"transactionId,omitempty"`
	Amount        decimal.Decimal `json:"amount"`
	Raw           json.RawMessage `json:"raw,omitempty"`
}

type StatusClient interface {
	CheckStatus(ctx context.Context, merchantOrderID string) (*Status, error)
}

// NormalizeState maps every gateway's vocabulary onto State. Integrations
// report capture as SUCCESS, COMPLETED, captured or settlement; all of them
// are terminal success.
func NormalizeState(raw string) State {
	switch strings.ToUpper(strings.TrimSpace(raw)) {
	case "SUCCESS", "COMPLETED", "PAYMENT_SUCCESS", "CAPTURED", "SETTLEMENT", "PAID":
		return StateCompleted
	case "FAILED", "FAILURE", "PAYMENT_ERROR", "PAYMENT_DECLINED", "DECLINED", "TIMED_OUT",
		"DENY", "EXPIRE", "EXPIRED", "CANCEL", "CANCELLED", "CANCELED":
		return StateFailed
	default:
		return StatePending
	}
}

// PaymentStatus converts a gateway state to the stored payment status.
func (s State) PaymentStatus() models.PaymentStatus {
	switch s {
	case StateCompleted:
		return models.PaymentStatusSuccess
	case StateFailed:
		return models.PaymentStatusFailed
	default:
		return models.PaymentStatusPending
	}
}

func checkFailed(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrStatusCheckFailed, fmt.Sprintf(format, args...))
}

// Registry dispatches status checks by the gateway recorded on the payment.
type Registry struct {
	clients map[models.PaymentGateway]StatusClient
}

func NewRegistry() *Registry {
	return &Registry{clients: make(map[models.PaymentGateway]StatusClient)}
}

func (r *Registry) Register(gw models.PaymentGateway, client StatusClient) {
	r.clients[gw] = client
}

func (r *Registry) Client(gw models.PaymentGateway) (StatusClient, error) {
	client, ok := r.clients[gw]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownGateway, gw)
	}
	return client, nil
}

// CheckStatus looks up the payment with its gateway. Razorpay payments are
// queried by the gateway's own order id.
func (r *Registry) CheckStatus(ctx context.Context, payment *models.PaymentRecord) (*Status, error) {
	client, err := r.Client(payment.Gateway)
	if err != nil {
		return nil, err
	}
	ref := payment.MerchantOrderID
	if payment.GatewayOrderID != "" {
		ref = payment.GatewayOrderID
	}
	return client.CheckStatus(ctx, ref)
}
