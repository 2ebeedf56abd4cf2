package gateway

import (
	"context"
	"crypto/sha512"
	"crypto/subtle"
	"encoding/hex"
	"encoding/json"
	"fmt"

	"github.com/midtrans/midtrans-go"
	"github.com/midtrans/midtrans-go/coreapi"
	"github.com/midtrans/midtrans-go/snap"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"andaman_booking_echo/internal/config"
)

type midtransCore interface {
	CheckTransaction(orderID string) (*coreapi.TransactionStatusResponse, *midtrans.Error)
}

type midtransSnap interface {
	CreateTransaction(req *snap.Request) (*snap.Response, *midtrans.Error)
}

type MidtransClient struct {
	serverKey string
	core      midtransCore
	snap      midtransSnap
	log       *logrus.Logger
}

func NewMidtransClient(cfg config.MidtransConfig, log *logrus.Logger) *MidtransClient {
	env := midtrans.Sandbox
	if cfg.IsProduction {
		env = midtrans.Production
	}

	var core coreapi.Client
	core.New(cfg.ServerKey, env)

	var s snap.Client
	s.New(cfg.ServerKey, env)

	return &MidtransClient{serverKey: cfg.ServerKey, core: &core, snap: &s, log: log}
}

// MidtransState folds transaction_status and fraud_status into a State. A
// capture still under fraud review stays pending.
func MidtransState(transactionStatus, fraudStatus string) State {
	switch transactionStatus {
	case "settlement":
		return StateCompleted
	case "capture":
		if fraudStatus == "" || fraudStatus == "accept" {
			return StateCompleted
		}
		if fraudStatus == "deny" {
			return StateFailed
		}
		return StatePending
	case "deny", "expire", "cancel", "failure":
		return StateFailed
	default:
		return StatePending
	}
}

func (c *MidtransClient) CheckStatus(ctx context.Context, orderID string) (*Status, error) {
	if err := ctx.Err(); err != nil {
		return nil, checkFailed("midtrans: %v", err)
	}

	resp, merr := c.core.CheckTransaction(orderID)
	if merr != nil {
		return nil, checkFailed("midtrans: %s", merr.Message)
	}
	if resp == nil {
		return nil, checkFailed("midtrans: empty response")
	}

	raw, _ := json.Marshal(resp)
	amount, err := decimal.NewFromString(resp.GrossAmount)
	if err != nil {
		amount = decimal.Zero
	}

	status := &Status{
		State:         MidtransState(resp.TransactionStatus, resp.FraudStatus),
		RawState:      resp.TransactionStatus,
		TransactionID: resp.TransactionID,
		Amount:        amount,
		Raw:           raw,
	}
	c.log.WithFields(logrus.Fields{
		"order_id":     orderID,
		"raw_state":    status.RawState,
		"fraud_status": resp.FraudStatus,
	}).Debug("midtrans status checked")
	return status, nil
}

// CreateTransaction opens a Snap checkout and returns the token and redirect URL.
func (c *MidtransClient) CreateTransaction(orderID string, amount decimal.Decimal) (*snap.Response, error) {
	resp, merr := c.snap.CreateTransaction(&snap.Request{
		TransactionDetails: midtrans.TransactionDetails{
			OrderID:  orderID,
			GrossAmt: amount.Round(0).IntPart(),
		},
	})
	if merr != nil {
		return nil, fmt.Errorf("midtrans create transaction: %s", merr.Message)
	}
	return resp, nil
}

// VerifySignature checks a notification's signature_key, which is
// SHA512(order_id + status_code + gross_amount + server key).
func (c *MidtransClient) VerifySignature(orderID, statusCode, grossAmount, signatureKey string) bool {
	sum := sha512.Sum512([]byte(orderID + statusCode + grossAmount + c.serverKey))
	expected := hex.EncodeToString(sum[:])
	return subtle.ConstantTimeCompare([]byte(expected), []byte(signatureKey)) == 1
}
