package models

import (
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
)

type PaymentGateway string

const (
	PaymentGatewayPhonePe  PaymentGateway = "phonepe"
	PaymentGatewayRazorpay PaymentGateway = "razorpay"
	PaymentGatewayMidtrans PaymentGateway = "midtrans"
)

type PaymentStatus string

const (
	PaymentStatusPending PaymentStatus = "pending"
	PaymentStatusSuccess PaymentStatus = "success"
	PaymentStatusFailed  PaymentStatus = "failed"
)

// PaymentRecord is one checkout attempt. Rows are never deleted; they are the
// audit trail for every gateway interaction.
type PaymentRecord struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`

	MerchantOrderID      string          `gorm:"type:varchar(100);uniqueIndex;not null" json:"merchantOrderId"`
	Gateway              PaymentGateway  `gorm:"type:varchar(50);not null" json:"gateway"`
	GatewayTransactionID string          `gorm:"type:varchar(100);index" json:"gatewayTransactionId,omitempty"`
	GatewayOrderID       string          `gorm:"type:varchar(100);index" json:"gatewayOrderId,omitempty"`
	Status               PaymentStatus   `gorm:"type:varchar(20);index;not null" json:"status"`
	Amount               decimal.Decimal `gorm:"type:decimal(12,2)" json:"amount"`
	Currency             string          `gorm:"type:varchar(3)" json:"currency"`

	CustomerName  string `gorm:"type:varchar(255)" json:"customerName,omitempty"`
	CustomerEmail string `gorm:"type:varchar(255)" json:"customerEmail,omitempty"`
	CustomerPhone string `gorm:"type:varchar(50)" json:"customerPhone,omitempty"`

	// BookingData is the cart payload captured at checkout. Older clients
	// stored it as a JSON string, so it may be double encoded.
	BookingData     datatypes.JSON `gorm:"type:jsonb" json:"bookingData,omitempty"`
	GatewayMetadata datatypes.JSON `gorm:"type:jsonb" json:"gatewayMetadata,omitempty"`

	// ProviderResult caches the first ferry operator response so a retried
	// reconciliation never books the same seats twice.
	ProviderResult datatypes.JSON `gorm:"type:jsonb" json:"-"`
	ReconcileError string         `gorm:"type:text" json:"reconcileError,omitempty"`
	LastCheckedAt  *time.Time     `json:"lastCheckedAt,omitempty"`
}

func (PaymentRecord) TableName() string { return "payments" }

// CanTransitionTo reports whether the status may move to next. A captured
// payment never goes back to pending or failed.
func (p *PaymentRecord) CanTransitionTo(next PaymentStatus) bool {
	if p.Status == next {
		return false
	}
	return p.Status != PaymentStatusSuccess
}
