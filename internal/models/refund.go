package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Refund records money returned for a booking, whether issued by the gateway
// or marked by an operator from the admin API.
type Refund struct {
	ID        uint      `gorm:"primarykey" json:"id"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`

	BookingID       uint            `gorm:"index" json:"bookingId"`
	PaymentID       uint            `gorm:"index" json:"paymentId"`
	Amount          decimal.Decimal `gorm:"type:decimal(12,2)" json:"amount"`
	Gateway         PaymentGateway  `gorm:"type:varchar(50)" json:"gateway"`
	GatewayRefundID string          `gorm:"type:varchar(100)" json:"gatewayRefundId,omitempty"`
	Reason          string          `gorm:"type:text" json:"reason,omitempty"`
	RefundedBy      string          `gorm:"type:varchar(255)" json:"refundedBy,omitempty"`
	RefundDate      time.Time       `json:"refundDate"`
}
