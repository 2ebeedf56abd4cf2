package models

import (
	"time"

	"gorm.io/datatypes"
)

// PaymentCallbackHistory keeps every raw gateway notification we receive.
type PaymentCallbackHistory struct {
	ID              uint           `gorm:"primaryKey" json:"id"`
	PaymentGateway  PaymentGateway `gorm:"type:varchar(50);not null" json:"payment_gateway"`
	MerchantOrderID string         `gorm:"type:varchar(100);index" json:"merchant_order_id"`
	Event           string         `gorm:"type:varchar(100)" json:"event"`
	Verified        bool           `json:"verified"`
	Metadata        datatypes.JSON `gorm:"type:jsonb" json:"metadata"`
	CreatedAt       time.Time      `json:"created_at"`
}
