package models

import (
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
)

type BookingType string

const (
	BookingTypeFerry    BookingType = "ferry"
	BookingTypeActivity BookingType = "activity"
	BookingTypeBoat     BookingType = "boat"
	BookingTypeMixed    BookingType = "mixed"
)

type BookingStatus string

const (
	BookingStatusConfirmed BookingStatus = "confirmed"
	BookingStatusPending   BookingStatus = "pending"
	BookingStatusFailed    BookingStatus = "failed"
	BookingStatusCancelled BookingStatus = "cancelled"
)

type BookingPaymentStatus string

const (
	BookingPaymentPaid     BookingPaymentStatus = "paid"
	BookingPaymentFailed   BookingPaymentStatus = "failed"
	BookingPaymentRefunded BookingPaymentStatus = "refunded"
)

type ProviderBookingStatus string

const (
	ProviderBookingConfirmed ProviderBookingStatus = "confirmed"
	ProviderBookingFailed    ProviderBookingStatus = "failed"
)

// BookingRecord is the customer-facing booking. Exactly one exists per
// captured payment, enforced by the unique payment_id index.
type BookingRecord struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`

	BookingNumber   string               `gorm:"type:varchar(20);uniqueIndex;not null" json:"bookingNumber"`
	BookingType     BookingType          `gorm:"type:varchar(20);not null" json:"bookingType"`
	Status          BookingStatus        `gorm:"type:varchar(20);index;not null" json:"status"`
	PaymentStatus   BookingPaymentStatus `gorm:"type:varchar(20);not null" json:"paymentStatus"`
	PaymentID       uint                 `gorm:"uniqueIndex;not null" json:"paymentId"`
	MerchantOrderID string               `gorm:"type:varchar(100);index" json:"merchantOrderId"`

	CustomerName  string `gorm:"type:varchar(255)" json:"customerName"`
	CustomerEmail string `gorm:"type:varchar(255)" json:"customerEmail"`
	CustomerPhone string `gorm:"type:varchar(50)" json:"customerPhone"`

	Subtotal decimal.Decimal `gorm:"type:decimal(12,2)" json:"subtotal"`
	Fees     decimal.Decimal `gorm:"type:decimal(12,2)" json:"fees"`
	Taxes    decimal.Decimal `gorm:"type:decimal(12,2)" json:"taxes"`
	Total    decimal.Decimal `gorm:"type:decimal(12,2)" json:"total"`
	Currency string          `gorm:"type:varchar(3)" json:"currency"`

	EmailUpdates    bool   `json:"emailUpdates"`
	WhatsAppUpdates bool   `json:"whatsAppUpdates"`
	Notes           string `gorm:"type:text" json:"notes,omitempty"`

	Items      []BookingItem `gorm:"foreignKey:BookingID" json:"items"`
	Passengers []Passenger   `gorm:"foreignKey:BookingID" json:"passengers"`
}

func (BookingRecord) TableName() string { return "bookings" }

// FerryItem returns the first ferry item, or nil.
func (b *BookingRecord) FerryItem() *BookingItem {
	for i := range b.Items {
		if b.Items[i].ItemType == BookingTypeFerry {
			return &b.Items[i]
		}
	}
	return nil
}

// BookingItem is one itemized service inside a booking. Ferry items carry the
// operator's response in ProviderBooking.
type BookingItem struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`

	BookingID uint        `gorm:"index;not null" json:"bookingId"`
	ItemType  BookingType `gorm:"type:varchar(20);not null" json:"itemType"`

	Operator      string    `gorm:"type:varchar(50)" json:"operator,omitempty"`
	FerryID       string    `gorm:"type:varchar(100)" json:"ferryId,omitempty"`
	ScheduleID    string    `gorm:"type:varchar(100)" json:"scheduleId,omitempty"`
	FromLocation  string    `gorm:"type:varchar(100)" json:"from,omitempty"`
	ToLocation    string    `gorm:"type:varchar(100)" json:"to,omitempty"`
	TravelDate    time.Time `json:"travelDate"`
	DepartureTime string    `gorm:"type:varchar(10)" json:"departureTime,omitempty"`
	ClassID       string    `gorm:"type:varchar(50)" json:"classId,omitempty"`
	ClassName     string    `gorm:"type:varchar(100)" json:"className,omitempty"`
	Seats         []string  `gorm:"type:text;serializer:json" json:"seats,omitempty"`

	Title    string          `gorm:"type:varchar(255)" json:"title,omitempty"`
	Slot     string          `gorm:"type:varchar(50)" json:"slot,omitempty"`
	Quantity int             `json:"quantity"`
	Price    decimal.Decimal `gorm:"type:decimal(12,2)" json:"price"`

	ProviderBooking ProviderBooking `gorm:"embedded;embeddedPrefix:provider_" json:"providerBooking"`
}

// ProviderBooking mirrors what the operator told us. Fields are only ever
// added to; a failed attempt keeps its ErrorMessage even after a later retry.
type ProviderBooking struct {
	BookingStatus     ProviderBookingStatus `gorm:"type:varchar(20)" json:"bookingStatus"`
	ProviderBookingID string                `gorm:"type:varchar(100)" json:"providerBookingId,omitempty"`
	PNR               string                `gorm:"type:varchar(100)" json:"pnr,omitempty"`
	RawResponse       datatypes.JSON        `gorm:"type:jsonb" json:"rawResponse,omitempty"`
	ErrorMessage      string                `gorm:"type:text" json:"errorMessage,omitempty"`
	ErrorType         string                `gorm:"type:varchar(30)" json:"errorType,omitempty"`
	RequiresRefund    bool                  `json:"requiresRefund"`
	Attempts          int                   `json:"attempts"`
	AttemptedAt       *time.Time            `json:"attemptedAt,omitempty"`
}

// Passenger is a traveller on a booking.
type Passenger struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`

	BookingID      uint   `gorm:"index;not null" json:"bookingId"`
	FullName       string `gorm:"type:varchar(255);not null" json:"fullName"`
	Age            int    `json:"age"`
	Gender         string `gorm:"type:varchar(20)" json:"gender,omitempty"`
	Nationality    string `gorm:"type:varchar(50)" json:"nationality,omitempty"`
	DocumentType   string `gorm:"type:varchar(30)" json:"documentType,omitempty"`
	DocumentNumber string `gorm:"type:varchar(50)" json:"documentNumber,omitempty"`
	Email          string `gorm:"type:varchar(255)" json:"email,omitempty"`
	Phone          string `gorm:"type:varchar(50)" json:"phone,omitempty"`
	SeatNumber     string `gorm:"type:varchar(20)" json:"seatNumber,omitempty"`
	IsPrimary      bool   `json:"isPrimary"`
}

func (Passenger) TableName() string { return "booking_passengers" }
