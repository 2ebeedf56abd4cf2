package booking

import (
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"

	"andaman_booking_echo/internal/models"
)

// BookingRequest is the typed form of the checkout payload. It is rebuilt from
// the payment record on every reconciliation and never mutated in place.
type BookingRequest struct {
	Type             models.BookingType `validate:"required,oneof=ferry activity boat mixed"`
	Ferry            *FerryLeg
	Items            []ExtraItem `validate:"dive"`
	Passengers       []Passenger `validate:"dive"`
	Customer         Customer
	PaymentReference string
	TotalAmount      decimal.Decimal
	Currency         string
}

type FerryLeg struct {
	Operator        string `validate:"required"`
	FerryID         string `validate:"required"`
	OperatorFerryID string
	ScheduleID      string
	From            string
	To              string
	TravelDate      time.Time
	DepartureTime   string
	ClassID         string
	ClassName       string
	Seats           []string
	Price           decimal.Decimal
}

type ExtraItem struct {
	Type     models.BookingType `validate:"oneof=activity boat"`
	Title    string             `validate:"required"`
	Date     time.Time
	Slot     string
	Quantity int `validate:"gte=1"`
	Price    decimal.Decimal
}

type Passenger struct {
	FullName       string `validate:"required"`
	Age            int    `validate:"gte=0,lte=120"`
	Gender         string
	Nationality    string
	DocumentType   string
	DocumentNumber string
	Email          string
	Phone          string
	SeatNumber     string
	IsPrimary      bool
}

type Customer struct {
	Name  string
	Email string
	Phone string
}

// Primary returns the passenger marked primary, or the first one.
func (r *BookingRequest) Primary() *Passenger {
	for i := range r.Passengers {
		if r.Passengers[i].IsPrimary {
			return &r.Passengers[i]
		}
	}
	if len(r.Passengers) > 0 {
		return &r.Passengers[0]
	}
	return nil
}

// ProviderBookingResult is what a ferry operator answered. Business failures
// such as a seat being taken are a result with Success false, never an error.
type ProviderBookingResult struct {
	Success           bool            `json:"success"`
	ProviderBookingID string          `json:"providerBookingId,omitempty"`
	PNR               string          `json:"pnr,omitempty"`
	RawResponse       json.RawMessage `json:"rawResponse,omitempty"`
	Error             string          `json:"error,omitempty"`
	// Infrastructure is set when the operator never gave a business answer:
	// transport errors, 5xx, undecodable bodies, timeouts and panics.
	Infrastructure bool `json:"infrastructure,omitempty"`
}

// Failed builds a failure result carrying msg.
func Failed(msg string) *ProviderBookingResult {
	return &ProviderBookingResult{Success: false, Error: msg}
}

// InfrastructureFailure builds a failure result that classifies as a
// technical error whatever msg says.
func InfrastructureFailure(msg string) *ProviderBookingResult {
	return &ProviderBookingResult{Success: false, Error: msg, Infrastructure: true}
}
