package providers

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"

	"andaman_booking_echo/internal/booking"
)

var (
	// ErrProviderUnavailable covers transport failures and 5xx answers.
	ErrProviderUnavailable = errors.New("ferry operator unavailable")
	// ErrMalformedResponse means the operator answered with something we
	// could not decode.
	ErrMalformedResponse = errors.New("malformed ferry operator response")
	ErrUnknownOperator   = errors.New("unknown ferry operator")
)

type SearchQuery struct {
	From       string    `json:"from" validate:"required"`
	To         string    `json:"to" validate:"required"`
	Date       time.Time `json:"date"`
	Passengers int       `json:"passengers" validate:"gte=1,lte=20"`
}

type FerryClass struct {
	ID             string          `json:"id"`
	Name           string          `json:"name"`
	Price          decimal.Decimal `json:"price"`
	SeatsAvailable int             `json:"seatsAvailable"`
}

// Ferry is one sailing. ID carries the operator prefix, e.g. greenocean-1-2,
// so a booking payload can be routed back to its operator.
type Ferry struct {
	ID              string       `json:"id"`
	Operator        string       `json:"operator"`
	OperatorFerryID string       `json:"operatorFerryId"`
	Name            string       `json:"name"`
	From            string       `json:"fromLocation"`
	To              string       `json:"toLocation"`
	Date            string       `json:"date"`
	DepartureTime   string       `json:"departureTime"`
	ArrivalTime     string       `json:"arrivalTime"`
	Classes         []FerryClass `json:"classes"`
}

type SeatLayoutQuery struct {
	FerryID         string    `json:"ferryId" validate:"required"`
	OperatorFerryID string    `json:"operatorFerryId"`
	ClassID         string    `json:"classId"`
	Date            time.Time `json:"date"`
}

type Seat struct {
	Number    string `json:"number"`
	Available bool   `json:"available"`
	Tier      string `json:"tier,omitempty"`
}

type SeatLayout struct {
	FerryID string `json:"ferryId"`
	ClassID string `json:"classId"`
	Seats   []Seat `json:"seats"`
}

type Ticket struct {
	PNR         string
	ContentType string
	Data        []byte
}

// FerryProvider is one operator's booking API.
type FerryProvider interface {
	Name() string
	Search(ctx context.Context, q SearchQuery) ([]Ferry, error)
	GetSeatLayout(ctx context.Context, q SeatLayoutQuery) (*SeatLayout, error)
	// BookFerry returns a failed result for business rejections such as a
	// taken seat; errors are reserved for infrastructure failures.
	BookFerry(ctx context.Context, req *booking.BookingRequest) (*booking.ProviderBookingResult, error)
	DownloadTicket(ctx context.Context, pnr string) (*Ticket, error)
	Health(ctx context.Context) error
}
