package booking

import (
	"encoding/json"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
)

// The checkout payload was written by several generations of the storefront,
// so ids arrive as strings or numbers and seats as strings or objects.

type flexString string

func (f *flexString) UnmarshalJSON(b []byte) error {
	if string(b) == "null" {
		return nil
	}
	var s string
	if err := json.Unmarshal(b, &s); err == nil {
		*f = flexString(strings.TrimSpace(s))
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return err
	}
	*f = flexString(n.String())
	return nil
}

type flexInt int

func (f *flexInt) UnmarshalJSON(b []byte) error {
	var s flexString
	if err := s.UnmarshalJSON(b); err != nil {
		return err
	}
	if s == "" {
		return nil
	}
	n, err := strconv.ParseFloat(string(s), 64)
	if err != nil {
		return err
	}
	*f = flexInt(n)
	return nil
}

type flexSeat string

func (f *flexSeat) UnmarshalJSON(b []byte) error {
	var s flexString
	if err := s.UnmarshalJSON(b); err == nil {
		*f = flexSeat(s)
		return nil
	}
	var obj struct {
		Number     flexString `json:"number"`
		SeatNumber flexString `json:"seatNumber"`
		ID         flexString `json:"id"`
	}
	if err := json.Unmarshal(b, &obj); err != nil {
		return err
	}
	*f = flexSeat(firstNonEmpty(string(obj.Number), string(obj.SeatNumber), string(obj.ID)))
	return nil
}

type wireFerry struct {
	ID              flexString       `json:"id"`
	FerryID         flexString       `json:"ferryId"`
	OperatorFerryID flexString       `json:"operatorFerryId"`
	Operator        string           `json:"operator"`
	Name            string           `json:"name"`
	From            string           `json:"fromLocation"`
	To              string           `json:"toLocation"`
	Date            string           `json:"date"`
	DepartureTime   string           `json:"departureTime"`
	ScheduleID      flexString       `json:"scheduleId"`
	Price           *decimal.Decimal `json:"price"`
}

type wireClass struct {
	ID    flexString       `json:"id"`
	Name  string           `json:"name"`
	Price *decimal.Decimal `json:"price"`
}

// wireFerrySource carries every place a ferry leg may be described, either at
// the top level of the payload or inside a cart item.
type wireFerrySource struct {
	FerryID       flexString       `json:"ferryId"`
	Operator      string           `json:"operator"`
	Ferry         *wireFerry       `json:"ferry"`
	From          string           `json:"from"`
	To            string           `json:"to"`
	TravelDate    string           `json:"travelDate"`
	Date          string           `json:"date"`
	DepartureTime string           `json:"departureTime"`
	ScheduleID    flexString       `json:"scheduleId"`
	ClassID       flexString       `json:"classId"`
	SelectedClass *wireClass       `json:"selectedClass"`
	Seats         []flexSeat       `json:"selectedSeats"`
	FerryPrice    *decimal.Decimal `json:"ferryPrice"`
}

func (s *wireFerrySource) present() bool {
	return s.FerryID != "" || s.Ferry != nil || s.SelectedClass != nil || s.ClassID != ""
}

type wireItem struct {
	wireFerrySource
	Type     string           `json:"type"`
	Title    string           `json:"title"`
	Name     string           `json:"name"`
	Slot     string           `json:"slot"`
	Time     string           `json:"time"`
	Quantity flexInt          `json:"quantity"`
	Price    *decimal.Decimal `json:"price"`
}

type wirePassenger struct {
	FullName       string     `json:"fullName"`
	Name           string     `json:"name"`
	Age            flexInt    `json:"age"`
	Gender         string     `json:"gender"`
	Nationality    string     `json:"nationality"`
	DocumentType   string     `json:"documentType"`
	DocumentNumber flexString `json:"documentNumber"`
	PassportNumber flexString `json:"passportNumber"`
	Email          string     `json:"email"`
	Phone          flexString `json:"phone"`
	SeatNumber     flexSeat   `json:"seatNumber"`
	IsPrimary      bool       `json:"isPrimary"`
}

type wireCustomer struct {
	Name     string     `json:"name"`
	FullName string     `json:"fullName"`
	Email    string     `json:"email"`
	Phone    flexString `json:"phone"`
}

type wirePayload struct {
	wireFerrySource
	BookingType      string           `json:"bookingType"`
	Type             string           `json:"type"`
	Items            []wireItem       `json:"items"`
	Passengers       []wirePassenger  `json:"passengers"`
	CustomerInfo     *wireCustomer    `json:"customerInfo"`
	ContactDetails   *wireCustomer    `json:"contactDetails"`
	TotalAmount      *decimal.Decimal `json:"totalAmount"`
	Total            *decimal.Decimal `json:"total"`
	Currency         string           `json:"currency"`
	PaymentReference string           `json:"paymentReference"`
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}
