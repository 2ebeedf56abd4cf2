package booking

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"andaman_booking_echo/internal/models"
)

var validate = validator.New()

var travelDateLayouts = []string{
	"2006-01-02",
	time.RFC3339,
	"2006-01-02T15:04:05",
	"02-01-2006",
	"02/01/2006",
}

// maxUnwrap bounds how many string or bookingData layers are peeled off.
const maxUnwrap = 5

// Parser turns a stored checkout payload into a BookingRequest. Everything
// downstream of it works on the typed value only.
type Parser struct {
	log *logrus.Logger
}

func NewParser(log *logrus.Logger) *Parser {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Parser{log: log}
}

// ParsePayload parses with the standard logger.
func ParsePayload(raw []byte) (*BookingRequest, error) {
	return NewParser(nil).Parse(raw)
}

func (p *Parser) Parse(raw []byte) (*BookingRequest, error) {
	data, err := unwrapPayload(raw)
	if err != nil {
		return nil, p.unavailable(err)
	}

	var w wirePayload
	if err := json.Unmarshal(data, &w); err != nil {
		return nil, p.unavailable(err)
	}

	bookingType, err := resolveType(&w)
	if err != nil {
		return nil, err
	}

	req := &BookingRequest{
		Type:             bookingType,
		PaymentReference: w.PaymentReference,
		Currency:         strings.ToUpper(firstNonEmpty(w.Currency, "INR")),
	}

	if source := ferrySource(&w); bookingType == models.BookingTypeFerry || (bookingType == models.BookingTypeMixed && source != nil) {
		if source == nil {
			source = &w.wireFerrySource
		}
		req.Ferry, err = buildFerryLeg(source, len(w.Passengers))
		if err != nil {
			return nil, err
		}
	}

	for _, item := range w.Items {
		t := models.BookingType(strings.ToLower(item.Type))
		if t == models.BookingTypeFerry || (t == "" && item.present()) {
			continue
		}
		extra, err := buildExtraItem(&item)
		if err != nil {
			return nil, err
		}
		req.Items = append(req.Items, extra)
	}

	for _, wp := range w.Passengers {
		req.Passengers = append(req.Passengers, Passenger{
			FullName:       firstNonEmpty(wp.FullName, wp.Name),
			Age:            int(wp.Age),
			Gender:         wp.Gender,
			Nationality:    wp.Nationality,
			DocumentType:   wp.DocumentType,
			DocumentNumber: firstNonEmpty(string(wp.DocumentNumber), string(wp.PassportNumber)),
			Email:          strings.TrimSpace(wp.Email),
			Phone:          string(wp.Phone),
			SeatNumber:     string(wp.SeatNumber),
			IsPrimary:      wp.IsPrimary,
		})
	}
	if req.Ferry != nil {
		assignSeats(req)
	}

	req.Customer = buildCustomer(&w, req)
	req.TotalAmount = totalAmount(&w, req)

	if err := checkRequest(req); err != nil {
		return nil, err
	}
	return req, nil
}

func (p *Parser) unavailable(err error) error {
	p.log.WithError(err).Warn("booking payload could not be decoded")
	return fmt.Errorf("%w: %v", ErrBookingDataUnavailable, err)
}

// unwrapPayload peels JSON string encoding and {"bookingData": ...} envelopes
// until an object remains.
func unwrapPayload(raw []byte) ([]byte, error) {
	data := bytes.TrimSpace(raw)
	for i := 0; i < maxUnwrap; i++ {
		if len(data) == 0 || string(data) == "null" {
			return nil, errors.New("payload is empty")
		}
		switch data[0] {
		case '"':
			var s string
			if err := json.Unmarshal(data, &s); err != nil {
				return nil, err
			}
			data = bytes.TrimSpace([]byte(s))
		case '{':
			var envelope struct {
				BookingData json.RawMessage `json:"bookingData"`
			}
			if err := json.Unmarshal(data, &envelope); err != nil {
				return nil, err
			}
			inner := bytes.TrimSpace(envelope.BookingData)
			if len(inner) == 0 || string(inner) == "null" {
				return data, nil
			}
			data = inner
		default:
			return nil, fmt.Errorf("payload is not an object (starts with %q)", data[0])
		}
	}
	return nil, errors.New("payload nested too deeply")
}

func resolveType(w *wirePayload) (models.BookingType, error) {
	declared := strings.ToLower(firstNonEmpty(w.BookingType, w.Type))
	switch models.BookingType(declared) {
	case models.BookingTypeFerry, models.BookingTypeActivity, models.BookingTypeBoat, models.BookingTypeMixed:
		return models.BookingType(declared), nil
	case "":
	default:
		return "", fmt.Errorf("%w: %q", ErrUnsupportedBookingType, declared)
	}

	hasFerry := ferrySource(w) != nil
	kinds := map[models.BookingType]bool{}
	for _, item := range w.Items {
		t := models.BookingType(strings.ToLower(item.Type))
		if t == "" || t == models.BookingTypeFerry {
			continue
		}
		kinds[t] = true
	}

	switch {
	case hasFerry && len(kinds) > 0:
		return models.BookingTypeMixed, nil
	case len(kinds) > 1:
		return models.BookingTypeMixed, nil
	case kinds[models.BookingTypeActivity]:
		return models.BookingTypeActivity, nil
	case kinds[models.BookingTypeBoat]:
		return models.BookingTypeBoat, nil
	default:
		// Nothing identifies the cart; treat it as ferry so a missing id
		// surfaces as such instead of an empty booking.
		return models.BookingTypeFerry, nil
	}
}

// ferrySource returns where the ferry leg is described: the top level first,
// then the first ferry cart item.
func ferrySource(w *wirePayload) *wireFerrySource {
	if w.wireFerrySource.present() {
		return &w.wireFerrySource
	}
	for i := range w.Items {
		item := &w.Items[i]
		if strings.EqualFold(item.Type, string(models.BookingTypeFerry)) || (item.Type == "" && item.present()) {
			return &item.wireFerrySource
		}
	}
	return nil
}

// resolveFerryID checks, in order: ferryId, ferry.id, ferry.ferryId,
// ferry.operatorFerryId.
func resolveFerryID(s *wireFerrySource) string {
	candidates := []string{string(s.FerryID)}
	if s.Ferry != nil {
		candidates = append(candidates, string(s.Ferry.ID), string(s.Ferry.FerryID), string(s.Ferry.OperatorFerryID))
	}
	return firstNonEmpty(candidates...)
}

// NormalizeOperator lowercases and strips separators: "Green Ocean" and
// "green_ocean" both become "greenocean".
func NormalizeOperator(name string) string {
	return strings.NewReplacer(" ", "", "_", "", "-", "").Replace(strings.ToLower(strings.TrimSpace(name)))
}

func resolveOperator(s *wireFerrySource, ferryID string) string {
	name := s.Operator
	if name == "" && s.Ferry != nil {
		name = s.Ferry.Operator
	}
	if name == "" {
		if i := strings.Index(ferryID, "-"); i > 0 {
			name = ferryID[:i]
		}
	}
	return NormalizeOperator(name)
}

func buildFerryLeg(s *wireFerrySource, passengers int) (*FerryLeg, error) {
	ferryID := resolveFerryID(s)
	if ferryID == "" {
		return nil, ErrFerryIDMissing
	}

	leg := &FerryLeg{
		FerryID:       ferryID,
		Operator:      resolveOperator(s, ferryID),
		From:          s.From,
		To:            s.To,
		DepartureTime: s.DepartureTime,
		ScheduleID:    string(s.ScheduleID),
		ClassID:       string(s.ClassID),
	}
	if leg.Operator == "" {
		return nil, &ValidationError{Field: "operator", Reason: "is required"}
	}

	dateText := firstNonEmpty(s.TravelDate, s.Date)
	if f := s.Ferry; f != nil {
		leg.OperatorFerryID = string(f.OperatorFerryID)
		leg.From = firstNonEmpty(leg.From, f.From)
		leg.To = firstNonEmpty(leg.To, f.To)
		leg.DepartureTime = firstNonEmpty(leg.DepartureTime, f.DepartureTime)
		leg.ScheduleID = firstNonEmpty(leg.ScheduleID, string(f.ScheduleID))
		dateText = firstNonEmpty(dateText, f.Date)
	}
	if leg.OperatorFerryID == "" {
		leg.OperatorFerryID = strings.TrimPrefix(ferryID, leg.Operator+"-")
	}

	if dateText == "" {
		return nil, &ValidationError{Field: "travelDate", Reason: "is required"}
	}
	date, err := parseDate(dateText)
	if err != nil {
		return nil, &ValidationError{Field: "travelDate", Reason: fmt.Sprintf("has unrecognised format %q", dateText)}
	}
	leg.TravelDate = date

	if c := s.SelectedClass; c != nil {
		leg.ClassID = firstNonEmpty(leg.ClassID, string(c.ID))
		leg.ClassName = c.Name
	}
	for _, seat := range s.Seats {
		if seat != "" {
			leg.Seats = append(leg.Seats, string(seat))
		}
	}

	switch {
	case s.FerryPrice != nil:
		leg.Price = *s.FerryPrice
	case s.Ferry != nil && s.Ferry.Price != nil:
		leg.Price = *s.Ferry.Price
	case s.SelectedClass != nil && s.SelectedClass.Price != nil:
		count := passengers
		if count == 0 {
			count = 1
		}
		leg.Price = s.SelectedClass.Price.Mul(decimal.NewFromInt(int64(count)))
	}
	return leg, nil
}

func buildExtraItem(item *wireItem) (ExtraItem, error) {
	extra := ExtraItem{
		Type:     models.BookingType(strings.ToLower(item.Type)),
		Title:    firstNonEmpty(item.Title, item.Name),
		Slot:     firstNonEmpty(item.Slot, item.Time),
		Quantity: int(item.Quantity),
	}
	if extra.Type == "" {
		extra.Type = models.BookingTypeActivity
	}
	if extra.Quantity == 0 {
		extra.Quantity = 1
	}
	if item.Price != nil {
		extra.Price = *item.Price
	}
	if text := firstNonEmpty(item.Date, item.TravelDate); text != "" {
		date, err := parseDate(text)
		if err != nil {
			return extra, &ValidationError{Field: "items.date", Reason: fmt.Sprintf("has unrecognised format %q", text)}
		}
		extra.Date = date
	}
	return extra, nil
}

func parseDate(text string) (time.Time, error) {
	for _, layout := range travelDateLayouts {
		if t, err := time.Parse(layout, text); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognised date %q", text)
}

// assignSeats gives passengers without a seat number the selected seats in
// order.
func assignSeats(req *BookingRequest) {
	next := 0
	for i := range req.Passengers {
		if req.Passengers[i].SeatNumber != "" || next >= len(req.Ferry.Seats) {
			continue
		}
		req.Passengers[i].SeatNumber = req.Ferry.Seats[next]
		next++
	}
}

func buildCustomer(w *wirePayload, req *BookingRequest) Customer {
	var c Customer
	for _, wc := range []*wireCustomer{w.CustomerInfo, w.ContactDetails} {
		if wc == nil {
			continue
		}
		c.Name = firstNonEmpty(c.Name, wc.Name, wc.FullName)
		c.Email = firstNonEmpty(c.Email, wc.Email)
		c.Phone = firstNonEmpty(c.Phone, string(wc.Phone))
	}
	if primary := req.Primary(); primary != nil {
		c.Name = firstNonEmpty(c.Name, primary.FullName)
		c.Email = firstNonEmpty(c.Email, primary.Email)
		c.Phone = firstNonEmpty(c.Phone, primary.Phone)
	}
	return c
}

func totalAmount(w *wirePayload, req *BookingRequest) decimal.Decimal {
	if w.TotalAmount != nil {
		return *w.TotalAmount
	}
	if w.Total != nil {
		return *w.Total
	}
	sum := decimal.Zero
	if req.Ferry != nil {
		sum = sum.Add(req.Ferry.Price)
	}
	for _, item := range req.Items {
		sum = sum.Add(item.Price)
	}
	return sum
}

func checkRequest(req *BookingRequest) error {
	if req.Ferry != nil && len(req.Passengers) == 0 {
		return &ValidationError{Field: "passengers", Reason: "must list at least one traveller"}
	}
	if req.Ferry == nil && len(req.Items) == 0 {
		return &ValidationError{Field: "items", Reason: "booking has nothing to book"}
	}

	if err := validate.Struct(req); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			fe := verrs[0]
			return &ValidationError{Field: fieldPath(fe.Namespace()), Reason: "failed " + fe.Tag()}
		}
		return &ValidationError{Field: "request", Reason: err.Error()}
	}
	return nil
}

// fieldPath turns "BookingRequest.Passengers[0].FullName" into
// "passengers[0].fullName".
func fieldPath(namespace string) string {
	parts := strings.Split(namespace, ".")
	if len(parts) > 1 {
		parts = parts[1:]
	}
	for i, p := range parts {
		if p != "" {
			parts[i] = strings.ToLower(p[:1]) + p[1:]
		}
	}
	return strings.Join(parts, ".")
}
