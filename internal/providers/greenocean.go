package providers

import (
	"context"
	"crypto/sha512"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"andaman_booking_echo/internal/booking"
	"andaman_booking_echo/internal/config"
)

const greenOceanDate = "02-01-2006"

type greenOceanReply struct {
	Status  string          `json:"status"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

func (r greenOceanReply) ok() bool {
	return strings.EqualFold(r.Status, "success")
}

type greenOceanRoute struct {
	ShipID        json.Number `json:"ship_id"`
	RouteID       json.Number `json:"route_id"`
	ShipName      string      `json:"ship_name"`
	From          string      `json:"from"`
	To            string      `json:"to"`
	DepartureTime string      `json:"departure_time"`
	ArrivalTime   string      `json:"arrival_time"`
	Classes       []struct {
		ClassID   json.Number `json:"class_id"`
		ClassName string      `json:"class_name"`
		Fare      json.Number `json:"fare"`
		Available json.Number `json:"available_seats"`
	} `json:"classes"`
}

// GreenOceanClient signs every request with hash_string, the sha512 of the
// request's ordered fields joined by "|" and followed by the private key.
type GreenOceanClient struct {
	cfg    config.OperatorConfig
	client *http.Client
	log    *logrus.Logger
}

func NewGreenOceanClient(cfg config.OperatorConfig, timeout time.Duration, log *logrus.Logger) *GreenOceanClient {
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	return &GreenOceanClient{cfg: cfg, client: &http.Client{Timeout: timeout}, log: log}
}

func (c *GreenOceanClient) Name() string { return "greenocean" }

// HashString signs fields in order.
func HashString(privateKey string, fields ...string) string {
	sum := sha512.Sum512([]byte(strings.Join(append(fields, privateKey), "|")))
	return hex.EncodeToString(sum[:])
}

func (c *GreenOceanClient) post(ctx context.Context, path string, body map[string]interface{}, hashFields ...string) (greenOceanReply, error) {
	body["public_key"] = c.cfg.PublicKey
	body["hash_string"] = HashString(c.cfg.PrivateKey, append([]string{c.cfg.PublicKey}, hashFields...)...)

	var reply greenOceanReply
	status, _, err := callJSON(ctx, c.client, http.MethodPost, c.cfg.BaseURL+path, nil, body, &reply)
	if err != nil {
		return reply, fmt.Errorf("green ocean: %w", err)
	}
	if !ok(status) && reply.Message == "" {
		reply.Message = fmt.Sprintf("green ocean returned status %d", status)
	}
	return reply, nil
}

// splitGreenOceanID splits "shipID-routeID".
func splitGreenOceanID(id string) (string, string) {
	ship, route, _ := strings.Cut(id, "-")
	return ship, route
}

func (c *GreenOceanClient) Search(ctx context.Context, q SearchQuery) ([]Ferry, error) {
	date := q.Date.Format(greenOceanDate)
	pax := strconv.Itoa(q.Passengers)
	reply, err := c.post(ctx, "/route-details", map[string]interface{}{
		"from":              q.From,
		"dest_to":           q.To,
		"travel_date":       date,
		"number_of_adults":  pax,
		"number_of_infants": "0",
	}, q.From, q.To, pax, "0", date)
	if err != nil {
		return nil, err
	}
	if !reply.ok() {
		return nil, fmt.Errorf("green ocean search: %s", reply.Message)
	}
	var routes []greenOceanRoute
	if err := json.Unmarshal(reply.Data, &routes); err != nil {
		return nil, fmt.Errorf("%w: green ocean search: %v", ErrMalformedResponse, err)
	}

	ferries := make([]Ferry, 0, len(routes))
	for _, r := range routes {
		opID := r.ShipID.String() + "-" + r.RouteID.String()
		f := Ferry{
			ID:              "greenocean-" + opID,
			Operator:        c.Name(),
			OperatorFerryID: opID,
			Name:            r.ShipName,
			From:            r.From,
			To:              r.To,
			Date:            q.Date.Format("2006-01-02"),
			DepartureTime:   hhmm(r.DepartureTime),
			ArrivalTime:     hhmm(r.ArrivalTime),
		}
		for _, cl := range r.Classes {
			fare, _ := decimal.NewFromString(cl.Fare.String())
			avail, _ := cl.Available.Int64()
			f.Classes = append(f.Classes, FerryClass{
				ID:             cl.ClassID.String(),
				Name:           cl.ClassName,
				Price:          fare,
				SeatsAvailable: int(avail),
			})
		}
		ferries = append(ferries, f)
	}
	return ferries, nil
}

func (c *GreenOceanClient) GetSeatLayout(ctx context.Context, q SeatLayoutQuery) (*SeatLayout, error) {
	ship, route := splitGreenOceanID(q.OperatorFerryID)
	date := q.Date.Format(greenOceanDate)
	reply, err := c.post(ctx, "/seat-layout", map[string]interface{}{
		"ship_id":     ship,
		"route_id":    route,
		"class_id":    q.ClassID,
		"travel_date": date,
	}, ship, route, q.ClassID, date)
	if err != nil {
		return nil, err
	}
	if !reply.ok() {
		return nil, fmt.Errorf("green ocean seat layout: %s", reply.Message)
	}
	var rows []struct {
		SeatNo string `json:"seat_no"`
		Status string `json:"status"`
		Tier   string `json:"tier"`
	}
	if err := json.Unmarshal(reply.Data, &rows); err != nil {
		return nil, fmt.Errorf("%w: green ocean seat layout: %v", ErrMalformedResponse, err)
	}
	layout := &SeatLayout{FerryID: q.FerryID, ClassID: q.ClassID}
	for _, row := range rows {
		layout.Seats = append(layout.Seats, Seat{
			Number:    row.SeatNo,
			Available: strings.EqualFold(row.Status, "available"),
			Tier:      row.Tier,
		})
	}
	return layout, nil
}

func (c *GreenOceanClient) BookFerry(ctx context.Context, req *booking.BookingRequest) (*booking.ProviderBookingResult, error) {
	leg := req.Ferry
	ship, route := splitGreenOceanID(leg.OperatorFerryID)
	if ship == "" || route == "" {
		return booking.Failed(fmt.Sprintf("invalid green ocean ferry id %q", leg.FerryID)), nil
	}
	date := leg.TravelDate.Format(greenOceanDate)
	seats := strings.Join(leg.Seats, ",")

	passengers := make([]map[string]string, 0, len(req.Passengers))
	for _, p := range req.Passengers {
		passengers = append(passengers, map[string]string{
			"name":        p.FullName,
			"age":         strconv.Itoa(p.Age),
			"gender":      p.Gender,
			"nationality": firstNonEmpty(p.Nationality, "Indian"),
			"id_type":     p.DocumentType,
			"id_number":   p.DocumentNumber,
			"seat_no":     p.SeatNumber,
		})
	}

	reply, err := c.post(ctx, "/book-seats", map[string]interface{}{
		"ship_id":        ship,
		"route_id":       route,
		"class_id":       leg.ClassID,
		"travel_date":    date,
		"seat_numbers":   seats,
		"passengers":     passengers,
		"contact_name":   req.Customer.Name,
		"contact_email":  req.Customer.Email,
		"contact_mobile": req.Customer.Phone,
		"reference":      req.PaymentReference,
	}, ship, route, leg.ClassID, date, seats)
	if err != nil {
		return nil, err
	}
	if !reply.ok() {
		return rejected(reply.Message, "green ocean rejected booking", reply), nil
	}
	var data struct {
		BookingID json.Number `json:"booking_id"`
		PNR       string      `json:"pnr"`
	}
	if err := json.Unmarshal(reply.Data, &data); err != nil {
		return nil, fmt.Errorf("%w: green ocean booking: %v", ErrMalformedResponse, err)
	}
	raw, _ := json.Marshal(reply)
	return &booking.ProviderBookingResult{
		Success:           true,
		ProviderBookingID: data.BookingID.String(),
		PNR:               data.PNR,
		RawResponse:       raw,
	}, nil
}

func (c *GreenOceanClient) DownloadTicket(ctx context.Context, pnr string) (*Ticket, error) {
	reply, err := c.post(ctx, "/download-ticket", map[string]interface{}{"pnr": pnr}, pnr)
	if err != nil {
		return nil, err
	}
	var encoded string
	if !reply.ok() || json.Unmarshal(reply.Data, &encoded) != nil {
		return nil, fmt.Errorf("green ocean ticket %s: %s", pnr, reply.Message)
	}
	data, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, fmt.Errorf("%w: green ocean ticket: %v", ErrMalformedResponse, err)
	}
	return &Ticket{PNR: pnr, ContentType: "application/pdf", Data: data}, nil
}

func (c *GreenOceanClient) Health(ctx context.Context) error {
	if c.cfg.BaseURL == "" || c.cfg.PrivateKey == "" {
		return errors.New("green ocean not configured")
	}
	reply, err := c.post(ctx, "/ping", map[string]interface{}{})
	if err != nil {
		return err
	}
	if !reply.ok() {
		return fmt.Errorf("green ocean: %s", reply.Message)
	}
	return nil
}
