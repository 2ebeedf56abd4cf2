package providers

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"andaman_booking_echo/internal/booking"
	"andaman_booking_echo/internal/config"
)

const makruzzDate = "2006-01-02"

type makruzzEnvelope struct {
	Code json.Number     `json:"code"`
	Msg  string          `json:"msg"`
	Data json.RawMessage `json:"data"`
}

func (e makruzzEnvelope) ok() bool {
	return e.Code.String() == "200"
}

type makruzzSchedule struct {
	ID             json.Number `json:"id"`
	ShipTitle      string      `json:"ship_title"`
	SourceName     string      `json:"source_name"`
	DestName       string      `json:"destination_name"`
	TravelDate     string      `json:"travel_date"`
	DepartureTime  string      `json:"departure_time"`
	ArrivalTime    string      `json:"arrival_time"`
	ShipClassID    json.Number `json:"ship_class_id"`
	ShipClassTitle string      `json:"ship_class_title"`
	ShipClassPrice json.Number `json:"ship_class_price"`
	Seat           json.Number `json:"seat"`
}

type makruzzPassenger struct {
	Title       string `json:"title"`
	Name        string `json:"name"`
	Age         string `json:"age"`
	Sex         string `json:"sex"`
	Nationality string `json:"nationality"`
	FPassport   string `json:"fpassport,omitempty"`
	SeatNo      string `json:"seat_no,omitempty"`
}

// MakruzzClient talks to the Makruzz booking API. Every call carries a
// session token obtained from /login, refreshed once on a 401.
type MakruzzClient struct {
	cfg    config.OperatorConfig
	client *http.Client
	log    *logrus.Logger

	mu    sync.Mutex
	token string
}

func NewMakruzzClient(cfg config.OperatorConfig, timeout time.Duration, log *logrus.Logger) *MakruzzClient {
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	return &MakruzzClient{cfg: cfg, client: &http.Client{Timeout: timeout}, log: log}
}

func (c *MakruzzClient) Name() string { return "makruzz" }

func (c *MakruzzClient) login(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.token != "" {
		return c.token, nil
	}

	payload := map[string]interface{}{
		"data": map[string]string{"username": c.cfg.Username, "password": c.cfg.Password},
	}
	var env makruzzEnvelope
	status, _, err := callJSON(ctx, c.client, http.MethodPost, c.cfg.BaseURL+"/login", nil, payload, &env)
	if err != nil {
		return "", fmt.Errorf("makruzz login: %w", err)
	}
	var data struct {
		Token string `json:"token"`
	}
	if !ok(status) || !env.ok() || json.Unmarshal(env.Data, &data) != nil || data.Token == "" {
		return "", fmt.Errorf("%w: makruzz login rejected: %s", ErrProviderUnavailable, env.Msg)
	}
	c.token = data.Token
	return c.token, nil
}

func (c *MakruzzClient) resetToken() {
	c.mu.Lock()
	c.token = ""
	c.mu.Unlock()
}

// call posts {"data": body} with the session token and retries once after a
// fresh login when the token was rejected.
func (c *MakruzzClient) call(ctx context.Context, path string, body interface{}) (makruzzEnvelope, error) {
	var env makruzzEnvelope
	for attempt := 0; attempt < 2; attempt++ {
		token, err := c.login(ctx)
		if err != nil {
			return env, err
		}
		headers := map[string]string{"Mak_Authorization": token}
		env = makruzzEnvelope{}
		status, _, err := callJSON(ctx, c.client, http.MethodPost, c.cfg.BaseURL+path, headers, map[string]interface{}{"data": body}, &env)
		if status == http.StatusUnauthorized && attempt == 0 {
			c.resetToken()
			continue
		}
		if err != nil {
			return env, fmt.Errorf("makruzz: %w", err)
		}
		return env, nil
	}
	return env, fmt.Errorf("%w: makruzz: unauthorized", ErrProviderUnavailable)
}

func (c *MakruzzClient) Search(ctx context.Context, q SearchQuery) ([]Ferry, error) {
	env, err := c.call(ctx, "/schedule_search", map[string]string{
		"trip_type":       "single_trip",
		"from_location":   q.From,
		"to_location":     q.To,
		"travel_date":     q.Date.Format(makruzzDate),
		"no_of_passenger": strconv.Itoa(q.Passengers),
	})
	if err != nil {
		return nil, err
	}
	if !env.ok() {
		return nil, fmt.Errorf("makruzz search: %s", env.Msg)
	}
	var rows []makruzzSchedule
	if err := json.Unmarshal(env.Data, &rows); err != nil {
		return nil, fmt.Errorf("%w: makruzz search: %v", ErrMalformedResponse, err)
	}

	// One row per schedule and class; fold classes into their sailing.
	byID := map[string]*Ferry{}
	var order []string
	for _, row := range rows {
		id := row.ID.String()
		f, seen := byID[id]
		if !seen {
			f = &Ferry{
				ID:              "makruzz-" + id,
				Operator:        c.Name(),
				OperatorFerryID: id,
				Name:            row.ShipTitle,
				From:            row.SourceName,
				To:              row.DestName,
				Date:            q.Date.Format(makruzzDate),
				DepartureTime:   hhmm(row.DepartureTime),
				ArrivalTime:     hhmm(row.ArrivalTime),
			}
			byID[id] = f
			order = append(order, id)
		}
		price, _ := decimal.NewFromString(row.ShipClassPrice.String())
		seats, _ := row.Seat.Int64()
		f.Classes = append(f.Classes, FerryClass{
			ID:             row.ShipClassID.String(),
			Name:           row.ShipClassTitle,
			Price:          price,
			SeatsAvailable: int(seats),
		})
	}
	ferries := make([]Ferry, 0, len(order))
	for _, id := range order {
		ferries = append(ferries, *byID[id])
	}
	return ferries, nil
}

// GetSeatLayout returns an empty layout: Makruzz assigns seats on confirmation.
func (c *MakruzzClient) GetSeatLayout(_ context.Context, q SeatLayoutQuery) (*SeatLayout, error) {
	return &SeatLayout{FerryID: q.FerryID, ClassID: q.ClassID}, nil
}

func (c *MakruzzClient) BookFerry(ctx context.Context, req *booking.BookingRequest) (*booking.ProviderBookingResult, error) {
	leg := req.Ferry
	scheduleID := firstNonEmpty(leg.ScheduleID, leg.OperatorFerryID)
	if scheduleID == "" || leg.ClassID == "" {
		return booking.Failed("schedule or class missing for makruzz booking"), nil
	}

	passengers := map[string]makruzzPassenger{}
	for i, p := range req.Passengers {
		passengers[strconv.Itoa(i+1)] = makruzzPassenger{
			Title:       title(p.Gender),
			Name:        p.FullName,
			Age:         strconv.Itoa(p.Age),
			Sex:         strings.ToLower(p.Gender),
			Nationality: firstNonEmpty(p.Nationality, "Indian"),
			FPassport:   p.DocumentNumber,
			SeatNo:      p.SeatNumber,
		}
	}

	env, err := c.call(ctx, "/savePassengers", map[string]interface{}{
		"passenger":       passengers,
		"c_name":          req.Customer.Name,
		"c_mobile":        req.Customer.Phone,
		"c_email":         req.Customer.Email,
		"p_contact":       req.Customer.Phone,
		"no_of_passenger": strconv.Itoa(len(req.Passengers)),
		"schedule_id":     scheduleID,
		"travel_date":     leg.TravelDate.Format(makruzzDate),
		"class_id":        leg.ClassID,
		"fare":            leg.Price.StringFixed(2),
	})
	if err != nil {
		return nil, err
	}
	var saved struct {
		BookingID json.Number `json:"booking_id"`
	}
	if !env.ok() || json.Unmarshal(env.Data, &saved) != nil || saved.BookingID == "" {
		return rejected(env.Msg, "makruzz did not accept passengers", env), nil
	}

	env, err = c.call(ctx, "/confirm_booking", map[string]string{"booking_id": saved.BookingID.String()})
	if err != nil {
		return nil, err
	}
	var confirmed struct {
		PNR string `json:"pnr"`
	}
	if !env.ok() || json.Unmarshal(env.Data, &confirmed) != nil {
		res := rejected(env.Msg, "makruzz did not confirm booking", env)
		res.ProviderBookingID = saved.BookingID.String()
		return res, nil
	}
	raw, _ := json.Marshal(env)
	return &booking.ProviderBookingResult{
		Success:           true,
		ProviderBookingID: saved.BookingID.String(),
		PNR:               firstNonEmpty(confirmed.PNR, saved.BookingID.String()),
		RawResponse:       raw,
	}, nil
}

func (c *MakruzzClient) DownloadTicket(ctx context.Context, pnr string) (*Ticket, error) {
	env, err := c.call(ctx, "/download_ticket_pdf", map[string]string{"booking_id": pnr})
	if err != nil {
		return nil, err
	}
	var encoded string
	if !env.ok() || json.Unmarshal(env.Data, &encoded) != nil {
		return nil, fmt.Errorf("makruzz ticket %s: %s", pnr, env.Msg)
	}
	data, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, fmt.Errorf("%w: makruzz ticket: %v", ErrMalformedResponse, err)
	}
	return &Ticket{PNR: pnr, ContentType: "application/pdf", Data: data}, nil
}

func (c *MakruzzClient) Health(ctx context.Context) error {
	if c.cfg.BaseURL == "" {
		return errors.New("makruzz not configured")
	}
	_, err := c.login(ctx)
	return err
}

func rejected(msg, fallback string, env interface{}) *booking.ProviderBookingResult {
	res := booking.Failed(firstNonEmpty(msg, fallback))
	res.RawResponse, _ = json.Marshal(env)
	return res
}

func title(gender string) string {
	switch strings.ToLower(gender) {
	case "female", "f":
		return "Ms"
	default:
		return "Mr"
	}
}

// hhmm trims "09:30:00" to "09:30".
func hhmm(t string) string {
	if len(t) >= 5 && t[2] == ':' {
		return t[:5]
	}
	return t
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
