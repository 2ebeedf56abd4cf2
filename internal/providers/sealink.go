package providers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"andaman_booking_echo/internal/booking"
	"andaman_booking_echo/internal/config"
)

const sealinkDate = "02-01-2006"

// sealinkReply is the {err, data} envelope every Sealink endpoint returns. A
// non-null err is a business rejection.
type sealinkReply struct {
	Err  interface{}     `json:"err"`
	Data json.RawMessage `json:"data"`
}

func (r sealinkReply) errText() string {
	switch e := r.Err.(type) {
	case nil:
		return ""
	case string:
		return e
	case map[string]interface{}:
		if msg, ok := e["message"].(string); ok {
			return msg
		}
	}
	raw, _ := json.Marshal(r.Err)
	return string(raw)
}

type sealinkClock struct {
	Hour   int `json:"hour"`
	Minute int `json:"minute"`
}

func (t sealinkClock) String() string {
	return fmt.Sprintf("%02d:%02d", t.Hour, t.Minute)
}

type sealinkClass struct {
	ID    string      `json:"id"`
	Name  string      `json:"name"`
	Fare  json.Number `json:"fare"`
	Seats int         `json:"availableSeats"`
}

type sealinkTrip struct {
	ID         string         `json:"id"`
	VesselName string         `json:"vesselName"`
	From       string         `json:"from"`
	To         string         `json:"to"`
	DTime      sealinkClock   `json:"dTime"`
	ATime      sealinkClock   `json:"aTime"`
	Classes    []sealinkClass `json:"classes"`
}

// SealinkClient authenticates with an X-API-KEY header plus the agent's
// userName and token in every body.
type SealinkClient struct {
	cfg    config.OperatorConfig
	client *http.Client
	log    *logrus.Logger
}

func NewSealinkClient(cfg config.OperatorConfig, timeout time.Duration, log *logrus.Logger) *SealinkClient {
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	return &SealinkClient{cfg: cfg, client: &http.Client{Timeout: timeout}, log: log}
}

func (c *SealinkClient) Name() string { return "sealink" }

func (c *SealinkClient) post(ctx context.Context, path string, body map[string]interface{}) (sealinkReply, error) {
	body["userName"] = c.cfg.Username
	body["token"] = c.cfg.Token
	headers := map[string]string{"X-API-KEY": c.cfg.PublicKey}

	var reply sealinkReply
	status, _, err := callJSON(ctx, c.client, http.MethodPost, c.cfg.BaseURL+path, headers, body, &reply)
	if err != nil {
		return reply, fmt.Errorf("sealink: %w", err)
	}
	if !ok(status) && reply.Err == nil {
		reply.Err = fmt.Sprintf("sealink returned status %d", status)
	}
	return reply, nil
}

func (c *SealinkClient) Search(ctx context.Context, q SearchQuery) ([]Ferry, error) {
	reply, err := c.post(ctx, "/getTripData", map[string]interface{}{
		"date": q.Date.Format(sealinkDate),
		"from": q.From,
		"to":   q.To,
	})
	if err != nil {
		return nil, err
	}
	if msg := reply.errText(); msg != "" {
		return nil, fmt.Errorf("sealink search: %s", msg)
	}
	var trips []sealinkTrip
	if err := json.Unmarshal(reply.Data, &trips); err != nil {
		return nil, fmt.Errorf("%w: sealink search: %v", ErrMalformedResponse, err)
	}

	ferries := make([]Ferry, 0, len(trips))
	for _, t := range trips {
		f := Ferry{
			ID:              "sealink-" + t.ID,
			Operator:        c.Name(),
			OperatorFerryID: t.ID,
			Name:            t.VesselName,
			From:            t.From,
			To:              t.To,
			Date:            q.Date.Format("2006-01-02"),
			DepartureTime:   t.DTime.String(),
			ArrivalTime:     t.ATime.String(),
		}
		for _, cl := range t.Classes {
			fare, _ := decimal.NewFromString(cl.Fare.String())
			f.Classes = append(f.Classes, FerryClass{ID: cl.ID, Name: cl.Name, Price: fare, SeatsAvailable: cl.Seats})
		}
		ferries = append(ferries, f)
	}
	return ferries, nil
}

func (c *SealinkClient) GetSeatLayout(ctx context.Context, q SeatLayoutQuery) (*SeatLayout, error) {
	reply, err := c.post(ctx, "/getSeatLayout", map[string]interface{}{
		"tripId": q.OperatorFerryID,
		"class":  q.ClassID,
	})
	if err != nil {
		return nil, err
	}
	if msg := reply.errText(); msg != "" {
		return nil, fmt.Errorf("sealink seat layout: %s", msg)
	}
	var rows []struct {
		Number string `json:"number"`
		Booked bool   `json:"isBooked"`
		Tier   string `json:"tier"`
	}
	if err := json.Unmarshal(reply.Data, &rows); err != nil {
		return nil, fmt.Errorf("%w: sealink seat layout: %v", ErrMalformedResponse, err)
	}
	layout := &SeatLayout{FerryID: q.FerryID, ClassID: q.ClassID}
	for _, r := range rows {
		layout.Seats = append(layout.Seats, Seat{Number: r.Number, Available: !r.Booked, Tier: r.Tier})
	}
	return layout, nil
}

func (c *SealinkClient) BookFerry(ctx context.Context, req *booking.BookingRequest) (*booking.ProviderBookingResult, error) {
	leg := req.Ferry
	if leg.OperatorFerryID == "" {
		return booking.Failed(fmt.Sprintf("invalid sealink ferry id %q", leg.FerryID)), nil
	}

	passengers := make([]map[string]interface{}, 0, len(req.Passengers))
	for _, p := range req.Passengers {
		passengers = append(passengers, map[string]interface{}{
			"name":        p.FullName,
			"age":         p.Age,
			"gender":      p.Gender,
			"nationality": firstNonEmpty(p.Nationality, "Indian"),
			"idType":      p.DocumentType,
			"idNumber":    p.DocumentNumber,
			"seat":        p.SeatNumber,
		})
	}

	reply, err := c.post(ctx, "/bookSeats", map[string]interface{}{
		"bookingTS": time.Now().Unix(),
		"id":        req.PaymentReference,
		"bookingData": []map[string]interface{}{{
			"tripId":    leg.OperatorFerryID,
			"date":      leg.TravelDate.Format(sealinkDate),
			"time":      leg.DepartureTime,
			"class":     leg.ClassID,
			"seats":     leg.Seats,
			"passenger": passengers,
		}},
		"userData": map[string]string{
			"name":   req.Customer.Name,
			"email":  req.Customer.Email,
			"mobile": req.Customer.Phone,
		},
	})
	if err != nil {
		return nil, err
	}
	if msg := reply.errText(); msg != "" {
		return rejected(msg, "", reply), nil
	}
	var data struct {
		PNR       string `json:"pnr"`
		BookingID string `json:"bookingId"`
	}
	if err := json.Unmarshal(reply.Data, &data); err != nil {
		return nil, fmt.Errorf("%w: sealink booking: %v", ErrMalformedResponse, err)
	}
	raw, _ := json.Marshal(reply)
	return &booking.ProviderBookingResult{
		Success:           true,
		ProviderBookingID: data.BookingID,
		PNR:               data.PNR,
		RawResponse:       raw,
	}, nil
}

func (c *SealinkClient) DownloadTicket(ctx context.Context, pnr string) (*Ticket, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.cfg.BaseURL+"/ticket?pnr="+url.QueryEscape(pnr), nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("X-API-KEY", c.cfg.PublicKey)
	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrProviderUnavailable, err)
	}
	defer resp.Body.Close()
	if !ok(resp.StatusCode) {
		return nil, fmt.Errorf("sealink ticket %s: status %d", pnr, resp.StatusCode)
	}
	data, err := readAll(resp)
	if err != nil {
		return nil, err
	}
	return &Ticket{PNR: pnr, ContentType: firstNonEmpty(resp.Header.Get("Content-Type"), "application/pdf"), Data: data}, nil
}

func (c *SealinkClient) Health(ctx context.Context) error {
	if c.cfg.BaseURL == "" || c.cfg.Token == "" {
		return errors.New("sealink not configured")
	}
	reply, err := c.post(ctx, "/ping", map[string]interface{}{})
	if err != nil {
		return err
	}
	if msg := reply.errText(); msg != "" {
		return fmt.Errorf("sealink: %s", msg)
	}
	return nil
}
