package providers

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"andaman_booking_echo/internal/booking"
	"andaman_booking_echo/internal/config"
	"andaman_booking_echo/internal/testutil"
)

func travelDate() time.Time {
	return time.Date(2026, 11, 20, 0, 0, 0, 0, time.UTC)
}

func ferryRequest(operator, ferryID, operatorFerryID string) *booking.BookingRequest {
	return &booking.BookingRequest{
		Type: "ferry",
		Ferry: &booking.FerryLeg{
			Operator:        operator,
			FerryID:         ferryID,
			OperatorFerryID: operatorFerryID,
			TravelDate:      travelDate(),
			DepartureTime:   "06:00",
			ClassID:         "1",
			ClassName:       "Premium",
			Seats:           []string{"A1", "A2"},
			Price:           decimal.NewFromInt(3000),
		},
		Passengers: []booking.Passenger{
			{FullName: "Asha Rao", Age: 31, Gender: "female", SeatNumber: "A1", IsPrimary: true},
			{FullName: "Vikram Rao", Age: 33, Gender: "male", SeatNumber: "A2"},
		},
		Customer:         booking.Customer{Name: "Asha Rao", Email: "asha@example.com", Phone: "9876543210"},
		PaymentReference: "AE_1001",
	}
}

func decodeBody(t *testing.T, r *http.Request) map[string]interface{} {
	t.Helper()
	var body map[string]interface{}
	raw, err := io.ReadAll(r.Body)
	assert.NoError(t, err)
	assert.NoError(t, json.Unmarshal(raw, &body))
	return body
}

type stubProvider struct {
	name    string
	ferries []Ferry
	err     error
	result  *booking.ProviderBookingResult
	delay   time.Duration
	panics  bool
}

func (s *stubProvider) Name() string { return s.name }

func (s *stubProvider) Search(context.Context, SearchQuery) ([]Ferry, error) {
	return s.ferries, s.err
}

func (s *stubProvider) GetSeatLayout(context.Context, SeatLayoutQuery) (*SeatLayout, error) {
	return &SeatLayout{}, s.err
}

func (s *stubProvider) BookFerry(ctx context.Context, _ *booking.BookingRequest) (*booking.ProviderBookingResult, error) {
	if s.panics {
		panic("boom")
	}
	if s.delay > 0 {
		select {
		case <-time.After(s.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return s.result, s.err
}

func (s *stubProvider) DownloadTicket(context.Context, string) (*Ticket, error) {
	return nil, s.err
}

func (s *stubProvider) Health(context.Context) error { return s.err }

func TestRegistryLookup(t *testing.T) {
	reg := NewRegistry(&stubProvider{name: "greenocean"}, &stubProvider{name: "sealink"})

	p, err := reg.Get("Green Ocean")
	require.NoError(t, err)
	assert.Equal(t, "greenocean", p.Name())

	p, rest, err := reg.ForFerryID("sealink-42")
	require.NoError(t, err)
	assert.Equal(t, "sealink", p.Name())
	assert.Equal(t, "42", rest)

	_, err = reg.Get("nautika")
	assert.ErrorIs(t, err, ErrUnknownOperator)

	_, _, err = reg.ForFerryID("42")
	assert.ErrorIs(t, err, ErrUnknownOperator)

	assert.Equal(t, []string{"greenocean", "sealink"}, reg.Names())
}

func TestRegistrySearchAllKeepsPartialResults(t *testing.T) {
	reg := NewRegistry(
		&stubProvider{name: "makruzz", ferries: []Ferry{{ID: "makruzz-1", DepartureTime: "09:00"}}},
		&stubProvider{name: "greenocean", ferries: []Ferry{{ID: "greenocean-1-2", DepartureTime: "06:30"}}},
		&stubProvider{name: "sealink", err: errors.New("sealink down")},
	)

	ferries, failures := reg.SearchAll(context.Background(), SearchQuery{From: "Port Blair", To: "Havelock", Passengers: 1})
	require.Len(t, ferries, 2)
	assert.Equal(t, "greenocean-1-2", ferries[0].ID)
	assert.Equal(t, "makruzz-1", ferries[1].ID)
	assert.Equal(t, map[string]string{"sealink": "sealink down"}, failures)
}

func TestRegistryHealth(t *testing.T) {
	reg := NewRegistry(&stubProvider{name: "makruzz"}, &stubProvider{name: "sealink", err: errors.New("not configured")})
	assert.Equal(t, map[string]string{"makruzz": "ok", "sealink": "not configured"}, reg.Health(context.Background()))
}

func TestBookingAdapterNeverReturnsError(t *testing.T) {
	tests := []struct {
		name     string
		provider *stubProvider
		operator string
		timeout  time.Duration
		success  bool
		errPart  string
		infra    bool
	}{
		{
			name:     "success passes through",
			provider: &stubProvider{name: "sealink", result: &booking.ProviderBookingResult{Success: true, PNR: "PNR1"}},
			operator: "sealink",
			success:  true,
		},
		{
			name:     "business rejection passes through",
			provider: &stubProvider{name: "sealink", result: booking.Failed("Seat A1 already booked")},
			operator: "sealink",
			errPart:  "Seat A1 already booked",
		},
		{
			name:     "infrastructure error becomes failure",
			provider: &stubProvider{name: "sealink", err: ErrProviderUnavailable},
			operator: "sealink",
			errPart:  "ferry operator unavailable",
			infra:    true,
		},
		{
			name:     "unknown operator becomes failure",
			provider: &stubProvider{name: "sealink"},
			operator: "nautika",
			errPart:  "unknown ferry operator",
			infra:    true,
		},
		{
			name:     "timeout becomes failure",
			provider: &stubProvider{name: "sealink", delay: time.Second},
			operator: "sealink",
			timeout:  20 * time.Millisecond,
			errPart:  "deadline exceeded",
			infra:    true,
		},
		{
			name:     "nil result becomes failure",
			provider: &stubProvider{name: "sealink"},
			operator: "sealink",
			errPart:  "no result",
			infra:    true,
		},
		{
			name:     "panic becomes failure",
			provider: &stubProvider{name: "sealink", panics: true},
			operator: "sealink",
			errPart:  "boom",
			infra:    true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			timeout := tt.timeout
			if timeout == 0 {
				timeout = time.Second
			}
			adapter := NewBookingAdapter(NewRegistry(tt.provider), timeout, testutil.QuietLogger(), nil)
			res := adapter.BookFerry(context.Background(), ferryRequest(tt.operator, tt.operator+"-1", "1"))
			require.NotNil(t, res)
			assert.Equal(t, tt.success, res.Success)
			if tt.errPart != "" {
				assert.Contains(t, res.Error, tt.errPart)
			}
			assert.Equal(t, tt.infra, res.Infrastructure)
		})
	}
}

func TestBookingAdapterRejectsMissingLeg(t *testing.T) {
	adapter := NewBookingAdapter(NewRegistry(), time.Second, testutil.QuietLogger(), nil)
	res := adapter.BookFerry(context.Background(), &booking.BookingRequest{Type: "activity"})
	assert.False(t, res.Success)
	assert.True(t, res.Infrastructure)
}

// Operator outages must never read as a business rejection, even when the
// gateway's error page or the request path mentions seats or routes.
func TestBookingAdapterOperatorOutagesClassifyAsTechnical(t *testing.T) {
	type outage struct {
		name    string
		status  int
		hang    bool
		timeout time.Duration
	}
	outages := []outage{
		{name: "bad gateway", status: http.StatusBadGateway, timeout: time.Second},
		{name: "timeout", hang: true, timeout: 100 * time.Millisecond},
	}
	operators := []struct {
		name     string
		ferryID  string
		opFerry  string
		bookPath string
		client   func(url string) FerryProvider
	}{
		{
			name: "greenocean", ferryID: "greenocean-1-2", opFerry: "1-2", bookPath: "/book-seats",
			client: func(url string) FerryProvider {
				return NewGreenOceanClient(operatorConfig(url), 0, testutil.QuietLogger())
			},
		},
		{
			name: "sealink", ferryID: "sealink-42", opFerry: "42", bookPath: "/bookSeats",
			client: func(url string) FerryProvider {
				return NewSealinkClient(operatorConfig(url), 0, testutil.QuietLogger())
			},
		},
		{
			name: "makruzz", ferryID: "makruzz-77", opFerry: "77", bookPath: "/savePassengers",
			client: func(url string) FerryProvider {
				return NewMakruzzClient(operatorConfig(url), 0, testutil.QuietLogger())
			},
		},
	}

	for _, op := range operators {
		for _, o := range outages {
			t.Run(op.name+" "+o.name, func(t *testing.T) {
				srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
					if r.URL.Path == "/login" {
						_, _ = w.Write([]byte(`{"code":200,"data":{"token":"tkn"}}`))
						return
					}
					if o.hang {
						select {
						case <-r.Context().Done():
						case <-time.After(5 * time.Second):
						}
						return
					}
					w.WriteHeader(o.status)
					_, _ = w.Write([]byte("seat map service down, route table unavailable"))
				}))
				defer srv.Close()

				adapter := NewBookingAdapter(NewRegistry(op.client(srv.URL)), o.timeout, testutil.QuietLogger(), nil)
				res := adapter.BookFerry(context.Background(), ferryRequest(op.name, op.ferryID, op.opFerry))

				require.NotNil(t, res)
				assert.False(t, res.Success)
				assert.True(t, res.Infrastructure)
				assert.NotContains(t, res.Error, op.bookPath)
				assert.NotContains(t, res.Error, srv.URL)

				c := booking.ClassifyResult(res, "ferry")
				assert.Equal(t, booking.ErrorTypeTechnical, c.ErrorType)
				assert.False(t, c.RequiresRefund)
			})
		}
	}
}

func TestCallJSONErrorKinds(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/down":
			w.WriteHeader(http.StatusBadGateway)
		case "/garbage":
			_, _ = w.Write([]byte("<html>"))
		case "/rejected":
			w.WriteHeader(http.StatusConflict)
			_, _ = w.Write([]byte(`{"message":"seat taken"}`))
		}
	}))
	defer srv.Close()

	var out map[string]string
	_, _, err := callJSON(context.Background(), srv.Client(), http.MethodPost, srv.URL+"/down", nil, nil, &out)
	assert.ErrorIs(t, err, ErrProviderUnavailable)

	_, _, err = callJSON(context.Background(), srv.Client(), http.MethodPost, srv.URL+"/garbage", nil, nil, &out)
	assert.ErrorIs(t, err, ErrMalformedResponse)

	status, _, err := callJSON(context.Background(), srv.Client(), http.MethodPost, srv.URL+"/rejected", nil, nil, &out)
	require.NoError(t, err)
	assert.Equal(t, http.StatusConflict, status)
	assert.Equal(t, "seat taken", out["message"])

	_, _, err = callJSON(context.Background(), srv.Client(), http.MethodPost, "http://127.0.0.1:1/none", nil, nil, &out)
	assert.ErrorIs(t, err, ErrProviderUnavailable)
	assert.NotContains(t, err.Error(), "/none")
}

func operatorConfig(baseURL string) config.OperatorConfig {
	return config.OperatorConfig{
		BaseURL:    baseURL,
		Username:   "agent",
		Password:   "secret",
		PublicKey:  "pub",
		PrivateKey: "priv",
		Token:      "tok",
	}
}
