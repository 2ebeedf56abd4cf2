package handlers

import (
	"context"
	"encoding/json"
	"io"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"andaman_booking_echo/internal/booking"
	"andaman_booking_echo/internal/gateway"
	"andaman_booking_echo/internal/middleware"
	"andaman_booking_echo/internal/models"
	"andaman_booking_echo/internal/providers"
	"andaman_booking_echo/internal/testutil"
)

const ferryPayload = `{
	"bookingType": "ferry",
	"ferryId": "greenocean-1-2",
	"travelDate": "2026-11-20",
	"from": "Port Blair",
	"to": "Havelock",
	"selectedClass": {"id": 3, "name": "Premium", "price": "1500"},
	"selectedSeats": ["A1", "A2"],
	"passengers": [
		{"fullName": "Asha Rao", "age": 34, "gender": "F", "isPrimary": true},
		{"fullName": "Ravi Rao", "age": 36, "gender": "M"}
	],
	"customerInfo": {"name": "Asha Rao", "email": "asha@example.com", "phone": "9876543210"},
	"totalAmount": 3000
}`

type fakeStatus struct {
	mu     sync.Mutex
	status *gateway.Status
	err    error
}

func (f *fakeStatus) CheckStatus(context.Context, *models.PaymentRecord) (*gateway.Status, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	s := *f.status
	return &s, nil
}

func (f *fakeStatus) set(state gateway.State) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.err = nil
	f.status = &gateway.Status{State: state, RawState: string(state), TransactionID: "T123"}
}

// stubOperator is a ferry operator that answers from fields.
type stubOperator struct {
	name      string
	mu        sync.Mutex
	result    *booking.ProviderBookingResult
	ferries   []providers.Ferry
	err       error
	bookings  atomic.Int32
	searches  atomic.Int32
	ticket    *providers.Ticket
	lastQuery providers.SeatLayoutQuery
}

func (s *stubOperator) Name() string { return s.name }

func (s *stubOperator) Search(context.Context, providers.SearchQuery) ([]providers.Ferry, error) {
	s.searches.Add(1)
	return s.ferries, s.err
}

func (s *stubOperator) GetSeatLayout(_ context.Context, q providers.SeatLayoutQuery) (*providers.SeatLayout, error) {
	s.mu.Lock()
	s.lastQuery = q
	s.mu.Unlock()
	if s.err != nil {
		return nil, s.err
	}
	return &providers.SeatLayout{FerryID: q.FerryID, ClassID: q.ClassID, Seats: []providers.Seat{{Number: "A1", Available: true}}}, nil
}

func (s *stubOperator) BookFerry(context.Context, *booking.BookingRequest) (*booking.ProviderBookingResult, error) {
	s.bookings.Add(1)
	s.mu.Lock()
	defer s.mu.Unlock()
	r := *s.result
	return &r, nil
}

func (s *stubOperator) setResult(r *booking.ProviderBookingResult) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.result = r
}

func (s *stubOperator) DownloadTicket(context.Context, string) (*providers.Ticket, error) {
	return s.ticket, s.err
}

func (s *stubOperator) Health(context.Context) error { return s.err }

type env struct {
	db         *gorm.DB
	echo       *echo.Echo
	status     *fakeStatus
	operator   *stubOperator
	registry   *providers.Registry
	reconciler *booking.Reconciler
}

func newEnv(t *testing.T) *env {
	t.Helper()
	log := testutil.QuietLogger()
	e := &env{
		db:       testutil.NewDB(t),
		echo:     echo.New(),
		status:   &fakeStatus{},
		operator: &stubOperator{name: "greenocean", result: &booking.ProviderBookingResult{Success: true, PNR: "GO123", ProviderBookingID: "77"}},
	}
	e.status.set(gateway.StateCompleted)
	e.registry = providers.NewRegistry(e.operator)
	e.reconciler = booking.NewReconciler(booking.ReconcilerConfig{
		DB:     e.db,
		Log:    log,
		Status: e.status,
		Booker: providers.NewBookingAdapter(e.registry, time.Second, log, nil),
	})
	e.echo.Validator = middleware.NewValidator()
	e.echo.HTTPErrorHandler = middleware.JSONErrorHandler(log)
	return e
}

func (e *env) createPayment(t *testing.T, orderID, payload string) *models.PaymentRecord {
	t.Helper()
	p := &models.PaymentRecord{
		MerchantOrderID: orderID,
		Gateway:         models.PaymentGatewayPhonePe,
		Status:          models.PaymentStatusPending,
		Amount:          decimal.NewFromInt(3000),
		Currency:        "INR",
		BookingData:     datatypes.JSON(payload),
	}
	require.NoError(t, e.db.Create(p).Error)
	return p
}

func (e *env) bookingCount(t *testing.T) int64 {
	t.Helper()
	var n int64
	require.NoError(t, e.db.Model(&models.BookingRecord{}).Count(&n).Error)
	return n
}

func (e *env) serve(method, target, body string, headers map[string]string) *httptest.ResponseRecorder {
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, target, r)
	if body != "" {
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	e.echo.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	return out
}

func checkoutBody(t *testing.T, bookingData string) string {
	t.Helper()
	b, err := json.Marshal(map[string]interface{}{
		"amount":        "3000",
		"customerName":  "Asha Rao",
		"customerEmail": "asha@example.com",
		"customerPhone": "9876543210",
		"bookingData":   json.RawMessage(bookingData),
	})
	require.NoError(t, err)
	return string(b)
}

func (e *env) findPayment(t *testing.T, orderID string) models.PaymentRecord {
	t.Helper()
	var p models.PaymentRecord
	require.NoError(t, e.db.Where("merchant_order_id = ?", orderID).First(&p).Error)
	return p
}

func (e *env) onlyBooking(t *testing.T) models.BookingRecord {
	t.Helper()
	var rec models.BookingRecord
	require.NoError(t, e.db.Preload("Items").First(&rec).Error)
	return rec
}
