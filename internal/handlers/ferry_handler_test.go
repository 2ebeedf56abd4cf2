package handlers

import (
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"andaman_booking_echo/internal/providers"
	"andaman_booking_echo/internal/services"
	"andaman_booking_echo/internal/sessions"
	"andaman_booking_echo/internal/testutil"
)

type ferryEnv struct {
	*env
	sealink *stubOperator
	store   *sessions.MemoryStore
	handler *FerryHandler
}

func newFerryEnv(t *testing.T, cache *services.RedisCache) *ferryEnv {
	e := newEnv(t)
	f := &ferryEnv{
		env:     e,
		sealink: &stubOperator{name: "sealink"},
		store:   sessions.NewMemoryStore(testutil.QuietLogger()),
	}
	e.operator.ferries = []providers.Ferry{{ID: "greenocean-1-2", Operator: "greenocean", DepartureTime: "09:00"}}
	f.sealink.ferries = []providers.Ferry{{ID: "sealink-abc", Operator: "sealink", DepartureTime: "07:15"}}
	e.registry.Register(f.sealink)

	f.handler = NewFerryHandler(FerryHandlerConfig{
		Registry:   e.registry,
		Sessions:   f.store,
		Cache:      cache,
		Log:        testutil.QuietLogger(),
		SessionTTL: time.Minute,
	})
	e.echo.POST("/api/ferry", f.handler.Post)
	e.echo.GET("/api/ferry", f.handler.Get)
	return f
}

const searchBody = `{"from":"Port Blair","to":"Havelock","date":"2026-11-20","passengers":2}`

func TestFerrySearchMergesOperators(t *testing.T) {
	e := newFerryEnv(t, nil)

	rec := e.serve(http.MethodPost, "/api/ferry?action=search", searchBody, nil)

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	resp := decode[struct {
		Success bool              `json:"success"`
		Data    []providers.Ferry `json:"data"`
	}](t, rec)
	assert.True(t, resp.Success)
	require.Len(t, resp.Data, 2)
	assert.Equal(t, "sealink-abc", resp.Data[0].ID)
	assert.Equal(t, "greenocean-1-2", resp.Data[1].ID)
}

func TestFerrySearchPartialFailure(t *testing.T) {
	e := newFerryEnv(t, nil)
	e.sealink.err = errors.New("sealink down")

	rec := e.serve(http.MethodPost, "/api/ferry?action=search", searchBody, nil)

	require.Equal(t, http.StatusOK, rec.Code)
	resp := decode[struct {
		Data   []providers.Ferry `json:"data"`
		Errors map[string]string `json:"errors"`
	}](t, rec)
	require.Len(t, resp.Data, 1)
	assert.Equal(t, "sealink down", resp.Errors["sealink"])
}

func TestFerrySearchAllOperatorsDown(t *testing.T) {
	e := newFerryEnv(t, nil)
	e.operator.err = errors.New("greenocean down")
	e.sealink.err = errors.New("sealink down")

	rec := e.serve(http.MethodPost, "/api/ferry?action=search", searchBody, nil)

	assert.Equal(t, http.StatusBadGateway, rec.Code)
}

func TestFerrySearchValidation(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{name: "missing from", body: `{"to":"Havelock","date":"2026-11-20"}`},
		{name: "same endpoints", body: `{"from":"Havelock","to":"Havelock","date":"2026-11-20"}`},
		{name: "bad date", body: `{"from":"Port Blair","to":"Havelock","date":"20-11-2026"}`},
		{name: "too many passengers", body: `{"from":"Port Blair","to":"Havelock","date":"2026-11-20","passengers":40}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := newFerryEnv(t, nil)

			rec := e.serve(http.MethodPost, "/api/ferry?action=search", tt.body, nil)

			assert.Equal(t, http.StatusBadRequest, rec.Code)
			assert.Zero(t, e.operator.searches.Load())
		})
	}
}

func TestFerrySearchUsesCache(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	e := newFerryEnv(t, services.NewRedisCacheFromClient(client))

	for i := 0; i < 2; i++ {
		rec := e.serve(http.MethodPost, "/api/ferry?action=search", searchBody, nil)
		require.Equal(t, http.StatusOK, rec.Code)
	}

	assert.Equal(t, int32(1), e.operator.searches.Load())
	assert.True(t, mr.Exists("ferry:search:port blair:havelock:2026-11-20:2"))
}

func TestFerrySeatLayout(t *testing.T) {
	e := newFerryEnv(t, nil)

	rec := e.serve(http.MethodPost, "/api/ferry?action=seat-layout", `{"ferryId":"greenocean-1-2","classId":"3","date":"2026-11-20"}`, nil)

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "1-2", e.operator.lastQuery.OperatorFerryID)
	assert.Equal(t, "3", e.operator.lastQuery.ClassID)
	assert.Equal(t, time.Date(2026, 11, 20, 0, 0, 0, 0, time.UTC), e.operator.lastQuery.Date)

	rec = e.serve(http.MethodPost, "/api/ferry?action=seat-layout", `{"ferryId":"nowhere-1"}`, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestFerrySessionLifecycle(t *testing.T) {
	e := newFerryEnv(t, nil)

	rec := e.serve(http.MethodPost, "/api/ferry?action=create-session", `{"ferryId":"greenocean-1-2","seats":["A1"]}`, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	created := decode[struct {
		SessionID string `json:"sessionId"`
	}](t, rec)
	require.NotEmpty(t, created.SessionID)

	rec = e.serve(http.MethodGet, "/api/ferry?action=get-session&sessionId="+created.SessionID, "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	got := decode[struct {
		Data sessions.Session `json:"data"`
	}](t, rec)
	assert.JSONEq(t, `{"ferryId":"greenocean-1-2","seats":["A1"]}`, string(got.Data.Data))

	rec = e.serve(http.MethodGet, "/api/ferry?action=get-session&sessionId=unknown", "", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = e.serve(http.MethodPost, "/api/ferry?action=create-session", `[]`, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestFerrySessionExpires(t *testing.T) {
	e := newFerryEnv(t, nil)
	e.handler.now = func() time.Time { return time.Now().Add(-2 * time.Minute) }

	rec := e.serve(http.MethodPost, "/api/ferry?action=create-session", `{"ferryId":"greenocean-1-2"}`, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	created := decode[struct {
		SessionID string `json:"sessionId"`
	}](t, rec)

	rec = e.serve(http.MethodGet, "/api/ferry?action=get-session&sessionId="+created.SessionID, "", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestFerryDownloadTicket(t *testing.T) {
	e := newFerryEnv(t, nil)
	e.operator.ticket = &providers.Ticket{PNR: "GO123", ContentType: "application/pdf", Data: []byte("%PDF-1.4")}

	rec := e.serve(http.MethodGet, "/api/ferry?action=download-pdf&pnr=GO123&operator=greenocean", "", nil)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/pdf", rec.Header().Get("Content-Type"))
	assert.Contains(t, rec.Header().Get("Content-Disposition"), "ticket-GO123.pdf")
	assert.Equal(t, "%PDF-1.4", rec.Body.String())

	rec = e.serve(http.MethodGet, "/api/ferry?action=download-pdf&pnr=GO123", "", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestFerryHealth(t *testing.T) {
	e := newFerryEnv(t, nil)
	e.sealink.err = errors.New("timeout")

	rec := e.serve(http.MethodGet, "/api/ferry?action=health", "", nil)

	require.Equal(t, http.StatusOK, rec.Code)
	resp := decode[struct {
		Success   bool              `json:"success"`
		Operators map[string]string `json:"operators"`
	}](t, rec)
	assert.False(t, resp.Success)
	assert.Equal(t, map[string]string{"greenocean": "ok", "sealink": "timeout"}, resp.Operators)
}

func TestFerryUnknownAction(t *testing.T) {
	e := newFerryEnv(t, nil)

	assert.Equal(t, http.StatusBadRequest, e.serve(http.MethodGet, "/api/ferry?action=book", "", nil).Code)
	assert.Equal(t, http.StatusBadRequest, e.serve(http.MethodPost, "/api/ferry", `{}`, nil).Code)
}
