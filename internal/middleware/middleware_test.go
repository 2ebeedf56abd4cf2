package middleware

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"firebase.google.com/go/v4/auth"
	"github.com/labstack/echo/v4"
	"github.com/sirupsen/logrus"
	logtest "github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeVerifier struct {
	tokens map[string]string
}

func (f fakeVerifier) VerifyIDToken(_ context.Context, token string) (*auth.Token, error) {
	email, ok := f.tokens[token]
	if !ok {
		return nil, errors.New("bad token")
	}
	return &auth.Token{UID: "uid-" + token, Claims: map[string]interface{}{"email": email}}, nil
}

func newEcho(log *logrus.Logger) *echo.Echo {
	e := echo.New()
	e.HTTPErrorHandler = JSONErrorHandler(log)
	e.Validator = NewValidator()
	return e
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) ErrorResponse {
	t.Helper()
	var resp ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	return resp
}

func TestRequireAdmin(t *testing.T) {
	log, _ := logtest.NewNullLogger()
	verifier := fakeVerifier{tokens: map[string]string{"good": "ops@example.com", "other": "guest@example.com"}}

	tests := []struct {
		name   string
		header string
		want   int
	}{
		{name: "missing header", header: "", want: http.StatusUnauthorized},
		{name: "not bearer", header: "Basic abc", want: http.StatusUnauthorized},
		{name: "invalid token", header: "Bearer nope", want: http.StatusUnauthorized},
		{name: "not an admin", header: "Bearer other", want: http.StatusForbidden},
		{name: "admin", header: "Bearer good", want: http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := newEcho(log)
			e.GET("/admin", func(c echo.Context) error {
				return c.String(http.StatusOK, c.Get("userEmail").(string))
			}, RequireAdmin(verifier, []string{"OPS@example.com"}))

			req := httptest.NewRequest(http.MethodGet, "/admin", nil)
			if tt.header != "" {
				req.Header.Set(echo.HeaderAuthorization, tt.header)
			}
			rec := httptest.NewRecorder()
			e.ServeHTTP(rec, req)

			assert.Equal(t, tt.want, rec.Code)
			if tt.want == http.StatusOK {
				assert.Equal(t, "ops@example.com", rec.Body.String())
			} else {
				assert.False(t, decode(t, rec).Success)
			}
		})
	}
}

func TestRequireAdminWithoutVerifier(t *testing.T) {
	log, _ := logtest.NewNullLogger()
	e := newEcho(log)
	e.GET("/admin", func(c echo.Context) error { return nil }, RequireAdmin(nil, nil))

	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/admin", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestNewFirebaseVerifierWithoutCredentials(t *testing.T) {
	tests := []struct {
		name string
		path string
	}{
		{"empty path", ""},
		{"missing file", filepath.Join(t.TempDir(), "service-account.json")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			log, hook := logtest.NewNullLogger()
			verifier, err := NewFirebaseVerifier(context.Background(), tt.path, log)
			assert.ErrorIs(t, err, ErrNoCredentials)
			assert.True(t, verifier == nil, "failed setup must yield a nil interface")
			assert.Empty(t, hook.AllEntries())

			e := newEcho(log)
			e.GET("/admin", func(c echo.Context) error { return nil }, RequireAdmin(verifier, []string{"ops@example.com"}))
			rec := httptest.NewRecorder()
			e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/admin", nil))
			assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
		})
	}
}

func TestJSONErrorHandler(t *testing.T) {
	type body struct {
		Name string `validate:"required"`
	}

	log, hook := logtest.NewNullLogger()
	e := newEcho(log)
	e.GET("/boom", func(c echo.Context) error { return errors.New("db exploded") })
	e.GET("/invalid", func(c echo.Context) error { return c.Validate(&body{}) })
	e.GET("/teapot", func(c echo.Context) error { return echo.NewHTTPError(http.StatusTeapot, "short and stout") })

	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/boom", nil))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	resp := decode(t, rec)
	assert.NotContains(t, resp.Message, "db exploded")
	require.NotNil(t, hook.LastEntry())
	assert.Equal(t, logrus.ErrorLevel, hook.LastEntry().Level)

	rec = httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/invalid", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, []string{"Name failed required"}, decode(t, rec).Details)

	rec = httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/teapot", nil))
	assert.Equal(t, http.StatusTeapot, rec.Code)
	assert.Equal(t, "short and stout", decode(t, rec).Message)

	rec = httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/missing", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestLimiterStore(t *testing.T) {
	now := time.Date(2026, 10, 1, 10, 0, 0, 0, time.UTC)
	store := newLimiterStore(1, 2)
	store.now = func() time.Time { return now }

	allow := func(id string) bool {
		ok, err := store.Allow(id)
		require.NoError(t, err)
		return ok
	}

	assert.True(t, allow("a"))
	assert.True(t, allow("a"))
	assert.False(t, allow("a"))
	assert.True(t, allow("b"))

	now = now.Add(time.Second)
	assert.True(t, allow("a"))

	now = now.Add(10 * time.Minute)
	allow("c")
	assert.Len(t, store.visitors, 1)
}

func TestRateLimitMiddleware(t *testing.T) {
	log, _ := logtest.NewNullLogger()
	e := newEcho(log)
	e.Use(RateLimit(0.001, 1))
	e.GET("/", func(c echo.Context) error { return c.NoContent(http.StatusOK) })

	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
}

func TestRequestLogger(t *testing.T) {
	log, hook := logtest.NewNullLogger()
	e := newEcho(log)
	e.Use(RequestLogger(log))
	e.GET("/ok", func(c echo.Context) error { return c.NoContent(http.StatusNoContent) })

	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/ok", nil))

	entry := hook.LastEntry()
	require.NotNil(t, entry)
	assert.Equal(t, "request", entry.Message)
	assert.Equal(t, http.StatusNoContent, entry.Data["status"])
	assert.Equal(t, "/ok", entry.Data["uri"])
}
