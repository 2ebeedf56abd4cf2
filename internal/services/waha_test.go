package services

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"andaman_booking_echo/internal/config"
	"andaman_booking_echo/internal/testutil"
)

func TestNormalizeChatID(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{
			name:     "phone number with leading zero",
			input:    "09876543210",
			expected: "919876543210@c.us",
		},
		{
			name:     "bare ten digit number",
			input:    "9876543210",
			expected: "919876543210@c.us",
		},
		{
			name:     "phone number with country code",
			input:    "919876543210",
			expected: "919876543210@c.us",
		},
		{
			name:     "plus and spaces",
			input:    "+91 98765 43210",
			expected: "919876543210@c.us",
		},
		{
			name:     "group id",
			input:    "120363407813232111@g.us",
			expected: "120363407813232111@g.us",
		},
		{
			name:     "leading zero with suffix",
			input:    "09876543210@c.us",
			expected: "919876543210@c.us",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, NormalizeChatID(tt.input))
		})
	}
}

func TestWahaSendMessageSequence(t *testing.T) {
	var mu sync.Mutex
	var calls []string
	var text map[string]string

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "key", r.Header.Get("X-Api-Key"))
		mu.Lock()
		defer mu.Unlock()
		calls = append(calls, r.URL.Path)
		if r.URL.Path == "/api/sendText" {
			_ = json.NewDecoder(r.Body).Decode(&text)
		}
		w.WriteHeader(http.StatusCreated)
	}))
	defer srv.Close()

	waha := NewWahaService(config.WahaConfig{BaseURL: srv.URL, APIKey: "key", Session: "ops"}, testutil.QuietLogger())
	waha.pace = [3]time.Duration{}

	require.NoError(t, waha.SendMessage(context.Background(), "9876543210", "Booking AE-1 confirmed"))
	assert.Equal(t, []string{"/api/sendSeen", "/api/startTyping", "/api/stopTyping", "/api/sendText"}, calls)
	assert.Equal(t, "919876543210@c.us", text["chatId"])
	assert.Equal(t, "ops", text["session"])
	assert.Equal(t, "Booking AE-1 confirmed", text["text"])
}

func TestWahaSendMessageStopsOnError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte("bad key"))
	}))
	defer srv.Close()

	waha := NewWahaService(config.WahaConfig{BaseURL: srv.URL}, testutil.QuietLogger())
	err := waha.SendMessage(context.Background(), "9876543210", "hi")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to send seen")
	assert.Contains(t, err.Error(), "401")
}
