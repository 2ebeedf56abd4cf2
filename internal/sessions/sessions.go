// Package sessions keeps the short-lived booking sessions a checkout builds
// between seat selection and payment.
package sessions

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
)

var ErrNotFound = errors.New("session not found or expired")

type Session struct {
	ID        string          `json:"id"`
	Data      json.RawMessage `json:"data"`
	CreatedAt time.Time       `json:"createdAt"`
	ExpiresAt time.Time       `json:"expiresAt"`
}

// NewSession stamps a fresh id and expiry on data.
func NewSession(data json.RawMessage, now time.Time, ttl time.Duration) *Session {
	return &Session{
		ID:        uuid.NewString(),
		Data:      data,
		CreatedAt: now,
		ExpiresAt: now.Add(ttl),
	}
}

func (s *Session) Expired(now time.Time) bool {
	return !now.Before(s.ExpiresAt)
}

// Store persists sessions until they expire.
type Store interface {
	Get(ctx context.Context, id string) (*Session, error)
	Set(ctx context.Context, s *Session) error
	Delete(ctx context.Context, id string) error
	// Sweep drops expired sessions and reports how many went.
	Sweep(ctx context.Context) (int, error)
}
