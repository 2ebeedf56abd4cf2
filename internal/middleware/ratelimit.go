package middleware

import (
	"net/http"
	"sync"
	"time"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"golang.org/x/time/rate"
)

// limiterStore keeps one token bucket per client and forgets clients idle
// for longer than expiry.
type limiterStore struct {
	mu       sync.Mutex
	limit    rate.Limit
	burst    int
	expiry   time.Duration
	visitors map[string]*visitor
	lastGC   time.Time
	now      func() time.Time
}

type visitor struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

func newLimiterStore(rps float64, burst int) *limiterStore {
	return &limiterStore{
		limit:    rate.Limit(rps),
		burst:    burst,
		expiry:   3 * time.Minute,
		visitors: make(map[string]*visitor),
		now:      time.Now,
	}
}

func (s *limiterStore) Allow(identifier string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	v, ok := s.visitors[identifier]
	if !ok {
		v = &visitor{limiter: rate.NewLimiter(s.limit, s.burst)}
		s.visitors[identifier] = v
	}
	v.lastSeen = now

	if now.Sub(s.lastGC) > s.expiry {
		for id, other := range s.visitors {
			if now.Sub(other.lastSeen) > s.expiry {
				delete(s.visitors, id)
			}
		}
		s.lastGC = now
	}
	return v.limiter.AllowN(now, 1), nil
}

// RateLimit limits each client IP to rps requests per second with the given
// burst.
func RateLimit(rps float64, burst int) echo.MiddlewareFunc {
	return echomw.RateLimiterWithConfig(echomw.RateLimiterConfig{
		Store: newLimiterStore(rps, burst),
		IdentifierExtractor: func(c echo.Context) (string, error) {
			return c.RealIP(), nil
		},
		DenyHandler: func(c echo.Context, _ string, _ error) error {
			return echo.NewHTTPError(http.StatusTooManyRequests, "too many requests")
		},
	})
}
