// Package poller drives a payment return page: it asks the status endpoint
// until the payment reaches a terminal state or the retry budget runs out.
package poller

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"
)

type State string

const (
	StateChecking                    State = "checking"
	StateSuccess                     State = "success"
	StateFailed                      State = "failed"
	StatePending                     State = "pending"
	StatePaymentSuccessBookingFailed State = "payment_success_booking_failed"
)

func (s State) Terminal() bool {
	return s != StateChecking
}

const (
	DefaultMaxRetries    = 10
	DefaultInterval      = 3 * time.Second
	DefaultRedirectDelay = 3 * time.Second
)

// ErrNotFound means the status endpoint does not know the merchant order id.
var ErrNotFound = errors.New("payment not found")

// Response is the status endpoint body.
type Response struct {
	Success         bool                   `json:"success"`
	Status          string                 `json:"status"`
	TransactionID   string                 `json:"transactionId,omitempty"`
	Booking         map[string]interface{} `json:"booking,omitempty"`
	ProviderBooking map[string]interface{} `json:"providerBooking,omitempty"`
	Message         string                 `json:"message,omitempty"`
	ErrorType       string                 `json:"errorType,omitempty"`
	RequiresRefund  bool                   `json:"requiresRefund,omitempty"`
	Details         string                 `json:"details,omitempty"`
}

// gatewayState folds the spellings integrations use for the same state.
func (r *Response) gatewayState() string {
	switch s := strings.ToUpper(strings.TrimSpace(r.Status)); s {
	case "COMPLETED", "SUCCESS", "PAYMENT_SUCCESS":
		return "COMPLETED"
	case "FAILED", "FAILURE", "PAYMENT_ERROR", "PAYMENT_DECLINED":
		return "FAILED"
	case "PENDING", "PAYMENT_PENDING":
		return "PENDING"
	default:
		return ""
	}
}

type Checker interface {
	Check(ctx context.Context, merchantOrderID string) (*Response, error)
}

type Timer interface {
	Stop() bool
}

// Scheduler abstracts time.AfterFunc so tests can fire timers by hand.
type Scheduler interface {
	AfterFunc(d time.Duration, f func()) Timer
}

type realScheduler struct{}

func (realScheduler) AfterFunc(d time.Duration, f func()) Timer {
	return time.AfterFunc(d, f)
}

type Config struct {
	MaxRetries    int
	Interval      time.Duration
	RedirectDelay time.Duration
}

func (c *Config) defaults() {
	if c.MaxRetries <= 0 {
		c.MaxRetries = DefaultMaxRetries
	}
	if c.Interval <= 0 {
		c.Interval = DefaultInterval
	}
	if c.RedirectDelay <= 0 {
		c.RedirectDelay = DefaultRedirectDelay
	}
}

// Callbacks are invoked outside the poller's lock. Any may be nil.
type Callbacks struct {
	OnStateChange    func(State, *Response)
	OnRedirect       func(State)
	SaveConfirmation func(*Response)
}

type Option func(*Poller)

func WithScheduler(s Scheduler) Option { return func(p *Poller) { p.sched = s } }
func WithConfig(c Config) Option       { return func(p *Poller) { p.cfg = c } }
func WithCallbacks(cb Callbacks) Option {
	return func(p *Poller) { p.cb = cb }
}

// Poller holds at most one pending timer. Every transition stops the previous
// timer and bumps a generation counter so a timer that already fired cannot
// start a second check.
type Poller struct {
	merchantOrderID string
	checker         Checker
	sched           Scheduler
	cfg             Config
	cb              Callbacks

	mu       sync.Mutex
	ctx      context.Context
	state    State
	last     *Response
	attempts int
	timer    Timer
	gen      uint64
	inFlight bool
	stopped  bool
	done     chan struct{}
}

func New(merchantOrderID string, checker Checker, opts ...Option) *Poller {
	p := &Poller{
		merchantOrderID: merchantOrderID,
		checker:         checker,
		sched:           realScheduler{},
		state:           StateChecking,
		done:            make(chan struct{}),
	}
	for _, opt := range opts {
		opt(p)
	}
	p.cfg.defaults()
	return p
}

func (p *Poller) State() State {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

func (p *Poller) Attempts() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.attempts
}

func (p *Poller) Last() *Response {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.last
}

// Done is closed once the poller reaches a terminal state or is stopped.
func (p *Poller) Done() <-chan struct{} {
	return p.done
}

// Start runs the first check on the calling goroutine.
func (p *Poller) Start(ctx context.Context) {
	p.mu.Lock()
	p.ctx = ctx
	p.mu.Unlock()
	p.check()
}

// CheckNow cancels any scheduled check and checks immediately, as when the
// user reloads the return page.
func (p *Poller) CheckNow() {
	p.mu.Lock()
	p.cancelTimer()
	p.mu.Unlock()
	p.check()
}

func (p *Poller) Stop() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.stopped {
		return
	}
	p.stopped = true
	p.cancelTimer()
	if !p.state.Terminal() {
		close(p.done)
	}
}

// cancelTimer must be called with mu held.
func (p *Poller) cancelTimer() {
	p.gen++
	if p.timer != nil {
		p.timer.Stop()
		p.timer = nil
	}
}

// schedule must be called with mu held.
func (p *Poller) schedule(d time.Duration, f func()) {
	p.cancelTimer()
	gen := p.gen
	p.timer = p.sched.AfterFunc(d, func() {
		p.mu.Lock()
		if p.gen != gen || p.stopped {
			p.mu.Unlock()
			return
		}
		p.timer = nil
		p.mu.Unlock()
		f()
	})
}

func (p *Poller) check() {
	p.mu.Lock()
	if p.state.Terminal() || p.stopped || p.inFlight {
		p.mu.Unlock()
		return
	}
	p.inFlight = true
	p.attempts++
	ctx := p.ctx
	if ctx == nil {
		ctx = context.Background()
	}
	p.mu.Unlock()

	resp, err := p.checker.Check(ctx, p.merchantOrderID)

	p.mu.Lock()
	p.inFlight = false
	if p.stopped {
		p.mu.Unlock()
		return
	}
	after := p.handle(resp, err)
	p.mu.Unlock()

	for _, f := range after {
		f()
	}
}

// handle applies one check result and returns the callbacks to run once the
// lock is released. mu must be held.
func (p *Poller) handle(resp *Response, err error) []func() {
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return p.transition(StateFailed, resp, true)
		}
		return p.retryOr(StateFailed, resp)
	}

	p.last = resp
	switch resp.gatewayState() {
	case "COMPLETED":
		if !resp.Success {
			return p.transition(StatePaymentSuccessBookingFailed, resp, false)
		}
		after := p.transition(StateSuccess, resp, true)
		if p.cb.SaveConfirmation != nil {
			save := p.cb.SaveConfirmation
			after = append([]func(){func() { save(resp) }}, after...)
		}
		return after
	case "FAILED":
		return p.transition(StateFailed, resp, true)
	case "PENDING":
		return p.retryOr(StatePending, resp)
	default:
		// an answer without a usable state counts against the budget like a
		// transport error
		return p.retryOr(StateFailed, resp)
	}
}

func (p *Poller) retryOr(exhausted State, resp *Response) []func() {
	if p.attempts >= p.cfg.MaxRetries {
		return p.transition(exhausted, resp, false)
	}
	p.schedule(p.cfg.Interval, p.check)
	return nil
}

func (p *Poller) transition(next State, resp *Response, redirect bool) []func() {
	p.cancelTimer()
	p.state = next
	close(p.done)

	var after []func()
	if p.cb.OnStateChange != nil {
		onChange := p.cb.OnStateChange
		after = append(after, func() { onChange(next, resp) })
	}
	if redirect && p.cb.OnRedirect != nil {
		onRedirect := p.cb.OnRedirect
		p.schedule(p.cfg.RedirectDelay, func() { onRedirect(next) })
	}
	return after
}
