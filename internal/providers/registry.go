package providers

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"

	"andaman_booking_echo/internal/booking"
)

// Registry maps an operator name to its provider.
type Registry struct {
	mu        sync.RWMutex
	providers map[string]FerryProvider
}

func NewRegistry(providers ...FerryProvider) *Registry {
	r := &Registry{providers: make(map[string]FerryProvider)}
	for _, p := range providers {
		r.Register(p)
	}
	return r
}

func (r *Registry) Register(p FerryProvider) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.providers[booking.NormalizeOperator(p.Name())] = p
}

func (r *Registry) Get(operator string) (FerryProvider, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.providers[booking.NormalizeOperator(operator)]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownOperator, operator)
	}
	return p, nil
}

// ForFerryID resolves the provider from an operator-prefixed ferry id.
func (r *Registry) ForFerryID(ferryID string) (FerryProvider, string, error) {
	operator, rest, found := strings.Cut(ferryID, "-")
	if !found {
		return nil, "", fmt.Errorf("%w: ferry id %q has no operator prefix", ErrUnknownOperator, ferryID)
	}
	p, err := r.Get(operator)
	return p, rest, err
}

func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.providers))
	for name := range r.providers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// SearchAll queries every operator in parallel. An operator that fails does
// not hide the others; its error is reported by name.
func (r *Registry) SearchAll(ctx context.Context, q SearchQuery) ([]Ferry, map[string]string) {
	names := r.Names()
	results := make([][]Ferry, len(names))
	errs := make([]error, len(names))

	g, gctx := errgroup.WithContext(ctx)
	for i, name := range names {
		p, _ := r.Get(name)
		g.Go(func() error {
			results[i], errs[i] = p.Search(gctx, q)
			return nil
		})
	}
	_ = g.Wait()

	var ferries []Ferry
	failures := map[string]string{}
	for i, name := range names {
		if errs[i] != nil {
			failures[name] = errs[i].Error()
			continue
		}
		ferries = append(ferries, results[i]...)
	}
	sort.SliceStable(ferries, func(a, b int) bool {
		return ferries[a].DepartureTime < ferries[b].DepartureTime
	})
	return ferries, failures
}

// Health reports "ok" or the error for every operator.
func (r *Registry) Health(ctx context.Context) map[string]string {
	names := r.Names()
	statuses := make([]string, len(names))

	var g errgroup.Group
	for i, name := range names {
		p, _ := r.Get(name)
		g.Go(func() error {
			if err := p.Health(ctx); err != nil {
				statuses[i] = err.Error()
			} else {
				statuses[i] = "ok"
			}
			return nil
		})
	}
	_ = g.Wait()

	out := make(map[string]string, len(names))
	for i, name := range names {
		out[name] = statuses[i]
	}
	return out
}
