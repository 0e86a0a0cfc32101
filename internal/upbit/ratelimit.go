package upbit

import (
	"context"
	"sync"
	"time"
)

// Request groups with separate exchange-side quotas
const (
	GroupPublic   = "public"   // quotation endpoints
	GroupExchange = "exchange" // authenticated order/account endpoints
)

// Pacer enforces a fixed minimum spacing between requests per group. The
// spacing is deliberate backpressure toward the exchange, not best-effort:
// a caller always waits out the full gap, so burst traffic cannot trip the
// exchange-side limiter no matter how many symbols a cycle walks.
type Pacer struct {
	mu       sync.Mutex
	spacing  map[string]time.Duration
	lastCall map[string]time.Time
}

// NewPacer creates a Pacer with the given per-group spacing
func NewPacer(spacing map[string]time.Duration) *Pacer {
	return &Pacer{
		spacing:  spacing,
		lastCall: make(map[string]time.Time),
	}
}

// DefaultPacer returns a Pacer tuned to Upbit's published limits with
// headroom (public quotation: 10 req/s, exchange: 8 req/s).
func DefaultPacer() *Pacer {
	return NewPacer(map[string]time.Duration{
		GroupPublic:   120 * time.Millisecond,
		GroupExchange: 150 * time.Millisecond,
	})
}

// Wait blocks until the group's spacing has elapsed since the previous
// request, or until ctx is cancelled.
func (p *Pacer) Wait(ctx context.Context, group string) error {
	p.mu.Lock()
	gap := p.spacing[group]
	last := p.lastCall[group]
	now := time.Now()
	wait := gap - now.Sub(last)
	if wait < 0 {
		wait = 0
	}
	// Reserve the slot before sleeping so concurrent callers queue up
	// behind each other instead of all waking at once.
	p.lastCall[group] = now.Add(wait)
	p.mu.Unlock()

	if wait == 0 {
		return nil
	}

	timer := time.NewTimer(wait)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
