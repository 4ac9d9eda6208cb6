package rate

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"
)

// RateLimitError is returned when calls are blocked.
type RateLimitError struct {
	Provider string
	Reason   string
	RetryAt  time.Time
}

func (e RateLimitError) Error() string {
	if e.RetryAt.IsZero() {
		return fmt.Sprintf("%s rate limited: %s", e.Provider, e.Reason)
	}
	return fmt.Sprintf("%s rate limited: %s (retry at %s)", e.Provider, e.Reason, e.RetryAt.UTC().Format(time.RFC3339))
}

type Decision struct {
	Allowed bool
	Reason  string
	RetryAt time.Time
}

type bucket struct {
	capacity int
	tokens   float64
	last     time.Time
}

// reported is the provider's own view of a window, valid until resetAt.
type reported struct {
	remaining int
	resetAt   time.Time
}

// Guard enforces rate limits for a provider.
type Guard struct {
	decl Declaration
	now  func() time.Time

	mu sync.Mutex
	// fields below are mutated under mu
	buckets    map[Window]*bucket
	reported   map[Window]reported
	cooldown   time.Time
	lastStatus int
}

// NewGuard builds a guard for decl. A nil clock uses time.Now.
func NewGuard(decl Declaration, now func() time.Time) *Guard {
	if now == nil {
		now = time.Now
	}
	g := &Guard{
		decl:     decl,
		now:      now,
		buckets:  make(map[Window]*bucket),
		reported: make(map[Window]reported),
	}
	start := now()
	for window, limit := range decl.Limits() {
		g.buckets[window] = &bucket{capacity: limit, tokens: float64(limit), last: start}
	}
	return g
}

// WrapHTTP wraps an http.Client with rate-limit enforcement.
func WrapHTTP(decl Declaration, base *http.Client) *http.Client {
	return NewGuard(decl, nil).Wrap(base)
}

// Wrap returns a copy of base whose transport consults the guard.
func (g *Guard) Wrap(base *http.Client) *http.Client {
	if base == nil {
		base = &http.Client{}
	}
	client := *base
	transport := client.Transport
	if transport == nil {
		transport = http.DefaultTransport
	}
	client.Transport = &roundTripper{base: transport, guard: g}
	return &client
}

type roundTripper struct {
	base  http.RoundTripper
	guard *Guard
}

func (rt *roundTripper) RoundTrip(req *http.Request) (*http.Response, error) {
	decision := rt.guard.ShouldCall()
	if !decision.Allowed {
		if req.Body != nil {
			req.Body.Close()
		}
		deniedCounter.WithLabelValues(rt.guard.decl.ProviderName(), decision.Reason).Inc()
		return nil, RateLimitError{
			Provider: rt.guard.decl.ProviderName(),
			Reason:   decision.Reason,
			RetryAt:  decision.RetryAt,
		}
	}

	resp, err := rt.base.RoundTrip(req)
	if err != nil {
		return resp, err
	}
	rt.guard.RecordResponse(resp.StatusCode, resp.Header)
	return resp, nil
}

// ShouldCall consumes one request from every window, or explains why not.
func (g *Guard) ShouldCall() Decision {
	g.mu.Lock()
	defer g.mu.Unlock()

	now := g.now()
	if !g.cooldown.IsZero() && now.Before(g.cooldown) {
		return Decision{Allowed: false, Reason: "cooldown", RetryAt: g.cooldown}
	}

	for window, limit := range g.decl.Limits() {
		if rep, ok := g.reported[window]; ok {
			if rep.resetAt.IsZero() || now.Before(rep.resetAt) {
				if rep.remaining <= g.decl.BudgetFloors()[window] {
					return Decision{Allowed: false, Reason: "budget", RetryAt: rep.resetAt}
				}
				continue
			}
			delete(g.reported, window)
		}
		b := g.buckets[window]
		if !b.take(now, window.Duration()) {
			retryAt := b.last.Add(window.Duration() / time.Duration(limit))
			return Decision{Allowed: false, Reason: "budget", RetryAt: retryAt}
		}
	}

	for window, rep := range g.reported {
		rep.remaining--
		g.reported[window] = rep
	}
	return Decision{Allowed: true}
}

// RecordResponse updates the guard from a provider response.
func (g *Guard) RecordResponse(status int, headers http.Header) {
	g.mu.Lock()
	defer g.mu.Unlock()

	provider := g.decl.ProviderName()
	now := g.now()
	g.lastStatus = status
	lastStatusGauge.WithLabelValues(provider).Set(float64(status))

	cfg := g.decl.Headers()
	update := func(window Window, remainingKey, resetKey string) {
		remaining := headerInt(headers, remainingKey)
		if remaining < 0 {
			return
		}
		resetAt := headerTime(headers, resetKey, now)
		if resetAt.IsZero() {
			// Without a reset the reported budget would never expire.
			resetAt = now.Add(window.Duration())
		}
		g.reported[window] = reported{remaining: remaining, resetAt: resetAt}
		remainingGauge.WithLabelValues(provider, window.String()).Set(float64(remaining))
	}
	update(Minute, cfg.RemainingMinute, cfg.ResetMinute)
	update(Day, cfg.RemainingDay, cfg.ResetDay)

	if status != http.StatusTooManyRequests {
		return
	}
	if retryAfter := headerInt(headers, cfg.RetryAfter); retryAfter > 0 {
		g.cooldown = now.Add(time.Duration(retryAfter) * time.Second)
	} else if reset := headerTime(headers, cfg.ResetMinute, now); !reset.IsZero() {
		g.cooldown = reset
	} else {
		g.cooldown = now.Add(Minute.Duration())
	}
	retryAfterGauge.WithLabelValues(provider).Set(g.cooldown.Sub(now).Seconds())
}

// LastStatus returns the most recent status code seen by the guard.
func (g *Guard) LastStatus() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.lastStatus
}

func (b *bucket) take(now time.Time, window time.Duration) bool {
	elapsed := now.Sub(b.last).Seconds()
	if elapsed > 0 {
		refill := float64(b.capacity) / window.Seconds()
		b.tokens = min(float64(b.capacity), b.tokens+elapsed*refill)
		b.last = now
	}
	if b.tokens >= 1 {
		b.tokens--
		return true
	}
	return false
}

func headerInt(h http.Header, key string) int {
	if key == "" {
		return -1
	}
	val := strings.TrimSpace(h.Get(key))
	if val == "" {
		return -1
	}
	out, err := strconv.Atoi(val)
	if err != nil {
		return -1
	}
	return out
}

// headerTime reads a reset header. Values that look like epoch timestamps
// (seconds or milliseconds) are absolute; small values are seconds from now.
func headerTime(h http.Header, key string, now time.Time) time.Time {
	raw := headerInt(h, key)
	switch {
	case raw < 0:
		return time.Time{}
	case raw >= 1e12:
		return time.UnixMilli(int64(raw))
	case raw >= 1e9:
		return time.Unix(int64(raw), 0)
	default:
		return now.Add(time.Duration(raw) * time.Second)
	}
}
