// Package httpx provides the outbound HTTP client shared by the YouTube Data
// API lister and the Telegram notifier: per-host rate limiting that slows
// down on 429 responses, and a per-host circuit breaker.
package httpx

import (
	"fmt"
	"net/http"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

const (
	// MinRateMultiplier is the floor for throttling (25% of the configured rate).
	MinRateMultiplier = 0.25
	// ThrottleCooldown is how long after the last 429 the full rate is restored.
	ThrottleCooldown = 5 * time.Minute
)

// Config configures the shared client.
type Config struct {
	// Timeout for individual requests. Defaults to 30 seconds.
	Timeout time.Duration
	// UserAgent is set on requests that do not carry one.
	UserAgent string
	// RequestsPerSecond is the default per-host rate. 0 disables limiting.
	RequestsPerSecond float64
	// HostRates overrides RequestsPerSecond for specific hosts.
	HostRates map[string]float64
	// Breaker configures the per-host circuit breaker.
	Breaker BreakerConfig
}

// DefaultConfig returns the settings used by the CLI.
func DefaultConfig() Config {
	return Config{
		Timeout:           30 * time.Second,
		UserAgent:         "clipsync/1.0",
		RequestsPerSecond: 5,
		HostRates: map[string]float64{
			"youtube.googleapis.com": 1,
			"www.googleapis.com":     1,
		},
	}
}

type hostLimiter struct {
	limiter   *rate.Limiter
	base      rate.Limit
	throttled time.Time
}

// Transport is an http.RoundTripper that paces and guards requests per host.
// Responses are passed through untouched so API clients can decode their
// own error bodies.
type Transport struct {
	Base    http.RoundTripper
	Breaker *CircuitBreaker

	cfg      Config
	mu       sync.Mutex
	limiters map[string]*hostLimiter
	now      func() time.Time
}

// NewTransport creates a Transport over http.DefaultTransport.
func NewTransport(cfg Config) *Transport {
	return &Transport{
		Base:     http.DefaultTransport,
		Breaker:  NewCircuitBreaker(cfg.Breaker),
		cfg:      cfg,
		limiters: make(map[string]*hostLimiter),
		now:      time.Now,
	}
}

// NewClient returns an *http.Client using a new Transport.
func NewClient(cfg Config) *http.Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &http.Client{Timeout: timeout, Transport: NewTransport(cfg)}
}

// RoundTrip implements http.RoundTripper.
func (t *Transport) RoundTrip(req *http.Request) (*http.Response, error) {
	host := req.URL.Hostname()
	if err := t.Breaker.Allow(host); err != nil {
		return nil, fmt.Errorf("%s: %w", host, err)
	}
	if l := t.limiter(host); l != nil {
		if err := l.Wait(req.Context()); err != nil {
			return nil, err
		}
	}

	if t.cfg.UserAgent != "" && req.Header.Get("User-Agent") == "" {
		req = req.Clone(req.Context())
		req.Header.Set("User-Agent", t.cfg.UserAgent)
	}

	resp, err := t.base().RoundTrip(req)
	if err != nil {
		if req.Context().Err() == nil {
			t.Breaker.RecordFailure(host)
		}
		return nil, err
	}

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		t.throttle(host)
		t.Breaker.RecordFailure(host)
	case resp.StatusCode >= 500:
		t.Breaker.RecordFailure(host)
	default:
		t.restore(host)
		t.Breaker.RecordSuccess(host)
	}
	return resp, nil
}

// Rate returns the current limit for host, or 0 when it is not limited.
func (t *Transport) Rate(host string) float64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	if hl, ok := t.limiters[host]; ok {
		return float64(hl.limiter.Limit())
	}
	return t.rps(host)
}

func (t *Transport) base() http.RoundTripper {
	if t.Base != nil {
		return t.Base
	}
	return http.DefaultTransport
}

func (t *Transport) rps(host string) float64 {
	if r, ok := t.cfg.HostRates[host]; ok {
		return r
	}
	return t.cfg.RequestsPerSecond
}

func (t *Transport) limiter(host string) *rate.Limiter {
	t.mu.Lock()
	defer t.mu.Unlock()

	if hl, ok := t.limiters[host]; ok {
		return hl.limiter
	}
	rps := t.rps(host)
	if rps <= 0 {
		return nil
	}
	hl := &hostLimiter{limiter: rate.NewLimiter(rate.Limit(rps), 1), base: rate.Limit(rps)}
	t.limiters[host] = hl
	return hl.limiter
}

// throttle halves the host rate, down to MinRateMultiplier of the base rate.
func (t *Transport) throttle(host string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	hl, ok := t.limiters[host]
	if !ok {
		return
	}
	next := hl.limiter.Limit() / 2
	if floor := hl.base * MinRateMultiplier; next < floor {
		next = floor
	}
	hl.limiter.SetLimit(next)
	hl.throttled = t.now()
}

// restore restores the base rate once the cooldown has passed.
func (t *Transport) restore(host string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	hl, ok := t.limiters[host]
	if !ok || hl.throttled.IsZero() || t.now().Sub(hl.throttled) < ThrottleCooldown {
		return
	}
	hl.limiter.SetLimit(hl.base)
	hl.throttled = time.Time{}
}
