package httpx

import (
	"errors"
	"sync"
	"time"
)

// CircuitState represents the state of a circuit breaker.
type CircuitState int

const (
	// CircuitClosed is the normal state where requests are allowed.
	CircuitClosed CircuitState = iota
	// CircuitOpen is the state where requests fail fast.
	CircuitOpen
	// CircuitHalfOpen is the testing state where one request is allowed.
	CircuitHalfOpen
)

func (s CircuitState) String() string {
	switch s {
	case CircuitClosed:
		return "closed"
	case CircuitOpen:
		return "open"
	case CircuitHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

const (
	DefaultFailureThreshold = 5
	DefaultRecoveryTimeout  = 30 * time.Second
)

// ErrCircuitOpen is returned when the circuit for a host is open.
var ErrCircuitOpen = errors.New("httpx: circuit breaker is open")

// BreakerConfig configures circuit breaker behavior.
type BreakerConfig struct {
	// FailureThreshold is the number of consecutive failures to open the circuit.
	FailureThreshold int
	// RecoveryTimeout is how long the circuit stays open before a test request.
	RecoveryTimeout time.Duration
}

type circuit struct {
	state             CircuitState
	consecutiveErrors int
	lastStateChange   time.Time
	probing           bool
}

// CircuitBreaker tracks consecutive failures per host and fails fast while
// a host is considered down.
type CircuitBreaker struct {
	mu       sync.Mutex
	circuits map[string]*circuit
	config   BreakerConfig
	now      func() time.Time
}

// NewCircuitBreaker creates a circuit breaker, filling zero config values
// with the defaults.
func NewCircuitBreaker(cfg BreakerConfig) *CircuitBreaker {
	if cfg.FailureThreshold <= 0 {
		cfg.FailureThreshold = DefaultFailureThreshold
	}
	if cfg.RecoveryTimeout <= 0 {
		cfg.RecoveryTimeout = DefaultRecoveryTimeout
	}
	return &CircuitBreaker{
		circuits: make(map[string]*circuit),
		config:   cfg,
		now:      time.Now,
	}
}

// Allow returns ErrCircuitOpen when requests to host should not be sent.
// Once the recovery timeout has passed a single probe request is let through.
func (cb *CircuitBreaker) Allow(host string) error {
	if cb == nil {
		return nil
	}
	cb.mu.Lock()
	defer cb.mu.Unlock()

	c := cb.get(host)
	switch c.state {
	case CircuitOpen:
		if cb.now().Sub(c.lastStateChange) < cb.config.RecoveryTimeout {
			return ErrCircuitOpen
		}
		c.state = CircuitHalfOpen
		c.lastStateChange = cb.now()
		c.probing = true
		return nil
	case CircuitHalfOpen:
		if c.probing {
			return ErrCircuitOpen
		}
		c.probing = true
	}
	return nil
}

// RecordSuccess closes the circuit for host.
func (cb *CircuitBreaker) RecordSuccess(host string) {
	if cb == nil {
		return
	}
	cb.mu.Lock()
	defer cb.mu.Unlock()

	c := cb.get(host)
	if c.state != CircuitClosed {
		c.lastStateChange = cb.now()
	}
	c.state = CircuitClosed
	c.consecutiveErrors = 0
	c.probing = false
}

// RecordFailure counts a failure for host, opening the circuit at the threshold.
// A failed probe reopens it immediately.
func (cb *CircuitBreaker) RecordFailure(host string) {
	if cb == nil {
		return
	}
	cb.mu.Lock()
	defer cb.mu.Unlock()

	c := cb.get(host)
	c.consecutiveErrors++
	switch c.state {
	case CircuitClosed:
		if c.consecutiveErrors >= cb.config.FailureThreshold {
			c.state = CircuitOpen
			c.lastStateChange = cb.now()
		}
	case CircuitHalfOpen:
		c.state = CircuitOpen
		c.lastStateChange = cb.now()
		c.probing = false
	}
}

// State returns the current state of the circuit for host.
func (cb *CircuitBreaker) State(host string) CircuitState {
	if cb == nil {
		return CircuitClosed
	}
	cb.mu.Lock()
	defer cb.mu.Unlock()

	c, ok := cb.circuits[host]
	if !ok {
		return CircuitClosed
	}
	if c.state == CircuitOpen && cb.now().Sub(c.lastStateChange) >= cb.config.RecoveryTimeout {
		return CircuitHalfOpen
	}
	return c.state
}

// get must be called with the mutex held.
func (cb *CircuitBreaker) get(host string) *circuit {
	c, ok := cb.circuits[host]
	if !ok {
		c = &circuit{state: CircuitClosed, lastStateChange: cb.now()}
		cb.circuits[host] = c
	}
	return c
}
