package upstream

import (
	"net/http"
	"sync"
	"time"
)

// BreakerState is the circuit breaker state.
type BreakerState int32

const (
	// BreakerClosed lets requests through and counts failures.
	BreakerClosed BreakerState = iota
	// BreakerOpen rejects requests until the reset timeout elapses.
	BreakerOpen
	// BreakerHalfOpen lets a bounded number of probe requests through.
	BreakerHalfOpen
)

func (s BreakerState) String() string {
	switch s {
	case BreakerClosed:
		return "closed"
	case BreakerOpen:
		return "open"
	case BreakerHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// CircuitBreaker protects one backend from repeated failing calls.
// Consecutive failures beyond the threshold open the circuit; after the
// reset timeout a limited number of probes decide whether it closes again.
type CircuitBreaker struct {
	mu           sync.Mutex
	state        BreakerState
	failures     int
	threshold    int
	resetTimeout time.Duration
	halfOpenMax  int
	halfOpenSeen int
	openedAt     time.Time
	now          func() time.Time
}

// BreakerOption configures a CircuitBreaker.
type BreakerOption func(*CircuitBreaker)

// WithBreakerThreshold sets how many consecutive failures open the circuit.
func WithBreakerThreshold(n int) BreakerOption {
	return func(cb *CircuitBreaker) {
		if n > 0 {
			cb.threshold = n
		}
	}
}

// WithBreakerResetTimeout sets how long the circuit stays open before
// allowing probes.
func WithBreakerResetTimeout(d time.Duration) BreakerOption {
	return func(cb *CircuitBreaker) {
		if d > 0 {
			cb.resetTimeout = d
		}
	}
}

// WithBreakerHalfOpenMax sets how many probe requests the half-open state
// admits before further requests are rejected.
func WithBreakerHalfOpenMax(n int) BreakerOption {
	return func(cb *CircuitBreaker) {
		if n > 0 {
			cb.halfOpenMax = n
		}
	}
}

// WithBreakerClock injects a clock, used by tests to step through the
// reset timeout without sleeping.
func WithBreakerClock(now func() time.Time) BreakerOption {
	return func(cb *CircuitBreaker) {
		if now != nil {
			cb.now = now
		}
	}
}

// NewCircuitBreaker builds a breaker with threshold 5, reset timeout 30s
// and 2 half-open probes unless overridden.
func NewCircuitBreaker(opts ...BreakerOption) *CircuitBreaker {
	cb := &CircuitBreaker{
		threshold:    5,
		resetTimeout: 30 * time.Second,
		halfOpenMax:  2,
		now:          time.Now,
	}
	for _, opt := range opts {
		opt(cb)
	}
	return cb
}

// State reports the current state, applying the open-to-half-open
// transition if the reset timeout has elapsed.
func (cb *CircuitBreaker) State() BreakerState {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.maybeTransition()
	return cb.state
}

// Allow reports whether a request may proceed right now. Half-open admits
// at most halfOpenMax probes.
func (cb *CircuitBreaker) Allow() bool {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.maybeTransition()
	switch cb.state {
	case BreakerClosed:
		return true
	case BreakerHalfOpen:
		if cb.halfOpenSeen < cb.halfOpenMax {
			cb.halfOpenSeen++
			return true
		}
		return false
	default:
		return false
	}
}

// RecordSuccess notes a successful call. In half-open state it closes the
// circuit; in closed state it clears the failure count.
func (cb *CircuitBreaker) RecordSuccess() {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	switch cb.state {
	case BreakerHalfOpen:
		cb.state = BreakerClosed
		cb.failures = 0
		cb.halfOpenSeen = 0
	case BreakerClosed:
		cb.failures = 0
	}
}

// RecordFailure notes a failed call. In half-open state it reopens the
// circuit immediately; in closed state it opens once the threshold is hit.
func (cb *CircuitBreaker) RecordFailure() {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	switch cb.state {
	case BreakerHalfOpen:
		cb.state = BreakerOpen
		cb.openedAt = cb.now()
		cb.halfOpenSeen = 0
	case BreakerClosed:
		cb.failures++
		if cb.failures >= cb.threshold {
			cb.state = BreakerOpen
			cb.openedAt = cb.now()
		}
	}
}

// Reset forces the breaker back to closed with no recorded failures.
func (cb *CircuitBreaker) Reset() {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.state = BreakerClosed
	cb.failures = 0
	cb.halfOpenSeen = 0
}

// maybeTransition moves open to half-open once the reset timeout has
// elapsed. Callers must hold cb.mu.
func (cb *CircuitBreaker) maybeTransition() {
	if cb.state == BreakerOpen && cb.now().Sub(cb.openedAt) >= cb.resetTimeout {
		cb.state = BreakerHalfOpen
		cb.halfOpenSeen = 0
	}
}

// Breaker returns a middleware guarding one backend with cb. Requests are
// rejected with *ErrCircuitOpen while the circuit is open. Transport
// errors and 5xx responses count as failures; everything else, including
// 4xx, counts as success since the backend answered coherently.
func Breaker(cb *CircuitBreaker, backend string) Middleware {
	return func(next http.RoundTripper) http.RoundTripper {
		return RoundTripperFunc(func(req *http.Request) (*http.Response, error) {
			if !cb.Allow() {
				return nil, &ErrCircuitOpen{Backend: backend}
			}
			resp, err := next.RoundTrip(req)
			if err != nil || resp.StatusCode >= 500 {
				cb.RecordFailure()
			} else {
				cb.RecordSuccess()
			}
			return resp, err
		})
	}
}
