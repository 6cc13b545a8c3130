package signal

import (
	"sync"
	"time"
)

// DefaultFailureThreshold is the consecutive-failure count at which a
// source disables itself.
const DefaultFailureThreshold = 3

// CircuitBreaker isolates a failing provider. Unlike time-windowed
// breakers it never recovers on its own: once tripped, only an explicit
// Reset re-enables the source.
type CircuitBreaker struct {
	mu          sync.Mutex
	failures    int
	threshold   int
	available   bool
	lastFailure time.Time
	onTrip      func(failures int)
}

// NewCircuitBreaker creates a breaker that trips after threshold
// consecutive failures. A threshold of 0 uses the default.
func NewCircuitBreaker(threshold int) *CircuitBreaker {
	if threshold <= 0 {
		threshold = DefaultFailureThreshold
	}
	return &CircuitBreaker{threshold: threshold, available: true}
}

// SetTripCallback registers a callback invoked once when the breaker
// trips.
func (cb *CircuitBreaker) SetTripCallback(fn func(failures int)) {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.onTrip = fn
}

// RecordSuccess clears the consecutive-failure count.
func (cb *CircuitBreaker) RecordSuccess() {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.failures = 0
}

// RecordFailure increments the failure count and trips the breaker
// exactly when the count reaches the threshold.
func (cb *CircuitBreaker) RecordFailure() {
	cb.mu.Lock()
	cb.failures++
	cb.lastFailure = time.Now()
	tripped := cb.available && cb.failures >= cb.threshold
	if tripped {
		cb.available = false
	}
	failures := cb.failures
	onTrip := cb.onTrip
	cb.mu.Unlock()

	if tripped && onTrip != nil {
		onTrip(failures)
	}
}

// Available reports whether the source may be called.
func (cb *CircuitBreaker) Available() bool {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.available
}

// Failures returns the current consecutive-failure count.
func (cb *CircuitBreaker) Failures() int {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.failures
}

// Reset clears the failure count and re-enables the source.
func (cb *CircuitBreaker) Reset() {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.failures = 0
	cb.available = true
}
