package signal

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

// TestCircuitBreaker_TripsAtThreshold verifies the breaker stays
// available through two failures and disables on the third.
func TestCircuitBreaker_TripsAtThreshold(t *testing.T) {
	cb := NewCircuitBreaker(3)

	cb.RecordFailure()
	assert.True(t, cb.Available())
	cb.RecordFailure()
	assert.True(t, cb.Available())
	cb.RecordFailure()
	assert.False(t, cb.Available())
	assert.Equal(t, 3, cb.Failures())
}

// TestCircuitBreaker_SuccessClearsCount verifies a success between
// failures prevents the trip.
func TestCircuitBreaker_SuccessClearsCount(t *testing.T) {
	cb := NewCircuitBreaker(3)

	cb.RecordFailure()
	cb.RecordFailure()
	cb.RecordSuccess()
	cb.RecordFailure()
	cb.RecordFailure()

	assert.True(t, cb.Available())
	assert.Equal(t, 2, cb.Failures())
}

// TestCircuitBreaker_NoAutoRecovery verifies a tripped breaker stays
// tripped until Reset, even after further activity.
func TestCircuitBreaker_NoAutoRecovery(t *testing.T) {
	cb := NewCircuitBreaker(3)
	for i := 0; i < 3; i++ {
		cb.RecordFailure()
	}
	assert.False(t, cb.Available())

	cb.RecordSuccess()
	assert.False(t, cb.Available(), "success must not re-enable a tripped breaker")

	cb.Reset()
	assert.True(t, cb.Available())
	assert.Equal(t, 0, cb.Failures())
}

// TestCircuitBreaker_TripCallbackFiresOnce verifies the trip callback
// is invoked exactly once per trip.
func TestCircuitBreaker_TripCallbackFiresOnce(t *testing.T) {
	cb := NewCircuitBreaker(3)
	trips := 0
	cb.SetTripCallback(func(int) { trips++ })

	for i := 0; i < 5; i++ {
		cb.RecordFailure()
	}
	assert.Equal(t, 1, trips)
}

// TestCircuitBreaker_DefaultThreshold verifies a zero threshold falls
// back to the default of three.
func TestCircuitBreaker_DefaultThreshold(t *testing.T) {
	cb := NewCircuitBreaker(0)
	cb.RecordFailure()
	cb.RecordFailure()
	assert.True(t, cb.Available())
	cb.RecordFailure()
	assert.False(t, cb.Available())
}
