package circuitbreaker_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yourorg/checkout-reconciler/internal/circuitbreaker"
)

const gatewayTarget = "checkout-com"

func TestCircuitBreaker_ClosedToOpen(t *testing.T) {
	cb := circuitbreaker.NewCircuitBreakerWithSettings(2, 50*time.Millisecond, 1)

	assert.True(t, cb.IsHealthy(gatewayTarget), "should be initially Closed")
	assert.Equal(t, circuitbreaker.Closed, cb.GetState(gatewayTarget))

	cb.RecordFailure(gatewayTarget)
	assert.True(t, cb.IsHealthy(gatewayTarget), "still Closed after 1 failure")

	cb.RecordFailure(gatewayTarget)
	assert.Equal(t, circuitbreaker.Open, cb.GetState(gatewayTarget), "should open at threshold")
	assert.False(t, cb.IsHealthy(gatewayTarget), "Open circuit blocks requests")
}

func TestCircuitBreaker_OpenToHalfOpenToClosed(t *testing.T) {
	cb := circuitbreaker.NewCircuitBreakerWithSettings(1, 30*time.Millisecond, 2)

	cb.RecordFailure(gatewayTarget)
	require.False(t, cb.IsHealthy(gatewayTarget), "precondition: Open")

	time.Sleep(40 * time.Millisecond)

	assert.True(t, cb.IsHealthy(gatewayTarget), "allows probe after open timeout")
	assert.Equal(t, circuitbreaker.HalfOpen, cb.GetState(gatewayTarget))

	cb.RecordSuccess(gatewayTarget)
	assert.Equal(t, circuitbreaker.HalfOpen, cb.GetState(gatewayTarget), "one success is not enough")

	cb.RecordSuccess(gatewayTarget)
	assert.Equal(t, circuitbreaker.Closed, cb.GetState(gatewayTarget), "closes after enough probe successes")
}

func TestCircuitBreaker_HalfOpenFailureReopens(t *testing.T) {
	cb := circuitbreaker.NewCircuitBreakerWithSettings(1, 20*time.Millisecond, 2)

	cb.RecordFailure(gatewayTarget)
	time.Sleep(30 * time.Millisecond)
	require.True(t, cb.IsHealthy(gatewayTarget))
	require.Equal(t, circuitbreaker.HalfOpen, cb.GetState(gatewayTarget))

	cb.RecordFailure(gatewayTarget)
	assert.Equal(t, circuitbreaker.Open, cb.GetState(gatewayTarget), "probe failure re-opens immediately")
	assert.False(t, cb.IsHealthy(gatewayTarget))
}

func TestCircuitBreaker_TargetsAreIndependent(t *testing.T) {
	cb := circuitbreaker.NewCircuitBreakerWithSettings(1, time.Minute, 1)

	cb.RecordFailure("payments")
	assert.False(t, cb.IsHealthy("payments"))
	assert.True(t, cb.IsHealthy("payment-sessions"), "other targets stay Closed")
}

func TestCircuitBreaker_PerTargetOverrides(t *testing.T) {
	cb := circuitbreaker.NewCircuitBreakerWithSettings(3, time.Minute, 1)
	cb.SetTargetSettings("payment-sessions", circuitbreaker.Settings{FailureThreshold: 1})

	cb.RecordFailure("payment-sessions")
	cb.RecordFailure("payments")

	assert.Equal(t, circuitbreaker.Open, cb.GetState("payment-sessions"), "override trips at one failure")
	assert.Equal(t, circuitbreaker.Closed, cb.GetState("payments"), "default target keeps the breaker-wide threshold")

	cb.RecordFailure("payments")
	cb.RecordFailure("payments")
	assert.Equal(t, circuitbreaker.Open, cb.GetState("payments"))
}

func TestCircuitBreaker_OverrideZeroFieldsFallBack(t *testing.T) {
	cb := circuitbreaker.NewCircuitBreakerWithSettings(2, 30*time.Millisecond, 1)
	cb.SetTargetSettings(gatewayTarget, circuitbreaker.Settings{FailureThreshold: 1})

	cb.RecordFailure(gatewayTarget)
	require.Equal(t, circuitbreaker.Open, cb.GetState(gatewayTarget))

	// OpenTimeout was not overridden, so the breaker-wide timeout applies.
	time.Sleep(40 * time.Millisecond)
	assert.True(t, cb.IsHealthy(gatewayTarget))
	assert.Equal(t, circuitbreaker.HalfOpen, cb.GetState(gatewayTarget))
}

func TestCircuitBreaker_SuccessResetsFailureCount(t *testing.T) {
	cb := circuitbreaker.NewCircuitBreakerWithSettings(2, time.Minute, 1)

	cb.RecordFailure(gatewayTarget)
	cb.RecordSuccess(gatewayTarget)
	cb.RecordFailure(gatewayTarget)
	assert.Equal(t, circuitbreaker.Closed, cb.GetState(gatewayTarget), "non-consecutive failures do not trip")
}
