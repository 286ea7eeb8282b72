package resilience

import (
	"testing"
	"time"

	"github.com/jetgogoing/sage-memory/pkg/sageerr"
	"github.com/stretchr/testify/require"
)

func TestBreaker_TripsAfterThreshold(t *testing.T) {
	b := NewBreaker("db", BreakerConfig{FailureThreshold: 3, RecoveryTimeout: time.Hour, SuccessThreshold: 1, MonitoringWindow: time.Minute})

	for i := 0; i < 2; i++ {
		require.NoError(t, b.Allow())
		b.RecordFailure()
	}
	require.Equal(t, StateClosed, b.State())

	require.NoError(t, b.Allow())
	b.RecordFailure()
	require.Equal(t, StateOpen, b.State())

	err := b.Allow()
	require.Error(t, err)
	require.True(t, sageerr.Is(err, sageerr.KindBreakerOpen))

	var se *sageerr.Error
	require.ErrorAs(t, err, &se)
	require.Equal(t, 3, se.Details["failureCount"])
	require.NotZero(t, se.Details["retryAfter"])
}

func TestBreaker_HalfOpenRecoversAfterTimeout(t *testing.T) {
	b := NewBreaker("db", BreakerConfig{FailureThreshold: 1, RecoveryTimeout: 10 * time.Millisecond, SuccessThreshold: 2, MonitoringWindow: time.Minute})

	require.NoError(t, b.Allow())
	b.RecordFailure()
	require.Equal(t, StateOpen, b.State())

	time.Sleep(20 * time.Millisecond)

	require.NoError(t, b.Allow())
	require.Equal(t, StateHalfOpen, b.State())

	b.RecordSuccess()
	require.Equal(t, StateHalfOpen, b.State())
	b.RecordSuccess()
	require.Equal(t, StateClosed, b.State())
}

func TestBreaker_HalfOpenFailureReopens(t *testing.T) {
	b := NewBreaker("db", BreakerConfig{FailureThreshold: 1, RecoveryTimeout: time.Millisecond, SuccessThreshold: 2, MonitoringWindow: time.Minute})
	require.NoError(t, b.Allow())
	b.RecordFailure()
	time.Sleep(5 * time.Millisecond)
	require.NoError(t, b.Allow())
	require.Equal(t, StateHalfOpen, b.State())

	b.RecordFailure()
	require.Equal(t, StateOpen, b.State())
}

func TestBreaker_SlidingWindowDropsOldFailures(t *testing.T) {
	b := NewBreaker("db", BreakerConfig{FailureThreshold: 2, RecoveryTimeout: time.Hour, SuccessThreshold: 1, MonitoringWindow: 10 * time.Millisecond})

	require.NoError(t, b.Allow())
	b.RecordFailure()
	time.Sleep(20 * time.Millisecond)

	require.NoError(t, b.Allow())
	b.RecordFailure()
	require.Equal(t, StateClosed, b.State(), "the first failure should have aged out of the window")
}

func TestBreaker_Reset(t *testing.T) {
	b := NewBreaker("db", BreakerConfig{FailureThreshold: 1, RecoveryTimeout: time.Hour, SuccessThreshold: 1, MonitoringWindow: time.Minute})
	require.NoError(t, b.Allow())
	b.RecordFailure()
	require.Equal(t, StateOpen, b.State())

	b.Reset()
	require.Equal(t, StateClosed, b.State())
	require.NoError(t, b.Allow())
}

func TestRegistry_GetIsIdempotentPerName(t *testing.T) {
	r := NewRegistry()
	b1 := r.Get("database_execute", DefaultBreakerConfig())
	b2 := r.Get("database_execute", DefaultBreakerConfig())
	require.Same(t, b1, b2)
}

func TestRegistry_ResetAll(t *testing.T) {
	r := NewRegistry()
	b := r.Get("x", BreakerConfig{FailureThreshold: 1, RecoveryTimeout: time.Hour, SuccessThreshold: 1, MonitoringWindow: time.Minute})
	require.NoError(t, b.Allow())
	b.RecordFailure()
	require.Equal(t, StateOpen, b.State())

	r.ResetAll()
	require.Equal(t, StateClosed, b.State())
}
