package resilience

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jetgogoing/sage-memory/pkg/sageerr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRetryPolicy_DelayFormulas(t *testing.T) {
	p := &RetryPolicy{InitialDelay: time.Second, MaxDelay: time.Hour, ExponentialBase: 2.0}

	p.Strategy = StrategyFixed
	require.Equal(t, time.Second, p.delay(1))
	require.Equal(t, time.Second, p.delay(5))

	p.Strategy = StrategyLinear
	require.Equal(t, 3*time.Second, p.delay(3))

	p.Strategy = StrategyExponential
	require.Equal(t, 4*time.Second, p.delay(3))

	p.fibCache = nil
	p.Strategy = StrategyFibonacci
	require.Equal(t, time.Second, p.delay(1))
	require.Equal(t, time.Second, p.delay(2))
	require.Equal(t, 2*time.Second, p.delay(3))
	require.Equal(t, 3*time.Second, p.delay(4))
	require.Equal(t, 5*time.Second, p.delay(5))
}

func TestRetryPolicy_DelayCappedAtMax(t *testing.T) {
	p := &RetryPolicy{InitialDelay: time.Second, MaxDelay: 3 * time.Second, Strategy: StrategyExponential, ExponentialBase: 2.0}
	require.Equal(t, 3*time.Second, p.delay(10))
}

func TestRetryPolicy_JitterStaysInRange(t *testing.T) {
	p := &RetryPolicy{InitialDelay: 10 * time.Second, MaxDelay: time.Minute, Strategy: StrategyFixed, Jitter: true}
	for i := 0; i < 50; i++ {
		d := p.delay(1)
		assert.GreaterOrEqual(t, d, 5*time.Second)
		assert.LessOrEqual(t, d, 10*time.Second)
	}
}

func TestRetryPolicy_Run_SucceedsWithoutRetry(t *testing.T) {
	p := NewRetryPolicy()
	calls := 0
	err := p.Run(context.Background(), func(ctx context.Context) error {
		calls++
		return nil
	})
	require.NoError(t, err)
	require.Equal(t, 1, calls)
}

func TestRetryPolicy_Run_RetriesThenSucceeds(t *testing.T) {
	p := &RetryPolicy{MaxAttempts: 3, InitialDelay: time.Millisecond, MaxDelay: 10 * time.Millisecond, Strategy: StrategyFixed}
	calls := 0
	err := p.Run(context.Background(), func(ctx context.Context) error {
		calls++
		if calls < 2 {
			return sageerr.New(sageerr.KindTimeout, "transient")
		}
		return nil
	})
	require.NoError(t, err)
	require.Equal(t, 2, calls)
}

func TestRetryPolicy_Run_ExhaustsAndReturnsLastError(t *testing.T) {
	p := &RetryPolicy{MaxAttempts: 3, InitialDelay: time.Millisecond, MaxDelay: 10 * time.Millisecond, Strategy: StrategyFixed}
	calls := 0
	var exhausted error
	p.OnExhausted = func(err error) { exhausted = err }

	sentinel := errors.New("boom")
	err := p.Run(context.Background(), func(ctx context.Context) error {
		calls++
		return sentinel
	})
	require.ErrorIs(t, err, sentinel)
	require.Equal(t, 3, calls)
	require.ErrorIs(t, exhausted, sentinel)
}

func TestRetryPolicy_Run_NonRetryableFailsFast(t *testing.T) {
	p := &RetryPolicy{
		MaxAttempts:       5,
		InitialDelay:      time.Millisecond,
		Strategy:          StrategyFixed,
		NonRetryableKinds: []sageerr.Kind{sageerr.KindValidation},
	}
	calls := 0
	err := p.Run(context.Background(), func(ctx context.Context) error {
		calls++
		return sageerr.Validation("bad input")
	})
	require.Error(t, err)
	require.Equal(t, 1, calls)
}

func TestRetryPolicy_Run_RespectsContextCancellation(t *testing.T) {
	p := &RetryPolicy{MaxAttempts: 5, InitialDelay: time.Second, Strategy: StrategyFixed}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := p.Run(ctx, func(ctx context.Context) error {
		return sageerr.New(sageerr.KindTimeout, "retry me")
	})
	require.ErrorIs(t, err, context.Canceled)
}
