// Package resilience implements the retry and circuit-breaker primitives
// that wrap every outbound call made by the memory service (database,
// embedding HTTP, generator HTTP).
package resilience

import (
	"context"
	"math"
	"math/rand/v2"
	"time"

	"github.com/jetgogoing/sage-memory/pkg/sageerr"
)

// Strategy selects the delay formula used between retry attempts.
type Strategy string

const (
	StrategyFixed       Strategy = "fixed"
	StrategyLinear      Strategy = "linear"
	StrategyExponential Strategy = "exponential"
	StrategyFibonacci   Strategy = "fibonacci"
)

// RetryPolicy configures a retry loop. Zero value is not usable; use
// NewRetryPolicy or one of the library defaults below.
type RetryPolicy struct {
	MaxAttempts     int
	InitialDelay    time.Duration
	MaxDelay        time.Duration
	ExponentialBase float64
	Strategy        Strategy
	Jitter          bool

	RetryableKinds    []sageerr.Kind
	NonRetryableKinds []sageerr.Kind
	ShouldRetry       func(error) bool

	BeforeRetry func(attempt int, err error)
	OnExhausted func(err error)

	fibCache []int64
}

// NewRetryPolicy returns a policy with the library's baseline settings:
// 3 attempts, 1s initial delay, exponential backoff base 2, jitter on.
func NewRetryPolicy() *RetryPolicy {
	return &RetryPolicy{
		MaxAttempts:     3,
		InitialDelay:    time.Second,
		MaxDelay:        60 * time.Second,
		ExponentialBase: 2.0,
		Strategy:        StrategyExponential,
		Jitter:          true,
	}
}

// DatabaseRetry is the library default for DB pool operations: 5 attempts,
// 0.5-30s exponential, intended for connection/timeout kinds.
func DatabaseRetry() *RetryPolicy {
	return &RetryPolicy{
		MaxAttempts:       5,
		InitialDelay:      500 * time.Millisecond,
		MaxDelay:          30 * time.Second,
		ExponentialBase:   2.0,
		Strategy:          StrategyExponential,
		Jitter:            true,
		RetryableKinds:    []sageerr.Kind{sageerr.KindDatabaseConnection, sageerr.KindTimeout},
		NonRetryableKinds: []sageerr.Kind{sageerr.KindValidation},
	}
}

// NetworkRetry is the library default for outbound HTTP calls: 3 attempts,
// 1-10s exponential with jitter.
func NetworkRetry() *RetryPolicy {
	return &RetryPolicy{
		MaxAttempts:       3,
		InitialDelay:      time.Second,
		MaxDelay:          10 * time.Second,
		ExponentialBase:   2.0,
		Strategy:          StrategyExponential,
		Jitter:            true,
		RetryableKinds:    []sageerr.Kind{sageerr.KindEmbeddingService, sageerr.KindGeneratorService, sageerr.KindTimeout},
		NonRetryableKinds: []sageerr.Kind{sageerr.KindValidation},
	}
}

// shouldRetry reports whether err warrants another attempt under p.
func (p *RetryPolicy) shouldRetry(err error) bool {
	for _, k := range p.NonRetryableKinds {
		if sageerr.Is(err, k) {
			return false
		}
	}
	if p.ShouldRetry != nil && !p.ShouldRetry(err) {
		return false
	}
	if len(p.RetryableKinds) == 0 {
		return true
	}
	for _, k := range p.RetryableKinds {
		if sageerr.Is(err, k) {
			return true
		}
	}
	return false
}

// delay computes the wait before attempt n (1-indexed), before jitter.
func (p *RetryPolicy) delay(attempt int) time.Duration {
	initial := p.InitialDelay.Seconds()
	var seconds float64
	switch p.Strategy {
	case StrategyFixed:
		seconds = initial
	case StrategyLinear:
		seconds = initial * float64(attempt)
	case StrategyExponential:
		base := p.ExponentialBase
		if base <= 0 {
			base = 2.0
		}
		seconds = initial * math.Pow(base, float64(attempt-1))
	case StrategyFibonacci:
		seconds = initial * float64(p.fibonacci(attempt))
	default:
		seconds = initial
	}

	maxSeconds := p.MaxDelay.Seconds()
	if maxSeconds > 0 && seconds > maxSeconds {
		seconds = maxSeconds
	}

	if p.Jitter {
		seconds = seconds * (0.5 + rand.Float64()*0.5)
	}
	return time.Duration(seconds * float64(time.Second))
}

// fibonacci returns fib(n) for n>=1 using a memoized cache seeded [0, 1]:
// fib(1)=1, fib(2)=1, fib(3)=2, fib(4)=3, fib(5)=5.
func (p *RetryPolicy) fibonacci(n int) int64 {
	if p.fibCache == nil {
		p.fibCache = []int64{0, 1}
	}
	for len(p.fibCache) <= n {
		last := p.fibCache[len(p.fibCache)-1]
		prev := p.fibCache[len(p.fibCache)-2]
		p.fibCache = append(p.fibCache, last+prev)
	}
	return p.fibCache[n]
}

// Run executes fn, retrying per the policy until it succeeds, a
// non-retryable error is seen, or attempts are exhausted. On exhaustion the
// last error is returned unchanged so callers can inspect its Kind.
func (p *RetryPolicy) Run(ctx context.Context, fn func(ctx context.Context) error) error {
	maxAttempts := p.MaxAttempts
	if maxAttempts < 1 {
		maxAttempts = 1
	}

	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		lastErr = fn(ctx)
		if lastErr == nil {
			return nil
		}

		if !p.shouldRetry(lastErr) || attempt == maxAttempts {
			if p.OnExhausted != nil && attempt == maxAttempts {
				p.OnExhausted(lastErr)
			}
			return lastErr
		}

		if p.BeforeRetry != nil {
			p.BeforeRetry(attempt, lastErr)
		}

		wait := p.delay(attempt)
		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
	return lastErr
}
