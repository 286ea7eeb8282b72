package resilience

import (
	"sync"
	"time"

	"github.com/jetgogoing/sage-memory/pkg/sageerr"
)

// State is one of the three circuit breaker states.
type State string

const (
	StateClosed   State = "closed"
	StateOpen     State = "open"
	StateHalfOpen State = "half_open"
)

// BreakerConfig configures a named breaker. Defaults: 5 failures trips
// it, 60s recovery, 2 half-open successes to close, 60s sliding failure
// window.
type BreakerConfig struct {
	FailureThreshold int
	RecoveryTimeout  time.Duration
	SuccessThreshold int
	MonitoringWindow time.Duration

	// OnStateChange, if set, is invoked on every transition.
	OnStateChange func(name string, from, to State)
}

// DefaultBreakerConfig returns the defaults above.
func DefaultBreakerConfig() BreakerConfig {
	return BreakerConfig{
		FailureThreshold: 5,
		RecoveryTimeout:  60 * time.Second,
		SuccessThreshold: 2,
		MonitoringWindow: 60 * time.Second,
	}
}

// Breaker is a named failure-rate gate protecting a downstream operation.
type Breaker struct {
	name string
	cfg  BreakerConfig

	mu              sync.Mutex
	state           State
	failureTimes    []time.Time
	halfOpenSuccess int
	lastFailure     time.Time
	lastAttempt     time.Time
}

// NewBreaker constructs a closed breaker with the given name and config.
func NewBreaker(name string, cfg BreakerConfig) *Breaker {
	if cfg.FailureThreshold <= 0 {
		cfg.FailureThreshold = 5
	}
	if cfg.SuccessThreshold <= 0 {
		cfg.SuccessThreshold = 2
	}
	if cfg.RecoveryTimeout <= 0 {
		cfg.RecoveryTimeout = 60 * time.Second
	}
	if cfg.MonitoringWindow <= 0 {
		cfg.MonitoringWindow = 60 * time.Second
	}
	return &Breaker{name: name, cfg: cfg, state: StateClosed}
}

// Name returns the breaker's registered name.
func (b *Breaker) Name() string { return b.name }

// State returns the breaker's current state.
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// Allow reports whether a call may proceed, transitioning open->half-open
// when the recovery timeout has elapsed.
func (b *Breaker) Allow() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.lastAttempt = time.Now()

	switch b.state {
	case StateClosed:
		return nil
	case StateHalfOpen:
		return nil
	case StateOpen:
		if time.Since(b.lastFailure) >= b.cfg.RecoveryTimeout {
			b.transition(StateHalfOpen)
			b.halfOpenSuccess = 0
			return nil
		}
		return sageerr.BreakerOpen(b.name).WithDetails(map[string]any{
			"failureCount": len(b.failureTimes),
			"lastFailure":  b.lastFailure,
			"retryAfter":   b.cfg.RecoveryTimeout - time.Since(b.lastFailure),
		})
	default:
		return nil
	}
}

// RecordSuccess reports a successful call outcome.
func (b *Breaker) RecordSuccess() {
	b.mu.Lock()
	defer b.mu.Unlock()
	switch b.state {
	case StateHalfOpen:
		b.halfOpenSuccess++
		if b.halfOpenSuccess >= b.cfg.SuccessThreshold {
			b.transition(StateClosed)
			b.failureTimes = nil
			b.halfOpenSuccess = 0
		}
	case StateClosed:
		// nothing to do; failure window only tracks failures
	}
}

// RecordFailure reports a failed call outcome.
func (b *Breaker) RecordFailure() {
	b.mu.Lock()
	defer b.mu.Unlock()
	now := time.Now()
	b.lastFailure = now

	switch b.state {
	case StateHalfOpen:
		b.transition(StateOpen)
		b.halfOpenSuccess = 0
	case StateClosed:
		b.failureTimes = append(b.pruneFailures(now), now)
		if len(b.failureTimes) >= b.cfg.FailureThreshold {
			b.transition(StateOpen)
		}
	case StateOpen:
		// already open; timer already tracks lastFailure
	}
}

// pruneFailures drops failure timestamps older than the monitoring window.
func (b *Breaker) pruneFailures(now time.Time) []time.Time {
	cutoff := now.Add(-b.cfg.MonitoringWindow)
	kept := b.failureTimes[:0:0]
	for _, t := range b.failureTimes {
		if t.After(cutoff) {
			kept = append(kept, t)
		}
	}
	return kept
}

// transition must be called with b.mu held.
func (b *Breaker) transition(to State) {
	from := b.state
	if from == to {
		return
	}
	b.state = to
	if b.cfg.OnStateChange != nil {
		b.cfg.OnStateChange(b.name, from, to)
	}
}

// Reset forces the breaker back to closed with an empty failure window.
func (b *Breaker) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.transition(StateClosed)
	b.failureTimes = nil
	b.halfOpenSuccess = 0
}
