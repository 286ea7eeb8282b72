package resilience

import "context"

// Wrap composes a breaker and a retry policy around fn. The breaker is
// the outermost gate (a single Allow() check before the retry loop even
// starts), and the retry loop's overall outcome, not each individual
// attempt, is reported back to the breaker as one success or one failure.
// A single flaky call therefore never inflates the breaker's failure
// count once per retry.
func Wrap(b *Breaker, policy *RetryPolicy, ctx context.Context, fn func(ctx context.Context) error) error {
	if b != nil {
		if err := b.Allow(); err != nil {
			return err
		}
	}

	var err error
	if policy != nil {
		err = policy.Run(ctx, fn)
	} else {
		err = fn(ctx)
	}

	if b != nil {
		if err != nil {
			b.RecordFailure()
		} else {
			b.RecordSuccess()
		}
	}
	return err
}
