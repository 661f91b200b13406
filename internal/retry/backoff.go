package retry

import (
	"context"
	"time"

	"github.com/jpillora/backoff"
)

// DefaultBackoff returns the delay schedule used between failed stream attempts.
func DefaultBackoff() *backoff.Backoff {
	return &backoff.Backoff{
		Min:    500 * time.Millisecond,
		Max:    30 * time.Second,
		Factor: 2,
		Jitter: true,
	}
}

// WithBackoff wraps op so that an attempt following a failure first waits for
// the next delay in b. A successful attempt, or one that ran longer than b.Max,
// resets the schedule. The returned Operation must not be shared between
// controllers.
func WithBackoff(op Operation, b *backoff.Backoff) Operation {
	var wait time.Duration

	return func(ctx context.Context) error {
		if wait > 0 {
			timer := time.NewTimer(wait)
			select {
			case <-ctx.Done():
				timer.Stop()
				return ctx.Err()
			case <-timer.C:
			}
		}

		start := time.Now()
		err := op(ctx)
		if err == nil || (b.Max > 0 && time.Since(start) > b.Max) {
			b.Reset()
		}
		if err == nil || ctx.Err() != nil {
			wait = 0
			return err
		}
		wait = b.Duration()
		return err
	}
}
