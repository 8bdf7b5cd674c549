package batch

import (
	"context"
	"time"
)

// RetryPolicy retries a whole job run as a unit with a fixed delay. It is
// owned by the execution environment, not the orchestrator: per-image
// failures are terminal record states and are never retried here.
type RetryPolicy struct {
	MaxAttempts int
	Delay       time.Duration
}

// DefaultRetryPolicy matches the job retry budget: three attempts with a
// fixed thirty-second delay.
var DefaultRetryPolicy = RetryPolicy{MaxAttempts: 3, Delay: 30 * time.Second}

// Execute runs fn until it succeeds, the attempts are exhausted, or the
// context ends. The last error is returned after the final attempt.
func (p RetryPolicy) Execute(ctx context.Context, fn func(context.Context) error) error {
	attempts := p.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		lastErr = fn(ctx)
		if lastErr == nil {
			return nil
		}
		if attempt == attempts {
			break
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(p.Delay):
		}
	}
	return lastErr
}
