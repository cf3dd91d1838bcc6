package transform

import (
	"context"
	"time"

	"harmonycore/internal/enrich"
	"harmonycore/pkg/domain"
)

// RetryPolicy governs enrichment lookups. Attempt numbers start at 1; Backoff
// receives the number of the attempt that just failed.
type RetryPolicy struct {
	MaxAttempts int
	Backoff     func(attempt int) time.Duration
	Retryable   func(error) bool
}

// DefaultRetryPolicy retries a transient failure once after 200ms.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts: 2,
		Backoff:     ExponentialBackoff(200*time.Millisecond, 5*time.Second),
		Retryable:   enrich.IsUnavailable,
	}
}

// ExponentialBackoff doubles base per attempt, capped at ceiling.
func ExponentialBackoff(base, ceiling time.Duration) func(int) time.Duration {
	return func(attempt int) time.Duration {
		if attempt < 1 {
			attempt = 1
		}
		d := base
		for i := 1; i < attempt; i++ {
			d *= 2
			if d >= ceiling {
				return ceiling
			}
		}
		if d > ceiling {
			return ceiling
		}
		return d
	}
}

// Do runs fn until it succeeds, fails permanently, or attempts run out. It
// returns the number of attempts made.
func (p RetryPolicy) Do(ctx context.Context, fn func(context.Context) (domain.Record, error)) (domain.Record, int, error) {
	attempts := p.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}
	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return nil, attempt - 1, err
		}
		rec, err := fn(ctx)
		if err == nil {
			return rec, attempt, nil
		}
		lastErr = err
		if attempt == attempts || p.Retryable == nil || !p.Retryable(err) {
			return nil, attempt, err
		}
		if p.Backoff != nil {
			if wait := p.Backoff(attempt); wait > 0 {
				timer := time.NewTimer(wait)
				select {
				case <-ctx.Done():
					timer.Stop()
					return nil, attempt, ctx.Err()
				case <-timer.C:
				}
			}
		}
	}
	return nil, attempts, lastErr
}
