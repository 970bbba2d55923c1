package resilience

import (
	"context"
	"time"
)

// RetryPolicy holds retry configuration
type RetryPolicy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	Backoff     bool // exponential when true, constant otherwise

	// OnRetry, when set, is called before each wait with the failed attempt.
	OnRetry func(attempt int, delay time.Duration, err *AppError)
}

// DefaultRetryPolicy returns default retry configuration
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts: 3,
		BaseDelay:   1 * time.Second,
		Backoff:     true,
	}
}

// Delay returns the wait after the given failed attempt (1-based).
func (p RetryPolicy) Delay(attempt int) time.Duration {
	if !p.Backoff || attempt <= 1 {
		return p.BaseDelay
	}
	return p.BaseDelay << (attempt - 1)
}

// Retry runs op until it succeeds, fails with a non-retryable error,
// exhausts MaxAttempts, or ctx is done. Failures are classified by c.
// On final failure the returned error carries RetryCount = attempts made.
func Retry[T any](ctx context.Context, p RetryPolicy, c *Classifier, op func(context.Context) (T, error)) (T, *AppError) {
	var zero T
	if c == nil {
		c = NewClassifier()
	}
	if p.MaxAttempts <= 0 {
		p.MaxAttempts = 1
	}

	for attempt := 1; ; attempt++ {
		if err := ctx.Err(); err != nil {
			appErr := c.Classify(err)
			appErr.RetryCount = attempt - 1
			return zero, appErr
		}

		res, err := op(ctx)
		if err == nil {
			return res, nil
		}

		appErr := c.Classify(err)
		appErr.RetryCount = attempt

		if !appErr.Retryable || attempt >= p.MaxAttempts {
			return zero, appErr
		}

		delay := p.Delay(attempt)
		if p.OnRetry != nil {
			p.OnRetry(attempt, delay, appErr)
		}

		timer := time.NewTimer(delay)
		select {
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
			ctxErr := c.Classify(ctx.Err())
			ctxErr.RetryCount = attempt
			return zero, ctxErr
		}
	}
}
