package resilience

import (
	"context"
	"errors"
	"testing"
	"time"
)

func fastPolicy(attempts int) RetryPolicy {
	return RetryPolicy{MaxAttempts: attempts, BaseDelay: time.Millisecond, Backoff: true}
}

func TestRetry_SucceedsFirstTry(t *testing.T) {
	calls := 0
	v, appErr := Retry(context.Background(), fastPolicy(3), NewClassifier(), func(ctx context.Context) (string, error) {
		calls++
		return "ok", nil
	})
	if appErr != nil {
		t.Fatalf("Expected success, got %v", appErr)
	}
	if v != "ok" || calls != 1 {
		t.Errorf("Expected ok after 1 call, got %q after %d", v, calls)
	}
}

func TestRetry_RecoversFromTransientFailure(t *testing.T) {
	calls := 0
	start := time.Now()
	v, appErr := Retry(context.Background(), fastPolicy(3), NewClassifier(), func(ctx context.Context) (int, error) {
		calls++
		if calls < 3 {
			return 0, &HTTPStatusError{StatusCode: 503}
		}
		return 7, nil
	})
	elapsed := time.Since(start)
	if appErr != nil {
		t.Fatalf("Expected success on third attempt, got %v", appErr)
	}
	if v != 7 || calls != 3 {
		t.Errorf("Expected 7 after 3 calls, got %d after %d", v, calls)
	}
	if elapsed < 3*time.Millisecond {
		t.Errorf("Expected at least base+2*base of waiting, got %v", elapsed)
	}
}

func TestRetry_StopsOnNonRetryable(t *testing.T) {
	calls := 0
	_, appErr := Retry(context.Background(), fastPolicy(5), NewClassifier(), func(ctx context.Context) (int, error) {
		calls++
		return 0, &HTTPStatusError{StatusCode: 404}
	})
	if calls != 1 {
		t.Errorf("Expected 1 call for non-retryable error, got %d", calls)
	}
	if appErr == nil || appErr.Kind != KindAPI || appErr.RetryCount != 1 {
		t.Errorf("Expected API error with RetryCount 1, got %+v", appErr)
	}
}

func TestRetry_ExhaustsAttempts(t *testing.T) {
	calls := 0
	_, appErr := Retry(context.Background(), fastPolicy(3), NewClassifier(), func(ctx context.Context) (int, error) {
		calls++
		return 0, &HTTPStatusError{StatusCode: 429}
	})
	if calls != 3 {
		t.Errorf("Expected 3 calls, got %d", calls)
	}
	if appErr == nil || appErr.Kind != KindRateLimit {
		t.Fatalf("Expected RATE_LIMIT error, got %+v", appErr)
	}
	if appErr.RetryCount != 3 {
		t.Errorf("Expected RetryCount 3, got %d", appErr.RetryCount)
	}
}

func TestRetry_ExponentialDelays(t *testing.T) {
	var delays []time.Duration
	p := RetryPolicy{
		MaxAttempts: 4,
		BaseDelay:   time.Millisecond,
		Backoff:     true,
		OnRetry: func(attempt int, delay time.Duration, err *AppError) {
			delays = append(delays, delay)
		},
	}

	_, _ = Retry(context.Background(), p, NewClassifier(), func(ctx context.Context) (int, error) {
		return 0, context.DeadlineExceeded
	})

	expected := []time.Duration{time.Millisecond, 2 * time.Millisecond, 4 * time.Millisecond}
	if len(delays) != len(expected) {
		t.Fatalf("Expected %d waits, got %v", len(expected), delays)
	}
	for i := range expected {
		if delays[i] != expected[i] {
			t.Errorf("Wait %d: expected %v, got %v", i+1, expected[i], delays[i])
		}
	}
}

func TestRetryPolicy_Delay(t *testing.T) {
	p := DefaultRetryPolicy()
	if p.Delay(1) != time.Second || p.Delay(2) != 2*time.Second || p.Delay(3) != 4*time.Second {
		t.Errorf("Unexpected backoff delays: %v %v %v", p.Delay(1), p.Delay(2), p.Delay(3))
	}

	p.Backoff = false
	if p.Delay(3) != time.Second {
		t.Errorf("Expected constant delay without backoff, got %v", p.Delay(3))
	}
}

func TestRetry_CancelledDuringBackoff(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	p := RetryPolicy{
		MaxAttempts: 5,
		BaseDelay:   time.Hour,
		Backoff:     true,
		OnRetry: func(int, time.Duration, *AppError) {
			cancel()
		},
	}

	start := time.Now()
	calls := 0
	_, appErr := Retry(ctx, p, NewClassifier(), func(ctx context.Context) (int, error) {
		calls++
		return 0, &HTTPStatusError{StatusCode: 500}
	})

	if time.Since(start) > time.Second {
		t.Fatal("Expected cancellation to interrupt the backoff wait")
	}
	if calls != 1 {
		t.Errorf("Expected 1 call, got %d", calls)
	}
	if appErr == nil || !errors.Is(appErr, context.Canceled) {
		t.Errorf("Expected cancellation error, got %v", appErr)
	}
}
