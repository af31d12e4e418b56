package resilience

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestDo_SuccessOnFirstAttempt(t *testing.T) {
	var calls int
	err := Do(context.Background(), DefaultRetryConfig(), func(_ context.Context) error {
		calls++
		return nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if calls != 1 {
		t.Errorf("expected 1 call, got %d", calls)
	}
}

func TestDo_SuccessAfterRetry(t *testing.T) {
	var calls int
	cfg := RetryConfig{
		MaxAttempts:    3,
		InitialBackoff: 1 * time.Millisecond,
		MaxBackoff:     10 * time.Millisecond,
		Multiplier:     2.0,
	}

	err := Do(context.Background(), cfg, func(_ context.Context) error {
		calls++
		if calls < 3 {
			return NewTransientError(errors.New("temporary"), 503)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if calls != 3 {
		t.Errorf("expected 3 calls, got %d", calls)
	}
}

func TestDo_NonTransientNotRetried(t *testing.T) {
	var calls int
	err := Do(context.Background(), DefaultRetryConfig(), func(_ context.Context) error {
		calls++
		return errors.New("bad request")
	})
	if err == nil {
		t.Fatal("expected error")
	}
	if calls != 1 {
		t.Errorf("expected 1 call, got %d", calls)
	}
}

func TestDo_QuotaExhaustedNotRetried(t *testing.T) {
	var calls int
	err := Do(context.Background(), DefaultRetryConfig(), func(_ context.Context) error {
		calls++
		return &QuotaExhaustedError{Remaining: 0}
	})
	if !IsQuotaExhausted(err) {
		t.Fatalf("expected quota error, got %v", err)
	}
	if calls != 1 {
		t.Errorf("quota exhaustion must not be retried, got %d calls", calls)
	}
}

func TestDo_ContextCancelStops(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	var calls int
	err := Do(ctx, RetryConfig{MaxAttempts: 5, InitialBackoff: time.Millisecond}, func(_ context.Context) error {
		calls++
		cancel()
		return NewTransientError(errors.New("temporary"), 500)
	})
	if err == nil {
		t.Fatal("expected error")
	}
	if calls != 1 {
		t.Errorf("expected 1 call after cancel, got %d", calls)
	}
}

func TestDoVal_HonorsRetryAfterHint(t *testing.T) {
	cfg := RetryConfig{
		MaxAttempts:     2,
		InitialBackoff:  1 * time.Millisecond,
		MaxBackoff:      time.Second,
		Multiplier:      1.0,
		HonorRetryAfter: true,
	}
	hint := 50 * time.Millisecond
	start := time.Now()
	var calls int
	_, err := DoVal(context.Background(), cfg, func(_ context.Context) (int, error) {
		calls++
		if calls == 1 {
			return 0, NewBusyError(errors.New("busy"), hint)
		}
		return 7, nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if elapsed := time.Since(start); elapsed < hint {
		t.Errorf("backoff %v shorter than server hint %v", elapsed, hint)
	}
}

func TestRetryAfterHint(t *testing.T) {
	err := NewBusyError(errors.New("busy"), 2*time.Second)
	if got := RetryAfterHint(err); got != 2*time.Second {
		t.Errorf("got %v", got)
	}
	if got := RetryAfterHint(errors.New("plain")); got != 0 {
		t.Errorf("plain error should have no hint, got %v", got)
	}
}

func TestIsTransient(t *testing.T) {
	if IsTransient(nil) {
		t.Error("nil is not transient")
	}
	if !IsTransient(NewTransientError(errors.New("x"), 500)) {
		t.Error("wrapped transient not detected")
	}
	if !IsTransient(errors.New("read tcp: connection reset by peer")) {
		t.Error("pattern match failed")
	}
	if IsTransient(&QuotaExhaustedError{}) {
		t.Error("quota exhaustion must not be transient")
	}
}

func TestIsTransientHTTPStatus_429Excluded(t *testing.T) {
	for _, code := range []int{408, 500, 502, 503, 504} {
		if !IsTransientHTTPStatus(code) {
			t.Errorf("%d should be transient", code)
		}
	}
	// 429 goes through the quota path, never plain retry.
	if IsTransientHTTPStatus(429) {
		t.Error("429 must not be a retryable status")
	}
	if IsTransientHTTPStatus(404) {
		t.Error("404 is not transient")
	}
}
