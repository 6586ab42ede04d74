package resilience

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestDo_SucceedsOnFirstAttempt(t *testing.T) {
	calls := 0
	err := Do(context.Background(), DefaultRetryConfig(), func(ctx context.Context, attempt int) error {
		calls++
		return nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if calls != 1 {
		t.Fatalf("expected 1 call, got %d", calls)
	}
}

func TestDo_RetriesUntilSuccess(t *testing.T) {
	cfg := RetryConfig{MaxAttempts: 3, BaseDelay: time.Millisecond, MaxDelay: 10 * time.Millisecond}
	calls := 0
	err := Do(context.Background(), cfg, func(ctx context.Context, attempt int) error {
		calls++
		if calls < 3 {
			return errors.New("transient")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if calls != 3 {
		t.Fatalf("expected 3 calls, got %d", calls)
	}
}

func TestDo_MaxAttemptsOneNeverSleeps(t *testing.T) {
	cfg := RetryConfig{MaxAttempts: 1, BaseDelay: time.Hour}
	start := time.Now()
	calls := 0
	err := Do(context.Background(), cfg, func(ctx context.Context, attempt int) error {
		calls++
		return errors.New("always fails")
	})
	if time.Since(start) > 100*time.Millisecond {
		t.Fatalf("MaxAttempts=1 should never sleep, took %v", time.Since(start))
	}
	if calls != 1 {
		t.Fatalf("expected exactly 1 call, got %d", calls)
	}
	if err == nil {
		t.Fatalf("expected the final error to propagate")
	}
}

func TestDo_ShouldRetryFalseStopsEarly(t *testing.T) {
	cfg := RetryConfig{
		MaxAttempts: 5,
		BaseDelay:   time.Millisecond,
		ShouldRetry: func(err error) bool { return false },
	}
	calls := 0
	err := Do(context.Background(), cfg, func(ctx context.Context, attempt int) error {
		calls++
		return errors.New("non-retryable")
	})
	if calls != 1 {
		t.Fatalf("expected ShouldRetry=false to stop after 1 call, got %d", calls)
	}
	if err == nil {
		t.Fatalf("expected error to propagate")
	}
}

func TestDo_ContextCanceledStopsRetrying(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	cfg := RetryConfig{MaxAttempts: 5, BaseDelay: time.Millisecond}
	err := Do(ctx, cfg, func(ctx context.Context, attempt int) error {
		t.Fatalf("fn should not be called with an already-canceled context")
		return nil
	})
	if err == nil {
		t.Fatalf("expected context error")
	}
}

func TestCalculateDelay_NoJitterBelowFourMillis(t *testing.T) {
	cfg := RetryConfig{BaseDelay: time.Millisecond, MaxDelay: time.Second}
	for attempt := 1; attempt <= 5; attempt++ {
		d1 := calculateDelay(attempt, cfg)
		d2 := calculateDelay(attempt, cfg)
		if d1 != d2 {
			t.Errorf("expected deterministic (unjittered) delay at attempt %d, got %v and %v", attempt, d1, d2)
		}
	}
}

func TestCalculateDelay_JitteredWithinWindow(t *testing.T) {
	cfg := RetryConfig{BaseDelay: 100 * time.Millisecond, MaxDelay: time.Second}
	base := 100 * time.Millisecond * (1 << 2) // attempt 3
	window := base / 4
	for i := 0; i < 20; i++ {
		d := calculateDelay(3, cfg)
		if d < base-window || d > base+window {
			t.Errorf("delay %v outside jitter window [%v, %v]", d, base-window, base+window)
		}
	}
}

func TestCalculateDelay_CappedAtMaxDelay(t *testing.T) {
	cfg := RetryConfig{BaseDelay: time.Second, MaxDelay: 2 * time.Second}
	d := calculateDelay(10, cfg)
	if d > cfg.MaxDelay+cfg.MaxDelay/4 {
		t.Errorf("expected delay capped near MaxDelay, got %v", d)
	}
}
