package venue

import (
	"context"
	"testing"
	"time"

	"golang.org/x/time/rate"
)

func TestNewRateLimiterStartsFull(t *testing.T) {
	t.Parallel()

	rl := NewRateLimiter()
	if rl.Order.Burst() != 10 {
		t.Errorf("order burst = %d, want 10", rl.Order.Burst())
	}
	if rl.Query.Burst() != 5 {
		t.Errorf("query burst = %d, want 5", rl.Query.Burst())
	}
}

func TestWaitLimiterImmediateWithinBurst(t *testing.T) {
	t.Parallel()

	l := rate.NewLimiter(rate.Limit(5), 5)
	for i := 0; i < 5; i++ {
		start := time.Now()
		if err := waitLimiter(context.Background(), l); err != nil {
			t.Fatalf("waitLimiter returned error: %v", err)
		}
		if elapsed := time.Since(start); elapsed > 50*time.Millisecond {
			t.Errorf("waitLimiter took %v, expected immediate (token %d)", elapsed, i)
		}
	}
}

func TestWaitLimiterContextCancelled(t *testing.T) {
	t.Parallel()

	l := rate.NewLimiter(rate.Limit(0.1), 1)
	_ = waitLimiter(context.Background(), l)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	if err := waitLimiter(ctx, l); err == nil {
		t.Error("expected a context deadline error")
	}
}
