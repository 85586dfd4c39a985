package pipeline

import (
	"context"
	"errors"
	"testing"
	"time"
)

func testExecutor(attempts int) *Executor {
	e := NewExecutor(attempts, 10*time.Millisecond, 0)
	e.sleep = func(time.Duration) {}
	return e
}

func TestRunSucceedsAfterRetries(t *testing.T) {
	e := testExecutor(3)

	calls := 0
	err := e.Run(context.Background(), "work", func(ctx context.Context) error {
		calls++
		if calls < 3 {
			return Retryablef("transient %d", calls)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if calls != 3 {
		t.Fatalf("expected 3 attempts, got %d", calls)
	}
}

func TestRunExhaustsBudget(t *testing.T) {
	e := testExecutor(3)

	calls := 0
	err := e.Run(context.Background(), "work", func(ctx context.Context) error {
		calls++
		return Retryablef("always failing")
	})
	if err == nil {
		t.Fatalf("expected error after budget exhaustion")
	}
	if calls != 3 {
		t.Fatalf("expected 3 attempts, got %d", calls)
	}
	if IsFatal(err) {
		t.Fatalf("exhaustion returns the last error unchanged, got fatal %v", err)
	}
}

func TestRunFatalShortCircuits(t *testing.T) {
	e := testExecutor(3)

	calls := 0
	err := e.Run(context.Background(), "work", func(ctx context.Context) error {
		calls++
		return Fatalf("bad input")
	})
	if !IsFatal(err) {
		t.Fatalf("expected fatal error, got %v", err)
	}
	if calls != 1 {
		t.Fatalf("fatal error must not be retried, got %d attempts", calls)
	}
}

func TestRunStopsWhenContextCancelled(t *testing.T) {
	e := testExecutor(5)

	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	err := e.Run(ctx, "work", func(ctx context.Context) error {
		calls++
		cancel()
		return errors.New("interrupted")
	})
	if err == nil {
		t.Fatalf("expected error")
	}
	if calls != 1 {
		t.Fatalf("cancelled context must stop retries, got %d attempts", calls)
	}
}

func TestRunAppliesPerAttemptTimeout(t *testing.T) {
	e := NewExecutor(2, 0, 20*time.Millisecond)
	e.sleep = func(time.Duration) {}

	calls := 0
	err := e.Run(context.Background(), "work", func(ctx context.Context) error {
		calls++
		<-ctx.Done()
		return ctx.Err()
	})
	if err == nil {
		t.Fatalf("expected timeout error")
	}
	if calls != 2 {
		t.Fatalf("timeout should count as retryable, got %d attempts", calls)
	}
}
