package pipeline

import (
	"context"
	"log"
	"time"
)

// Executor runs one unit of external work under a per-attempt timeout and a
// fixed retry budget with fixed backoff. A FatalError short-circuits the
// budget; exhausting the budget returns the last error.
type Executor struct {
	Attempts int
	Backoff  time.Duration
	Timeout  time.Duration

	// sleep is swapped in tests.
	sleep func(time.Duration)
}

func NewExecutor(attempts int, backoff, timeout time.Duration) *Executor {
	if attempts <= 0 {
		attempts = 3
	}
	return &Executor{
		Attempts: attempts,
		Backoff:  backoff,
		Timeout:  timeout,
		sleep:    time.Sleep,
	}
}

// Run invokes fn until it succeeds, fails fatally, or the budget is spent.
// Exceeding the per-attempt timeout counts as a retryable failure.
func (e *Executor) Run(ctx context.Context, name string, fn func(ctx context.Context) error) error {
	var lastErr error
	for attempt := 1; attempt <= e.Attempts; attempt++ {
		actx := ctx
		cancel := func() {}
		if e.Timeout > 0 {
			actx, cancel = context.WithTimeout(ctx, e.Timeout)
		}
		err := fn(actx)
		cancel()

		if err == nil {
			return nil
		}
		lastErr = err

		if IsFatal(err) {
			log.Printf("stage=%s attempt=%d fatal err=%v", name, attempt, err)
			return err
		}
		if ctx.Err() != nil {
			// The job-level context is gone; nothing left to retry against.
			return lastErr
		}
		log.Printf("stage=%s attempt=%d/%d retryable err=%v", name, attempt, e.Attempts, err)
		if attempt < e.Attempts && e.Backoff > 0 {
			e.sleep(e.Backoff)
		}
	}
	return lastErr
}
