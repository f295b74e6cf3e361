package dispatch

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/manabi-dev/manabi/internal/task"
)

// ExecuteFunc performs one attempt of a task and returns the raw response.
type ExecuteFunc func(ctx context.Context, t task.Task) (string, error)

// Outcome is the terminal result of one task: either a response or the last
// error after retries were exhausted. Attempts counts every execution,
// including the successful one.
type Outcome struct {
	Task     task.Task
	Response string
	Err      error
	Attempts int
}

// Succeeded reports whether the task produced a response.
func (o Outcome) Succeeded() bool {
	return o.Err == nil
}

// Governor admits tasks into a bounded pool of in-flight executions. Tasks
// are admitted in manifest order, each offset by its share of the spread
// window so a large batch does not land on the service all at once. A task
// waiting out a retry backoff gives up its slot and re-acquires one before
// the next attempt.
type Governor struct {
	limit  int64
	spread time.Duration
	policy RetryPolicy

	// OnRetry, when set, is told about each backoff before it starts. It is
	// called from worker goroutines and must be safe for concurrent use.
	OnRetry func(t task.Task, attempt int, delay time.Duration)

	// sleep is swapped out in tests.
	sleep func(ctx context.Context, d time.Duration) error
}

// NewGovernor creates a governor with the given in-flight limit. limit must
// be positive; spread may be zero to admit as fast as slots free up.
func NewGovernor(limit int, spread time.Duration, policy RetryPolicy) *Governor {
	if limit <= 0 {
		panic("dispatch: governor limit must be positive")
	}
	return &Governor{
		limit:  int64(limit),
		spread: spread,
		policy: policy,
		sleep:  sleepCtx,
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Run executes every task and returns a channel of terminal outcomes, one
// per task, closed when all work has drained. Cancelling ctx stops admitting
// new tasks (they are reported with ctx's error) but never interrupts an
// attempt already in flight.
func (g *Governor) Run(ctx context.Context, tasks []task.Task, execute ExecuteFunc) <-chan Outcome {
	out := make(chan Outcome, len(tasks))

	var step time.Duration
	if n := len(tasks); n > 0 {
		step = g.spread / time.Duration(n)
	}

	go func() {
		defer close(out)

		sem := semaphore.NewWeighted(g.limit)
		var wg sync.WaitGroup
		start := time.Now()

		for i, t := range tasks {
			// Hold each task back to its slot in the ramp-up window.
			if wait := time.Duration(i)*step - time.Since(start); wait > 0 {
				if err := g.sleep(ctx, wait); err != nil {
					out <- Outcome{Task: t, Err: err}
					continue
				}
			}
			if err := sem.Acquire(ctx, 1); err != nil {
				out <- Outcome{Task: t, Err: err}
				continue
			}

			wg.Add(1)
			go func(t task.Task) {
				defer wg.Done()
				out <- g.attempt(ctx, sem, t, execute)
			}(t)
		}

		wg.Wait()
	}()

	return out
}

// attempt runs a task to a terminal state, holding a semaphore slot for each
// execution and releasing it while waiting out a backoff. The caller has
// already acquired the first slot.
func (g *Governor) attempt(ctx context.Context, sem *semaphore.Weighted, t task.Task, execute ExecuteFunc) Outcome {
	attempts := 0
	for {
		attempts++
		// In-flight work is never cancelled mid-attempt.
		resp, err := execute(context.WithoutCancel(ctx), t)
		if err == nil {
			sem.Release(1)
			return Outcome{Task: t, Response: resp, Attempts: attempts}
		}

		delay, retry := g.policy.NextDelay(err, attempts)
		if !retry {
			sem.Release(1)
			return Outcome{Task: t, Err: err, Attempts: attempts}
		}

		if g.OnRetry != nil {
			g.OnRetry(t, attempts, delay)
		}

		// Free the slot while we wait so other tasks can run.
		sem.Release(1)
		if serr := g.sleep(ctx, delay); serr != nil {
			return Outcome{Task: t, Err: err, Attempts: attempts}
		}
		if serr := sem.Acquire(ctx, 1); serr != nil {
			return Outcome{Task: t, Err: err, Attempts: attempts}
		}
	}
}
