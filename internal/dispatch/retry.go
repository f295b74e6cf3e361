// Package dispatch runs a manifest of tasks through a bounded worker pool
// with retry, staggered ramp-up, and batched checkpointing.
package dispatch

import (
	"time"

	"github.com/manabi-dev/manabi/internal/llm"
)

// DefaultBackoff is the waiting schedule applied between rate-limited
// attempts. The length of the schedule bounds the number of retries.
var DefaultBackoff = []time.Duration{5 * time.Second, 10 * time.Second, 30 * time.Second}

// RetryPolicy decides whether a failed attempt is retried and how long to
// wait first. Only rate-limit-class errors are retried; anything else is a
// permanent failure for that task.
type RetryPolicy struct {
	Backoff []time.Duration
}

// NewRetryPolicy builds a policy with the given schedule, falling back to
// DefaultBackoff when none is supplied.
func NewRetryPolicy(backoff []time.Duration) RetryPolicy {
	if len(backoff) == 0 {
		backoff = DefaultBackoff
	}
	return RetryPolicy{Backoff: backoff}
}

// MaxAttempts returns the total attempts a task may consume, counting the
// first one.
func (p RetryPolicy) MaxAttempts() int {
	return len(p.Backoff) + 1
}

// NextDelay reports whether the attempt that just failed with err should be
// retried, and the delay to wait before the next attempt. attempt is 1-based:
// pass 1 after the first failure.
func (p RetryPolicy) NextDelay(err error, attempt int) (time.Duration, bool) {
	if err == nil || !llm.IsRateLimit(err) {
		return 0, false
	}
	if attempt < 1 || attempt > len(p.Backoff) {
		return 0, false
	}
	return p.Backoff[attempt-1], true
}
