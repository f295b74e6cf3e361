package main

import (
	"fmt"
	"time"

	"github.com/manabi-dev/manabi/internal/dispatch"
	"github.com/manabi-dev/manabi/internal/task"
)

// formatDuration renders sub-second durations in whole milliseconds and
// longer ones rounded to a tenth of a second.
func formatDuration(d time.Duration) string {
	if d < time.Second {
		return fmt.Sprintf("%dms", d.Milliseconds())
	}
	return d.Round(100 * time.Millisecond).String()
}

// progressReporter prints run progress to stdout. The dispatcher invokes it
// from a single goroutine, so no locking is needed.
type progressReporter struct {
	verbose bool
	pending int
	done    int
}

func newProgressReporter(verbose bool) *progressReporter {
	return &progressReporter{verbose: verbose}
}

func (r *progressReporter) RunStarted(runID string, total, alreadyDone, pending int) {
	r.pending = pending
	fmt.Printf("Run %s: %d tasks planned, %d already checkpointed, %d to dispatch\n\n",
		runID, total, alreadyDone, pending)
}

func (r *progressReporter) TaskFinished(t task.Task, attempts int, err error) {
	r.done++
	switch {
	case err == nil:
		fmt.Printf("✓ [%d/%d] %s\n", r.done, r.pending, t.Key)
	case attempts == 0:
		if r.verbose {
			fmt.Printf("- [%d/%d] %s (not attempted, stays pending)\n", r.done, r.pending, t.Key)
		}
	default:
		fmt.Printf("✗ [%d/%d] %s after %d attempt(s): %v\n", r.done, r.pending, t.Key, attempts, err)
	}
}

func (r *progressReporter) TaskRetrying(t task.Task, attempt int, delay time.Duration) {
	if r.verbose {
		fmt.Printf("  ↻ %s rate-limited on attempt %d, retrying in %s\n", t.Key, attempt, formatDuration(delay))
	}
}

func (r *progressReporter) StudentCompleted(studentID string, remainingStudents int) {
	fmt.Printf("  student %s complete (%d students remaining)\n", studentID, remainingStudents)
}

func (r *progressReporter) RunFinished(s dispatch.Summary) {
	fmt.Printf("\nRun %s finished in %s\n", s.RunID, formatDuration(s.Elapsed))
}
