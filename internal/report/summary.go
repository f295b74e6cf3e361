// Package report renders run summaries, per-student aggregates, and the
// error log of failed model calls.
package report

import (
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/manabi-dev/manabi/internal/checkpoint"
	"github.com/manabi-dev/manabi/internal/dispatch"
)

// InterpretRun returns a plain-language label for a run's success rate.
func InterpretRun(s dispatch.Summary) string {
	if s.Dispatched == 0 {
		return "Nothing to do — every task was already checkpointed."
	}
	pct := float64(s.Succeeded) / float64(s.Dispatched) * 100
	switch {
	case s.Interrupted > 0:
		return fmt.Sprintf("Run interrupted — %d tasks never attempted and remain pending.", s.Interrupted)
	case pct >= 100:
		return fmt.Sprintf("All requests succeeded (%.0f%%)", pct)
	case pct >= 80:
		return fmt.Sprintf("Most requests succeeded (%.0f%%)", pct)
	case pct > 0:
		return fmt.Sprintf("Partial success (%.0f%%) — failed tasks are marked in the checkpoint", pct)
	default:
		return "Every request failed — check model name and credentials."
	}
}

// FormatRunSummary produces the terminal summary printed after a run.
func FormatRunSummary(s dispatch.Summary) string {
	var b strings.Builder

	b.WriteString("=== Run Summary ===\n\n")
	b.WriteString(fmt.Sprintf("Run ID:      %s\n", s.RunID))
	b.WriteString(fmt.Sprintf("Manifest:    %d tasks (%d already done, %d dispatched)\n",
		s.Total, s.AlreadyDone, s.Dispatched))
	b.WriteString(fmt.Sprintf("Outcome:     %d succeeded, %d failed", s.Succeeded, s.Failed))
	if s.Interrupted > 0 {
		b.WriteString(fmt.Sprintf(", %d interrupted", s.Interrupted))
	}
	b.WriteString("\n")
	b.WriteString(fmt.Sprintf("Saved:       %d records → %s\n", s.Saved, s.StorePath))
	b.WriteString(fmt.Sprintf("Duration:    %v\n", s.Elapsed.Round(10*time.Millisecond)))
	b.WriteString("\n")
	b.WriteString(InterpretRun(s))
	b.WriteString("\n")

	return b.String()
}

// StudentSummary aggregates one student's outcomes across a run.
type StudentSummary struct {
	StudentID string
	Succeeded int
	Failed    int
	Outcomes  map[string]string // component name → parsed outcome
}

// Aggregator collects per-student results as students complete. Add is safe
// to call from the dispatcher's completion callback.
type Aggregator struct {
	mu        sync.Mutex
	byStudent map[string]*StudentSummary
}

// NewAggregator returns an empty aggregator.
func NewAggregator() *Aggregator {
	return &Aggregator{byStudent: make(map[string]*StudentSummary)}
}

// Add folds a completed student's records into the aggregate.
func (a *Aggregator) Add(studentID string, results []checkpoint.ResultRecord) {
	a.mu.Lock()
	defer a.mu.Unlock()

	s := a.byStudent[studentID]
	if s == nil {
		s = &StudentSummary{StudentID: studentID, Outcomes: make(map[string]string)}
		a.byStudent[studentID] = s
	}
	for _, rec := range results {
		if rec.Failed() {
			s.Failed++
			continue
		}
		s.Succeeded++
		s.Outcomes[rec.Key.KCName] = rec.Outcome
	}
}

// Summaries returns the aggregates sorted by student ID.
func (a *Aggregator) Summaries() []StudentSummary {
	a.mu.Lock()
	defer a.mu.Unlock()

	out := make([]StudentSummary, 0, len(a.byStudent))
	for _, s := range a.byStudent {
		out = append(out, *s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StudentID < out[j].StudentID })
	return out
}

// FormatStudentReport renders the per-student aggregate table.
func (a *Aggregator) FormatStudentReport() string {
	summaries := a.Summaries()
	if len(summaries) == 0 {
		return ""
	}

	var b strings.Builder
	b.WriteString("=== Per-Student Results ===\n\n")
	for _, s := range summaries {
		b.WriteString(fmt.Sprintf("%s: %d succeeded, %d failed\n", s.StudentID, s.Succeeded, s.Failed))

		kcs := make([]string, 0, len(s.Outcomes))
		for kc := range s.Outcomes {
			kcs = append(kcs, kc)
		}
		sort.Strings(kcs)
		for _, kc := range kcs {
			b.WriteString(fmt.Sprintf("  %s: %s\n", kc, firstLine(s.Outcomes[kc])))
		}
	}
	return b.String()
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}
