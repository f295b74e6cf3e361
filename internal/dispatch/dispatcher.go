package dispatch

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/manabi-dev/manabi/internal/checkpoint"
	"github.com/manabi-dev/manabi/internal/llm"
	"github.com/manabi-dev/manabi/internal/task"
)

// Config tunes a dispatch run. Unset concurrency, flush threshold, and
// backoff fall back to the defaults below; a zero spread means no ramp-up.
type Config struct {
	Concurrency    int
	Spread         time.Duration
	Backoff        []time.Duration
	FlushThreshold int
	RetryFailed    bool

	// DisableResume ignores the checkpoint store when resolving the pending
	// set, re-running the whole manifest. Appended duplicates are harmless;
	// the newest record wins on the next read.
	DisableResume bool
}

const (
	DefaultConcurrency    = 30
	DefaultSpread         = 60 * time.Second
	DefaultFlushThreshold = 100
)

func (c Config) withDefaults() Config {
	if c.Concurrency <= 0 {
		c.Concurrency = DefaultConcurrency
	}
	if c.Spread < 0 {
		c.Spread = DefaultSpread
	}
	if c.FlushThreshold <= 0 {
		c.FlushThreshold = DefaultFlushThreshold
	}
	if len(c.Backoff) == 0 {
		c.Backoff = DefaultBackoff
	}
	return c
}

// ProcessFunc turns a successful raw response into the record to checkpoint.
// Parsing must be total: malformed responses still produce a record, with
// whatever could be salvaged in the parsed fields.
type ProcessFunc func(t task.Task, response string) checkpoint.ResultRecord

// ProgressListener receives run lifecycle events. All methods are invoked
// from the dispatcher's collection goroutine, never concurrently.
type ProgressListener interface {
	RunStarted(runID string, total, alreadyDone, pending int)
	TaskFinished(t task.Task, attempts int, err error)
	TaskRetrying(t task.Task, attempt int, delay time.Duration)
	StudentCompleted(studentID string, remainingStudents int)
	RunFinished(s Summary)
}

// retryEvent carries a governor backoff announcement from a worker goroutine
// to the collection loop, where the listener is invoked.
type retryEvent struct {
	task    task.Task
	attempt int
	delay   time.Duration
}

// NopListener ignores every event.
type NopListener struct{}

func (NopListener) RunStarted(string, int, int, int)           {}
func (NopListener) TaskFinished(task.Task, int, error)         {}
func (NopListener) TaskRetrying(task.Task, int, time.Duration) {}
func (NopListener) StudentCompleted(string, int)               {}
func (NopListener) RunFinished(Summary)                        {}

// Summary is the terminal accounting of one run.
type Summary struct {
	RunID       string
	Total       int // manifest size
	AlreadyDone int // resolved as done before dispatch
	Dispatched  int
	Succeeded   int
	Failed      int
	Interrupted int // never attempted (cancelled before admission); stays pending
	Saved       int // records durably written this run
	StorePath   string
	Elapsed     time.Duration
}

// Dispatcher wires the manifest, the checkpoint store, the governor, and the
// batching persister into one resumable run.
type Dispatcher struct {
	cfg      Config
	client   llm.Client
	store    checkpoint.Store
	process  ProcessFunc
	listener ProgressListener

	// OnStudentComplete, when set, fires after the last pending task of a
	// student reaches a terminal state, with every record produced for that
	// student this run, successes and failures alike.
	OnStudentComplete func(studentID string, results []checkpoint.ResultRecord)
}

// NewDispatcher builds a dispatcher. process must not be nil; listener may be.
func NewDispatcher(cfg Config, client llm.Client, store checkpoint.Store, process ProcessFunc, listener ProgressListener) *Dispatcher {
	if process == nil {
		panic("dispatch: process func is required")
	}
	if listener == nil {
		listener = NopListener{}
	}
	return &Dispatcher{
		cfg:      cfg.withDefaults(),
		client:   client,
		store:    store,
		process:  process,
		listener: listener,
	}
}

// Run resolves the pending set against the store, dispatches it through the
// governor, and checkpoints every terminal outcome. The summary is returned
// even when the run ends with an error, so partial progress stays visible.
func (d *Dispatcher) Run(ctx context.Context, m *task.Manifest) (Summary, error) {
	start := time.Now()
	summary := Summary{
		RunID:     uuid.NewString(),
		Total:     m.Len(),
		StorePath: d.store.Path(),
	}

	pending := m.Tasks
	if !d.cfg.DisableResume {
		var err error
		pending, err = ResolvePending(m, d.store, d.cfg.RetryFailed)
		if err != nil {
			return summary, err
		}
	}
	summary.AlreadyDone = summary.Total - len(pending)
	summary.Dispatched = len(pending)
	d.listener.RunStarted(summary.RunID, summary.Total, summary.AlreadyDone, len(pending))

	remaining := make(map[string]int)
	for _, t := range pending {
		remaining[t.Key.StudentID]++
	}
	studentsLeft := len(remaining)
	byStudent := make(map[string][]checkpoint.ResultRecord)

	persister := NewPersister(d.store, d.cfg.FlushThreshold)

	gov := NewGovernor(d.cfg.Concurrency, d.cfg.Spread, NewRetryPolicy(d.cfg.Backoff))

	// The governor announces retries from its worker goroutines; funnel them
	// through a channel so the listener only ever runs here, alongside the
	// outcome handling. Each task backs off at most len(Backoff) times, so
	// the buffer never fills and workers never block on it.
	retries := make(chan retryEvent, len(pending)*len(d.cfg.Backoff))
	gov.OnRetry = func(t task.Task, attempt int, delay time.Duration) {
		retries <- retryEvent{task: t, attempt: attempt, delay: delay}
	}

	execute := func(ctx context.Context, t task.Task) (string, error) {
		return d.client.Complete(ctx, t.Payload.SystemPrompt, t.Payload.UserPrompt, t.Payload.Model)
	}

	var persistErr error
	outcomes := gov.Run(ctx, pending, execute)
	for outcomes != nil {
		// A task's retry is queued before its terminal outcome; draining
		// retries first keeps the events in that order.
		select {
		case ev := <-retries:
			d.listener.TaskRetrying(ev.task, ev.attempt, ev.delay)
			continue
		default:
		}

		var outcome Outcome
		select {
		case ev := <-retries:
			d.listener.TaskRetrying(ev.task, ev.attempt, ev.delay)
			continue
		case o, ok := <-outcomes:
			if !ok {
				outcomes = nil
				continue
			}
			outcome = o
		}

		if outcome.Attempts == 0 {
			// Never admitted (the run was cancelled first). No record is
			// written, so the task resurfaces as pending on the next run.
			summary.Interrupted++
			d.listener.TaskFinished(outcome.Task, 0, outcome.Err)
			continue
		}

		var rec checkpoint.ResultRecord
		if outcome.Succeeded() {
			summary.Succeeded++
			rec = d.process(outcome.Task, outcome.Response)
			rec.Key = outcome.Task.Key
		} else {
			summary.Failed++
			rec = checkpoint.ResultRecord{
				Key:         outcome.Task.Key,
				Outcome:     "ERROR",
				RawResponse: checkpoint.FailureMarker + outcome.Err.Error(),
			}
		}
		rec.SystemPrompt = outcome.Task.Payload.SystemPrompt
		rec.UserPrompt = outcome.Task.Payload.UserPrompt

		if err := persister.Add(rec); err != nil && persistErr == nil {
			persistErr = err
		}

		d.listener.TaskFinished(outcome.Task, outcome.Attempts, outcome.Err)

		sid := outcome.Task.Key.StudentID
		byStudent[sid] = append(byStudent[sid], rec)
		remaining[sid]--
		if remaining[sid] == 0 {
			studentsLeft--
			d.listener.StudentCompleted(sid, studentsLeft)
			if d.OnStudentComplete != nil {
				d.OnStudentComplete(sid, byStudent[sid])
			}
			delete(byStudent, sid)
		}
	}

	// Every worker has returned once the outcome channel closes; deliver
	// whatever retries were still queued behind the last outcomes.
	for len(retries) > 0 {
		ev := <-retries
		d.listener.TaskRetrying(ev.task, ev.attempt, ev.delay)
	}

	if err := persister.Close(); err != nil && persistErr == nil {
		persistErr = err
	}
	summary.Saved = persister.Saved()
	summary.Elapsed = time.Since(start)
	d.listener.RunFinished(summary)

	if persistErr != nil {
		return summary, fmt.Errorf("run %s: %w", summary.RunID, persistErr)
	}
	if summary.Interrupted > 0 {
		return summary, fmt.Errorf("run %s interrupted with %d tasks not attempted: %w",
			summary.RunID, summary.Interrupted, context.Cause(ctx))
	}
	return summary, nil
}

// ErrAllFailed is returned by RunStrict when nothing succeeded.
var ErrAllFailed = errors.New("dispatch: every task failed")

// RunStrict is Run plus a hard error when a non-empty pending set produced
// zero successes, which usually means a misconfigured model or credentials.
func (d *Dispatcher) RunStrict(ctx context.Context, m *task.Manifest) (Summary, error) {
	summary, err := d.Run(ctx, m)
	if err != nil {
		return summary, err
	}
	if summary.Dispatched > 0 && summary.Succeeded == 0 {
		return summary, ErrAllFailed
	}
	return summary, nil
}
