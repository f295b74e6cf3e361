package dispatch

import (
	"fmt"

	"github.com/manabi-dev/manabi/internal/checkpoint"
	"github.com/manabi-dev/manabi/internal/task"
)

// ResolvePending returns the manifest tasks that still need to run, in
// manifest order. A task is done once the store holds a record with a
// non-blank outcome for its key; when retryFailed is set, records carrying
// the failure marker are treated as pending so they run again.
func ResolvePending(m *task.Manifest, store checkpoint.Store, retryFailed bool) ([]task.Task, error) {
	done, err := store.DoneKeys()
	if err != nil {
		return nil, fmt.Errorf("resolve pending: %w", err)
	}

	pending := make([]task.Task, 0, len(m.Tasks))
	for _, t := range m.Tasks {
		d, ok := done[t.Key]
		if ok && d.Complete && !(retryFailed && d.Failed) {
			continue
		}
		pending = append(pending, t)
	}
	return pending, nil
}
