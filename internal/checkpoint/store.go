// Package checkpoint provides the durable, append-only record of completed
// task outcomes used for resumption.
package checkpoint

import (
	"strings"

	"github.com/manabi-dev/manabi/internal/task"
)

// FailureMarker prefixes the raw response of a record whose model call
// permanently failed. It keeps failures distinguishable from successes
// inside the same store.
const FailureMarker = "LLM_CALL_FAILED: "

// ResultRecord is one row per completed task: the composite key, the parsed
// outcome fields, the raw response, and the two source prompts for audit.
type ResultRecord struct {
	Key          task.Key
	Outcome      string // primary parsed field; blank means the record does not count as done
	Detail       string
	Extra        string
	RawResponse  string
	SystemPrompt string
	UserPrompt   string
}

// Failed reports whether the record carries the permanent-failure marker.
func (r ResultRecord) Failed() bool {
	return strings.HasPrefix(r.RawResponse, FailureMarker)
}

// Done describes the completion state of the most recent record for a key.
type Done struct {
	Complete bool // outcome field is non-blank
	Failed   bool // record carries the failure marker
}

// Store is an append-capable tabular record of task outcomes. Reads seed the
// pending-set resolver once per run; afterwards the store is only appended
// to. When a key appears more than once (e.g. a crash mid-flush), the most
// recently appended record wins.
type Store interface {
	// DoneKeys returns the completion state of every key present in the store.
	DoneKeys() (map[task.Key]Done, error)

	// Records returns every stored record in append order, including
	// superseded duplicates. Downstream pipelines (weak-component selection,
	// reporting) read completed outcomes through this.
	Records() ([]ResultRecord, error)

	// Append durably adds records to the store.
	Append(records []ResultRecord) error

	// Path identifies the store location for the resumption summary.
	Path() string

	Close() error
}
