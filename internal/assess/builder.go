package assess

import (
	"fmt"

	"github.com/manabi-dev/manabi/internal/checkpoint"
	"github.com/manabi-dev/manabi/internal/dataset"
	"github.com/manabi-dev/manabi/internal/task"
)

// Builder derives assessment tasks from the learning-record library. The
// evidence for every prompt is the student's training partition only; the
// held-out partition stays unseen so downstream experiments are not leaked
// into the assessment.
type Builder struct {
	lib   *dataset.Library
	mode  Mode
	model string
}

// NewBuilder wires a builder for one mode and model.
func NewBuilder(lib *dataset.Library, mode Mode, model string) (*Builder, error) {
	if !mode.Valid() {
		return nil, fmt.Errorf("assess: unknown mode %q", mode)
	}
	return &Builder{lib: lib, mode: mode, model: model}, nil
}

// Entities lists, per student, the components their training records touch.
// studentIDs filters and orders the students; empty means every student in
// the dataset.
func (b *Builder) Entities(studentIDs []string) []task.Entity {
	if len(studentIDs) == 0 {
		studentIDs = b.lib.Students()
	}

	var entities []task.Entity
	for _, sid := range studentIDs {
		train, _ := dataset.Split(b.lib.Records(sid))
		kcs := dataset.PracticedKCs(train)
		if len(kcs) == 0 {
			continue
		}
		entities = append(entities, task.Entity{StudentID: sid, KCNames: kcs})
	}
	return entities
}

// Payload builds the prompt pair for one (student, component) assessment.
// Components with no training-set evidence are skipped.
func (b *Builder) Payload(studentID, kcName string) (task.Payload, error) {
	train, _ := dataset.Split(b.lib.Records(studentID))
	trajectory := dataset.Trajectory(train, kcName)
	if len(trajectory) == 0 {
		return task.Payload{}, task.ErrSkip
	}

	system, user := BuildPrompt(
		studentID, kcName,
		b.lib.KCDescription(kcName),
		trajectory, b.lib,
		b.lib.Prerequisites(kcName),
		b.mode,
	)
	return task.Payload{SystemPrompt: system, UserPrompt: user, Model: b.model}, nil
}

// Process converts a raw assessment reply into its checkpoint record.
// Parsing is total, so even a malformed reply yields a complete record.
func Process(t task.Task, response string) checkpoint.ResultRecord {
	parsed := Parse(response)
	return checkpoint.ResultRecord{
		Key:         t.Key,
		Outcome:     parsed.MasteryLevel,
		Detail:      parsed.Rationale,
		Extra:       parsed.Suggestions,
		RawResponse: response,
	}
}
