package tutor

import (
	"encoding/json"
	"regexp"
	"sort"
	"strings"

	"github.com/manabi-dev/manabi/internal/checkpoint"
	"github.com/manabi-dev/manabi/internal/dataset"
	"github.com/manabi-dev/manabi/internal/task"
)

// Mastery levels that mark a component as needing tutoring.
var weakLevels = map[string]bool{"Novice": true, "Developing": true}

// MasteryLookup maps student ID to component name to assessed level.
type MasteryLookup map[string]map[string]string

// LoadMastery builds a lookup from assessment checkpoint records, last
// record per key winning. Failed records never contribute a level.
func LoadMastery(store checkpoint.Store) (MasteryLookup, error) {
	records, err := store.Records()
	if err != nil {
		return nil, err
	}

	lookup := make(MasteryLookup)
	for _, rec := range records {
		if rec.Failed() {
			continue
		}
		level := cleanLevel(rec.Outcome)
		if level == "" {
			continue
		}
		byKC := lookup[rec.Key.StudentID]
		if byKC == nil {
			byKC = make(map[string]string)
			lookup[rec.Key.StudentID] = byKC
		}
		byKC[rec.Key.KCName] = level
	}
	return lookup, nil
}

// cleanLevel strips whitespace and stray Markdown bold markers from an
// assessed level.
func cleanLevel(level string) string {
	return strings.Trim(level, " \t\r\n*")
}

// Builder derives tutoring tasks: one per (student, weak component).
type Builder struct {
	lib     *dataset.Library
	mastery MasteryLookup
	model   string
}

// NewBuilder wires a builder. mastery may be nil; weak components then fall
// back to wrong-answer counts.
func NewBuilder(lib *dataset.Library, mastery MasteryLookup, model string) *Builder {
	return &Builder{lib: lib, mastery: mastery, model: model}
}

// WeakKCs identifies the components a student needs tutoring on. Assessed
// Novice or Developing components win when mastery data exists; otherwise
// the components of the student's wrong answers, most frequent first.
func (b *Builder) WeakKCs(studentID string, train []dataset.Interaction) []string {
	if byKC, ok := b.mastery[studentID]; ok {
		var weak []string
		for kcName, level := range byKC {
			if weakLevels[level] {
				weak = append(weak, kcName)
			}
		}
		if len(weak) > 0 {
			sort.Strings(weak)
			return weak
		}
	}

	counts := make(map[string]int)
	var order []string
	for _, rec := range train {
		if rec.Correct {
			continue
		}
		if counts[rec.KCName] == 0 {
			order = append(order, rec.KCName)
		}
		counts[rec.KCName]++
	}
	sort.SliceStable(order, func(i, j int) bool {
		return counts[order[i]] > counts[order[j]]
	})
	return order
}

// Entities lists, per student, the weak components to tutor. studentIDs
// filters and orders the students; empty means every student.
func (b *Builder) Entities(studentIDs []string) []task.Entity {
	if len(studentIDs) == 0 {
		studentIDs = b.lib.Students()
	}

	var entities []task.Entity
	for _, sid := range studentIDs {
		train, _ := dataset.Split(b.lib.Records(sid))
		weak := b.WeakKCs(sid, train)
		if len(weak) == 0 {
			continue
		}
		entities = append(entities, task.Entity{StudentID: sid, KCNames: weak})
	}
	return entities
}

// Payload builds the tutoring prompt for one weak component. Components
// with no example questions outside the held-out pool are skipped.
func (b *Builder) Payload(studentID, kcName string) (task.Payload, error) {
	_, test := dataset.Split(b.lib.Records(studentID))
	excluded := dataset.TestQuestionIDs(test)

	examples := SelectExamples(b.lib, studentID, kcName, excluded)
	if len(examples) == 0 {
		return task.Payload{}, task.ErrSkip
	}

	description := b.lib.KCDescription(kcName)
	if description == dataset.NoDescription {
		description = ""
	}
	system, user := BuildPrompt(studentID, kcName, description, examples)
	return task.Payload{SystemPrompt: system, UserPrompt: user, Model: b.model}, nil
}

// exampleIDPattern matches the question IDs announced in the user prompt.
var exampleIDPattern = regexp.MustCompile(`Example \d+ \(Question ID: ([^)]+)\):`)

// Process converts a raw tutoring reply into its checkpoint record: the
// extracted content as the outcome, and the example question IDs (recovered
// from the prompt) as JSON in the extra column.
func Process(t task.Task, response string) checkpoint.ResultRecord {
	content := ExtractSection(response, t.Key.KCName)

	var ids []string
	for _, m := range exampleIDPattern.FindAllStringSubmatch(t.Payload.UserPrompt, -1) {
		ids = append(ids, m[1])
	}
	encoded, _ := json.Marshal(ids)

	return checkpoint.ResultRecord{
		Key:         t.Key,
		Outcome:     content,
		Extra:       string(encoded),
		RawResponse: response,
	}
}
