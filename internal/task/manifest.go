package task

import (
	"encoding/csv"
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

// ErrSkip signals that a (student, component) pair has no usable data and
// must not produce a task.
var ErrSkip = errors.New("task: skip")

// Entity enumerates the knowledge components applicable to one student, in
// the order they should be planned.
type Entity struct {
	StudentID string
	KCNames   []string
}

// PayloadBuilder produces the request payload for one student/component
// pair. Returning ErrSkip omits the pair from the manifest; any other error
// aborts manifest construction.
type PayloadBuilder func(studentID, kcName string) (Payload, error)

// BuildManifest enumerates every entity/component pair in order and invokes
// build for each. Construction is deterministic given the same inputs, so
// repeated runs converge on the same plan. Duplicate composite keys are a
// construction error.
func BuildManifest(entities []Entity, build PayloadBuilder) (*Manifest, error) {
	seen := make(map[Key]struct{})
	m := &Manifest{}

	for _, e := range entities {
		for _, kc := range e.KCNames {
			key := Key{StudentID: e.StudentID, KCName: kc}
			if _, dup := seen[key]; dup {
				return nil, fmt.Errorf("duplicate task key %s in manifest", key)
			}

			payload, err := build(e.StudentID, kc)
			if errors.Is(err, ErrSkip) {
				continue
			}
			if err != nil {
				return nil, fmt.Errorf("building payload for %s: %w", key, err)
			}

			seen[key] = struct{}{}
			m.Tasks = append(m.Tasks, Task{Key: key, Payload: payload})
		}
	}

	return m, nil
}

// manifestHeader is the column layout of a persisted manifest CSV.
var manifestHeader = []string{"student_id", "kc_name", "system_prompt", "user_prompt", "model"}

// SaveManifest writes the manifest to path atomically (temp file + rename),
// creating parent directories as needed. The file is written before any
// dispatch so a crash between build and first dispatch leaves a resumable
// plan.
func SaveManifest(m *Manifest, path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("creating manifest directory: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), ".manifest-*.csv")
	if err != nil {
		return fmt.Errorf("creating manifest temp file: %w", err)
	}
	defer os.Remove(tmp.Name()) //nolint:errcheck

	w := csv.NewWriter(tmp)
	if err := w.Write(manifestHeader); err != nil {
		tmp.Close() //nolint:errcheck
		return fmt.Errorf("writing manifest header: %w", err)
	}
	for _, t := range m.Tasks {
		row := []string{t.Key.StudentID, t.Key.KCName, t.Payload.SystemPrompt, t.Payload.UserPrompt, t.Payload.Model}
		if err := w.Write(row); err != nil {
			tmp.Close() //nolint:errcheck
			return fmt.Errorf("writing manifest row for %s: %w", t.Key, err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		tmp.Close() //nolint:errcheck
		return fmt.Errorf("flushing manifest: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("closing manifest temp file: %w", err)
	}

	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("renaming manifest into place: %w", err)
	}
	return nil
}

// LoadManifest reads a previously persisted manifest, preserving task order.
func LoadManifest(path string) (*Manifest, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening manifest %s: %w", path, err)
	}
	defer f.Close() //nolint:errcheck

	r := csv.NewReader(f)
	records, err := r.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("parsing manifest %s: %w", path, err)
	}
	if len(records) == 0 {
		return nil, fmt.Errorf("manifest %s is empty (no header row)", path)
	}

	cols := make(map[string]int, len(records[0]))
	for i, h := range records[0] {
		cols[h] = i
	}
	for _, h := range manifestHeader {
		if _, ok := cols[h]; !ok {
			return nil, fmt.Errorf("manifest %s missing column %q", path, h)
		}
	}

	m := &Manifest{Tasks: make([]Task, 0, len(records)-1)}
	for i, rec := range records[1:] {
		if len(rec) != len(records[0]) {
			return nil, fmt.Errorf("manifest %s row %d has %d columns, expected %d", path, i+2, len(rec), len(records[0]))
		}
		m.Tasks = append(m.Tasks, Task{
			Key: Key{StudentID: rec[cols["student_id"]], KCName: rec[cols["kc_name"]]},
			Payload: Payload{
				SystemPrompt: rec[cols["system_prompt"]],
				UserPrompt:   rec[cols["user_prompt"]],
				Model:        rec[cols["model"]],
			},
		})
	}
	return m, nil
}

// LoadOrBuildManifest loads the manifest at path when it exists; otherwise
// it builds a fresh one and persists it before returning. The persisted copy
// is authoritative on later runs so that resumed runs see the identical plan.
func LoadOrBuildManifest(path string, entities []Entity, build PayloadBuilder) (*Manifest, bool, error) {
	if _, err := os.Stat(path); err == nil {
		m, err := LoadManifest(path)
		if err != nil {
			return nil, false, err
		}
		return m, false, nil
	} else if !errors.Is(err, os.ErrNotExist) {
		return nil, false, fmt.Errorf("checking manifest %s: %w", path, err)
	}

	m, err := BuildManifest(entities, build)
	if err != nil {
		return nil, false, err
	}
	if err := SaveManifest(m, path); err != nil {
		return nil, false, err
	}
	return m, true, nil
}
