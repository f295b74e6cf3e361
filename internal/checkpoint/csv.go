package checkpoint

import (
	"encoding/csv"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/manabi-dev/manabi/internal/task"
)

// csvHeader is the column layout of a checkpoint CSV.
var csvHeader = []string{
	"student_id", "kc_name",
	"outcome", "detail", "extra",
	"raw_response", "system_prompt", "user_prompt",
}

// CSVStore is a file-backed Store. The file is append-only; the header is
// written only when the file is new or empty.
type CSVStore struct {
	path string
}

// NewCSVStore opens (or prepares to create) a checkpoint CSV at path.
func NewCSVStore(path string) (*CSVStore, error) {
	if path == "" {
		return nil, errors.New("checkpoint: csv path must not be empty")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("creating checkpoint directory: %w", err)
	}
	return &CSVStore{path: path}, nil
}

func (s *CSVStore) Path() string { return s.path }

func (s *CSVStore) Close() error { return nil }

// Records reads the whole file in append order. Malformed rows (wrong
// column count, typically a torn write from a crash mid-flush) are skipped
// rather than failing the run; the affected key simply resurfaces as pending.
func (s *CSVStore) Records() ([]ResultRecord, error) {
	f, err := os.Open(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("opening checkpoint %s: %w", s.path, err)
	}
	defer f.Close() //nolint:errcheck

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1
	rows, err := r.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("parsing checkpoint %s: %w", s.path, err)
	}
	if len(rows) == 0 {
		return nil, nil
	}

	cols := make(map[string]int, len(rows[0]))
	for i, h := range rows[0] {
		cols[h] = i
	}
	for _, required := range []string{"student_id", "kc_name", "outcome", "raw_response"} {
		if _, ok := cols[required]; !ok {
			return nil, fmt.Errorf("checkpoint %s missing column %q", s.path, required)
		}
	}

	field := func(row []string, name string) string {
		if i, ok := cols[name]; ok && i < len(row) {
			return row[i]
		}
		return ""
	}

	records := make([]ResultRecord, 0, len(rows)-1)
	for _, row := range rows[1:] {
		if len(row) != len(rows[0]) {
			continue
		}
		records = append(records, ResultRecord{
			Key:          task.Key{StudentID: field(row, "student_id"), KCName: field(row, "kc_name")},
			Outcome:      field(row, "outcome"),
			Detail:       field(row, "detail"),
			Extra:        field(row, "extra"),
			RawResponse:  field(row, "raw_response"),
			SystemPrompt: field(row, "system_prompt"),
			UserPrompt:   field(row, "user_prompt"),
		})
	}
	return records, nil
}

// DoneKeys reports the completion state per key, last appended record
// winning.
func (s *CSVStore) DoneKeys() (map[task.Key]Done, error) {
	records, err := s.Records()
	if err != nil {
		return nil, err
	}
	done := make(map[task.Key]Done, len(records))
	for _, rec := range records {
		done[rec.Key] = Done{Complete: rec.Outcome != "", Failed: rec.Failed()}
	}
	return done, nil
}

// Append writes records to the end of the file, emitting the header first
// when the file is new or empty.
func (s *CSVStore) Append(records []ResultRecord) error {
	if len(records) == 0 {
		return nil
	}

	needHeader, err := s.isNewOrEmpty()
	if err != nil {
		return err
	}

	f, err := os.OpenFile(s.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("opening checkpoint %s for append: %w", s.path, err)
	}
	defer f.Close() //nolint:errcheck

	w := csv.NewWriter(f)
	if needHeader {
		if err := w.Write(csvHeader); err != nil {
			return fmt.Errorf("writing checkpoint header: %w", err)
		}
	}
	for _, rec := range records {
		row := []string{
			rec.Key.StudentID, rec.Key.KCName,
			rec.Outcome, rec.Detail, rec.Extra,
			rec.RawResponse, rec.SystemPrompt, rec.UserPrompt,
		}
		if err := w.Write(row); err != nil {
			return fmt.Errorf("writing checkpoint row for %s: %w", rec.Key, err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return fmt.Errorf("flushing checkpoint: %w", err)
	}
	return f.Sync()
}

func (s *CSVStore) isNewOrEmpty() (bool, error) {
	info, err := os.Stat(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return true, nil
	}
	if err != nil {
		return false, fmt.Errorf("checking checkpoint %s: %w", s.path, err)
	}
	return info.Size() == 0, nil
}
