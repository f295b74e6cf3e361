package report

import (
	"fmt"
	"os"
	"strings"
	"sync"

	"github.com/manabi-dev/manabi/internal/checkpoint"
	"github.com/manabi-dev/manabi/internal/task"
)

// separator divides entries in the error log file.
var separator = strings.Repeat("=", 80)

// ErrorLog appends failed requests — prompts included, so a failure can be
// replayed by hand — to a plain-text file. Safe for concurrent use.
type ErrorLog struct {
	mu   sync.Mutex
	f    *os.File
	path string
}

// OpenErrorLog opens (or creates) the error log at path in append mode.
func OpenErrorLog(path string) (*ErrorLog, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, fmt.Errorf("opening error log: %w", err)
	}
	return &ErrorLog{f: f, path: path}, nil
}

// Path returns the log file location.
func (l *ErrorLog) Path() string {
	return l.path
}

// Record appends one failed task: its key, the error text, and both prompts.
func (l *ErrorLog) Record(key task.Key, errText, systemPrompt, userPrompt string) error {
	var b strings.Builder
	b.WriteString(separator + "\n")
	b.WriteString(fmt.Sprintf("Student: %s  Component: %s\n", key.StudentID, key.KCName))
	b.WriteString("Error: " + errText + "\n")
	b.WriteString("--- System Prompt ---\n")
	b.WriteString(systemPrompt + "\n")
	b.WriteString("--- User Prompt ---\n")
	b.WriteString(userPrompt + "\n\n")

	l.mu.Lock()
	defer l.mu.Unlock()
	if _, err := l.f.WriteString(b.String()); err != nil {
		return fmt.Errorf("appending to error log: %w", err)
	}
	return nil
}

// RecordFailure appends a failed checkpoint record, stripping the failure
// marker from the error text.
func (l *ErrorLog) RecordFailure(rec checkpoint.ResultRecord) error {
	errText := strings.TrimPrefix(rec.RawResponse, checkpoint.FailureMarker)
	return l.Record(rec.Key, errText, rec.SystemPrompt, rec.UserPrompt)
}

// Close closes the underlying file.
func (l *ErrorLog) Close() error {
	return l.f.Close()
}
