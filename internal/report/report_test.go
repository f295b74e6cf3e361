package report

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/manabi-dev/manabi/internal/checkpoint"
	"github.com/manabi-dev/manabi/internal/dispatch"
	"github.com/manabi-dev/manabi/internal/task"
)

func TestFormatRunSummary(t *testing.T) {
	s := dispatch.Summary{
		RunID:       "run-1",
		Total:       10,
		AlreadyDone: 4,
		Dispatched:  6,
		Succeeded:   5,
		Failed:      1,
		Saved:       6,
		StorePath:   "results/checkpoint.csv",
		Elapsed:     1500 * time.Millisecond,
	}

	out := FormatRunSummary(s)
	assert.Contains(t, out, "Run ID:      run-1")
	assert.Contains(t, out, "10 tasks (4 already done, 6 dispatched)")
	assert.Contains(t, out, "5 succeeded, 1 failed")
	assert.Contains(t, out, "results/checkpoint.csv")
	assert.Contains(t, out, "Most requests succeeded (83%)")
	assert.NotContains(t, out, "interrupted")
}

func TestInterpretRun(t *testing.T) {
	tests := []struct {
		name    string
		summary dispatch.Summary
		want    string
	}{
		{"nothing pending", dispatch.Summary{Total: 5, AlreadyDone: 5}, "already checkpointed"},
		{"all ok", dispatch.Summary{Dispatched: 4, Succeeded: 4}, "All requests succeeded"},
		{"all failed", dispatch.Summary{Dispatched: 4, Failed: 4}, "check model name and credentials"},
		{"partial", dispatch.Summary{Dispatched: 4, Succeeded: 2, Failed: 2}, "Partial success"},
		{"interrupted", dispatch.Summary{Dispatched: 4, Succeeded: 2, Interrupted: 2}, "remain pending"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Contains(t, InterpretRun(tt.summary), tt.want)
		})
	}
}

func TestAggregator(t *testing.T) {
	a := NewAggregator()

	a.Add("s2", []checkpoint.ResultRecord{
		{Key: task.Key{StudentID: "s2", KCName: "Decimals"}, Outcome: "Mastered", RawResponse: "x"},
	})
	a.Add("s1", []checkpoint.ResultRecord{
		{Key: task.Key{StudentID: "s1", KCName: "Fractions"}, Outcome: "Novice", RawResponse: "x"},
		{Key: task.Key{StudentID: "s1", KCName: "Decimals"}, Outcome: "ERROR",
			RawResponse: checkpoint.FailureMarker + "boom"},
	})

	summaries := a.Summaries()
	require.Len(t, summaries, 2)
	assert.Equal(t, "s1", summaries[0].StudentID, "sorted by student ID")
	assert.Equal(t, 1, summaries[0].Succeeded)
	assert.Equal(t, 1, summaries[0].Failed)
	assert.Equal(t, "Novice", summaries[0].Outcomes["Fractions"])
	assert.NotContains(t, summaries[0].Outcomes, "Decimals", "failures carry no outcome")

	out := a.FormatStudentReport()
	assert.Contains(t, out, "s1: 1 succeeded, 1 failed")
	assert.Contains(t, out, "Fractions: Novice")
	assert.True(t, strings.Index(out, "s1:") < strings.Index(out, "s2:"))
}

func TestErrorLog(t *testing.T) {
	path := filepath.Join(t.TempDir(), "errors.txt")
	log, err := OpenErrorLog(path)
	require.NoError(t, err)

	rec := checkpoint.ResultRecord{
		Key:          task.Key{StudentID: "s1", KCName: "Fractions"},
		RawResponse:  checkpoint.FailureMarker + "429 too many requests",
		SystemPrompt: "system text",
		UserPrompt:   "user text",
	}
	require.NoError(t, log.RecordFailure(rec))
	require.NoError(t, log.Record(task.Key{StudentID: "s2", KCName: "Decimals"}, "boom", "sp", "up"))
	require.NoError(t, log.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	content := string(data)

	assert.Equal(t, 2, strings.Count(content, strings.Repeat("=", 80)), "one separator per entry")
	assert.Contains(t, content, "Student: s1  Component: Fractions")
	assert.Contains(t, content, "Error: 429 too many requests", "marker stripped")
	assert.Contains(t, content, "--- System Prompt ---\nsystem text")
	assert.Contains(t, content, "--- User Prompt ---\nuser text")
	assert.Contains(t, content, "Student: s2  Component: Decimals")
}

func TestErrorLog_Appends(t *testing.T) {
	path := filepath.Join(t.TempDir(), "errors.txt")

	for i := 0; i < 2; i++ {
		log, err := OpenErrorLog(path)
		require.NoError(t, err)
		require.NoError(t, log.Record(task.Key{StudentID: "s1", KCName: "Fractions"}, "boom", "", ""))
		require.NoError(t, log.Close())
	}

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, 2, strings.Count(string(data), "Error: boom"), "reopening must not truncate")
}
