package main

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/manabi-dev/manabi/internal/checkpoint"
	"github.com/manabi-dev/manabi/internal/dispatch"
	"github.com/manabi-dev/manabi/internal/llm"
	"github.com/manabi-dev/manabi/internal/task"
)

func testManifest() *task.Manifest {
	return &task.Manifest{Tasks: []task.Task{
		{Key: task.Key{StudentID: "s1", KCName: "Fractions"},
			Payload: task.Payload{SystemPrompt: "sys", UserPrompt: "assess fractions", Model: "m"}},
		{Key: task.Key{StudentID: "s1", KCName: "Decimals"},
			Payload: task.Payload{SystemPrompt: "sys", UserPrompt: "please fail", Model: "m"}},
		{Key: task.Key{StudentID: "s2", KCName: "Fractions"},
			Payload: task.Payload{SystemPrompt: "sys", UserPrompt: "assess fractions", Model: "m"}},
	}}
}

func testPipeline(t *testing.T, client llm.Client) (*pipeline, string) {
	t.Helper()
	dir := t.TempDir()
	storePath := filepath.Join(dir, "results.csv")

	return &pipeline{
		manifest:     testManifest(),
		storeKind:    "csv",
		storePath:    storePath,
		errorLogPath: filepath.Join(dir, "errors.txt"),
		dispatchCfg:  dispatch.Config{Concurrency: 2, Spread: 0, FlushThreshold: 1},
		client:       client,
		process: func(tk task.Task, response string) checkpoint.ResultRecord {
			return checkpoint.ResultRecord{Key: tk.Key, Outcome: "Mastered", RawResponse: response}
		},
	}, storePath
}

func TestPipelineRun_PartialFailure(t *testing.T) {
	client := llm.NewMockClient()
	client.Respond = func(call int, system, user, model string) (string, error) {
		if strings.Contains(user, "fail") {
			return "", errors.New("boom")
		}
		return "Mastery Level: Mastered", nil
	}

	p, storePath := testPipeline(t, client)
	summary, err := p.run(context.Background())

	var runFailure *RunFailureError
	require.ErrorAs(t, err, &runFailure)
	assert.Equal(t, 2, summary.Succeeded)
	assert.Equal(t, 1, summary.Failed)
	assert.Equal(t, 3, summary.Saved)

	store, err := checkpoint.NewCSVStore(storePath)
	require.NoError(t, err)
	defer store.Close() //nolint:errcheck
	records, err := store.Records()
	require.NoError(t, err)
	assert.Len(t, records, 3)

	errText, err := os.ReadFile(p.errorLogPath)
	require.NoError(t, err)
	assert.Contains(t, string(errText), "Student: s1  Component: Decimals")
	assert.Contains(t, string(errText), "boom")
}

func TestPipelineRun_CleanAndResumed(t *testing.T) {
	client := llm.NewMockClient()
	client.Respond = func(call int, system, user, model string) (string, error) {
		return "Mastery Level: Mastered", nil
	}

	p, _ := testPipeline(t, client)
	summary, err := p.run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, summary.Succeeded)

	// Second run resumes against the same store: nothing left to dispatch.
	summary, err = p.run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, summary.AlreadyDone)
	assert.Equal(t, 0, summary.Dispatched)
	assert.Equal(t, 3, client.Calls(), "no new model calls on a finished run")
}

func TestPipelineRun_AllFailedIsStrictError(t *testing.T) {
	client := llm.NewMockClient()
	client.Respond = func(call int, system, user, model string) (string, error) {
		return "", errors.New("bad credentials")
	}

	p, _ := testPipeline(t, client)
	_, err := p.run(context.Background())
	require.ErrorIs(t, err, dispatch.ErrAllFailed)
}
