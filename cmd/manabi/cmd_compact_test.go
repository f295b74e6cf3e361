package main

import (
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/klauspost/compress/gzip"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/manabi-dev/manabi/internal/checkpoint"
	"github.com/manabi-dev/manabi/internal/task"
)

func TestGzipFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "results.csv")
	require.NoError(t, os.WriteFile(path, []byte("student_id,kc_name\ns1,Fractions\n"), 0o644))

	require.NoError(t, gzipFile(path, true))

	_, err := os.Stat(path)
	assert.True(t, os.IsNotExist(err), "original removed")

	f, err := os.Open(path + ".gz")
	require.NoError(t, err)
	defer f.Close() //nolint:errcheck
	zr, err := gzip.NewReader(f)
	require.NoError(t, err)
	data, err := io.ReadAll(zr)
	require.NoError(t, err)
	assert.Equal(t, "student_id,kc_name\ns1,Fractions\n", string(data))
	assert.Equal(t, "results.csv", zr.Name)
}

func TestGzipFile_Keep(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "results.csv")
	require.NoError(t, os.WriteFile(path, []byte("x"), 0o644))

	require.NoError(t, gzipFile(path, false))

	_, err := os.Stat(path)
	assert.NoError(t, err, "original kept")
	_, err = os.Stat(path + ".gz")
	assert.NoError(t, err)
}

func TestRunFiles(t *testing.T) {
	dir := t.TempDir()
	manifest := filepath.Join(dir, "mastery_assessment_manifest_full_gpt-4o.csv")
	results := filepath.Join(dir, "mastery_assessment_results_full_gpt-4o.csv")
	errLog := filepath.Join(dir, "assessment_errors_full_gpt-4o.txt")
	for _, p := range []string{manifest, results, errLog} {
		require.NoError(t, os.WriteFile(p, []byte("x"), 0o644))
	}

	files := runFiles(manifest)
	assert.Equal(t, []string{manifest, results, errLog}, files)
}

func TestRunFiles_TutoringNames(t *testing.T) {
	dir := t.TempDir()
	manifest := filepath.Join(dir, "tutoring_manifest_qwen-plus.csv")
	errLog := filepath.Join(dir, "tutoring_errors_qwen-plus.txt")
	for _, p := range []string{manifest, errLog} {
		require.NoError(t, os.WriteFile(p, []byte("x"), 0o644))
	}

	files := runFiles(manifest)
	assert.Equal(t, []string{manifest, errLog}, files, "missing store is skipped")
}

func TestRunComplete(t *testing.T) {
	dir := t.TempDir()
	manifestPath := filepath.Join(dir, "tutoring_manifest_m.csv")
	m := &task.Manifest{Tasks: []task.Task{
		{Key: task.Key{StudentID: "s1", KCName: "Fractions"}, Payload: task.Payload{Model: "m"}},
	}}
	require.NoError(t, task.SaveManifest(m, manifestPath))

	done, err := runComplete(manifestPath)
	require.NoError(t, err)
	assert.False(t, done, "no checkpoint yet")

	store, err := checkpoint.NewCSVStore(filepath.Join(dir, "tutoring_results_m.csv"))
	require.NoError(t, err)
	require.NoError(t, store.Append([]checkpoint.ResultRecord{
		{Key: task.Key{StudentID: "s1", KCName: "Fractions"}, Outcome: "content", RawResponse: "x"},
	}))
	require.NoError(t, store.Close())

	done, err = runComplete(manifestPath)
	require.NoError(t, err)
	assert.True(t, done)
}

func TestFindStoreFor(t *testing.T) {
	dir := t.TempDir()
	manifest := filepath.Join(dir, "tutoring_manifest_m.csv")

	path, kind := findStoreFor(manifest)
	assert.Empty(t, path)
	assert.Empty(t, kind)

	dbPath := filepath.Join(dir, "tutoring_results_m.db")
	require.NoError(t, os.WriteFile(dbPath, []byte("x"), 0o644))
	path, kind = findStoreFor(manifest)
	assert.Equal(t, dbPath, path)
	assert.Equal(t, "sqlite", kind)

	csvPath := filepath.Join(dir, "tutoring_results_m.csv")
	require.NoError(t, os.WriteFile(csvPath, []byte("x"), 0o644))
	path, kind = findStoreFor(manifest)
	assert.Equal(t, csvPath, path, "CSV store preferred when both exist")
	assert.Equal(t, "csv", kind)
}
