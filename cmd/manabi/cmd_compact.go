package main

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/klauspost/compress/gzip"
	"github.com/spf13/cobra"

	"github.com/manabi-dev/manabi/internal/dispatch"
	"github.com/manabi-dev/manabi/internal/projectconfig"
	"github.com/manabi-dev/manabi/internal/task"
)

var (
	compactResultsDir string
	compactKeep       bool
)

func newCompactCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "compact",
		Short: "Gzip-archive files of completed runs",
		Long: `Compact finds runs whose manifest is fully checkpointed and compresses
their manifest, checkpoint, and error-log files to .gz archives. Runs
with pending tasks are left untouched so they stay resumable.`,
		Args: cobra.NoArgs,
		RunE: compactCommandE,
	}

	cmd.Flags().StringVar(&compactResultsDir, "results", "", "Results directory (default from .manabi.yaml)")
	cmd.Flags().BoolVar(&compactKeep, "keep", false, "Keep the original files next to the archives")

	return cmd
}

func compactCommandE(cmd *cobra.Command, args []string) error {
	cfg, err := projectconfig.Load(".")
	if err != nil {
		return err
	}
	if compactResultsDir != "" {
		cfg.Paths.Results = compactResultsDir
	}

	manifests, err := filepath.Glob(filepath.Join(cfg.Paths.Results, "*_manifest_*.csv"))
	if err != nil {
		return err
	}
	if len(manifests) == 0 {
		fmt.Printf("No manifests under %s — nothing to compact.\n", cfg.Paths.Results)
		return nil
	}
	sort.Strings(manifests)

	archived := 0
	for _, manifestPath := range manifests {
		done, err := runComplete(manifestPath)
		if err != nil {
			return err
		}
		if !done {
			fmt.Printf("skipping %s: run still has pending tasks\n", filepath.Base(manifestPath))
			continue
		}

		for _, path := range runFiles(manifestPath) {
			if err := gzipFile(path, !compactKeep); err != nil {
				return err
			}
			fmt.Printf("archived %s.gz\n", path)
			archived++
		}
	}

	if archived == 0 {
		fmt.Println("Nothing archived.")
	}
	return nil
}

// runComplete reports whether every task in the manifest is checkpointed.
// A manifest with no checkpoint store yet is never complete.
func runComplete(manifestPath string) (bool, error) {
	m, err := task.LoadManifest(manifestPath)
	if err != nil {
		return false, err
	}

	storePath, kind := findStoreFor(manifestPath)
	if storePath == "" {
		return false, nil
	}

	store, err := openStore(kind, storePath)
	if err != nil {
		return false, err
	}
	defer store.Close() //nolint:errcheck

	pending, err := dispatch.ResolvePending(m, store, false)
	if err != nil {
		return false, err
	}
	return len(pending) == 0, nil
}

// runFiles lists the files belonging to one run that exist on disk: the
// manifest, its checkpoint store, and its error log.
func runFiles(manifestPath string) []string {
	files := []string{manifestPath}
	if storePath, _ := findStoreFor(manifestPath); storePath != "" {
		files = append(files, storePath)
	}

	errPath := strings.Replace(manifestPath, "_manifest_", "_errors_", 1)
	errPath = strings.TrimSuffix(errPath, ".csv") + ".txt"
	// Assessment error logs drop the "results" stem entirely.
	errPath = strings.Replace(errPath, "mastery_assessment_errors_", "assessment_errors_", 1)
	if _, err := os.Stat(errPath); err == nil {
		files = append(files, errPath)
	}
	return files
}

// gzipFile compresses path to path.gz, removing the original unless keep.
func gzipFile(path string, remove bool) error {
	src, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("opening %s: %w", path, err)
	}
	defer src.Close() //nolint:errcheck

	dst, err := os.Create(path + ".gz")
	if err != nil {
		return fmt.Errorf("creating archive for %s: %w", path, err)
	}

	zw := gzip.NewWriter(dst)
	zw.Name = filepath.Base(path)
	if _, err := io.Copy(zw, src); err != nil {
		dst.Close() //nolint:errcheck
		return fmt.Errorf("compressing %s: %w", path, err)
	}
	if err := zw.Close(); err != nil {
		dst.Close() //nolint:errcheck
		return fmt.Errorf("finishing archive for %s: %w", path, err)
	}
	if err := dst.Close(); err != nil {
		return fmt.Errorf("closing archive for %s: %w", path, err)
	}

	if remove {
		if err := os.Remove(path); err != nil {
			return fmt.Errorf("removing %s after archiving: %w", path, err)
		}
	}
	return nil
}
