package main

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"github.com/manabi-dev/manabi/internal/dispatch"
	"github.com/manabi-dev/manabi/internal/projectconfig"
	"github.com/manabi-dev/manabi/internal/task"
)

var (
	statusResultsDir  string
	statusRetryFailed bool
)

func newStatusCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show manifest, checkpoint, and pending counts per run",
		Long: `Status inspects every manifest in the results directory, resolves it
against its checkpoint, and prints how much of each run remains. Nothing
is dispatched.`,
		Args: cobra.NoArgs,
		RunE: statusCommandE,
	}

	cmd.Flags().StringVar(&statusResultsDir, "results", "", "Results directory (default from .manabi.yaml)")
	cmd.Flags().BoolVar(&statusRetryFailed, "retry-failed", false, "Count failure-marked records as pending")

	return cmd
}

func statusCommandE(cmd *cobra.Command, args []string) error {
	cfg, err := projectconfig.Load(".")
	if err != nil {
		return err
	}
	if statusResultsDir != "" {
		cfg.Paths.Results = statusResultsDir
	}

	manifests, err := filepath.Glob(filepath.Join(cfg.Paths.Results, "*_manifest_*.csv"))
	if err != nil {
		return err
	}
	if len(manifests) == 0 {
		fmt.Printf("No manifests under %s — nothing has been planned yet.\n", cfg.Paths.Results)
		return nil
	}
	sort.Strings(manifests)

	for _, manifestPath := range manifests {
		if err := printRunStatus(manifestPath); err != nil {
			return err
		}
	}
	return nil
}

// printRunStatus reports one run: its manifest size, how many tasks its
// checkpoint already covers, and what remains pending.
func printRunStatus(manifestPath string) error {
	m, err := task.LoadManifest(manifestPath)
	if err != nil {
		return err
	}

	storePath, kind := findStoreFor(manifestPath)
	fmt.Printf("%s\n", filepath.Base(manifestPath))
	fmt.Printf("  planned: %d\n", m.Len())

	if storePath == "" {
		fmt.Printf("  checkpoint: none — all %d tasks pending\n\n", m.Len())
		return nil
	}

	store, err := openStore(kind, storePath)
	if err != nil {
		return err
	}
	defer store.Close() //nolint:errcheck

	pending, err := dispatch.ResolvePending(m, store, statusRetryFailed)
	if err != nil {
		return err
	}

	fmt.Printf("  checkpoint: %s\n", filepath.Base(storePath))
	fmt.Printf("  done: %d  pending: %d\n\n", m.Len()-len(pending), len(pending))
	return nil
}

// findStoreFor locates the checkpoint file belonging to a manifest by its
// shared name suffix, trying the CSV store first, then SQLite.
func findStoreFor(manifestPath string) (path, kind string) {
	base := strings.Replace(manifestPath, "_manifest_", "_results_", 1)
	csvPath := base
	dbPath := strings.TrimSuffix(base, ".csv") + ".db"

	if _, err := os.Stat(csvPath); err == nil {
		return csvPath, "csv"
	}
	if _, err := os.Stat(dbPath); err == nil {
		return dbPath, "sqlite"
	}
	return "", ""
}
