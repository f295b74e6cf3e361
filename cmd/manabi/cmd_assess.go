package main

import (
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/manabi-dev/manabi/internal/assess"
	"github.com/manabi-dev/manabi/internal/dataset"
	"github.com/manabi-dev/manabi/internal/projectconfig"
	"github.com/manabi-dev/manabi/internal/task"
	"github.com/manabi-dev/manabi/internal/utils"
)

var (
	assessDataDir     string
	assessResultsDir  string
	assessStudents    int
	assessStudentIDs  []string
	assessMode        string
	assessModel       string
	assessConcurrency int
	assessSpread      time.Duration
	assessRetryFailed bool
	assessNoResume    bool
	assessVerbose     bool
)

func newAssessCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "assess",
		Short: "Assess student mastery of knowledge components",
		Long: `Assess runs one LLM request per (student, knowledge component) pair,
judging the student's mastery level from their answer history.

The plan is written to a manifest before dispatch and every outcome is
checkpointed, so an interrupted run picks up exactly where it stopped.`,
		Args: cobra.NoArgs,
		RunE: assessCommandE,
	}

	cmd.Flags().StringVar(&assessDataDir, "data", "", "Learning-record CSV directory (default from .manabi.yaml)")
	cmd.Flags().StringVar(&assessResultsDir, "results", "", "Output directory (default from .manabi.yaml)")
	cmd.Flags().IntVar(&assessStudents, "students", 0, "Assess the first N students (0 = all)")
	cmd.Flags().StringSliceVar(&assessStudentIDs, "student-ids", nil, "Assess only these student IDs (comma separated)")
	cmd.Flags().StringVar(&assessMode, "mode", "full", "Prompt evidence mode: full, minimal, or both")
	cmd.Flags().StringVar(&assessModel, "model", "", "Model to use (overrides .manabi.yaml)")
	cmd.Flags().IntVar(&assessConcurrency, "concurrency", 0, "Maximum in-flight requests (overrides .manabi.yaml)")
	cmd.Flags().DurationVar(&assessSpread, "spread-duration", -1, "Window over which task starts are spread (overrides .manabi.yaml)")
	cmd.Flags().BoolVar(&assessRetryFailed, "retry-failed", false, "Re-dispatch tasks whose checkpoint records carry the failure marker")
	cmd.Flags().BoolVar(&assessNoResume, "no-resume", false, "Ignore the checkpoint and re-run the whole manifest")
	cmd.Flags().BoolVarP(&assessVerbose, "verbose", "v", false, "Verbose progress output")

	return cmd
}

func assessCommandE(cmd *cobra.Command, args []string) error {
	cfg, err := projectconfig.Load(".")
	if err != nil {
		return err
	}
	applyOverrides(cfg, assessDataDir, assessResultsDir, assessModel, assessConcurrency, assessSpread)

	modes, err := resolveModes(assessMode)
	if err != nil {
		return err
	}

	lib, err := dataset.Load(cfg.Paths.Data)
	if err != nil {
		return err
	}
	studentIDs, err := selectStudents(lib, assessStudentIDs, assessStudents)
	if err != nil {
		return err
	}

	restoreLogging := setupRunLogging(cfg.Paths.Results)
	defer restoreLogging()

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	client := newClient(cfg)
	ext := storeExt(cfg.Checkpoint.Store)

	for _, mode := range modes {
		fmt.Printf("Assessing %d student(s), mode %s, model %s\n", len(studentIDs), mode, cfg.LLM.Model)

		builder, err := assess.NewBuilder(lib, mode, cfg.LLM.Model)
		if err != nil {
			return err
		}

		manifestPath := utils.AssessmentManifestPath(cfg.Paths.Results, string(mode), cfg.LLM.Model)
		m, built, err := task.LoadOrBuildManifest(manifestPath, builder.Entities(studentIDs), builder.Payload)
		if err != nil {
			return err
		}
		if built {
			fmt.Printf("Manifest written: %s (%d tasks)\n", manifestPath, m.Len())
		} else {
			fmt.Printf("Manifest loaded: %s (%d tasks)\n", manifestPath, m.Len())
		}

		p := &pipeline{
			manifest:     m,
			storeKind:    cfg.Checkpoint.Store,
			storePath:    utils.AssessmentResultsPath(cfg.Paths.Results, string(mode), cfg.LLM.Model, ext),
			errorLogPath: utils.AssessmentErrorLogPath(cfg.Paths.Results, string(mode), cfg.LLM.Model),
			dispatchCfg:  dispatchConfig(cfg, assessRetryFailed, assessNoResume),
			client:       client,
			process:      assess.Process,
			verbose:      assessVerbose,
		}
		if _, err := p.run(ctx); err != nil {
			return err
		}
	}
	return nil
}

// applyOverrides folds command-line flags onto the loaded project config.
func applyOverrides(cfg *projectconfig.ProjectConfig, dataDir, resultsDir, model string, concurrency int, spread time.Duration) {
	if dataDir != "" {
		cfg.Paths.Data = dataDir
	}
	if resultsDir != "" {
		cfg.Paths.Results = resultsDir
	}
	if model != "" {
		cfg.LLM.Model = model
	}
	if concurrency > 0 {
		cfg.Dispatch.Concurrency = utils.Ptr(concurrency)
	}
	if spread >= 0 {
		cfg.Dispatch.SpreadSeconds = utils.Ptr(int(spread / time.Second))
	}
}

// resolveModes expands the --mode flag into the modes to run.
func resolveModes(flag string) ([]assess.Mode, error) {
	switch flag {
	case "both":
		return []assess.Mode{assess.ModeFull, assess.ModeMinimal}, nil
	default:
		mode := assess.Mode(flag)
		if !mode.Valid() {
			return nil, fmt.Errorf("unknown mode %q (supported: full, minimal, both)", flag)
		}
		return []assess.Mode{mode}, nil
	}
}

// selectStudents picks the run's students: explicit IDs win, then the first
// n of the sorted roster, then everyone.
func selectStudents(lib *dataset.Library, ids []string, n int) ([]string, error) {
	if len(ids) > 0 {
		for _, id := range ids {
			if len(lib.Records(id)) == 0 {
				return nil, fmt.Errorf("student %q has no records in the dataset", id)
			}
		}
		return ids, nil
	}
	students := lib.Students()
	if n > 0 && n < len(students) {
		students = students[:n]
	}
	return students, nil
}
