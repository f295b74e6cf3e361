package main

import (
	"fmt"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/manabi-dev/manabi/internal/dataset"
	"github.com/manabi-dev/manabi/internal/projectconfig"
	"github.com/manabi-dev/manabi/internal/task"
	"github.com/manabi-dev/manabi/internal/tutor"
	"github.com/manabi-dev/manabi/internal/utils"
)

var (
	tutorDataDir     string
	tutorResultsDir  string
	tutorStudents    int
	tutorStudentIDs  []string
	tutorModel       string
	tutorAssessment  string
	tutorConcurrency int
	tutorSpread      time.Duration
	tutorRetryFailed bool
	tutorNoResume    bool
	tutorVerbose     bool
)

func newTutorCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "tutor",
		Short: "Generate tutoring content for weak knowledge components",
		Long: `Tutor runs one LLM request per (student, weak component) pair,
producing explanatory content with worked example questions.

Weak components come from a prior assessment checkpoint when --assessment
is given (levels Novice and Developing); otherwise they are inferred from
the student's wrong answers, most frequent first.`,
		Args: cobra.NoArgs,
		RunE: tutorCommandE,
	}

	cmd.Flags().StringVar(&tutorDataDir, "data", "", "Learning-record CSV directory (default from .manabi.yaml)")
	cmd.Flags().StringVar(&tutorResultsDir, "results", "", "Output directory (default from .manabi.yaml)")
	cmd.Flags().IntVar(&tutorStudents, "students", 0, "Tutor the first N students (0 = all)")
	cmd.Flags().StringSliceVar(&tutorStudentIDs, "student-ids", nil, "Tutor only these student IDs (comma separated)")
	cmd.Flags().StringVar(&tutorModel, "model", "", "Tutoring model to use (overrides .manabi.yaml)")
	cmd.Flags().StringVar(&tutorAssessment, "assessment", "", "Assessment checkpoint file to derive weak components from")
	cmd.Flags().IntVar(&tutorConcurrency, "concurrency", 0, "Maximum in-flight requests (overrides .manabi.yaml)")
	cmd.Flags().DurationVar(&tutorSpread, "spread-duration", -1, "Window over which task starts are spread (overrides .manabi.yaml)")
	cmd.Flags().BoolVar(&tutorRetryFailed, "retry-failed", false, "Re-dispatch tasks whose checkpoint records carry the failure marker")
	cmd.Flags().BoolVar(&tutorNoResume, "no-resume", false, "Ignore the checkpoint and re-run the whole manifest")
	cmd.Flags().BoolVarP(&tutorVerbose, "verbose", "v", false, "Verbose progress output")

	return cmd
}

func tutorCommandE(cmd *cobra.Command, args []string) error {
	cfg, err := projectconfig.Load(".")
	if err != nil {
		return err
	}
	applyOverrides(cfg, tutorDataDir, tutorResultsDir, "", tutorConcurrency, tutorSpread)
	if tutorModel != "" {
		cfg.LLM.TutorModel = tutorModel
	}

	lib, err := dataset.Load(cfg.Paths.Data)
	if err != nil {
		return err
	}
	studentIDs, err := selectStudents(lib, tutorStudentIDs, tutorStudents)
	if err != nil {
		return err
	}

	mastery, err := loadMasteryLookup(tutorAssessment)
	if err != nil {
		return err
	}
	if mastery != nil {
		fmt.Printf("Weak components from assessment: %s (%d students)\n", tutorAssessment, len(mastery))
	} else {
		fmt.Println("No assessment given; weak components inferred from wrong answers")
	}

	restoreLogging := setupRunLogging(cfg.Paths.Results)
	defer restoreLogging()

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	model := cfg.LLM.TutorModel
	builder := tutor.NewBuilder(lib, mastery, model)

	fmt.Printf("Tutoring %d student(s), model %s\n", len(studentIDs), model)

	manifestPath := utils.TutoringManifestPath(cfg.Paths.Results, model)
	m, built, err := task.LoadOrBuildManifest(manifestPath, builder.Entities(studentIDs), builder.Payload)
	if err != nil {
		return err
	}
	if built {
		fmt.Printf("Manifest written: %s (%d tasks)\n", manifestPath, m.Len())
	} else {
		fmt.Printf("Manifest loaded: %s (%d tasks)\n", manifestPath, m.Len())
	}

	ext := storeExt(cfg.Checkpoint.Store)
	p := &pipeline{
		manifest:     m,
		storeKind:    cfg.Checkpoint.Store,
		storePath:    utils.TutoringResultsPath(cfg.Paths.Results, model, ext),
		errorLogPath: utils.TutoringErrorLogPath(cfg.Paths.Results, model),
		dispatchCfg:  dispatchConfig(cfg, tutorRetryFailed, tutorNoResume),
		client:       newClient(cfg),
		process:      tutor.Process,
		verbose:      tutorVerbose,
	}
	_, err = p.run(ctx)
	return err
}

// loadMasteryLookup reads assessed mastery levels from a checkpoint file.
// An empty path returns a nil lookup, which selects the wrong-answer
// fallback. The store kind is inferred from the file extension.
func loadMasteryLookup(path string) (tutor.MasteryLookup, error) {
	if path == "" {
		return nil, nil
	}

	kind := "csv"
	if strings.HasSuffix(path, ".db") || strings.HasSuffix(path, ".sqlite") {
		kind = "sqlite"
	}
	store, err := openStore(kind, path)
	if err != nil {
		return nil, fmt.Errorf("opening assessment checkpoint: %w", err)
	}
	defer store.Close() //nolint:errcheck

	lookup, err := tutor.LoadMastery(store)
	if err != nil {
		return nil, fmt.Errorf("reading assessment checkpoint: %w", err)
	}
	return lookup, nil
}
