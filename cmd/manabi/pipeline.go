package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/manabi-dev/manabi/internal/checkpoint"
	"github.com/manabi-dev/manabi/internal/dispatch"
	"github.com/manabi-dev/manabi/internal/llm"
	"github.com/manabi-dev/manabi/internal/projectconfig"
	"github.com/manabi-dev/manabi/internal/report"
	"github.com/manabi-dev/manabi/internal/task"
	"github.com/manabi-dev/manabi/internal/utils"
)

// storeExt returns the file extension of a checkpoint store kind.
func storeExt(kind string) string {
	if kind == "sqlite" {
		return "db"
	}
	return "csv"
}

// openStore opens the configured checkpoint store at path.
func openStore(kind, path string) (checkpoint.Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("creating results directory: %w", err)
	}
	switch kind {
	case "sqlite":
		return checkpoint.NewSQLiteStore(path)
	case "csv":
		return checkpoint.NewCSVStore(path)
	default:
		return nil, fmt.Errorf("unknown checkpoint store kind %q", kind)
	}
}

// newClient builds the LLM client from config, with environment variables
// filling in missing credentials.
func newClient(cfg *projectconfig.ProjectConfig) llm.Client {
	clientCfg := llm.ClientConfig{
		Provider:        cfg.LLM.Provider,
		OpenAIAPIKey:    cfg.LLM.OpenAIAPIKey,
		AnthropicAPIKey: cfg.LLM.AnthropicAPIKey,
		OllamaHost:      cfg.LLM.OllamaHost,
	}
	if clientCfg.OpenAIAPIKey == "" {
		clientCfg.OpenAIAPIKey = os.Getenv("OPENAI_API_KEY")
	}
	if clientCfg.AnthropicAPIKey == "" {
		clientCfg.AnthropicAPIKey = os.Getenv("ANTHROPIC_API_KEY")
	}
	if clientCfg.OllamaHost == "" {
		clientCfg.OllamaHost = os.Getenv("OLLAMA_HOST")
	}
	return llm.NewLangchainClient(clientCfg)
}

// dispatchConfig translates project configuration into dispatcher tuning.
func dispatchConfig(cfg *projectconfig.ProjectConfig, retryFailed, noResume bool) dispatch.Config {
	backoff := make([]time.Duration, 0, len(cfg.Dispatch.BackoffSeconds))
	for _, s := range cfg.Dispatch.BackoffSeconds {
		backoff = append(backoff, time.Duration(s)*time.Second)
	}

	spread := time.Duration(projectconfig.DefaultSpreadSeconds) * time.Second
	if cfg.Dispatch.SpreadSeconds != nil {
		spread = time.Duration(*cfg.Dispatch.SpreadSeconds) * time.Second
	}

	concurrency := projectconfig.DefaultConcurrency
	if cfg.Dispatch.Concurrency != nil {
		concurrency = *cfg.Dispatch.Concurrency
	}
	flush := projectconfig.DefaultFlushThreshold
	if cfg.Dispatch.FlushThreshold != nil {
		flush = *cfg.Dispatch.FlushThreshold
	}

	resume := cfg.Dispatch.Resume == nil || *cfg.Dispatch.Resume
	if noResume {
		resume = false
	}

	return dispatch.Config{
		Concurrency:    concurrency,
		Spread:         spread,
		Backoff:        backoff,
		FlushThreshold: flush,
		RetryFailed:    retryFailed,
		DisableResume:  !resume,
	}
}

// pipeline bundles everything one dispatch run needs.
type pipeline struct {
	manifest     *task.Manifest
	storeKind    string
	storePath    string
	errorLogPath string
	dispatchCfg  dispatch.Config
	client       llm.Client
	process      dispatch.ProcessFunc
	verbose      bool

	// onStudent, when set, observes each completed student's records before
	// the built-in aggregation.
	onStudent func(studentID string, results []checkpoint.ResultRecord)
}

// run executes one checkpointed dispatch: open the store and the error log,
// dispatch the pending set, aggregate per student, print the summary. The
// summary is printed even when the run errors, so partial progress is
// visible.
func (p *pipeline) run(ctx context.Context) (dispatch.Summary, error) {
	store, err := openStore(p.storeKind, p.storePath)
	if err != nil {
		return dispatch.Summary{}, err
	}
	defer store.Close() //nolint:errcheck

	errorLog, err := report.OpenErrorLog(p.errorLogPath)
	if err != nil {
		return dispatch.Summary{}, err
	}
	defer errorLog.Close() //nolint:errcheck

	aggregator := report.NewAggregator()

	d := dispatch.NewDispatcher(p.dispatchCfg, p.client, store, p.process, newProgressReporter(p.verbose))
	d.OnStudentComplete = func(studentID string, results []checkpoint.ResultRecord) {
		aggregator.Add(studentID, results)
		for _, rec := range results {
			if !rec.Failed() {
				continue
			}
			if err := errorLog.RecordFailure(rec); err != nil {
				slog.Error("could not append to error log", "error", err, "file", errorLog.Path())
			}
		}
		if p.onStudent != nil {
			p.onStudent(studentID, results)
		}
	}

	summary, err := d.RunStrict(ctx, p.manifest)

	fmt.Println()
	fmt.Print(report.FormatRunSummary(summary))
	if table := aggregator.FormatStudentReport(); table != "" {
		fmt.Println()
		fmt.Print(table)
	}
	if summary.Failed > 0 {
		fmt.Printf("\nFailed request details: %s\n", errorLog.Path())
	}

	if err != nil {
		return summary, err
	}
	if summary.Failed > 0 {
		return summary, &RunFailureError{
			Message: fmt.Sprintf("run completed with %d failed task(s); see %s", summary.Failed, errorLog.Path()),
		}
	}
	return summary, nil
}

// setupRunLogging routes slog to both stderr and a JSON log file under the
// results directory. The returned cleanup restores the previous logger.
func setupRunLogging(resultsDir string) func() {
	level := slog.LevelInfo
	if slog.Default().Enabled(context.Background(), slog.LevelDebug) {
		level = slog.LevelDebug
	}

	if err := os.MkdirAll(resultsDir, 0o755); err != nil {
		return func() {}
	}

	previous := slog.Default()
	logger, closeFile := utils.SetupLogger(filepath.Join(resultsDir, "manabi.log"), level)
	slog.SetDefault(logger)
	return func() {
		slog.SetDefault(previous)
		if err := closeFile(); err != nil && !errors.Is(err, os.ErrClosed) {
			fmt.Fprintf(os.Stderr, "closing log file: %v\n", err)
		}
	}
}
