// Package projectconfig provides the ProjectConfig struct and loader for
// .manabi.yaml project-level configuration files.
package projectconfig

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Default values for project configuration. These are the single source of
// truth — New() references them and no other code should duplicate them.
const (
	DefaultDataDir    = "data/"
	DefaultResultsDir = "results/"

	DefaultConcurrency    = 30
	DefaultSpreadSeconds  = 60
	DefaultFlushThreshold = 100

	DefaultModel      = "gpt-3.5-turbo"
	DefaultTutorModel = "qwen-plus"

	DefaultStore = "csv"
)

// DefaultBackoffSeconds is the waiting schedule between rate-limited
// attempts.
var DefaultBackoffSeconds = []int{5, 10, 30}

// PathsConfig holds directory paths for the source data and run outputs.
type PathsConfig struct {
	Data    string `yaml:"data,omitempty"`
	Results string `yaml:"results,omitempty"`
}

// DispatchConfig holds the dispatcher tuning knobs. Concurrency and
// FlushThreshold are pointers so an explicit 0 in the file is distinguishable
// from an absent key and reaches Validate instead of the default.
type DispatchConfig struct {
	Concurrency    *int  `yaml:"concurrency,omitempty"`
	SpreadSeconds  *int  `yaml:"spread_seconds,omitempty"`
	BackoffSeconds []int `yaml:"backoff_seconds,omitempty"`
	FlushThreshold *int  `yaml:"flush_threshold,omitempty"`
	Resume         *bool `yaml:"resume,omitempty"`
}

// LLMConfig holds model selection and provider credentials. API keys are
// normally taken from the environment; the file fields exist for local
// setups.
type LLMConfig struct {
	Provider        string `yaml:"provider,omitempty"`
	Model           string `yaml:"model,omitempty"`
	TutorModel      string `yaml:"tutor_model,omitempty"`
	OpenAIAPIKey    string `yaml:"openai_api_key,omitempty"`
	AnthropicAPIKey string `yaml:"anthropic_api_key,omitempty"`
	OllamaHost      string `yaml:"ollama_host,omitempty"`
}

// CheckpointConfig selects the checkpoint storage engine.
type CheckpointConfig struct {
	Store string `yaml:"store,omitempty"` // "csv" or "sqlite"
}

// ProjectConfig is the top-level configuration loaded from .manabi.yaml.
type ProjectConfig struct {
	Paths      PathsConfig      `yaml:"paths,omitempty"`
	Dispatch   DispatchConfig   `yaml:"dispatch,omitempty"`
	LLM        LLMConfig        `yaml:"llm,omitempty"`
	Checkpoint CheckpointConfig `yaml:"checkpoint,omitempty"`
}

// New returns a ProjectConfig with all hard-coded defaults populated.
func New() *ProjectConfig {
	return &ProjectConfig{
		Paths: PathsConfig{
			Data:    DefaultDataDir,
			Results: DefaultResultsDir,
		},
		Dispatch: DispatchConfig{
			Concurrency:    intPtr(DefaultConcurrency),
			SpreadSeconds:  intPtr(DefaultSpreadSeconds),
			BackoffSeconds: append([]int(nil), DefaultBackoffSeconds...),
			FlushThreshold: intPtr(DefaultFlushThreshold),
			Resume:         boolPtr(true),
		},
		LLM: LLMConfig{
			Model:      DefaultModel,
			TutorModel: DefaultTutorModel,
		},
		Checkpoint: CheckpointConfig{
			Store: DefaultStore,
		},
	}
}

// Validate rejects configurations the dispatcher cannot honor. A zero or
// missing concurrency is a configuration error, never "unlimited".
func (c *ProjectConfig) Validate() error {
	if c.Dispatch.Concurrency == nil || *c.Dispatch.Concurrency <= 0 {
		return fmt.Errorf("dispatch.concurrency must be > 0, got %s", intPtrString(c.Dispatch.Concurrency))
	}
	if c.Dispatch.SpreadSeconds != nil && *c.Dispatch.SpreadSeconds < 0 {
		return fmt.Errorf("dispatch.spread_seconds must be >= 0, got %d", *c.Dispatch.SpreadSeconds)
	}
	if c.Dispatch.FlushThreshold == nil || *c.Dispatch.FlushThreshold <= 0 {
		return fmt.Errorf("dispatch.flush_threshold must be > 0, got %s", intPtrString(c.Dispatch.FlushThreshold))
	}
	for _, s := range c.Dispatch.BackoffSeconds {
		if s <= 0 {
			return fmt.Errorf("dispatch.backoff_seconds entries must be > 0, got %d", s)
		}
	}
	if s := c.Checkpoint.Store; s != "csv" && s != "sqlite" {
		return fmt.Errorf("checkpoint.store must be \"csv\" or \"sqlite\", got %q", s)
	}
	return nil
}

// Load finds .manabi.yaml by walking up from startDir (max 10 levels),
// unmarshals it, and fills in missing fields with defaults.
// If no config file is found, returns defaults with a nil error.
// Real I/O errors (e.g. permission denied) are returned to the caller.
func Load(startDir string) (*ProjectConfig, error) {
	cfg := New()

	data, err := findConfigFile(startDir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return cfg, nil // no file found → return defaults
		}
		return nil, fmt.Errorf("loading .manabi.yaml: %w", err)
	}

	var fileCfg ProjectConfig
	if err := yaml.Unmarshal(data, &fileCfg); err != nil {
		return nil, fmt.Errorf("parsing .manabi.yaml: %w", err)
	}

	// Merge file values onto defaults.
	mergeConfig(cfg, &fileCfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid .manabi.yaml: %w", err)
	}
	return cfg, nil
}

// findConfigFile walks up from dir looking for .manabi.yaml (max 10 levels).
// Returns os.ErrNotExist if no config file is found. Propagates real I/O
// errors (e.g. permission denied) instead of silently swallowing them.
func findConfigFile(dir string) ([]byte, error) {
	// Convert to absolute path so filepath.Dir(".") walks correctly.
	absDir, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("resolving path %q: %w", dir, err)
	}
	dir = absDir

	for i := 0; i < 10; i++ {
		p := filepath.Join(dir, ".manabi.yaml")
		data, err := os.ReadFile(p)
		if err == nil {
			return data, nil
		}
		if !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("reading %q: %w", p, err)
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			break // reached filesystem root
		}
		dir = parent
	}
	return nil, os.ErrNotExist
}

// mergeConfig overlays non-zero values from src onto dst.
func mergeConfig(dst, src *ProjectConfig) {
	// Paths
	if src.Paths.Data != "" {
		dst.Paths.Data = src.Paths.Data
	}
	if src.Paths.Results != "" {
		dst.Paths.Results = src.Paths.Results
	}

	// Dispatch
	if src.Dispatch.Concurrency != nil {
		dst.Dispatch.Concurrency = src.Dispatch.Concurrency
	}
	if src.Dispatch.SpreadSeconds != nil {
		dst.Dispatch.SpreadSeconds = src.Dispatch.SpreadSeconds
	}
	if len(src.Dispatch.BackoffSeconds) > 0 {
		dst.Dispatch.BackoffSeconds = src.Dispatch.BackoffSeconds
	}
	if src.Dispatch.FlushThreshold != nil {
		dst.Dispatch.FlushThreshold = src.Dispatch.FlushThreshold
	}
	if src.Dispatch.Resume != nil {
		dst.Dispatch.Resume = src.Dispatch.Resume
	}

	// LLM
	if src.LLM.Provider != "" {
		dst.LLM.Provider = src.LLM.Provider
	}
	if src.LLM.Model != "" {
		dst.LLM.Model = src.LLM.Model
	}
	if src.LLM.TutorModel != "" {
		dst.LLM.TutorModel = src.LLM.TutorModel
	}
	if src.LLM.OpenAIAPIKey != "" {
		dst.LLM.OpenAIAPIKey = src.LLM.OpenAIAPIKey
	}
	if src.LLM.AnthropicAPIKey != "" {
		dst.LLM.AnthropicAPIKey = src.LLM.AnthropicAPIKey
	}
	if src.LLM.OllamaHost != "" {
		dst.LLM.OllamaHost = src.LLM.OllamaHost
	}

	// Checkpoint
	if src.Checkpoint.Store != "" {
		dst.Checkpoint.Store = src.Checkpoint.Store
	}
}

func boolPtr(b bool) *bool {
	return &b
}

func intPtr(i int) *int {
	return &i
}

func intPtrString(p *int) string {
	if p == nil {
		return "nothing"
	}
	return fmt.Sprintf("%d", *p)
}
