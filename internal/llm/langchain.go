package llm

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/anthropic"
	"github.com/tmc/langchaingo/llms/ollama"
	"github.com/tmc/langchaingo/llms/openai"
)

// Provider names accepted in configuration. An empty provider routes by
// model-name substring instead.
const (
	ProviderOpenAI    = "openai"
	ProviderAnthropic = "anthropic"
	ProviderOllama    = "ollama"
)

// ClientConfig configures the langchaingo-backed client.
type ClientConfig struct {
	Provider        string // optional; empty selects by model name
	OpenAIAPIKey    string
	AnthropicAPIKey string
	OllamaHost      string
}

// LangchainClient routes each request to a provider model by name. Models
// are constructed lazily and cached per (provider, model) so one client can
// serve a whole batch.
type LangchainClient struct {
	cfg ClientConfig

	mu     sync.Mutex
	models map[string]llms.Model
}

// NewLangchainClient creates a client; provider construction is deferred to
// the first request so configuration errors surface per call, not at startup.
func NewLangchainClient(cfg ClientConfig) *LangchainClient {
	return &LangchainClient{cfg: cfg, models: make(map[string]llms.Model)}
}

// ProviderFor resolves the provider for a model name. Explicit configuration
// wins; otherwise GPT-family names go to OpenAI, Claude-family names to
// Anthropic, and everything else to a local Ollama endpoint.
func (c *LangchainClient) ProviderFor(model string) string {
	if c.cfg.Provider != "" {
		return c.cfg.Provider
	}
	lower := strings.ToLower(model)
	switch {
	case strings.Contains(lower, "gpt"):
		return ProviderOpenAI
	case strings.Contains(lower, "claude"):
		return ProviderAnthropic
	default:
		return ProviderOllama
	}
}

func (c *LangchainClient) modelFor(model string) (llms.Model, error) {
	provider := c.ProviderFor(model)
	cacheKey := provider + "/" + model

	c.mu.Lock()
	defer c.mu.Unlock()
	if m, ok := c.models[cacheKey]; ok {
		return m, nil
	}

	var m llms.Model
	var err error
	switch provider {
	case ProviderOpenAI:
		if c.cfg.OpenAIAPIKey == "" {
			return nil, fmt.Errorf("openai api key required for model %q", model)
		}
		m, err = openai.New(openai.WithToken(c.cfg.OpenAIAPIKey), openai.WithModel(model))
	case ProviderAnthropic:
		if c.cfg.AnthropicAPIKey == "" {
			return nil, fmt.Errorf("anthropic api key required for model %q", model)
		}
		m, err = anthropic.New(anthropic.WithToken(c.cfg.AnthropicAPIKey), anthropic.WithModel(model))
	case ProviderOllama:
		opts := []ollama.Option{ollama.WithModel(model)}
		if c.cfg.OllamaHost != "" {
			opts = append(opts, ollama.WithServerURL(c.cfg.OllamaHost))
		}
		m, err = ollama.New(opts...)
	default:
		return nil, fmt.Errorf("unsupported provider %q", provider)
	}
	if err != nil {
		return nil, fmt.Errorf("create %s model %q: %w", provider, model, err)
	}

	c.models[cacheKey] = m
	return m, nil
}

// Complete sends a system+user message pair and returns the first choice.
func (c *LangchainClient) Complete(ctx context.Context, systemPrompt, userPrompt, model string) (string, error) {
	m, err := c.modelFor(model)
	if err != nil {
		return "", err
	}

	messages := []llms.MessageContent{
		llms.TextParts(llms.ChatMessageTypeSystem, systemPrompt),
		llms.TextParts(llms.ChatMessageTypeHuman, userPrompt),
	}

	resp, err := m.GenerateContent(ctx, messages, llms.WithTemperature(0))
	if err != nil {
		if IsRateLimit(err) {
			return "", &RateLimitError{Message: err.Error()}
		}
		return "", fmt.Errorf("generate with %s: %w", model, err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("model %s returned no choices", model)
	}
	return resp.Choices[0].Content, nil
}
