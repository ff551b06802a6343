// Package providers builds llm.Client implementations for hosted and local models.
package providers

import (
	"fmt"

	"github.com/spec-kit/ticket-triage/internal/config"
	"github.com/spec-kit/ticket-triage/internal/llm"
)

// New returns the configured provider wrapped with usage limits and retries.
// It returns a nil client when the provider is "none".
func New(cfg config.LLMConfig, counter *llm.TokenCounter, recorder llm.Recorder) (llm.Client, error) {
	raw, err := newRaw(cfg)
	if err != nil || raw == nil {
		return nil, err
	}

	retry := llm.DefaultRetryConfig
	if cfg.RetryMaxAttempts > 0 {
		retry.MaxAttempts = cfg.RetryMaxAttempts
	}
	if cfg.RetryInitialDelay > 0 {
		retry.InitialDelay = cfg.RetryInitialDelay
	}
	if cfg.RetryMaxDelay > 0 {
		retry.MaxDelay = cfg.RetryMaxDelay
	}

	// Limits sit inside retries so every attempt is charged.
	limited := llm.NewLimitedClient(raw, counter, recorder)
	return llm.NewRetryingClient(limited, retry), nil
}

func newRaw(cfg config.LLMConfig) (llm.Client, error) {
	model := cfg.Model
	if model == "" {
		model = config.DefaultModel(cfg.Provider)
	}
	switch cfg.Provider {
	case "", "none":
		return nil, nil
	case "anthropic":
		if cfg.APIKey == "" {
			return nil, fmt.Errorf("anthropic provider requires LLM_API_KEY")
		}
		return NewAnthropic(cfg.APIKey, model, cfg.BaseURL), nil
	case "openai":
		if cfg.APIKey == "" {
			return nil, fmt.Errorf("openai provider requires LLM_API_KEY")
		}
		return NewOpenAI(cfg.APIKey, model, cfg.BaseURL), nil
	case "gemini":
		if cfg.APIKey == "" {
			return nil, fmt.Errorf("gemini provider requires LLM_API_KEY")
		}
		return NewGemini(cfg.APIKey, model), nil
	case "ollama":
		return NewOllama(cfg.BaseURL, model)
	default:
		return nil, fmt.Errorf("unknown llm provider %q", cfg.Provider)
	}
}
