package llm

import (
	"context"
	"fmt"

	"ai-cycle-planner/internal/config"
)

// NewFromConfig builds the configured provider wrapped in retries.
func NewFromConfig(ctx context.Context, cfg *config.Config) (*RetryingGenerator, error) {
	var base TextGenerator
	switch cfg.LLMProvider {
	case config.ProviderGemini:
		g, err := NewGeminiClient(ctx, cfg.GeminiAPIKey, cfg.LLMModel)
		if err != nil {
			return nil, err
		}
		base = g
	case config.ProviderGroq:
		base = NewGroqClient(cfg.GroqAPIKey, cfg.LLMModel)
	default:
		return nil, fmt.Errorf("unknown LLM provider %q", cfg.LLMProvider)
	}

	retry := DefaultRetryConfig()
	retry.MaxAttempts = cfg.LLMMaxAttempts
	retry.CallTimeout = cfg.LLMCallTimeout
	return NewRetryingGenerator(base, retry), nil
}
