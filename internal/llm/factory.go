package llm

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"webqa/internal/types"
)

// NewFromConfig builds a Client from the run's LLM config. The `api` field
// selects the provider; unknown values are rejected rather than silently
// defaulted so misconfigurations fail at startup.
func NewFromConfig(ctx context.Context, cfg types.LLMConfig, logger *zap.Logger) (Client, error) {
	switch cfg.API {
	case "", "openai":
		return NewOpenAIClient(OpenAIOptions{
			APIKey:      cfg.APIKey,
			BaseURL:     cfg.BaseURL,
			Model:       cfg.Model,
			Temperature: cfg.Temperature,
			TopP:        cfg.TopP,
			Logger:      logger,
		}), nil
	case "gemini":
		return NewGeminiClient(ctx, GeminiOptions{
			APIKey:      cfg.APIKey,
			Model:       cfg.Model,
			Temperature: cfg.Temperature,
			TopP:        cfg.TopP,
			Logger:      logger,
		})
	default:
		return nil, fmt.Errorf("unsupported llm api %q", cfg.API)
	}
}
