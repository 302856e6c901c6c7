package config

import (
	"fmt"

	"github.com/entrhq/repoman/pkg/llm"
	"github.com/entrhq/repoman/pkg/llm/anthropic"
	"github.com/entrhq/repoman/pkg/llm/openai"
)

// BuildProvider creates the LLM provider selected by the configuration.
//
// Precedence: config file > environment variables > provider defaults. The
// providers themselves fall back to OPENAI_API_KEY, OPENAI_BASE_URL and
// ANTHROPIC_API_KEY when the file leaves those values empty.
func BuildProvider(cfg LLMConfig) (llm.Provider, error) {
	switch cfg.Provider {
	case ProviderOpenAI, "":
		opts := []openai.ProviderOption{
			openai.WithModel(cfg.Model),
			openai.WithBaseURL(cfg.BaseURL),
			openai.WithTemperature(cfg.Temperature),
			openai.WithTimeout(cfg.Timeout),
		}
		if cfg.MaxTokens > 0 {
			opts = append(opts, openai.WithMaxTokens(cfg.MaxTokens))
		}
		provider, err := openai.NewProvider(cfg.APIKey, opts...)
		if err != nil {
			return nil, fmt.Errorf("failed to create LLM provider: %w", err)
		}
		return provider, nil

	case ProviderAnthropic:
		provider, err := anthropic.NewProvider(cfg.APIKey,
			anthropic.WithModel(cfg.Model),
			anthropic.WithBaseURL(cfg.BaseURL),
			anthropic.WithTemperature(cfg.Temperature),
			anthropic.WithMaxTokens(cfg.MaxTokens),
			anthropic.WithTimeout(cfg.Timeout),
		)
		if err != nil {
			return nil, fmt.Errorf("failed to create LLM provider: %w", err)
		}
		return provider, nil

	default:
		return nil, fmt.Errorf("unknown llm provider %q", cfg.Provider)
	}
}
