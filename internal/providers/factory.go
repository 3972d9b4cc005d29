package providers

import (
	"fmt"

	"github.com/hazemksouri/parley/internal/completion"
	"github.com/hazemksouri/parley/internal/config"
)

// NewProviderFromConfig creates a completion.Provider for the configured
// provider. It returns the provider together with the resolved model name.
// A missing API key surfaces as a completion.Error with KindMissingAPIKey:
// sends cannot work without one.
func NewProviderFromConfig(cfg *config.Config) (completion.Provider, string, error) {
	providerName := cfg.Provider
	if providerName == "" {
		providerName = "openai"
	}

	switch providerName {
	case "openai":
		modelName := cfg.Model
		if modelName == "" {
			modelName = "gpt-4o-mini"
		}

		client, err := NewOpenAIProvider(cfg.APIKey, modelName, cfg.BaseURL)
		if err != nil {
			return nil, "", err
		}
		return client, modelName, nil

	case "anthropic":
		modelName := cfg.Model
		if modelName == "" {
			modelName = "claude-3-5-sonnet-20241022"
		}

		client, err := NewAnthropicProvider(cfg.APIKey, modelName)
		if err != nil {
			return nil, "", err
		}
		return client, modelName, nil

	default:
		return nil, "", fmt.Errorf("unknown provider: %s (supported: openai, anthropic)", providerName)
	}
}
