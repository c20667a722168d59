package providers

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/meysamhadeli/codgrade/providers/contracts"
	"github.com/meysamhadeli/codgrade/providers/ollama"
	"github.com/meysamhadeli/codgrade/providers/openai"
	tokencontracts "github.com/meysamhadeli/codgrade/token_management/contracts"
)

// AIProviderConfig is the selection-service section of the configuration.
type AIProviderConfig struct {
	Provider    string   `mapstructure:"provider" yaml:"provider"`
	BaseURL     string   `mapstructure:"base_url" yaml:"base_url"`
	Model       string   `mapstructure:"model" yaml:"model"`
	ApiKey      string   `mapstructure:"api_key" yaml:"api_key"`
	Temperature *float64 `mapstructure:"temperature" yaml:"temperature"`
	MaxTokens   int      `mapstructure:"max_tokens" yaml:"max_tokens"`
}

// ProviderFactory builds the selection provider named in the configuration.
func ProviderFactory(config *AIProviderConfig, tokenManagement tokencontracts.ITokenManagement, logger *slog.Logger) (contracts.ISelectionProvider, error) {
	if config == nil {
		return nil, fmt.Errorf("no ai provider configured")
	}
	switch strings.ToLower(config.Provider) {
	case "ollama":
		return ollama.NewOllamaSelectionProvider(&ollama.OllamaConfig{
			BaseURL:         config.BaseURL,
			Model:           config.Model,
			Temperature:     config.Temperature,
			MaxTokens:       config.MaxTokens,
			TokenManagement: tokenManagement,
			Logger:          logger,
		}), nil
	case "openai", "":
		if config.ApiKey == "" {
			return nil, fmt.Errorf("openai provider requires an api key")
		}
		return openai.NewOpenAISelectionProvider(&openai.OpenAIConfig{
			BaseURL:         config.BaseURL,
			Model:           config.Model,
			ApiKey:          config.ApiKey,
			Temperature:     config.Temperature,
			MaxTokens:       config.MaxTokens,
			TokenManagement: tokenManagement,
			Logger:          logger,
		}), nil
	default:
		return nil, fmt.Errorf("provider %q not supported", config.Provider)
	}
}
