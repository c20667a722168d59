package ollama

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/meysamhadeli/codgrade/embed_data"
	"github.com/meysamhadeli/codgrade/providers/contracts"
	"github.com/meysamhadeli/codgrade/providers/models"
	ollama_models "github.com/meysamhadeli/codgrade/providers/ollama/models"
	tokencontracts "github.com/meysamhadeli/codgrade/token_management/contracts"
)

// OllamaConfig configures a selection provider backed by a local Ollama server.
type OllamaConfig struct {
	BaseURL         string
	Model           string
	Temperature     *float64
	MaxTokens       int
	TokenManagement tokencontracts.ITokenManagement
	HTTPClient      *http.Client
	Logger          *slog.Logger
}

const (
	defaultBaseURL = "http://localhost:11434/api"
)

// NewOllamaSelectionProvider initializes a selection provider.
func NewOllamaSelectionProvider(config *OllamaConfig) contracts.ISelectionProvider {
	cfg := *config
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultBaseURL
	}
	cfg.BaseURL = strings.TrimSuffix(cfg.BaseURL, "/")
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = &http.Client{}
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &cfg
}

func (ollamaProvider *OllamaConfig) Name() string { return "ollama" }

func (ollamaProvider *OllamaConfig) Select(ctx context.Context, request models.SelectionRequest) ([]models.Selection, error) {
	reqBody := ollama_models.OllamaChatCompletionRequest{
		Model: ollamaProvider.Model,
		Messages: []ollama_models.Message{
			{Role: "system", Content: string(embed_data.SelectionSystemPrompt)},
			{Role: "user", Content: request.UserContent()},
		},
		Stream: false,
		Options: &ollama_models.Options{
			Temperature: ollamaProvider.Temperature,
			NumPredict:  ollamaProvider.MaxTokens,
		},
	}

	jsonData, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("error marshalling request body: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, fmt.Sprintf("%s/chat", ollamaProvider.BaseURL), bytes.NewBuffer(jsonData))
	if err != nil {
		return nil, fmt.Errorf("error creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := ollamaProvider.HTTPClient.Do(req)
	if err != nil {
		if errors.Is(ctx.Err(), context.Canceled) {
			return nil, fmt.Errorf("request canceled: %w", err)
		}
		return nil, fmt.Errorf("error sending request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("error reading response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		var apiError models.AIError
		if err := json.Unmarshal(body, &apiError); err != nil || apiError.Error.Message == "" {
			return nil, fmt.Errorf("API request failed with status code '%d'", resp.StatusCode)
		}
		return nil, fmt.Errorf("API request failed with status code '%d' - %s", resp.StatusCode, apiError.Error.Message)
	}

	var response ollama_models.OllamaChatCompletionResponse
	if err := json.Unmarshal(body, &response); err != nil {
		return nil, fmt.Errorf("error unmarshalling response: %w", err)
	}

	if response.PromptEvalCount > 0 && ollamaProvider.TokenManagement != nil {
		ollamaProvider.TokenManagement.UsedTokens(response.PromptEvalCount, response.EvalCount)
	}
	ollamaProvider.Logger.DebugContext(ctx, "selection completed",
		"model", ollamaProvider.Model,
		"prompt_tokens", response.PromptEvalCount,
		"completion_tokens", response.EvalCount)

	return models.ParseSelections(response.Message.Content)
}
