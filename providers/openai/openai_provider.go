package openai

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/meysamhadeli/codgrade/embed_data"
	"github.com/meysamhadeli/codgrade/providers/contracts"
	"github.com/meysamhadeli/codgrade/providers/models"
	tokencontracts "github.com/meysamhadeli/codgrade/token_management/contracts"
	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

// OpenAIConfig configures a selection provider backed by an OpenAI-compatible API.
type OpenAIConfig struct {
	BaseURL         string
	Model           string
	ApiKey          string
	Temperature     *float64
	MaxTokens       int
	TokenManagement tokencontracts.ITokenManagement
	Logger          *slog.Logger
}

type openAIProvider struct {
	client openai.Client
	config OpenAIConfig
}

const defaultModel = "gpt-4o"

// NewOpenAISelectionProvider initializes a selection provider.
func NewOpenAISelectionProvider(config *OpenAIConfig) contracts.ISelectionProvider {
	opts := []option.RequestOption{
		option.WithAPIKey(config.ApiKey),
	}
	if config.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(config.BaseURL))
	}

	cfg := *config
	if cfg.Model == "" {
		cfg.Model = defaultModel
	}
	if cfg.MaxTokens == 0 {
		cfg.MaxTokens = 1024
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	return &openAIProvider{
		client: openai.NewClient(opts...),
		config: cfg,
	}
}

func (p *openAIProvider) Name() string { return "openai" }

func (p *openAIProvider) Select(ctx context.Context, request models.SelectionRequest) ([]models.Selection, error) {
	params := openai.ChatCompletionNewParams{
		Model: p.config.Model,
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(string(embed_data.SelectionSystemPrompt)),
			openai.UserMessage(request.UserContent()),
		},
		MaxCompletionTokens: openai.Int(int64(p.config.MaxTokens)),
	}
	if p.config.Temperature != nil {
		params.Temperature = openai.Float(*p.config.Temperature)
	}

	start := time.Now()
	resp, err := p.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("openai selection: %w", err)
	}
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("no choices in response")
	}

	p.config.Logger.DebugContext(ctx, "selection completed",
		"model", p.config.Model,
		"duration_ms", time.Since(start).Milliseconds(),
		"prompt_tokens", resp.Usage.PromptTokens,
		"completion_tokens", resp.Usage.CompletionTokens)

	if p.config.TokenManagement != nil {
		p.config.TokenManagement.UsedTokens(int(resp.Usage.PromptTokens), int(resp.Usage.CompletionTokens))
	}

	return models.ParseSelections(resp.Choices[0].Message.Content)
}
