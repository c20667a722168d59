package providers

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/meysamhadeli/codgrade/providers/models"
	ollama_models "github.com/meysamhadeli/codgrade/providers/ollama/models"
	"github.com/meysamhadeli/codgrade/token_management"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const selectionReply = "Here you go:\n```json\n[{\"class\": \"Calc\", \"method\": \"add()\"}, {\"class\": \"\", \"method\": \"x\"}]\n```"

func TestParseSelections(t *testing.T) {
	selections, err := models.ParseSelections(selectionReply)
	require.NoError(t, err)
	assert.Equal(t, []models.Selection{{Class: "Calc", Method: "add"}}, selections)

	_, err = models.ParseSelections("I cannot help with that.")
	assert.Error(t, err)

	_, err = models.ParseSelections("[not json]")
	assert.Error(t, err)

	empty, err := models.ParseSelections("[]")
	require.NoError(t, err)
	assert.Empty(t, empty)
}

func TestProviderFactory(t *testing.T) {
	tm := token_management.NewTokenManagerWithWriter(io.Discard)

	p, err := ProviderFactory(&AIProviderConfig{Provider: "ollama"}, tm, nil)
	require.NoError(t, err)
	assert.Equal(t, "ollama", p.Name())

	p, err = ProviderFactory(&AIProviderConfig{Provider: "OpenAI", ApiKey: "sk-test"}, tm, nil)
	require.NoError(t, err)
	assert.Equal(t, "openai", p.Name())

	_, err = ProviderFactory(&AIProviderConfig{Provider: "openai"}, tm, nil)
	assert.Error(t, err)

	_, err = ProviderFactory(&AIProviderConfig{Provider: "gemini"}, tm, nil)
	assert.Error(t, err)

	_, err = ProviderFactory(nil, tm, nil)
	assert.Error(t, err)
}

func TestOllamaProvider_Select(t *testing.T) {
	var got ollama_models.OllamaChatCompletionRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/chat", r.URL.Path)
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_ = json.NewEncoder(w).Encode(ollama_models.OllamaChatCompletionResponse{
			Model:           "qwen2.5-coder",
			Message:         ollama_models.Message{Role: "assistant", Content: selectionReply},
			Done:            true,
			PromptEvalCount: 40,
			EvalCount:       8,
		})
	}))
	defer server.Close()

	tm := token_management.NewTokenManagerWithWriter(io.Discard)
	p, err := ProviderFactory(&AIProviderConfig{Provider: "ollama", BaseURL: server.URL + "/api/", Model: "qwen2.5-coder"}, tm, nil)
	require.NoError(t, err)

	selections, err := p.Select(context.Background(), models.SelectionRequest{Synopsis: "add returns wrong sum", PriorOutput: "expected 3"})
	require.NoError(t, err)
	assert.Equal(t, []models.Selection{{Class: "Calc", Method: "add"}}, selections)

	assert.Equal(t, "qwen2.5-coder", got.Model)
	assert.False(t, got.Stream)
	require.Len(t, got.Messages, 2)
	assert.Equal(t, "system", got.Messages[0].Role)
	assert.Contains(t, got.Messages[1].Content, "add returns wrong sum")

	total, in, out := tm.GetCurrentTokenUsage()
	assert.Equal(t, 48, total)
	assert.Equal(t, 40, in)
	assert.Equal(t, 8, out)
}

func TestOllamaProvider_ErrorStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"error":{"message":"model not found"}}`))
	}))
	defer server.Close()

	p, err := ProviderFactory(&AIProviderConfig{Provider: "ollama", BaseURL: server.URL}, nil, nil)
	require.NoError(t, err)

	_, err = p.Select(context.Background(), models.SelectionRequest{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "model not found")
}

func TestOpenAIProvider_Select(t *testing.T) {
	var body map[string]any
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))
		raw, _ := io.ReadAll(r.Body)
		assert.NoError(t, json.Unmarshal(raw, &body))

		w.Header().Set("Content-Type", "application/json")
		reply, _ := json.Marshal(selectionReply)
		_, _ = w.Write(bytes.ReplaceAll([]byte(`{
  "id": "chatcmpl-1",
  "object": "chat.completion",
  "created": 1700000000,
  "model": "gpt-4o",
  "choices": [{"index": 0, "finish_reason": "stop", "message": {"role": "assistant", "content": REPLY}}],
  "usage": {"prompt_tokens": 120, "completion_tokens": 15, "total_tokens": 135}
}`), []byte("REPLY"), reply))
	}))
	defer server.Close()

	temperature := 0.1
	tm := token_management.NewTokenManagerWithWriter(io.Discard)
	p, err := ProviderFactory(&AIProviderConfig{
		Provider:    "openai",
		BaseURL:     server.URL + "/v1/",
		ApiKey:      "sk-test",
		Temperature: &temperature,
	}, tm, nil)
	require.NoError(t, err)

	selections, err := p.Select(context.Background(), models.SelectionRequest{Synopsis: "s", PriorOutput: "o"})
	require.NoError(t, err)
	assert.Equal(t, []models.Selection{{Class: "Calc", Method: "add"}}, selections)

	assert.Equal(t, "gpt-4o", body["model"])
	assert.InDelta(t, 0.1, body["temperature"], 1e-9)
	assert.Len(t, body["messages"], 2)

	total, _, _ := tm.GetCurrentTokenUsage()
	assert.Equal(t, 135, total)
	assert.Equal(t, 1, tm.Requests())
}

func TestOpenAIProvider_ClientError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":{"message":"bad request","type":"invalid_request_error"}}`))
	}))
	defer server.Close()

	p, err := ProviderFactory(&AIProviderConfig{Provider: "openai", BaseURL: server.URL + "/", ApiKey: "sk-test"}, nil, nil)
	require.NoError(t, err)

	_, err = p.Select(context.Background(), models.SelectionRequest{})
	assert.Error(t, err)
}
