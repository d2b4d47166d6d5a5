package llm

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-query/pkg/config"
)

func TestOpenAIClient_Complete(t *testing.T) {
	var captured map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&captured))

		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{
			"id": "chatcmpl-1", "object": "chat.completion", "created": 1, "model": "gpt-4o-mini",
			"choices": [{"index": 0, "message": {"role": "assistant", "content": "SELECT 1"}, "finish_reason": "stop"}],
			"usage": {"prompt_tokens": 12, "completion_tokens": 3, "total_tokens": 15}
		}`)
	}))
	defer srv.Close()

	client, err := NewOpenAIClient(ClientConfig{Endpoint: srv.URL + "/v1/", Model: "gpt-4o-mini", APIKey: "sk-test"}, zap.NewNop())
	require.NoError(t, err)

	result, err := client.Complete(context.Background(), &CompletionRequest{
		SystemMessage: "system",
		Prompt:        "question",
		MaxTokens:     256,
		Temperature:   0.1,
		TopP:          0.8,
	})
	require.NoError(t, err)

	assert.Equal(t, "SELECT 1", result.Content)
	assert.Equal(t, 15, result.TotalTokens)
	assert.Equal(t, "gpt-4o-mini", captured["model"])
	assert.EqualValues(t, 256, captured["max_tokens"])
	messages := captured["messages"].([]any)
	require.Len(t, messages, 2)
	assert.Equal(t, "system", messages[0].(map[string]any)["role"])
}

func TestOpenAIClient_ClassifiesHTTPErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = io.WriteString(w, `{"error": {"message": "Incorrect API key provided", "type": "invalid_request_error"}}`)
	}))
	defer srv.Close()

	client, err := NewOpenAIClient(ClientConfig{Endpoint: srv.URL, Model: "gpt-4o-mini"}, zap.NewNop())
	require.NoError(t, err)

	_, err = client.Complete(context.Background(), &CompletionRequest{Prompt: "q"})
	require.Error(t, err)
	assert.Equal(t, ErrorTypeAuth, GetErrorType(err))
	assert.False(t, IsRetryable(err))
}

func TestAnthropicClient_Complete(t *testing.T) {
	var captured map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/messages", r.URL.Path)
		assert.Equal(t, "sk-ant", r.Header.Get("X-Api-Key"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&captured))

		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{
			"id": "msg_1", "type": "message", "role": "assistant", "model": "claude-test",
			"content": [{"type": "text", "text": "SELECT 2"}],
			"stop_reason": "end_turn",
			"usage": {"input_tokens": 20, "output_tokens": 4}
		}`)
	}))
	defer srv.Close()

	client, err := NewAnthropicClient(ClientConfig{Endpoint: srv.URL + "/v1", Model: "claude-test", APIKey: "sk-ant"}, zap.NewNop())
	require.NoError(t, err)

	result, err := client.Complete(context.Background(), &CompletionRequest{
		SystemMessage: "system",
		Prompt:        "question",
		Temperature:   0.1,
		TopP:          0.8,
		TopK:          40,
	})
	require.NoError(t, err)

	assert.Equal(t, "SELECT 2", result.Content)
	assert.Equal(t, 24, result.TotalTokens)
	assert.Equal(t, "system", captured["system"])
	assert.EqualValues(t, 40, captured["top_k"])
	assert.EqualValues(t, 1024, captured["max_tokens"])
}

func TestNewClient_SelectsProvider(t *testing.T) {
	openaiClient, err := NewClient(config.LLMConfig{Provider: "openai", Model: "gpt-4o-mini", MaxAttempts: 1}, zap.NewNop())
	require.NoError(t, err)
	assert.Equal(t, ProviderOpenAI, openaiClient.GetProvider())

	anthropicClient, err := NewClient(config.LLMConfig{Provider: "anthropic", Model: "claude-test", MaxAttempts: 1}, zap.NewNop())
	require.NoError(t, err)
	assert.Equal(t, ProviderAnthropic, anthropicClient.GetProvider())

	_, err = NewClient(config.LLMConfig{Provider: "gemini", Model: "x"}, zap.NewNop())
	assert.Error(t, err)
}

func TestRequestFromConfig(t *testing.T) {
	req := RequestFromConfig(config.LLMConfig{MaxTokens: 1024, Temperature: 0.1, TopP: 0.8, TopK: 40}, "sys", "prompt")
	assert.Equal(t, &CompletionRequest{
		SystemMessage: "sys",
		Prompt:        "prompt",
		MaxTokens:     1024,
		Temperature:   0.1,
		TopP:          0.8,
		TopK:          40,
	}, req)
}
