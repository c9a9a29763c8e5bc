package llms

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/loom-ai/loom/pkg/config"
)

func newTestLLMConfig(provider config.LLMProvider, baseURL string) *config.LLMConfig {
	cfg := &config.LLMConfig{
		Provider: provider,
		APIKey:   "test-key",
		BaseURL:  baseURL,
	}
	cfg.SetDefaults()
	return cfg
}

func TestOpenAIProvider_Complete(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))

		var req openAIRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		require.Len(t, req.Messages, 2)
		assert.Equal(t, "system", req.Messages[0].Role)

		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"choices": []map[string]interface{}{
				{
					"message": map[string]interface{}{
						"content": "the answer",
						"tool_calls": []map[string]interface{}{
							{
								"id": "call_1",
								"function": map[string]interface{}{
									"name":      "orders-db",
									"arguments": `{"customer_id": "C123"}`,
								},
							},
						},
					},
				},
			},
			"usage": map[string]interface{}{"total_tokens": 42},
		})
	}))
	defer server.Close()

	provider := NewOpenAIProvider(newTestLLMConfig(config.LLMProviderOpenAI, server.URL))

	resp, err := provider.Complete(context.Background(), &Request{
		Messages: []Message{
			{Role: RoleSystem, Content: "you are a planner"},
			{Role: RoleUser, Content: "find my orders"},
		},
	})
	require.NoError(t, err)

	assert.Equal(t, 42, resp.Tokens)
	assert.Equal(t, "the answer", ExtractText(resp.Raw))
	require.Len(t, resp.ToolCalls, 1)
	assert.Equal(t, "orders-db", resp.ToolCalls[0].Name)
	assert.Equal(t, "C123", resp.ToolCalls[0].Arguments["customer_id"])
}

func TestOpenAIProvider_APIError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"error": map[string]interface{}{
				"message": "invalid api key",
				"type":    "invalid_request_error",
			},
		})
	}))
	defer server.Close()

	provider := NewOpenAIProvider(newTestLLMConfig(config.LLMProviderOpenAI, server.URL))

	_, err := provider.Complete(context.Background(), &Request{})
	require.Error(t, err)
	assert.Equal(t, ErrKindProvider, KindOf(err))
	assert.Contains(t, err.Error(), "invalid api key")
}

func TestOpenAIProvider_MalformedToolArguments(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"choices": []map[string]interface{}{
				{
					"message": map[string]interface{}{
						"tool_calls": []map[string]interface{}{
							{
								"id": "call_1",
								"function": map[string]interface{}{
									"name":      "orders-db",
									"arguments": "not json",
								},
							},
						},
					},
				},
			},
		})
	}))
	defer server.Close()

	provider := NewOpenAIProvider(newTestLLMConfig(config.LLMProviderOpenAI, server.URL))

	resp, err := provider.Complete(context.Background(), &Request{})
	require.NoError(t, err)
	require.Len(t, resp.ToolCalls, 1)
	assert.Equal(t, "not json", resp.ToolCalls[0].Arguments["_raw"])
}
