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

func TestAnthropicProvider_Complete(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/messages", r.URL.Path)
		assert.Equal(t, "test-key", r.Header.Get("x-api-key"))
		assert.Equal(t, anthropicVersion, r.Header.Get("anthropic-version"))

		var req anthropicRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		// System prompts move to the top-level field.
		assert.Equal(t, "you are a planner", req.System)
		require.Len(t, req.Messages, 1)
		assert.Equal(t, "user", req.Messages[0].Role)

		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"content": []map[string]interface{}{
				{"type": "text", "text": "the answer"},
				{
					"type":  "tool_use",
					"id":    "toolu_1",
					"name":  "crm-api",
					"input": map[string]interface{}{"account": "A9"},
				},
			},
			"usage": map[string]interface{}{
				"input_tokens":  10,
				"output_tokens": 5,
			},
		})
	}))
	defer server.Close()

	provider := NewAnthropicProvider(newTestLLMConfig(config.LLMProviderAnthropic, server.URL))

	resp, err := provider.Complete(context.Background(), &Request{
		Messages: []Message{
			{Role: RoleSystem, Content: "you are a planner"},
			{Role: RoleUser, Content: "find the account"},
		},
	})
	require.NoError(t, err)

	assert.Equal(t, 15, resp.Tokens)
	assert.Equal(t, "the answer", ExtractText(resp.Raw))
	require.Len(t, resp.ToolCalls, 1)
	assert.Equal(t, "crm-api", resp.ToolCalls[0].Name)
	assert.Equal(t, "A9", resp.ToolCalls[0].Arguments["account"])
}

func TestAnthropicProvider_APIError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"error": map[string]interface{}{
				"type":    "rate_limit_error",
				"message": "slow down",
			},
		})
	}))
	defer server.Close()

	provider := NewAnthropicProvider(newTestLLMConfig(config.LLMProviderAnthropic, server.URL))

	_, err := provider.Complete(context.Background(), &Request{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "rate_limit_error")
}
