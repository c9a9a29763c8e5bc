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

func TestOllamaProvider_Complete(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/chat", r.URL.Path)

		var req ollamaRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.False(t, req.Stream)

		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"message": map[string]interface{}{
				"content": "local answer",
				"tool_calls": []map[string]interface{}{
					{
						"function": map[string]interface{}{
							"name":      "orders-db",
							"arguments": map[string]interface{}{"status": "open"},
						},
					},
				},
			},
			"prompt_eval_count": 7,
			"eval_count":        3,
		})
	}))
	defer server.Close()

	provider := NewOllamaProvider(newTestLLMConfig(config.LLMProviderOllama, server.URL))

	resp, err := provider.Complete(context.Background(), &Request{
		Messages: []Message{{Role: RoleUser, Content: "open orders"}},
	})
	require.NoError(t, err)

	assert.Equal(t, 10, resp.Tokens)
	assert.Equal(t, "local answer", ExtractText(resp.Raw))
	require.Len(t, resp.ToolCalls, 1)
	assert.Equal(t, "open", resp.ToolCalls[0].Arguments["status"])
}

func TestOllamaProvider_Error(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"error": "model not found",
		})
	}))
	defer server.Close()

	provider := NewOllamaProvider(newTestLLMConfig(config.LLMProviderOllama, server.URL))

	_, err := provider.Complete(context.Background(), &Request{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "model not found")
}
