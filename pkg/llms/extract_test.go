package llms

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestExtractText(t *testing.T) {
	tests := []struct {
		name string
		raw  map[string]interface{}
		want string
	}{
		{
			name: "anthropic block list",
			raw: map[string]interface{}{
				"content": []interface{}{
					map[string]interface{}{"type": "text", "text": "from blocks"},
				},
			},
			want: "from blocks",
		},
		{
			name: "openai choices",
			raw: map[string]interface{}{
				"choices": []interface{}{
					map[string]interface{}{
						"message": map[string]interface{}{"content": "from choices"},
					},
				},
			},
			want: "from choices",
		},
		{
			name: "top-level content string",
			raw:  map[string]interface{}{"content": "plain content"},
			want: "plain content",
		},
		{
			name: "ollama message content",
			raw: map[string]interface{}{
				"message": map[string]interface{}{"content": "from message"},
			},
			want: "from message",
		},
		{
			name: "bare text field",
			raw:  map[string]interface{}{"text": "bare text"},
			want: "bare text",
		},
		{
			name: "empty payload",
			raw:  map[string]interface{}{},
			want: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ExtractText(tt.raw))
		})
	}
}

func TestExtractText_Precedence(t *testing.T) {
	// Block list wins over choices, choices win over bare fields.
	raw := map[string]interface{}{
		"content": []interface{}{
			map[string]interface{}{"text": "blocks"},
		},
		"choices": []interface{}{
			map[string]interface{}{
				"message": map[string]interface{}{"content": "choices"},
			},
		},
		"text": "bare",
	}
	assert.Equal(t, "blocks", ExtractText(raw))

	delete(raw, "content")
	assert.Equal(t, "choices", ExtractText(raw))

	delete(raw, "choices")
	assert.Equal(t, "bare", ExtractText(raw))
}

func TestExtractText_FallbackSerializes(t *testing.T) {
	raw := map[string]interface{}{
		"unrecognized": map[string]interface{}{"shape": true},
	}

	got := ExtractText(raw)
	assert.NotEmpty(t, got)

	var decoded map[string]interface{}
	assert.NoError(t, json.Unmarshal([]byte(got), &decoded))
	assert.Equal(t, raw, decoded)
}

func TestExtractText_SkipsEmptyMatches(t *testing.T) {
	// An empty string at a higher-priority probe falls through to the
	// next shape.
	raw := map[string]interface{}{
		"content": []interface{}{
			map[string]interface{}{"text": ""},
		},
		"text": "fallback",
	}
	assert.Equal(t, "fallback", ExtractText(raw))
}
