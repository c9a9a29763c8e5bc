package llms

import "encoding/json"

// textProbe attempts to pull assistant text out of one known payload
// shape. Probes run in order; the first non-empty result wins.
type textProbe func(raw map[string]interface{}) (string, bool)

// textProbes covers the payload shapes of the supported providers plus
// the generic fallbacks, in priority order:
//
//  1. content[0].text        (Anthropic-style block list)
//  2. choices[0].message.content  (OpenAI-style)
//  3. content                (top-level string)
//  4. message.content        (Ollama chat)
//  5. text                   (bare completion)
//
// If nothing matches, ExtractText serializes the whole payload so the
// caller never receives an empty answer for a non-empty response.
var textProbes = []textProbe{
	func(raw map[string]interface{}) (string, bool) {
		blocks, ok := raw["content"].([]interface{})
		if !ok || len(blocks) == 0 {
			return "", false
		}
		block, ok := blocks[0].(map[string]interface{})
		if !ok {
			return "", false
		}
		return asNonEmptyString(block["text"])
	},
	func(raw map[string]interface{}) (string, bool) {
		choices, ok := raw["choices"].([]interface{})
		if !ok || len(choices) == 0 {
			return "", false
		}
		choice, ok := choices[0].(map[string]interface{})
		if !ok {
			return "", false
		}
		message, ok := choice["message"].(map[string]interface{})
		if !ok {
			return "", false
		}
		return asNonEmptyString(message["content"])
	},
	func(raw map[string]interface{}) (string, bool) {
		return asNonEmptyString(raw["content"])
	},
	func(raw map[string]interface{}) (string, bool) {
		message, ok := raw["message"].(map[string]interface{})
		if !ok {
			return "", false
		}
		return asNonEmptyString(message["content"])
	},
	func(raw map[string]interface{}) (string, bool) {
		return asNonEmptyString(raw["text"])
	},
}

// ExtractText normalizes a decoded provider payload to plain text.
func ExtractText(raw map[string]interface{}) string {
	if len(raw) == 0 {
		return ""
	}

	for _, probe := range textProbes {
		if text, ok := probe(raw); ok {
			return text
		}
	}

	serialized, err := json.Marshal(raw)
	if err != nil {
		return ""
	}
	return string(serialized)
}

func asNonEmptyString(v interface{}) (string, bool) {
	s, ok := v.(string)
	if !ok || s == "" {
		return "", false
	}
	return s, true
}
