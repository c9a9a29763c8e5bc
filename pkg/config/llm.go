package config

import (
	"fmt"
)

// LLMProvider identifies the LLM provider type.
type LLMProvider string

const (
	LLMProviderAnthropic LLMProvider = "anthropic"
	LLMProviderOpenAI    LLMProvider = "openai"
	LLMProviderOllama    LLMProvider = "ollama"
)

// LLMConfig configures an LLM provider.
type LLMConfig struct {
	// Provider type (anthropic, openai, ollama).
	Provider LLMProvider `yaml:"provider,omitempty"`

	// Model name (e.g., "claude-sonnet-4-20250514", "gpt-4o").
	Model string `yaml:"model,omitempty"`

	// APIKey for authentication. Supports ${VAR} expansion.
	APIKey string `yaml:"api_key,omitempty"`

	// BaseURL overrides the default API endpoint.
	BaseURL string `yaml:"base_url,omitempty"`

	// Temperature for generation (0.0 - 1.0).
	Temperature *float64 `yaml:"temperature,omitempty"`

	// MaxTokens limits response length.
	MaxTokens int `yaml:"max_tokens,omitempty"`

	// Timeout in seconds for a single completion request.
	Timeout int `yaml:"timeout,omitempty"`
}

// SetDefaults applies default values.
func (c *LLMConfig) SetDefaults() {
	if c.Provider == "" {
		c.Provider = LLMProviderOpenAI
	}

	if c.Model == "" {
		switch c.Provider {
		case LLMProviderAnthropic:
			c.Model = "claude-sonnet-4-20250514"
		case LLMProviderOpenAI:
			c.Model = "gpt-4o"
		case LLMProviderOllama:
			c.Model = "llama3.2"
		}
	}

	if c.APIKey == "" {
		c.APIKey = GetProviderAPIKey(string(c.Provider))
	}

	if c.Temperature == nil {
		temp := 0.7
		c.Temperature = &temp
	}

	if c.MaxTokens == 0 {
		c.MaxTokens = 4096
	}

	if c.Timeout == 0 {
		c.Timeout = 60
	}
}

// Validate checks the LLM configuration.
func (c *LLMConfig) Validate() error {
	validProviders := map[LLMProvider]bool{
		LLMProviderAnthropic: true,
		LLMProviderOpenAI:    true,
		LLMProviderOllama:    true,
	}
	if !validProviders[c.Provider] {
		return fmt.Errorf("invalid llm provider: %s (supported: anthropic, openai, ollama)", c.Provider)
	}

	if c.Temperature != nil && (*c.Temperature < 0 || *c.Temperature > 2) {
		return fmt.Errorf("temperature must be between 0 and 2, got %f", *c.Temperature)
	}

	if c.MaxTokens < 1 {
		return fmt.Errorf("max_tokens must be positive, got %d", c.MaxTokens)
	}

	return nil
}

// EmbedderConfig configures an embedding provider used for tool ranking.
type EmbedderConfig struct {
	// Provider type (openai, ollama). Empty disables embeddings; the
	// registry falls back to token-overlap scoring.
	Provider string `yaml:"provider,omitempty"`

	// Model name (e.g., "text-embedding-3-small", "nomic-embed-text").
	Model string `yaml:"model,omitempty"`

	// APIKey for authentication. Supports ${VAR} expansion.
	APIKey string `yaml:"api_key,omitempty"`

	// BaseURL overrides the default API endpoint.
	BaseURL string `yaml:"base_url,omitempty"`

	// Dimension of produced vectors (0 = provider default).
	Dimension int `yaml:"dimension,omitempty"`

	// Timeout in seconds per embedding request.
	Timeout int `yaml:"timeout,omitempty"`
}

func (c *EmbedderConfig) SetDefaults() {
	if c.Provider == "" {
		return
	}

	if c.Model == "" {
		switch c.Provider {
		case "openai":
			c.Model = "text-embedding-3-small"
		case "ollama":
			c.Model = "nomic-embed-text"
		}
	}

	if c.APIKey == "" {
		c.APIKey = GetProviderAPIKey(c.Provider)
	}

	if c.Timeout == 0 {
		c.Timeout = 30
	}
}

func (c *EmbedderConfig) Validate() error {
	if c.Provider == "" {
		return nil
	}

	switch c.Provider {
	case "openai", "ollama":
	default:
		return fmt.Errorf("invalid embedder provider: %s (supported: openai, ollama)", c.Provider)
	}

	return nil
}
