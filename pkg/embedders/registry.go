// Package embedders provides embedding providers used for semantic
// tool ranking.
package embedders

import (
	"context"
	"fmt"

	"github.com/loom-ai/loom/pkg/config"
	"github.com/loom-ai/loom/pkg/registry"
)

// Provider produces embedding vectors for text.
type Provider interface {
	Embed(ctx context.Context, text string) ([]float64, error)
	ModelName() string
	Close() error
}

// EmbedderRegistry holds named embedding providers.
type EmbedderRegistry struct {
	*registry.BaseRegistry[Provider]
}

func NewEmbedderRegistry() *EmbedderRegistry {
	return &EmbedderRegistry{
		BaseRegistry: registry.NewBaseRegistry[Provider](),
	}
}

func (r *EmbedderRegistry) RegisterEmbedder(name string, provider Provider) error {
	if provider == nil {
		return fmt.Errorf("embedder provider cannot be nil")
	}
	return r.Register(name, provider)
}

func (r *EmbedderRegistry) GetEmbedder(name string) (Provider, error) {
	provider, exists := r.Get(name)
	if !exists {
		return nil, fmt.Errorf("embedder provider '%s' not found", name)
	}
	return provider, nil
}

// NewProviderFromConfig creates an embedding provider, or nil when the
// config leaves embeddings disabled.
func NewProviderFromConfig(cfg *config.EmbedderConfig) (Provider, error) {
	if cfg == nil || cfg.Provider == "" {
		return nil, nil
	}

	switch cfg.Provider {
	case "openai":
		return NewOpenAIEmbedder(cfg), nil
	case "ollama":
		return NewOllamaEmbedder(cfg), nil
	default:
		return nil, fmt.Errorf("unsupported embedder provider: %s (supported: openai, ollama)", cfg.Provider)
	}
}
