// Package llms provides a gateway over heterogeneous LLM providers
// with a single normalized completion surface.
package llms

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/loom-ai/loom/pkg/config"
	"github.com/loom-ai/loom/pkg/logger"
	"github.com/loom-ai/loom/pkg/registry"
)

// Provider is a single LLM backend. Complete returns the raw decoded
// payload; text normalization happens in the Gateway.
type Provider interface {
	Complete(ctx context.Context, req *Request) (*Response, error)
	ModelName() string
	Close() error
}

// Gateway routes completion requests to named providers and normalizes
// their responses.
type Gateway struct {
	*registry.BaseRegistry[Provider]
	defaultName string
	logger      *slog.Logger
}

func NewGateway() *Gateway {
	return &Gateway{
		BaseRegistry: registry.NewBaseRegistry[Provider](),
		logger:       logger.GetLogger(),
	}
}

// NewGatewayFromConfig builds providers for every configured LLM.
func NewGatewayFromConfig(llmConfigs map[string]config.LLMConfig, defaultName string) (*Gateway, error) {
	g := NewGateway()

	for name, cfg := range llmConfigs {
		provider, err := NewProviderFromConfig(&cfg)
		if err != nil {
			return nil, fmt.Errorf("failed to create llm provider %q: %w", name, err)
		}
		if err := g.RegisterProvider(name, provider); err != nil {
			return nil, err
		}
	}

	if err := g.SetDefault(defaultName); err != nil {
		return nil, err
	}

	return g, nil
}

// NewProviderFromConfig creates a provider for the configured type.
func NewProviderFromConfig(cfg *config.LLMConfig) (Provider, error) {
	if cfg == nil {
		return nil, &Error{Kind: ErrKindBadConfig, Message: "llm config cannot be nil"}
	}

	switch cfg.Provider {
	case config.LLMProviderOpenAI:
		return NewOpenAIProvider(cfg), nil
	case config.LLMProviderAnthropic:
		return NewAnthropicProvider(cfg), nil
	case config.LLMProviderOllama:
		return NewOllamaProvider(cfg), nil
	default:
		return nil, &Error{
			Kind:    ErrKindBadConfig,
			Message: fmt.Sprintf("unsupported llm provider: %s (supported: openai, anthropic, ollama)", cfg.Provider),
		}
	}
}

func (g *Gateway) RegisterProvider(name string, provider Provider) error {
	if provider == nil {
		return &Error{Kind: ErrKindBadConfig, Message: "provider cannot be nil"}
	}
	if err := g.Register(name, provider); err != nil {
		return &Error{Kind: ErrKindBadConfig, Message: err.Error(), Err: err}
	}
	if g.defaultName == "" {
		g.defaultName = name
	}
	return nil
}

// SetDefault selects the provider used when Complete is called with an
// empty provider name.
func (g *Gateway) SetDefault(name string) error {
	if _, exists := g.Get(name); !exists {
		return &Error{Kind: ErrKindBadConfig, Message: fmt.Sprintf("default provider %q not registered", name)}
	}
	g.defaultName = name
	return nil
}

// Complete sends req to the named provider (or the default when name is
// empty) and normalizes the result. Cancellation and deadline errors
// are reported with their own kinds so callers can tell them apart from
// provider failures.
func (g *Gateway) Complete(ctx context.Context, name string, req *Request) (*Completion, error) {
	if name == "" {
		name = g.defaultName
	}

	provider, exists := g.Get(name)
	if !exists {
		return nil, &Error{Kind: ErrKindBadConfig, Message: fmt.Sprintf("llm provider %q not found", name)}
	}

	resp, err := provider.Complete(ctx, req)
	if err != nil {
		return nil, classify(name, ctx, err)
	}

	completion := &Completion{
		Text:      ExtractText(resp.Raw),
		ToolCalls: resp.ToolCalls,
		Tokens:    resp.Tokens,
	}

	g.logger.Debug("llm completion",
		"provider", name,
		"model", provider.ModelName(),
		"tokens", completion.Tokens,
		"tool_calls", len(completion.ToolCalls))

	return completion, nil
}

// Close closes all registered providers.
func (g *Gateway) Close() error {
	var errs []error
	for _, provider := range g.List() {
		if err := provider.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func classify(provider string, ctx context.Context, err error) error {
	var le *Error
	if errors.As(err, &le) {
		return err
	}

	kind := ErrKindProvider
	switch {
	case errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded):
		kind = ErrKindTimeout
	case errors.Is(err, context.Canceled) || errors.Is(ctx.Err(), context.Canceled):
		kind = ErrKindCancelled
	}

	return &Error{Kind: kind, Provider: provider, Message: err.Error(), Err: err}
}
