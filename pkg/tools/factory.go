package tools

import (
	"context"
	"fmt"

	"github.com/loom-ai/loom/pkg/config"
	"github.com/loom-ai/loom/pkg/embedders"
)

// NewToolFromConfig builds the configured tool implementation and its
// descriptor.
func NewToolFromConfig(cfg *config.ToolConfig) (Tool, error) {
	desc := descriptorFromConfig(cfg)

	switch cfg.Type {
	case config.ToolTypeSQL:
		return NewSQLTool(desc, cfg.SQL)
	case config.ToolTypeREST:
		return NewRESTTool(desc, cfg.REST), nil
	case config.ToolTypeSOAP:
		return NewSOAPTool(desc, cfg.SOAP), nil
	default:
		return nil, fmt.Errorf("unsupported tool type: %s", cfg.Type)
	}
}

// NewRegistryFromConfig builds a registry populated with every
// configured tool.
func NewRegistryFromConfig(ctx context.Context, toolConfigs []config.ToolConfig, embedder embedders.Provider) (*Registry, error) {
	reg := NewRegistry(embedder)

	for i := range toolConfigs {
		tool, err := NewToolFromConfig(&toolConfigs[i])
		if err != nil {
			return nil, fmt.Errorf("failed to build tool %q: %w", toolConfigs[i].Name, err)
		}
		if err := reg.RegisterTool(ctx, tool); err != nil {
			return nil, err
		}
	}

	return reg, nil
}

func descriptorFromConfig(cfg *config.ToolConfig) *Descriptor {
	desc := &Descriptor{
		Name:         cfg.Name,
		Description:  cfg.Description,
		Keywords:     cfg.Keywords,
		Capabilities: cfg.Capabilities,
		Priority:     cfg.Priority,
	}

	switch cfg.Type {
	case config.ToolTypeSQL:
		desc.DataSourceClass = ClassRelationalDB
	case config.ToolTypeREST:
		desc.DataSourceClass = ClassRESTAPI
	case config.ToolTypeSOAP:
		desc.DataSourceClass = ClassSOAPAPI
	}

	if len(desc.Capabilities) == 0 {
		desc.Capabilities = InferCapabilities(cfg.Description)
	}

	for _, p := range cfg.Parameters {
		desc.Parameters = append(desc.Parameters, Parameter{
			Name:         p.Name,
			Kind:         ParameterKind(p.Kind),
			SemanticType: SemanticType(p.Type),
			Required:     p.Required,
			Default:      p.Default,
			Description:  p.Description,
		})
	}

	return desc
}
