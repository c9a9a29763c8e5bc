// Package config defines the configuration schema for the loom
// orchestration service and loads it from YAML with environment
// variable expansion.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration.
type Config struct {
	// Logging configuration.
	Logging LoggingConfig `yaml:"logging,omitempty"`

	// Server hosts the WebSocket chat stream and health endpoints.
	Server ServerConfig `yaml:"server,omitempty"`

	// LLMs maps provider names to configurations.
	LLMs map[string]LLMConfig `yaml:"llms,omitempty"`

	// DefaultLLM names the provider used when none is requested.
	DefaultLLM string `yaml:"default_llm,omitempty"`

	// Embedder powers semantic tool ranking.
	Embedder EmbedderConfig `yaml:"embedder,omitempty"`

	// Workflow bounds orchestration runs.
	Workflow WorkflowConfig `yaml:"workflow,omitempty"`

	// Consolidator tunes result merging and formatting.
	Consolidator ConsolidatorConfig `yaml:"consolidator,omitempty"`

	// Router controls routing edge cases.
	Router RouterConfig `yaml:"router,omitempty"`

	// Transport tunes the WebSocket chat stream.
	Transport TransportConfig `yaml:"transport,omitempty"`

	// Tools declares the data-source tools available to agents.
	Tools []ToolConfig `yaml:"tools,omitempty"`
}

// LoggingConfig configures logging behavior.
type LoggingConfig struct {
	// Level: debug, info, warn, error.
	Level string `yaml:"level,omitempty"`

	// Format: text or json.
	Format string `yaml:"format,omitempty"`

	// Output: stdout, stderr, or a file path.
	Output string `yaml:"output,omitempty"`
}

func (c *LoggingConfig) SetDefaults() {
	if c.Level == "" {
		c.Level = "info"
	}
	if c.Format == "" {
		c.Format = "text"
	}
	if c.Output == "" {
		c.Output = "stdout"
	}
}

func (c *LoggingConfig) Validate() error {
	switch c.Level {
	case "debug", "info", "warn", "warning", "error":
	default:
		return fmt.Errorf("invalid log level: %s", c.Level)
	}
	switch c.Format {
	case "text", "json":
	default:
		return fmt.Errorf("invalid log format: %s", c.Format)
	}
	return nil
}

// SetDefaults applies defaults to all sections.
func (c *Config) SetDefaults() {
	c.Logging.SetDefaults()
	c.Server.SetDefaults()

	if len(c.LLMs) == 0 {
		c.LLMs = map[string]LLMConfig{"main": {}}
	}
	for name, llm := range c.LLMs {
		llm.SetDefaults()
		c.LLMs[name] = llm
	}
	if c.DefaultLLM == "" {
		if _, ok := c.LLMs["main"]; ok {
			c.DefaultLLM = "main"
		} else {
			for name := range c.LLMs {
				c.DefaultLLM = name
				break
			}
		}
	}

	c.Embedder.SetDefaults()
	c.Workflow.SetDefaults()
	c.Consolidator.SetDefaults()
	c.Router.SetDefaults()
	c.Transport.SetDefaults()

	for i := range c.Tools {
		c.Tools[i].SetDefaults()
	}
}

// Validate checks all sections.
func (c *Config) Validate() error {
	if err := c.Logging.Validate(); err != nil {
		return fmt.Errorf("logging: %w", err)
	}
	if err := c.Server.Validate(); err != nil {
		return fmt.Errorf("server: %w", err)
	}

	for name, llm := range c.LLMs {
		if err := llm.Validate(); err != nil {
			return fmt.Errorf("llm %q: %w", name, err)
		}
	}
	if _, ok := c.LLMs[c.DefaultLLM]; !ok {
		return fmt.Errorf("default_llm %q is not a configured llm", c.DefaultLLM)
	}

	if err := c.Embedder.Validate(); err != nil {
		return fmt.Errorf("embedder: %w", err)
	}
	if err := c.Workflow.Validate(); err != nil {
		return fmt.Errorf("workflow: %w", err)
	}
	if err := c.Consolidator.Validate(); err != nil {
		return fmt.Errorf("consolidator: %w", err)
	}
	if err := c.Router.Validate(); err != nil {
		return fmt.Errorf("router: %w", err)
	}
	if err := c.Transport.Validate(); err != nil {
		return fmt.Errorf("transport: %w", err)
	}

	seen := make(map[string]bool, len(c.Tools))
	for i := range c.Tools {
		if err := c.Tools[i].Validate(); err != nil {
			return fmt.Errorf("tool %q: %w", c.Tools[i].Name, err)
		}
		if seen[c.Tools[i].Name] {
			return fmt.Errorf("duplicate tool name: %s", c.Tools[i].Name)
		}
		seen[c.Tools[i].Name] = true
	}

	return nil
}

// Load reads a YAML config file, expands environment variables, applies
// defaults, and validates the result.
func Load(path string) (*Config, error) {
	if err := LoadEnvFiles(); err != nil {
		return nil, err
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	return Parse(data)
}

// Parse decodes YAML config bytes with environment expansion.
func Parse(data []byte) (*Config, error) {
	var raw interface{}
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	expanded := expandEnvVarsInData(raw)

	out, err := yaml.Marshal(expanded)
	if err != nil {
		return nil, fmt.Errorf("failed to re-encode config: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(out, &cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}

	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &cfg, nil
}

// Default returns a ready-to-use configuration with all defaults applied.
func Default() *Config {
	cfg := &Config{}
	cfg.SetDefaults()
	return cfg
}

func expandEnvVarsInData(data interface{}) interface{} {
	switch v := data.(type) {
	case string:
		return expandEnvVars(v)
	case map[string]interface{}:
		out := make(map[string]interface{}, len(v))
		for k, val := range v {
			out[k] = expandEnvVarsInData(val)
		}
		return out
	case []interface{}:
		out := make([]interface{}, len(v))
		for i, val := range v {
			out[i] = expandEnvVarsInData(val)
		}
		return out
	default:
		return v
	}
}
