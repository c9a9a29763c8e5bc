package config

import "fmt"

// WorkflowConfig bounds a single orchestration run.
type WorkflowConfig struct {
	// NodeTimeoutSeconds bounds one node execution.
	NodeTimeoutSeconds int `yaml:"node_timeout_seconds,omitempty"`

	// OverallDeadlineSeconds bounds the whole run.
	OverallDeadlineSeconds int `yaml:"overall_deadline_seconds,omitempty"`

	// MaxIterations caps supervisor visits per run.
	MaxIterations int `yaml:"max_iterations,omitempty"`
}

func (c *WorkflowConfig) SetDefaults() {
	if c.NodeTimeoutSeconds == 0 {
		c.NodeTimeoutSeconds = 60
	}
	if c.OverallDeadlineSeconds == 0 {
		c.OverallDeadlineSeconds = 300
	}
	if c.MaxIterations == 0 {
		c.MaxIterations = 10
	}
}

func (c *WorkflowConfig) Validate() error {
	if c.NodeTimeoutSeconds < 1 {
		return fmt.Errorf("node_timeout_seconds must be positive, got %d", c.NodeTimeoutSeconds)
	}
	if c.OverallDeadlineSeconds < c.NodeTimeoutSeconds {
		return fmt.Errorf("overall_deadline_seconds (%d) must be >= node_timeout_seconds (%d)",
			c.OverallDeadlineSeconds, c.NodeTimeoutSeconds)
	}
	if c.MaxIterations < 1 {
		return fmt.Errorf("max_iterations must be positive, got %d", c.MaxIterations)
	}
	return nil
}

// ConsolidatorConfig tunes result merging and formatting.
type ConsolidatorConfig struct {
	// LLMRowCap is the merged-row count above which the deterministic
	// formatter is used instead of the LLM.
	LLMRowCap int `yaml:"llm_row_cap,omitempty"`
}

func (c *ConsolidatorConfig) SetDefaults() {
	if c.LLMRowCap == 0 {
		c.LLMRowCap = 500
	}
}

func (c *ConsolidatorConfig) Validate() error {
	if c.LLMRowCap < 1 {
		return fmt.Errorf("llm_row_cap must be positive, got %d", c.LLMRowCap)
	}
	return nil
}

// RouterConfig controls routing edge cases.
type RouterConfig struct {
	// UnknownNodePolicy is "end" or "error".
	UnknownNodePolicy string `yaml:"unknown_node_policy,omitempty"`
}

func (c *RouterConfig) SetDefaults() {
	if c.UnknownNodePolicy == "" {
		c.UnknownNodePolicy = "end"
	}
}

func (c *RouterConfig) Validate() error {
	switch c.UnknownNodePolicy {
	case "end", "error":
		return nil
	default:
		return fmt.Errorf("unknown_node_policy must be 'end' or 'error', got %q", c.UnknownNodePolicy)
	}
}
