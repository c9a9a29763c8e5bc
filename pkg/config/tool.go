package config

import "fmt"

// ToolType identifies a built-in tool implementation.
type ToolType string

const (
	ToolTypeSQL  ToolType = "sql"
	ToolTypeREST ToolType = "rest"
	ToolTypeSOAP ToolType = "soap"
)

// ToolConfig declares one data-source tool and its ranking metadata.
type ToolConfig struct {
	// Name uniquely identifies the tool.
	Name string `yaml:"name"`

	// Type selects the implementation (sql, rest, soap).
	Type ToolType `yaml:"type"`

	// Description is used for semantic ranking against user queries.
	Description string `yaml:"description,omitempty"`

	// Keywords boost ranking on token overlap.
	Keywords []string `yaml:"keywords,omitempty"`

	// Capabilities are coarse ability tags (e.g. "lookup", "search").
	// Inferred from the description when empty.
	Capabilities []string `yaml:"capabilities,omitempty"`

	// Priority breaks ranking ties (higher wins).
	Priority int `yaml:"priority,omitempty"`

	// Parameters declare the tool's argument schema in order.
	Parameters []ParameterConfig `yaml:"parameters,omitempty"`

	SQL  *SQLToolConfig  `yaml:"sql,omitempty"`
	REST *RESTToolConfig `yaml:"rest,omitempty"`
	SOAP *SOAPToolConfig `yaml:"soap,omitempty"`
}

// ParameterConfig declares one tool argument.
type ParameterConfig struct {
	Name string `yaml:"name"`

	// Kind: path, query, body, header, or positional.
	Kind string `yaml:"kind,omitempty"`

	// Type: string, int, decimal, bool, date, or object.
	Type string `yaml:"type,omitempty"`

	Required    bool        `yaml:"required,omitempty"`
	Default     interface{} `yaml:"default,omitempty"`
	Description string      `yaml:"description,omitempty"`
}

// SQLToolConfig configures a database-backed tool.
type SQLToolConfig struct {
	// Driver: postgres, sqlite3, or mysql.
	Driver string `yaml:"driver"`

	// DSN is the driver-specific connection string. Supports ${VAR}.
	DSN string `yaml:"dsn"`

	// Query is the parameterized statement the tool executes. Named
	// parameters use :name placeholders.
	Query string `yaml:"query"`

	// MaxRows caps the result set.
	MaxRows int `yaml:"max_rows,omitempty"`
}

func (c *SQLToolConfig) SetDefaults() {
	if c.MaxRows == 0 {
		c.MaxRows = 1000
	}
}

// RESTToolConfig configures an HTTP JSON API tool.
type RESTToolConfig struct {
	// BaseURL is the endpoint root.
	BaseURL string `yaml:"base_url"`

	// Path may contain {param} segments filled from arguments.
	Path string `yaml:"path,omitempty"`

	// Method defaults to GET.
	Method string `yaml:"method,omitempty"`

	// Headers are sent on every request. Supports ${VAR} in values.
	Headers map[string]string `yaml:"headers,omitempty"`

	// Timeout in seconds per request.
	Timeout int `yaml:"timeout,omitempty"`
}

func (c *RESTToolConfig) SetDefaults() {
	if c.Method == "" {
		c.Method = "GET"
	}
	if c.Timeout == 0 {
		c.Timeout = 30
	}
}

// SOAPToolConfig configures a SOAP 1.1 endpoint tool.
type SOAPToolConfig struct {
	// Endpoint receives the POSTed envelope.
	Endpoint string `yaml:"endpoint"`

	// Action is the SOAPAction header value.
	Action string `yaml:"action"`

	// Operation is the body element name.
	Operation string `yaml:"operation"`

	// Namespace of the operation element.
	Namespace string `yaml:"namespace,omitempty"`

	// Timeout in seconds per request.
	Timeout int `yaml:"timeout,omitempty"`
}

func (c *SOAPToolConfig) SetDefaults() {
	if c.Timeout == 0 {
		c.Timeout = 30
	}
}

func (c *ToolConfig) SetDefaults() {
	for i := range c.Parameters {
		if c.Parameters[i].Kind == "" {
			c.Parameters[i].Kind = "query"
		}
		if c.Parameters[i].Type == "" {
			c.Parameters[i].Type = "string"
		}
	}
	if c.SQL != nil {
		c.SQL.SetDefaults()
	}
	if c.REST != nil {
		c.REST.SetDefaults()
	}
	if c.SOAP != nil {
		c.SOAP.SetDefaults()
	}
}

func (c *ToolConfig) Validate() error {
	if c.Name == "" {
		return fmt.Errorf("tool name is required")
	}

	for _, p := range c.Parameters {
		if p.Name == "" {
			return fmt.Errorf("parameter name is required")
		}
		switch p.Kind {
		case "path", "query", "body", "header", "positional":
		default:
			return fmt.Errorf("parameter %q: invalid kind %q", p.Name, p.Kind)
		}
		switch p.Type {
		case "string", "int", "decimal", "bool", "date", "object":
		default:
			return fmt.Errorf("parameter %q: invalid type %q", p.Name, p.Type)
		}
	}

	switch c.Type {
	case ToolTypeSQL:
		if c.SQL == nil {
			return fmt.Errorf("sql section is required for sql tools")
		}
		switch c.SQL.Driver {
		case "postgres", "sqlite3", "mysql":
		default:
			return fmt.Errorf("invalid sql driver: %s (supported: postgres, sqlite3, mysql)", c.SQL.Driver)
		}
		if c.SQL.DSN == "" {
			return fmt.Errorf("sql dsn is required")
		}
		if c.SQL.Query == "" {
			return fmt.Errorf("sql query is required")
		}
	case ToolTypeREST:
		if c.REST == nil {
			return fmt.Errorf("rest section is required for rest tools")
		}
		if c.REST.BaseURL == "" {
			return fmt.Errorf("rest base_url is required")
		}
	case ToolTypeSOAP:
		if c.SOAP == nil {
			return fmt.Errorf("soap section is required for soap tools")
		}
		if c.SOAP.Endpoint == "" {
			return fmt.Errorf("soap endpoint is required")
		}
		if c.SOAP.Operation == "" {
			return fmt.Errorf("soap operation is required")
		}
	default:
		return fmt.Errorf("invalid tool type: %s (supported: sql, rest, soap)", c.Type)
	}

	return nil
}
