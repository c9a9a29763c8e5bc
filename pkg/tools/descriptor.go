// Package tools defines the tool abstraction consumed by agents: typed
// descriptors, a semantically ranked registry, and built-in SQL, REST,
// and SOAP tool implementations.
package tools

import (
	"context"
	"fmt"
	"strings"
)

// DataSourceClass names a backend family.
type DataSourceClass string

const (
	ClassRelationalDB DataSourceClass = "RELATIONAL_DB"
	ClassRESTAPI      DataSourceClass = "REST_API"
	ClassSOAPAPI      DataSourceClass = "SOAP_API"
)

// ParameterKind says where an argument travels.
type ParameterKind string

const (
	ParamPath       ParameterKind = "path"
	ParamQuery      ParameterKind = "query"
	ParamBody       ParameterKind = "body"
	ParamHeader     ParameterKind = "header"
	ParamPositional ParameterKind = "positional"
)

// SemanticType is the coarse value type of a parameter.
type SemanticType string

const (
	TypeString  SemanticType = "string"
	TypeInt     SemanticType = "int"
	TypeDecimal SemanticType = "decimal"
	TypeBool    SemanticType = "bool"
	TypeDate    SemanticType = "date"
	TypeObject  SemanticType = "object"
)

// Parameter describes one argument a tool accepts.
type Parameter struct {
	Name         string        `json:"name"`
	Kind         ParameterKind `json:"kind"`
	SemanticType SemanticType  `json:"semantic_type"`
	Required     bool          `json:"required"`
	Default      interface{}   `json:"default,omitempty"`
	Description  string        `json:"description,omitempty"`
}

// Descriptor is an immutable registry entry for one tool.
type Descriptor struct {
	Name            string
	Description     string
	DataSourceClass DataSourceClass
	Parameters      []Parameter
	Keywords        []string
	Capabilities    []string
	Priority        int
}

// Row is one record of a tool result.
type Row map[string]interface{}

// Result is the normalized return of a tool invocation. Raw keeps the
// untyped payload for the consolidator when the structure is unknown.
type Result struct {
	Rows      []Row
	Raw       interface{}
	SourceTag string
}

// ErrorKind classifies tool failures.
type ErrorKind string

const (
	ErrUnauthorized   ErrorKind = "UNAUTHORIZED"
	ErrNotFound       ErrorKind = "NOT_FOUND"
	ErrBadRequest     ErrorKind = "BAD_REQUEST"
	ErrUpstream       ErrorKind = "UPSTREAM_ERROR"
	ErrTimeout        ErrorKind = "TIMEOUT"
	ErrSchemaMismatch ErrorKind = "SCHEMA_MISMATCH"
)

// ToolError is the failure type of Tool.Invoke.
type ToolError struct {
	Kind    ErrorKind
	Tool    string
	Message string
	Err     error
}

func (e *ToolError) Error() string {
	return fmt.Sprintf("tool %s [%s]: %s", e.Tool, e.Kind, e.Message)
}

func (e *ToolError) Unwrap() error {
	return e.Err
}

// Tool is an opaque capability with a typed descriptor.
type Tool interface {
	Descriptor() *Descriptor
	Invoke(ctx context.Context, arguments map[string]interface{}) (*Result, error)
}

// SchemaForLLM converts the parameter list to a JSON-schema object map
// in the shape tool-calling providers expect.
func (d *Descriptor) SchemaForLLM() map[string]interface{} {
	properties := make(map[string]interface{}, len(d.Parameters))
	required := []string{}

	for _, p := range d.Parameters {
		jsonType := "string"
		switch p.SemanticType {
		case TypeInt:
			jsonType = "integer"
		case TypeDecimal:
			jsonType = "number"
		case TypeBool:
			jsonType = "boolean"
		case TypeObject:
			jsonType = "object"
		}
		properties[p.Name] = map[string]interface{}{
			"type":        jsonType,
			"description": p.Description,
		}
		if p.Required {
			required = append(required, p.Name)
		}
	}

	return map[string]interface{}{
		"type":       "object",
		"properties": properties,
		"required":   required,
	}
}

// rankingText is the text a descriptor is embedded and matched on.
func (d *Descriptor) rankingText() string {
	parts := []string{d.Name, d.Description}
	parts = append(parts, d.Keywords...)
	return strings.Join(parts, " ")
}

// InferCapabilities derives coarse ability verbs from a description.
// Used when the catalogue omits explicit capabilities.
func InferCapabilities(description string) []string {
	text := strings.ToLower(description)

	checks := []struct {
		capability string
		markers    []string
	}{
		{"read", []string{"list", "show", "get", "fetch", "read", "retrieve", "return"}},
		{"write", []string{"create", "update", "delete", "insert", "write", "modify"}},
		{"aggregate", []string{"count", "sum", "total", "average", "aggregate", "group"}},
		{"lookup_by_id", []string{"by id", "by identifier", "lookup", "by number", "by key"}},
		{"search", []string{"search", "find", "filter", "query", "match"}},
	}

	var capabilities []string
	for _, check := range checks {
		for _, marker := range check.markers {
			if strings.Contains(text, marker) {
				capabilities = append(capabilities, check.capability)
				break
			}
		}
	}

	if len(capabilities) == 0 {
		capabilities = []string{"read"}
	}
	return capabilities
}
