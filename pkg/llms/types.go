package llms

import (
	"errors"
	"fmt"
)

// Role identifies the author of a message.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
)

// Message is one turn of a conversation sent to a provider.
type Message struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`

	// ToolCallID ties a tool-role message to the call it answers.
	ToolCallID string `json:"tool_call_id,omitempty"`
}

// ToolDefinition describes a callable tool in provider-neutral form.
type ToolDefinition struct {
	Name        string                 `json:"name"`
	Description string                 `json:"description"`
	Parameters  map[string]interface{} `json:"parameters"`
}

// ToolCall is a provider's request to invoke a tool.
type ToolCall struct {
	ID        string                 `json:"id"`
	Name      string                 `json:"name"`
	Arguments map[string]interface{} `json:"arguments"`
}

// Request is a provider-neutral completion request.
type Request struct {
	Messages    []Message
	Tools       []ToolDefinition
	Temperature *float64
	MaxTokens   int
}

// Response is a provider's answer before normalization. Raw holds the
// decoded provider payload; the gateway derives Completion.Text from it.
type Response struct {
	Raw       map[string]interface{}
	ToolCalls []ToolCall
	Tokens    int
}

// Completion is the normalized result handed to callers.
type Completion struct {
	Text      string
	ToolCalls []ToolCall
	Tokens    int
}

// ErrorKind classifies gateway failures.
type ErrorKind string

const (
	ErrKindProvider  ErrorKind = "PROVIDER_ERROR"
	ErrKindTimeout   ErrorKind = "TIMEOUT"
	ErrKindCancelled ErrorKind = "CANCELLED"
	ErrKindBadConfig ErrorKind = "BAD_CONFIG"
)

// Error is the gateway error type.
type Error struct {
	Kind     ErrorKind
	Provider string
	Message  string
	Err      error
}

func (e *Error) Error() string {
	if e.Provider != "" {
		return fmt.Sprintf("llm %s [%s]: %s", e.Provider, e.Kind, e.Message)
	}
	return fmt.Sprintf("llm [%s]: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// KindOf extracts the ErrorKind from err, or ErrKindProvider if err is
// not a gateway error.
func KindOf(err error) ErrorKind {
	var le *Error
	if errors.As(err, &le) {
		return le.Kind
	}
	return ErrKindProvider
}
