// Package workflow implements the graph-structured orchestration core:
// per-run state, execution planning, supervisor and consolidator nodes,
// routing, and the driver that runs one session message to completion.
package workflow

import (
	"context"
	"fmt"

	"github.com/loom-ai/loom/pkg/tools"
)

// AgentType names a data-source agent family.
type AgentType string

const (
	SQLAgent  AgentType = "SQL_AGENT"
	RESTAgent AgentType = "REST_AGENT"
	SOAPAgent AgentType = "SOAP_AGENT"
)

// NextHint extends AgentType with the supervisor's terminal markers.
const (
	NextConsolidate AgentType = "CONSOLIDATE"
	NextEnd         AgentType = "END"
)

// NodeName identifies a node of the compiled graph.
type NodeName string

const (
	NodeSupervisor   NodeName = "SUPERVISOR"
	NodeSQLAgent     NodeName = "SQL_AGENT"
	NodeRESTAgent    NodeName = "REST_AGENT"
	NodeSOAPAgent    NodeName = "SOAP_AGENT"
	NodeConsolidator NodeName = "CONSOLIDATOR"
	NodeEnd          NodeName = "END"
)

// ClassFor maps an agent type to the data-source class it serves.
func ClassFor(agentType AgentType) (tools.DataSourceClass, error) {
	switch agentType {
	case SQLAgent:
		return tools.ClassRelationalDB, nil
	case RESTAgent:
		return tools.ClassRESTAPI, nil
	case SOAPAgent:
		return tools.ClassSOAPAPI, nil
	default:
		return "", fmt.Errorf("no data source class for agent type %s", agentType)
	}
}

// AgentTypeFor is the inverse of ClassFor.
func AgentTypeFor(class tools.DataSourceClass) (AgentType, error) {
	switch class {
	case tools.ClassRelationalDB:
		return SQLAgent, nil
	case tools.ClassRESTAPI:
		return RESTAgent, nil
	case tools.ClassSOAPAPI:
		return SOAPAgent, nil
	default:
		return "", fmt.Errorf("no agent type for data source class %s", class)
	}
}

// StepStatus tracks one step's lifecycle.
type StepStatus string

const (
	StepPending  StepStatus = "PENDING"
	StepInFlight StepStatus = "IN_FLIGHT"
	StepDone     StepStatus = "DONE"
	StepFailed   StepStatus = "FAILED"
	StepSkipped  StepStatus = "SKIPPED"
)

// Complexity is the planner's effort estimate.
type Complexity string

const (
	ComplexityLow  Complexity = "low"
	ComplexityMed  Complexity = "med"
	ComplexityHigh Complexity = "high"
)

// Step is one planned action.
type Step struct {
	StepNumber      int                    `json:"step_number"`
	Description     string                 `json:"description"`
	AgentType       AgentType              `json:"agent_type"`
	DataSourceClass tools.DataSourceClass  `json:"data_source_class"`
	DependsOn       []int                  `json:"depends_on,omitempty"`
	ParameterHints  map[string]interface{} `json:"parameter_hints,omitempty"`
	Status          StepStatus             `json:"status"`
}

// Plan is immutable once created except for step statuses.
type Plan struct {
	PlanID                string     `json:"plan_id"`
	Query                 string     `json:"query"`
	Steps                 []Step     `json:"steps"`
	RequiresConsolidation bool       `json:"requires_consolidation"`
	EstimatedComplexity   Complexity `json:"estimated_complexity"`
	Notes                 string     `json:"notes,omitempty"`
}

// ErrorKind is the workflow error taxonomy.
type ErrorKind string

const (
	ErrValidation       ErrorKind = "VALIDATION_ERROR"
	ErrPlan             ErrorKind = "PLAN_ERROR"
	ErrDependencyUnmet  ErrorKind = "DEPENDENCY_UNMET"
	ErrToolNotFound     ErrorKind = "TOOL_NOT_FOUND"
	ErrUpstream         ErrorKind = "UPSTREAM_ERROR"
	ErrTimeout          ErrorKind = "TIMEOUT"
	ErrDeadlineExceeded ErrorKind = "DEADLINE_EXCEEDED"
	ErrCancelled        ErrorKind = "CANCELLED"
	ErrInternal         ErrorKind = "INTERNAL"
	ErrEmptyPlan        ErrorKind = "EMPTY_PLAN"
	ErrIncomplete       ErrorKind = "INCOMPLETE"
)

// MapToolError maps a tool failure into the workflow taxonomy.
func MapToolError(kind tools.ErrorKind) ErrorKind {
	switch kind {
	case tools.ErrTimeout:
		return ErrTimeout
	case tools.ErrBadRequest:
		return ErrValidation
	default:
		return ErrUpstream
	}
}

// AgentResult is the outcome of one step execution.
type AgentResult struct {
	StepNumber int         `json:"step_number"`
	AgentType  AgentType   `json:"agent_type"`
	ToolName   string      `json:"tool_name,omitempty"`
	OK         bool        `json:"ok"`
	Rows       []tools.Row `json:"rows,omitempty"`
	Error      ErrorKind   `json:"error,omitempty"`
	Message    string      `json:"message,omitempty"`
	LatencyMS  int64       `json:"latency_ms"`
}

// StateError is one recorded failure.
type StateError struct {
	StepNumber int       `json:"step_number"`
	Kind       ErrorKind `json:"kind"`
	Message    string    `json:"message"`
}

// AgentExecutor runs one step against a snapshot of the state. It is
// implemented by the data-source agents; failures come back inside the
// AgentResult, never as a panic.
type AgentExecutor interface {
	Execute(ctx context.Context, step *Step, snapshot *Snapshot) AgentResult
	Type() AgentType
}
