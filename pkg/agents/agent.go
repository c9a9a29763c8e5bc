// Package agents implements the data-source agents: one per backend
// family, each selecting a tool for the current step, binding
// arguments, invoking it, and normalizing the outcome.
package agents

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/loom-ai/loom/pkg/llms"
	"github.com/loom-ai/loom/pkg/logger"
	"github.com/loom-ai/loom/pkg/tools"
	"github.com/loom-ai/loom/pkg/workflow"
)

// topK bounds the candidate set offered to the LLM for tool selection.
const topK = 5

// sqlRetryLimit caps schema-mismatch retries for ad-hoc SQL results.
const sqlRetryLimit = 2

// Agent executes steps of one data-source class.
type Agent struct {
	agentType workflow.AgentType
	class     tools.DataSourceClass
	registry  *tools.Registry
	gateway   *llms.Gateway
	logger    *slog.Logger
}

// New builds an agent for the given type.
func New(agentType workflow.AgentType, registry *tools.Registry, gateway *llms.Gateway) (*Agent, error) {
	class, err := workflow.ClassFor(agentType)
	if err != nil {
		return nil, err
	}
	return &Agent{
		agentType: agentType,
		class:     class,
		registry:  registry,
		gateway:   gateway,
		logger:    logger.GetLogger(),
	}, nil
}

// NewAll builds the full agent set keyed by agent type.
func NewAll(registry *tools.Registry, gateway *llms.Gateway) (map[workflow.AgentType]workflow.AgentExecutor, error) {
	out := make(map[workflow.AgentType]workflow.AgentExecutor, 3)
	for _, agentType := range []workflow.AgentType{workflow.SQLAgent, workflow.RESTAgent, workflow.SOAPAgent} {
		agent, err := New(agentType, registry, gateway)
		if err != nil {
			return nil, err
		}
		out[agentType] = agent
	}
	return out, nil
}

func (a *Agent) Type() workflow.AgentType {
	return a.agentType
}

// Execute runs one step: rank candidates, select a tool, bind
// arguments, invoke, normalize. Failures come back inside the result;
// Execute never panics the workflow.
func (a *Agent) Execute(ctx context.Context, step *workflow.Step, snap *workflow.Snapshot) workflow.AgentResult {
	start := time.Now()

	result := workflow.AgentResult{
		StepNumber: step.StepNumber,
		AgentType:  a.agentType,
	}

	candidates := a.candidates(ctx, step, snap)
	if len(candidates) == 0 {
		result.Error = workflow.ErrToolNotFound
		result.Message = fmt.Sprintf("no %s tools available for step %d", a.class, step.StepNumber)
		result.LatencyMS = time.Since(start).Milliseconds()
		return result
	}

	tool, arguments := a.selectTool(ctx, step, snap, candidates)
	result.ToolName = tool.Descriptor().Name

	bound, err := tools.BindArguments(tool.Descriptor(), arguments)
	if err != nil {
		a.fail(&result, err)
		result.LatencyMS = time.Since(start).Milliseconds()
		return result
	}

	toolResult, err := a.invoke(ctx, tool, bound, step, snap)
	result.LatencyMS = time.Since(start).Milliseconds()
	if err != nil {
		a.fail(&result, err)
		return result
	}

	result.OK = true
	result.Rows = toolResult.Rows
	return result
}

// candidates asks the registry for the top-k tools of this agent's
// class, ranked by the step description and the original query.
func (a *Agent) candidates(ctx context.Context, step *workflow.Step, snap *workflow.Snapshot) []tools.Ranked {
	rankText := strings.TrimSpace(step.Description + " " + snap.Query)

	ranked := a.registry.Rank(ctx, rankText, &a.class)
	if len(ranked) == 0 {
		// Nothing cleared the score floor; fall back to everything the
		// class offers so the step can still run.
		for _, tool := range a.registry.ListByClass(a.class) {
			ranked = append(ranked, tools.Ranked{Tool: tool, Score: 0})
		}
	}
	if len(ranked) > topK {
		ranked = ranked[:topK]
	}
	return ranked
}

// selectTool asks the LLM to pick exactly one candidate via tool
// calling. When the model declines or picks an unknown tool, the
// top-ranked candidate wins with arguments taken from the step's
// parameter hints plus simple query extraction.
func (a *Agent) selectTool(ctx context.Context, step *workflow.Step, snap *workflow.Snapshot, candidates []tools.Ranked) (tools.Tool, map[string]interface{}) {
	defs := make([]llms.ToolDefinition, len(candidates))
	byName := make(map[string]tools.Tool, len(candidates))
	for i, c := range candidates {
		desc := c.Tool.Descriptor()
		defs[i] = llms.ToolDefinition{
			Name:        desc.Name,
			Description: desc.Description,
			Parameters:  desc.SchemaForLLM(),
		}
		byName[desc.Name] = c.Tool
	}

	completion, err := a.gateway.Complete(ctx, "", &llms.Request{
		Messages: []llms.Message{
			{Role: llms.RoleSystem, Content: "Choose exactly one tool that answers the task and call it with arguments bound to its parameter schema."},
			{Role: llms.RoleUser, Content: fmt.Sprintf("Task: %s\nOriginal question: %s", step.Description, snap.Query)},
		},
		Tools: defs,
	})
	if err == nil {
		for _, call := range completion.ToolCalls {
			if tool, ok := byName[call.Name]; ok {
				return tool, call.Arguments
			}
		}
	} else {
		a.logger.Debug("tool selection llm unavailable, using top-ranked candidate",
			"agent", a.agentType, "error", err)
	}

	return candidates[0].Tool, a.fallbackArguments(step, snap)
}

// fallbackArguments merges the planner's hints with fresh extraction
// from the query text. Step hints win on conflicts.
func (a *Agent) fallbackArguments(step *workflow.Step, snap *workflow.Snapshot) map[string]interface{} {
	arguments := map[string]interface{}{}
	for k, v := range workflow.ExtractHints(snap.Query) {
		arguments[k] = v
	}
	for k, v := range step.ParameterHints {
		arguments[k] = v
	}
	return arguments
}

// invoke calls the tool. SQL steps retry a schema mismatch with a
// progressively narrower argument set; other classes surface the error
// directly since their retries are the tool's concern.
func (a *Agent) invoke(ctx context.Context, tool tools.Tool, arguments map[string]interface{}, step *workflow.Step, snap *workflow.Snapshot) (*tools.Result, error) {
	result, err := tool.Invoke(ctx, arguments)
	if err == nil || a.agentType != workflow.SQLAgent {
		return result, err
	}

	for attempt := 0; attempt < sqlRetryLimit; attempt++ {
		var toolErr *tools.ToolError
		if !errors.As(err, &toolErr) || toolErr.Kind != tools.ErrSchemaMismatch {
			return nil, err
		}

		refined := refineArguments(tool.Descriptor(), arguments, step, attempt)
		if len(refined) == len(arguments) {
			// Nothing left to drop: an identical call fails identically.
			return nil, err
		}
		arguments = refined
		a.logger.Debug("retrying sql tool after schema mismatch",
			"tool", tool.Descriptor().Name, "attempt", attempt+1)

		result, err = tool.Invoke(ctx, arguments)
		if err == nil {
			return result, nil
		}
	}
	return nil, err
}

// refineArguments narrows the argument set between schema-mismatch
// retries. The first retry keeps required parameters plus any optional
// the planner hinted at; later retries keep required parameters only,
// giving a mismatched schema fewer ways to disagree with the bound
// values.
func refineArguments(desc *tools.Descriptor, arguments map[string]interface{}, step *workflow.Step, attempt int) map[string]interface{} {
	required := map[string]bool{}
	for _, p := range desc.Parameters {
		if p.Required {
			required[p.Name] = true
		}
	}

	keep := func(name string) bool {
		if required[name] {
			return true
		}
		if attempt > 0 {
			return false
		}
		_, hinted := step.ParameterHints[name]
		return hinted
	}

	refined := map[string]interface{}{}
	for k, v := range arguments {
		if keep(k) {
			refined[k] = v
		}
	}
	for k, v := range step.ParameterHints {
		if required[k] && refined[k] == nil {
			refined[k] = v
		}
	}
	return refined
}

func (a *Agent) fail(result *workflow.AgentResult, err error) {
	var toolErr *tools.ToolError
	if errors.As(err, &toolErr) {
		result.Error = workflow.MapToolError(toolErr.Kind)
		result.Message = toolErr.Message
		return
	}

	switch {
	case errors.Is(err, context.DeadlineExceeded):
		result.Error = workflow.ErrTimeout
	case errors.Is(err, context.Canceled):
		result.Error = workflow.ErrCancelled
	default:
		result.Error = workflow.ErrUpstream
	}
	result.Message = err.Error()
}
