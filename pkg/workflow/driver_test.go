package workflow

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/loom-ai/loom/pkg/config"
	"github.com/loom-ai/loom/pkg/llms"
	"github.com/loom-ai/loom/pkg/tools"
)

// stubExecutor serves canned results per step number. A positive delay
// makes it sleep (respecting the node context) before answering, the
// way a slow backend would.
type stubExecutor struct {
	agentType AgentType
	results   map[int]AgentResult
	delay     time.Duration
}

func (s *stubExecutor) Type() AgentType { return s.agentType }

func (s *stubExecutor) Execute(ctx context.Context, step *Step, snapshot *Snapshot) AgentResult {
	if s.delay > 0 {
		select {
		case <-time.After(s.delay):
		case <-ctx.Done():
			return AgentResult{
				StepNumber: step.StepNumber,
				AgentType:  s.agentType,
				OK:         false,
				Error:      ErrTimeout,
				Message:    "backend did not answer in time",
			}
		}
	}
	result, ok := s.results[step.StepNumber]
	if !ok {
		result = AgentResult{OK: true}
	}
	result.StepNumber = step.StepNumber
	result.AgentType = s.agentType
	return result
}

func newTestDriver(
	gateway *llms.Gateway,
	reg *tools.Registry,
	agents map[AgentType]AgentExecutor,
	mutate func(*config.WorkflowConfig),
) *Driver {
	workflowCfg := testWorkflowConfig()
	if mutate != nil {
		mutate(workflowCfg)
	}
	return NewDriver(
		NewSupervisor(NewPlanner(gateway, reg)),
		NewConsolidator(gateway, testConsolidatorConfig()),
		agents,
		workflowCfg,
		testRouterConfig(),
	)
}

func collectEvents(t *testing.T, events <-chan Event) []Event {
	t.Helper()
	var out []Event
	deadline := time.After(15 * time.Second)
	for {
		select {
		case ev, ok := <-events:
			if !ok {
				return out
			}
			out = append(out, ev)
		case <-deadline:
			t.Fatalf("timed out waiting for events, got %d so far", len(out))
		}
	}
}

func requireSingleCompletion(t *testing.T, events []Event) Event {
	t.Helper()
	require.NotEmpty(t, events)

	var terminals int
	for _, ev := range events {
		if ev.Kind == EventComplete {
			terminals++
		}
	}
	require.Equal(t, 1, terminals, "expected exactly one terminal event")

	last := events[len(events)-1]
	require.Equal(t, EventComplete, last.Kind, "terminal event must come last")
	return last
}

func TestDriver_SingleSourceRead(t *testing.T) {
	reg := newTestRegistry(t,
		newStubTool("list_alerts", tools.ClassRESTAPI, "alerts status open closed", nil),
	)
	gateway := newScriptedGateway(textPayload(`{
		"intent": "list alerts",
		"entities": [],
		"required_sources": ["rest"],
		"requires_consolidation": false,
		"estimated_complexity": 1
	}`))

	agents := map[AgentType]AgentExecutor{
		RESTAgent: &stubExecutor{
			agentType: RESTAgent,
			results: map[int]AgentResult{
				1: {OK: true, ToolName: "list_alerts", Rows: []tools.Row{
					{"alert_id": "A1", "status": "open"},
					{"alert_id": "A2", "status": "open"},
				}},
			},
		},
	}

	driver := newTestDriver(gateway, reg, agents, nil)
	state := NewState("show open alerts", nil)

	events := collectEvents(t, driver.Run(context.Background(), state))
	final := requireSingleCompletion(t, events)

	// No consolidation required: the answer is the deterministic
	// rendering of the single result set.
	assert.Contains(t, final.FinalResponse, "A1")
	assert.Contains(t, final.FinalResponse, "A2")
	assert.Equal(t, final.FinalResponse, state.Snapshot().FinalResponse)

	assert.Equal(t, EventNode, events[0].Kind)
	assert.Equal(t, NodeSupervisor, events[0].Node)
}

func TestDriver_SingleSourceDuplicateRowsReachAnswer(t *testing.T) {
	reg := newTestRegistry(t,
		newStubTool("status_log", tools.ClassRelationalDB, "status history log", nil),
	)
	gateway := newScriptedGateway(textPayload(`{
		"intent": "status history",
		"entities": [],
		"required_sources": ["sql"],
		"requires_consolidation": false,
		"estimated_complexity": 1
	}`))

	agents := map[AgentType]AgentExecutor{
		SQLAgent: &stubExecutor{
			agentType: SQLAgent,
			results: map[int]AgentResult{
				1: {OK: true, ToolName: "status_log", Rows: []tools.Row{
					{"status": "open"},
					{"status": "open"},
					{"status": "closed"},
				}},
			},
		},
	}

	driver := newTestDriver(gateway, reg, agents, nil)
	state := NewState("status history", nil)

	events := collectEvents(t, driver.Run(context.Background(), state))
	final := requireSingleCompletion(t, events)

	// The fast path formats the tool's rows as returned; the repeated
	// "open" row is part of the answer, not noise to drop.
	assert.Equal(t, 2, strings.Count(final.FinalResponse, "| open |"))
	assert.Equal(t, 1, strings.Count(final.FinalResponse, "| closed |"))
}

func TestDriver_PartialFailureStillCompletes(t *testing.T) {
	reg := newTestRegistry(t,
		newStubTool("list_users", tools.ClassRESTAPI, "users departments", nil),
		newStubTool("orders_db", tools.ClassRelationalDB, "orders by customer", nil),
	)
	gateway := newScriptedGateway(textPayload(`{
		"intent": "users and their orders",
		"entities": [],
		"required_sources": ["rest", "sql"],
		"requires_consolidation": true,
		"estimated_complexity": 4
	}`))

	agents := map[AgentType]AgentExecutor{
		RESTAgent: &stubExecutor{
			agentType: RESTAgent,
			results: map[int]AgentResult{
				1: {OK: true, ToolName: "list_users", Rows: []tools.Row{
					{"user_id": "U7", "dept": "Eng"},
				}},
			},
		},
		SQLAgent: &stubExecutor{
			agentType: SQLAgent,
			results: map[int]AgentResult{
				2: {OK: false, ToolName: "orders_db", Error: ErrUpstream,
					Message: "pq: connection refused to db-internal-host:5432"},
			},
		},
	}

	driver := newTestDriver(gateway, reg, agents, nil)
	state := NewState("users and their orders", nil)

	events := collectEvents(t, driver.Run(context.Background(), state))
	final := requireSingleCompletion(t, events)

	// Succeeded data still arrives, with a redacted partial-data note.
	assert.Contains(t, final.FinalResponse, "U7")
	assert.Contains(t, final.FinalResponse, "partial data")
	assert.Contains(t, final.FinalResponse, "step 2 (UPSTREAM_ERROR)")
	assert.NotContains(t, final.FinalResponse, "db-internal-host")
}

func TestDriver_NodeTimeoutRecordedAsTimeout(t *testing.T) {
	reg := newTestRegistry(t,
		newStubTool("list_alerts", tools.ClassRESTAPI, "alerts status", nil),
	)
	gateway := newScriptedGateway(textPayload(`{
		"intent": "list alerts",
		"entities": [],
		"required_sources": ["rest"],
		"requires_consolidation": false,
		"estimated_complexity": 1
	}`))

	agents := map[AgentType]AgentExecutor{
		RESTAgent: &stubExecutor{agentType: RESTAgent, delay: 10 * time.Second},
	}

	driver := newTestDriver(gateway, reg, agents, func(cfg *config.WorkflowConfig) {
		cfg.NodeTimeoutSeconds = 1
	})
	state := NewState("show alerts", nil)

	start := time.Now()
	events := collectEvents(t, driver.Run(context.Background(), state))
	requireSingleCompletion(t, events)

	assert.Less(t, time.Since(start), 5*time.Second, "node timeout must cut the agent short")

	snap := state.Snapshot()
	require.Len(t, snap.RESTResults, 1)
	assert.False(t, snap.RESTResults[0].OK)
	assert.Equal(t, ErrTimeout, snap.RESTResults[0].Error)
	assert.True(t, hasErrorKind(snap.Errors, ErrTimeout))
	assert.NotEmpty(t, snap.FinalResponse)
}

func TestDriver_OverallDeadlineProducesPartialAnswer(t *testing.T) {
	reg := newTestRegistry(t,
		newStubTool("list_alerts", tools.ClassRESTAPI, "alerts", nil),
	)
	driver := newTestDriver(newScriptedGateway(), reg, nil, func(cfg *config.WorkflowConfig) {
		cfg.OverallDeadlineSeconds = 0
	})
	state := NewState("anything", nil)

	events := collectEvents(t, driver.Run(context.Background(), state))
	final := requireSingleCompletion(t, events)

	assert.NotEmpty(t, final.FinalResponse)
	assert.True(t, hasErrorKind(state.Snapshot().Errors, ErrDeadlineExceeded))
}

func TestDriver_EmptyCatalogueCompletesWithExplanation(t *testing.T) {
	driver := newTestDriver(newScriptedGateway(), tools.NewRegistry(nil), nil, nil)
	state := NewState("show alerts", nil)

	events := collectEvents(t, driver.Run(context.Background(), state))
	final := requireSingleCompletion(t, events)

	assert.Contains(t, final.FinalResponse, "could not find a data source")
	assert.True(t, hasErrorKind(state.Snapshot().Errors, ErrPlan))
}

func TestDriver_IterationCapMarksRunIncomplete(t *testing.T) {
	reg := newTestRegistry(t,
		newStubTool("list_users", tools.ClassRESTAPI, "users", nil),
		newStubTool("orders_db", tools.ClassRelationalDB, "orders", nil),
		newStubTool("legacy_tickets", tools.ClassSOAPAPI, "tickets", nil),
	)
	gateway := newScriptedGateway(textPayload(`{
		"intent": "everything",
		"entities": [],
		"required_sources": ["rest", "sql", "soap"],
		"requires_consolidation": true,
		"estimated_complexity": 8
	}`))

	agents := map[AgentType]AgentExecutor{
		RESTAgent: &stubExecutor{agentType: RESTAgent, results: map[int]AgentResult{
			1: {OK: true, Rows: []tools.Row{{"user_id": "U1"}}},
		}},
		SQLAgent:  &stubExecutor{agentType: SQLAgent},
		SOAPAgent: &stubExecutor{agentType: SOAPAgent},
	}

	driver := newTestDriver(gateway, reg, agents, func(cfg *config.WorkflowConfig) {
		cfg.MaxIterations = 2
	})
	state := NewState("everything about everything", nil)

	events := collectEvents(t, driver.Run(context.Background(), state))
	final := requireSingleCompletion(t, events)

	// The cap fires before the plan finishes; whatever was gathered is
	// still consolidated into an answer.
	assert.NotEmpty(t, final.FinalResponse)
	assert.True(t, hasErrorKind(state.Snapshot().Errors, ErrIncomplete))
}

func TestDriver_MissingAgentRecordsToolNotFound(t *testing.T) {
	reg := newTestRegistry(t,
		newStubTool("list_alerts", tools.ClassRESTAPI, "alerts", nil),
	)
	gateway := newScriptedGateway(textPayload(`{
		"intent": "list alerts",
		"entities": [],
		"required_sources": ["rest"],
		"requires_consolidation": false,
		"estimated_complexity": 1
	}`))

	driver := newTestDriver(gateway, reg, map[AgentType]AgentExecutor{}, nil)
	state := NewState("show alerts", nil)

	events := collectEvents(t, driver.Run(context.Background(), state))
	requireSingleCompletion(t, events)

	assert.True(t, hasErrorKind(state.Snapshot().Errors, ErrToolNotFound))
}

func TestDriver_ClientCancellationEmitsNoTerminal(t *testing.T) {
	reg := newTestRegistry(t,
		newStubTool("list_alerts", tools.ClassRESTAPI, "alerts", nil),
	)
	gateway := newScriptedGateway(textPayload(`{
		"intent": "list alerts",
		"entities": [],
		"required_sources": ["rest"],
		"requires_consolidation": false,
		"estimated_complexity": 1
	}`))

	agents := map[AgentType]AgentExecutor{
		RESTAgent: &stubExecutor{agentType: RESTAgent, delay: 10 * time.Second},
	}

	ctx, cancel := context.WithCancel(context.Background())
	driver := newTestDriver(gateway, reg, agents, nil)
	state := NewState("show alerts", nil)

	events := driver.Run(ctx, state)

	// Let the run reach the slow agent, then disconnect the client.
	time.Sleep(100 * time.Millisecond)
	cancel()

	var received []Event
	deadline := time.After(15 * time.Second)
	for {
		select {
		case ev, ok := <-events:
			if !ok {
				for _, e := range received {
					assert.Equal(t, EventNode, e.Kind, "cancelled runs emit node progress only")
				}
				return
			}
			received = append(received, ev)
		case <-deadline:
			t.Fatal("event channel never closed after cancellation")
		}
	}
}

func TestDriver_EventOrdering(t *testing.T) {
	reg := newTestRegistry(t,
		newStubTool("list_users", tools.ClassRESTAPI, "users", nil),
		newStubTool("orders_db", tools.ClassRelationalDB, "orders", nil),
	)
	gateway := newScriptedGateway(textPayload(`{
		"intent": "join",
		"entities": [],
		"required_sources": ["rest", "sql"],
		"requires_consolidation": true,
		"estimated_complexity": 4
	}`))

	agents := map[AgentType]AgentExecutor{
		RESTAgent: &stubExecutor{agentType: RESTAgent, results: map[int]AgentResult{
			1: {OK: true, Rows: []tools.Row{{"user_id": "U1"}}},
		}},
		SQLAgent: &stubExecutor{agentType: SQLAgent, results: map[int]AgentResult{
			2: {OK: true, Rows: []tools.Row{{"user_id": "U1", "order_id": "O1"}}},
		}},
	}

	driver := newTestDriver(gateway, reg, agents, nil)
	events := collectEvents(t, driver.Run(context.Background(), NewState("orders per user", nil)))
	requireSingleCompletion(t, events)

	var nodes []NodeName
	for _, ev := range events {
		if ev.Kind == EventNode {
			nodes = append(nodes, ev.Node)
		}
	}
	// The last agent hands off to the consolidator directly; there is no
	// trailing supervisor visit.
	assert.Equal(t, []NodeName{
		NodeSupervisor,
		NodeRESTAgent,
		NodeSupervisor,
		NodeSQLAgent,
		NodeConsolidator,
	}, nodes)
}
