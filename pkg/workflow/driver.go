package workflow

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/loom-ai/loom/pkg/config"
	"github.com/loom-ai/loom/pkg/logger"
)

const apologyResponse = "I ran into a problem retrieving data from one of our systems."

// Driver is the compiled workflow graph: supervisor entry point,
// conditional edges through the router, agents returning to the
// supervisor, consolidator terminating the run.
type Driver struct {
	supervisor   *Supervisor
	consolidator *Consolidator
	agents       map[AgentType]AgentExecutor

	workflowCfg *config.WorkflowConfig
	routerCfg   *config.RouterConfig
	logger      *slog.Logger
	tracer      trace.Tracer
}

func NewDriver(
	supervisor *Supervisor,
	consolidator *Consolidator,
	agents map[AgentType]AgentExecutor,
	workflowCfg *config.WorkflowConfig,
	routerCfg *config.RouterConfig,
) *Driver {
	return &Driver{
		supervisor:   supervisor,
		consolidator: consolidator,
		agents:       agents,
		workflowCfg:  workflowCfg,
		routerCfg:    routerCfg,
		logger:       logger.GetLogger(),
		tracer:       otel.Tracer("loom/workflow"),
	}
}

// Run executes one session message to completion. Events arrive on the
// returned channel in production order; the channel closes after the
// terminal event. A cancelled context stops the run promptly and the
// channel closes without a terminal event.
func (d *Driver) Run(ctx context.Context, state *State) <-chan Event {
	events := make(chan Event)
	go func() {
		defer close(events)
		d.run(ctx, state, events)
	}()
	return events
}

func (d *Driver) run(ctx context.Context, state *State, events chan<- Event) {
	runCtx, cancel := context.WithTimeout(ctx,
		time.Duration(d.workflowCfg.OverallDeadlineSeconds)*time.Second)
	defer cancel()

	runCtx, span := d.tracer.Start(runCtx, "workflow.run")
	defer span.End()

	current := NodeSupervisor
	supervisorVisits := 0
	deadlineNoted := false

	for current != NodeEnd {
		if ctx.Err() != nil {
			// Client cancellation: stop without a terminal event. The
			// post-loop check does the accounting.
			break
		}
		if runCtx.Err() != nil && current != NodeConsolidator && !deadlineNoted {
			state.RecordError(0, ErrDeadlineExceeded, "overall workflow deadline exceeded")
			stepErrors.WithLabelValues(string(ErrDeadlineExceeded)).Inc()
			deadlineNoted = true
			current = NodeConsolidator
			continue
		}

		switch current {
		case NodeSupervisor:
			supervisorVisits++
			if supervisorVisits > d.workflowCfg.MaxIterations {
				state.RecordError(0, ErrIncomplete,
					fmt.Sprintf("exceeded %d supervisor iterations", d.workflowCfg.MaxIterations))
				stepErrors.WithLabelValues(string(ErrIncomplete)).Inc()
				current = NodeConsolidator
				continue
			}
			current = d.runSupervisor(runCtx, state, events)

		case NodeSQLAgent, NodeRESTAgent, NodeSOAPAgent:
			current = d.runAgent(runCtx, current, state, events)

		case NodeConsolidator:
			d.runConsolidator(runCtx, state, events)
			current = NodeEnd

		default:
			if d.routerCfg.UnknownNodePolicy == "error" {
				state.RecordError(0, ErrInternal, fmt.Sprintf("routed to unknown node %s", current))
			}
			current = NodeEnd
		}
	}

	if ctx.Err() != nil {
		// The loop can also unwind through a failed emit; no terminal
		// event after the client went away.
		runsTotal.WithLabelValues("cancelled").Inc()
		return
	}
	d.finish(ctx, state, events)
}

func (d *Driver) runSupervisor(ctx context.Context, state *State, events chan<- Event) NodeName {
	nodeCtx, cancel := d.nodeContext(ctx)
	defer cancel()

	start := time.Now()
	err := d.runSafely(NodeSupervisor, func() error {
		return d.supervisor.Run(nodeCtx, state)
	}, state)
	nodeDuration.WithLabelValues(string(NodeSupervisor)).Observe(time.Since(start).Seconds())

	if !d.emit(ctx, events, Event{Kind: EventNode, Node: NodeSupervisor}) {
		return NodeEnd
	}
	if err != nil {
		// Unrecoverable planning failure; the finish path produces the
		// user-facing apology.
		return NodeEnd
	}
	return RouteFromSupervisor(state.Snapshot())
}

func (d *Driver) runAgent(ctx context.Context, node NodeName, state *State, events chan<- Event) NodeName {
	step := state.CurrentStep()
	if step == nil {
		return NodeConsolidator
	}

	agent, ok := d.agents[AgentType(node)]
	if !ok {
		state.RecordError(step.StepNumber, ErrToolNotFound,
			fmt.Sprintf("no agent registered for %s", node))
		stepErrors.WithLabelValues(string(ErrToolNotFound)).Inc()
		state.MarkStep(step.StepNumber, StepFailed)
		state.Advance()
		if !d.emit(ctx, events, Event{Kind: EventNode, Node: node}) {
			return NodeEnd
		}
		return RouteFromAgent(state.Snapshot())
	}

	nodeCtx, cancel := d.nodeContext(ctx)
	defer cancel()

	nodeCtx, span := d.tracer.Start(nodeCtx, "workflow.agent",
		trace.WithAttributes(attribute.String("node", string(node))))
	defer span.End()

	start := time.Now()
	var result AgentResult
	err := d.runSafely(node, func() error {
		result = agent.Execute(nodeCtx, step, state.Snapshot())
		return nil
	}, state)
	nodeDuration.WithLabelValues(string(node)).Observe(time.Since(start).Seconds())

	if err != nil {
		result = AgentResult{
			StepNumber: step.StepNumber,
			AgentType:  AgentType(node),
			OK:         false,
			Error:      ErrInternal,
			Message:    err.Error(),
			LatencyMS:  time.Since(start).Milliseconds(),
		}
	}

	state.AppendResult(result)
	if !result.OK {
		state.RecordError(result.StepNumber, result.Error, result.Message)
		stepErrors.WithLabelValues(string(result.Error)).Inc()
	}
	state.Advance()

	if !d.emit(ctx, events, Event{Kind: EventNode, Node: node}) {
		return NodeEnd
	}
	return RouteFromAgent(state.Snapshot())
}

func (d *Driver) runConsolidator(ctx context.Context, state *State, events chan<- Event) {
	nodeCtx, cancel := d.nodeContext(ctx)
	defer cancel()

	start := time.Now()
	_ = d.runSafely(NodeConsolidator, func() error {
		d.consolidator.Run(nodeCtx, state)
		return nil
	}, state)
	nodeDuration.WithLabelValues(string(NodeConsolidator)).Observe(time.Since(start).Seconds())

	d.emit(ctx, events, Event{Kind: EventNode, Node: NodeConsolidator})
}

// nodeContext bounds one node execution. It derives from the run
// context so the overall deadline still applies.
func (d *Driver) nodeContext(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, time.Duration(d.workflowCfg.NodeTimeoutSeconds)*time.Second)
}

// runSafely converts node panics into recorded INTERNAL errors so a
// misbehaving node can never kill the workflow goroutine.
func (d *Driver) runSafely(node NodeName, fn func() error, state *State) (err error) {
	defer func() {
		if r := recover(); r != nil {
			d.logger.Error("node panicked", "node", node, "panic", r)
			err = fmt.Errorf("node %s panicked: %v", node, r)
		}
	}()
	return fn()
}

func (d *Driver) finish(ctx context.Context, state *State, events chan<- Event) {
	snap := state.Snapshot()

	if snap.FinalResponse != "" {
		runsTotal.WithLabelValues("complete").Inc()
		d.emit(ctx, events, Event{
			Kind:          EventComplete,
			FinalResponse: snap.FinalResponse,
		})
		return
	}

	// No consolidated answer: planning failed outright or the plan was
	// empty. Emit an apologetic completion rather than a bare error so
	// the session still terminates cleanly.
	message := apologyResponse
	if hasErrorKind(snap.Errors, ErrEmptyPlan) || hasErrorKind(snap.Errors, ErrPlan) {
		message = "I could not find a data source that answers your request."
	}
	state.SetFinal(message)

	runsTotal.WithLabelValues("failed").Inc()
	d.emit(ctx, events, Event{
		Kind:          EventComplete,
		FinalResponse: message,
	})
}

func hasErrorKind(errs []StateError, kind ErrorKind) bool {
	for _, e := range errs {
		if e.Kind == kind {
			return true
		}
	}
	return false
}

// emit blocks until the consumer accepts the event (backpressure) or
// the run is cancelled. Reports false on cancellation.
func (d *Driver) emit(ctx context.Context, events chan<- Event, event Event) bool {
	select {
	case events <- event:
		return true
	case <-ctx.Done():
		return false
	}
}
