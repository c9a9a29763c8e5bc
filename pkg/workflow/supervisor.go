package workflow

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/loom-ai/loom/pkg/logger"
)

// Supervisor lazily creates the plan, verifies step dependencies, and
// sets the routing hint for the next node.
type Supervisor struct {
	planner *Planner
	logger  *slog.Logger
}

func NewSupervisor(planner *Planner) *Supervisor {
	return &Supervisor{
		planner: planner,
		logger:  logger.GetLogger(),
	}
}

// Run executes one supervisor visit against the state.
func (s *Supervisor) Run(ctx context.Context, state *State) error {
	snap := state.Snapshot()

	if snap.Plan == nil {
		plan, err := s.planner.Plan(ctx, snap.Query, snap.Context)
		if err != nil {
			state.RecordError(0, ErrPlan, err.Error())
			state.SetNext(NextEnd)
			state.SetShouldContinue(false)
			return err
		}
		state.SetPlan(plan)
		s.logger.Info("plan created",
			"plan_id", plan.PlanID,
			"steps", len(plan.Steps),
			"complexity", plan.EstimatedComplexity)
	}

	// Dependency checks may fail several steps in a row; keep advancing
	// until a runnable step or the end of the plan.
	for {
		step := state.CurrentStep()
		if step == nil {
			snap = state.Snapshot()
			if snap.Plan == nil || len(snap.Plan.Steps) == 0 {
				state.RecordError(0, ErrEmptyPlan, "plan has no steps")
				state.SetNext(NextEnd)
				state.SetShouldContinue(false)
				return nil
			}
			state.SetNext(NextConsolidate)
			return nil
		}

		if unmet := s.unmetDependency(state, step); unmet != 0 {
			message := fmt.Sprintf("step %d requires step %d which did not succeed", step.StepNumber, unmet)
			s.logger.Warn("skipping step with unmet dependency", "step", step.StepNumber, "dependency", unmet)
			state.MarkStep(step.StepNumber, StepFailed)
			state.RecordError(step.StepNumber, ErrDependencyUnmet, message)
			state.Advance()
			continue
		}

		state.MarkStep(step.StepNumber, StepInFlight)
		state.SetNext(step.AgentType)
		state.SetShouldContinue(true)
		return nil
	}
}

func (s *Supervisor) unmetDependency(state *State, step *Step) int {
	for _, dep := range step.DependsOn {
		if !state.StepSucceeded(dep) {
			return dep
		}
	}
	return 0
}
