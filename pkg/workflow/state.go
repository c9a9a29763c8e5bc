package workflow

import (
	"sync"
)

// State is the accumulating per-run state object. All mutation goes
// through the typed helpers, which serialize concurrent access; workers
// receive immutable Snapshots.
type State struct {
	mu sync.Mutex

	query   string
	context map[string]interface{}

	plan             *Plan
	currentStepIndex int

	sqlResults  []AgentResult
	restResults []AgentResult
	soapResults []AgentResult

	nextAgent      AgentType
	shouldContinue bool
	finalResponse  string
	errors         []StateError
}

// Snapshot is an immutable copy of the state handed to workers.
type Snapshot struct {
	Query            string
	Context          map[string]interface{}
	Plan             *Plan
	CurrentStepIndex int
	SQLResults       []AgentResult
	RESTResults      []AgentResult
	SOAPResults      []AgentResult
	NextAgent        AgentType
	ShouldContinue   bool
	FinalResponse    string
	Errors           []StateError
}

// NewState creates run state for one user message.
func NewState(query string, context map[string]interface{}) *State {
	return &State{
		query:          query,
		context:        context,
		shouldContinue: true,
	}
}

// SetPlan stores the plan on first supervisor visit.
func (s *State) SetPlan(plan *Plan) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.plan = plan
}

// CurrentStep returns the step under the cursor, or nil when the plan
// is exhausted or absent.
func (s *State) CurrentStep() *Step {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.plan == nil || s.currentStepIndex >= len(s.plan.Steps) {
		return nil
	}
	return &s.plan.Steps[s.currentStepIndex]
}

// Advance moves the cursor one step forward.
func (s *State) Advance() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.currentStepIndex++
}

// AppendResult records an agent result in the sequence matching its
// agent type and marks the step status.
func (s *State) AppendResult(result AgentResult) {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch result.AgentType {
	case SQLAgent:
		s.sqlResults = append(s.sqlResults, result)
	case RESTAgent:
		s.restResults = append(s.restResults, result)
	case SOAPAgent:
		s.soapResults = append(s.soapResults, result)
	}

	if s.plan != nil {
		for i := range s.plan.Steps {
			if s.plan.Steps[i].StepNumber == result.StepNumber {
				if result.OK {
					s.plan.Steps[i].Status = StepDone
				} else {
					s.plan.Steps[i].Status = StepFailed
				}
				break
			}
		}
	}
}

// SetNext records the routing hint.
func (s *State) SetNext(next AgentType) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextAgent = next
}

// SetShouldContinue flips the continuation flag.
func (s *State) SetShouldContinue(v bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.shouldContinue = v
}

// SetFinal stores the consolidated answer.
func (s *State) SetFinal(text string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.finalResponse = text
}

// RecordError appends to the error log.
func (s *State) RecordError(stepNumber int, kind ErrorKind, message string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.errors = append(s.errors, StateError{
		StepNumber: stepNumber,
		Kind:       kind,
		Message:    message,
	})
}

// MarkStep sets one step's status by number.
func (s *State) MarkStep(stepNumber int, status StepStatus) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.plan == nil {
		return
	}
	for i := range s.plan.Steps {
		if s.plan.Steps[i].StepNumber == stepNumber {
			s.plan.Steps[i].Status = status
			return
		}
	}
}

// StepSucceeded reports whether a step number appears in any result
// sequence with ok=true.
func (s *State) StepSucceeded(stepNumber int) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return stepOK(s.sqlResults, stepNumber) ||
		stepOK(s.restResults, stepNumber) ||
		stepOK(s.soapResults, stepNumber)
}

func stepOK(results []AgentResult, stepNumber int) bool {
	for _, r := range results {
		if r.StepNumber == stepNumber && r.OK {
			return true
		}
	}
	return false
}

// Snapshot returns an immutable copy of the state.
func (s *State) Snapshot() *Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	snap := &Snapshot{
		Query:            s.query,
		Context:          copyMap(s.context),
		CurrentStepIndex: s.currentStepIndex,
		SQLResults:       append([]AgentResult(nil), s.sqlResults...),
		RESTResults:      append([]AgentResult(nil), s.restResults...),
		SOAPResults:      append([]AgentResult(nil), s.soapResults...),
		NextAgent:        s.nextAgent,
		ShouldContinue:   s.shouldContinue,
		FinalResponse:    s.finalResponse,
		Errors:           append([]StateError(nil), s.errors...),
	}
	if s.plan != nil {
		planCopy := *s.plan
		planCopy.Steps = append([]Step(nil), s.plan.Steps...)
		snap.Plan = &planCopy
	}
	return snap
}

// AllResults returns every recorded result across the three sequences,
// SQL first, then REST, then SOAP.
func (snap *Snapshot) AllResults() []AgentResult {
	out := make([]AgentResult, 0, len(snap.SQLResults)+len(snap.RESTResults)+len(snap.SOAPResults))
	out = append(out, snap.SQLResults...)
	out = append(out, snap.RESTResults...)
	out = append(out, snap.SOAPResults...)
	return out
}

// RemainingSteps reports how many steps sit at or beyond the cursor.
func (snap *Snapshot) RemainingSteps() int {
	if snap.Plan == nil {
		return 0
	}
	remaining := len(snap.Plan.Steps) - snap.CurrentStepIndex
	if remaining < 0 {
		return 0
	}
	return remaining
}

func copyMap(m map[string]interface{}) map[string]interface{} {
	if m == nil {
		return nil
	}
	out := make(map[string]interface{}, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
