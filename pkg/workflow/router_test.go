package workflow

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRouteFromSupervisor(t *testing.T) {
	tests := []struct {
		next AgentType
		want NodeName
	}{
		{SQLAgent, NodeSQLAgent},
		{RESTAgent, NodeRESTAgent},
		{SOAPAgent, NodeSOAPAgent},
		{NextConsolidate, NodeConsolidator},
		{NextEnd, NodeEnd},
		{"", NodeEnd},
		{"UNKNOWN", NodeEnd},
	}

	for _, tt := range tests {
		t.Run(string(tt.next), func(t *testing.T) {
			snap := &Snapshot{NextAgent: tt.next}
			assert.Equal(t, tt.want, RouteFromSupervisor(snap))
		})
	}
}

func TestRouteFromAgent(t *testing.T) {
	plan := twoStepPlan()

	moreSteps := &Snapshot{Plan: plan, CurrentStepIndex: 1, ShouldContinue: true}
	assert.Equal(t, NodeSupervisor, RouteFromAgent(moreSteps))

	done := &Snapshot{Plan: plan, CurrentStepIndex: 2, ShouldContinue: true}
	assert.Equal(t, NodeConsolidator, RouteFromAgent(done))

	halted := &Snapshot{Plan: plan, CurrentStepIndex: 1, ShouldContinue: false}
	assert.Equal(t, NodeConsolidator, RouteFromAgent(halted))
}

func TestRoute_Deterministic(t *testing.T) {
	// Identical states always produce identical node names.
	snap := &Snapshot{NextAgent: SQLAgent, Plan: twoStepPlan(), CurrentStepIndex: 1, ShouldContinue: true}

	for i := 0; i < 100; i++ {
		assert.Equal(t, NodeSQLAgent, RouteFromSupervisor(snap))
		assert.Equal(t, NodeSupervisor, RouteFromAgent(snap))
	}
}
