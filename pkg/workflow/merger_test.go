package workflow

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/loom-ai/loom/pkg/tools"
)

func TestIsIDLikeColumn(t *testing.T) {
	tests := []struct {
		name string
		want bool
	}{
		{"id", true},
		{"ID", true},
		{"user_id", true},
		{"account_key", true},
		{"order_no", true},
		{"case_number", true},
		{"record_uuid", true},
		{"guid_value", true},
		{"severity", false},
		{"identity", false},
		{"idle", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsIDLikeColumn(tt.name))
		})
	}
}

func TestMergeResults_JoinOnSharedID(t *testing.T) {
	results := []AgentResult{
		{
			AgentType: RESTAgent, ToolName: "list_users", OK: true,
			Rows: []tools.Row{{"user_id": "U7", "dept": "Eng"}},
		},
		{
			AgentType: SQLAgent, ToolName: "alerts_by_user", OK: true,
			Rows: []tools.Row{{"alert_id": "A9", "user_id": "U7", "severity": "high"}},
		},
	}

	merged := MergeResults(results)

	assert.Equal(t, StrategyJoin, merged.Strategy)
	assert.Equal(t, "user_id", merged.JoinKey)
	require.Len(t, merged.Rows, 1)

	row := merged.Rows[0]
	assert.Equal(t, "U7", row["user_id"])
	assert.Equal(t, "A9", row["alert_id"])
	assert.Equal(t, "Eng", row["dept"])

	sources, ok := row["_sources"].([]interface{})
	require.True(t, ok)
	assert.Contains(t, sources, "list_users")
	assert.Contains(t, sources, "alerts_by_user")
}

func TestMergeResults_JoinKeyAppearsOnce(t *testing.T) {
	results := []AgentResult{
		{
			AgentType: RESTAgent, ToolName: "a", OK: true,
			Rows: []tools.Row{{"id": "1", "x": "a1"}, {"id": "2", "x": "a2"}},
		},
		{
			AgentType: SQLAgent, ToolName: "b", OK: true,
			Rows: []tools.Row{{"id": "2", "y": "b2"}, {"id": "3", "y": "b3"}},
		},
	}

	merged := MergeResults(results)
	require.Equal(t, StrategyJoin, merged.Strategy)

	// Every input id appears exactly once (outer-join semantics).
	counts := map[string]int{}
	for _, row := range merged.Rows {
		counts[row["id"].(string)]++
	}
	assert.Equal(t, map[string]int{"1": 1, "2": 1, "3": 1}, counts)
}

func TestMergeResults_CollisionKeptUnderSourceSuffix(t *testing.T) {
	results := []AgentResult{
		{
			AgentType: RESTAgent, ToolName: "crm", OK: true,
			Rows: []tools.Row{{"id": "1", "status": "open"}},
		},
		{
			AgentType: SQLAgent, ToolName: "billing", OK: true,
			Rows: []tools.Row{{"id": "1", "status": "overdue"}},
		},
	}

	merged := MergeResults(results)
	require.Len(t, merged.Rows, 1)

	row := merged.Rows[0]
	// Earlier source keeps the plain field; the collision survives
	// under field__source.
	assert.Equal(t, "open", row["status"])
	assert.Equal(t, "overdue", row["status__billing"])
}

func TestMergeResults_ConcatWithProvenance(t *testing.T) {
	results := []AgentResult{
		{
			AgentType: RESTAgent, ToolName: "alerts", OK: true,
			Rows: []tools.Row{{"severity": "high"}},
		},
		{
			AgentType: SOAPAgent, ToolName: "tickets", OK: true,
			Rows: []tools.Row{{"priority": "p1"}},
		},
	}

	merged := MergeResults(results)
	assert.Equal(t, StrategyConcat, merged.Strategy)
	require.Len(t, merged.Rows, 2)
	assert.Equal(t, "alerts", merged.Rows[0]["_source"])
	assert.Equal(t, "tickets", merged.Rows[1]["_source"])
}

func TestMergeResults_SingleSourceKeepsDuplicateRows(t *testing.T) {
	// A lone result set is the tool's answer verbatim; repeated rows
	// (a status column, say) must survive into the final output.
	results := []AgentResult{
		{
			AgentType: SQLAgent, ToolName: "status_log", OK: true,
			Rows: []tools.Row{{"status": "open"}, {"status": "open"}, {"status": "closed"}},
		},
	}

	merged := MergeResults(results)
	assert.Equal(t, StrategySingle, merged.Strategy)
	require.Len(t, merged.Rows, 3)
	assert.Equal(t, "open", merged.Rows[0]["status"])
	assert.Equal(t, "open", merged.Rows[1]["status"])
	assert.Equal(t, "closed", merged.Rows[2]["status"])
}

func TestMergeResults_ConcatDeduplicates(t *testing.T) {
	results := []AgentResult{
		{
			AgentType: RESTAgent, ToolName: "a", OK: true,
			Rows: []tools.Row{{"x": "1"}, {"x": "1"}, {"x": "2"}},
		},
		{
			AgentType: SOAPAgent, ToolName: "b", OK: true,
			Rows: []tools.Row{{"y": "3"}},
		},
	}

	merged := MergeResults(results)
	require.Equal(t, StrategyConcat, merged.Strategy)
	// The duplicate within source "a" collapses; everything else stays.
	assert.Len(t, merged.Rows, 3)
}

func TestMergeResults_SkipsFailedAndEmpty(t *testing.T) {
	results := []AgentResult{
		{AgentType: RESTAgent, ToolName: "good", OK: true, Rows: []tools.Row{{"x": "1"}}},
		{AgentType: SQLAgent, ToolName: "failed", OK: false, Error: ErrUpstream},
		{AgentType: SOAPAgent, ToolName: "empty", OK: true},
	}

	merged := MergeResults(results)
	assert.Equal(t, StrategySingle, merged.Strategy)
	assert.Len(t, merged.Rows, 1)
	assert.Equal(t, []string{"good"}, merged.Sources)
}
