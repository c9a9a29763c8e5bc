package workflow

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/loom-ai/loom/pkg/config"
	"github.com/loom-ai/loom/pkg/llms"
	"github.com/loom-ai/loom/pkg/logger"
)

// Consolidator merges heterogeneous agent results and formats the final
// answer, via the LLM when available and deterministically otherwise.
type Consolidator struct {
	gateway *llms.Gateway
	config  *config.ConsolidatorConfig
	logger  *slog.Logger
}

func NewConsolidator(gateway *llms.Gateway, cfg *config.ConsolidatorConfig) *Consolidator {
	return &Consolidator{
		gateway: gateway,
		config:  cfg,
		logger:  logger.GetLogger(),
	}
}

// Run produces state.final_response from the accumulated results.
func (c *Consolidator) Run(ctx context.Context, state *State) {
	snap := state.Snapshot()

	merged := MergeResults(snap.AllResults())

	var hint FormatKind
	if snap.Plan != nil {
		if h, ok := FormatHint(snap.Plan.Notes); ok {
			hint = h
		}
	}

	text := c.format(ctx, snap, merged, hint)

	if note := partialFailureNote(snap); note != "" {
		text = text + "\n\n" + note
	}
	if text == "" {
		text = "No results were found for your request."
	}

	state.SetFinal(text)
	state.SetShouldContinue(false)
}

func (c *Consolidator) format(ctx context.Context, snap *Snapshot, merged *Merged, hint FormatKind) string {
	// The no-consolidation fast path and oversized row sets never touch
	// the LLM.
	simple := snap.Plan == nil || !snap.Plan.RequiresConsolidation
	if simple || len(merged.Rows) > c.config.LLMRowCap {
		return FormatDeterministic(merged, hint)
	}

	text, err := c.formatWithLLM(ctx, snap.Query, merged)
	if err != nil {
		c.logger.Info("llm consolidation unavailable, using deterministic formatting", "reason", err)
		return FormatDeterministic(merged, hint)
	}
	return text
}

func (c *Consolidator) formatWithLLM(ctx context.Context, query string, merged *Merged) (string, error) {
	rows, err := json.Marshal(merged.Rows)
	if err != nil {
		return "", fmt.Errorf("failed to encode merged rows: %w", err)
	}

	var prompt strings.Builder
	prompt.WriteString("User asked: ")
	prompt.WriteString(query)
	prompt.WriteString(fmt.Sprintf("\n\nData gathered (%d rows, merge strategy %q", len(merged.Rows), merged.Strategy))
	if merged.JoinKey != "" {
		prompt.WriteString(fmt.Sprintf(", joined on %q", merged.JoinKey))
	}
	prompt.WriteString("):\n")
	prompt.Write(rows)
	prompt.WriteString("\n\nWrite a concise answer to the user's question based only on this data. Use a markdown table when it helps.")

	completion, err := c.gateway.Complete(ctx, "", &llms.Request{
		Messages: []llms.Message{
			{Role: llms.RoleSystem, Content: "You summarize query results for end users. Never invent data."},
			{Role: llms.RoleUser, Content: prompt.String()},
		},
	})
	if err != nil {
		return "", err
	}
	if strings.TrimSpace(completion.Text) == "" {
		return "", fmt.Errorf("empty consolidation answer")
	}
	return completion.Text, nil
}

// partialFailureNote redacts recorded errors to kind plus a short
// description; raw backend messages never reach the user.
func partialFailureNote(snap *Snapshot) string {
	var failed []string
	for _, e := range snap.Errors {
		if e.StepNumber > 0 {
			failed = append(failed, fmt.Sprintf("step %d (%s)", e.StepNumber, e.Kind))
		}
	}
	if len(failed) == 0 {
		return ""
	}
	return fmt.Sprintf("Note: partial data. I could not retrieve everything (%s).",
		strings.Join(failed, ", "))
}
