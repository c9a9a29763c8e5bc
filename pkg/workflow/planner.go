package workflow

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"regexp"
	"strings"

	"github.com/google/uuid"

	"github.com/loom-ai/loom/pkg/llms"
	"github.com/loom-ai/loom/pkg/logger"
	"github.com/loom-ai/loom/pkg/tools"
)

// PlannerErrorKind classifies planner failures.
type PlannerErrorKind string

const (
	ErrLLMUnavailable PlannerErrorKind = "LLM_UNAVAILABLE"
	ErrParseFailed    PlannerErrorKind = "PARSE_FAILED"
	ErrEmptyCatalogue PlannerErrorKind = "EMPTY_CATALOGUE"
)

// PlannerError is returned when planning cannot proceed. LLM_UNAVAILABLE
// and PARSE_FAILED are recovered internally via the heuristic path;
// EMPTY_CATALOGUE surfaces to the caller.
type PlannerError struct {
	Kind    PlannerErrorKind
	Message string
}

func (e *PlannerError) Error() string {
	return fmt.Sprintf("planner [%s]: %s", e.Kind, e.Message)
}

// analysis is the JSON document the planner requests from the LLM and
// reproduces heuristically when the LLM cannot.
type analysis struct {
	Intent                string      `json:"intent"`
	Entities              []string    `json:"entities"`
	RequiredSources       []string    `json:"required_sources"`
	RequiresConsolidation bool        `json:"requires_consolidation"`
	EstimatedComplexity   interface{} `json:"estimated_complexity"`
	Notes                 string      `json:"notes"`
}

// Planner turns (query, context, tool catalogue) into a Plan.
type Planner struct {
	gateway  *llms.Gateway
	registry *tools.Registry
	logger   *slog.Logger
}

func NewPlanner(gateway *llms.Gateway, registry *tools.Registry) *Planner {
	return &Planner{
		gateway:  gateway,
		registry: registry,
		logger:   logger.GetLogger(),
	}
}

// Plan produces a dependency-ordered plan for the query.
func (p *Planner) Plan(ctx context.Context, query string, contextData map[string]interface{}) (*Plan, error) {
	catalogue := p.registry.List()
	if len(catalogue) == 0 {
		return nil, &PlannerError{Kind: ErrEmptyCatalogue, Message: "no tools registered"}
	}

	ranked := p.registry.Rank(ctx, query, nil)

	doc, err := p.analyze(ctx, query, contextData, catalogue)
	if err != nil {
		p.logger.Info("planner analysis falling back to heuristics", "reason", err)
		doc = p.heuristicAnalysis(query, ranked)
	}

	plan := p.buildPlan(query, doc)

	if len(plan.Steps) == 0 {
		p.logger.Warn("analysis produced no usable steps, using single-step fallback")
		plan = p.singleStepFallback(query, ranked, doc)
	} else if err := ValidateDAG(plan); err != nil {
		p.logger.Warn("planner produced an invalid step graph, using single-step fallback", "error", err)
		plan = p.singleStepFallback(query, ranked, doc)
	}

	return plan, nil
}

func (p *Planner) analyze(ctx context.Context, query string, contextData map[string]interface{}, catalogue []tools.Tool) (*analysis, error) {
	prompt := buildAnalysisPrompt(query, contextData, catalogue)

	completion, err := p.gateway.Complete(ctx, "", &llms.Request{
		Messages: []llms.Message{
			{Role: llms.RoleSystem, Content: analysisSystemPrompt},
			{Role: llms.RoleUser, Content: prompt},
		},
	})
	if err != nil {
		return nil, &PlannerError{Kind: ErrLLMUnavailable, Message: err.Error()}
	}

	doc, err := parseAnalysis(completion.Text)
	if err != nil {
		return nil, &PlannerError{Kind: ErrParseFailed, Message: err.Error()}
	}
	return doc, nil
}

const analysisSystemPrompt = `You are a query planner for a data ` +
	`orchestration system. Analyze the user's request and respond with ` +
	`a single JSON object and nothing else:
{
  "intent": "<short verb phrase>",
  "entities": ["<identifiers, names, or values mentioned>"],
  "required_sources": ["sql" | "rest" | "soap", ...],
  "requires_consolidation": <bool>,
  "estimated_complexity": <1-10>,
  "notes": "<optional hints, e.g. format:markdown>"
}`

func buildAnalysisPrompt(query string, contextData map[string]interface{}, catalogue []tools.Tool) string {
	var b strings.Builder
	b.WriteString("User query: ")
	b.WriteString(query)
	b.WriteString("\n")

	if len(contextData) > 0 {
		encoded, err := json.Marshal(contextData)
		if err == nil {
			b.WriteString("Session context: ")
			b.Write(encoded)
			b.WriteString("\n")
		}
	}

	b.WriteString("\nAvailable tools:\n")
	for _, tool := range catalogue {
		desc := tool.Descriptor()
		b.WriteString(fmt.Sprintf("- %s (%s): %s\n",
			desc.Name, desc.DataSourceClass, firstLine(desc.Description)))
	}

	return b.String()
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}

var jsonObjectPattern = regexp.MustCompile(`(?s)\{.*\}`)

func parseAnalysis(text string) (*analysis, error) {
	candidate := jsonObjectPattern.FindString(text)
	if candidate == "" {
		return nil, fmt.Errorf("no JSON object in completion")
	}

	var doc analysis
	if err := json.Unmarshal([]byte(candidate), &doc); err != nil {
		return nil, fmt.Errorf("malformed analysis document: %w", err)
	}
	if len(doc.RequiredSources) == 0 {
		return nil, fmt.Errorf("analysis names no required sources")
	}
	return &doc, nil
}

var (
	idPattern     = regexp.MustCompile(`\b[A-Z0-9_]{6,}\b`)
	readPattern   = regexp.MustCompile(`(?i)\b(list|show|find|search|get|display)\b`)
	dbNounPattern = regexp.MustCompile(`(?i)\b(record|table|database|history|transaction|invoice|order)s?\b`)
	apiNounPattern = regexp.MustCompile(`(?i)\b(alert|status|service|endpoint|user|account|ticket)s?\b`)
)

// heuristicAnalysis reproduces the analysis document by keyword rules
// when the LLM is unavailable or unparseable.
func (p *Planner) heuristicAnalysis(query string, ranked []tools.Ranked) *analysis {
	doc := &analysis{
		Intent:              "read",
		EstimatedComplexity: "low",
	}
	if !readPattern.MatchString(query) {
		doc.Intent = "query"
	}

	doc.Entities = idPattern.FindAllString(query, -1)
	if len(doc.Entities) > 0 {
		doc.Intent = "lookup"
	}

	// Source selection follows the ranked catalogue: the top-ranked
	// tool's class always participates; a second class joins when the
	// query mixes API-ish and DB-ish vocabulary.
	wantTwo := dbNounPattern.MatchString(query) && apiNounPattern.MatchString(query)
	seen := map[string]bool{}
	for _, r := range ranked {
		source := sourceKey(r.Tool.Descriptor().DataSourceClass)
		if seen[source] {
			continue
		}
		seen[source] = true
		doc.RequiredSources = append(doc.RequiredSources, source)
		if len(doc.RequiredSources) == 2 || !wantTwo {
			break
		}
	}

	// Nothing cleared the ranking floor: fall back to the first
	// registered tool's class so the run still produces an answer.
	if len(doc.RequiredSources) == 0 {
		if catalogue := p.registry.List(); len(catalogue) > 0 {
			doc.RequiredSources = []string{sourceKey(catalogue[0].Descriptor().DataSourceClass)}
		}
	}

	doc.RequiresConsolidation = len(doc.RequiredSources) > 1
	if doc.RequiresConsolidation {
		doc.EstimatedComplexity = "med"
	}
	return doc
}

func sourceKey(class tools.DataSourceClass) string {
	switch class {
	case tools.ClassRelationalDB:
		return "sql"
	case tools.ClassSOAPAPI:
		return "soap"
	default:
		return "rest"
	}
}

func classForSource(source string) (tools.DataSourceClass, bool) {
	switch strings.ToLower(strings.TrimSpace(source)) {
	case "sql", "db", "database", "relational_db":
		return tools.ClassRelationalDB, true
	case "rest", "api", "rest_api", "http":
		return tools.ClassRESTAPI, true
	case "soap", "soap_api":
		return tools.ClassSOAPAPI, true
	default:
		return "", false
	}
}

func (p *Planner) buildPlan(query string, doc *analysis) *Plan {
	plan := &Plan{
		PlanID:              uuid.NewString(),
		Query:               query,
		EstimatedComplexity: normalizeComplexity(doc.EstimatedComplexity),
		Notes:               doc.Notes,
	}

	hints := ExtractHints(query)
	shareIdentifier := len(doc.Entities) > 0

	for _, source := range doc.RequiredSources {
		class, ok := classForSource(source)
		if !ok {
			p.logger.Warn("analysis named an unknown source, skipping", "source", source)
			continue
		}
		agentType, err := AgentTypeFor(class)
		if err != nil {
			continue
		}

		stepNumber := len(plan.Steps) + 1
		step := Step{
			StepNumber:      stepNumber,
			Description:     fmt.Sprintf("%s via %s: %s", doc.Intent, strings.ToLower(source), query),
			AgentType:       agentType,
			DataSourceClass: class,
			ParameterHints:  hints,
			Status:          StepPending,
		}
		// Later steps consume identifiers produced by earlier ones.
		if shareIdentifier && stepNumber > 1 {
			step.DependsOn = []int{stepNumber - 1}
		}
		plan.Steps = append(plan.Steps, step)
	}

	plan.RequiresConsolidation = len(plan.Steps) > 1 || doc.RequiresConsolidation
	return plan
}

// singleStepFallback builds a one-step plan from the highest-ranked
// tool (or the first registered tool when ranking is empty).
func (p *Planner) singleStepFallback(query string, ranked []tools.Ranked, doc *analysis) *Plan {
	class := tools.ClassRESTAPI
	if len(ranked) > 0 {
		class = ranked[0].Tool.Descriptor().DataSourceClass
	} else if catalogue := p.registry.List(); len(catalogue) > 0 {
		class = catalogue[0].Descriptor().DataSourceClass
	}

	agentType, _ := AgentTypeFor(class)
	notes := ""
	if doc != nil {
		notes = doc.Notes
	}

	return &Plan{
		PlanID: uuid.NewString(),
		Query:  query,
		Steps: []Step{{
			StepNumber:      1,
			Description:     query,
			AgentType:       agentType,
			DataSourceClass: class,
			ParameterHints:  ExtractHints(query),
			Status:          StepPending,
		}},
		RequiresConsolidation: false,
		EstimatedComplexity:   ComplexityLow,
		Notes:                 notes,
	}
}

// ValidateDAG rejects plans whose depends_on sets contain self or
// forward references. Step numbers are ordinals, so acyclicity reduces
// to every dependency pointing strictly backwards.
func ValidateDAG(plan *Plan) error {
	known := make(map[int]bool, len(plan.Steps))
	for i, step := range plan.Steps {
		if step.StepNumber != i+1 {
			return fmt.Errorf("step %d has ordinal %d", i+1, step.StepNumber)
		}
		for _, dep := range step.DependsOn {
			if dep == step.StepNumber {
				return fmt.Errorf("step %d depends on itself", step.StepNumber)
			}
			if dep > step.StepNumber {
				return fmt.Errorf("step %d has forward dependency on %d", step.StepNumber, dep)
			}
			if dep < 1 || !known[dep] {
				return fmt.Errorf("step %d depends on invalid step %d", step.StepNumber, dep)
			}
		}
		known[step.StepNumber] = true
	}
	return nil
}

func normalizeComplexity(raw interface{}) Complexity {
	switch v := raw.(type) {
	case string:
		switch strings.ToLower(v) {
		case "low":
			return ComplexityLow
		case "med", "medium":
			return ComplexityMed
		case "high":
			return ComplexityHigh
		}
	case float64:
		switch {
		case v <= 3:
			return ComplexityLow
		case v <= 7:
			return ComplexityMed
		default:
			return ComplexityHigh
		}
	}
	return ComplexityLow
}

var (
	datePattern   = regexp.MustCompile(`\b\d{4}-\d{2}-\d{2}\b`)
	statusPattern = regexp.MustCompile(`(?i)\b(open|closed|active|inactive|pending|failed|resolved|high|low|critical)\b`)
)

// ExtractHints lifts partially-bound arguments from raw query text:
// ID-like tokens, ISO dates, and status words.
func ExtractHints(query string) map[string]interface{} {
	hints := map[string]interface{}{}

	if ids := idPattern.FindAllString(query, -1); len(ids) > 0 {
		hints["id"] = ids[0]
		if len(ids) > 1 {
			hints["ids"] = ids
		}
	}
	if dates := datePattern.FindAllString(query, -1); len(dates) > 0 {
		hints["date"] = dates[0]
	}
	if statuses := statusPattern.FindAllString(query, -1); len(statuses) > 0 {
		hints["status"] = strings.ToLower(statuses[0])
	}

	if len(hints) == 0 {
		return nil
	}
	return hints
}
