package tools

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"regexp"
	"sort"
	"strings"
	"sync"

	"github.com/loom-ai/loom/pkg/embedders"
	"github.com/loom-ai/loom/pkg/logger"
)

// minRankScore drops candidates that barely relate to the query.
const minRankScore = 0.10

// RegistryErrorKind classifies registry failures.
type RegistryErrorKind string

const (
	ErrDuplicateName RegistryErrorKind = "DUPLICATE_NAME"
	ErrUnknownName   RegistryErrorKind = "UNKNOWN_NAME"
)

// RegistryError is returned by registry operations.
type RegistryError struct {
	Kind RegistryErrorKind
	Name string
}

func (e *RegistryError) Error() string {
	return fmt.Sprintf("tool registry [%s]: %s", e.Kind, e.Name)
}

// Ranked pairs a tool with its relevance score in [0,1].
type Ranked struct {
	Tool  Tool
	Score float64
}

type registeredTool struct {
	tool      Tool
	embedding []float64
}

// Registry holds tools and ranks them against free-text queries.
// Registration happens at startup; read paths are concurrent-safe and
// side-effect free.
type Registry struct {
	mu       sync.RWMutex
	tools    map[string]*registeredTool
	embedder embedders.Provider
	logger   *slog.Logger
}

// NewRegistry creates a registry. A nil embedder disables semantic
// scoring; ranking then uses token overlap only.
func NewRegistry(embedder embedders.Provider) *Registry {
	return &Registry{
		tools:    make(map[string]*registeredTool),
		embedder: embedder,
		logger:   logger.GetLogger(),
	}
}

// RegisterTool adds a tool and precomputes its ranking embedding.
func (r *Registry) RegisterTool(ctx context.Context, tool Tool) error {
	desc := tool.Descriptor()
	if desc == nil || desc.Name == "" {
		return fmt.Errorf("tool descriptor must have a name")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.tools[desc.Name]; exists {
		return &RegistryError{Kind: ErrDuplicateName, Name: desc.Name}
	}

	entry := &registeredTool{tool: tool}
	if r.embedder != nil {
		vec, err := r.embedder.Embed(ctx, desc.rankingText())
		if err != nil {
			r.logger.Warn("tool embedding failed, ranking falls back to token overlap",
				"tool", desc.Name, "error", err)
		} else {
			entry.embedding = vec
		}
	}

	r.tools[desc.Name] = entry
	return nil
}

// Get returns the named tool.
func (r *Registry) Get(name string) (Tool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	entry, exists := r.tools[name]
	if !exists {
		return nil, &RegistryError{Kind: ErrUnknownName, Name: name}
	}
	return entry.tool, nil
}

// ListByClass returns all tools of one data-source class, ordered by name.
func (r *Registry) ListByClass(class DataSourceClass) []Tool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []Tool
	for _, entry := range r.tools {
		if entry.tool.Descriptor().DataSourceClass == class {
			out = append(out, entry.tool)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].Descriptor().Name < out[j].Descriptor().Name
	})
	return out
}

// List returns all tools ordered by name.
func (r *Registry) List() []Tool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []Tool
	for _, entry := range r.tools {
		out = append(out, entry.tool)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].Descriptor().Name < out[j].Descriptor().Name
	})
	return out
}

// Count returns the number of registered tools.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.tools)
}

// Rank scores every tool (optionally filtered by class) against the
// query and returns candidates ordered by score, then priority, then
// name. Candidates scoring below 0.10 are dropped.
func (r *Registry) Rank(ctx context.Context, queryText string, filter *DataSourceClass) []Ranked {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var queryVec []float64
	if r.embedder != nil {
		vec, err := r.embedder.Embed(ctx, queryText)
		if err != nil {
			r.logger.Warn("query embedding failed, ranking falls back to token overlap",
				"error", err)
		} else {
			queryVec = vec
		}
	}

	queryTokens := tokenize(queryText)

	var out []Ranked
	for _, entry := range r.tools {
		desc := entry.tool.Descriptor()
		if filter != nil && desc.DataSourceClass != *filter {
			continue
		}

		var score float64
		if queryVec != nil && entry.embedding != nil {
			score = cosineSimilarity(queryVec, entry.embedding)
		} else {
			score = jaccard(queryTokens, tokenize(desc.rankingText()))
		}

		if score < minRankScore {
			continue
		}
		out = append(out, Ranked{Tool: entry.tool, Score: score})
	}

	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Score != out[j].Score {
			return out[i].Score > out[j].Score
		}
		di, dj := out[i].Tool.Descriptor(), out[j].Tool.Descriptor()
		if di.Priority != dj.Priority {
			return di.Priority > dj.Priority
		}
		return di.Name < dj.Name
	})

	return out
}

var tokenPattern = regexp.MustCompile(`[a-z0-9]+`)

func tokenize(text string) map[string]struct{} {
	tokens := make(map[string]struct{})
	for _, tok := range tokenPattern.FindAllString(strings.ToLower(text), -1) {
		tokens[tok] = struct{}{}
	}
	return tokens
}

func jaccard(a, b map[string]struct{}) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	intersection := 0
	for tok := range a {
		if _, ok := b[tok]; ok {
			intersection++
		}
	}
	union := len(a) + len(b) - intersection
	if union == 0 {
		return 0
	}
	return float64(intersection) / float64(union)
}

// cosineSimilarity maps the raw cosine from [-1,1] into [0,1] so the
// score floor applies uniformly across scoring modes.
func cosineSimilarity(a, b []float64) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += a[i] * b[i]
		normA += a[i] * a[i]
		normB += b[i] * b[i]
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	cos := dot / (math.Sqrt(normA) * math.Sqrt(normB))
	return (cos + 1) / 2
}
