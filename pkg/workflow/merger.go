package workflow

import (
	"encoding/json"
	"sort"
	"strings"

	"github.com/loom-ai/loom/pkg/tools"
)

// MergeStrategy names how results were combined.
type MergeStrategy string

const (
	StrategyJoin   MergeStrategy = "join"
	StrategyConcat MergeStrategy = "concat"
	StrategySingle MergeStrategy = "single"
)

// Merged is the consolidator's intermediate product.
type Merged struct {
	Rows      []tools.Row
	Strategy  MergeStrategy
	JoinKey   string
	Sources   []string
	RowCounts map[string]int
}

type sourceRows struct {
	tag  string
	rows []tools.Row
}

// MergeResults combines rows from heterogeneous agent results. When
// every non-empty source shares an ID-like column, rows are outer-joined
// on it; otherwise they are concatenated with provenance tags. Merged
// output is deduplicated on the full key set, first occurrence kept; a
// single source's rows pass through exactly as the tool returned them.
func MergeResults(results []AgentResult) *Merged {
	var sources []sourceRows
	for _, result := range results {
		if !result.OK || len(result.Rows) == 0 {
			continue
		}
		sources = append(sources, sourceRows{tag: result.ToolName, rows: result.Rows})
	}

	merged := &Merged{RowCounts: map[string]int{}}
	for _, src := range sources {
		merged.Sources = append(merged.Sources, src.tag)
		merged.RowCounts[src.tag] += len(src.rows)
	}

	switch {
	case len(sources) == 0:
		merged.Strategy = StrategySingle
	case len(sources) == 1:
		merged.Strategy = StrategySingle
		merged.Rows = sources[0].rows
	default:
		if key := sharedIDColumn(sources); key != "" {
			merged.Strategy = StrategyJoin
			merged.JoinKey = key
			merged.Rows = dedupe(joinRows(sources, key))
		} else {
			merged.Strategy = StrategyConcat
			merged.Rows = dedupe(concatRows(sources))
		}
	}

	return merged
}

// IsIDLikeColumn reports whether a column name can act as a join key:
// it equals "id", ends with _id/_key/_no/_number, or contains uuid/guid.
func IsIDLikeColumn(name string) bool {
	lower := strings.ToLower(name)
	if lower == "id" {
		return true
	}
	for _, suffix := range []string{"_id", "_key", "_no", "_number"} {
		if strings.HasSuffix(lower, suffix) {
			return true
		}
	}
	return strings.Contains(lower, "uuid") || strings.Contains(lower, "guid")
}

// sharedIDColumn returns the lexicographically first ID-like column
// present in every source's first row, or "".
func sharedIDColumn(sources []sourceRows) string {
	if len(sources) == 0 {
		return ""
	}

	shared := columnSet(sources[0].rows[0])
	for _, src := range sources[1:] {
		columns := columnSet(src.rows[0])
		for col := range shared {
			if !columns[col] {
				delete(shared, col)
			}
		}
	}

	var candidates []string
	for col := range shared {
		if IsIDLikeColumn(col) {
			candidates = append(candidates, col)
		}
	}
	if len(candidates) == 0 {
		return ""
	}
	sort.Strings(candidates)
	return candidates[0]
}

func columnSet(row tools.Row) map[string]bool {
	out := make(map[string]bool, len(row))
	for col := range row {
		out[col] = true
	}
	return out
}

// joinRows buckets rows by the join column value and merges each bucket
// by keyed union. Earlier sources win on non-null collisions; the
// colliding later value is kept under <field>__<source_tag>. Rows whose
// key appears in only some sources are retained (outer join).
func joinRows(sources []sourceRows, key string) []tools.Row {
	type bucket struct {
		row     tools.Row
		sources []string
	}

	var order []string
	buckets := map[string]*bucket{}

	for _, src := range sources {
		for _, row := range src.rows {
			keyValue := stringValue(row[key])

			b, exists := buckets[keyValue]
			if !exists {
				b = &bucket{row: tools.Row{}}
				buckets[keyValue] = b
				order = append(order, keyValue)
			}

			for field, value := range row {
				existing, present := b.row[field]
				switch {
				case !present || existing == nil:
					b.row[field] = value
				case value == nil || existing == value:
					// keep the earlier value
				default:
					b.row[field+"__"+src.tag] = value
				}
			}

			if !contains(b.sources, src.tag) {
				b.sources = append(b.sources, src.tag)
			}
		}
	}

	out := make([]tools.Row, 0, len(order))
	for _, keyValue := range order {
		b := buckets[keyValue]
		tags := make([]interface{}, len(b.sources))
		for i, tag := range b.sources {
			tags[i] = tag
		}
		b.row["_sources"] = tags
		out = append(out, b.row)
	}
	return out
}

func concatRows(sources []sourceRows) []tools.Row {
	var out []tools.Row
	for _, src := range sources {
		for _, row := range src.rows {
			tagged := make(tools.Row, len(row)+1)
			for k, v := range row {
				tagged[k] = v
			}
			tagged["_source"] = src.tag
			out = append(out, tagged)
		}
	}
	return out
}

// dedupe removes rows that are identical on their full key set,
// preserving first occurrence. Identity is a canonical JSON rendering
// with sorted keys.
func dedupe(rows []tools.Row) []tools.Row {
	seen := make(map[string]bool, len(rows))
	out := make([]tools.Row, 0, len(rows))
	for _, row := range rows {
		key := canonicalKey(row)
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, row)
	}
	return out
}

func canonicalKey(row tools.Row) string {
	keys := make([]string, 0, len(row))
	for k := range row {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	for _, k := range keys {
		b.WriteString(k)
		b.WriteByte('=')
		encoded, err := json.Marshal(row[k])
		if err != nil {
			b.WriteString(stringValue(row[k]))
		} else {
			b.Write(encoded)
		}
		b.WriteByte(';')
	}
	return b.String()
}

func stringValue(v interface{}) string {
	if v == nil {
		return ""
	}
	if s, ok := v.(string); ok {
		return s
	}
	encoded, err := json.Marshal(v)
	if err != nil {
		return ""
	}
	return string(encoded)
}

func contains(list []string, item string) bool {
	for _, s := range list {
		if s == item {
			return true
		}
	}
	return false
}
