package workflow

import (
	"encoding/json"
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/loom-ai/loom/pkg/tools"
)

// FormatKind names a deterministic output format.
type FormatKind string

const (
	FormatText     FormatKind = "text"
	FormatJSON     FormatKind = "json"
	FormatTable    FormatKind = "table"
	FormatMarkdown FormatKind = "markdown"
	FormatSummary  FormatKind = "summary"
)

const markdownRowThreshold = 20

var formatHintPattern = regexp.MustCompile(`(?i)format\s*[:=]\s*(text|json|table|markdown|summary)`)

// FormatHint extracts an explicit format request from plan notes.
func FormatHint(notes string) (FormatKind, bool) {
	match := formatHintPattern.FindStringSubmatch(notes)
	if match == nil {
		return "", false
	}
	return FormatKind(strings.ToLower(match[1])), true
}

// FormatDeterministic renders merged rows without an LLM. The same
// input always yields the same text.
func FormatDeterministic(merged *Merged, hint FormatKind) string {
	format := chooseFormat(merged, hint)

	switch format {
	case FormatJSON:
		return formatJSON(merged.Rows)
	case FormatTable, FormatMarkdown:
		return formatMarkdownTable(merged.Rows)
	case FormatSummary:
		return formatSummary(merged)
	default:
		return formatText(merged.Rows)
	}
}

func chooseFormat(merged *Merged, hint FormatKind) FormatKind {
	if hint != "" {
		return hint
	}
	switch {
	case len(merged.Rows) == 0:
		return FormatText
	case len(merged.Rows) == 1:
		return FormatText
	case len(merged.Rows) <= markdownRowThreshold:
		return FormatMarkdown
	default:
		return FormatSummary
	}
}

func formatText(rows []tools.Row) string {
	switch len(rows) {
	case 0:
		return "No results were found for your request."
	case 1:
		var b strings.Builder
		for _, key := range sortedColumns(rows) {
			value, ok := rows[0][key]
			if !ok {
				continue
			}
			b.WriteString(fmt.Sprintf("%s: %s\n", key, stringValue(value)))
		}
		return strings.TrimRight(b.String(), "\n")
	default:
		// A multi-row set forced into text renders as a table anyway.
		return formatMarkdownTable(rows)
	}
}

func formatJSON(rows []tools.Row) string {
	if rows == nil {
		rows = []tools.Row{}
	}
	encoded, err := json.MarshalIndent(rows, "", "  ")
	if err != nil {
		return formatMarkdownTable(rows)
	}
	return string(encoded)
}

func formatMarkdownTable(rows []tools.Row) string {
	if len(rows) == 0 {
		return "No results were found for your request."
	}

	columns := sortedColumns(rows)

	var b strings.Builder
	b.WriteString("| ")
	b.WriteString(strings.Join(columns, " | "))
	b.WriteString(" |\n|")
	for range columns {
		b.WriteString(" --- |")
	}
	b.WriteString("\n")

	for _, row := range rows {
		cells := make([]string, len(columns))
		for i, col := range columns {
			cells[i] = strings.ReplaceAll(stringValue(row[col]), "|", "\\|")
		}
		b.WriteString("| ")
		b.WriteString(strings.Join(cells, " | "))
		b.WriteString(" |\n")
	}

	return strings.TrimRight(b.String(), "\n")
}

func formatSummary(merged *Merged) string {
	var b strings.Builder
	b.WriteString(fmt.Sprintf("Found %d results", len(merged.Rows)))
	if len(merged.Sources) > 0 {
		b.WriteString(" across ")
		b.WriteString(fmt.Sprintf("%d sources", len(merged.Sources)))
	}
	b.WriteString(".\n")

	for _, source := range merged.Sources {
		b.WriteString(fmt.Sprintf("- %s: %d rows\n", source, merged.RowCounts[source]))
	}

	if columns := sortedColumns(merged.Rows); len(columns) > 0 {
		b.WriteString("Fields: ")
		b.WriteString(strings.Join(columns, ", "))
	}

	return strings.TrimRight(b.String(), "\n")
}

// sortedColumns returns the union of field names across rows, sorted,
// with provenance columns pushed to the end.
func sortedColumns(rows []tools.Row) []string {
	seen := map[string]bool{}
	for _, row := range rows {
		for col := range row {
			seen[col] = true
		}
	}

	var regular, provenance []string
	for col := range seen {
		if col == "_source" || col == "_sources" {
			provenance = append(provenance, col)
		} else {
			regular = append(regular, col)
		}
	}
	sort.Strings(regular)
	sort.Strings(provenance)
	return append(regular, provenance...)
}
