package tools

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"regexp"
	"strings"

	_ "github.com/go-sql-driver/mysql"
	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"

	"github.com/loom-ai/loom/pkg/config"
)

// SQLTool executes one parameterized statement against a relational
// database. Named :param placeholders are bound from the argument map.
type SQLTool struct {
	descriptor *Descriptor
	db         *sql.DB
	driver     string
	query      string
	maxRows    int
}

// NewSQLTool opens the configured database. The pool is shared across
// invocations; callers own Close.
func NewSQLTool(desc *Descriptor, cfg *config.SQLToolConfig) (*SQLTool, error) {
	db, err := sql.Open(cfg.Driver, cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("failed to open database for tool %q: %w", desc.Name, err)
	}

	return &SQLTool{
		descriptor: desc,
		db:         db,
		driver:     cfg.Driver,
		query:      cfg.Query,
		maxRows:    cfg.MaxRows,
	}, nil
}

func (t *SQLTool) Descriptor() *Descriptor {
	return t.descriptor
}

func (t *SQLTool) Close() error {
	return t.db.Close()
}

var namedParamPattern = regexp.MustCompile(`:([a-zA-Z_][a-zA-Z0-9_]*)`)

// bindQuery rewrites :name placeholders to the driver's positional
// style and collects values in placeholder order.
func (t *SQLTool) bindQuery(arguments map[string]interface{}) (string, []interface{}, error) {
	var values []interface{}
	var missing string

	position := 0
	query := namedParamPattern.ReplaceAllStringFunc(t.query, func(match string) string {
		name := match[1:]
		value, ok := arguments[name]
		if !ok {
			missing = name
			return match
		}
		values = append(values, value)
		position++
		if t.driver == "postgres" {
			return fmt.Sprintf("$%d", position)
		}
		return "?"
	})

	if missing != "" {
		return "", nil, &ToolError{
			Kind:    ErrBadRequest,
			Tool:    t.descriptor.Name,
			Message: fmt.Sprintf("no value bound for query parameter %q", missing),
		}
	}

	return query, values, nil
}

func (t *SQLTool) Invoke(ctx context.Context, arguments map[string]interface{}) (*Result, error) {
	query, values, err := t.bindQuery(arguments)
	if err != nil {
		return nil, err
	}

	rows, err := t.db.QueryContext(ctx, query, values...)
	if err != nil {
		return nil, t.classify(ctx, err)
	}
	defer func() { _ = rows.Close() }()

	columns, err := rows.Columns()
	if err != nil {
		return nil, t.classify(ctx, err)
	}

	var out []Row
	for rows.Next() {
		if t.maxRows > 0 && len(out) >= t.maxRows {
			break
		}

		values := make([]interface{}, len(columns))
		pointers := make([]interface{}, len(columns))
		for i := range values {
			pointers[i] = &values[i]
		}
		if err := rows.Scan(pointers...); err != nil {
			return nil, t.classify(ctx, err)
		}

		record := make(Row, len(columns))
		for i, col := range columns {
			record[col] = normalizeSQLValue(values[i])
		}
		out = append(out, record)
	}
	if err := rows.Err(); err != nil {
		return nil, t.classify(ctx, err)
	}

	return &Result{
		Rows:      out,
		Raw:       out,
		SourceTag: t.descriptor.Name,
	}, nil
}

func normalizeSQLValue(v interface{}) interface{} {
	if b, ok := v.([]byte); ok {
		return string(b)
	}
	return v
}

var schemaErrorMarkers = []string{
	"no such column",
	"no such table",
	"unknown column",
	"does not exist",
	"invalid column",
	"syntax error",
}

func (t *SQLTool) classify(ctx context.Context, err error) error {
	kind := ErrUpstream
	switch {
	case errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded):
		kind = ErrTimeout
	case isSchemaError(err):
		kind = ErrSchemaMismatch
	}

	return &ToolError{
		Kind:    kind,
		Tool:    t.descriptor.Name,
		Message: err.Error(),
		Err:     err,
	}
}

func isSchemaError(err error) bool {
	msg := strings.ToLower(err.Error())
	for _, marker := range schemaErrorMarkers {
		if strings.Contains(msg, marker) {
			return true
		}
	}
	return false
}
