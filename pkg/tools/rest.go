package tools

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/loom-ai/loom/pkg/config"
	"github.com/loom-ai/loom/pkg/httpclient"
)

// RESTTool calls one HTTP JSON endpoint. Path {param} segments are
// filled from arguments; remaining arguments travel as query
// parameters on GET and as a JSON body otherwise.
type RESTTool struct {
	descriptor *Descriptor
	config     *config.RESTToolConfig
	httpClient *httpclient.Client
}

func NewRESTTool(desc *Descriptor, cfg *config.RESTToolConfig) *RESTTool {
	return &RESTTool{
		descriptor: desc,
		config:     cfg,
		httpClient: httpclient.New(
			httpclient.WithTimeout(time.Duration(cfg.Timeout) * time.Second),
		),
	}
}

func (t *RESTTool) Descriptor() *Descriptor {
	return t.descriptor
}

func (t *RESTTool) Invoke(ctx context.Context, arguments map[string]interface{}) (*Result, error) {
	endpoint, remaining, err := t.buildURL(arguments)
	if err != nil {
		return nil, err
	}

	var body io.Reader
	if t.config.Method != http.MethodGet && len(remaining) > 0 {
		encoded, err := json.Marshal(remaining)
		if err != nil {
			return nil, &ToolError{Kind: ErrBadRequest, Tool: t.descriptor.Name, Message: err.Error(), Err: err}
		}
		body = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, t.config.Method, endpoint, body)
	if err != nil {
		return nil, &ToolError{Kind: ErrBadRequest, Tool: t.descriptor.Name, Message: err.Error(), Err: err}
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range t.config.Headers {
		req.Header.Set(k, v)
	}

	resp, err := t.httpClient.Do(req)
	if err != nil {
		return nil, t.transportError(ctx, err)
	}
	defer func() { _ = resp.Body.Close() }()

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, t.transportError(ctx, err)
	}

	if kind, failed := classifyStatus(resp.StatusCode); failed {
		return nil, &ToolError{
			Kind:    kind,
			Tool:    t.descriptor.Name,
			Message: fmt.Sprintf("status %d: %s", resp.StatusCode, truncate(string(payload), 200)),
		}
	}

	rows, raw := decodeJSONRows(payload)
	return &Result{
		Rows:      rows,
		Raw:       raw,
		SourceTag: t.descriptor.Name,
	}, nil
}

// buildURL substitutes {param} path segments and attaches the rest as
// query parameters for GET requests. It returns the arguments not
// consumed by the path.
func (t *RESTTool) buildURL(arguments map[string]interface{}) (string, map[string]interface{}, error) {
	path := t.config.Path
	remaining := make(map[string]interface{}, len(arguments))
	for k, v := range arguments {
		placeholder := "{" + k + "}"
		if strings.Contains(path, placeholder) {
			path = strings.ReplaceAll(path, placeholder, url.PathEscape(fmt.Sprintf("%v", v)))
		} else {
			remaining[k] = v
		}
	}

	if strings.Contains(path, "{") {
		return "", nil, &ToolError{
			Kind:    ErrBadRequest,
			Tool:    t.descriptor.Name,
			Message: fmt.Sprintf("unresolved path parameters in %q", path),
		}
	}

	endpoint := strings.TrimRight(t.config.BaseURL, "/")
	if path != "" {
		endpoint += "/" + strings.TrimLeft(path, "/")
	}

	if t.config.Method == http.MethodGet && len(remaining) > 0 {
		values := url.Values{}
		for k, v := range remaining {
			values.Set(k, fmt.Sprintf("%v", v))
		}
		endpoint += "?" + values.Encode()
		remaining = nil
	}

	return endpoint, remaining, nil
}

func (t *RESTTool) transportError(ctx context.Context, err error) error {
	kind := ErrUpstream
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		kind = ErrTimeout
	}
	return &ToolError{Kind: kind, Tool: t.descriptor.Name, Message: err.Error(), Err: err}
}

func classifyStatus(status int) (ErrorKind, bool) {
	switch {
	case status >= 200 && status < 300:
		return "", false
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return ErrUnauthorized, true
	case status == http.StatusNotFound:
		return ErrNotFound, true
	case status >= 400 && status < 500:
		return ErrBadRequest, true
	default:
		return ErrUpstream, true
	}
}

// decodeJSONRows normalizes a JSON payload into rows: a top-level
// array of objects maps directly; an object wrapping one array of
// objects unwraps it; any other object becomes a single row. Non-JSON
// payloads produce zero rows with the text retained as raw.
func decodeJSONRows(payload []byte) ([]Row, interface{}) {
	var decoded interface{}
	if err := json.Unmarshal(payload, &decoded); err != nil {
		return nil, string(payload)
	}

	switch v := decoded.(type) {
	case []interface{}:
		return rowsFromList(v), decoded
	case map[string]interface{}:
		for _, value := range v {
			if list, ok := value.([]interface{}); ok {
				if rows := rowsFromList(list); rows != nil {
					return rows, decoded
				}
			}
		}
		return []Row{Row(v)}, decoded
	default:
		return nil, decoded
	}
}

func rowsFromList(list []interface{}) []Row {
	var rows []Row
	for _, item := range list {
		record, ok := item.(map[string]interface{})
		if !ok {
			return nil
		}
		rows = append(rows, Row(record))
	}
	return rows
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
