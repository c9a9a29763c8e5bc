package tools

import (
	"bytes"
	"context"
	"encoding/xml"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/loom-ai/loom/pkg/config"
	"github.com/loom-ai/loom/pkg/httpclient"
)

// SOAPTool calls one SOAP 1.1 operation. The operation name is part of
// tool identity; there is no dynamic operation dispatch.
type SOAPTool struct {
	descriptor *Descriptor
	config     *config.SOAPToolConfig
	httpClient *httpclient.Client
}

func NewSOAPTool(desc *Descriptor, cfg *config.SOAPToolConfig) *SOAPTool {
	return &SOAPTool{
		descriptor: desc,
		config:     cfg,
		httpClient: httpclient.New(
			httpclient.WithTimeout(time.Duration(cfg.Timeout) * time.Second),
		),
	}
}

func (t *SOAPTool) Descriptor() *Descriptor {
	return t.descriptor
}

func (t *SOAPTool) Invoke(ctx context.Context, arguments map[string]interface{}) (*Result, error) {
	envelope := t.buildEnvelope(arguments)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		t.config.Endpoint, strings.NewReader(envelope))
	if err != nil {
		return nil, &ToolError{Kind: ErrBadRequest, Tool: t.descriptor.Name, Message: err.Error(), Err: err}
	}
	req.Header.Set("Content-Type", "text/xml; charset=utf-8")
	if t.config.Action != "" {
		req.Header.Set("SOAPAction", t.config.Action)
	}

	resp, err := t.httpClient.Do(req)
	if err != nil {
		kind := ErrUpstream
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
			kind = ErrTimeout
		}
		return nil, &ToolError{Kind: kind, Tool: t.descriptor.Name, Message: err.Error(), Err: err}
	}
	defer func() { _ = resp.Body.Close() }()

	var root xmlNode
	if err := xml.NewDecoder(resp.Body).Decode(&root); err != nil {
		return nil, &ToolError{
			Kind:    ErrUpstream,
			Tool:    t.descriptor.Name,
			Message: fmt.Sprintf("malformed envelope: %v", err),
			Err:     err,
		}
	}

	body := root.child("Body")
	if body == nil {
		return nil, &ToolError{Kind: ErrUpstream, Tool: t.descriptor.Name, Message: "response has no Body element"}
	}

	if fault := body.child("Fault"); fault != nil {
		message := "soap fault"
		if s := fault.child("faultstring"); s != nil {
			message = strings.TrimSpace(s.Content)
		}
		return nil, &ToolError{Kind: ErrUpstream, Tool: t.descriptor.Name, Message: message}
	}
	if resp.StatusCode != http.StatusOK {
		kind, _ := classifyStatus(resp.StatusCode)
		return nil, &ToolError{
			Kind:    kind,
			Tool:    t.descriptor.Name,
			Message: fmt.Sprintf("status %d", resp.StatusCode),
		}
	}

	return &Result{
		Rows:      body.toRows(),
		Raw:       envelopeText(body),
		SourceTag: t.descriptor.Name,
	}, nil
}

func (t *SOAPTool) buildEnvelope(arguments map[string]interface{}) string {
	var params strings.Builder
	for _, param := range t.descriptor.Parameters {
		value, ok := arguments[param.Name]
		if !ok {
			continue
		}
		params.WriteString(fmt.Sprintf("<%s>%s</%s>",
			param.Name, escapeXML(fmt.Sprintf("%v", value)), param.Name))
	}

	operation := t.config.Operation
	open := operation
	if t.config.Namespace != "" {
		open = fmt.Sprintf("%s xmlns=%q", operation, t.config.Namespace)
	}

	return fmt.Sprintf(
		`<?xml version="1.0" encoding="utf-8"?>`+
			`<soap:Envelope xmlns:soap="http://schemas.xmlsoap.org/soap/envelope/">`+
			`<soap:Body><%s>%s</%s></soap:Body></soap:Envelope>`,
		open, params.String(), operation)
}

func escapeXML(s string) string {
	var buf bytes.Buffer
	_ = xml.EscapeText(&buf, []byte(s))
	return buf.String()
}

// xmlNode is a schema-free XML tree used to flatten arbitrary SOAP
// responses into rows.
type xmlNode struct {
	XMLName xml.Name
	Content string    `xml:",chardata"`
	Nodes   []xmlNode `xml:",any"`
}

func (n *xmlNode) child(local string) *xmlNode {
	for i := range n.Nodes {
		if n.Nodes[i].XMLName.Local == local {
			return &n.Nodes[i]
		}
	}
	return nil
}

// toRows flattens the deepest repeating element group into rows: each
// element with child elements becomes one row of leaf name/text pairs.
// A body holding only leaves becomes a single row.
func (n *xmlNode) toRows() []Row {
	group := n.findRepeatingGroup()
	if group == nil {
		if row := n.leafRow(); len(row) > 0 {
			return []Row{row}
		}
		return nil
	}

	var rows []Row
	for i := range group.Nodes {
		if row := group.Nodes[i].leafRow(); len(row) > 0 {
			rows = append(rows, row)
		}
	}
	return rows
}

func (n *xmlNode) findRepeatingGroup() *xmlNode {
	structured := 0
	for i := range n.Nodes {
		if len(n.Nodes[i].Nodes) > 0 {
			structured++
		}
	}
	if structured > 1 {
		return n
	}
	for i := range n.Nodes {
		if group := n.Nodes[i].findRepeatingGroup(); group != nil {
			return group
		}
	}
	if structured == 1 {
		for i := range n.Nodes {
			if len(n.Nodes[i].Nodes) > 0 {
				return n
			}
		}
	}
	return nil
}

func (n *xmlNode) leafRow() Row {
	row := Row{}
	for i := range n.Nodes {
		child := &n.Nodes[i]
		if len(child.Nodes) == 0 {
			if text := strings.TrimSpace(child.Content); text != "" {
				row[child.XMLName.Local] = text
			}
		}
	}
	return row
}

func envelopeText(n *xmlNode) string {
	encoded, err := xml.Marshal(n)
	if err != nil {
		return ""
	}
	return string(encoded)
}
