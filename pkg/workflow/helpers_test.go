package workflow

import (
	"context"
	"fmt"
	"sync"

	"github.com/loom-ai/loom/pkg/config"
	"github.com/loom-ai/loom/pkg/llms"
	"github.com/loom-ai/loom/pkg/tools"
)

// scriptedProvider replays canned payloads, one per Complete call. A
// nil payload produces an error.
type scriptedProvider struct {
	mu       sync.Mutex
	payloads []map[string]interface{}
	err      error
}

func (p *scriptedProvider) Complete(ctx context.Context, req *llms.Request) (*llms.Response, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if p.err != nil {
		return nil, p.err
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.payloads) == 0 {
		return nil, fmt.Errorf("scripted provider exhausted")
	}
	payload := p.payloads[0]
	p.payloads = p.payloads[1:]
	return &llms.Response{Raw: payload}, nil
}

func (p *scriptedProvider) ModelName() string { return "scripted" }
func (p *scriptedProvider) Close() error      { return nil }

func newScriptedGateway(payloads ...map[string]interface{}) *llms.Gateway {
	g := llms.NewGateway()
	_ = g.RegisterProvider("main", &scriptedProvider{payloads: payloads})
	return g
}

func newFailingGateway(err error) *llms.Gateway {
	g := llms.NewGateway()
	_ = g.RegisterProvider("main", &scriptedProvider{err: err})
	return g
}

func textPayload(text string) map[string]interface{} {
	return map[string]interface{}{"text": text}
}

// stubTool is a canned tool for registry-backed tests.
type stubTool struct {
	desc *tools.Descriptor
	rows []tools.Row
	err  error

	invoked chan map[string]interface{}
}

func (s *stubTool) Descriptor() *tools.Descriptor { return s.desc }

func (s *stubTool) Invoke(ctx context.Context, arguments map[string]interface{}) (*tools.Result, error) {
	if s.invoked != nil {
		select {
		case s.invoked <- arguments:
		default:
		}
	}
	if s.err != nil {
		return nil, s.err
	}
	return &tools.Result{
		Rows:      s.rows,
		SourceTag: s.desc.Name,
	}, nil
}

func newStubTool(name string, class tools.DataSourceClass, description string, rows []tools.Row) *stubTool {
	return &stubTool{
		desc: &tools.Descriptor{
			Name:            name,
			Description:     description,
			DataSourceClass: class,
		},
		rows: rows,
	}
}

func testWorkflowConfig() *config.WorkflowConfig {
	cfg := &config.WorkflowConfig{}
	cfg.SetDefaults()
	return cfg
}

func testRouterConfig() *config.RouterConfig {
	cfg := &config.RouterConfig{}
	cfg.SetDefaults()
	return cfg
}

func testConsolidatorConfig() *config.ConsolidatorConfig {
	cfg := &config.ConsolidatorConfig{}
	cfg.SetDefaults()
	return cfg
}
