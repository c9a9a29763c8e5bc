package session

import (
	"context"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/loom-ai/loom/pkg/workflow"
)

// scriptedRunner replays canned workflow events for every message.
type scriptedRunner struct {
	events []workflow.Event

	// contexts receives the run context map of each started run.
	contexts chan map[string]interface{}
}

func (r *scriptedRunner) Run(ctx context.Context, state *workflow.State) <-chan workflow.Event {
	ch := make(chan workflow.Event)
	go func() {
		defer close(ch)
		if r.contexts != nil {
			r.contexts <- state.Snapshot().Context
		}
		for _, event := range r.events {
			select {
			case ch <- event:
			case <-ctx.Done():
				return
			}
		}
	}()
	return ch
}

// blockingRunner parks until its run context is cancelled.
type blockingRunner struct {
	started   chan struct{}
	cancelled chan struct{}
}

func (r *blockingRunner) Run(ctx context.Context, state *workflow.State) <-chan workflow.Event {
	ch := make(chan workflow.Event)
	go func() {
		defer close(ch)
		close(r.started)
		<-ctx.Done()
		close(r.cancelled)
	}()
	return ch
}

func dialChat(t *testing.T, runner Runner) (*websocket.Conn, *Manager, func()) {
	t.Helper()

	manager := NewManager(testTransportConfig())
	server := httptest.NewServer(NewHandler(runner, manager, testTransportConfig()))

	url := "ws" + strings.TrimPrefix(server.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)

	return conn, manager, func() {
		conn.Close()
		server.Close()
	}
}

func readFrame(t *testing.T, conn *websocket.Conn) Frame {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	var frame Frame
	require.NoError(t, conn.ReadJSON(&frame))
	return frame
}

func TestHandler_ChatRoundTrip(t *testing.T) {
	runner := &scriptedRunner{events: []workflow.Event{
		{Kind: workflow.EventNode, Node: workflow.NodeSupervisor},
		{Kind: workflow.EventNode, Node: workflow.NodeRESTAgent},
		{Kind: workflow.EventNode, Node: workflow.NodeConsolidator},
		{Kind: workflow.EventComplete, FinalResponse: "2 open alerts: A1, A2"},
	}}

	conn, _, teardown := dialChat(t, runner)
	defer teardown()

	established := readFrame(t, conn)
	require.Equal(t, FrameConnectionEstablished, established.Type)
	assert.NotEmpty(t, established.SessionID)

	require.NoError(t, conn.WriteJSON(Frame{
		Type: FrameChat, MessageID: "m1", Content: "show open alerts",
	}))

	received := readFrame(t, conn)
	assert.Equal(t, FrameMessageReceived, received.Type)
	assert.Equal(t, "m1", received.MessageID)

	// Progress frames arrive in production order before the answer.
	var nodes []string
	for i := 0; i < 3; i++ {
		frame := readFrame(t, conn)
		require.Equal(t, FrameWorkflowProgress, frame.Type)
		nodes = append(nodes, frame.Node)
	}
	assert.Equal(t, []string{"SUPERVISOR", "REST_AGENT", "CONSOLIDATOR"}, nodes)

	chunk := readFrame(t, conn)
	require.Equal(t, FrameStreamChunk, chunk.Type)
	assert.Equal(t, "2 open alerts: A1, A2", chunk.Content)

	complete := readFrame(t, conn)
	assert.Equal(t, FrameStreamComplete, complete.Type)
	assert.Equal(t, "m1", complete.MessageID)
}

func TestHandler_PingPong(t *testing.T) {
	conn, _, teardown := dialChat(t, &scriptedRunner{})
	defer teardown()

	readFrame(t, conn) // connection_established

	require.NoError(t, conn.WriteJSON(Frame{Type: FramePing}))
	assert.Equal(t, FramePong, readFrame(t, conn).Type)
}

func TestHandler_EmptyChatRejected(t *testing.T) {
	conn, _, teardown := dialChat(t, &scriptedRunner{})
	defer teardown()

	readFrame(t, conn)

	require.NoError(t, conn.WriteJSON(Frame{Type: FrameChat, MessageID: "m1", Content: "   "}))

	frame := readFrame(t, conn)
	assert.Equal(t, FrameError, frame.Type)
	assert.Equal(t, "m1", frame.MessageID)
}

func TestHandler_UnknownFrameTypeIgnored(t *testing.T) {
	conn, _, teardown := dialChat(t, &scriptedRunner{})
	defer teardown()

	readFrame(t, conn)

	require.NoError(t, conn.WriteJSON(map[string]interface{}{"type": "bogus", "payload": 42}))
	require.NoError(t, conn.WriteJSON(Frame{Type: FramePing}))

	// The unknown frame produced nothing; the ping still answers.
	assert.Equal(t, FramePong, readFrame(t, conn).Type)
}

func TestHandler_ContextUpdateReachesRun(t *testing.T) {
	runner := &scriptedRunner{
		events:   []workflow.Event{{Kind: workflow.EventComplete, FinalResponse: "done"}},
		contexts: make(chan map[string]interface{}, 1),
	}

	conn, _, teardown := dialChat(t, runner)
	defer teardown()

	readFrame(t, conn)

	require.NoError(t, conn.WriteJSON(Frame{
		Type:    FrameContextUpdate,
		Context: map[string]interface{}{"region": "eu"},
	}))
	require.NoError(t, conn.WriteJSON(Frame{Type: FrameChat, Content: "alerts in my region"}))

	select {
	case runContext := <-runner.contexts:
		assert.Equal(t, "eu", runContext["region"])
	case <-time.After(5 * time.Second):
		t.Fatal("run never started")
	}
}

func TestHandler_DisconnectCancelsRun(t *testing.T) {
	runner := &blockingRunner{
		started:   make(chan struct{}),
		cancelled: make(chan struct{}),
	}

	conn, _, teardown := dialChat(t, runner)
	defer teardown()

	readFrame(t, conn)
	require.NoError(t, conn.WriteJSON(Frame{Type: FrameChat, Content: "slow question"}))

	select {
	case <-runner.started:
	case <-time.After(5 * time.Second):
		t.Fatal("run never started")
	}

	conn.Close()

	select {
	case <-runner.cancelled:
	case <-time.After(5 * time.Second):
		t.Fatal("run context was not cancelled on disconnect")
	}
}

func TestHandler_SessionResumedAcrossConnections(t *testing.T) {
	manager := NewManager(testTransportConfig())
	server := httptest.NewServer(NewHandler(&scriptedRunner{}, manager, testTransportConfig()))
	defer server.Close()

	url := "ws" + strings.TrimPrefix(server.URL, "http")

	first, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	sessionID := readFrame(t, first).SessionID
	first.Close()

	second, _, err := websocket.DefaultDialer.Dial(url+"?session_id="+sessionID, nil)
	require.NoError(t, err)
	defer second.Close()

	assert.Equal(t, sessionID, readFrame(t, second).SessionID)
	assert.Equal(t, 1, manager.Count())
}

func TestHandler_BusySessionRejectsSecondMessage(t *testing.T) {
	runner := &blockingRunner{
		started:   make(chan struct{}),
		cancelled: make(chan struct{}),
	}

	conn, _, teardown := dialChat(t, runner)
	defer teardown()

	readFrame(t, conn)
	require.NoError(t, conn.WriteJSON(Frame{Type: FrameChat, MessageID: "m1", Content: "first"}))

	select {
	case <-runner.started:
	case <-time.After(5 * time.Second):
		t.Fatal("run never started")
	}

	received := readFrame(t, conn)
	require.Equal(t, FrameMessageReceived, received.Type)
	require.Equal(t, "m1", received.MessageID)

	// The queue holds one pending message; the third chat overflows it.
	require.NoError(t, conn.WriteJSON(Frame{Type: FrameChat, MessageID: "m2", Content: "second"}))
	require.NoError(t, conn.WriteJSON(Frame{Type: FrameChat, MessageID: "m3", Content: "third"}))

	frame := readFrame(t, conn)
	assert.Equal(t, FrameError, frame.Type)
	assert.Equal(t, "m3", frame.MessageID)
}
