// Package session hosts the WebSocket chat surface: typed frames, the
// per-connection session store with retention, and the handler that
// bridges inbound chat messages onto workflow runs.
package session

// FrameType discriminates wire frames in both directions.
type FrameType string

// Inbound frame types.
const (
	FrameChat          FrameType = "chat"
	FrameContextUpdate FrameType = "context_update"
	FramePing          FrameType = "ping"
)

// Outbound frame types.
const (
	FrameConnectionEstablished FrameType = "connection_established"
	FrameMessageReceived       FrameType = "message_received"
	FrameWorkflowProgress      FrameType = "workflow_progress"
	FrameStreamChunk           FrameType = "stream_chunk"
	FrameStreamComplete        FrameType = "stream_complete"
	FrameError                 FrameType = "error"
	FramePong                  FrameType = "pong"
)

// Frame is the single JSON envelope used on the chat socket. Fields
// are populated per type; absent fields are omitted on the wire.
type Frame struct {
	Type      FrameType              `json:"type"`
	SessionID string                 `json:"session_id,omitempty"`
	MessageID string                 `json:"message_id,omitempty"`
	Content   string                 `json:"content,omitempty"`
	Node      string                 `json:"node,omitempty"`
	Context   map[string]interface{} `json:"context,omitempty"`
	Error     string                 `json:"error,omitempty"`
}
