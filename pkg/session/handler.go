package session

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/loom-ai/loom/pkg/config"
	"github.com/loom-ai/loom/pkg/logger"
	"github.com/loom-ai/loom/pkg/workflow"
)

// writeWait bounds a single frame write.
const writeWait = 10 * time.Second

// Runner starts one workflow run for a user message. Implemented by
// workflow.Driver.
type Runner interface {
	Run(ctx context.Context, state *workflow.State) <-chan workflow.Event
}

// Handler upgrades chat connections and bridges frames onto workflow
// runs. One chat message is processed at a time per connection; frames
// for a message leave in production order through a bounded queue.
type Handler struct {
	runner   Runner
	manager  *Manager
	cfg      *config.TransportConfig
	upgrader websocket.Upgrader
	logger   *slog.Logger
}

func NewHandler(runner Runner, manager *Manager, cfg *config.TransportConfig) *Handler {
	return &Handler{
		runner:  runner,
		manager: manager,
		cfg:     cfg,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			// The socket is an API surface; origin policy belongs to the
			// deployment in front of it.
			CheckOrigin: func(*http.Request) bool { return true },
		},
		logger: logger.GetLogger(),
	}
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", "error", err)
		return
	}

	sess, resumed := h.manager.GetOrCreate(r.URL.Query().Get("session_id"))
	h.logger.Info("chat connection opened", "session_id", sess.ID(), "resumed", resumed)

	connCtx, cancel := context.WithCancel(r.Context())
	defer cancel()

	conn.SetReadLimit(h.cfg.MaxFrameBytes)

	pingInterval := time.Duration(h.cfg.IdlePingSeconds) * time.Second
	pongWait := 2 * pingInterval
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	outbound := make(chan Frame, h.cfg.SendQueueSize)
	go h.writeLoop(connCtx, cancel, conn, outbound, pingInterval)

	chatQueue := make(chan Frame, 1)
	go h.chatLoop(connCtx, sess, chatQueue, outbound)

	h.send(connCtx, outbound, Frame{Type: FrameConnectionEstablished, SessionID: sess.ID()})

	h.readLoop(connCtx, sess, conn, chatQueue, outbound)

	// Reader gone: cancel the in-flight run so no further frames are
	// produced for a client that left.
	cancel()
	h.logger.Info("chat connection closed", "session_id", sess.ID())
}

func (h *Handler) readLoop(ctx context.Context, sess *Session, conn *websocket.Conn, chatQueue chan<- Frame, outbound chan<- Frame) {
	for {
		var frame Frame
		if err := conn.ReadJSON(&frame); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				h.logger.Warn("chat read failed", "session_id", sess.ID(), "error", err)
			}
			return
		}
		framesTotal.WithLabelValues("in", string(frame.Type)).Inc()
		sess.Touch()

		switch frame.Type {
		case FramePing:
			h.send(ctx, outbound, Frame{Type: FramePong, SessionID: sess.ID()})

		case FrameContextUpdate:
			sess.MergeContext(frame.Context)

		case FrameChat:
			if strings.TrimSpace(frame.Content) == "" {
				h.send(ctx, outbound, Frame{
					Type:      FrameError,
					SessionID: sess.ID(),
					MessageID: frame.MessageID,
					Error:     "chat message content is empty",
				})
				continue
			}
			select {
			case chatQueue <- frame:
			case <-ctx.Done():
				return
			default:
				h.send(ctx, outbound, Frame{
					Type:      FrameError,
					SessionID: sess.ID(),
					MessageID: frame.MessageID,
					Error:     "a message is already being processed on this session",
				})
			}

		default:
			h.logger.Debug("ignoring unknown frame type",
				"session_id", sess.ID(), "frame_type", frame.Type)
		}
	}
}

// chatLoop serializes message processing for one connection.
func (h *Handler) chatLoop(ctx context.Context, sess *Session, chatQueue <-chan Frame, outbound chan<- Frame) {
	for {
		select {
		case <-ctx.Done():
			return
		case frame := <-chatQueue:
			h.runMessage(ctx, sess, frame, outbound)
		}
	}
}

func (h *Handler) runMessage(ctx context.Context, sess *Session, frame Frame, outbound chan<- Frame) {
	messageID := frame.MessageID
	if messageID == "" {
		messageID = uuid.NewString()
	}

	if !h.send(ctx, outbound, Frame{
		Type:      FrameMessageReceived,
		SessionID: sess.ID(),
		MessageID: messageID,
	}) {
		return
	}

	sess.AppendMessage(RoleUser, frame.Content)
	state := workflow.NewState(frame.Content, sess.ContextSnapshot())

	for event := range h.runner.Run(ctx, state) {
		switch event.Kind {
		case workflow.EventNode:
			h.send(ctx, outbound, Frame{
				Type:      FrameWorkflowProgress,
				SessionID: sess.ID(),
				MessageID: messageID,
				Node:      string(event.Node),
			})

		case workflow.EventComplete:
			sess.AppendMessage(RoleAssistant, event.FinalResponse)
			h.send(ctx, outbound, Frame{
				Type:      FrameStreamChunk,
				SessionID: sess.ID(),
				MessageID: messageID,
				Content:   event.FinalResponse,
			})
			h.send(ctx, outbound, Frame{
				Type:      FrameStreamComplete,
				SessionID: sess.ID(),
				MessageID: messageID,
			})
		}
	}
}

// send queues an outbound frame, blocking on a full queue so a slow
// client applies backpressure to the run instead of losing frames.
func (h *Handler) send(ctx context.Context, outbound chan<- Frame, frame Frame) bool {
	select {
	case outbound <- frame:
		framesTotal.WithLabelValues("out", string(frame.Type)).Inc()
		return true
	case <-ctx.Done():
		return false
	}
}

func (h *Handler) writeLoop(ctx context.Context, cancel context.CancelFunc, conn *websocket.Conn, outbound <-chan Frame, pingInterval time.Duration) {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()
	defer conn.Close()

	for {
		select {
		case <-ctx.Done():
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			_ = conn.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return

		case frame := <-outbound:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteJSON(frame); err != nil {
				cancel()
				return
			}

		case <-ticker.C:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				cancel()
				return
			}
		}
	}
}
