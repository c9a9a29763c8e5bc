package session

import (
	"sync"
	"time"
)

// maxConversationMessages bounds the rolling conversation log kept per
// session; older turns fall off the front.
const maxConversationMessages = 50

// MessageRole is the author of one conversation turn.
type MessageRole string

const (
	RoleUser      MessageRole = "user"
	RoleAssistant MessageRole = "assistant"
)

// Message is one turn of the session's conversation log.
type Message struct {
	Role    MessageRole `json:"role"`
	Content string      `json:"content"`
	At      time.Time   `json:"at"`
}

// Session is one chat session. It survives reconnects until the
// manager's retention window lapses.
type Session struct {
	id string

	mu          sync.Mutex
	createdAt   time.Time
	lastSeen    time.Time
	contextData map[string]interface{}
	messages    []Message
}

func newSession(id string) *Session {
	now := time.Now()
	return &Session{
		id:          id,
		createdAt:   now,
		lastSeen:    now,
		contextData: make(map[string]interface{}),
	}
}

// ID returns the session identifier.
func (s *Session) ID() string { return s.id }

// Touch marks the session as recently used.
func (s *Session) Touch() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastSeen = time.Now()
}

// LastSeen returns the last activity timestamp.
func (s *Session) LastSeen() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastSeen
}

// AppendMessage records one conversation turn, trimming the log to the
// most recent maxConversationMessages entries.
func (s *Session) AppendMessage(role MessageRole, content string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.messages = append(s.messages, Message{Role: role, Content: content, At: time.Now()})
	if len(s.messages) > maxConversationMessages {
		s.messages = s.messages[len(s.messages)-maxConversationMessages:]
	}
	s.lastSeen = time.Now()
}

// History returns a copy of the conversation log.
func (s *Session) History() []Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Message(nil), s.messages...)
}

// MergeContext folds updates into the session context. Later updates
// win per key; a nil value removes the key.
func (s *Session) MergeContext(updates map[string]interface{}) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for k, v := range updates {
		if v == nil {
			delete(s.contextData, k)
			continue
		}
		s.contextData[k] = v
	}
	s.lastSeen = time.Now()
}

// ContextSnapshot returns a copy of the session context for a run.
func (s *Session) ContextSnapshot() map[string]interface{} {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.contextData) == 0 {
		return nil
	}
	out := make(map[string]interface{}, len(s.contextData))
	for k, v := range s.contextData {
		out[k] = v
	}
	return out
}
