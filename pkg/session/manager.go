package session

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/loom-ai/loom/pkg/config"
	"github.com/loom-ai/loom/pkg/logger"
)

// cleanupInterval is how often expired sessions are swept.
const cleanupInterval = time.Minute

// Manager owns the session table. Disconnected sessions stay resumable
// until the retention window lapses.
type Manager struct {
	mu       sync.Mutex
	sessions map[string]*Session

	retention time.Duration
	logger    *slog.Logger
}

func NewManager(cfg *config.TransportConfig) *Manager {
	return &Manager{
		sessions:  make(map[string]*Session),
		retention: time.Duration(cfg.SessionRetentionSeconds) * time.Second,
		logger:    logger.GetLogger(),
	}
}

// GetOrCreate resumes the named session, or creates a fresh one when
// the id is empty, unknown, or expired. Reports whether an existing
// session was resumed.
func (m *Manager) GetOrCreate(id string) (*Session, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if id != "" {
		if existing, ok := m.sessions[id]; ok && !m.expired(existing) {
			existing.Touch()
			return existing, true
		}
	}

	created := newSession(uuid.NewString())
	m.sessions[created.ID()] = created
	activeSessions.Set(float64(len(m.sessions)))
	return created, false
}

// Get returns the named session if it exists and has not expired.
func (m *Manager) Get(id string) (*Session, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	existing, ok := m.sessions[id]
	if !ok || m.expired(existing) {
		return nil, false
	}
	return existing, true
}

// Delete removes a session immediately.
func (m *Manager) Delete(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sessions, id)
	activeSessions.Set(float64(len(m.sessions)))
}

// Count returns the number of retained sessions.
func (m *Manager) Count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}

// StartCleanup sweeps expired sessions until the context ends.
func (m *Manager) StartCleanup(ctx context.Context) {
	go func() {
		ticker := time.NewTicker(cleanupInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				m.sweep()
			}
		}
	}()
}

func (m *Manager) sweep() {
	m.mu.Lock()
	defer m.mu.Unlock()

	removed := 0
	for id, s := range m.sessions {
		if m.expired(s) {
			delete(m.sessions, id)
			removed++
		}
	}
	if removed > 0 {
		m.logger.Debug("swept expired sessions", "removed", removed, "remaining", len(m.sessions))
		activeSessions.Set(float64(len(m.sessions)))
	}
}

func (m *Manager) expired(s *Session) bool {
	return time.Since(s.LastSeen()) > m.retention
}
