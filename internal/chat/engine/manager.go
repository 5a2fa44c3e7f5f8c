package engine

import (
	"context"
	"io"
	"sync"

	errprocess "chat_sync_service/pkg/err"
	"chat_sync_service/pkg/logger"

	"go.uber.org/zap"
)

// Manager process wide owner of the shared channel and of every open session
type Manager struct {
	channel Channel
	history HistoryFetcher
	opts    Options

	mu       sync.Mutex
	sessions map[string]*Session
	closed   bool
}

// NewManager create manager, channel and history are shared by all sessions
func NewManager(channel Channel, history HistoryFetcher, opts Options) *Manager {
	return &Manager{
		channel:  channel,
		history:  history,
		opts:     opts,
		sessions: make(map[string]*Session),
	}
}

// Open start a session for participantID viewing conversationID.
// It returns once the channel subscription is active; the initial load continues in the background.
func (m *Manager) Open(ctx context.Context, conversationID, participantID string) (*Session, error) {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil, errprocess.ErrManagerClosed
	}
	m.mu.Unlock()

	s := newSession(conversationID, participantID, m.channel, m.history, m.opts)
	if err := s.open(ctx); err != nil {
		logger.Log.Error("open session failed",
			zap.String("conversation_id", conversationID),
			zap.String("participant_id", participantID),
			zap.Error(err))
		return nil, err
	}

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		s.Close()
		return nil, errprocess.ErrManagerClosed
	}
	s.onClose = m.remove
	m.sessions[s.id] = s
	m.mu.Unlock()

	logger.Log.Debug("session opened",
		zap.String("session_id", s.id),
		zap.String("conversation_id", conversationID),
		zap.String("participant_id", participantID))
	return s, nil
}

// Get open session by id
func (m *Manager) Get(sessionID string) (*Session, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[sessionID]
	return s, ok
}

// Close close one session
func (m *Manager) Close(sessionID string) error {
	s, ok := m.Get(sessionID)
	if !ok {
		return errprocess.ErrSessionNotFound
	}
	s.Close()
	return nil
}

// Sessions number of open sessions
func (m *Manager) Sessions() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}

func (m *Manager) remove(s *Session) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sessions, s.id)
}

// Shutdown close every session, then the channel when it is closable
func (m *Manager) Shutdown() error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	m.closed = true
	open := make([]*Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		open = append(open, s)
	}
	m.mu.Unlock()

	for _, s := range open {
		s.Close()
	}
	logger.Log.Info("session manager shut down", zap.Int("sessions", len(open)))

	if c, ok := m.channel.(io.Closer); ok {
		return c.Close()
	}
	return nil
}
