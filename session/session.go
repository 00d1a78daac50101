package session

import (
	"sync"
	"time"

	"github.com/wfunc/boardrelay/network"
)

// Session is one live transport connection. RoomID is the only coordinator
// state attached to it: the room the connection last joined, or "" if none.
type Session struct {
	ID        string
	Conn      network.Connection
	RoomID    string
	CreatedAt time.Time

	// lastActive is written by the reader goroutine (heartbeats) and by
	// broadcast and timer goroutines (sends), so it takes its own lock.
	mu         sync.Mutex
	lastActive time.Time
}

func NewSession(id string, conn network.Connection) *Session {
	return &Session{
		ID:         id,
		Conn:       conn,
		CreatedAt:  time.Now(),
		lastActive: time.Now(),
	}
}

func (s *Session) Send(msgID uint16, data []byte) error {
	s.Touch()
	return s.Conn.Send(msgID, data)
}

// Touch refreshes the session's activity timestamp.
func (s *Session) Touch() {
	s.mu.Lock()
	s.lastActive = time.Now()
	s.mu.Unlock()
}

func (s *Session) LastActive() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastActive
}

func (s *Session) GetID() string {
	return s.ID
}

func (s *Session) Close() error {
	return s.Conn.Close()
}

// Manager tracks every live session by ID.
type Manager struct {
	sessions map[string]*Session
	mutex    sync.RWMutex
}

func NewManager() *Manager {
	return &Manager{
		sessions: make(map[string]*Session),
	}
}

func (m *Manager) Add(session *Session) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	m.sessions[session.ID] = session
}

func (m *Manager) Remove(sessionID string) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	delete(m.sessions, sessionID)
}

func (m *Manager) Get(sessionID string) (*Session, bool) {
	m.mutex.RLock()
	defer m.mutex.RUnlock()
	session, exists := m.sessions[sessionID]
	return session, exists
}

func (m *Manager) Count() int {
	m.mutex.RLock()
	defer m.mutex.RUnlock()
	return len(m.sessions)
}
