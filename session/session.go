// session/session.go
package session

import (
	"sync"
	"time"

	"github.com/Theras-Labs/card-server-evm/network"
)

// Session binds one connection to a player address. Match events are routed
// to every session logged in under a participant's address.
type Session struct {
	ID         string
	Conn       network.Connection
	CreatedAt  time.Time
	LastActive time.Time

	address string
	mutex   sync.RWMutex
}

func NewSession(id string, conn network.Connection) *Session {
	now := time.Now()
	return &Session{
		ID:         id,
		Conn:       conn,
		CreatedAt:  now,
		LastActive: now,
	}
}

// SetAddress records the player address this session acts as.
func (s *Session) SetAddress(addr string) {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	s.address = addr
}

// Address returns the bound player address, or "" before login.
func (s *Session) Address() string {
	s.mutex.RLock()
	defer s.mutex.RUnlock()
	return s.address
}

func (s *Session) Send(msgID uint16, data []byte) error {
	s.LastActive = time.Now()
	return s.Conn.Send(msgID, data)
}

func (s *Session) GetID() string {
	return s.ID
}

func (s *Session) Close() error {
	return s.Conn.Close()
}

// Manager tracks all live sessions.
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

// GetByAddress returns every session logged in as addr.
func (m *Manager) GetByAddress(addr string) []*Session {
	m.mutex.RLock()
	defer m.mutex.RUnlock()

	var result []*Session
	for _, session := range m.sessions {
		if session.Address() == addr {
			result = append(result, session)
		}
	}
	return result
}

// Count returns the number of live sessions.
func (m *Manager) Count() int {
	m.mutex.RLock()
	defer m.mutex.RUnlock()
	return len(m.sessions)
}
