package session

import (
	"net"
	"testing"
	"time"

	"github.com/Theras-Labs/card-server-evm/network"
)

// MockConnection is a test double for the network.Connection interface.
type MockConnection struct {
	sent []uint16
}

func (m *MockConnection) Send(msgID uint16, data []byte) error {
	m.sent = append(m.sent, msgID)
	return nil
}
func (m *MockConnection) SendJSON(msgID uint16, payload interface{}) error {
	m.sent = append(m.sent, msgID)
	return nil
}
func (m *MockConnection) Close() error                         { return nil }
func (m *MockConnection) RemoteAddr() net.Addr                 { return &net.TCPAddr{} }
func (m *MockConnection) SetHeartbeat(interval time.Duration)  {}
func (m *MockConnection) ReadPacket() (*network.Packet, error) { return nil, nil }

func TestNewManager(t *testing.T) {
	manager := NewManager()
	if manager == nil {
		t.Fatal("NewManager should not return nil")
	}
	if manager.sessions == nil {
		t.Fatal("NewManager should initialize the sessions map")
	}
}

func TestManager_Add_Get_Remove(t *testing.T) {
	manager := NewManager()
	sessionID := "test_session_1"
	sess := NewSession(sessionID, &MockConnection{})

	manager.Add(sess)
	if manager.Count() != 1 {
		t.Fatalf("Expected session count to be 1, got %d", manager.Count())
	}

	retrievedSess, exists := manager.Get(sessionID)
	if !exists {
		t.Fatal("Get should find the added session")
	}
	if retrievedSess != sess {
		t.Fatal("Get should return the same session instance")
	}

	manager.Remove(sessionID)
	if manager.Count() != 0 {
		t.Fatalf("Expected session count to be 0 after removal, got %d", manager.Count())
	}

	_, exists = manager.Get(sessionID)
	if exists {
		t.Fatal("Get should not find the removed session")
	}
}

func TestManager_GetByAddress(t *testing.T) {
	manager := NewManager()

	sess1 := NewSession("session1", &MockConnection{})
	sess1.SetAddress("0xA")

	sess2 := NewSession("session2", &MockConnection{})
	sess2.SetAddress("0xB")

	sess3 := NewSession("session3", &MockConnection{})
	sess3.SetAddress("0xA")

	manager.Add(sess1)
	manager.Add(sess2)
	manager.Add(sess3)

	if got := manager.GetByAddress("0xA"); len(got) != 2 {
		t.Errorf("Expected 2 sessions for 0xA, got %d", len(got))
	}
	if got := manager.GetByAddress("0xB"); len(got) != 1 {
		t.Errorf("Expected 1 session for 0xB, got %d", len(got))
	}
	if got := manager.GetByAddress("0xC"); len(got) != 0 {
		t.Errorf("Expected 0 sessions for 0xC, got %d", len(got))
	}
}

func TestSession_AddressBinding(t *testing.T) {
	sess := NewSession("s", &MockConnection{})
	if sess.Address() != "" {
		t.Error("address should be empty before login")
	}
	sess.SetAddress("0xA")
	if sess.Address() != "0xA" {
		t.Errorf("expected bound address 0xA, got %s", sess.Address())
	}
}

func TestSession_SendForwardsToConnection(t *testing.T) {
	conn := &MockConnection{}
	sess := NewSession("s", conn)
	if err := sess.Send(42, []byte("x")); err != nil {
		t.Fatal(err)
	}
	if len(conn.sent) != 1 || conn.sent[0] != 42 {
		t.Errorf("expected message 42 forwarded, got %v", conn.sent)
	}
}
