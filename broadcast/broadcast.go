// broadcast/broadcast.go
package broadcast

import (
	"errors"

	"github.com/Theras-Labs/card-server-evm/session"
)

var (
	ErrMatchNotFound = errors.New("match not found")
)

// ParticipantDirectory resolves a match id to its seated players. The
// registry implements it; the interface breaks the import cycle with the
// registry package.
type ParticipantDirectory interface {
	MatchPlayers(matchID string) ([4]string, bool)
}

// Broadcaster delivers messages to match participants or address sets.
type Broadcaster interface {
	BroadcastToMatch(matchID string, msgID uint16, data []byte) error
	BroadcastToAddresses(addrs []string, msgID uint16, data []byte) error
}

// MatchBroadcaster fans match events out to every session of every seated
// player.
type MatchBroadcaster struct {
	directory ParticipantDirectory
	sessions  *session.Manager
}

func NewMatchBroadcaster(directory ParticipantDirectory, sessions *session.Manager) *MatchBroadcaster {
	return &MatchBroadcaster{
		directory: directory,
		sessions:  sessions,
	}
}

func (b *MatchBroadcaster) BroadcastToMatch(matchID string, msgID uint16, data []byte) error {
	players, exists := b.directory.MatchPlayers(matchID)
	if !exists {
		return ErrMatchNotFound
	}
	return b.BroadcastToAddresses(players[:], msgID, data)
}

func (b *MatchBroadcaster) BroadcastToAddresses(addrs []string, msgID uint16, data []byte) error {
	for _, addr := range addrs {
		for _, s := range b.sessions.GetByAddress(addr) {
			if err := s.Send(msgID, data); err != nil {
				// A dead session is cleaned up by its read loop.
				continue
			}
		}
	}
	return nil
}
