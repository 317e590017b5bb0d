// match/interfaces.go
package match

import (
	"time"

	"github.com/Theras-Labs/card-server-evm/models"
)

// Authorizer decides whether caller may act on behalf of owner for the
// current turn. A failed validation is a hard denial; the instance never
// bypasses it.
type Authorizer interface {
	ValidateDelegate(owner, caller string) bool
}

// RegistryCallback is the instance-to-registry reporting contract. Every
// call presents the instance's capability token; the registry must reject a
// token that does not match the recorded owning instance.
type RegistryCallback interface {
	UpdateMatchStatus(instanceToken, matchID string, status models.MatchStatus) error
	ReportWinner(instanceToken, matchID, winner string) error
}

// Treasury moves stake value between accounts. The match's escrow account is
// debited only through prize distribution and cancellation refunds.
type Treasury interface {
	Transfer(from, to string, amount uint64) error
	Balance(addr string) uint64
}

// Broadcaster delivers match events to every participant's session.
// Defined here to break the import cycle with the transport layer.
type Broadcaster interface {
	BroadcastToMatch(matchID string, msgID uint16, data []byte) error
}

// TurnTracker learns each new turn deadline so an external prober can call
// HandleTimeout once it passes. The core itself never fires on a clock.
type TurnTracker interface {
	Track(matchID string, deadline time.Time)
}

// StateStore persists play-state snapshots after every mutation.
type StateStore interface {
	SaveMatchState(st *models.MatchState) error
}
