// models/models.go
package models

import (
	"time"

	"github.com/Theras-Labs/card-server-evm/rules"
)

// MatchStatus is the registry-side lifecycle of a match.
type MatchStatus string

const (
	StatusWaiting   MatchStatus = "WAITING"
	StatusPlaying   MatchStatus = "PLAYING"
	StatusCompleted MatchStatus = "COMPLETED"
	StatusCancelled MatchStatus = "CANCELLED"
	StatusExpired   MatchStatus = "EXPIRED"
)

// Terminal reports whether the status ends the registry lifecycle.
func (s MatchStatus) Terminal() bool {
	return s == StatusCompleted || s == StatusCancelled || s == StatusExpired
}

// MatchRecord is the registry's view of one match. The registry owns it
// exclusively; instances never mutate it.
type MatchRecord struct {
	MatchID     string             `json:"match_id"`
	Host        string             `json:"host"`
	Players     [4]string          `json:"players"`
	Settings    rules.MatchSettings `json:"settings"`
	Status      MatchStatus        `json:"status"`
	StakeAmount uint64             `json:"stake_amount"`
	Winner      string             `json:"winner,omitempty"`
	CreatedAt   time.Time          `json:"created_at"`
	StartedAt   time.Time          `json:"started_at,omitempty"`
	EndedAt     time.Time          `json:"ended_at,omitempty"`
}

// PlayerSlotState is the observable state of one seat. CardCount is a
// running tally, not a concealed hand of card identities.
type PlayerSlotState struct {
	Address    string `json:"address"`
	CardCount  uint8  `json:"card_count"`
	Eliminated bool   `json:"eliminated"`
	Joined     bool   `json:"joined"`
}

// MatchState is a full snapshot of a match instance's play state, used for
// event payloads and durable persistence.
type MatchState struct {
	MatchID        string             `json:"match_id"`
	Phase          string             `json:"phase"`
	Players        [4]PlayerSlotState `json:"players"`
	CurrentPlayer  int                `json:"current_player"`
	Direction      int                `json:"direction"`
	TopCard        rules.Card         `json:"top_card"`
	DiscardCount   int                `json:"discard_count"`
	DrawPileCount  int                `json:"draw_pile_count"`
	SkipNext       bool               `json:"skip_next"`
	VoidActive     bool               `json:"void_active"`
	VoidColor      rules.Element      `json:"void_color"`
	TurnStartedAt  time.Time          `json:"turn_started_at"`
	TurnDeadline   time.Time          `json:"turn_deadline"`
	StakePerPlayer uint64             `json:"stake_per_player"`
	TotalStake     uint64             `json:"total_stake"`
	Winner         string             `json:"winner,omitempty"`
}
