// Package rules implements the Boltis rule engine: card legality, turn
// advancement, win detection, settings validation and penalty arithmetic.
// Every function here is pure and safe to call concurrently.
package rules

import (
	"fmt"
	"hash/fnv"
	"time"
)

const (
	// DeckSize is the fixed number of cards in a Boltis deck.
	DeckSize = 108

	// MaxCardCount is the largest representable hand size.
	MaxCardCount = 255

	// EliminationThreshold is the hand size past which a stalling player is
	// eliminated. The value 50 is carried over verbatim from the original
	// game; it is not derived from any configurable setting.
	EliminationThreshold = 50

	MinCardsPerPlayer = 5
	MaxCardsPerPlayer = 10

	MinTurnTimeLimit = 10 * time.Second
	MaxTurnTimeLimit = 300 * time.Second

	MinPlayers = 2
	MaxPlayers = 4
)

// MatchSettings is validated once at match creation and immutable afterwards.
type MatchSettings struct {
	CardsPerPlayer int           `json:"cards_per_player"`
	TurnTimeLimit  time.Duration `json:"turn_time_limit"`
	MatchDuration  time.Duration `json:"match_duration"`
	PauseEnabled   bool          `json:"pause_enabled"`
	PenaltyCards   uint          `json:"penalty_cards"`
}

// ValidateSettings enforces the settings bounds and the deck capacity
// invariant players*cardsPerPlayer + 20 <= DeckSize.
func ValidateSettings(playerCount int, s MatchSettings) error {
	if playerCount < MinPlayers || playerCount > MaxPlayers {
		return fmt.Errorf("player count must be between %d and %d, got %d", MinPlayers, MaxPlayers, playerCount)
	}
	if s.CardsPerPlayer < MinCardsPerPlayer || s.CardsPerPlayer > MaxCardsPerPlayer {
		return fmt.Errorf("cards per player must be between %d and %d, got %d", MinCardsPerPlayer, MaxCardsPerPlayer, s.CardsPerPlayer)
	}
	if s.TurnTimeLimit < MinTurnTimeLimit || s.TurnTimeLimit > MaxTurnTimeLimit {
		return fmt.Errorf("turn time limit must be between %v and %v, got %v", MinTurnTimeLimit, MaxTurnTimeLimit, s.TurnTimeLimit)
	}
	if playerCount*s.CardsPerPlayer+20 > DeckSize {
		return fmt.Errorf("deck too small: %d players with %d cards each leaves no draw pile", playerCount, s.CardsPerPlayer)
	}
	return nil
}

// CanPlayCard decides whether candidate may be discarded onto top. A Void
// card is always legal. While a void color is pending only cards of that
// color are legal, regardless of type.
func CanPlayCard(candidate, top Card, voidActive bool, voidColor Element) bool {
	if candidate.Type == CardVoid {
		return true
	}
	if voidActive {
		return candidate.Element == voidColor
	}
	if candidate.Element == top.Element {
		return true
	}
	if candidate.Type == CardNumber && top.Type == CardNumber {
		return candidate.Value == top.Value
	}
	if candidate.Type != CardNumber && top.Type != CardNumber && candidate.Type == top.Type {
		return true
	}
	if candidate.Type == CardBomb {
		return candidate.Element == top.Element || top.Type == CardBomb
	}
	return false
}

// NextPlayerIndex advances current by direction, wrapping at both ends, and
// advances a second time when skipNext is set. The caller is responsible for
// skipping eliminated or unjoined slots by repeated advancement.
func NextPlayerIndex(current, direction, playerCount int, skipNext bool) int {
	next := wrap(current+direction, playerCount)
	if skipNext {
		next = wrap(next+direction, playerCount)
	}
	return next
}

func wrap(i, n int) int {
	i %= n
	if i < 0 {
		i += n
	}
	return i
}

// CheckWinCondition scans slots in order. Any non-eliminated player holding
// zero cards wins immediately; zero-card detection takes strict precedence
// over the last-one-standing rule. When at most one active player remains,
// that player (or index 0 if none remain) is the winner.
func CheckWinCondition(cardCounts []uint8, eliminated []bool) (bool, int) {
	for i, count := range cardCounts {
		if !eliminated[i] && count == 0 {
			return true, i
		}
	}

	lastActive := -1
	activeCount := 0
	for i := range cardCounts {
		if !eliminated[i] {
			activeCount++
			lastActive = i
		}
	}
	if activeCount > 1 {
		return false, 0
	}
	if activeCount == 1 {
		return true, lastActive
	}
	return true, 0
}

// ApplyTimeoutPenalty adds penalty cards to a hand, saturating at
// MaxCardCount instead of overflowing.
func ApplyTimeoutPenalty(current uint8, penalty uint) uint8 {
	total := uint(current) + penalty
	if total > MaxCardCount {
		return MaxCardCount
	}
	return uint8(total)
}

// DeriveSeed hashes the player address set and a timestamp into a match
// seed.
//
// This mirrors the original game's observably-derived seed: any caller who
// knows the roster and the clock can predict it before acting. The
// (seed -> index) interface is the stable contract; deployments that need
// unpredictable starts must substitute a verifiable random source behind it.
func DeriveSeed(players []string, at time.Time) uint64 {
	h := fnv.New64a()
	for _, p := range players {
		h.Write([]byte(p))
	}
	fmt.Fprintf(h, "%d", at.UnixNano())
	return h.Sum64()
}

// StartingPlayerIndex maps a seed onto a slot index.
func StartingPlayerIndex(seed uint64, playerCount int) int {
	return int(seed % uint64(playerCount))
}

// InitialTopCard derives the opening discard from the seed. It is always a
// Number card so the first turn never begins under a special effect.
func InitialTopCard(seed uint64) Card {
	return Card{
		Type:    CardNumber,
		Element: Element(seed / 7 % ElementCount),
		Value:   uint8(1 + seed%9),
	}
}
