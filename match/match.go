// Package match implements the per-match state machine: joining, card
// legality, special effects, win and elimination detection, timeout
// penalties and settlement. Each Match owns all mutable state for exactly
// one game and serializes every operation behind its own mutex, so calls
// touching different matches never contend.
package match

import (
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/Theras-Labs/card-server-evm/escrow"
	"github.com/Theras-Labs/card-server-evm/logger"
	"github.com/Theras-Labs/card-server-evm/models"
	"github.com/Theras-Labs/card-server-evm/network"
	"github.com/Theras-Labs/card-server-evm/rules"
	"github.com/Theras-Labs/card-server-evm/state"
)

// PlayerCount is the fixed number of seats per match.
const PlayerCount = 4

var (
	ErrNotAPlayer         = errors.New("address does not hold a seat in this match")
	ErrAlreadyJoined      = errors.New("player already joined")
	ErrMatchNotJoinable   = errors.New("match is not accepting joins")
	ErrNotYourTurn        = errors.New("caller is not the current player or an authorized delegate")
	ErrWrongPhase         = errors.New("action not allowed in the current phase")
	ErrInvalidAction      = errors.New("invalid action payload")
	ErrIllegalCard        = errors.New("card cannot be played on the current top card")
	ErrNoCards            = errors.New("player holds no cards")
	ErrDrawPileEmpty      = errors.New("draw pile is empty")
	ErrTimeoutTooEarly    = errors.New("turn time limit has not elapsed")
	ErrNotHost            = errors.New("caller is not the match host")
	ErrNotEnoughPlayers   = errors.New("at least two players must join before a forced start")
	ErrNotRegistry        = errors.New("caller does not hold the registry capability")
	ErrMatchClosed        = errors.New("match has already ended")
	ErrPauseDisabled      = errors.New("pausing is not enabled for this match")
	ErrPrizeAlreadyPaid   = errors.New("prize has already been distributed")
	ErrInsufficientEscrow = errors.New("escrow balance does not cover the distribution")
)

// ActionType selects the move performed by ExecuteAction.
type ActionType string

const (
	ActionDiscard     ActionType = "DISCARD"
	ActionDraw        ActionType = "DRAW"
	ActionSelectColor ActionType = "SELECT_COLOR"
)

// Action is the wire form of a player move.
type Action struct {
	Type  ActionType     `json:"type"`
	Card  *rules.Card    `json:"card,omitempty"`
	Color *rules.Element `json:"color,omitempty"`
}

// slot is one fixed seat. The address-to-index binding never changes after
// initialization.
type slot struct {
	address    string
	cardCount  uint8
	eliminated bool
	joined     bool
}

// Config carries everything an instance needs at initialization. The
// capability token is generated by the registry and authenticates both
// callback directions.
type Config struct {
	MatchID        string
	Host           string
	Players        [PlayerCount]string
	Settings       rules.MatchSettings
	StakePerPlayer uint64
	Token          string

	Authorizer  Authorizer
	Registry    RegistryCallback
	Treasury    Treasury
	Broadcaster Broadcaster
	Tracker     TurnTracker
	Store       StateStore
	Clock       func() time.Time
}

// Match is one running game.
type Match struct {
	mutex sync.Mutex

	id             string
	host           string
	settings       rules.MatchSettings
	stakePerPlayer uint64
	token          string

	players       [PlayerCount]slot
	phase         *state.Machine
	currentPlayer int
	direction     int
	topCard       rules.Card
	discardCount  int
	drawPileCount int
	skipNext      bool
	voidActive    bool
	voidColor     rules.Element
	turnStartedAt time.Time
	totalStake    uint64
	winner        string

	payoutMutex sync.Mutex
	prizePaid   bool

	authorizer  Authorizer
	registry    RegistryCallback
	treasury    Treasury
	broadcaster Broadcaster
	tracker     TurnTracker
	store       StateStore
	clock       func() time.Time
}

// New validates the roster and settings, escrows the host's stake and
// returns the instance in the waiting phase with the host auto-joined.
func New(cfg Config) (*Match, error) {
	if err := rules.ValidateSettings(PlayerCount, cfg.Settings); err != nil {
		return nil, err
	}
	seen := make(map[string]struct{}, PlayerCount)
	hostSeat := -1
	for i, addr := range cfg.Players {
		if addr == "" {
			return nil, fmt.Errorf("player slot %d holds a zero address", i)
		}
		if _, dup := seen[addr]; dup {
			return nil, fmt.Errorf("duplicate player address %s", addr)
		}
		seen[addr] = struct{}{}
		if addr == cfg.Host {
			hostSeat = i
		}
	}
	if hostSeat < 0 {
		return nil, fmt.Errorf("host %s is not among the four players", cfg.Host)
	}

	m := &Match{
		id:             cfg.MatchID,
		host:           cfg.Host,
		settings:       cfg.Settings,
		stakePerPlayer: cfg.StakePerPlayer,
		token:          cfg.Token,
		phase:          state.NewMachine(),
		direction:      1,
		drawPileCount:  rules.DeckSize - PlayerCount*cfg.Settings.CardsPerPlayer - 1,
		authorizer:     cfg.Authorizer,
		registry:       cfg.Registry,
		treasury:       cfg.Treasury,
		broadcaster:    cfg.Broadcaster,
		tracker:        cfg.Tracker,
		store:          cfg.Store,
		clock:          cfg.Clock,
	}
	if m.clock == nil {
		m.clock = time.Now
	}
	for i, addr := range cfg.Players {
		m.players[i] = slot{address: addr}
	}

	// The host's stake rides in with match creation.
	if cfg.StakePerPlayer > 0 {
		if err := m.treasury.Transfer(cfg.Host, escrow.MatchAccount(m.id), cfg.StakePerPlayer); err != nil {
			return nil, fmt.Errorf("escrow host stake: %w", err)
		}
	}
	m.players[hostSeat].joined = true
	m.totalStake = cfg.StakePerPlayer

	return m, nil
}

// ID returns the match identifier.
func (m *Match) ID() string { return m.id }

// Host returns the host address.
func (m *Match) Host() string { return m.host }

// Phase returns the current lifecycle phase.
func (m *Match) Phase() state.Phase { return m.phase.Current() }

// Players returns the fixed seat assignment.
func (m *Match) Players() [PlayerCount]string {
	var out [PlayerCount]string
	m.mutex.Lock()
	defer m.mutex.Unlock()
	for i := range m.players {
		out[i] = m.players[i].address
	}
	return out
}

// Join seats the caller. The exact stake is escrowed up front; the match
// auto-starts once all four seats are filled.
func (m *Match) Join(caller string) error {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	if m.phase.Current() != state.PhaseWaitingForPlayers {
		return ErrMatchNotJoinable
	}
	seat := m.seatOf(caller)
	if seat < 0 {
		return ErrNotAPlayer
	}
	if m.players[seat].joined {
		return ErrAlreadyJoined
	}
	if m.stakePerPlayer > 0 {
		if err := m.treasury.Transfer(caller, escrow.MatchAccount(m.id), m.stakePerPlayer); err != nil {
			return fmt.Errorf("escrow stake: %w", err)
		}
	}
	m.players[seat].joined = true
	m.totalStake += m.stakePerPlayer
	logger.Log.Infof("match %s: player %s joined seat %d", m.id, caller, seat)

	if m.joinedCount() == PlayerCount {
		m.start()
	}
	m.persist()
	return nil
}

// ForceStart lets the host begin early once at least two players are seated.
func (m *Match) ForceStart(caller string) error {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	if caller != m.host {
		return ErrNotHost
	}
	if m.phase.Current() != state.PhaseWaitingForPlayers {
		return ErrMatchNotJoinable
	}
	if m.joinedCount() < 2 {
		return ErrNotEnoughPlayers
	}
	m.start()
	m.persist()
	return nil
}

// start deals the opening state. Callers hold m.mutex.
func (m *Match) start() {
	addrs := make([]string, 0, PlayerCount)
	for i := range m.players {
		s := &m.players[i]
		if !s.joined {
			s.eliminated = true
			logger.Log.Infof("match %s: seat %d (%s) eliminated, did not join", m.id, i, s.address)
			continue
		}
		s.cardCount = uint8(m.settings.CardsPerPlayer)
		addrs = append(addrs, s.address)
	}

	seed := rules.DeriveSeed(addrs, m.clock())
	idx := rules.StartingPlayerIndex(seed, PlayerCount)
	for tries := 0; tries < PlayerCount && !m.eligible(idx); tries++ {
		idx = rules.NextPlayerIndex(idx, 1, PlayerCount, false)
	}
	m.currentPlayer = idx
	m.topCard = rules.InitialTopCard(seed)
	m.discardCount = 1

	if err := m.phase.Transition(state.PhasePlaying); err != nil {
		logger.Log.Errorf("match %s: start transition failed: %v", m.id, err)
		return
	}
	if m.registry != nil {
		if err := m.registry.UpdateMatchStatus(m.token, m.id, models.StatusPlaying); err != nil {
			logger.Log.Errorf("match %s: status callback failed: %v", m.id, err)
		}
	}

	m.turnStartedAt = m.clock()
	m.trackDeadline()
	m.broadcastEvent(network.MsgTypeMatchStarted, map[string]interface{}{
		"match_id":        m.id,
		"starting_player": m.players[m.currentPlayer].address,
		"top_card":        m.topCard,
	})
	m.broadcastTurn()
	logger.Log.Infof("match %s: started, %s to play", m.id, m.players[m.currentPlayer].address)
}

// HandleAction decodes a JSON action payload and executes it for caller.
func (m *Match) HandleAction(caller string, data []byte) error {
	var act Action
	if err := json.Unmarshal(data, &act); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidAction, err)
	}
	return m.ExecuteAction(caller, act)
}

// ExecuteAction performs one move for the current player. The caller must be
// that player or a delegate the authorizer confirms.
func (m *Match) ExecuteAction(caller string, act Action) error {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	phase := m.phase.Current()
	if phase != state.PhasePlaying && phase != state.PhaseColorSelection {
		return ErrWrongPhase
	}
	if err := m.authorizeCurrent(caller); err != nil {
		return err
	}

	switch act.Type {
	case ActionDiscard:
		return m.discard(act)
	case ActionDraw:
		return m.draw()
	case ActionSelectColor:
		return m.selectColor(act)
	default:
		return fmt.Errorf("%w: unknown action type %q", ErrInvalidAction, act.Type)
	}
}

func (m *Match) discard(act Action) error {
	if m.phase.Current() != state.PhasePlaying {
		return ErrWrongPhase
	}
	if act.Card == nil || !act.Card.Valid() {
		return fmt.Errorf("%w: discard requires a valid card", ErrInvalidAction)
	}
	card := *act.Card
	if !rules.CanPlayCard(card, m.topCard, m.voidActive, m.voidColor) {
		return ErrIllegalCard
	}

	s := &m.players[m.currentPlayer]
	if s.cardCount == 0 {
		return ErrNoCards
	}
	s.cardCount--
	m.discardCount++
	m.topCard = card

	// Any non-void play satisfies and clears a pending void color.
	if card.Type != rules.CardVoid && m.voidActive {
		m.voidActive = false
	}

	switch card.Type {
	case rules.CardSkip:
		m.skipNext = true
	case rules.CardReverse:
		m.direction = -m.direction
	case rules.CardVoid:
		// Turn advancement and win detection wait for the color choice.
		if err := m.phase.Transition(state.PhaseColorSelection); err != nil {
			return err
		}
		m.broadcastEvent(network.MsgTypeColorPending, map[string]interface{}{
			"match_id": m.id,
			"player":   s.address,
		})
		m.persist()
		return nil
	}

	m.finishTurn()
	return nil
}

func (m *Match) draw() error {
	if m.phase.Current() != state.PhasePlaying {
		return ErrWrongPhase
	}
	if m.drawPileCount == 0 {
		return ErrDrawPileEmpty
	}

	s := &m.players[m.currentPlayer]
	if s.cardCount < rules.MaxCardCount {
		s.cardCount++
	}
	m.drawPileCount--

	// Reshuffle the discard pile back in once the pile empties, keeping
	// only the current top card.
	if m.drawPileCount == 0 && m.discardCount > 1 {
		m.drawPileCount = m.discardCount - 1
		m.discardCount = 1
		logger.Log.Infof("match %s: reshuffled discard pile, %d cards back in play", m.id, m.drawPileCount)
	}

	m.finishTurn()
	return nil
}

func (m *Match) selectColor(act Action) error {
	if m.phase.Current() != state.PhaseColorSelection {
		return ErrWrongPhase
	}
	if act.Color == nil || *act.Color > rules.ElementThunder {
		return fmt.Errorf("%w: color selection requires a valid element", ErrInvalidAction)
	}
	m.voidColor = *act.Color
	m.voidActive = true
	if err := m.phase.Transition(state.PhasePlaying); err != nil {
		return err
	}
	m.finishTurn()
	return nil
}

// HandleTimeout may be invoked by any external caller once the turn clock
// has expired. It penalizes the stalling player, eliminates them past the
// threshold, and advances the turn.
func (m *Match) HandleTimeout(caller string) error {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	phase := m.phase.Current()
	if phase != state.PhasePlaying && phase != state.PhaseColorSelection {
		return ErrWrongPhase
	}
	deadline := m.turnStartedAt.Add(m.settings.TurnTimeLimit)
	if !m.clock().After(deadline) {
		return ErrTimeoutTooEarly
	}

	s := &m.players[m.currentPlayer]
	s.cardCount = rules.ApplyTimeoutPenalty(s.cardCount, m.settings.PenaltyCards)
	logger.Log.Infof("match %s: %s timed out, penalized by %s (hand now %d)",
		m.id, s.address, caller, s.cardCount)
	if s.cardCount > rules.EliminationThreshold {
		s.eliminated = true
		logger.Log.Infof("match %s: %s eliminated after timeout penalties", m.id, s.address)
	}

	// A stalled color selection is abandoned.
	if phase == state.PhaseColorSelection {
		m.voidActive = false
		if err := m.phase.Transition(state.PhasePlaying); err != nil {
			return err
		}
	}

	m.finishTurn()
	return nil
}

// Pause freezes the turn clock. Host-only, and only when enabled in the
// match settings.
func (m *Match) Pause(caller string) error {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	if caller != m.host {
		return ErrNotHost
	}
	if !m.settings.PauseEnabled {
		return ErrPauseDisabled
	}
	if err := m.phase.Transition(state.PhasePaused); err != nil {
		return err
	}
	m.persist()
	return nil
}

// Resume restores the interrupted phase and restarts the turn clock.
func (m *Match) Resume(caller string) error {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	if caller != m.host {
		return ErrNotHost
	}
	if _, err := m.phase.Resume(); err != nil {
		return err
	}
	m.turnStartedAt = m.clock()
	m.trackDeadline()
	m.broadcastTurn()
	m.persist()
	return nil
}

// Cancel terminates the match and refunds every joined player's stake from
// escrow. Only the registry holds the capability to call it.
func (m *Match) Cancel(registryToken string) error {
	if registryToken != m.token {
		return ErrNotRegistry
	}
	m.mutex.Lock()
	defer m.mutex.Unlock()

	if m.phase.Current().Terminal() {
		return ErrMatchClosed
	}
	if err := m.phase.Transition(state.PhaseCancelled); err != nil {
		return err
	}
	if m.stakePerPlayer > 0 {
		for i := range m.players {
			s := &m.players[i]
			if !s.joined {
				continue
			}
			if err := m.treasury.Transfer(escrow.MatchAccount(m.id), s.address, m.stakePerPlayer); err != nil {
				logger.Log.Errorf("match %s: refund to %s failed: %v", m.id, s.address, err)
			}
		}
	}
	m.broadcastEvent(network.MsgTypeMatchCancelled, map[string]interface{}{"match_id": m.id})
	m.persist()
	logger.Log.Infof("match %s: cancelled, stakes refunded", m.id)
	return nil
}

// DistributePrize pays the winner and the platform fee recipient from
// escrow, exactly once. Only the registry holds the capability to call it.
// It deliberately takes only the payout mutex so the registry may invoke it
// from within a win-report callback without re-entering the play-state path.
func (m *Match) DistributePrize(registryToken, winner string, winnerAmount uint64, feeRecipient string, feeAmount uint64) error {
	if registryToken != m.token {
		return ErrNotRegistry
	}
	m.payoutMutex.Lock()
	defer m.payoutMutex.Unlock()

	if m.prizePaid {
		return ErrPrizeAlreadyPaid
	}
	account := escrow.MatchAccount(m.id)
	if m.treasury.Balance(account) < winnerAmount+feeAmount {
		return ErrInsufficientEscrow
	}
	if winnerAmount > 0 {
		if err := m.treasury.Transfer(account, winner, winnerAmount); err != nil {
			return err
		}
	}
	if feeAmount > 0 && feeRecipient != "" {
		if err := m.treasury.Transfer(account, feeRecipient, feeAmount); err != nil {
			return err
		}
	}
	m.prizePaid = true
	logger.Log.Infof("match %s: distributed %d to %s, fee %d to %s",
		m.id, winnerAmount, winner, feeAmount, feeRecipient)
	return nil
}

// Snapshot returns a copy of the full observable state.
func (m *Match) Snapshot() models.MatchState {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	return m.snapshotLocked()
}

// --- internals, all called with m.mutex held ---

func (m *Match) seatOf(addr string) int {
	for i := range m.players {
		if m.players[i].address == addr {
			return i
		}
	}
	return -1
}

func (m *Match) joinedCount() int {
	n := 0
	for i := range m.players {
		if m.players[i].joined {
			n++
		}
	}
	return n
}

func (m *Match) eligible(i int) bool {
	return m.players[i].joined && !m.players[i].eliminated
}

func (m *Match) authorizeCurrent(caller string) error {
	actor := m.players[m.currentPlayer].address
	if caller == actor {
		return nil
	}
	if m.authorizer != nil && m.authorizer.ValidateDelegate(actor, caller) {
		return nil
	}
	return ErrNotYourTurn
}

// finishTurn re-evaluates the win condition and either completes the match
// or advances to the next eligible player.
func (m *Match) finishTurn() {
	counts := make([]uint8, PlayerCount)
	elims := make([]bool, PlayerCount)
	for i := range m.players {
		counts[i] = m.players[i].cardCount
		elims[i] = m.players[i].eliminated || !m.players[i].joined
	}
	if won, idx := rules.CheckWinCondition(counts, elims); won {
		m.complete(idx)
	} else {
		m.advanceTurn()
	}
	m.persist()
}

func (m *Match) complete(winnerSeat int) {
	m.winner = m.players[winnerSeat].address
	if err := m.phase.Transition(state.PhaseCompleted); err != nil {
		logger.Log.Errorf("match %s: completion transition failed: %v", m.id, err)
		return
	}
	m.broadcastEvent(network.MsgTypeMatchEnded, map[string]interface{}{
		"match_id": m.id,
		"winner":   m.winner,
	})
	logger.Log.Infof("match %s: won by %s", m.id, m.winner)

	if m.registry == nil {
		return
	}
	if err := m.registry.UpdateMatchStatus(m.token, m.id, models.StatusCompleted); err != nil {
		logger.Log.Errorf("match %s: completion status callback failed: %v", m.id, err)
	}
	if err := m.registry.ReportWinner(m.token, m.id, m.winner); err != nil {
		logger.Log.Errorf("match %s: winner report failed: %v", m.id, err)
	}
}

func (m *Match) advanceTurn() {
	next := rules.NextPlayerIndex(m.currentPlayer, m.direction, PlayerCount, m.skipNext)
	m.skipNext = false
	for tries := 0; tries < PlayerCount && !m.eligible(next); tries++ {
		next = rules.NextPlayerIndex(next, m.direction, PlayerCount, false)
	}
	m.currentPlayer = next
	m.turnStartedAt = m.clock()
	m.trackDeadline()
	m.broadcastTurn()
}

func (m *Match) trackDeadline() {
	if m.tracker != nil {
		m.tracker.Track(m.id, m.turnStartedAt.Add(m.settings.TurnTimeLimit))
	}
}

func (m *Match) broadcastTurn() {
	m.broadcastEvent(network.MsgTypeTurnChanged, map[string]interface{}{
		"match_id":       m.id,
		"current_player": m.players[m.currentPlayer].address,
		"deadline":       m.turnStartedAt.Add(m.settings.TurnTimeLimit),
	})
}

func (m *Match) broadcastEvent(msgID uint16, payload interface{}) {
	if m.broadcaster == nil {
		return
	}
	data, err := json.Marshal(payload)
	if err != nil {
		logger.Log.Errorf("match %s: marshal event %d: %v", m.id, msgID, err)
		return
	}
	if err := m.broadcaster.BroadcastToMatch(m.id, msgID, data); err != nil {
		logger.Log.Errorf("match %s: broadcast event %d: %v", m.id, msgID, err)
	}
}

func (m *Match) persist() {
	if m.store == nil {
		return
	}
	st := m.snapshotLocked()
	if err := m.store.SaveMatchState(&st); err != nil {
		logger.Log.Errorf("match %s: persist snapshot: %v", m.id, err)
	}
}

func (m *Match) snapshotLocked() models.MatchState {
	st := models.MatchState{
		MatchID:        m.id,
		Phase:          m.phase.Current().String(),
		CurrentPlayer:  m.currentPlayer,
		Direction:      m.direction,
		TopCard:        m.topCard,
		DiscardCount:   m.discardCount,
		DrawPileCount:  m.drawPileCount,
		SkipNext:       m.skipNext,
		VoidActive:     m.voidActive,
		VoidColor:      m.voidColor,
		TurnStartedAt:  m.turnStartedAt,
		TurnDeadline:   m.turnStartedAt.Add(m.settings.TurnTimeLimit),
		StakePerPlayer: m.stakePerPlayer,
		TotalStake:     m.totalStake,
		Winner:         m.winner,
	}
	for i := range m.players {
		st.Players[i] = models.PlayerSlotState{
			Address:    m.players[i].address,
			CardCount:  m.players[i].cardCount,
			Eliminated: m.players[i].eliminated,
			Joined:     m.players[i].joined,
		}
	}
	return st
}
