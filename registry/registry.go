// Package registry is the factory and directory for match instances: it
// creates them, tracks their lifecycle and player indices, mediates prize
// distribution, and enforces the instance-callback trust boundary.
package registry

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/Theras-Labs/card-server-evm/escrow"
	"github.com/Theras-Labs/card-server-evm/logger"
	"github.com/Theras-Labs/card-server-evm/match"
	"github.com/Theras-Labs/card-server-evm/models"
	"github.com/Theras-Labs/card-server-evm/monitor"
	"github.com/Theras-Labs/card-server-evm/persistence"
	"github.com/Theras-Labs/card-server-evm/rules"
)

// MaxFeeBasisPoints caps the platform fee at 10%.
const MaxFeeBasisPoints = 1000

// FeeDenominator is the basis-point scale: 10000 = 100%.
const FeeDenominator = 10000

var (
	ErrMatchNotFound         = errors.New("match not found")
	ErrNotOwner              = errors.New("caller is not the registry owner")
	ErrNotAuthorizedForHost  = errors.New("caller may not create a match for this host")
	ErrCreationPaused        = errors.New("match creation is paused")
	ErrNotOwningInstance     = errors.New("callback token does not identify the owning match instance")
	ErrMatchAlreadyClosed    = errors.New("match already reached a terminal status")
	ErrWinnerAlreadyReported = errors.New("winner already reported for this match")
	ErrInvalidWinner         = errors.New("reported winner is not a match player")
	ErrFeeTooHigh            = errors.New("platform fee exceeds the allowed maximum")
)

// Factory builds a match instance. Swapping it only affects future matches;
// running instances keep the template they were created from.
type Factory func(cfg match.Config) (*match.Match, error)

type matchEntry struct {
	record models.MatchRecord
	inst   *match.Match
	token  string
}

// Config wires a Registry's collaborators. Store, Broadcaster, Tracker and
// Monitor are optional.
type Config struct {
	Owner          string
	FeeRecipient   string
	FeeBasisPoints uint64

	Treasury    match.Treasury
	Authorizer  match.Authorizer
	Broadcaster match.Broadcaster
	Tracker     match.TurnTracker
	Store       persistence.Database
	Monitor     *monitor.Monitor
	Clock       func() time.Time
}

// Registry owns all MatchRecords and the per-player active/history indices.
type Registry struct {
	mutex sync.RWMutex

	owner          string
	feeRecipient   string
	feeBasisPoints uint64
	creationPaused bool

	entries map[string]*matchEntry
	active  map[string][]string
	history map[string][]string

	factory     Factory
	treasury    match.Treasury
	authorizer  match.Authorizer
	broadcaster match.Broadcaster
	tracker     match.TurnTracker
	store       persistence.Database
	mon         *monitor.Monitor
	clock       func() time.Time
}

func New(cfg Config) (*Registry, error) {
	if cfg.Owner == "" {
		return nil, fmt.Errorf("registry owner must be set")
	}
	if cfg.FeeBasisPoints > MaxFeeBasisPoints {
		return nil, ErrFeeTooHigh
	}
	r := &Registry{
		owner:          cfg.Owner,
		feeRecipient:   cfg.FeeRecipient,
		feeBasisPoints: cfg.FeeBasisPoints,
		entries:        make(map[string]*matchEntry),
		active:         make(map[string][]string),
		history:        make(map[string][]string),
		factory:        match.New,
		treasury:       cfg.Treasury,
		authorizer:     cfg.Authorizer,
		broadcaster:    cfg.Broadcaster,
		tracker:        cfg.Tracker,
		store:          cfg.Store,
		mon:            cfg.Monitor,
		clock:          cfg.Clock,
	}
	if r.clock == nil {
		r.clock = time.Now
	}
	return r, nil
}

// SetBroadcaster installs the event broadcaster. The broadcaster needs the
// registry as its participant directory, so it is wired after construction.
func (r *Registry) SetBroadcaster(b match.Broadcaster) {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	r.broadcaster = b
}

// SetTracker installs the turn-deadline tracker.
func (r *Registry) SetTracker(t match.TurnTracker) {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	r.tracker = t
}

// CreateMatch validates the roster, clones a fresh instance from the
// factory, escrows the host's stake and records the match as WAITING.
func (r *Registry) CreateMatch(caller, host string, players [match.PlayerCount]string, settings rules.MatchSettings, stakePerPlayer uint64) (string, error) {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	if r.creationPaused {
		return "", ErrCreationPaused
	}
	if caller != host {
		if r.authorizer == nil || !r.authorizer.ValidateDelegate(host, caller) {
			return "", ErrNotAuthorizedForHost
		}
	}
	if err := rules.ValidateSettings(match.PlayerCount, settings); err != nil {
		return "", err
	}

	matchID := uuid.New().String()
	token := uuid.New().String()

	inst, err := r.factory(match.Config{
		MatchID:        matchID,
		Host:           host,
		Players:        players,
		Settings:       settings,
		StakePerPlayer: stakePerPlayer,
		Token:          token,
		Authorizer:     r.authorizer,
		Registry:       r,
		Treasury:       r.treasury,
		Broadcaster:    r.broadcaster,
		Tracker:        r.tracker,
		Store:          r.stateStore(),
		Clock:          r.clock,
	})
	if err != nil {
		return "", err
	}

	entry := &matchEntry{
		record: models.MatchRecord{
			MatchID:     matchID,
			Host:        host,
			Players:     players,
			Settings:    settings,
			Status:      models.StatusWaiting,
			StakeAmount: stakePerPlayer,
			CreatedAt:   r.clock(),
		},
		inst:  inst,
		token: token,
	}
	r.entries[matchID] = entry
	for _, p := range players {
		r.active[p] = append(r.active[p], matchID)
	}

	if r.mon != nil {
		r.mon.IncMatchesCreated()
		r.mon.IncActiveMatches()
	}
	r.persistRecord(&entry.record)
	logger.Log.Infof("registry: created match %s, host %s, stake %d", matchID, host, stakePerPlayer)
	return matchID, nil
}

// UpdateMatchStatus is the instance-to-registry lifecycle callback. Only the
// instance holding the match's capability token is accepted; anything else
// is a security violation, not a recoverable condition.
func (r *Registry) UpdateMatchStatus(instanceToken, matchID string, status models.MatchStatus) error {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	entry, exists := r.entries[matchID]
	if !exists {
		return ErrMatchNotFound
	}
	if instanceToken != entry.token {
		logger.Log.Errorf("registry: rejected status callback for %s with a foreign token", matchID)
		return ErrNotOwningInstance
	}
	if entry.record.Status.Terminal() {
		return ErrMatchAlreadyClosed
	}

	if status == models.StatusPlaying && entry.record.StartedAt.IsZero() {
		entry.record.StartedAt = r.clock()
	}
	entry.record.Status = status
	if status.Terminal() {
		entry.record.EndedAt = r.clock()
		r.moveToHistory(matchID, entry.record.Players)
		if r.mon != nil {
			r.mon.DecActiveMatches()
		}
	}
	// The instance persists its own final snapshot; the callback path must
	// not reach back into the match, which still holds its mutex.
	r.persistRecord(&entry.record)

	logger.Log.Infof("registry: match %s is now %s", matchID, status)
	return nil
}

// ReportWinner settles a finished match: it validates the winner, computes
// the platform fee and instructs the instance to pay out. A second report
// for the same match is rejected.
func (r *Registry) ReportWinner(instanceToken, matchID, winner string) error {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	entry, exists := r.entries[matchID]
	if !exists {
		return ErrMatchNotFound
	}
	if instanceToken != entry.token {
		logger.Log.Errorf("registry: rejected winner report for %s with a foreign token", matchID)
		return ErrNotOwningInstance
	}
	if entry.record.Winner != "" {
		return ErrWinnerAlreadyReported
	}
	valid := false
	for _, p := range entry.record.Players {
		if p == winner {
			valid = true
			break
		}
	}
	if !valid {
		return ErrInvalidWinner
	}

	totalStake := r.treasury.Balance(escrow.MatchAccount(matchID))
	platformFee := totalStake * r.feeBasisPoints / FeeDenominator
	winnerPrize := totalStake - platformFee

	entry.record.Winner = winner
	r.persistRecord(&entry.record)

	if err := entry.inst.DistributePrize(entry.token, winner, winnerPrize, r.feeRecipient, platformFee); err != nil {
		logger.Log.Errorf("registry: prize distribution for %s failed: %v", matchID, err)
		return err
	}
	if r.mon != nil {
		r.mon.IncSettlements()
	}
	logger.Log.Infof("registry: match %s settled, %d to %s, fee %d", matchID, winnerPrize, winner, platformFee)
	return nil
}

// EmergencyCancelMatch is the owner's escape hatch: it cancels the instance
// (refunding every joined stake) and closes the record.
func (r *Registry) EmergencyCancelMatch(caller, matchID string) error {
	if caller != r.owner {
		return ErrNotOwner
	}

	// The instance cancel path takes the match mutex, so it runs outside
	// the registry lock.
	r.mutex.RLock()
	entry, exists := r.entries[matchID]
	r.mutex.RUnlock()
	if !exists {
		return ErrMatchNotFound
	}
	if err := entry.inst.Cancel(entry.token); err != nil {
		return err
	}
	r.closeRecord(matchID, models.StatusCancelled)
	return nil
}

// ExpireStaleMatches cancels WAITING matches older than maxAge, refunding
// joined stakes, and marks them EXPIRED. Driven by a periodic external
// sweep, never by the match core.
func (r *Registry) ExpireStaleMatches(maxAge time.Duration) int {
	cutoff := r.clock().Add(-maxAge)

	r.mutex.RLock()
	var stale []*matchEntry
	for _, e := range r.entries {
		if e.record.Status == models.StatusWaiting && e.record.CreatedAt.Before(cutoff) {
			stale = append(stale, e)
		}
	}
	r.mutex.RUnlock()

	expired := 0
	for _, e := range stale {
		if err := e.inst.Cancel(e.token); err != nil {
			logger.Log.Errorf("registry: expiring %s failed: %v", e.record.MatchID, err)
			continue
		}
		r.closeRecord(e.record.MatchID, models.StatusExpired)
		expired++
	}
	return expired
}

// closeRecord marks a terminal status reached outside the instance-callback
// path (cancellation, expiry). The snapshot is taken before the registry
// lock so the match mutex is never acquired under it.
func (r *Registry) closeRecord(matchID string, status models.MatchStatus) {
	r.mutex.RLock()
	entry, exists := r.entries[matchID]
	r.mutex.RUnlock()
	if !exists {
		return
	}
	snapshot := entry.inst.Snapshot()

	r.mutex.Lock()
	defer r.mutex.Unlock()

	if entry.record.Status.Terminal() {
		return
	}
	entry.record.Status = status
	entry.record.EndedAt = r.clock()
	r.moveToHistory(matchID, entry.record.Players)
	if r.mon != nil {
		r.mon.DecActiveMatches()
	}
	if r.store != nil {
		if err := r.store.SaveSettlement(&entry.record, &snapshot); err != nil {
			logger.Log.Errorf("registry: persist settlement %s: %v", matchID, err)
		}
	}
	logger.Log.Infof("registry: match %s closed as %s", matchID, status)
}

// moveToHistory moves matchID from each player's active index to their
// history index. Called with r.mutex held, at most once per match.
func (r *Registry) moveToHistory(matchID string, players [match.PlayerCount]string) {
	for _, p := range players {
		ids := r.active[p]
		for i, id := range ids {
			if id == matchID {
				r.active[p] = append(ids[:i], ids[i+1:]...)
				break
			}
		}
		r.history[p] = append(r.history[p], matchID)
	}
}

func (r *Registry) stateStore() match.StateStore {
	if r.store == nil {
		return nil
	}
	return stateStoreAdapter{db: r.store}
}

type stateStoreAdapter struct {
	db persistence.Database
}

func (a stateStoreAdapter) SaveMatchState(st *models.MatchState) error {
	return a.db.SaveMatchState(st)
}

func (r *Registry) persistRecord(rec *models.MatchRecord) {
	if r.store == nil {
		return
	}
	if err := r.store.SaveMatchRecord(rec); err != nil {
		logger.Log.Errorf("registry: persist record %s: %v", rec.MatchID, err)
	}
}
