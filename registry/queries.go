package registry

import (
	"github.com/Theras-Labs/card-server-evm/logger"
	"github.com/Theras-Labs/card-server-evm/match"
	"github.com/Theras-Labs/card-server-evm/models"
)

// ActiveMatches returns the records of every non-terminal match the player
// is seated in.
func (r *Registry) ActiveMatches(player string) []models.MatchRecord {
	r.mutex.RLock()
	defer r.mutex.RUnlock()
	return r.recordsFor(r.active[player])
}

// MatchHistory returns the records of every closed match the player was
// seated in.
func (r *Registry) MatchHistory(player string) []models.MatchRecord {
	r.mutex.RLock()
	defer r.mutex.RUnlock()
	return r.recordsFor(r.history[player])
}

func (r *Registry) recordsFor(ids []string) []models.MatchRecord {
	records := make([]models.MatchRecord, 0, len(ids))
	for _, id := range ids {
		if entry, exists := r.entries[id]; exists {
			records = append(records, entry.record)
		}
	}
	return records
}

// MatchesByStatus returns every record currently in the given status.
func (r *Registry) MatchesByStatus(status models.MatchStatus) []models.MatchRecord {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	var records []models.MatchRecord
	for _, entry := range r.entries {
		if entry.record.Status == status {
			records = append(records, entry.record)
		}
	}
	return records
}

// GetMatch returns the full record for one match.
func (r *Registry) GetMatch(matchID string) (models.MatchRecord, bool) {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	entry, exists := r.entries[matchID]
	if !exists {
		return models.MatchRecord{}, false
	}
	return entry.record, true
}

// Instance returns the live match instance for direct play operations.
func (r *Registry) Instance(matchID string) (*match.Match, bool) {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	entry, exists := r.entries[matchID]
	if !exists {
		return nil, false
	}
	return entry.inst, true
}

// MatchPlayers implements the broadcaster's participant directory.
func (r *Registry) MatchPlayers(matchID string) ([match.PlayerCount]string, bool) {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	entry, exists := r.entries[matchID]
	if !exists {
		return [match.PlayerCount]string{}, false
	}
	return entry.record.Players, true
}

// --- admin surface, owner-only ---

// SetPlatformFee updates the fee taken from future settlements, bounded by
// MaxFeeBasisPoints.
func (r *Registry) SetPlatformFee(caller string, basisPoints uint64) error {
	if caller != r.owner {
		return ErrNotOwner
	}
	if basisPoints > MaxFeeBasisPoints {
		return ErrFeeTooHigh
	}
	r.mutex.Lock()
	defer r.mutex.Unlock()
	r.feeBasisPoints = basisPoints
	logger.Log.Infof("registry: platform fee set to %d bp", basisPoints)
	return nil
}

// SetFeeRecipient updates where future platform fees are paid.
func (r *Registry) SetFeeRecipient(caller, recipient string) error {
	if caller != r.owner {
		return ErrNotOwner
	}
	r.mutex.Lock()
	defer r.mutex.Unlock()
	r.feeRecipient = recipient
	return nil
}

// SetCreationPaused toggles new match creation. Running matches are not
// affected.
func (r *Registry) SetCreationPaused(caller string, paused bool) error {
	if caller != r.owner {
		return ErrNotOwner
	}
	r.mutex.Lock()
	defer r.mutex.Unlock()
	r.creationPaused = paused
	logger.Log.Infof("registry: creation paused=%v", paused)
	return nil
}

// SetFactory swaps the instance factory used for future matches.
func (r *Registry) SetFactory(caller string, f Factory) error {
	if caller != r.owner {
		return ErrNotOwner
	}
	r.mutex.Lock()
	defer r.mutex.Unlock()
	r.factory = f
	return nil
}

// FeeBasisPoints returns the current platform fee.
func (r *Registry) FeeBasisPoints() uint64 {
	r.mutex.RLock()
	defer r.mutex.RUnlock()
	return r.feeBasisPoints
}
