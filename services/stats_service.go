package services

import (
	"fmt"

	"github.com/Theras-Labs/card-server-evm/models"
	"github.com/Theras-Labs/card-server-evm/persistence"
)

// StatsService answers aggregate questions about a player's settled
// matches.
type StatsService struct {
	db persistence.Database
}

func NewStatsService(db persistence.Database) *StatsService {
	return &StatsService{db: db}
}

// GetPlayerStats returns win/loss/stake aggregates for one address.
func (s *StatsService) GetPlayerStats(address string) (map[string]interface{}, error) {
	if address == "" {
		return nil, fmt.Errorf("address must not be empty")
	}
	return s.db.GetPlayerMatchStats(address)
}

// GetMatchOutcome returns the terminal record for one match, or an error if
// it is still running.
func (s *StatsService) GetMatchOutcome(matchID string) (*models.MatchRecord, error) {
	rec, err := s.db.LoadMatchRecord(matchID)
	if err != nil {
		return nil, err
	}
	if !rec.Status.Terminal() {
		return nil, fmt.Errorf("match %s has not ended", matchID)
	}
	return rec, nil
}
