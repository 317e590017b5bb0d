// persistence/interface.go
package persistence

import (
	"fmt"

	"github.com/Theras-Labs/card-server-evm/models"
)

// Database is the durable store for match records and play-state snapshots.
// Both must survive a restart: timeout handling is a wall-clock comparison
// made on demand, so a recovered snapshot is immediately actionable.
type Database interface {
	SaveMatchRecord(rec *models.MatchRecord) error
	LoadMatchRecord(matchID string) (*models.MatchRecord, error)
	ListMatchRecords(status models.MatchStatus) ([]models.MatchRecord, error)
	SaveMatchState(st *models.MatchState) error
	LoadMatchState(matchID string) (*models.MatchState, error)
	// SaveSettlement writes the terminal record and final snapshot in one
	// transaction.
	SaveSettlement(rec *models.MatchRecord, st *models.MatchState) error
	GetPlayerMatchStats(address string) (map[string]interface{}, error)
	Close() error
}

// 错误定义
var (
	ErrRecordNotFound = fmt.Errorf("record not found")
)
