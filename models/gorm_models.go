// models/gorm_models.go
package models

import (
	"time"
)

// MatchRecordModel is the persisted form of MatchRecord.
type MatchRecordModel struct {
	ID          uint      `gorm:"primaryKey"`
	MatchID     string    `gorm:"uniqueIndex;not null"`
	Host        string    `gorm:"index;not null"`
	Players     []string  `gorm:"serializer:json;type:jsonb;not null"`
	Settings    string    `gorm:"type:jsonb;not null"`
	Status      string    `gorm:"index;not null"`
	StakeAmount uint64    `gorm:"not null"`
	Winner      string    `gorm:"index"`
	CreatedAt   time.Time
	StartedAt   time.Time
	EndedAt     time.Time
	UpdatedAt   time.Time
}

// MatchStateModel holds the durable play-state snapshot. Timeout handling
// compares wall clocks on demand, so a restarted process can resume a match
// from the last snapshot.
type MatchStateModel struct {
	ID        uint       `gorm:"primaryKey"`
	MatchID   string     `gorm:"uniqueIndex;not null"`
	Phase     string     `gorm:"index;not null"`
	State     MatchState `gorm:"serializer:json;type:jsonb;not null"`
	UpdatedAt time.Time
}
