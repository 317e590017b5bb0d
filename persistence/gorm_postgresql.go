// persistence/gorm_postgresql.go
package persistence

import (
	"encoding/json"
	"fmt"
	"log"
	"os"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/Theras-Labs/card-server-evm/models"
	"github.com/Theras-Labs/card-server-evm/rules"
)

// GormPostgreSQL 使用GORM的PostgreSQL实现
type GormPostgreSQL struct {
	db *gorm.DB
}

// NewGormPostgreSQL 创建GORM PostgreSQL数据库连接
func NewGormPostgreSQL(host string, port int, user, password, dbname string) (*GormPostgreSQL, error) {
	dsn := fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=disable",
		host, port, user, password, dbname)

	gormLogger := logger.New(
		log.New(os.Stdout, "\r\n", log.LstdFlags),
		logger.Config{
			SlowThreshold: time.Second,
			LogLevel:      logger.Silent,
			Colorful:      false,
		},
	)

	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: gormLogger,
	})
	if err != nil {
		return nil, err
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}

	sqlDB.SetMaxIdleConns(10)
	sqlDB.SetMaxOpenConns(100)
	sqlDB.SetConnMaxLifetime(time.Hour)

	if err := db.AutoMigrate(&models.MatchRecordModel{}, &models.MatchStateModel{}); err != nil {
		return nil, err
	}

	return &GormPostgreSQL{db: db}, nil
}

// SaveMatchRecord upserts the registry record for a match.
func (p *GormPostgreSQL) SaveMatchRecord(rec *models.MatchRecord) error {
	return p.saveRecord(p.db, rec)
}

func (p *GormPostgreSQL) saveRecord(tx *gorm.DB, rec *models.MatchRecord) error {
	settings, err := json.Marshal(rec.Settings)
	if err != nil {
		return err
	}

	var row models.MatchRecordModel
	result := tx.Where("match_id = ?", rec.MatchID).First(&row)

	if result.Error == gorm.ErrRecordNotFound {
		row = models.MatchRecordModel{
			MatchID:     rec.MatchID,
			Host:        rec.Host,
			Players:     rec.Players[:],
			Settings:    string(settings),
			Status:      string(rec.Status),
			StakeAmount: rec.StakeAmount,
			Winner:      rec.Winner,
			CreatedAt:   rec.CreatedAt,
			StartedAt:   rec.StartedAt,
			EndedAt:     rec.EndedAt,
		}
		return tx.Create(&row).Error
	} else if result.Error != nil {
		return result.Error
	}

	row.Status = string(rec.Status)
	row.Winner = rec.Winner
	row.StartedAt = rec.StartedAt
	row.EndedAt = rec.EndedAt
	row.UpdatedAt = time.Now()
	return tx.Save(&row).Error
}

// LoadMatchRecord returns the record for matchID.
func (p *GormPostgreSQL) LoadMatchRecord(matchID string) (*models.MatchRecord, error) {
	var row models.MatchRecordModel
	if err := p.db.Where("match_id = ?", matchID).First(&row).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, ErrRecordNotFound
		}
		return nil, err
	}
	return recordFromModel(&row)
}

// ListMatchRecords returns every record in the given status.
func (p *GormPostgreSQL) ListMatchRecords(status models.MatchStatus) ([]models.MatchRecord, error) {
	var rows []models.MatchRecordModel
	if err := p.db.Where("status = ?", string(status)).Find(&rows).Error; err != nil {
		return nil, err
	}
	records := make([]models.MatchRecord, 0, len(rows))
	for i := range rows {
		rec, err := recordFromModel(&rows[i])
		if err != nil {
			return nil, err
		}
		records = append(records, *rec)
	}
	return records, nil
}

func recordFromModel(row *models.MatchRecordModel) (*models.MatchRecord, error) {
	rec := &models.MatchRecord{
		MatchID:     row.MatchID,
		Host:        row.Host,
		Status:      models.MatchStatus(row.Status),
		StakeAmount: row.StakeAmount,
		Winner:      row.Winner,
		CreatedAt:   row.CreatedAt,
		StartedAt:   row.StartedAt,
		EndedAt:     row.EndedAt,
	}
	copy(rec.Players[:], row.Players)
	var settings rules.MatchSettings
	if err := json.Unmarshal([]byte(row.Settings), &settings); err != nil {
		return nil, err
	}
	rec.Settings = settings
	return rec, nil
}

// SaveMatchState upserts the play-state snapshot for a match.
func (p *GormPostgreSQL) SaveMatchState(st *models.MatchState) error {
	return p.saveState(p.db, st)
}

func (p *GormPostgreSQL) saveState(tx *gorm.DB, st *models.MatchState) error {
	var row models.MatchStateModel
	result := tx.Where("match_id = ?", st.MatchID).First(&row)

	if result.Error == gorm.ErrRecordNotFound {
		row = models.MatchStateModel{
			MatchID: st.MatchID,
			Phase:   st.Phase,
			State:   *st,
		}
		return tx.Create(&row).Error
	} else if result.Error != nil {
		return result.Error
	}

	row.Phase = st.Phase
	row.State = *st
	row.UpdatedAt = time.Now()
	return tx.Save(&row).Error
}

// LoadMatchState returns the snapshot for matchID.
func (p *GormPostgreSQL) LoadMatchState(matchID string) (*models.MatchState, error) {
	var row models.MatchStateModel
	if err := p.db.Where("match_id = ?", matchID).First(&row).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, ErrRecordNotFound
		}
		return nil, err
	}
	st := row.State
	return &st, nil
}

// SaveSettlement writes the terminal record and the final snapshot in one
// transaction so a crash between the two cannot leave them disagreeing.
func (p *GormPostgreSQL) SaveSettlement(rec *models.MatchRecord, st *models.MatchState) error {
	return p.db.Transaction(func(tx *gorm.DB) error {
		if err := p.saveRecord(tx, rec); err != nil {
			return err
		}
		return p.saveState(tx, st)
	})
}

// GetPlayerMatchStats aggregates settled-match outcomes for one address.
func (p *GormPostgreSQL) GetPlayerMatchStats(address string) (map[string]interface{}, error) {
	var stats map[string]interface{}

	err := p.db.Raw(
		`
        SELECT
            COUNT(*) as total_matches,
            SUM(CASE WHEN winner = ? THEN 1 ELSE 0 END) as wins,
            SUM(CASE WHEN winner <> '' AND winner <> ? THEN 1 ELSE 0 END) as losses,
            COALESCE(SUM(stake_amount), 0) as total_staked
        FROM match_record_models
        WHERE status = 'COMPLETED' AND players @> ?`,
		address, address, fmt.Sprintf(`["%s"]`, address),
	).Scan(&stats).Error

	return stats, err
}

// Close 关闭数据库连接
func (p *GormPostgreSQL) Close() error {
	sqlDB, err := p.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
