// persistence/postgresql.go
package persistence

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	// PostgreSQL 驱动
	_ "github.com/lib/pq"

	"github.com/Theras-Labs/card-server-evm/models"
)

// PostgreSQL is the raw database/sql implementation of Database, for
// deployments that prefer plain SQL over GORM.
type PostgreSQL struct {
	db *sql.DB
}

// NewPostgreSQL 创建 PostgreSQL 数据库连接
func NewPostgreSQL(host string, port int, user, password, dbname string) (*PostgreSQL, error) {
	connStr := fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=disable",
		host, port, user, password, dbname)

	db, err := sql.Open("postgres", connStr)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		return nil, err
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(25)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := initTables(db); err != nil {
		return nil, err
	}

	return &PostgreSQL{db: db}, nil
}

func initTables(db *sql.DB) error {
	_, err := db.Exec(`
        CREATE TABLE IF NOT EXISTS match_records (
            id SERIAL PRIMARY KEY,
            match_id VARCHAR(255) UNIQUE NOT NULL,
            host VARCHAR(255) NOT NULL,
            players JSONB NOT NULL,
            settings JSONB NOT NULL,
            status VARCHAR(32) NOT NULL,
            stake_amount BIGINT NOT NULL DEFAULT 0,
            winner VARCHAR(255) NOT NULL DEFAULT '',
            created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
            started_at TIMESTAMP,
            ended_at TIMESTAMP,
            updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
        )
    `)
	if err != nil {
		return err
	}

	_, err = db.Exec(`
        CREATE TABLE IF NOT EXISTS match_states (
            id SERIAL PRIMARY KEY,
            match_id VARCHAR(255) UNIQUE NOT NULL,
            phase VARCHAR(32) NOT NULL,
            state JSONB NOT NULL,
            updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
        )
    `)
	return err
}

// SaveMatchRecord 保存比赛记录
func (p *PostgreSQL) SaveMatchRecord(rec *models.MatchRecord) error {
	return p.saveRecordTx(p.db, rec)
}

type execer interface {
	Exec(query string, args ...interface{}) (sql.Result, error)
}

func (p *PostgreSQL) saveRecordTx(ex execer, rec *models.MatchRecord) error {
	players, err := json.Marshal(rec.Players[:])
	if err != nil {
		return err
	}
	settings, err := json.Marshal(rec.Settings)
	if err != nil {
		return err
	}

	_, err = ex.Exec(`
        INSERT INTO match_records
            (match_id, host, players, settings, status, stake_amount, winner, created_at, started_at, ended_at, updated_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, CURRENT_TIMESTAMP)
        ON CONFLICT (match_id) DO UPDATE SET
            status = EXCLUDED.status,
            winner = EXCLUDED.winner,
            started_at = EXCLUDED.started_at,
            ended_at = EXCLUDED.ended_at,
            updated_at = CURRENT_TIMESTAMP`,
		rec.MatchID, rec.Host, players, settings, string(rec.Status),
		rec.StakeAmount, rec.Winner, rec.CreatedAt,
		nullableTime(rec.StartedAt), nullableTime(rec.EndedAt),
	)
	return err
}

func nullableTime(t time.Time) interface{} {
	if t.IsZero() {
		return nil
	}
	return t
}

// LoadMatchRecord 加载比赛记录
func (p *PostgreSQL) LoadMatchRecord(matchID string) (*models.MatchRecord, error) {
	row := p.db.QueryRow(`
        SELECT match_id, host, players, settings, status, stake_amount, winner,
               created_at, COALESCE(started_at, 'epoch'), COALESCE(ended_at, 'epoch')
        FROM match_records WHERE match_id = $1`, matchID)
	return scanRecord(row)
}

// ListMatchRecords 按状态列出比赛
func (p *PostgreSQL) ListMatchRecords(status models.MatchStatus) ([]models.MatchRecord, error) {
	rows, err := p.db.Query(`
        SELECT match_id, host, players, settings, status, stake_amount, winner,
               created_at, COALESCE(started_at, 'epoch'), COALESCE(ended_at, 'epoch')
        FROM match_records WHERE status = $1`, string(status))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []models.MatchRecord
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, *rec)
	}
	return records, rows.Err()
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanRecord(row rowScanner) (*models.MatchRecord, error) {
	var (
		rec      models.MatchRecord
		players  []byte
		settings []byte
		status   string
	)
	err := row.Scan(&rec.MatchID, &rec.Host, &players, &settings, &status,
		&rec.StakeAmount, &rec.Winner, &rec.CreatedAt, &rec.StartedAt, &rec.EndedAt)
	if err == sql.ErrNoRows {
		return nil, ErrRecordNotFound
	}
	if err != nil {
		return nil, err
	}
	rec.Status = models.MatchStatus(status)

	var addrs []string
	if err := json.Unmarshal(players, &addrs); err != nil {
		return nil, err
	}
	copy(rec.Players[:], addrs)
	if err := json.Unmarshal(settings, &rec.Settings); err != nil {
		return nil, err
	}
	return &rec, nil
}

// SaveMatchState 保存比赛状态快照
func (p *PostgreSQL) SaveMatchState(st *models.MatchState) error {
	return p.saveStateTx(p.db, st)
}

func (p *PostgreSQL) saveStateTx(ex execer, st *models.MatchState) error {
	data, err := json.Marshal(st)
	if err != nil {
		return err
	}
	_, err = ex.Exec(`
        INSERT INTO match_states (match_id, phase, state, updated_at)
        VALUES ($1, $2, $3, CURRENT_TIMESTAMP)
        ON CONFLICT (match_id) DO UPDATE SET
            phase = EXCLUDED.phase,
            state = EXCLUDED.state,
            updated_at = CURRENT_TIMESTAMP`,
		st.MatchID, st.Phase, data)
	return err
}

// LoadMatchState 加载比赛状态快照
func (p *PostgreSQL) LoadMatchState(matchID string) (*models.MatchState, error) {
	var data []byte
	err := p.db.QueryRow(`SELECT state FROM match_states WHERE match_id = $1`, matchID).Scan(&data)
	if err == sql.ErrNoRows {
		return nil, ErrRecordNotFound
	}
	if err != nil {
		return nil, err
	}
	var st models.MatchState
	if err := json.Unmarshal(data, &st); err != nil {
		return nil, err
	}
	return &st, nil
}

// SaveSettlement 在单个事务中写入终态记录和最终快照
func (p *PostgreSQL) SaveSettlement(rec *models.MatchRecord, st *models.MatchState) error {
	tx, err := p.db.Begin()
	if err != nil {
		return err
	}
	if err := p.saveRecordTx(tx, rec); err != nil {
		tx.Rollback()
		return err
	}
	if err := p.saveStateTx(tx, st); err != nil {
		tx.Rollback()
		return err
	}
	return tx.Commit()
}

// GetPlayerMatchStats 聚合玩家战绩
func (p *PostgreSQL) GetPlayerMatchStats(address string) (map[string]interface{}, error) {
	row := p.db.QueryRow(`
        SELECT
            COUNT(*),
            COALESCE(SUM(CASE WHEN winner = $1 THEN 1 ELSE 0 END), 0),
            COALESCE(SUM(CASE WHEN winner <> '' AND winner <> $1 THEN 1 ELSE 0 END), 0),
            COALESCE(SUM(stake_amount), 0)
        FROM match_records
        WHERE status = 'COMPLETED' AND players @> $2`,
		address, fmt.Sprintf(`["%s"]`, address))

	var total, wins, losses, staked int64
	if err := row.Scan(&total, &wins, &losses, &staked); err != nil {
		return nil, err
	}
	return map[string]interface{}{
		"total_matches": total,
		"wins":          wins,
		"losses":        losses,
		"total_staked":  staked,
	}, nil
}

// Close 关闭数据库连接
func (p *PostgreSQL) Close() error {
	return p.db.Close()
}
