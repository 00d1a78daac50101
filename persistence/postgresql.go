package persistence

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "github.com/lib/pq" // PostgreSQL driver

	"github.com/wfunc/boardrelay/models"
)

// PostgreSQL is the database/sql archive implementation.
type PostgreSQL struct {
	db *sql.DB
}

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
            room_id VARCHAR(255) NOT NULL,
            game_type VARCHAR(100) NOT NULL,
            guests JSONB NOT NULL,
            started_at TIMESTAMP,
            ended_at TIMESTAMP,
            duration INT DEFAULT 0,
            created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
        )
    `)
	if err != nil {
		return err
	}

	_, err = db.Exec(`
        CREATE INDEX IF NOT EXISTS idx_match_records_room_id ON match_records(room_id);
        CREATE INDEX IF NOT EXISTS idx_match_records_created_at ON match_records(created_at);
    `)
	return err
}

func (p *PostgreSQL) SaveMatchRecord(record *models.MatchRecord) error {
	guests, err := json.Marshal(record.GuestIDs)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	_, err = p.db.ExecContext(ctx, `
        INSERT INTO match_records (room_id, game_type, guests, started_at, ended_at, duration)
        VALUES ($1, $2, $3, $4, $5, $6)
    `, record.RoomID, record.GameType, guests, record.StartedAt, record.EndedAt, record.Duration)
	return err
}

func (p *PostgreSQL) RecentMatchRecords(limit int) ([]models.MatchRecord, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	rows, err := p.db.QueryContext(ctx, `
        SELECT room_id, game_type, guests, started_at, ended_at, duration
        FROM match_records
        ORDER BY created_at DESC
        LIMIT $1
    `, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []models.MatchRecord
	for rows.Next() {
		var (
			record models.MatchRecord
			guests []byte
		)
		if err := rows.Scan(&record.RoomID, &record.GameType, &guests,
			&record.StartedAt, &record.EndedAt, &record.Duration); err != nil {
			return nil, err
		}
		if err := json.Unmarshal(guests, &record.GuestIDs); err != nil {
			return nil, err
		}
		records = append(records, record)
	}
	return records, rows.Err()
}

func (p *PostgreSQL) Close() error {
	return p.db.Close()
}
