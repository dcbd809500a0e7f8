// Package history records completed rentals in a local SQLite database
// so earnings can be reviewed after the fact.
package history

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/begna112/vast-monitor/internal/session"
)

const schema = `
CREATE TABLE IF NOT EXISTS rentals (
	id          INTEGER PRIMARY KEY AUTOINCREMENT,
	machine_id  INTEGER NOT NULL,
	session_id  TEXT NOT NULL,
	gpu_name    TEXT NOT NULL DEFAULT '',
	gpu_count   INTEGER NOT NULL DEFAULT 0,
	gpu_rate    REAL NOT NULL DEFAULT 0,
	storage_gb  REAL NOT NULL DEFAULT 0,
	rental_type TEXT NOT NULL DEFAULT '',
	started_at  TIMESTAMP,
	ended_at    TIMESTAMP NOT NULL,
	duration_s  INTEGER NOT NULL DEFAULT 0
);
CREATE INDEX IF NOT EXISTS idx_rentals_machine ON rentals(machine_id, ended_at);
`

// Record is one completed rental row.
type Record struct {
	MachineID  int        `json:"machine_id"`
	SessionID  string     `json:"session_id"`
	GPUName    string     `json:"gpu_name"`
	GPUCount   int        `json:"gpu_count"`
	GPURate    float64    `json:"gpu_rate"`
	StorageGB  float64    `json:"storage_gb"`
	RentalType string     `json:"rental_type"`
	StartedAt  *time.Time `json:"started_at,omitempty"`
	EndedAt    time.Time  `json:"ended_at"`
	Duration   int64      `json:"duration_seconds"`
}

type Store struct {
	db *sql.DB
}

// Open opens or creates the history database and applies the schema.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("open history db: %w", err)
	}
	// A single writer keeps SQLite happy under WAL.
	db.SetMaxOpenConns(1)
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply history schema: %w", err)
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// RecordEnd inserts the completed rental carried by a rental_end event.
func (s *Store) RecordEnd(ctx context.Context, ev session.Event) error {
	info := ev.Session
	if info == nil {
		return fmt.Errorf("event has no session payload")
	}
	endedAt := ev.Time
	if info.EndedAt != nil {
		endedAt = *info.EndedAt
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO rentals (machine_id, session_id, gpu_name, gpu_count, gpu_rate,
			storage_gb, rental_type, started_at, ended_at, duration_s)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		ev.MachineID, info.ID, info.GPUName, info.GPUCount, info.GPURate,
		info.StorageGB, info.RentalType, info.StartedAt, endedAt,
		int64(info.Duration.Seconds()))
	if err != nil {
		return fmt.Errorf("insert rental: %w", err)
	}
	return nil
}

// Recent returns the most recently ended rentals, newest first.
func (s *Store) Recent(ctx context.Context, limit int) ([]Record, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT machine_id, session_id, gpu_name, gpu_count, gpu_rate,
			storage_gb, rental_type, started_at, ended_at, duration_s
		FROM rentals ORDER BY ended_at DESC, id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query rentals: %w", err)
	}
	defer rows.Close()

	var out []Record
	for rows.Next() {
		var r Record
		if err := rows.Scan(&r.MachineID, &r.SessionID, &r.GPUName, &r.GPUCount,
			&r.GPURate, &r.StorageGB, &r.RentalType, &r.StartedAt, &r.EndedAt,
			&r.Duration); err != nil {
			return nil, fmt.Errorf("scan rental: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}
