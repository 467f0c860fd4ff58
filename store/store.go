// Package store persists which events were answered and where the monitor
// left off, so a restart neither replies twice nor replays old mentions.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	twitterbot "github.com/anatolykoptev/go-twitterbot"
)

// Store is an SQLite-backed event ledger and cursor table.
type Store struct {
	db *sql.DB
}

var _ twitterbot.Ledger = (*Store)(nil)

// Open creates the database file and its parent directory if needed.
func Open(path string) (*Store, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("cannot create database directory %s: %w", dir, err)
	}

	db, err := sql.Open("sqlite", path+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("cannot open database: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("database migration failed: %w", err)
	}
	return s, nil
}

func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS processed_events (
		event_id     TEXT PRIMARY KEY,
		response_id  TEXT,
		handled_at   INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_processed_time ON processed_events(handled_at);

	CREATE TABLE IF NOT EXISTS cursors (
		name        TEXT PRIMARY KEY,
		checked_at  INTEGER NOT NULL
	);
	`
	_, err := s.db.Exec(schema)
	return err
}

// Close closes the database.
func (s *Store) Close() error { return s.db.Close() }

// Handled reports whether eventID was already answered.
func (s *Store) Handled(ctx context.Context, eventID string) (bool, error) {
	var one int
	err := s.db.QueryRowContext(ctx, `SELECT 1 FROM processed_events WHERE event_id = ?`, eventID).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("lookup event %s: %w", eventID, err)
	}
	return true, nil
}

// MarkHandled records eventID as answered by responseID. Marking twice keeps
// the first record.
func (s *Store) MarkHandled(ctx context.Context, eventID, responseID string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO processed_events (event_id, response_id, handled_at) VALUES (?, ?, ?)`,
		eventID, responseID, time.Now().UnixNano(),
	)
	if err != nil {
		return fmt.Errorf("mark event %s: %w", eventID, err)
	}
	return nil
}

// Prune drops ledger rows older than cutoff and returns how many went.
func (s *Store) Prune(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM processed_events WHERE handled_at < ?`, cutoff.UnixNano())
	if err != nil {
		return 0, fmt.Errorf("prune events: %w", err)
	}
	return res.RowsAffected()
}

// LoadCursor returns the saved last-checked time for name, zero if none.
func (s *Store) LoadCursor(ctx context.Context, name string) (time.Time, error) {
	var ns int64
	err := s.db.QueryRowContext(ctx, `SELECT checked_at FROM cursors WHERE name = ?`, name).Scan(&ns)
	if errors.Is(err, sql.ErrNoRows) {
		return time.Time{}, nil
	}
	if err != nil {
		return time.Time{}, fmt.Errorf("load cursor %s: %w", name, err)
	}
	return time.Unix(0, ns), nil
}

// SaveCursor stores the last-checked time for name.
func (s *Store) SaveCursor(ctx context.Context, name string, t time.Time) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO cursors (name, checked_at) VALUES (?, ?)
		 ON CONFLICT(name) DO UPDATE SET checked_at = excluded.checked_at`,
		name, t.UnixNano(),
	)
	if err != nil {
		return fmt.Errorf("save cursor %s: %w", name, err)
	}
	return nil
}
