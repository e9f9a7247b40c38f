// Package dedup remembers which webhook deliveries have been accepted so
// that provider redeliveries do not start a second sandbox run.
package dedup

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

// Config holds the store settings.
type Config struct {
	// Path is the SQLite file; ":memory:" keeps the store in-process.
	Path string `yaml:"path"`
	// Window is how long a delivery ID is remembered.
	Window time.Duration `yaml:"dedup_window"`
}

// DefaultConfig returns a store under ~/.claudehub with a one hour window.
func DefaultConfig() *Config {
	homeDir, _ := os.UserHomeDir()
	return &Config{
		Path:   filepath.Join(homeDir, ".claudehub", "claudehub.db"),
		Window: time.Hour,
	}
}

// Store is a SQLite-backed set of (provider, delivery id) pairs.
type Store struct {
	db     *sql.DB
	window time.Duration
	now    func() time.Time
}

// Open opens or creates the store at cfg.Path and migrates it.
func Open(cfg *Config) (*Store, error) {
	if cfg.Path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(cfg.Path), 0755); err != nil {
			return nil, fmt.Errorf("failed to create store directory: %w", err)
		}
	}
	db, err := sql.Open("sqlite", cfg.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// A single connection keeps ":memory:" databases shared and serializes
	// writers.
	db.SetMaxOpenConns(1)
	if _, err := db.Exec("PRAGMA journal_mode=WAL; PRAGMA busy_timeout=5000;"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to set database pragmas: %w", err)
	}

	window := cfg.Window
	if window <= 0 {
		window = time.Hour
	}
	s := &Store{db: db, window: window, now: time.Now}
	if err := s.migrate(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("dedup store migration failed: %w", err)
	}
	return s, nil
}

func (s *Store) migrate() error {
	_, err := s.db.Exec(`CREATE TABLE IF NOT EXISTS deliveries (
		provider TEXT NOT NULL,
		delivery_id TEXT NOT NULL,
		seen_at INTEGER NOT NULL,
		PRIMARY KEY (provider, delivery_id)
	)`)
	if err != nil {
		return err
	}
	_, err = s.db.Exec(`CREATE INDEX IF NOT EXISTS idx_deliveries_seen_at ON deliveries(seen_at)`)
	return err
}

// Window returns how long delivery IDs are remembered.
func (s *Store) Window() time.Duration {
	return s.window
}

// MarkIfNew records (provider, id) and reports whether it was unseen
// within the window. An entry older than the window is treated as new
// and refreshed.
func (s *Store) MarkIfNew(ctx context.Context, provider, id string) (bool, error) {
	now := s.now()
	cutoff := now.Add(-s.window).UnixNano()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("begin: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx,
		`DELETE FROM deliveries WHERE provider = ? AND delivery_id = ? AND seen_at < ?`,
		provider, id, cutoff); err != nil {
		return false, fmt.Errorf("expire delivery: %w", err)
	}
	res, err := tx.ExecContext(ctx,
		`INSERT OR IGNORE INTO deliveries (provider, delivery_id, seen_at) VALUES (?, ?, ?)`,
		provider, id, now.UnixNano())
	if err != nil {
		return false, fmt.Errorf("mark delivery: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("commit: %w", err)
	}
	return n == 1, nil
}

// Prune deletes entries recorded before now minus olderThan and returns
// how many were removed.
func (s *Store) Prune(ctx context.Context, olderThan time.Duration) (int64, error) {
	cutoff := s.now().Add(-olderThan).UnixNano()
	res, err := s.db.ExecContext(ctx, `DELETE FROM deliveries WHERE seen_at < ?`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("prune deliveries: %w", err)
	}
	return res.RowsAffected()
}

// Count returns the number of remembered deliveries.
func (s *Store) Count(ctx context.Context) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM deliveries`).Scan(&n)
	return n, err
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}
