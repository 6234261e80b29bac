// Package store is the SQLite persistence layer. All long-lived game state
// lives here; the server process itself is stateless between requests.
//
// The database runs on a single connection in WAL mode. Reads and writes of
// contended rows (points, the game row) still use conditional updates so that
// the read-apply-write cycles in the engine and the tick archiver never lose
// an update, regardless of the connection pool shape.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

type Store struct {
	db *sql.DB
}

func Open(path string) (*Store, error) {
	if path == "" {
		return nil, fmt.Errorf("empty db path")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if err := initPragmas(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	if err := initSchema(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error { return s.db.Close() }

func initPragmas(db *sql.DB) error {
	// WAL is much faster for this append-heavy workload; NORMAL is a fine
	// durability/perf tradeoff for game state that is also archived.
	pragmas := []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA synchronous=NORMAL;",
		"PRAGMA foreign_keys=ON;",
		"PRAGMA busy_timeout=5000;",
		"PRAGMA temp_store=MEMORY;",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			return err
		}
	}
	return nil
}

func initSchema(db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS game (
			id INTEGER PRIMARY KEY CHECK (id = 1),
			tick INTEGER NOT NULL DEFAULT 0,
			state TEXT NOT NULL DEFAULT 'playing'
		);`,
		`INSERT OR IGNORE INTO game (id, tick, state) VALUES (1, 0, 'playing');`,
		`CREATE TABLE IF NOT EXISTS faction (
			id TEXT PRIMARY KEY,
			name TEXT NOT NULL,
			created_at TEXT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS users (
			id TEXT PRIMARY KEY,
			name TEXT NOT NULL,
			token TEXT NOT NULL UNIQUE,
			role TEXT NOT NULL DEFAULT 'player'
		);`,
		`CREATE TABLE IF NOT EXISTS user_game_data (
			user_id TEXT PRIMARY KEY REFERENCES users(id),
			faction_id TEXT NOT NULL REFERENCES faction(id),
			last_action TEXT,
			experience INTEGER NOT NULL DEFAULT 0,
			action_points INTEGER NOT NULL DEFAULT 0
		);`,
		`CREATE TABLE IF NOT EXISTS point (
			id TEXT PRIMARY KEY,
			name TEXT NOT NULL,
			health INTEGER NOT NULL,
			max_health INTEGER NOT NULL,
			level INTEGER NOT NULL DEFAULT 1,
			acquired_by TEXT REFERENCES faction(id),
			created_at TEXT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS point_user (
			point_id TEXT NOT NULL REFERENCES point(id),
			user_id TEXT NOT NULL REFERENCES users(id),
			created_at TEXT NOT NULL,
			PRIMARY KEY (point_id, user_id)
		);`,
		`CREATE TABLE IF NOT EXISTS puzzle (
			id TEXT PRIMARY KEY,
			user_id TEXT NOT NULL REFERENCES users(id),
			type TEXT NOT NULL,
			task TEXT NOT NULL,
			solved INTEGER NOT NULL DEFAULT 0,
			timeout INTEGER NOT NULL DEFAULT 0,
			consumed INTEGER NOT NULL DEFAULT 0,
			created_at TEXT NOT NULL,
			expires_at TEXT NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_puzzle_user ON puzzle(user_id, created_at);`,
		`CREATE TABLE IF NOT EXISTS puzzle_result (
			id TEXT PRIMARY KEY REFERENCES puzzle(id),
			user_id TEXT NOT NULL REFERENCES users(id),
			result TEXT NOT NULL,
			created_at TEXT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS actions (
			id TEXT PRIMARY KEY,
			created_by TEXT NOT NULL REFERENCES users(id),
			point TEXT NOT NULL REFERENCES point(id),
			puzzle TEXT NOT NULL UNIQUE REFERENCES puzzle(id),
			type TEXT NOT NULL,
			created_at TEXT NOT NULL,
			applied_tick INTEGER
		);`,
		`CREATE INDEX IF NOT EXISTS idx_actions_pending ON actions(applied_tick) WHERE applied_tick IS NULL;`,
		`CREATE INDEX IF NOT EXISTS idx_actions_point ON actions(point, created_at);`,
		`CREATE TABLE IF NOT EXISTS point_tick_archive (
			point_id TEXT NOT NULL REFERENCES point(id),
			tick INTEGER NOT NULL,
			health INTEGER,
			acquired_by TEXT,
			created_at TEXT NOT NULL,
			PRIMARY KEY (point_id, tick)
		);`,
	}
	for _, s := range stmts {
		if _, err := db.Exec(s); err != nil {
			return err
		}
	}
	return nil
}

// Tx runs fn inside one transaction; any error rolls everything back.
func (s *Store) Tx(ctx context.Context, fn func(tx *Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	if err := fn(&Tx{tx: tx}); err != nil {
		_ = tx.Rollback()
		return err
	}
	return tx.Commit()
}

func fmtTime(t time.Time) string { return t.UTC().Format(time.RFC3339Nano) }

func parseTime(s string) (time.Time, error) { return time.Parse(time.RFC3339Nano, s) }
