// SPDX-License-Identifier: MIT

// Package store provides SQLite persistence for play history, the ordered
// playback queue, and the usage ledger. The store is the sole writer of
// these tables; all mutations are serialized by a store-level mutex plus a
// database transaction.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	_ "modernc.org/sqlite" // SQLite driver (pure Go, no CGO)
)

var (
	// ErrNotFound is returned when a queue entry does not exist.
	ErrNotFound = errors.New("store: entry not found")
	// ErrQueueMismatch is returned when a reorder request does not name
	// exactly the current set of queue entries.
	ErrQueueMismatch = errors.New("store: reorder ids do not match queue")
)

// Store wraps the SQLite database.
type Store struct {
	mu sync.Mutex
	db *sql.DB
}

// Open initializes the SQLite store and creates the schema.
// WAL mode and busy_timeout are set via DSN pragmas so they apply to every
// connection in the pool.
func Open(dbPath string) (*Store, error) {
	dsn := fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=synchronous(NORMAL)&_pragma=foreign_keys(ON)", dbPath)

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	db.SetMaxOpenConns(4)
	db.SetMaxIdleConns(4)
	db.SetConnMaxLifetime(time.Hour)

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return s, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS history (
		video_id TEXT PRIMARY KEY,
		title TEXT NOT NULL DEFAULT '',
		channel TEXT NOT NULL DEFAULT '',
		thumbnail TEXT NOT NULL DEFAULT '',
		play_count INTEGER NOT NULL DEFAULT 1,
		first_played_at TEXT NOT NULL,
		last_played_at TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS queue (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		video_id TEXT NOT NULL,
		title TEXT NOT NULL DEFAULT '',
		kind TEXT NOT NULL DEFAULT 'primary' CHECK(kind IN ('primary', 'summary')),
		week_tag TEXT NOT NULL DEFAULT '',
		skip_processing INTEGER NOT NULL DEFAULT 0,
		position INTEGER NOT NULL UNIQUE,
		created_at TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS usage_records (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		provider TEXT NOT NULL,
		model TEXT NOT NULL,
		feature TEXT NOT NULL,
		prompt_tokens INTEGER NOT NULL DEFAULT 0,
		response_tokens INTEGER NOT NULL DEFAULT 0,
		reasoning_tokens INTEGER NOT NULL DEFAULT 0,
		audio_seconds REAL NOT NULL DEFAULT 0,
		video_id TEXT NOT NULL DEFAULT '',
		created_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_history_last_played ON history(last_played_at);
	CREATE INDEX IF NOT EXISTS idx_usage_created ON usage_records(created_at);
	`

	_, err := s.db.Exec(schema)
	return err
}

// withTx runs fn inside a transaction under the store mutex.
func (s *Store) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}

	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}

	return tx.Commit()
}
