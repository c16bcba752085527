// Package store persists credentials, song requests and settings in SQLite
// and provides the transactional operations the queue engine builds on.
package store

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"
)

const schema = `
CREATE TABLE IF NOT EXISTS parties (
	id        INTEGER PRIMARY KEY AUTOINCREMENT,
	room_code TEXT NOT NULL UNIQUE
);

CREATE TABLE IF NOT EXISTS credentials (
	id            INTEGER PRIMARY KEY,
	access_token  TEXT,
	refresh_token TEXT NOT NULL,
	expires_at    INTEGER NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS song_requests (
	id          INTEGER PRIMARY KEY AUTOINCREMENT,
	party_id    INTEGER NOT NULL,
	track_id    TEXT NOT NULL,
	title       TEXT NOT NULL DEFAULT '',
	artist      TEXT NOT NULL DEFAULT '',
	artwork_url TEXT NOT NULL DEFAULT '',
	duration_ms INTEGER NOT NULL DEFAULT 0,
	explicit    INTEGER NOT NULL DEFAULT 0,
	status      TEXT NOT NULL DEFAULT 'PENDING',
	position    INTEGER NOT NULL DEFAULT 0
);
CREATE INDEX IF NOT EXISTS idx_song_requests_party_status ON song_requests(party_id, status);
CREATE INDEX IF NOT EXISTS idx_song_requests_track ON song_requests(party_id, track_id);

CREATE TABLE IF NOT EXISTS settings (
	key   TEXT PRIMARY KEY,
	value TEXT NOT NULL
);
`

// Store wraps the SQLite handle. All methods are safe for concurrent use;
// read-modify-write sequences run inside single transactions.
type Store struct {
	db     *sql.DB
	logger *zap.Logger
}

// Open opens (or creates) the database at path and bootstraps the schema.
// Path can be ":memory:" for tests.
func Open(path string, logger *zap.Logger) (*Store, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	// SQLite allows a single writer; one open connection avoids spurious
	// SQLITE_BUSY under concurrent approvals while keeping transactions
	// truly serialized.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to bootstrap schema: %w", err)
	}

	return &Store{db: db, logger: logger}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// withTx runs fn inside a transaction, committing on nil and rolling back on
// error.
func (s *Store) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}

	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			s.logger.Warn("Transaction rollback failed", zap.Error(rbErr))
		}
		return err
	}

	return tx.Commit()
}
