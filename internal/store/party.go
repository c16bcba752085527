package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/alexlhtam/vibeq/internal/core"
)

// EnsureParty returns the id of the party with the given room code, creating
// it if missing. Called once at startup to establish the active playback
// context.
func (s *Store) EnsureParty(ctx context.Context, roomCode string) (core.PartyID, error) {
	var id int64
	err := s.db.QueryRowContext(ctx,
		`SELECT id FROM parties WHERE room_code = ?`, roomCode).Scan(&id)
	if err == nil {
		return core.PartyID(id), nil
	}
	if err != sql.ErrNoRows {
		return 0, fmt.Errorf("lookup party: %w", err)
	}

	res, err := s.db.ExecContext(ctx,
		`INSERT INTO parties (room_code) VALUES (?)`, roomCode)
	if err != nil {
		return 0, fmt.Errorf("create party: %w", err)
	}

	id, err = res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("create party: %w", err)
	}
	return core.PartyID(id), nil
}
