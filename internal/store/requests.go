package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/alexlhtam/vibeq/internal/core"
)

// InsertRequest stores a new PENDING request for the given party.
func (s *Store) InsertRequest(ctx context.Context, party core.PartyID, track core.Track) (*core.SongRequest, error) {
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO song_requests (party_id, track_id, title, artist, artwork_url, duration_ms, explicit, status, position)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, 0)`,
		int64(party), track.ID, track.Title, track.Artist, track.ArtworkURL,
		track.DurationMS, boolToInt(track.Explicit), core.StatusPending)
	if err != nil {
		return nil, fmt.Errorf("insert request: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("insert request: %w", err)
	}

	return &core.SongRequest{
		ID:         id,
		Party:      party,
		TrackID:    track.ID,
		Title:      track.Title,
		Artist:     track.Artist,
		ArtworkURL: track.ArtworkURL,
		DurationMS: track.DurationMS,
		Explicit:   track.Explicit,
		Status:     core.StatusPending,
	}, nil
}

// Request loads a single request. Returns nil without error when absent.
func (s *Store) Request(ctx context.Context, party core.PartyID, id int64) (*core.SongRequest, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, party_id, track_id, title, artist, artwork_url, duration_ms, explicit, status, position
		FROM song_requests WHERE party_id = ? AND id = ?`, int64(party), id)

	req, err := scanRequest(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load request: %w", err)
	}
	return req, nil
}

// Approve transitions a request to APPROVED at the tail of the playback
// order. The max-position read and the update happen in one transaction so
// concurrent approvals never assign the same position. Returns false when
// the id does not exist. Approving an already-approved request keeps its
// position.
func (s *Store) Approve(ctx context.Context, party core.PartyID, id int64) (bool, error) {
	found := false
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		var status core.RequestStatus
		err := tx.QueryRowContext(ctx,
			`SELECT status FROM song_requests WHERE party_id = ? AND id = ?`,
			int64(party), id).Scan(&status)
		if err == sql.ErrNoRows {
			return nil
		}
		if err != nil {
			return fmt.Errorf("approve: load status: %w", err)
		}
		found = true

		if status == core.StatusApproved {
			return nil
		}

		var maxPos sql.NullInt64
		err = tx.QueryRowContext(ctx,
			`SELECT MAX(position) FROM song_requests WHERE party_id = ? AND status = ?`,
			int64(party), core.StatusApproved).Scan(&maxPos)
		if err != nil {
			return fmt.Errorf("approve: read max position: %w", err)
		}

		next := maxPos.Int64 + 1
		if !maxPos.Valid {
			next = 1
		}

		_, err = tx.ExecContext(ctx,
			`UPDATE song_requests SET status = ?, position = ? WHERE party_id = ? AND id = ?`,
			core.StatusApproved, next, int64(party), id)
		if err != nil {
			return fmt.Errorf("approve: update: %w", err)
		}
		return nil
	})
	return found, err
}

// SetStatus updates only the status, leaving position untouched. Returns
// false when the id does not exist.
func (s *Store) SetStatus(ctx context.Context, party core.PartyID, id int64, status core.RequestStatus) (bool, error) {
	res, err := s.db.ExecContext(ctx,
		`UPDATE song_requests SET status = ? WHERE party_id = ? AND id = ?`,
		status, int64(party), id)
	if err != nil {
		return false, fmt.Errorf("set status: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("set status: %w", err)
	}
	return n > 0, nil
}

// DeleteRequest removes a request outright regardless of status.
func (s *Store) DeleteRequest(ctx context.Context, party core.PartyID, id int64) (bool, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM song_requests WHERE party_id = ? AND id = ?`, int64(party), id)
	if err != nil {
		return false, fmt.Errorf("delete request: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("delete request: %w", err)
	}
	return n > 0, nil
}

// ApprovedRequests returns the APPROVED requests ordered by position.
func (s *Store) ApprovedRequests(ctx context.Context, party core.PartyID) ([]core.SongRequest, error) {
	return s.queryRequests(ctx, `
		SELECT id, party_id, track_id, title, artist, artwork_url, duration_ms, explicit, status, position
		FROM song_requests WHERE party_id = ? AND status = ?
		ORDER BY position ASC, id ASC`, int64(party), core.StatusApproved)
}

// AssignOrder applies a caller-supplied ordering: each supplied id that
// exists gets position index+1; unknown ids are skipped. APPROVED requests
// omitted from the list are appended after the supplied ones, preserving
// their previous relative order, so positions stay unique.
func (s *Store) AssignOrder(ctx context.Context, party core.PartyID, orderedIDs []int64) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		rows, err := tx.QueryContext(ctx, `
			SELECT id FROM song_requests WHERE party_id = ? AND status = ?
			ORDER BY position ASC, id ASC`, int64(party), core.StatusApproved)
		if err != nil {
			return fmt.Errorf("reorder: load approved: %w", err)
		}
		var approved []int64
		for rows.Next() {
			var id int64
			if err := rows.Scan(&id); err != nil {
				rows.Close()
				return fmt.Errorf("reorder: scan: %w", err)
			}
			approved = append(approved, id)
		}
		rows.Close()
		if err := rows.Err(); err != nil {
			return fmt.Errorf("reorder: iterate: %w", err)
		}

		supplied := make(map[int64]struct{}, len(orderedIDs))
		pos := 0
		for _, id := range orderedIDs {
			res, err := tx.ExecContext(ctx,
				`UPDATE song_requests SET position = ? WHERE party_id = ? AND id = ?`,
				pos+1, int64(party), id)
			if err != nil {
				return fmt.Errorf("reorder: update: %w", err)
			}
			n, err := res.RowsAffected()
			if err != nil {
				return fmt.Errorf("reorder: update: %w", err)
			}
			if n == 0 {
				continue // unknown id, silently skipped
			}
			supplied[id] = struct{}{}
			pos++
		}

		// Approved requests the caller left out keep their relative order
		// after the supplied block.
		for _, id := range approved {
			if _, ok := supplied[id]; ok {
				continue
			}
			pos++
			_, err := tx.ExecContext(ctx,
				`UPDATE song_requests SET position = ? WHERE party_id = ? AND id = ?`,
				pos, int64(party), id)
			if err != nil {
				return fmt.Errorf("reorder: append omitted: %w", err)
			}
		}
		return nil
	})
}

// ShuffleApproved permutes the existing position values across the APPROVED
// requests. permute(n) must return a permutation of [0..n). The set of
// occupied positions is preserved; only which request holds which changes.
func (s *Store) ShuffleApproved(ctx context.Context, party core.PartyID, permute func(n int) []int) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		rows, err := tx.QueryContext(ctx, `
			SELECT id, position FROM song_requests WHERE party_id = ? AND status = ?
			ORDER BY position ASC, id ASC`, int64(party), core.StatusApproved)
		if err != nil {
			return fmt.Errorf("shuffle: load approved: %w", err)
		}
		var (
			ids       []int64
			positions []int
		)
		for rows.Next() {
			var (
				id  int64
				pos int
			)
			if err := rows.Scan(&id, &pos); err != nil {
				rows.Close()
				return fmt.Errorf("shuffle: scan: %w", err)
			}
			ids = append(ids, id)
			positions = append(positions, pos)
		}
		rows.Close()
		if err := rows.Err(); err != nil {
			return fmt.Errorf("shuffle: iterate: %w", err)
		}

		if len(ids) < 2 {
			return nil
		}

		perm := permute(len(positions))
		for i, id := range ids {
			_, err := tx.ExecContext(ctx,
				`UPDATE song_requests SET position = ? WHERE party_id = ? AND id = ?`,
				positions[perm[i]], int64(party), id)
			if err != nil {
				return fmt.Errorf("shuffle: update: %w", err)
			}
		}
		return nil
	})
}

// VisibleRequests returns every request except COMPLETED ones, ordered by
// (position ASC, id ASC). The id tiebreak keeps position-0 rows (PENDING,
// REJECTED) in a deterministic order.
func (s *Store) VisibleRequests(ctx context.Context, party core.PartyID) ([]core.SongRequest, error) {
	return s.queryRequests(ctx, `
		SELECT id, party_id, track_id, title, artist, artwork_url, duration_ms, explicit, status, position
		FROM song_requests WHERE party_id = ? AND status != ?
		ORDER BY position ASC, id ASC`, int64(party), core.StatusCompleted)
}

// ClearRequests deletes every request of the party unconditionally.
func (s *Store) ClearRequests(ctx context.Context, party core.PartyID) error {
	if _, err := s.db.ExecContext(ctx,
		`DELETE FROM song_requests WHERE party_id = ?`, int64(party)); err != nil {
		return fmt.Errorf("clear requests: %w", err)
	}
	return nil
}

// TrackIDs returns the catalog track id of every request ever stored for the
// party, any status. Backs the suggestion exclusion set.
func (s *Store) TrackIDs(ctx context.Context, party core.PartyID) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT DISTINCT track_id FROM song_requests WHERE party_id = ?`, int64(party))
	if err != nil {
		return nil, fmt.Errorf("load track ids: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("load track ids: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// Artists returns the distinct artist names among APPROVED and COMPLETED
// requests, in first-approval order.
func (s *Store) Artists(ctx context.Context, party core.PartyID) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT artist, MIN(id) AS first_id FROM song_requests
		WHERE party_id = ? AND status IN (?, ?) AND artist != ''
		GROUP BY artist ORDER BY first_id ASC`,
		int64(party), core.StatusApproved, core.StatusCompleted)
	if err != nil {
		return nil, fmt.Errorf("load artists: %w", err)
	}
	defer rows.Close()

	var artists []string
	for rows.Next() {
		var (
			artist  string
			firstID int64
		)
		if err := rows.Scan(&artist, &firstID); err != nil {
			return nil, fmt.Errorf("load artists: %w", err)
		}
		artists = append(artists, artist)
	}
	return artists, rows.Err()
}

func (s *Store) queryRequests(ctx context.Context, query string, args ...any) ([]core.SongRequest, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query requests: %w", err)
	}
	defer rows.Close()

	var reqs []core.SongRequest
	for rows.Next() {
		req, err := scanRequest(rows)
		if err != nil {
			return nil, fmt.Errorf("scan request: %w", err)
		}
		reqs = append(reqs, *req)
	}
	return reqs, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRequest(row rowScanner) (*core.SongRequest, error) {
	var (
		req      core.SongRequest
		party    int64
		explicit int
	)
	err := row.Scan(&req.ID, &party, &req.TrackID, &req.Title, &req.Artist,
		&req.ArtworkURL, &req.DurationMS, &explicit, &req.Status, &req.Position)
	if err != nil {
		return nil, err
	}
	req.Party = core.PartyID(party)
	req.Explicit = explicit != 0
	return &req, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
