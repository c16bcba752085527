package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/alexlhtam/vibeq/internal/core"
)

// credentialID is the primary key of the single credential row.
const credentialID = 1

// Credential loads the host credential. Returns nil without error when the
// host never authorized.
func (s *Store) Credential(ctx context.Context) (*core.Credential, error) {
	var (
		cred   core.Credential
		access sql.NullString
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT id, access_token, refresh_token, expires_at FROM credentials WHERE id = ?`,
		credentialID).Scan(&cred.ID, &access, &cred.RefreshToken, &cred.ExpiresAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load credential: %w", err)
	}

	cred.AccessToken = access.String
	return &cred, nil
}

// SaveCredential creates or overwrites the single credential row. Used when
// the host completes the authorization-code flow.
func (s *Store) SaveCredential(ctx context.Context, cred *core.Credential) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO credentials (id, access_token, refresh_token, expires_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			access_token = excluded.access_token,
			refresh_token = excluded.refresh_token,
			expires_at = excluded.expires_at`,
		credentialID, nullIfEmpty(cred.AccessToken), cred.RefreshToken, cred.ExpiresAt)
	if err != nil {
		return fmt.Errorf("save credential: %w", err)
	}
	return nil
}

// UpdateTokens atomically stores the outcome of a successful refresh. An
// empty refreshToken keeps the stored one (providers may omit rotation).
func (s *Store) UpdateTokens(ctx context.Context, accessToken, refreshToken string, expiresAt int64) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		if refreshToken != "" {
			_, err := tx.ExecContext(ctx,
				`UPDATE credentials SET access_token = ?, refresh_token = ?, expires_at = ? WHERE id = ?`,
				accessToken, refreshToken, expiresAt, credentialID)
			if err != nil {
				return fmt.Errorf("update tokens: %w", err)
			}
			return nil
		}

		_, err := tx.ExecContext(ctx,
			`UPDATE credentials SET access_token = ?, expires_at = ? WHERE id = ?`,
			accessToken, expiresAt, credentialID)
		if err != nil {
			return fmt.Errorf("update tokens: %w", err)
		}
		return nil
	})
}

func nullIfEmpty(s string) any {
	if s == "" {
		return nil
	}
	return s
}
