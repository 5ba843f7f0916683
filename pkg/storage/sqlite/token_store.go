package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/pgrlq7/pierre-mcp-server-sub000/pkg/storage"
)

// TokenStore implements storage.TokenStore over the per-provider token
// columns of the users table.
type TokenStore struct {
	wrapper *DB
	db      *sql.DB
}

// NewTokenStore creates a new SQLite-backed TokenStore.
func NewTokenStore(db *DB) *TokenStore {
	return &TokenStore{wrapper: db, db: db.DB()}
}

var _ storage.TokenStore = (*TokenStore)(nil)

// providerColumnPrefixes whitelists the provider names that map onto table
// columns. Column names cannot be parametrized, so the provider must resolve
// through this table before being interpolated into SQL.
var providerColumnPrefixes = map[string]string{
	"strava": "strava",
	"fitbit": "fitbit",
}

func columnPrefix(provider string) (string, error) {
	prefix, ok := providerColumnPrefixes[provider]
	if !ok {
		return "", fmt.Errorf("unknown provider: %s", provider)
	}
	return prefix, nil
}

// Upsert replaces the stored token row for (userID, provider).
func (s *TokenStore) Upsert(ctx context.Context, userID, provider string, row *storage.EncryptedTokenRow) error {
	prefix, err := columnPrefix(provider)
	if err != nil {
		return err
	}

	res, err := s.db.ExecContext(ctx, fmt.Sprintf(`
		UPDATE users SET
			%[1]s_access_token = ?,
			%[1]s_refresh_token = ?,
			%[1]s_expires_at = ?,
			%[1]s_scope = ?,
			%[1]s_nonce = ?
		WHERE id = ?`, prefix),
		row.AccessToken,
		row.RefreshToken,
		row.ExpiresAt.UTC().Format(time.RFC3339Nano),
		row.Scope,
		row.Nonce,
		userID,
	)
	if err != nil {
		return fmt.Errorf("storing %s token: %w", provider, err)
	}
	return checkAffected(res)
}

// Get returns the stored row for (userID, provider), or storage.ErrNotFound
// when the user has no token for the provider.
func (s *TokenStore) Get(ctx context.Context, userID, provider string) (*storage.EncryptedTokenRow, error) {
	prefix, err := columnPrefix(provider)
	if err != nil {
		return nil, err
	}

	var (
		access, refresh []byte
		expiresAt       sql.NullString
		scope, nonce    sql.NullString
	)
	err = s.db.QueryRowContext(ctx, fmt.Sprintf(`
		SELECT %[1]s_access_token, %[1]s_refresh_token, %[1]s_expires_at, %[1]s_scope, %[1]s_nonce
		FROM users WHERE id = ?`, prefix),
		userID,
	).Scan(&access, &refresh, &expiresAt, &scope, &nonce)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("reading %s token: %w", provider, err)
	}

	// The user exists but has never linked this provider.
	if len(access) == 0 {
		return nil, storage.ErrNotFound
	}

	expires, err := time.Parse(time.RFC3339Nano, expiresAt.String)
	if err != nil {
		return nil, fmt.Errorf("parsing %s expires_at: %w", provider, err)
	}

	return &storage.EncryptedTokenRow{
		AccessToken:  access,
		RefreshToken: refresh,
		ExpiresAt:    expires,
		Scope:        scope.String,
		Nonce:        nonce.String,
	}, nil
}

// Clear removes the stored row. Clearing an absent row is not an error, which
// makes disconnect idempotent.
func (s *TokenStore) Clear(ctx context.Context, userID, provider string) error {
	prefix, err := columnPrefix(provider)
	if err != nil {
		return err
	}

	_, err = s.db.ExecContext(ctx, fmt.Sprintf(`
		UPDATE users SET
			%[1]s_access_token = NULL,
			%[1]s_refresh_token = NULL,
			%[1]s_expires_at = NULL,
			%[1]s_scope = NULL,
			%[1]s_nonce = NULL
		WHERE id = ?`, prefix),
		userID,
	)
	if err != nil {
		return fmt.Errorf("clearing %s token: %w", provider, err)
	}
	return nil
}
