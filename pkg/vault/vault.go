// Package vault implements the encrypted credential vault. OAuth tokens are
// sealed with AES-256-GCM before they reach storage and unsealed on read;
// ciphertext never crosses this package boundary upward.
package vault

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"time"

	"github.com/pgrlq7/pierre-mcp-server-sub000/pkg/crypto"
	"github.com/pgrlq7/pierre-mcp-server-sub000/pkg/logger"
	"github.com/pgrlq7/pierre-mcp-server-sub000/pkg/storage"
)

// ErrDecryptFailure is returned when a stored token fails authenticated
// decryption. The record is unusable; callers must not see partial data.
var ErrDecryptFailure = errors.New("stored token could not be decrypted")

// ErrNoToken is returned when no token is stored for the (user, provider) pair.
var ErrNoToken = errors.New("no token stored for provider")

// TokenRecord is the plaintext form of a stored provider token binding. It
// exists only transiently in memory.
type TokenRecord struct {
	AccessToken  string
	RefreshToken string
	ExpiresAt    time.Time
	Scope        string
}

// Expired reports whether the access token has passed its expiry, with an
// optional skew window so callers can refresh shortly before the deadline.
func (r *TokenRecord) Expired(skew time.Duration) bool {
	return time.Now().Add(skew).After(r.ExpiresAt)
}

// Vault seals and unseals provider tokens around a TokenStore.
type Vault struct {
	store storage.TokenStore
	key   []byte
}

// New creates a Vault with the process-wide encryption key. The key is loaded
// once at startup; rotation is not supported.
func New(store storage.TokenStore, key []byte) (*Vault, error) {
	if len(key) != crypto.KeySize {
		return nil, fmt.Errorf("vault key must be %d bytes, got %d", crypto.KeySize, len(key))
	}
	return &Vault{store: store, key: key}, nil
}

// Put encrypts the token pair and persists it for (userID, provider),
// replacing any previous record.
func (v *Vault) Put(ctx context.Context, userID, provider string, record *TokenRecord) error {
	encAccess, err := crypto.Encrypt([]byte(record.AccessToken), v.key)
	if err != nil {
		return fmt.Errorf("encrypting access token: %w", err)
	}
	encRefresh, err := crypto.Encrypt([]byte(record.RefreshToken), v.key)
	if err != nil {
		return fmt.Errorf("encrypting refresh token: %w", err)
	}

	nonce, err := recordNonce()
	if err != nil {
		return err
	}

	row := &storage.EncryptedTokenRow{
		AccessToken:  encAccess,
		RefreshToken: encRefresh,
		ExpiresAt:    record.ExpiresAt,
		Scope:        record.Scope,
		Nonce:        nonce,
	}
	if err := v.store.Upsert(ctx, userID, provider, row); err != nil {
		return fmt.Errorf("storing token: %w", err)
	}

	logger.Debugw("Stored provider token", "user_id", userID, "provider", provider)
	return nil
}

// Get reads and decrypts the token record for (userID, provider). Returns
// ErrNoToken when no record exists and ErrDecryptFailure when authentication
// of either ciphertext fails.
func (v *Vault) Get(ctx context.Context, userID, provider string) (*TokenRecord, error) {
	row, err := v.store.Get(ctx, userID, provider)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, ErrNoToken
		}
		return nil, fmt.Errorf("reading token: %w", err)
	}

	access, err := crypto.Decrypt(row.AccessToken, v.key)
	if err != nil {
		logger.Errorw("Failed to decrypt access token", "user_id", userID, "provider", provider, "error", err)
		return nil, ErrDecryptFailure
	}
	refresh, err := crypto.Decrypt(row.RefreshToken, v.key)
	if err != nil {
		logger.Errorw("Failed to decrypt refresh token", "user_id", userID, "provider", provider, "error", err)
		return nil, ErrDecryptFailure
	}

	return &TokenRecord{
		AccessToken:  string(access),
		RefreshToken: string(refresh),
		ExpiresAt:    row.ExpiresAt,
		Scope:        row.Scope,
	}, nil
}

// Clear removes the stored record. Clearing an absent record is not an error.
func (v *Vault) Clear(ctx context.Context, userID, provider string) error {
	if err := v.store.Clear(ctx, userID, provider); err != nil {
		return fmt.Errorf("clearing token: %w", err)
	}
	return nil
}

func recordNonce() (string, error) {
	b := make([]byte, 12)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("generating record nonce: %w", err)
	}
	return base64.StdEncoding.EncodeToString(b), nil
}
