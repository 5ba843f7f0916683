// Package storage defines the persistence interfaces consumed by the user
// store and the credential vault, decoupled from the SQLite implementation.
package storage

import (
	"context"
	"time"
)

// User is a locally registered account.
type User struct {
	// ID is the opaque unique identifier (UUID string). Immutable.
	ID string

	// Email is the unique login identifier, stored lowercased.
	Email string

	// DisplayName is an optional human-readable name.
	DisplayName string

	// PasswordHash is the bcrypt hash of the user's password. Never empty.
	PasswordHash string

	// CreatedAt is when the account was registered.
	CreatedAt time.Time

	// LastActive is updated on every authenticated request.
	LastActive time.Time

	// Active is false for soft-deactivated accounts.
	Active bool
}

// EncryptedTokenRow is the at-rest form of a provider token binding. The
// access and refresh tokens are AEAD ciphertexts; plaintext never reaches
// this layer.
type EncryptedTokenRow struct {
	AccessToken  []byte
	RefreshToken []byte
	ExpiresAt    time.Time
	Scope        string
	Nonce        string
}

// UserStore provides durable user records with unique email.
type UserStore interface {
	// Create persists a new user. Returns ErrAlreadyExists when the email
	// is already registered (case-insensitive).
	Create(ctx context.Context, user *User) error

	// GetByID returns the user with the given id, or ErrNotFound.
	GetByID(ctx context.Context, id string) (*User, error)

	// GetByEmail returns the user with the given email (case-insensitive),
	// or ErrNotFound.
	GetByEmail(ctx context.Context, email string) (*User, error)

	// TouchLastActive updates the user's last_active timestamp.
	TouchLastActive(ctx context.Context, id string) error

	// SetActive flips the soft-deactivation flag.
	SetActive(ctx context.Context, id string, active bool) error
}

// TokenStore persists encrypted provider token rows keyed by (user, provider).
type TokenStore interface {
	// Upsert replaces the stored token row for (userID, provider).
	Upsert(ctx context.Context, userID, provider string, row *EncryptedTokenRow) error

	// Get returns the stored row, or ErrNotFound when the user has no
	// token for the provider.
	Get(ctx context.Context, userID, provider string) (*EncryptedTokenRow, error)

	// Clear removes the stored row. Clearing an absent row is not an error.
	Clear(ctx context.Context, userID, provider string) error
}
