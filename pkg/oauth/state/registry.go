// Package state implements the single-use, TTL-bounded OAuth state registry
// used for CSRF protection on the authorization callback.
package state

import (
	"context"
	"errors"
	"time"
)

// DefaultTTL bounds how long an issued state remains redeemable.
const DefaultTTL = 10 * time.Minute

// ErrInvalidState is returned when a state is unknown, expired, or already
// consumed.
var ErrInvalidState = errors.New("invalid or expired oauth state")

// Entry records the context in which a state was issued.
type Entry struct {
	// UserID is the local user who requested the link.
	UserID string `json:"user_id"`

	// Provider is the provider the link targets.
	Provider string `json:"provider"`

	// CreatedAt is when the state was issued.
	CreatedAt time.Time `json:"created_at"`
}

// Registry stores issued OAuth states. States are single-use: Consume removes
// the state so a replayed callback fails.
type Registry interface {
	// Store registers a state with the given TTL.
	Store(ctx context.Context, state string, entry *Entry, ttl time.Duration) error

	// Consume atomically retrieves and removes the state's entry. Returns
	// ErrInvalidState when the state is unknown or has expired.
	Consume(ctx context.Context, state string) (*Entry, error)
}
