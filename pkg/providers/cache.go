package providers

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/pgrlq7/pierre-mcp-server-sub000/pkg/logger"
	"github.com/pgrlq7/pierre-mcp-server-sub000/pkg/vault"
)

// expirySkew is how close to expiry a stored token is refreshed proactively
// instead of waiting for the provider to reject it.
const expirySkew = 5 * time.Minute

// TokenReader reads a user's stored token record for a provider.
type TokenReader interface {
	Get(ctx context.Context, userID, provider string) (*vault.TokenRecord, error)
}

// Refresher exchanges a stored refresh token for a fresh record.
type Refresher interface {
	Refresh(ctx context.Context, userID, provider string) (*vault.TokenRecord, error)
}

type bindingKey struct {
	userID   string
	provider string
}

// SessionCache hands out authenticated provider adapters keyed by
// (user, provider), binding each at most once per stored credential set.
// Token reads, refreshes and Authenticate all happen outside the lock, so
// two goroutines may race to bind the same key; the loser's adapter is
// discarded.
type SessionCache struct {
	tokens    TokenReader
	refresher Refresher

	mu       sync.RWMutex
	bindings map[bindingKey]Provider
}

// NewSessionCache creates an empty cache over the given token source.
func NewSessionCache(tokens TokenReader, refresher Refresher) *SessionCache {
	return &SessionCache{
		tokens:    tokens,
		refresher: refresher,
		bindings:  map[bindingKey]Provider{},
	}
}

// SetRefresher installs the refresher after construction. The cache and the
// linkage service reference each other, so one side must be bound late.
func (c *SessionCache) SetRefresher(refresher Refresher) {
	c.refresher = refresher
}

// Get returns an authenticated adapter for the user's provider, binding one
// on first use. A record within expirySkew of expiry is refreshed before
// binding.
func (c *SessionCache) Get(ctx context.Context, userID, provider string) (Provider, error) {
	key := bindingKey{userID: userID, provider: provider}

	c.mu.RLock()
	bound, ok := c.bindings[key]
	c.mu.RUnlock()
	if ok {
		return bound, nil
	}

	record, err := c.tokens.Get(ctx, userID, provider)
	if err != nil {
		return nil, err
	}
	if record.Expired(expirySkew) && c.refresher != nil {
		record, err = c.refresher.Refresh(ctx, userID, provider)
		if err != nil {
			return nil, fmt.Errorf("refreshing expired token: %w", err)
		}
	}

	adapter, err := New(provider, c.refreshFunc(userID, provider))
	if err != nil {
		return nil, err
	}
	if err := adapter.Authenticate(ctx, Credentials{
		AccessToken:  record.AccessToken,
		RefreshToken: record.RefreshToken,
		ExpiresAt:    record.ExpiresAt,
	}); err != nil {
		return nil, fmt.Errorf("binding %s adapter: %w", provider, err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if bound, ok := c.bindings[key]; ok {
		return bound, nil
	}
	c.bindings[key] = adapter
	logger.Debugw("Bound provider session", "user_id", userID, "provider", provider)
	return adapter, nil
}

// Invalidate evicts one binding. Called when stored credentials change.
func (c *SessionCache) Invalidate(userID, provider string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.bindings, bindingKey{userID: userID, provider: provider})
}

// InvalidateUser evicts every binding the user holds.
func (c *SessionCache) InvalidateUser(userID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for key := range c.bindings {
		if key.userID == userID {
			delete(c.bindings, key)
		}
	}
}

// refreshFunc adapts the refresher into the per-adapter callback invoked on
// a mid-flight 401.
func (c *SessionCache) refreshFunc(userID, provider string) RefreshFunc {
	return func(ctx context.Context) (Credentials, error) {
		if c.refresher == nil {
			return Credentials{}, errors.New("no token refresher configured")
		}
		record, err := c.refresher.Refresh(ctx, userID, provider)
		if err != nil {
			return Credentials{}, err
		}
		return Credentials{
			AccessToken:  record.AccessToken,
			RefreshToken: record.RefreshToken,
			ExpiresAt:    record.ExpiresAt,
		}, nil
	}
}
