package providers

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pgrlq7/pierre-mcp-server-sub000/pkg/storage"
	"github.com/pgrlq7/pierre-mcp-server-sub000/pkg/vault"
)

const fakeName = "faketracker"

// fakeAdapter counts Authenticate calls so tests can observe bindings.
type fakeAdapter struct {
	mu    sync.Mutex
	creds Credentials
	binds int
}

func (f *fakeAdapter) Name() string { return fakeName }

func (f *fakeAdapter) Authenticate(_ context.Context, creds Credentials) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.creds = creds
	f.binds++
	return nil
}

func (f *fakeAdapter) GetAthlete(context.Context) (*Athlete, error) {
	return &Athlete{ID: "1", Provider: fakeName}, nil
}

func (f *fakeAdapter) GetActivities(context.Context, int, int) ([]Activity, error) {
	return nil, nil
}

func (f *fakeAdapter) GetStats(context.Context) (*Stats, error) {
	return &Stats{}, nil
}

func init() {
	Register(fakeName, func(RefreshFunc) Provider { return &fakeAdapter{} })
}

type fakeTokens struct {
	mu      sync.Mutex
	records map[string]*vault.TokenRecord
	reads   int
}

func (f *fakeTokens) Get(_ context.Context, userID, provider string) (*vault.TokenRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.reads++
	record, ok := f.records[userID+"/"+provider]
	if !ok {
		return nil, storage.ErrNotFound
	}
	return record, nil
}

type fakeRefresher struct {
	mu        sync.Mutex
	record    *vault.TokenRecord
	err       error
	refreshes int
}

func (f *fakeRefresher) Refresh(context.Context, string, string) (*vault.TokenRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.refreshes++
	return f.record, f.err
}

func liveRecord() *vault.TokenRecord {
	return &vault.TokenRecord{
		AccessToken:  "access-1",
		RefreshToken: "refresh-1",
		ExpiresAt:    time.Now().Add(time.Hour),
	}
}

func TestSessionCacheBindsOnce(t *testing.T) {
	t.Parallel()

	tokens := &fakeTokens{records: map[string]*vault.TokenRecord{
		"u1/" + fakeName: liveRecord(),
	}}
	cache := NewSessionCache(tokens, &fakeRefresher{})

	first, err := cache.Get(context.Background(), "u1", fakeName)
	require.NoError(t, err)
	second, err := cache.Get(context.Background(), "u1", fakeName)
	require.NoError(t, err)

	assert.Same(t, first, second)
	assert.Equal(t, 1, tokens.reads)
	assert.Equal(t, 1, first.(*fakeAdapter).binds)
}

func TestSessionCacheRefreshesExpiredRecord(t *testing.T) {
	t.Parallel()

	tokens := &fakeTokens{records: map[string]*vault.TokenRecord{
		"u1/" + fakeName: {
			AccessToken:  "stale",
			RefreshToken: "refresh-1",
			ExpiresAt:    time.Now().Add(-time.Minute),
		},
	}}
	refresher := &fakeRefresher{record: liveRecord()}
	cache := NewSessionCache(tokens, refresher)

	adapter, err := cache.Get(context.Background(), "u1", fakeName)
	require.NoError(t, err)

	assert.Equal(t, 1, refresher.refreshes)
	assert.Equal(t, "access-1", adapter.(*fakeAdapter).creds.AccessToken)
}

func TestSessionCacheMissingToken(t *testing.T) {
	t.Parallel()

	cache := NewSessionCache(&fakeTokens{records: map[string]*vault.TokenRecord{}}, &fakeRefresher{})

	_, err := cache.Get(context.Background(), "u1", fakeName)
	require.ErrorIs(t, err, storage.ErrNotFound)
}

func TestSessionCacheInvalidate(t *testing.T) {
	t.Parallel()

	tokens := &fakeTokens{records: map[string]*vault.TokenRecord{
		"u1/" + fakeName: liveRecord(),
		"u2/" + fakeName: liveRecord(),
	}}
	cache := NewSessionCache(tokens, &fakeRefresher{})

	first, err := cache.Get(context.Background(), "u1", fakeName)
	require.NoError(t, err)
	_, err = cache.Get(context.Background(), "u2", fakeName)
	require.NoError(t, err)

	cache.Invalidate("u1", fakeName)
	rebound, err := cache.Get(context.Background(), "u1", fakeName)
	require.NoError(t, err)
	assert.NotSame(t, first, rebound)
	assert.Equal(t, 3, tokens.reads)

	cache.InvalidateUser("u2")
	_, err = cache.Get(context.Background(), "u2", fakeName)
	require.NoError(t, err)
	assert.Equal(t, 4, tokens.reads)
}

func TestSessionCacheUnknownProvider(t *testing.T) {
	t.Parallel()

	tokens := &fakeTokens{records: map[string]*vault.TokenRecord{
		"u1/nosuch": liveRecord(),
	}}
	cache := NewSessionCache(tokens, &fakeRefresher{})

	_, err := cache.Get(context.Background(), "u1", "nosuch")
	require.Error(t, err)
}
