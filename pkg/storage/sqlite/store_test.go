package sqlite

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pgrlq7/pierre-mcp-server-sub000/pkg/storage"
)

func openTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := Open(context.Background(), ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func newTestUser() *storage.User {
	return &storage.User{
		ID:           uuid.NewString(),
		Email:        "athlete@example.com",
		DisplayName:  "Test Athlete",
		PasswordHash: "$2a$10$abcdefghijklmnopqrstuv",
		Active:       true,
	}
}

func TestUserStoreCreateAndLookup(t *testing.T) {
	ctx := context.Background()
	store := NewUserStore(openTestDB(t))

	user := newTestUser()
	require.NoError(t, store.Create(ctx, user))

	byID, err := store.GetByID(ctx, user.ID)
	require.NoError(t, err)
	assert.Equal(t, user.Email, byID.Email)
	assert.Equal(t, user.DisplayName, byID.DisplayName)
	assert.True(t, byID.Active)

	byEmail, err := store.GetByEmail(ctx, user.Email)
	require.NoError(t, err)
	assert.Equal(t, user.ID, byEmail.ID)
}

func TestUserStoreEmailIsCaseInsensitive(t *testing.T) {
	ctx := context.Background()
	store := NewUserStore(openTestDB(t))

	user := newTestUser()
	user.Email = "Mixed.Case@Example.COM"
	require.NoError(t, store.Create(ctx, user))

	found, err := store.GetByEmail(ctx, "mixed.case@example.com")
	require.NoError(t, err)
	assert.Equal(t, user.ID, found.ID)
	// Canonical form is stored lowercased.
	assert.Equal(t, "mixed.case@example.com", found.Email)

	// A second registration differing only in case must collide.
	dup := newTestUser()
	dup.Email = "MIXED.CASE@EXAMPLE.COM"
	err = store.Create(ctx, dup)
	assert.ErrorIs(t, err, storage.ErrAlreadyExists)
}

func TestUserStoreDuplicateEmail(t *testing.T) {
	ctx := context.Background()
	store := NewUserStore(openTestDB(t))

	user := newTestUser()
	require.NoError(t, store.Create(ctx, user))

	dup := newTestUser()
	err := store.Create(ctx, dup)
	assert.ErrorIs(t, err, storage.ErrAlreadyExists)
}

func TestUserStoreMissingUser(t *testing.T) {
	ctx := context.Background()
	store := NewUserStore(openTestDB(t))

	_, err := store.GetByID(ctx, "no-such-id")
	assert.ErrorIs(t, err, storage.ErrNotFound)

	_, err = store.GetByEmail(ctx, "nobody@example.com")
	assert.ErrorIs(t, err, storage.ErrNotFound)

	assert.ErrorIs(t, store.TouchLastActive(ctx, "no-such-id"), storage.ErrNotFound)
}

func TestUserStoreTouchLastActive(t *testing.T) {
	ctx := context.Background()
	store := NewUserStore(openTestDB(t))

	user := newTestUser()
	user.LastActive = time.Now().Add(-time.Hour)
	require.NoError(t, store.Create(ctx, user))

	require.NoError(t, store.TouchLastActive(ctx, user.ID))

	updated, err := store.GetByID(ctx, user.ID)
	require.NoError(t, err)
	assert.WithinDuration(t, time.Now(), updated.LastActive, 5*time.Second)
}

func TestUserStoreSetActive(t *testing.T) {
	ctx := context.Background()
	store := NewUserStore(openTestDB(t))

	user := newTestUser()
	require.NoError(t, store.Create(ctx, user))
	require.NoError(t, store.SetActive(ctx, user.ID, false))

	updated, err := store.GetByID(ctx, user.ID)
	require.NoError(t, err)
	assert.False(t, updated.Active)
}

func TestTokenStoreRoundTrip(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)
	users := NewUserStore(db)
	tokens := NewTokenStore(db)

	user := newTestUser()
	require.NoError(t, users.Create(ctx, user))

	row := &storage.EncryptedTokenRow{
		AccessToken:  []byte("encrypted-access"),
		RefreshToken: []byte("encrypted-refresh"),
		ExpiresAt:    time.Now().Add(6 * time.Hour).UTC(),
		Scope:        "activity:read_all",
		Nonce:        "nonce-1",
	}
	require.NoError(t, tokens.Upsert(ctx, user.ID, "strava", row))

	got, err := tokens.Get(ctx, user.ID, "strava")
	require.NoError(t, err)
	assert.Equal(t, row.AccessToken, got.AccessToken)
	assert.Equal(t, row.RefreshToken, got.RefreshToken)
	assert.Equal(t, row.Scope, got.Scope)
	assert.Equal(t, row.Nonce, got.Nonce)
	assert.WithinDuration(t, row.ExpiresAt, got.ExpiresAt, time.Millisecond)

	// Providers are independent columns.
	_, err = tokens.Get(ctx, user.ID, "fitbit")
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestTokenStoreClearIsIdempotent(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)
	users := NewUserStore(db)
	tokens := NewTokenStore(db)

	user := newTestUser()
	require.NoError(t, users.Create(ctx, user))

	row := &storage.EncryptedTokenRow{
		AccessToken:  []byte("ct"),
		RefreshToken: []byte("rt"),
		ExpiresAt:    time.Now().Add(time.Hour),
	}
	require.NoError(t, tokens.Upsert(ctx, user.ID, "fitbit", row))

	require.NoError(t, tokens.Clear(ctx, user.ID, "fitbit"))
	_, err := tokens.Get(ctx, user.ID, "fitbit")
	assert.ErrorIs(t, err, storage.ErrNotFound)

	// Second clear leaves state unchanged and reports no error.
	require.NoError(t, tokens.Clear(ctx, user.ID, "fitbit"))
}

func TestTokenStoreRejectsUnknownProvider(t *testing.T) {
	ctx := context.Background()
	tokens := NewTokenStore(openTestDB(t))

	_, err := tokens.Get(ctx, "u", "garmin")
	assert.Error(t, err)

	err = tokens.Upsert(ctx, "u", "garmin", &storage.EncryptedTokenRow{})
	assert.Error(t, err)
}

func TestTokenStoreUpsertUnknownUser(t *testing.T) {
	ctx := context.Background()
	tokens := NewTokenStore(openTestDB(t))

	err := tokens.Upsert(ctx, "no-such-user", "strava", &storage.EncryptedTokenRow{
		AccessToken: []byte("ct"),
		ExpiresAt:   time.Now(),
	})
	assert.ErrorIs(t, err, storage.ErrNotFound)
}
