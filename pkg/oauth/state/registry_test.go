package state

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func registries(t *testing.T) map[string]Registry {
	t.Helper()

	mem := NewMemoryRegistry()
	t.Cleanup(mem.Close)

	mr := miniredis.RunT(t)
	rr := NewRedisRegistryWithClient(redis.NewClient(&redis.Options{Addr: mr.Addr()}))
	t.Cleanup(func() { _ = rr.Close() })

	return map[string]Registry{"memory": mem, "redis": rr}
}

func TestStoreAndConsume(t *testing.T) {
	for name, reg := range registries(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			entry := &Entry{UserID: "user-1", Provider: "strava", CreatedAt: time.Now()}
			require.NoError(t, reg.Store(ctx, "user-1:nonce-1", entry, time.Minute))

			got, err := reg.Consume(ctx, "user-1:nonce-1")
			require.NoError(t, err)
			assert.Equal(t, "user-1", got.UserID)
			assert.Equal(t, "strava", got.Provider)
		})
	}
}

func TestStatesAreSingleUse(t *testing.T) {
	for name, reg := range registries(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			require.NoError(t, reg.Store(ctx, "s1", &Entry{UserID: "u"}, time.Minute))

			_, err := reg.Consume(ctx, "s1")
			require.NoError(t, err)

			// Replay must fail.
			_, err = reg.Consume(ctx, "s1")
			assert.ErrorIs(t, err, ErrInvalidState)
		})
	}
}

func TestUnknownStateIsRejected(t *testing.T) {
	for name, reg := range registries(t) {
		t.Run(name, func(t *testing.T) {
			_, err := reg.Consume(context.Background(), "never-issued")
			assert.ErrorIs(t, err, ErrInvalidState)
		})
	}
}

func TestMemoryRegistryExpiry(t *testing.T) {
	reg := NewMemoryRegistry()
	t.Cleanup(reg.Close)
	ctx := context.Background()

	require.NoError(t, reg.Store(ctx, "s1", &Entry{UserID: "u"}, 10*time.Millisecond))
	time.Sleep(30 * time.Millisecond)

	_, err := reg.Consume(ctx, "s1")
	assert.ErrorIs(t, err, ErrInvalidState)
}

func TestRedisRegistryExpiry(t *testing.T) {
	mr := miniredis.RunT(t)
	reg := NewRedisRegistryWithClient(redis.NewClient(&redis.Options{Addr: mr.Addr()}))
	t.Cleanup(func() { _ = reg.Close() })
	ctx := context.Background()

	require.NoError(t, reg.Store(ctx, "s1", &Entry{UserID: "u"}, time.Minute))
	mr.FastForward(2 * time.Minute)

	_, err := reg.Consume(ctx, "s1")
	assert.ErrorIs(t, err, ErrInvalidState)
}

func TestTTLIsCappedAtDefault(t *testing.T) {
	mr := miniredis.RunT(t)
	reg := NewRedisRegistryWithClient(redis.NewClient(&redis.Options{Addr: mr.Addr()}))
	t.Cleanup(func() { _ = reg.Close() })
	ctx := context.Background()

	// An oversized TTL is clamped to the 10 minute bound.
	require.NoError(t, reg.Store(ctx, "s1", &Entry{UserID: "u"}, 24*time.Hour))
	mr.FastForward(11 * time.Minute)

	_, err := reg.Consume(ctx, "s1")
	assert.ErrorIs(t, err, ErrInvalidState)
}
