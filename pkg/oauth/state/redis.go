package state

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// keyPrefix namespaces state keys so the registry can share a Redis instance.
const keyPrefix = "pierre:oauth:state:"

// RedisRegistry is a Registry backed by Redis. It exists for multi-process
// deployments where the callback may land on a different process than the one
// that issued the state. Redis key expiry enforces the TTL.
type RedisRegistry struct {
	client redis.UniversalClient
}

// NewRedisRegistry creates a RedisRegistry from a Redis URL.
func NewRedisRegistry(url string) (*RedisRegistry, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parsing redis URL: %w", err)
	}
	return &RedisRegistry{client: redis.NewClient(opts)}, nil
}

// NewRedisRegistryWithClient creates a RedisRegistry with an existing client.
// Used by tests with miniredis.
func NewRedisRegistryWithClient(client redis.UniversalClient) *RedisRegistry {
	return &RedisRegistry{client: client}
}

// Store registers a state with the given TTL.
func (r *RedisRegistry) Store(ctx context.Context, state string, entry *Entry, ttl time.Duration) error {
	if ttl <= 0 || ttl > DefaultTTL {
		ttl = DefaultTTL
	}
	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("marshaling state entry: %w", err)
	}
	if err := r.client.Set(ctx, keyPrefix+state, data, ttl).Err(); err != nil {
		return fmt.Errorf("storing state: %w", err)
	}
	return nil
}

// Consume atomically retrieves and removes the state's entry via GETDEL.
func (r *RedisRegistry) Consume(ctx context.Context, state string) (*Entry, error) {
	data, err := r.client.GetDel(ctx, keyPrefix+state).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrInvalidState
		}
		return nil, fmt.Errorf("consuming state: %w", err)
	}

	var entry Entry
	if err := json.Unmarshal(data, &entry); err != nil {
		return nil, fmt.Errorf("unmarshaling state entry: %w", err)
	}
	return &entry, nil
}

// Close releases the underlying Redis client.
func (r *RedisRegistry) Close() error {
	return r.client.Close()
}
