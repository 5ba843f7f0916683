package state

import (
	"context"
	"sync"
	"time"
)

// janitorInterval is how often expired states are swept.
const janitorInterval = time.Minute

type memoryEntry struct {
	entry    *Entry
	expireAt time.Time
}

// MemoryRegistry is an in-memory Registry suitable for single-process
// deployments. Expired states are swept by a background janitor and also
// rejected lazily on Consume.
type MemoryRegistry struct {
	mu     sync.Mutex
	states map[string]memoryEntry
	stop   chan struct{}
	once   sync.Once
}

// NewMemoryRegistry creates a MemoryRegistry and starts its janitor.
func NewMemoryRegistry() *MemoryRegistry {
	r := &MemoryRegistry{
		states: make(map[string]memoryEntry),
		stop:   make(chan struct{}),
	}
	go r.janitor()
	return r
}

// Store registers a state with the given TTL.
func (r *MemoryRegistry) Store(_ context.Context, state string, entry *Entry, ttl time.Duration) error {
	if ttl <= 0 || ttl > DefaultTTL {
		ttl = DefaultTTL
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.states[state] = memoryEntry{entry: entry, expireAt: time.Now().Add(ttl)}
	return nil
}

// Consume atomically retrieves and removes the state's entry.
func (r *MemoryRegistry) Consume(_ context.Context, state string) (*Entry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	me, ok := r.states[state]
	if !ok {
		return nil, ErrInvalidState
	}
	// Single use regardless of outcome.
	delete(r.states, state)

	if time.Now().After(me.expireAt) {
		return nil, ErrInvalidState
	}
	return me.entry, nil
}

// Close stops the janitor goroutine.
func (r *MemoryRegistry) Close() {
	r.once.Do(func() { close(r.stop) })
}

func (r *MemoryRegistry) janitor() {
	ticker := time.NewTicker(janitorInterval)
	defer ticker.Stop()

	for {
		select {
		case <-r.stop:
			return
		case <-ticker.C:
			now := time.Now()
			r.mu.Lock()
			for state, me := range r.states {
				if now.After(me.expireAt) {
					delete(r.states, state)
				}
			}
			r.mu.Unlock()
		}
	}
}
