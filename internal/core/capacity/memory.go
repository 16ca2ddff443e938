package capacity

import (
	"context"
	"sync"
	"time"
)

// MemoryStore is the in-process fallback Store. Atomicity is per-key
// locking; state is lost on restart, which only widens a window briefly.
type MemoryStore struct {
	Clock func() time.Time

	mu   sync.Mutex
	keys map[string]*keyState
}

type keyState struct {
	mu     sync.Mutex
	events []time.Time
}

// NewMemoryStore returns an empty in-process store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{keys: make(map[string]*keyState)}
}

// CheckAndIncrement implements Store.
func (m *MemoryStore) CheckAndIncrement(ctx context.Context, key string, window time.Duration, limit int) (Decision, error) {
	if err := ctx.Err(); err != nil {
		return Decision{}, err
	}

	now := m.now()
	state := m.state(key)

	state.mu.Lock()
	defer state.mu.Unlock()

	cutoff := now.Add(-window)
	survivors := state.events[:0]
	for _, ts := range state.events {
		// A timestamp exactly window old has left the window.
		if ts.After(cutoff) {
			survivors = append(survivors, ts)
		}
	}
	state.events = survivors

	if len(state.events) >= limit {
		return Decision{
			Allowed:   false,
			Remaining: 0,
			ResetAt:   state.events[0].Add(window),
		}, nil
	}

	state.events = append(state.events, now)
	resetAt := state.events[0].Add(window)

	return Decision{
		Allowed:   true,
		Remaining: limit - len(state.events),
		ResetAt:   resetAt,
	}, nil
}

func (m *MemoryStore) state(key string) *keyState {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.keys == nil {
		m.keys = make(map[string]*keyState)
	}
	if s, ok := m.keys[key]; ok {
		return s
	}
	s := &keyState{}
	m.keys[key] = s
	return s
}

func (m *MemoryStore) now() time.Time {
	if m != nil && m.Clock != nil {
		return m.Clock()
	}
	return time.Now().UTC()
}
