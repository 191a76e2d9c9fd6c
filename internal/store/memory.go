package store

import (
	"context"
	"sync"
	"time"
)

type memEntry struct {
	value    []byte
	deadline time.Time
}

// MemoryStore is an in-process Store for development and tests.
// Expired entries are dropped lazily on access.
type MemoryStore struct {
	mu         sync.Mutex
	entries    map[string]memEntry
	defaultTTL time.Duration
	now        func() time.Time
}

func NewMemoryStore(defaultTTL time.Duration) *MemoryStore {
	if defaultTTL <= 0 {
		defaultTTL = DefaultTTL
	}
	return &MemoryStore{
		entries:    make(map[string]memEntry),
		defaultTTL: defaultTTL,
		now:        time.Now,
	}
}

func (m *MemoryStore) Get(ctx context.Context, key string) ([]byte, bool, error) {
	if err := ctx.Err(); err != nil {
		return nil, false, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	e, ok := m.entries[key]
	if !ok {
		return nil, false, nil
	}
	if !m.now().Before(e.deadline) {
		delete(m.entries, key)
		return nil, false, nil
	}

	out := make([]byte, len(e.value))
	copy(out, e.value)
	return out, true, nil
}

func (m *MemoryStore) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if ttl <= 0 {
		ttl = m.defaultTTL
	}

	v := make([]byte, len(value))
	copy(v, value)

	m.mu.Lock()
	m.entries[key] = memEntry{value: v, deadline: m.now().Add(ttl)}
	m.mu.Unlock()
	return nil
}

func (m *MemoryStore) Del(ctx context.Context, keys ...string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	m.mu.Lock()
	for _, k := range keys {
		delete(m.entries, k)
	}
	m.mu.Unlock()
	return nil
}

// Len counts live entries.
func (m *MemoryStore) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()

	n := 0
	now := m.now()
	for _, e := range m.entries {
		if now.Before(e.deadline) {
			n++
		}
	}
	return n
}
