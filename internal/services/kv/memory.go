package kv

import (
	"context"
	"sync"
	"time"
)

type memoryEntry struct {
	value     []byte
	expiresAt time.Time
}

type memoryLock struct {
	token     string
	expiresAt time.Time
}

// MemoryStore is a process-local store. Expired entries are dropped lazily on access.
type MemoryStore struct {
	mu    sync.Mutex
	data  map[string]memoryEntry
	locks map[string]memoryLock
	now   func() time.Time
}

// MemoryOption configures a MemoryStore
type MemoryOption func(*MemoryStore)

// WithClock overrides the time source
func WithClock(now func() time.Time) MemoryOption {
	return func(m *MemoryStore) {
		m.now = now
	}
}

// NewMemoryStore creates an empty in-process store
func NewMemoryStore(opts ...MemoryOption) *MemoryStore {
	m := &MemoryStore{
		data:  make(map[string]memoryEntry),
		locks: make(map[string]memoryLock),
		now:   time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

func (m *MemoryStore) Get(_ context.Context, key string) (Entry, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	e, ok := m.data[key]
	if !ok {
		return Entry{}, false, nil
	}
	if !m.now().Before(e.expiresAt) {
		delete(m.data, key)
		return Entry{}, false, nil
	}

	value := make([]byte, len(e.value))
	copy(value, e.value)
	return Entry{Value: value, ExpiresAt: e.expiresAt}, true, nil
}

func (m *MemoryStore) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	if err := checkTTL(ttl); err != nil {
		return err
	}

	stored := make([]byte, len(value))
	copy(stored, value)

	m.mu.Lock()
	m.data[key] = memoryEntry{value: stored, expiresAt: m.now().Add(ttl)}
	m.mu.Unlock()
	return nil
}

func (m *MemoryStore) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	delete(m.data, key)
	m.mu.Unlock()
	return nil
}

func (m *MemoryStore) AcquireLock(_ context.Context, key string, ttl time.Duration) (string, bool, error) {
	if err := checkTTL(ttl); err != nil {
		return "", false, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	if l, held := m.locks[key]; held && now.Before(l.expiresAt) {
		return "", false, nil
	}
	token := newLockToken()
	m.locks[key] = memoryLock{token: token, expiresAt: now.Add(ttl)}
	return token, true, nil
}

func (m *MemoryStore) ReleaseLock(_ context.Context, key, token string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if l, held := m.locks[key]; held && l.token == token {
		delete(m.locks, key)
	}
	return nil
}

// Len reports the number of live entries
func (m *MemoryStore) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	n := 0
	for key, e := range m.data {
		if now.Before(e.expiresAt) {
			n++
		} else {
			delete(m.data, key)
		}
	}
	return n
}
