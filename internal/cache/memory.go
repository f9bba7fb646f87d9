package cache

import (
	"context"
	"sync"
)

// MemoryStore keeps entries in a map. It honours the same quota rules as the
// durable stores, which makes it a faithful fake in tests.
type MemoryStore struct {
	mu      sync.RWMutex
	entries map[string]Result
	used    int64
	quota   int64
}

// NewMemoryStore creates a MemoryStore. A quota of 0 means unlimited.
func NewMemoryStore(quota int64) *MemoryStore {
	return &MemoryStore{
		entries: make(map[string]Result),
		quota:   quota,
	}
}

// Get implements Store.
func (m *MemoryStore) Get(_ context.Context, url string) (Result, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	r, ok := m.entries[url]
	if !ok {
		return Result{}, ErrNotFound
	}
	return r, nil
}

// Put implements Store.
func (m *MemoryStore) Put(_ context.Context, url, payload string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	oldSize := int64(len(m.entries[url].Payload))
	newSize := int64(len(payload))
	if !fits(m.quota, m.used, oldSize, newSize) {
		return ErrQuotaExceeded
	}

	m.entries[url] = Result{SourceURL: url, Payload: payload, GeneratedAt: now()}
	m.used += newSize - oldSize
	return nil
}

// Delete implements Store.
func (m *MemoryStore) Delete(_ context.Context, url string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if r, ok := m.entries[url]; ok {
		m.used -= int64(len(r.Payload))
		delete(m.entries, url)
	}
	return nil
}

// Stats implements Store.
func (m *MemoryStore) Stats(_ context.Context) (Stats, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return Stats{Entries: int64(len(m.entries)), TotalBytes: m.used, QuotaBytes: m.quota}, nil
}

// Close implements Store.
func (m *MemoryStore) Close() error {
	return nil
}
