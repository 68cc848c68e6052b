// Package cache implements the two result cache tiers: a query-level
// cache of dumped builder snapshots keyed by (query, supplier), and a
// detail-level cache of raw product payloads keyed by (url, params,
// supplier). Both tiers persist through a pluggable key-value store and
// share one eviction discipline: a per-tier index of entry timestamps,
// re-read before every write, with the oldest entry dropped past
// capacity.
package cache

import (
	"context"
	"sync"
)

// Store is the namespaced key-value backend both cache tiers persist
// through. A missing key is not an error: Get returns only the subset
// of keys that exist.
type Store interface {
	Get(ctx context.Context, keys []string) (map[string][]byte, error)
	Set(ctx context.Context, records map[string][]byte) error
	Delete(ctx context.Context, keys ...string) error
}

// MemoryStore is the in-process fallback used when Redis is not
// configured or unreachable at startup.
type MemoryStore struct {
	mu      sync.RWMutex
	records map[string][]byte
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{records: make(map[string][]byte)}
}

func (s *MemoryStore) Get(_ context.Context, keys []string) (map[string][]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string][]byte, len(keys))
	for _, key := range keys {
		if value, ok := s.records[key]; ok {
			out[key] = append([]byte(nil), value...)
		}
	}
	return out, nil
}

func (s *MemoryStore) Set(_ context.Context, records map[string][]byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for key, value := range records {
		s.records[key] = append([]byte(nil), value...)
	}
	return nil
}

func (s *MemoryStore) Delete(_ context.Context, keys ...string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, key := range keys {
		delete(s.records, key)
	}
	return nil
}

// Len reports the number of stored records, index records included.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records)
}
