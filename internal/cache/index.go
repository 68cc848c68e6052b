package cache

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"encoding/json"
	"io"
	"log/slog"
	"sync"
	"time"
)

// DefaultCapacity bounds each tier independently.
const DefaultCapacity = 100

// digest collapses key parts into a fixed-width store key.
func digest(parts ...string) string {
	h := md5.New()
	for i, part := range parts {
		if i > 0 {
			h.Write([]byte{0})
		}
		io.WriteString(h, part)
	}
	return hex.EncodeToString(h.Sum(nil))
}

// index is one tier's registry of entry timestamps, persisted in the
// store next to the entries themselves. Every mutation re-reads the
// registry first so concurrent writers in other processes are not
// silently dropped; the mutex only serializes writers in this process.
// Best effort, not transactional.
type index struct {
	store    Store
	key      string
	capacity int
	logger   *slog.Logger

	mu sync.Mutex
}

func newIndex(store Store, key string, capacity int, logger *slog.Logger) *index {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &index{store: store, key: key, capacity: capacity, logger: logger}
}

func (ix *index) load(ctx context.Context) map[string]time.Time {
	records, err := ix.store.Get(ctx, []string{ix.key})
	if err != nil {
		ix.logger.Warn("cache index read failed", "index", ix.key, "error", err)
		return map[string]time.Time{}
	}
	raw, ok := records[ix.key]
	if !ok {
		return map[string]time.Time{}
	}
	entries := map[string]time.Time{}
	if err := json.Unmarshal(raw, &entries); err != nil {
		ix.logger.Warn("cache index corrupt, starting over", "index", ix.key, "error", err)
		return map[string]time.Time{}
	}
	return entries
}

// commit stores one entry and the updated registry together, evicting
// the oldest entries once the tier is over capacity.
func (ix *index) commit(ctx context.Context, key string, value []byte, cachedAt time.Time) error {
	ix.mu.Lock()
	defer ix.mu.Unlock()

	entries := ix.load(ctx)
	entries[key] = cachedAt

	var evicted []string
	for len(entries) > ix.capacity {
		oldest := ""
		for candidate, at := range entries {
			if oldest == "" || at.Before(entries[oldest]) {
				oldest = candidate
			}
		}
		delete(entries, oldest)
		if oldest != key {
			evicted = append(evicted, oldest)
		}
	}
	if len(evicted) > 0 {
		if err := ix.store.Delete(ctx, evicted...); err != nil {
			ix.logger.Warn("cache eviction failed", "index", ix.key, "error", err)
		}
	}

	raw, err := json.Marshal(entries)
	if err != nil {
		return err
	}
	return ix.store.Set(ctx, map[string][]byte{key: value, ix.key: raw})
}

// forget drops one entry and its registry line, for invalidation.
func (ix *index) forget(ctx context.Context, key string) {
	ix.mu.Lock()
	defer ix.mu.Unlock()

	entries := ix.load(ctx)
	delete(entries, key)
	if err := ix.store.Delete(ctx, key); err != nil {
		ix.logger.Warn("cache delete failed", "key", key, "error", err)
	}
	raw, err := json.Marshal(entries)
	if err != nil {
		return
	}
	if err := ix.store.Set(ctx, map[string][]byte{ix.key: raw}); err != nil {
		ix.logger.Warn("cache index write failed", "index", ix.key, "error", err)
	}
}
