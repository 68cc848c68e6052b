package cache

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"chemsource/searchservice/internal/metrics"
)

type detailEntry struct {
	Payload  []byte    `json:"payload"`
	CachedAt time.Time `json:"cachedAt"`
}

// DetailCache stores raw per-product detail payloads keyed by the
// request that fetched them, independent of the search query, so the
// same product reached through different queries shares one line.
// Entries have no TTL; only capacity pressure evicts them.
type DetailCache struct {
	store  Store
	index  *index
	logger *slog.Logger
	now    func() time.Time
}

type DetailCacheConfig struct {
	Store    Store
	Capacity int
	Logger   *slog.Logger
}

func NewDetailCache(cfg DetailCacheConfig) *DetailCache {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &DetailCache{
		store:  cfg.Store,
		index:  newIndex(cfg.Store, "detail:index", cfg.Capacity, logger),
		logger: logger,
		now:    time.Now,
	}
}

func detailKey(url, params, supplier string) string {
	return "detail:" + digest(url, params, supplier)
}

func (c *DetailCache) Get(ctx context.Context, url, params, supplier string) ([]byte, bool) {
	if c == nil {
		return nil, false
	}
	key := detailKey(url, params, supplier)
	records, err := c.store.Get(ctx, []string{key})
	if err != nil {
		c.logger.Warn("detail cache read failed", "supplier", supplier, "error", err)
		metrics.CacheMissesTotal.WithLabelValues(tierDetail).Inc()
		return nil, false
	}
	raw, ok := records[key]
	if !ok {
		metrics.CacheMissesTotal.WithLabelValues(tierDetail).Inc()
		return nil, false
	}
	var entry detailEntry
	if err := json.Unmarshal(raw, &entry); err != nil {
		c.logger.Warn("detail cache entry corrupt", "supplier", supplier, "error", err)
		c.index.forget(ctx, key)
		metrics.CacheMissesTotal.WithLabelValues(tierDetail).Inc()
		return nil, false
	}
	metrics.CacheHitsTotal.WithLabelValues(tierDetail).Inc()
	return entry.Payload, true
}

func (c *DetailCache) Put(ctx context.Context, url, params, supplier string, payload []byte) {
	if c == nil {
		return
	}
	now := c.now()
	raw, err := json.Marshal(detailEntry{Payload: payload, CachedAt: now})
	if err != nil {
		c.logger.Warn("detail cache encode failed", "supplier", supplier, "error", err)
		return
	}
	if err := c.index.commit(ctx, detailKey(url, params, supplier), raw, now); err != nil {
		c.logger.Warn("detail cache write failed", "supplier", supplier, "error", err)
	}
}
