package cache

import (
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"time"

	"chemsource/searchservice/internal/metrics"
	"chemsource/searchservice/internal/product"
)

const (
	// queryVersion stamps every stored entry. Bump it when the snapshot
	// schema changes and every older entry becomes a miss.
	queryVersion = 1

	DefaultQueryTTL = 24 * time.Hour

	tierQuery  = "query"
	tierDetail = "detail"
)

// QueryMeta describes one cached search round.
type QueryMeta struct {
	CachedAt    time.Time `json:"cachedAt"`
	Version     int       `json:"version"`
	Query       string    `json:"query"`
	Supplier    string    `json:"supplier"`
	ResultCount int       `json:"resultCount"`
	Limit       int       `json:"limit"`
}

type queryEntry struct {
	Snapshots []product.Snapshot `json:"snapshots"`
	Meta      QueryMeta          `json:"meta"`
}

// QueryCache stores the dumped builder snapshots one supplier produced
// for one query, so a repeated search skips that supplier's network
// round entirely. Entries go stale by age or version, and an entry
// stored for a smaller limit than the caller now wants is invalidated
// rather than served short.
type QueryCache struct {
	store  Store
	ttl    time.Duration
	index  *index
	logger *slog.Logger
	now    func() time.Time
}

type QueryCacheConfig struct {
	Store    Store
	TTL      time.Duration
	Capacity int
	Logger   *slog.Logger
}

func NewQueryCache(cfg QueryCacheConfig) *QueryCache {
	ttl := cfg.TTL
	if ttl <= 0 {
		ttl = DefaultQueryTTL
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &QueryCache{
		store:  cfg.Store,
		ttl:    ttl,
		index:  newIndex(cfg.Store, "query:index", cfg.Capacity, logger),
		logger: logger,
		now:    time.Now,
	}
}

func queryKey(query, supplier string) string {
	return "query:" + digest(
		strings.ToLower(strings.TrimSpace(query)),
		strings.ToLower(strings.TrimSpace(supplier)),
	)
}

// Get returns the cached snapshots for (query, supplier), or reports a
// miss. Storage errors are logged and degrade to a miss so a broken
// backend never breaks the search itself.
func (c *QueryCache) Get(ctx context.Context, query, supplier string, limit int) ([]product.Snapshot, bool) {
	if c == nil {
		return nil, false
	}
	key := queryKey(query, supplier)
	records, err := c.store.Get(ctx, []string{key})
	if err != nil {
		c.logger.Warn("query cache read failed", "supplier", supplier, "error", err)
		metrics.CacheMissesTotal.WithLabelValues(tierQuery).Inc()
		return nil, false
	}
	raw, ok := records[key]
	if !ok {
		metrics.CacheMissesTotal.WithLabelValues(tierQuery).Inc()
		return nil, false
	}

	var entry queryEntry
	if err := json.Unmarshal(raw, &entry); err != nil {
		c.logger.Warn("query cache entry corrupt", "supplier", supplier, "error", err)
		c.index.forget(ctx, key)
		metrics.CacheMissesTotal.WithLabelValues(tierQuery).Inc()
		return nil, false
	}

	reason := ""
	switch {
	case entry.Meta.Version != queryVersion:
		reason = "version"
	case c.now().Sub(entry.Meta.CachedAt) > c.ttl:
		reason = "expired"
	case entry.Meta.Limit < limit:
		reason = "insufficient limit"
	}
	if reason != "" {
		c.logger.Debug("query cache entry invalidated",
			"supplier", supplier, "query", query, "reason", reason)
		c.index.forget(ctx, key)
		metrics.CacheMissesTotal.WithLabelValues(tierQuery).Inc()
		return nil, false
	}

	metrics.CacheHitsTotal.WithLabelValues(tierQuery).Inc()
	return entry.Snapshots, true
}

// Put stores the snapshots a live search round produced, along with
// the limit that produced them.
func (c *QueryCache) Put(ctx context.Context, query, supplier string, limit int, snapshots []product.Snapshot) {
	if c == nil {
		return
	}
	now := c.now()
	entry := queryEntry{
		Snapshots: snapshots,
		Meta: QueryMeta{
			CachedAt:    now,
			Version:     queryVersion,
			Query:       query,
			Supplier:    supplier,
			ResultCount: len(snapshots),
			Limit:       limit,
		},
	}
	raw, err := json.Marshal(entry)
	if err != nil {
		c.logger.Warn("query cache encode failed", "supplier", supplier, "error", err)
		return
	}
	if err := c.index.commit(ctx, queryKey(query, supplier), raw, now); err != nil {
		c.logger.Warn("query cache write failed", "supplier", supplier, "error", err)
	}
}
