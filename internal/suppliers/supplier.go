// Package suppliers defines the adapter contract every shop
// integration implements, and the registry the orchestrator builds
// per-search adapter instances from.
package suppliers

import (
	"context"
	"net/http"

	"chemsource/searchservice/internal/cache"
	"chemsource/searchservice/internal/domain"
	"chemsource/searchservice/internal/fetch"
	"chemsource/searchservice/internal/product"
)

// Supplier is one shop integration. Search is the search phase: it may
// paginate internally up to limit and returns builders populated with
// whatever the search payload carried (title, url and price at
// minimum). Enrich is the detail phase: it completes one builder,
// typically through the detail cache. An instance lives for exactly one
// search and shares that search's context, budget and caches.
type Supplier interface {
	Name() string
	Info() domain.SupplierInfo
	Search(ctx context.Context, query string, limit int) ([]*product.Builder, error)
	Enrich(ctx context.Context, builder *product.Builder) error
}

// TitleSelector lets an adapter project richer text than the bare
// title for fuzzy comparison, such as a CAS number column. Without it
// the orchestrator compares against the builder's title.
type TitleSelector interface {
	SelectTitle(builder *product.Builder) string
}

// Config carries the per-search plumbing handed to every adapter
// factory. Budget and Client are scoped to one search; Detail and
// Rates are shared service-wide.
type Config struct {
	Client    *http.Client
	UserAgent string
	Budget    *fetch.Budget
	Detail    *cache.DetailCache
	Rates     product.RateSource
	Endpoint  string
	APIKey    string
}
