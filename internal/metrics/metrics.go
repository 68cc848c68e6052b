package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	HTTPRequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "search",
		Name:      "http_requests_total",
		Help:      "Total HTTP requests by method, path and status code.",
	}, []string{"method", "path", "status"})

	HTTPRequestDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "search",
		Name:      "http_request_duration_seconds",
		Help:      "HTTP request duration in seconds.",
		Buckets:   []float64{0.05, 0.1, 0.3, 0.5, 1, 2, 5, 10, 20},
	}, []string{"method", "path"})

	SupplierRequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "search",
		Name:      "supplier_requests_total",
		Help:      "Total search calls to supplier adapters by supplier name and result status.",
	}, []string{"supplier", "status"})

	SupplierRequestDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "search",
		Name:      "supplier_request_duration_seconds",
		Help:      "Supplier search duration in seconds, including enrichment.",
		Buckets:   []float64{0.1, 0.5, 1, 2, 5, 10, 20, 30},
	}, []string{"supplier"})

	SupplierAvailable = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "search",
		Name:      "supplier_available",
		Help:      "Whether a supplier is available (1) or blocked by circuit breaker (0).",
	}, []string{"supplier"})

	ProductsEmittedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "search",
		Name:      "products_emitted_total",
		Help:      "Total products that passed validation and were emitted, by supplier.",
	}, []string{"supplier"})

	CacheHitsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "search",
		Name:      "cache_hits_total",
		Help:      "Total cache hits by tier (query or detail).",
	}, []string{"tier"})

	CacheMissesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "search",
		Name:      "cache_misses_total",
		Help:      "Total cache misses by tier (query or detail).",
	}, []string{"tier"})

	BudgetExhaustedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "search",
		Name:      "request_budget_exhausted_total",
		Help:      "Times a supplier hit its per-search request ceiling.",
	}, []string{"supplier"})

	RateLookupsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "search",
		Name:      "currency_rate_lookups_total",
		Help:      "Outbound currency rate fetches by result status.",
	}, []string{"status"})

	StreamSessionsActive = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "search",
		Name:      "stream_sessions_active",
		Help:      "Currently open SSE and WebSocket result streams.",
	})
)

func Register(reg prometheus.Registerer) {
	reg.MustRegister(
		HTTPRequestsTotal,
		HTTPRequestDuration,
		SupplierRequestsTotal,
		SupplierRequestDuration,
		SupplierAvailable,
		ProductsEmittedTotal,
		CacheHitsTotal,
		CacheMissesTotal,
		BudgetExhaustedTotal,
		RateLookupsTotal,
		StreamSessionsActive,
	)
}
