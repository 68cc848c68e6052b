// Package search drives reagent queries across the registered supplier
// adapters. Suppliers run one after another in name order; inside a
// supplier the pipeline is cached search, fuzzy filter, batched
// concurrent enrichment, then validated build. Finished products are
// streamed back as they complete, so one failing shop never holds back
// the results of the shops before it.
package search

import (
	"errors"
	"log/slog"
	"net/http"
	"sort"
	"strings"
	"sync"
	"time"

	"chemsource/searchservice/internal/cache"
	"chemsource/searchservice/internal/domain"
	"chemsource/searchservice/internal/fetch"
	"chemsource/searchservice/internal/fuzzy"
	"chemsource/searchservice/internal/product"
	"chemsource/searchservice/internal/suppliers"
)

var (
	ErrInvalidQuery    = errors.New("query is required")
	ErrNoSuppliers     = errors.New("no suppliers configured")
	ErrUnknownSupplier = errors.New("unknown supplier")
)

const (
	defaultTimeout           = 30 * time.Second
	defaultLimit             = 10
	maxLimit                 = 100
	defaultEnrichConcurrency = 5
)

type Service struct {
	entries map[string]suppliers.Entry
	logger  *slog.Logger

	httpClient        *http.Client
	userAgent         string
	timeout           time.Duration
	requestBudget     int
	enrichConcurrency int
	fuzzCutoff        int
	retryCfg          RetryConfig
	cacheDisabled     bool

	queries   *cache.QueryCache
	details   *cache.DetailCache
	rates     product.RateSource
	endpoints map[string]string
	apiKeys   map[string]string

	healthMu sync.Mutex
	health   map[string]*supplierHealth
}

type ServiceOption func(*Service)

// WithQueryCache persists whole search rounds so a repeated query can
// skip the supplier entirely.
func WithQueryCache(qc *cache.QueryCache) ServiceOption {
	return func(s *Service) {
		s.queries = qc
	}
}

// WithDetailCache is handed to every adapter instance so product pages
// fetched once are shared across queries and suppliers.
func WithDetailCache(dc *cache.DetailCache) ServiceOption {
	return func(s *Service) {
		s.details = dc
	}
}

func WithRates(rates product.RateSource) ServiceOption {
	return func(s *Service) {
		s.rates = rates
	}
}

func WithHTTPClient(client *http.Client) ServiceOption {
	return func(s *Service) {
		if client != nil {
			s.httpClient = client
		}
	}
}

func WithUserAgent(ua string) ServiceOption {
	return func(s *Service) {
		if strings.TrimSpace(ua) != "" {
			s.userAgent = ua
		}
	}
}

func WithTimeout(timeout time.Duration) ServiceOption {
	return func(s *Service) {
		if timeout > 0 {
			s.timeout = timeout
		}
	}
}

// WithRequestBudget caps outbound HTTP requests per adapter per search.
func WithRequestBudget(n int) ServiceOption {
	return func(s *Service) {
		if n > 0 {
			s.requestBudget = n
		}
	}
}

// WithEnrichConcurrency bounds in-flight detail fetches within one
// adapter.
func WithEnrichConcurrency(n int) ServiceOption {
	return func(s *Service) {
		if n > 0 {
			s.enrichConcurrency = n
		}
	}
}

// WithFuzzCutoff sets the minimum match score (0-100) a candidate needs
// to survive relevance filtering.
func WithFuzzCutoff(cutoff int) ServiceOption {
	return func(s *Service) {
		if cutoff > 0 {
			s.fuzzCutoff = cutoff
		}
	}
}

// WithEndpointOverrides redirects named suppliers to alternate base
// URLs, typically mirrors or test servers.
func WithEndpointOverrides(overrides map[string]string) ServiceOption {
	return func(s *Service) {
		for name, endpoint := range overrides {
			key := strings.ToLower(strings.TrimSpace(name))
			if key == "" || strings.TrimSpace(endpoint) == "" {
				continue
			}
			s.endpoints[key] = strings.TrimSpace(endpoint)
		}
	}
}

func WithAPIKeys(keys map[string]string) ServiceOption {
	return func(s *Service) {
		for name, apiKey := range keys {
			key := strings.ToLower(strings.TrimSpace(name))
			if key == "" || strings.TrimSpace(apiKey) == "" {
				continue
			}
			s.apiKeys[key] = strings.TrimSpace(apiKey)
		}
	}
}

func WithRetryConfig(cfg RetryConfig) ServiceOption {
	return func(s *Service) {
		if cfg.MaxAttempts > 0 {
			s.retryCfg = cfg
		}
	}
}

func WithCacheDisabled(disabled bool) ServiceOption {
	return func(s *Service) {
		s.cacheDisabled = disabled
	}
}

func NewService(entries []suppliers.Entry, logger *slog.Logger, opts ...ServiceOption) *Service {
	registry := make(map[string]suppliers.Entry, len(entries))
	for _, entry := range entries {
		name := strings.ToLower(strings.TrimSpace(entry.Name))
		if name == "" || entry.New == nil {
			continue
		}
		registry[name] = entry
	}

	if logger == nil {
		logger = slog.Default()
	}

	svc := &Service{
		entries:           registry,
		logger:            logger,
		timeout:           defaultTimeout,
		requestBudget:     fetch.DefaultRequestBudget,
		enrichConcurrency: defaultEnrichConcurrency,
		fuzzCutoff:        fuzzy.DefaultCutoff,
		retryCfg:          DefaultRetryConfig(),
		endpoints:         make(map[string]string),
		apiKeys:           make(map[string]string),
		health:            make(map[string]*supplierHealth),
	}
	for _, opt := range opts {
		opt(svc)
	}
	return svc
}

// Suppliers lists the configured suppliers sorted by name.
func (s *Service) Suppliers() []domain.SupplierInfo {
	if len(s.entries) == 0 {
		return nil
	}
	items := make([]domain.SupplierInfo, 0, len(s.entries))
	for name, entry := range s.entries {
		info := entry.Info
		if info.Name == "" {
			info.Name = name
		}
		if info.Label == "" {
			info.Label = info.Name
		}
		items = append(items, info)
	}
	sort.Slice(items, func(i, j int) bool {
		return items[i].Name < items[j].Name
	})
	return items
}

// newAdapter constructs a fresh adapter instance for one search round.
// Each round gets its own request budget; the detail cache and rate
// source are shared service-wide.
func (s *Service) newAdapter(entry suppliers.Entry) (suppliers.Supplier, *fetch.Budget, error) {
	budget := fetch.NewBudget(s.requestBudget)
	adapter, err := entry.New(suppliers.Config{
		Client:    s.httpClient,
		UserAgent: s.userAgent,
		Budget:    budget,
		Detail:    s.details,
		Rates:     s.rates,
		Endpoint:  s.endpoints[entry.Name],
		APIKey:    s.apiKeys[entry.Name],
	})
	if err != nil {
		return nil, nil, err
	}
	return adapter, budget, nil
}
