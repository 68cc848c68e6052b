package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	apihttp "chemsource/searchservice/internal/api/http"
	"chemsource/searchservice/internal/app"
	"chemsource/searchservice/internal/cache"
	"chemsource/searchservice/internal/metrics"
	"chemsource/searchservice/internal/product"
	"chemsource/searchservice/internal/rates"
	"chemsource/searchservice/internal/search"
	"chemsource/searchservice/internal/suppliers"
	"chemsource/searchservice/internal/telemetry"

	_ "chemsource/searchservice/internal/suppliers/chemsavers"
	_ "chemsource/searchservice/internal/suppliers/labdiscounter"
	_ "chemsource/searchservice/internal/suppliers/onyxmet"
	_ "chemsource/searchservice/internal/suppliers/warchem"
)

func main() {
	// A missing .env is fine; the environment wins either way.
	_ = godotenv.Load()

	cfg := app.LoadConfig()
	logger := newLogger(cfg.LogLevel, cfg.LogFormat)
	slog.SetDefault(logger)
	metrics.Register(prometheus.DefaultRegisterer)

	shutdownTracer, err := telemetry.Init(context.Background(), "reagent-search", cfg.OTLPEndpoint)
	if err != nil {
		logger.Warn("otel init failed", slog.String("error", err.Error()))
	}
	defer func() {
		if shutdownTracer != nil {
			_ = shutdownTracer(context.Background())
		}
	}()

	entries := selectSuppliers(cfg.Suppliers, logger)
	supplierNames := make([]string, 0, len(entries))
	for _, entry := range entries {
		supplierNames = append(supplierNames, entry.Name)
	}

	logger.Info("configuration loaded",
		slog.String("service", "reagent-search"),
		slog.String("httpAddr", cfg.HTTPAddr),
		slog.String("logLevel", cfg.LogLevel),
		slog.String("logFormat", cfg.LogFormat),
		slog.Duration("requestTimeout", cfg.RequestTimeout),
		slog.Int("requestBudget", cfg.RequestBudget),
		slog.Int("enrichConcurrency", cfg.EnrichConcurrency),
		slog.Int("fuzzCutoff", cfg.FuzzCutoff),
		slog.Any("suppliers", supplierNames),
		slog.Bool("hasRedis", strings.TrimSpace(cfg.RedisURL) != ""),
		slog.Duration("cacheTTL", cfg.CacheTTL),
		slog.Bool("cacheDisabled", cfg.CacheDisabled),
	)

	supplierClient := &http.Client{
		Timeout:   cfg.RequestTimeout,
		Transport: otelhttp.NewTransport(http.DefaultTransport),
	}
	rateSource := rates.NewClient(rates.Config{
		BaseURL: cfg.CurrencyAPIURL,
		Client: &http.Client{
			Timeout:   10 * time.Second,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
	})

	queries, details := buildCaches(cfg, logger)
	searchService := search.NewService(entries, logger,
		buildServiceOptions(cfg, queries, details, rateSource, supplierClient)...)

	handler := apihttp.NewServer(searchService,
		apihttp.WithLogger(logger),
		apihttp.WithRateLimit(cfg.RateLimitRPS, cfg.RateLimitBurst),
	).Handler()
	server := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		// SSE and WebSocket streams outlive any sane write timeout. Keep it
		// disabled at the server level; per-supplier timeouts bound the work.
		WriteTimeout: 0,
		IdleTimeout:  60 * time.Second,
	}

	rootCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.ListenAndServe()
	}()

	logger.Info("reagent search service started",
		slog.String("addr", cfg.HTTPAddr),
		slog.Duration("timeout", cfg.RequestTimeout),
		slog.Int("suppliers", len(entries)),
	)

	select {
	case <-rootCtx.Done():
		logger.Info("shutdown signal received")
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", slog.String("error", err.Error()))
			os.Exit(1)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Warn("shutdown error", slog.String("error", err.Error()))
	}
	logger.Info("reagent search service stopped")
}

func newLogger(levelRaw, formatRaw string) *slog.Logger {
	level := parseLogLevel(levelRaw)
	options := &slog.HandlerOptions{Level: level}
	format := strings.ToLower(strings.TrimSpace(formatRaw))
	if format == "json" {
		return slog.New(slog.NewJSONHandler(os.Stdout, options))
	}
	return slog.New(slog.NewTextHandler(os.Stdout, options))
}

func parseLogLevel(raw string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// selectSuppliers narrows the registry to the configured subset, or keeps
// every registered shop when no subset is configured.
func selectSuppliers(names []string, logger *slog.Logger) []suppliers.Entry {
	entries := suppliers.All()
	if len(names) == 0 {
		return entries
	}
	wanted := make(map[string]struct{}, len(names))
	for _, name := range names {
		wanted[strings.ToLower(strings.TrimSpace(name))] = struct{}{}
	}
	selected := make([]suppliers.Entry, 0, len(entries))
	for _, entry := range entries {
		if _, ok := wanted[entry.Name]; ok {
			selected = append(selected, entry)
			delete(wanted, entry.Name)
		}
	}
	for name := range wanted {
		logger.Warn("configured supplier is not registered", slog.String("supplier", name))
	}
	return selected
}

func buildCaches(cfg app.Config, logger *slog.Logger) (*cache.QueryCache, *cache.DetailCache) {
	if cfg.CacheDisabled {
		return nil, nil
	}
	store := buildCacheStore(cfg, logger)
	queries := cache.NewQueryCache(cache.QueryCacheConfig{
		Store:    store,
		TTL:      cfg.CacheTTL,
		Capacity: cfg.CacheCapacity,
		Logger:   logger,
	})
	details := cache.NewDetailCache(cache.DetailCacheConfig{
		Store:    store,
		Capacity: cfg.CacheCapacity,
		Logger:   logger,
	})
	return queries, details
}

func buildCacheStore(cfg app.Config, logger *slog.Logger) cache.Store {
	redisURL := strings.TrimSpace(cfg.RedisURL)
	if redisURL == "" {
		return cache.NewMemoryStore()
	}
	redisOpts, err := redis.ParseURL(redisURL)
	if err != nil {
		logger.Warn("invalid redis url, using in-memory cache", slog.String("error", err.Error()))
		return cache.NewMemoryStore()
	}
	client := redis.NewClient(redisOpts)
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		logger.Warn("redis not reachable, using in-memory cache", slog.String("error", err.Error()))
		return cache.NewMemoryStore()
	}
	logger.Info("redis connected", slog.String("addr", redisOpts.Addr))
	return cache.NewRedisStore(client, cfg.RedisCachePrefix)
}

func buildServiceOptions(cfg app.Config, queries *cache.QueryCache, details *cache.DetailCache, rateSource product.RateSource, client *http.Client) []search.ServiceOption {
	opts := []search.ServiceOption{
		search.WithHTTPClient(client),
		search.WithUserAgent(cfg.UserAgent),
		search.WithTimeout(cfg.RequestTimeout),
		search.WithRequestBudget(cfg.RequestBudget),
		search.WithEnrichConcurrency(cfg.EnrichConcurrency),
		search.WithFuzzCutoff(cfg.FuzzCutoff),
		search.WithRates(rateSource),
	}
	if cfg.CacheDisabled {
		opts = append(opts, search.WithCacheDisabled(true))
	} else {
		opts = append(opts, search.WithQueryCache(queries), search.WithDetailCache(details))
	}
	if len(cfg.SupplierEndpoints) > 0 {
		opts = append(opts, search.WithEndpointOverrides(cfg.SupplierEndpoints))
	}
	if len(cfg.SupplierAPIKeys) > 0 {
		opts = append(opts, search.WithAPIKeys(cfg.SupplierAPIKeys))
	}
	return opts
}
