package app

import (
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	HTTPAddr          string
	RequestTimeout    time.Duration
	LogLevel          string
	LogFormat         string
	UserAgent         string
	RequestBudget     int
	EnrichConcurrency int
	FuzzCutoff        int
	Suppliers         []string
	SupplierEndpoints map[string]string
	SupplierAPIKeys   map[string]string
	RedisURL          string
	RedisCachePrefix  string
	CacheTTL          time.Duration
	CacheCapacity     int
	CacheDisabled     bool
	CurrencyAPIURL    string
	RateLimitRPS      float64
	RateLimitBurst    int
	OTLPEndpoint      string
}

func LoadConfig() Config {
	return Config{
		HTTPAddr:          getEnv("HTTP_ADDR", ":8090"),
		RequestTimeout:    time.Duration(getEnvInt("SEARCH_TIMEOUT_SECONDS", 30)) * time.Second,
		LogLevel:          strings.ToLower(getEnv("LOG_LEVEL", "info")),
		LogFormat:         strings.ToLower(getEnv("LOG_FORMAT", "text")),
		UserAgent:         getEnv("SEARCH_USER_AGENT", "reagent-search/1.0"),
		RequestBudget:     getEnvInt("SEARCH_REQUEST_BUDGET", 50),
		EnrichConcurrency: getEnvInt("SEARCH_ENRICH_CONCURRENCY", 5),
		FuzzCutoff:        getEnvInt("SEARCH_FUZZ_CUTOFF", 40),
		Suppliers:         splitCSV(getEnv("SEARCH_SUPPLIERS", "")),
		SupplierEndpoints: scanSupplierEnv("_ENDPOINT", nil),
		SupplierAPIKeys: scanSupplierEnv("_API_KEY", map[string]string{
			"chemsavers": strings.TrimSpace(os.Getenv("CHEMSAVERS_API_KEY")),
		}),
		RedisURL:         getEnv("REDIS_URL", ""),
		RedisCachePrefix: getEnv("REDIS_CACHE_PREFIX", ""),
		CacheTTL:         time.Duration(getEnvInt("SEARCH_CACHE_TTL_HOURS", 24)) * time.Hour,
		CacheCapacity:    getEnvInt("SEARCH_CACHE_CAPACITY", 100),
		CacheDisabled:    getEnvBool("SEARCH_CACHE_DISABLED", false),
		CurrencyAPIURL:   getEnv("CURRENCY_API_URL", ""),
		RateLimitRPS:     getEnvFloat("RATE_LIMIT_RPS", 10),
		RateLimitBurst:   getEnvInt("RATE_LIMIT_BURST", 20),
		OTLPEndpoint:     getEnv("OTEL_EXPORTER_OTLP_ENDPOINT", ""),
	}
}

func getEnv(key, fallback string) string {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return fallback
	}
	return value
}

func getEnvInt(key string, fallback int) int {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(raw)
	if err != nil || parsed <= 0 {
		return fallback
	}
	return parsed
}

func getEnvFloat(key string, fallback float64) float64 {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return fallback
	}
	parsed, err := strconv.ParseFloat(raw, 64)
	if err != nil || parsed <= 0 {
		return fallback
	}
	return parsed
}

func getEnvBool(key string, fallback bool) bool {
	raw := strings.ToLower(strings.TrimSpace(os.Getenv(key)))
	if raw == "" {
		return fallback
	}
	switch raw {
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	default:
		return fallback
	}
}

func splitCSV(raw string) []string {
	if strings.TrimSpace(raw) == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		value := strings.ToLower(strings.TrimSpace(part))
		if value != "" {
			out = append(out, value)
		}
	}
	return out
}

// scanSupplierEnv collects SEARCH_SUPPLIER_<NAME><suffix> variables into
// a supplier-name keyed map, merged over seed values.
func scanSupplierEnv(suffix string, seed map[string]string) map[string]string {
	out := make(map[string]string)
	for name, value := range seed {
		if value != "" {
			out[name] = value
		}
	}
	const prefix = "SEARCH_SUPPLIER_"
	for _, pair := range os.Environ() {
		key, value, ok := strings.Cut(pair, "=")
		if !ok || !strings.HasPrefix(key, prefix) || !strings.HasSuffix(key, suffix) {
			continue
		}
		name := strings.TrimSuffix(strings.TrimPrefix(key, prefix), suffix)
		name = strings.ToLower(strings.TrimSpace(name))
		value = strings.TrimSpace(value)
		if name == "" || value == "" {
			continue
		}
		out[name] = value
	}
	if len(out) == 0 {
		return nil
	}
	return out
}
