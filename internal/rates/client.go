// Package rates resolves currency conversion rates through an external
// exchange-rate API and keeps a small pull-through cache so one search
// session never hammers the rate service.
package rates

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"net/http"
	"strings"
	"sync"
	"time"

	"golang.org/x/text/currency"

	"chemsource/searchservice/internal/metrics"
)

const (
	defaultBaseURL   = "https://open.er-api.com/v6/latest"
	defaultCacheSize = 5
)

type Client struct {
	baseURL   string
	http      *http.Client
	cacheSize int

	mu    sync.Mutex
	table map[string]map[string]float64
	order []string // insertion order of cached base currencies
}

type Config struct {
	BaseURL   string
	Client    *http.Client
	CacheSize int
}

type ratesResponse struct {
	Result string             `json:"result"`
	Base   string             `json:"base_code"`
	Rates  map[string]float64 `json:"rates"`
}

func NewClient(cfg Config) *Client {
	baseURL := strings.TrimSpace(cfg.BaseURL)
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	httpClient := cfg.Client
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 10 * time.Second}
	}
	cacheSize := cfg.CacheSize
	if cacheSize <= 0 {
		cacheSize = defaultCacheSize
	}
	return &Client{
		baseURL:   strings.TrimRight(baseURL, "/"),
		http:      httpClient,
		cacheSize: cacheSize,
		table:     make(map[string]map[string]float64),
	}
}

// Rate returns the multiplier converting one unit of from into to.
// Identity conversions never touch the network.
func (c *Client) Rate(ctx context.Context, from, to string) (float64, error) {
	from, err := normalizeCode(from)
	if err != nil {
		return 0, err
	}
	to, err = normalizeCode(to)
	if err != nil {
		return 0, err
	}
	if from == to {
		return 1, nil
	}

	table, err := c.ratesFor(ctx, from)
	if err != nil {
		return 0, err
	}
	rate, ok := table[to]
	if !ok || rate <= 0 {
		return 0, fmt.Errorf("no rate from %s to %s", from, to)
	}
	return rate, nil
}

// ToUSD converts an amount in the given currency to US dollars, rounded
// to two decimals.
func (c *Client) ToUSD(ctx context.Context, amount float64, from string) (float64, error) {
	rate, err := c.Rate(ctx, from, "USD")
	if err != nil {
		return 0, err
	}
	return math.Round(amount*rate*100) / 100, nil
}

func (c *Client) ratesFor(ctx context.Context, base string) (map[string]float64, error) {
	c.mu.Lock()
	if table, ok := c.table[base]; ok {
		c.mu.Unlock()
		return table, nil
	}
	c.mu.Unlock()

	table, err := c.fetch(ctx, base)
	if err != nil {
		metrics.RateLookupsTotal.WithLabelValues("error").Inc()
		return nil, err
	}
	metrics.RateLookupsTotal.WithLabelValues("success").Inc()

	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.table[base]; !ok {
		c.table[base] = table
		c.order = append(c.order, base)
		for len(c.order) > c.cacheSize {
			delete(c.table, c.order[0])
			c.order = c.order[1:]
		}
	}
	return table, nil
}

func (c *Client) fetch(ctx context.Context, base string) (map[string]float64, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/"+base, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return nil, fmt.Errorf("rate service HTTP %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 512*1024))
	if err != nil {
		return nil, err
	}

	var payload ratesResponse
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, fmt.Errorf("decode rate payload: %w", err)
	}
	if payload.Result != "" && payload.Result != "success" {
		return nil, fmt.Errorf("rate service result %q", payload.Result)
	}
	if len(payload.Rates) == 0 {
		return nil, fmt.Errorf("rate payload for %s has no rates", base)
	}
	return payload.Rates, nil
}

func normalizeCode(code string) (string, error) {
	unit, err := currency.ParseISO(strings.TrimSpace(code))
	if err != nil {
		return "", fmt.Errorf("currency code %q: %w", code, err)
	}
	return unit.String(), nil
}
