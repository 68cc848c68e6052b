package domain

import (
	"strings"
	"time"
)

type SearchRequest struct {
	Query     string
	Limit     int
	Suppliers []string
	Currency  string
	NoCache   bool
}

type SupplierInfo struct {
	Name     string        `json:"name"`
	Label    string        `json:"label"`
	BaseURL  string        `json:"baseUrl"`
	Shipping ShippingScope `json:"shipping"`
	Country  string        `json:"country"`
	Enabled  bool          `json:"enabled"`
}

type SupplierStatus struct {
	Name   string `json:"name"`
	OK     bool   `json:"ok"`
	Count  int    `json:"count"`
	Cached bool   `json:"cached,omitempty"`
	Error  string `json:"error,omitempty"`
}

type SupplierDiagnostics struct {
	Name                string     `json:"name"`
	Label               string     `json:"label"`
	Country             string     `json:"country"`
	Enabled             bool       `json:"enabled"`
	ConsecutiveFailures int        `json:"consecutiveFailures"`
	BlockedUntil        *time.Time `json:"blockedUntil,omitempty"`
	LastError           string     `json:"lastError,omitempty"`
	LastSuccessAt       *time.Time `json:"lastSuccessAt,omitempty"`
	LastFailureAt       *time.Time `json:"lastFailureAt,omitempty"`
	LastLatencyMS       int64      `json:"lastLatencyMs,omitempty"`
	LastTimeout         bool       `json:"lastTimeout,omitempty"`
	LastQuery           string     `json:"lastQuery,omitempty"`
	TotalRequests       int64      `json:"totalRequests,omitempty"`
	TotalFailures       int64      `json:"totalFailures,omitempty"`
	TimeoutCount        int64      `json:"timeoutCount,omitempty"`
}

type SearchResponse struct {
	SearchID   string           `json:"searchId"`
	Query      string           `json:"query"`
	Items      []Product        `json:"items"`
	Suppliers  []SupplierStatus `json:"suppliers"`
	ElapsedMS  int64            `json:"elapsedMs"`
	TotalItems int              `json:"totalItems"`
	Limit      int              `json:"limit"`
	Currency   string           `json:"currency,omitempty"`
	Final      bool             `json:"final"`
}

// SearchEvent is one element of a streamed search. Exactly one of the
// pointer fields is set: Product for an emitted result, Supplier when a
// supplier finishes, Final for the terminal summary. Error carries a
// request-level failure (invalid query, unknown supplier).
type SearchEvent struct {
	Product  *Product        `json:"product,omitempty"`
	Supplier *SupplierStatus `json:"supplier,omitempty"`
	Final    *SearchResponse `json:"final,omitempty"`
	Error    string          `json:"error,omitempty"`
}

// NormalizeCurrency uppercases a preferred display currency and drops
// values that cannot be an ISO-4217 code.
func NormalizeCurrency(raw string) string {
	code := strings.ToUpper(strings.TrimSpace(raw))
	if len(code) != 3 {
		return ""
	}
	for _, r := range code {
		if r < 'A' || r > 'Z' {
			return ""
		}
	}
	return code
}

// NormalizeSupplierNames lowercases, trims and dedupes a supplier subset
// while preserving order.
func NormalizeSupplierNames(raw []string) []string {
	if len(raw) == 0 {
		return nil
	}
	out := make([]string, 0, len(raw))
	seen := make(map[string]struct{}, len(raw))
	for _, name := range raw {
		value := strings.ToLower(strings.TrimSpace(name))
		if value == "" {
			continue
		}
		if _, exists := seen[value]; exists {
			continue
		}
		seen[value] = struct{}{}
		out = append(out, value)
	}
	return out
}
