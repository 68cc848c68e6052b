package apihttp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"chemsource/searchservice/internal/domain"
	"chemsource/searchservice/internal/search"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

type SearchService interface {
	Search(ctx context.Context, request domain.SearchRequest) (domain.SearchResponse, error)
	SearchStream(ctx context.Context, request domain.SearchRequest) (<-chan domain.SearchEvent, error)
	Suppliers() []domain.SupplierInfo
	SupplierDiagnostics() []domain.SupplierDiagnostics
}

type Server struct {
	search    SearchService
	logger    *slog.Logger
	rateRPS   float64
	rateBurst int
}

const (
	maxQueryLength   = 500
	defaultRateRPS   = 10
	defaultRateBurst = 20
)

type ServerOption func(*Server)

func WithLogger(logger *slog.Logger) ServerOption {
	return func(s *Server) {
		s.logger = logger
	}
}

// WithRateLimit overrides the per-client token bucket. Zero or negative
// values keep the defaults.
func WithRateLimit(rps float64, burst int) ServerOption {
	return func(s *Server) {
		if rps > 0 {
			s.rateRPS = rps
		}
		if burst > 0 {
			s.rateBurst = burst
		}
	}
}

func NewServer(searchService SearchService, options ...ServerOption) *Server {
	server := &Server{
		search:    searchService,
		logger:    slog.Default(),
		rateRPS:   defaultRateRPS,
		rateBurst: defaultRateBurst,
	}
	for _, option := range options {
		if option != nil {
			option(server)
		}
	}
	if server.logger == nil {
		server.logger = slog.Default()
	}
	return server
}

func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", s.handleHealth)
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/search/suppliers", s.handleSuppliers)
	mux.HandleFunc("/search/suppliers/health", s.handleSuppliersHealth)
	mux.HandleFunc("/search/suppliers/test", s.handleSupplierTest)
	mux.HandleFunc("/search/stream", s.handleSearchStream)
	mux.HandleFunc("/search/ws", s.handleSearchSocket)
	mux.HandleFunc("/search", s.handleSearch)
	traced := otelhttp.NewHandler(loggingMiddleware(s.logger, mux), "reagent-search",
		otelhttp.WithFilter(func(r *http.Request) bool {
			p := r.URL.Path
			return p != "/metrics" && p != "/health"
		}),
	)
	return recoveryMiddleware(s.logger, rateLimitMiddleware(s.rateRPS, s.rateBurst, metricsMiddleware(traced)))
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	suppliers := 0
	if s.search != nil {
		suppliers = len(s.search.Suppliers())
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status":    "ok",
		"timestamp": time.Now().UTC(),
		"suppliers": suppliers,
	})
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/search" {
		http.NotFound(w, r)
		return
	}
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if s.search == nil {
		writeError(w, http.StatusInternalServerError, "internal_error", "search service is not configured")
		return
	}

	request, err := parseSearchRequest(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}

	response, err := s.search.Search(r.Context(), request)
	if err != nil {
		s.logger.Warn("search request failed",
			slog.String("query", truncate(request.Query, 80)),
			slog.Any("suppliers", request.Suppliers),
			slog.String("error", err.Error()),
		)
		writeSearchError(w, err)
		return
	}

	failedSuppliers := make([]string, 0, len(response.Suppliers))
	for _, supplierStatus := range response.Suppliers {
		if !supplierStatus.OK {
			failedSuppliers = append(failedSuppliers, supplierStatus.Name)
		}
	}
	s.logger.Info("search completed",
		slog.String("query", truncate(request.Query, 80)),
		slog.Any("suppliers", request.Suppliers),
		slog.Int("totalItems", response.TotalItems),
		slog.Int64("elapsedMs", response.ElapsedMS),
		slog.Int("failedSuppliers", len(failedSuppliers)),
	)
	if len(failedSuppliers) > 0 {
		s.logger.Warn("search suppliers partially failed",
			slog.String("query", truncate(request.Query, 80)),
			slog.Any("failedSuppliers", failedSuppliers),
		)
	}

	writeJSON(w, http.StatusOK, response)
}

func (s *Server) handleSearchStream(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/search/stream" {
		http.NotFound(w, r)
		return
	}
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if s.search == nil {
		writeError(w, http.StatusInternalServerError, "internal_error", "search service is not configured")
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "internal_error", "streaming is not supported")
		return
	}

	request, err := parseSearchRequest(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}

	// Validation errors surface before any SSE framing so the client
	// still gets a plain JSON error with a real status code.
	events, err := s.search.SearchStream(r.Context(), request)
	if err != nil {
		writeSearchError(w, err)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream; charset=utf-8")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")

	if err := writeSSEEvent(w, flusher, "bootstrap", map[string]any{
		"phase":  "bootstrap",
		"final":  false,
		"query":  request.Query,
		"status": "started",
	}); err != nil {
		return // Client disconnected
	}

	finalSent := false
	for event := range events {
		select {
		case <-r.Context().Done():
			return // Client disconnected
		default:
		}
		switch {
		case event.Error != "":
			_ = writeSSEEvent(w, flusher, "error", map[string]any{
				"message": event.Error,
			})
			_ = writeSSEEvent(w, flusher, "done", map[string]any{"final": true})
			return
		case event.Product != nil:
			if err := writeSSEEvent(w, flusher, "product", event.Product); err != nil {
				return // Client disconnected
			}
		case event.Supplier != nil:
			if err := writeSSEEvent(w, flusher, "supplier", event.Supplier); err != nil {
				return // Client disconnected
			}
		case event.Final != nil:
			finalSent = true
			if err := writeSSEEvent(w, flusher, "done", event.Final); err != nil {
				return // Client disconnected
			}
		}
	}

	if !finalSent {
		_ = writeSSEEvent(w, flusher, "done", map[string]any{"final": true})
	}
}

func (s *Server) handleSuppliers(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/search/suppliers" {
		http.NotFound(w, r)
		return
	}
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if s.search == nil {
		writeError(w, http.StatusInternalServerError, "internal_error", "search service is not configured")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"items": s.search.Suppliers(),
	})
}

func (s *Server) handleSuppliersHealth(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/search/suppliers/health" {
		http.NotFound(w, r)
		return
	}
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if s.search == nil {
		writeError(w, http.StatusInternalServerError, "internal_error", "search service is not configured")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"checkedAt": time.Now().UTC(),
		"items":     s.search.SupplierDiagnostics(),
	})
}

// handleSupplierTest runs a forced live search against a single supplier so
// an operator can check whether the adapter still matches the shop markup.
func (s *Server) handleSupplierTest(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/search/suppliers/test" {
		http.NotFound(w, r)
		return
	}
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if s.search == nil {
		writeError(w, http.StatusInternalServerError, "internal_error", "search service is not configured")
		return
	}

	supplier := strings.ToLower(strings.TrimSpace(r.URL.Query().Get("supplier")))
	if supplier == "" {
		writeError(w, http.StatusBadRequest, "invalid_request", "supplier is required")
		return
	}
	query := strings.TrimSpace(r.URL.Query().Get("q"))
	if query == "" {
		query = "sodium chloride"
	}
	limit, err := parsePositiveInt(r, "limit", 10)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "invalid limit")
		return
	}
	if limit > 50 {
		limit = 50
	}

	startedAt := time.Now()
	response, err := s.search.Search(r.Context(), domain.SearchRequest{
		Query:     query,
		Limit:     limit,
		Suppliers: []string{supplier},
		NoCache:   true,
	})
	if err != nil {
		writeJSON(w, http.StatusOK, map[string]any{
			"supplier":  supplier,
			"query":     query,
			"ok":        false,
			"elapsedMs": time.Since(startedAt).Milliseconds(),
			"error":     err.Error(),
		})
		return
	}

	var supplierStatus domain.SupplierStatus
	for _, status := range response.Suppliers {
		if strings.EqualFold(status.Name, supplier) {
			supplierStatus = status
			break
		}
	}
	sample := make([]string, 0, 3)
	for _, item := range response.Items {
		title := strings.TrimSpace(item.Title)
		if title == "" {
			continue
		}
		sample = append(sample, truncate(title, 120))
		if len(sample) >= 3 {
			break
		}
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"supplier":  supplier,
		"query":     query,
		"ok":        supplierStatus.OK,
		"count":     supplierStatus.Count,
		"elapsedMs": response.ElapsedMS,
		"error":     supplierStatus.Error,
		"sample":    sample,
	})
}

func parseSearchRequest(r *http.Request) (domain.SearchRequest, error) {
	query := strings.TrimSpace(r.URL.Query().Get("q"))
	if query == "" {
		return domain.SearchRequest{}, errors.New("query is required")
	}
	if len(query) > maxQueryLength {
		return domain.SearchRequest{}, errors.New("query too long (max 500 characters)")
	}
	limit, err := parsePositiveInt(r, "limit", 0)
	if err != nil {
		return domain.SearchRequest{}, errors.New("invalid limit")
	}

	return domain.SearchRequest{
		Query:     query,
		Limit:     limit,
		Suppliers: parseCSV(r.URL.Query().Get("suppliers")),
		Currency:  strings.TrimSpace(r.URL.Query().Get("currency")),
		NoCache:   parseOptionalBool(r.URL.Query().Get("nocache")) || parseOptionalBool(r.URL.Query().Get("noCache")),
	}, nil
}

func writeSearchError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, search.ErrInvalidQuery):
		writeError(w, http.StatusBadRequest, "invalid_request", err.Error())
	case errors.Is(err, search.ErrUnknownSupplier):
		writeError(w, http.StatusBadRequest, "invalid_request", err.Error())
	case errors.Is(err, search.ErrNoSuppliers):
		writeError(w, http.StatusServiceUnavailable, "service_unavailable", err.Error())
	default:
		writeError(w, http.StatusInternalServerError, "internal_error", "search failed")
	}
}

func parseCSV(raw string) []string {
	if strings.TrimSpace(raw) == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	seen := make(map[string]struct{}, len(parts))
	for _, part := range parts {
		value := strings.ToLower(strings.TrimSpace(part))
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

func parsePositiveInt(r *http.Request, key string, fallback int) (int, error) {
	raw := strings.TrimSpace(r.URL.Query().Get(key))
	if raw == "" {
		return fallback, nil
	}
	parsed, err := strconv.Atoi(raw)
	if err != nil || parsed <= 0 {
		return 0, errors.New("invalid value")
	}
	return parsed, nil
}

func parseOptionalBool(raw string) bool {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "1", "true", "yes", "on":
		return true
	default:
		return false
	}
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, map[string]any{
		"error": map[string]string{
			"code":    code,
			"message": message,
		},
	})
}

func writeSSEEvent(w http.ResponseWriter, flusher http.Flusher, event string, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	if event != "" {
		if _, err := fmt.Fprintf(w, "event: %s\n", event); err != nil {
			return err // Client disconnected
		}
	}
	if _, err := fmt.Fprintf(w, "data: %s\n\n", data); err != nil {
		return err // Client disconnected
	}
	flusher.Flush()
	return nil
}
