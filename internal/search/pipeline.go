package search

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/semaphore"

	"chemsource/searchservice/internal/domain"
	"chemsource/searchservice/internal/fetch"
	"chemsource/searchservice/internal/fuzzy"
	"chemsource/searchservice/internal/metrics"
	"chemsource/searchservice/internal/product"
	"chemsource/searchservice/internal/suppliers"
)

type preparedSearch struct {
	id       string
	query    string
	limit    int
	currency string
	noCache  bool
	selected []suppliers.Entry
}

func (s *Service) prepare(request domain.SearchRequest) (preparedSearch, error) {
	query := strings.TrimSpace(request.Query)
	if query == "" {
		return preparedSearch{}, ErrInvalidQuery
	}
	if len(s.entries) == 0 {
		return preparedSearch{}, ErrNoSuppliers
	}

	limit := request.Limit
	if limit <= 0 {
		limit = defaultLimit
	}
	if limit > maxLimit {
		limit = maxLimit
	}

	names := domain.NormalizeSupplierNames(request.Suppliers)
	selected := make([]suppliers.Entry, 0, len(s.entries))
	if len(names) == 0 {
		for _, entry := range s.entries {
			if entry.Info.Enabled {
				selected = append(selected, entry)
			}
		}
	} else {
		for _, name := range names {
			entry, ok := s.entries[name]
			if !ok {
				return preparedSearch{}, fmt.Errorf("%w: %s", ErrUnknownSupplier, name)
			}
			selected = append(selected, entry)
		}
	}
	if len(selected) == 0 {
		return preparedSearch{}, ErrNoSuppliers
	}
	sort.Slice(selected, func(i, j int) bool {
		return selected[i].Name < selected[j].Name
	})

	return preparedSearch{
		id:       uuid.NewString(),
		query:    query,
		limit:    limit,
		currency: domain.NormalizeCurrency(request.Currency),
		noCache:  request.NoCache || s.cacheDisabled,
		selected: selected,
	}, nil
}

// SearchStream validates the request and starts the pipeline. Events
// arrive on the returned channel as suppliers produce them; the channel
// closes once every supplier finished or ctx was cancelled. Cancellation
// is silent: the stream just ends, no error event is emitted.
func (s *Service) SearchStream(ctx context.Context, request domain.SearchRequest) (<-chan domain.SearchEvent, error) {
	prepared, err := s.prepare(request)
	if err != nil {
		return nil, err
	}
	events := make(chan domain.SearchEvent)
	go s.run(ctx, prepared, events)
	return events, nil
}

// Search drives the same pipeline but collects the stream into a single
// response. When ctx is cancelled mid-search it returns whatever was
// gathered so far without an error.
func (s *Service) Search(ctx context.Context, request domain.SearchRequest) (domain.SearchResponse, error) {
	prepared, err := s.prepare(request)
	if err != nil {
		return domain.SearchResponse{}, err
	}

	events := make(chan domain.SearchEvent)
	go s.run(ctx, prepared, events)

	started := time.Now()
	response := domain.SearchResponse{
		SearchID: prepared.id,
		Query:    prepared.query,
		Limit:    prepared.limit,
		Currency: prepared.currency,
		Items:    []domain.Product{},
	}
	for event := range events {
		switch {
		case event.Product != nil:
			response.Items = append(response.Items, *event.Product)
		case event.Supplier != nil:
			response.Suppliers = append(response.Suppliers, *event.Supplier)
		case event.Final != nil:
			response.ElapsedMS = event.Final.ElapsedMS
			response.Final = true
		}
	}
	response.TotalItems = len(response.Items)
	if response.ElapsedMS == 0 {
		response.ElapsedMS = time.Since(started).Milliseconds()
	}
	return response, nil
}

// run walks the selected suppliers in name order. Each supplier is an
// independent round: its failure becomes a SupplierStatus with OK=false
// while the loop moves on. Only cancellation of ctx stops the walk.
func (s *Service) run(ctx context.Context, prepared preparedSearch, events chan<- domain.SearchEvent) {
	defer close(events)

	metrics.StreamSessionsActive.Inc()
	defer metrics.StreamSessionsActive.Dec()

	startedAt := time.Now()
	logger := s.logger.With(
		slog.String("searchId", prepared.id),
		slog.String("query", prepared.query),
	)
	logger.Info("search started",
		slog.Int("limit", prepared.limit),
		slog.Int("suppliers", len(prepared.selected)),
		slog.Bool("noCache", prepared.noCache),
	)

	statuses := make([]domain.SupplierStatus, 0, len(prepared.selected))
	total := 0
	for _, entry := range prepared.selected {
		if ctx.Err() != nil {
			logger.Info("search cancelled", slog.Int("totalItems", total))
			return
		}
		status := s.runSupplier(ctx, prepared, entry, events, logger)
		if ctx.Err() != nil {
			logger.Info("search cancelled", slog.Int("totalItems", total))
			return
		}
		statuses = append(statuses, status)
		total += status.Count
		if !emit(ctx, events, domain.SearchEvent{Supplier: &status}) {
			return
		}
	}

	final := domain.SearchResponse{
		SearchID:   prepared.id,
		Query:      prepared.query,
		Suppliers:  statuses,
		ElapsedMS:  time.Since(startedAt).Milliseconds(),
		TotalItems: total,
		Limit:      prepared.limit,
		Currency:   prepared.currency,
		Final:      true,
	}
	emit(ctx, events, domain.SearchEvent{Final: &final})
	logger.Info("search finished",
		slog.Int("totalItems", total),
		slog.Int64("elapsedMs", final.ElapsedMS),
	)
}

// runSupplier executes one supplier's round: query cache, live search
// with retry, fuzzy filtering, batched enrichment, build, emit. All
// failures end up in the returned status instead of propagating.
func (s *Service) runSupplier(ctx context.Context, prepared preparedSearch, entry suppliers.Entry, events chan<- domain.SearchEvent, logger *slog.Logger) domain.SupplierStatus {
	name := entry.Name
	logger = logger.With(slog.String("supplier", name))

	if blocked, until, lastErr := s.isSupplierBlocked(name, time.Now()); blocked {
		logger.Warn("supplier temporarily blocked",
			slog.Time("until", until),
			slog.String("lastError", lastErr),
		)
		return domain.SupplierStatus{Name: name, Error: "temporarily blocked: " + lastErr}
	}

	if !prepared.noCache {
		if snapshots, ok := s.queries.Get(ctx, prepared.query, name, prepared.limit); ok {
			return s.emitCached(ctx, prepared, entry, snapshots, events, logger)
		}
	}

	// A slow supplier gets its own deadline so it cannot stall the
	// suppliers after it indefinitely.
	roundCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	adapter, budget, err := s.newAdapter(entry)
	if err != nil {
		logger.Warn("adapter construction failed", slog.String("error", err.Error()))
		s.recordSupplierResult(name, prepared.query, err, 0, time.Now())
		return domain.SupplierStatus{Name: name, Error: err.Error()}
	}

	started := time.Now()
	var builders []*product.Builder
	err = RetryWithBackoff(roundCtx, s.retryCfg, func() error {
		var searchErr error
		builders, searchErr = adapter.Search(roundCtx, prepared.query, prepared.limit)
		return searchErr
	})
	latency := time.Since(started)
	s.recordSupplierResult(name, prepared.query, err, latency, time.Now())
	if err != nil {
		logger.Warn("supplier search failed",
			slog.Duration("latency", latency),
			slog.String("error", err.Error()),
		)
		return domain.SupplierStatus{Name: name, Error: err.Error()}
	}
	logger.Debug("supplier search done",
		slog.Int("candidates", len(builders)),
		slog.Duration("latency", latency),
	)

	filtered := s.filterCandidates(prepared.query, adapter, builders)
	if len(filtered) > prepared.limit {
		filtered = filtered[:prepared.limit]
	}

	kept, emitted, budgetOut := s.enrichAndEmit(ctx, roundCtx, adapter, name, budget, filtered, events, logger)

	if !prepared.noCache && !budgetOut && roundCtx.Err() == nil {
		snapshots := make([]product.Snapshot, 0, len(kept))
		for _, b := range kept {
			snapshots = append(snapshots, b.Dump())
		}
		sort.SliceStable(snapshots, func(i, j int) bool {
			return snapshots[i].Match > snapshots[j].Match
		})
		s.queries.Put(ctx, prepared.query, name, prepared.limit, snapshots)
	}

	status := domain.SupplierStatus{Name: name, OK: true, Count: emitted}
	if budgetOut {
		status.Error = fetch.ErrBudgetExhausted.Error()
	}
	return status
}

// emitCached rehydrates persisted snapshots into builders and emits
// them without touching the supplier.
func (s *Service) emitCached(ctx context.Context, prepared preparedSearch, entry suppliers.Entry, snapshots []product.Snapshot, events chan<- domain.SearchEvent, logger *slog.Logger) domain.SupplierStatus {
	name := entry.Name
	if len(snapshots) > prepared.limit {
		snapshots = snapshots[:prepared.limit]
	}

	count := 0
	for _, snap := range snapshots {
		builder := product.NewBuilder(name, entry.Info.BaseURL, s.rates).SetData(snap)
		built, err := builder.Build(ctx)
		if err != nil {
			logger.Warn("dropping cached product that failed validation", slog.String("error", err.Error()))
			continue
		}
		if !emit(ctx, events, domain.SearchEvent{Product: &built}) {
			break
		}
		metrics.ProductsEmittedTotal.WithLabelValues(name).Inc()
		count++
	}
	logger.Debug("served from query cache", slog.Int("count", count))
	return domain.SupplierStatus{Name: name, OK: true, Count: count, Cached: true}
}

// filterCandidates scores every candidate title against the query and
// keeps the ones above the cutoff, best first, with the score stamped
// onto the builder. Adapters that implement TitleSelector get to pick
// the text being matched.
func (s *Service) filterCandidates(query string, adapter suppliers.Supplier, builders []*product.Builder) []*product.Builder {
	if len(builders) == 0 {
		return nil
	}
	selector, _ := adapter.(suppliers.TitleSelector)
	titles := make([]string, len(builders))
	for i, b := range builders {
		if selector != nil {
			titles[i] = selector.SelectTitle(b)
		}
		if titles[i] == "" {
			titles[i] = b.Title()
		}
	}
	matches := fuzzy.Filter(query, titles, s.fuzzCutoff)
	filtered := make([]*product.Builder, 0, len(matches))
	for _, match := range matches {
		filtered = append(filtered, builders[match.Index].SetMatch(match.Score))
	}
	return filtered
}

// enrichAndEmit runs the detail phase in bounded batches. Every
// candidate that enriches and validates is emitted immediately; a
// failed candidate is dropped alone. Budget exhaustion stops this
// supplier's remaining candidates and nothing else.
func (s *Service) enrichAndEmit(ctx, roundCtx context.Context, adapter suppliers.Supplier, name string, budget *fetch.Budget, candidates []*product.Builder, events chan<- domain.SearchEvent, logger *slog.Logger) (kept []*product.Builder, emitted int, budgetOut bool) {
	if len(candidates) == 0 {
		return nil, 0, false
	}

	sem := semaphore.NewWeighted(int64(s.enrichConcurrency))
	var (
		wg sync.WaitGroup
		mu sync.Mutex
	)

	for _, candidate := range candidates {
		mu.Lock()
		stop := budgetOut
		mu.Unlock()
		if stop || roundCtx.Err() != nil {
			break
		}
		if err := sem.Acquire(roundCtx, 1); err != nil {
			break
		}
		wg.Add(1)
		go func(b *product.Builder) {
			defer wg.Done()
			defer sem.Release(1)

			if err := adapter.Enrich(roundCtx, b); err != nil {
				if errors.Is(err, fetch.ErrBudgetExhausted) {
					mu.Lock()
					first := !budgetOut
					budgetOut = true
					mu.Unlock()
					if first {
						metrics.BudgetExhaustedTotal.WithLabelValues(name).Inc()
						logger.Warn("request budget exhausted, dropping remaining candidates",
							slog.Int("used", budget.Used()),
						)
					}
					return
				}
				if roundCtx.Err() != nil {
					return
				}
				logger.Warn("enrichment failed",
					slog.String("url", b.URL()),
					slog.String("error", err.Error()),
				)
				return
			}

			built, err := b.Build(roundCtx)
			if err != nil {
				logger.Warn("dropping product that failed validation", slog.String("error", err.Error()))
				return
			}
			if !emit(ctx, events, domain.SearchEvent{Product: &built}) {
				return
			}
			metrics.ProductsEmittedTotal.WithLabelValues(name).Inc()
			mu.Lock()
			kept = append(kept, b)
			emitted++
			mu.Unlock()
		}(candidate)
	}
	wg.Wait()
	return kept, emitted, budgetOut
}

// emit delivers one event unless the search was cancelled first.
func emit(ctx context.Context, events chan<- domain.SearchEvent, event domain.SearchEvent) bool {
	select {
	case events <- event:
		return true
	case <-ctx.Done():
		return false
	}
}
