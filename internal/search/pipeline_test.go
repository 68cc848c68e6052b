package search

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"chemsource/searchservice/internal/cache"
	"chemsource/searchservice/internal/domain"
	"chemsource/searchservice/internal/product"
	"chemsource/searchservice/internal/suppliers"
)

type fakeItem struct {
	title string
	url   string
	price float64
	qty   float64
	uom   string
}

func saltItem(url string) fakeItem {
	return fakeItem{title: "Sodium Chloride 500g", url: url, price: 9.99, qty: 500, uom: "g"}
}

// fakeSupplier is a scriptable adapter: items to return, errors to
// inject, an optional per-search delay, and counters for assertions.
type fakeSupplier struct {
	name       string
	items      []fakeItem
	searchErr  error
	enrichErr  func(b *product.Builder) error
	useBudget  bool
	delay      time.Duration
	cfg        suppliers.Config
	hits       atomic.Int32
	enrichHits atomic.Int32
}

func (f *fakeSupplier) Name() string { return f.name }

func (f *fakeSupplier) Info() domain.SupplierInfo {
	return domain.SupplierInfo{
		Name:    f.name,
		Label:   f.name,
		BaseURL: "https://" + f.name + ".test",
		Enabled: true,
	}
}

func (f *fakeSupplier) Search(ctx context.Context, query string, limit int) ([]*product.Builder, error) {
	f.hits.Add(1)
	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if f.searchErr != nil {
		return nil, f.searchErr
	}
	out := make([]*product.Builder, 0, len(f.items))
	for _, item := range f.items {
		builder := product.NewBuilder(f.name, "https://"+f.name+".test", nil).
			SetBasicInfo(item.title, item.url)
		if item.price > 0 {
			builder.SetPricing(item.price, "USD", "$")
		}
		if item.qty > 0 {
			builder.SetQuantity(item.qty, item.uom)
		}
		out = append(out, builder)
	}
	return out, nil
}

func (f *fakeSupplier) Enrich(ctx context.Context, b *product.Builder) error {
	f.enrichHits.Add(1)
	if f.useBudget && f.cfg.Budget != nil {
		if err := f.cfg.Budget.Use(); err != nil {
			return err
		}
	}
	if f.enrichErr != nil {
		return f.enrichErr(b)
	}
	return nil
}

// testEntry wires a fake into the registry shape the service consumes.
// The factory hands the per-search config back to the fake so tests can
// inspect the budget, endpoint and API key it received.
func testEntry(f *fakeSupplier) suppliers.Entry {
	return suppliers.Entry{
		Name: f.name,
		Info: f.Info(),
		New: func(cfg suppliers.Config) (suppliers.Supplier, error) {
			f.cfg = cfg
			return f, nil
		},
	}
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// ---------------------------------------------------------------------------
// Search — request validation
// ---------------------------------------------------------------------------

func TestSearchEmptyQuery(t *testing.T) {
	service := NewService([]suppliers.Entry{testEntry(&fakeSupplier{name: "test"})}, quietLogger())

	_, err := service.Search(context.Background(), domain.SearchRequest{Query: ""})
	if !errors.Is(err, ErrInvalidQuery) {
		t.Fatalf("expected ErrInvalidQuery, got %v", err)
	}
}

func TestSearchWhitespaceOnlyQuery(t *testing.T) {
	service := NewService([]suppliers.Entry{testEntry(&fakeSupplier{name: "test"})}, quietLogger())

	_, err := service.Search(context.Background(), domain.SearchRequest{Query: "   "})
	if !errors.Is(err, ErrInvalidQuery) {
		t.Fatalf("expected ErrInvalidQuery, got %v", err)
	}
}

func TestSearchNoSuppliers(t *testing.T) {
	service := NewService(nil, quietLogger())

	_, err := service.Search(context.Background(), domain.SearchRequest{Query: "acetone"})
	if !errors.Is(err, ErrNoSuppliers) {
		t.Fatalf("expected ErrNoSuppliers, got %v", err)
	}
}

func TestSearchUnknownSupplier(t *testing.T) {
	service := NewService([]suppliers.Entry{testEntry(&fakeSupplier{name: "known"})}, quietLogger())

	_, err := service.Search(context.Background(), domain.SearchRequest{
		Query:     "acetone",
		Suppliers: []string{"nonexistent"},
	})
	if !errors.Is(err, ErrUnknownSupplier) {
		t.Fatalf("expected ErrUnknownSupplier, got %v", err)
	}
}

// ---------------------------------------------------------------------------
// Search — fan-out and partial failure
// ---------------------------------------------------------------------------

func TestSearchCollectsAllSuppliers(t *testing.T) {
	alpha := &fakeSupplier{name: "alpha", items: []fakeItem{saltItem("/p/1")}}
	beta := &fakeSupplier{name: "beta", items: []fakeItem{saltItem("/p/2")}}
	service := NewService([]suppliers.Entry{testEntry(alpha), testEntry(beta)}, quietLogger())

	response, err := service.Search(context.Background(), domain.SearchRequest{
		Query: "sodium chloride",
		Limit: 10,
	})
	if err != nil {
		t.Fatalf("search error: %v", err)
	}
	if response.TotalItems != 2 || len(response.Items) != 2 {
		t.Fatalf("expected 2 items, got total=%d len=%d", response.TotalItems, len(response.Items))
	}
	if len(response.Suppliers) != 2 {
		t.Fatalf("expected 2 supplier statuses, got %d", len(response.Suppliers))
	}
	for _, status := range response.Suppliers {
		if !status.OK {
			t.Fatalf("supplier %s not OK: %s", status.Name, status.Error)
		}
	}
	if !response.Final {
		t.Fatal("expected final response")
	}
	if response.SearchID == "" {
		t.Fatal("expected a search id")
	}
	if response.Query != "sodium chloride" || response.Limit != 10 {
		t.Fatalf("request echo wrong: %q / %d", response.Query, response.Limit)
	}
}

func TestSearchSupplierFailureDoesNotBlockOthers(t *testing.T) {
	good := &fakeSupplier{name: "good", items: []fakeItem{saltItem("/p/1")}}
	bad := &fakeSupplier{name: "bad", searchErr: errors.New("bad payload")}
	service := NewService([]suppliers.Entry{testEntry(good), testEntry(bad)}, quietLogger())

	response, err := service.Search(context.Background(), domain.SearchRequest{
		Query: "sodium chloride",
		Limit: 10,
	})
	if err != nil {
		t.Fatalf("search error: %v", err)
	}
	if len(response.Items) != 1 {
		t.Fatalf("expected 1 item from good supplier, got %d", len(response.Items))
	}

	badFound := false
	for _, status := range response.Suppliers {
		if status.Name == "bad" {
			badFound = true
			if status.OK {
				t.Fatal("expected bad supplier to have OK=false")
			}
			if status.Error == "" {
				t.Fatal("expected bad supplier to carry an error message")
			}
		}
	}
	if !badFound {
		t.Fatal("expected bad supplier in statuses")
	}
}

func TestSearchSelectSpecificSupplier(t *testing.T) {
	alpha := &fakeSupplier{name: "alpha", items: []fakeItem{saltItem("/p/1")}}
	beta := &fakeSupplier{name: "beta", items: []fakeItem{saltItem("/p/2")}}
	service := NewService([]suppliers.Entry{testEntry(alpha), testEntry(beta)}, quietLogger())

	response, err := service.Search(context.Background(), domain.SearchRequest{
		Query:     "sodium chloride",
		Limit:     10,
		Suppliers: []string{"ALPHA"},
	})
	if err != nil {
		t.Fatalf("search error: %v", err)
	}
	if len(response.Items) != 1 || response.Items[0].Supplier != "alpha" {
		t.Fatalf("expected only alpha results, got %+v", response.Items)
	}
	if alpha.hits.Load() != 1 {
		t.Fatalf("expected alpha to be searched once, got %d", alpha.hits.Load())
	}
	if beta.hits.Load() != 0 {
		t.Fatalf("expected beta to NOT be searched, got %d", beta.hits.Load())
	}
}

func TestSearchSlowSupplierTimesOutAlone(t *testing.T) {
	slow := &fakeSupplier{name: "slow", items: []fakeItem{saltItem("/p/1")}, delay: 500 * time.Millisecond}
	fast := &fakeSupplier{name: "fast", items: []fakeItem{saltItem("/p/2")}}
	service := NewService(
		[]suppliers.Entry{testEntry(slow), testEntry(fast)},
		quietLogger(),
		WithTimeout(50*time.Millisecond),
	)

	response, err := service.Search(context.Background(), domain.SearchRequest{
		Query: "sodium chloride",
		Limit: 10,
	})
	if err != nil {
		t.Fatalf("search error: %v", err)
	}
	if len(response.Items) != 1 || response.Items[0].Supplier != "fast" {
		t.Fatalf("expected only the fast supplier's item, got %+v", response.Items)
	}
	for _, status := range response.Suppliers {
		switch status.Name {
		case "slow":
			if status.OK || status.Error == "" {
				t.Fatalf("expected slow supplier to fail with an error, got %+v", status)
			}
		case "fast":
			if !status.OK {
				t.Fatalf("fast supplier should be unaffected: %+v", status)
			}
		}
	}
}

// ---------------------------------------------------------------------------
// Search — relevance, enrichment, validation
// ---------------------------------------------------------------------------

func TestSearchFuzzyFilterDropsIrrelevant(t *testing.T) {
	supplier := &fakeSupplier{name: "shop", items: []fakeItem{
		saltItem("/p/salt"),
		{title: "zzzz qqqq vvvv", url: "/p/noise", price: 5, qty: 1, uom: "kg"},
	}}
	service := NewService([]suppliers.Entry{testEntry(supplier)}, quietLogger())

	response, err := service.Search(context.Background(), domain.SearchRequest{
		Query: "sodium chloride",
		Limit: 10,
	})
	if err != nil {
		t.Fatalf("search error: %v", err)
	}
	if len(response.Items) != 1 {
		t.Fatalf("expected the noise candidate to be filtered out, got %+v", response.Items)
	}
	if response.Items[0].MatchPercent <= 0 {
		t.Fatalf("expected a match score on the survivor, got %d", response.Items[0].MatchPercent)
	}
}

func TestSearchLimitTruncatesCandidates(t *testing.T) {
	supplier := &fakeSupplier{name: "shop", items: []fakeItem{
		saltItem("/p/1"), saltItem("/p/2"), saltItem("/p/3"), saltItem("/p/4"), saltItem("/p/5"),
	}}
	service := NewService([]suppliers.Entry{testEntry(supplier)}, quietLogger())

	response, err := service.Search(context.Background(), domain.SearchRequest{
		Query: "sodium chloride",
		Limit: 2,
	})
	if err != nil {
		t.Fatalf("search error: %v", err)
	}
	if len(response.Items) != 2 {
		t.Fatalf("expected 2 items after truncation, got %d", len(response.Items))
	}
	if got := supplier.enrichHits.Load(); got != 2 {
		t.Fatalf("expected only the kept candidates to be enriched, got %d calls", got)
	}
}

func TestSearchEnrichFailureDropsCandidateOnly(t *testing.T) {
	supplier := &fakeSupplier{name: "shop", items: []fakeItem{
		{title: "Sodium Chloride 500g", url: "/p/1", price: 9.99, qty: 500, uom: "g"},
		{title: "Sodium Chloride 1kg", url: "/p/2", price: 17.50, qty: 1, uom: "kg"},
	}}
	supplier.enrichErr = func(b *product.Builder) error {
		if strings.Contains(b.Title(), "1kg") {
			return errors.New("detail page mangled")
		}
		return nil
	}
	service := NewService([]suppliers.Entry{testEntry(supplier)}, quietLogger())

	response, err := service.Search(context.Background(), domain.SearchRequest{
		Query: "sodium chloride",
		Limit: 10,
	})
	if err != nil {
		t.Fatalf("search error: %v", err)
	}
	if len(response.Items) != 1 || !strings.Contains(response.Items[0].Title, "500g") {
		t.Fatalf("expected only the healthy candidate, got %+v", response.Items)
	}
	for _, status := range response.Suppliers {
		if !status.OK || status.Error != "" {
			t.Fatalf("a single dropped candidate must not fail the supplier: %+v", status)
		}
		if status.Count != 1 {
			t.Fatalf("expected count 1, got %d", status.Count)
		}
	}
}

func TestSearchValidationFailureDropsProduct(t *testing.T) {
	// No price and no quantity: Build must reject it.
	supplier := &fakeSupplier{name: "shop", items: []fakeItem{
		{title: "Sodium Chloride 500g", url: "/p/1"},
	}}
	service := NewService([]suppliers.Entry{testEntry(supplier)}, quietLogger())

	response, err := service.Search(context.Background(), domain.SearchRequest{
		Query: "sodium chloride",
		Limit: 10,
	})
	if err != nil {
		t.Fatalf("search error: %v", err)
	}
	if len(response.Items) != 0 {
		t.Fatalf("expected no items, got %+v", response.Items)
	}
	if len(response.Suppliers) != 1 || !response.Suppliers[0].OK {
		t.Fatalf("invalid products must not fail the supplier: %+v", response.Suppliers)
	}
}

// ---------------------------------------------------------------------------
// Search — request budget
// ---------------------------------------------------------------------------

func TestSearchBudgetExhaustionIsolatedToSupplier(t *testing.T) {
	greedy := &fakeSupplier{
		name:      "greedy",
		items:     []fakeItem{saltItem("/p/1"), saltItem("/p/2"), saltItem("/p/3")},
		useBudget: true,
	}
	frugal := &fakeSupplier{name: "frugal", items: []fakeItem{saltItem("/p/9")}}
	service := NewService(
		[]suppliers.Entry{testEntry(greedy), testEntry(frugal)},
		quietLogger(),
		WithRequestBudget(1),
	)

	response, err := service.Search(context.Background(), domain.SearchRequest{
		Query: "sodium chloride",
		Limit: 10,
	})
	if err != nil {
		t.Fatalf("search error: %v", err)
	}

	var greedyStatus, frugalStatus *domain.SupplierStatus
	for i := range response.Suppliers {
		switch response.Suppliers[i].Name {
		case "greedy":
			greedyStatus = &response.Suppliers[i]
		case "frugal":
			frugalStatus = &response.Suppliers[i]
		}
	}
	if greedyStatus == nil || frugalStatus == nil {
		t.Fatalf("missing supplier statuses: %+v", response.Suppliers)
	}
	if greedyStatus.Count != 1 {
		t.Fatalf("expected exactly the one within-budget product from greedy, got %d", greedyStatus.Count)
	}
	if !strings.Contains(greedyStatus.Error, "budget") {
		t.Fatalf("expected budget exhaustion noted on greedy, got %+v", greedyStatus)
	}
	if !frugalStatus.OK || frugalStatus.Count != 1 || frugalStatus.Error != "" {
		t.Fatalf("budget exhaustion must not leak to siblings: %+v", frugalStatus)
	}
}

// ---------------------------------------------------------------------------
// Search — query cache
// ---------------------------------------------------------------------------

func TestSearchSecondRoundServedFromQueryCache(t *testing.T) {
	supplier := &fakeSupplier{name: "shop", items: []fakeItem{saltItem("/p/1")}}
	service := NewService(
		[]suppliers.Entry{testEntry(supplier)},
		quietLogger(),
		WithQueryCache(cache.NewQueryCache(cache.QueryCacheConfig{Store: cache.NewMemoryStore()})),
	)

	request := domain.SearchRequest{Query: "sodium chloride", Limit: 5}
	first, err := service.Search(context.Background(), request)
	if err != nil {
		t.Fatalf("first search: %v", err)
	}
	if len(first.Items) != 1 || first.Suppliers[0].Cached {
		t.Fatalf("first round must be live: %+v", first.Suppliers)
	}

	second, err := service.Search(context.Background(), request)
	if err != nil {
		t.Fatalf("second search: %v", err)
	}
	if supplier.hits.Load() != 1 {
		t.Fatalf("second round must not hit the supplier, got %d searches", supplier.hits.Load())
	}
	if supplier.enrichHits.Load() != 1 {
		t.Fatalf("second round must not re-enrich, got %d calls", supplier.enrichHits.Load())
	}
	if len(second.Items) != 1 {
		t.Fatalf("expected cached item, got %+v", second.Items)
	}
	if !second.Suppliers[0].Cached {
		t.Fatalf("expected cached status, got %+v", second.Suppliers[0])
	}
	if second.Items[0].URL != first.Items[0].URL || second.Items[0].Price != first.Items[0].Price {
		t.Fatalf("cached product differs: %+v vs %+v", second.Items[0], first.Items[0])
	}
}

func TestSearchNoCacheBypassesQueryCache(t *testing.T) {
	supplier := &fakeSupplier{name: "shop", items: []fakeItem{saltItem("/p/1")}}
	service := NewService(
		[]suppliers.Entry{testEntry(supplier)},
		quietLogger(),
		WithQueryCache(cache.NewQueryCache(cache.QueryCacheConfig{Store: cache.NewMemoryStore()})),
	)

	request := domain.SearchRequest{Query: "sodium chloride", Limit: 5}
	if _, err := service.Search(context.Background(), request); err != nil {
		t.Fatalf("first search: %v", err)
	}
	request.NoCache = true
	if _, err := service.Search(context.Background(), request); err != nil {
		t.Fatalf("second search: %v", err)
	}
	if supplier.hits.Load() != 2 {
		t.Fatalf("noCache must force a live round, got %d searches", supplier.hits.Load())
	}
}

// ---------------------------------------------------------------------------
// SearchStream — ordering and cancellation
// ---------------------------------------------------------------------------

func TestSearchStreamSequentialBySupplier(t *testing.T) {
	alpha := &fakeSupplier{name: "alpha", items: []fakeItem{
		{title: "Sodium Chloride 500g", url: "/p/1", price: 9.99, qty: 500, uom: "g"},
		{title: "Sodium Chloride 1kg", url: "/p/2", price: 17.50, qty: 1, uom: "kg"},
	}}
	beta := &fakeSupplier{name: "beta", items: []fakeItem{
		{title: "Sodium Chloride 500g", url: "/p/3", price: 8.99, qty: 500, uom: "g"},
		{title: "Sodium Chloride 1kg", url: "/p/4", price: 15.00, qty: 1, uom: "kg"},
	}}
	service := NewService([]suppliers.Entry{testEntry(beta), testEntry(alpha)}, quietLogger())

	events, err := service.SearchStream(context.Background(), domain.SearchRequest{
		Query: "sodium chloride",
		Limit: 10,
	})
	if err != nil {
		t.Fatalf("stream error: %v", err)
	}

	var sequence []string
	for event := range events {
		switch {
		case event.Product != nil:
			sequence = append(sequence, "product:"+event.Product.Supplier)
		case event.Supplier != nil:
			sequence = append(sequence, "status:"+event.Supplier.Name)
		case event.Final != nil:
			sequence = append(sequence, "final")
		}
	}

	want := []string{
		"product:alpha", "product:alpha", "status:alpha",
		"product:beta", "product:beta", "status:beta",
		"final",
	}
	if len(sequence) != len(want) {
		t.Fatalf("event sequence = %v, want %v", sequence, want)
	}
	for i := range want {
		if sequence[i] != want[i] {
			t.Fatalf("event[%d] = %s, want %s (full: %v)", i, sequence[i], want[i], sequence)
		}
	}
}

func TestSearchStreamCancellationStopsPipeline(t *testing.T) {
	alpha := &fakeSupplier{name: "alpha", items: []fakeItem{saltItem("/p/1")}}
	beta := &fakeSupplier{name: "beta", items: []fakeItem{saltItem("/p/2")}}
	service := NewService([]suppliers.Entry{testEntry(alpha), testEntry(beta)}, quietLogger())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	events, err := service.SearchStream(ctx, domain.SearchRequest{
		Query: "sodium chloride",
		Limit: 10,
	})
	if err != nil {
		t.Fatalf("stream error: %v", err)
	}

	event, ok := <-events
	if !ok || event.Product == nil {
		t.Fatalf("expected a product event first, got %+v (open=%v)", event, ok)
	}
	cancel()

	deadline := time.After(2 * time.Second)
	for {
		select {
		case event, ok := <-events:
			if !ok {
				if beta.hits.Load() != 0 {
					t.Fatalf("beta searched after cancellation: %d", beta.hits.Load())
				}
				return
			}
			if event.Final != nil {
				t.Fatal("final event after cancellation")
			}
			if event.Product != nil && event.Product.Supplier == "beta" {
				t.Fatal("product from beta after cancellation")
			}
		case <-deadline:
			t.Fatal("stream did not close after cancellation")
		}
	}
}

// ---------------------------------------------------------------------------
// Circuit breaker
// ---------------------------------------------------------------------------

func TestSearchSkipsBlockedSupplier(t *testing.T) {
	flaky := &fakeSupplier{name: "flaky", searchErr: errors.New("bad payload")}
	service := NewService([]suppliers.Entry{testEntry(flaky)}, quietLogger())

	for i := 0; i < supplierFailureThreshold; i++ {
		if _, err := service.Search(context.Background(), domain.SearchRequest{Query: "acetone"}); err != nil {
			t.Fatalf("search %d: %v", i, err)
		}
	}
	if got := flaky.hits.Load(); got != int32(supplierFailureThreshold) {
		t.Fatalf("expected %d live attempts, got %d", supplierFailureThreshold, got)
	}

	response, err := service.Search(context.Background(), domain.SearchRequest{Query: "acetone"})
	if err != nil {
		t.Fatalf("search while blocked: %v", err)
	}
	if got := flaky.hits.Load(); got != int32(supplierFailureThreshold) {
		t.Fatalf("blocked supplier was still searched: %d", got)
	}
	if len(response.Suppliers) != 1 || response.Suppliers[0].OK {
		t.Fatalf("expected a failed status for the blocked supplier: %+v", response.Suppliers)
	}
	if !strings.Contains(response.Suppliers[0].Error, "blocked") {
		t.Fatalf("expected blocked error, got %q", response.Suppliers[0].Error)
	}

	diags := service.SupplierDiagnostics()
	if len(diags) != 1 {
		t.Fatalf("expected 1 diagnostic, got %d", len(diags))
	}
	if diags[0].ConsecutiveFailures != supplierFailureThreshold {
		t.Fatalf("expected %d consecutive failures, got %d", supplierFailureThreshold, diags[0].ConsecutiveFailures)
	}
	if diags[0].BlockedUntil == nil {
		t.Fatal("expected blockedUntil to be set")
	}
}
