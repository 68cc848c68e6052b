package cache

import (
	"bytes"
	"context"
	"testing"
	"time"
)

func TestDetailCacheRoundTrip(t *testing.T) {
	ctx := context.Background()
	dc := NewDetailCache(DetailCacheConfig{Store: NewMemoryStore()})

	payload := []byte(`<html><body>Sodium chloride, 99.5%</body></html>`)
	dc.Put(ctx, "https://shop.example.com/nacl", "", "onyxmet", payload)

	got, ok := dc.Get(ctx, "https://shop.example.com/nacl", "", "onyxmet")
	if !ok {
		t.Fatal("fresh detail missed")
	}
	if !bytes.Equal(got, payload) {
		t.Fatalf("payload = %q", got)
	}
}

func TestDetailCacheKeyIncludesParamsAndSupplier(t *testing.T) {
	ctx := context.Background()
	dc := NewDetailCache(DetailCacheConfig{Store: NewMemoryStore()})

	dc.Put(ctx, "https://shop.example.com/item", "page=1", "onyxmet", []byte("one"))

	if _, ok := dc.Get(ctx, "https://shop.example.com/item", "page=2", "onyxmet"); ok {
		t.Fatal("different params shared a line")
	}
	if _, ok := dc.Get(ctx, "https://shop.example.com/item", "page=1", "warchem"); ok {
		t.Fatal("different supplier shared a line")
	}
	if _, ok := dc.Get(ctx, "https://shop.example.com/item", "page=1", "onyxmet"); !ok {
		t.Fatal("original line lost")
	}
}

func TestDetailCacheHasNoTTL(t *testing.T) {
	ctx := context.Background()
	dc := NewDetailCache(DetailCacheConfig{Store: NewMemoryStore()})

	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	dc.now = func() time.Time { return base }
	dc.Put(ctx, "https://shop.example.com/old", "", "onyxmet", []byte("still here"))

	dc.now = func() time.Time { return base.AddDate(1, 0, 0) }
	if _, ok := dc.Get(ctx, "https://shop.example.com/old", "", "onyxmet"); !ok {
		t.Fatal("detail entry aged out, but only capacity may evict")
	}
}

func TestDetailCacheEvictsOldest(t *testing.T) {
	ctx := context.Background()
	dc := NewDetailCache(DetailCacheConfig{Store: NewMemoryStore(), Capacity: 2})

	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	step := 0
	dc.now = func() time.Time {
		step++
		return base.Add(time.Duration(step) * time.Minute)
	}

	dc.Put(ctx, "https://shop.example.com/a", "", "onyxmet", []byte("a"))
	dc.Put(ctx, "https://shop.example.com/b", "", "onyxmet", []byte("b"))
	dc.Put(ctx, "https://shop.example.com/c", "", "onyxmet", []byte("c"))

	if _, ok := dc.Get(ctx, "https://shop.example.com/a", "", "onyxmet"); ok {
		t.Fatal("oldest detail survived past capacity")
	}
	if _, ok := dc.Get(ctx, "https://shop.example.com/c", "", "onyxmet"); !ok {
		t.Fatal("newest detail evicted")
	}
}
