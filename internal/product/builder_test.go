package product

import (
	"context"
	"errors"
	"math"
	"reflect"
	"testing"

	"chemsource/searchservice/internal/domain"
)

type fixedRates struct {
	rate float64
	err  error
}

func (f *fixedRates) ToUSD(_ context.Context, amount float64, _ string) (float64, error) {
	if f.err != nil {
		return 0, f.err
	}
	return math.Round(amount*f.rate*100) / 100, nil
}

func completeBuilder(rates RateSource) *Builder {
	return NewBuilder("testlab", "https://shop.example.com", rates).
		SetBasicInfo("Sodium Chloride 500 g", "/products/nacl-500").
		SetPricing(12.5, "USD", "$").
		SetQuantity(500, "g").
		SetCAS("7647-14-5").
		SetSKU("NACL-500")
}

// ---------------------------------------------------------------------------
// Build
// ---------------------------------------------------------------------------

func TestBuildComplete(t *testing.T) {
	p, err := completeBuilder(nil).Build(context.Background())
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if p.Title != "Sodium Chloride 500 g" || p.Supplier != "testlab" {
		t.Fatalf("unexpected identity fields: %+v", p)
	}
	if p.URL != "https://shop.example.com/products/nacl-500" {
		t.Fatalf("url not resolved: %q", p.URL)
	}
	if p.USDPrice != 12.5 {
		t.Fatalf("usdPrice = %v, want identity 12.5", p.USDPrice)
	}
	if p.BaseQuantity != 500 {
		t.Fatalf("baseQuantity = %v, want 500", p.BaseQuantity)
	}
	if p.CAS != "7647-14-5" {
		t.Fatalf("cas = %q", p.CAS)
	}
}

func TestBuildMissingFields(t *testing.T) {
	b := NewBuilder("testlab", "https://shop.example.com", nil).
		SetBasicInfo("Something", "/p/1")
	_, err := b.Build(context.Background())
	if err == nil {
		t.Fatal("Build accepted an incomplete product")
	}
	var verr *ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("error type %T, want *ValidationError", err)
	}
	want := map[string]bool{"price": true, "quantity": true, "uom": true, "currencyCode": true, "currencySymbol": true}
	if len(verr.Missing) != len(want) {
		t.Fatalf("missing = %v", verr.Missing)
	}
	for _, field := range verr.Missing {
		if !want[field] {
			t.Fatalf("unexpected missing field %q in %v", field, verr.Missing)
		}
	}
}

func TestBuildConvertsCurrency(t *testing.T) {
	b := NewBuilder("eulab", "https://eu.example.com", &fixedRates{rate: 1.08}).
		SetBasicInfo("Acetone 1 L", "/acetone").
		SetPricing(10, "EUR", "€").
		SetQuantity(1, "L")
	p, err := b.Build(context.Background())
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if p.USDPrice != 10.8 {
		t.Fatalf("usdPrice = %v, want 10.8", p.USDPrice)
	}
	if p.BaseQuantity != 1000 {
		t.Fatalf("baseQuantity = %v, want 1000 mL", p.BaseQuantity)
	}
}

func TestBuildRateFailureDegrades(t *testing.T) {
	b := NewBuilder("eulab", "https://eu.example.com", &fixedRates{err: errors.New("rate service down")}).
		SetBasicInfo("Acetone 1 L", "/acetone").
		SetPricing(10, "EUR", "€").
		SetQuantity(1, "L")
	p, err := b.Build(context.Background())
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if p.USDPrice != 0 {
		t.Fatalf("usdPrice = %v, want 0 on rate failure", p.USDPrice)
	}
	if p.Price != 10 {
		t.Fatalf("native price lost: %v", p.Price)
	}
}

func TestBuildIdempotent(t *testing.T) {
	b := completeBuilder(&fixedRates{rate: 1})
	first, err := b.Build(context.Background())
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	second, err := b.Build(context.Background())
	if err != nil {
		t.Fatalf("second Build: %v", err)
	}
	if !reflect.DeepEqual(first, second) {
		t.Fatalf("Build not idempotent:\nfirst  %+v\nsecond %+v", first, second)
	}
}

func TestBuildVariants(t *testing.T) {
	b := completeBuilder(nil).AddVariants([]domain.Variant{
		{Title: "1 kg", URL: "/products/nacl-1000", Price: 20, Quantity: 1, UOM: "kg"},
		{Title: "empty variant"}, // structurally invalid, dropped
	})
	p, err := b.Build(context.Background())
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if len(p.Variants) != 1 {
		t.Fatalf("variants = %+v, want 1 surviving", p.Variants)
	}
	v := p.Variants[0]
	if v.URL != "https://shop.example.com/products/nacl-1000" {
		t.Fatalf("variant url not resolved: %q", v.URL)
	}
	if v.CurrencyCode != "USD" || v.USDPrice != 20 {
		t.Fatalf("variant pricing not inherited/derived: %+v", v)
	}
	if v.BaseQuantity != 1000 {
		t.Fatalf("variant baseQuantity = %v, want 1000", v.BaseQuantity)
	}
}

// ---------------------------------------------------------------------------
// Dump / SetData round trip
// ---------------------------------------------------------------------------

func TestDumpRehydrateRoundTrip(t *testing.T) {
	original := completeBuilder(nil).AddVariant(domain.Variant{
		Title: "1 kg", URL: "/products/nacl-1000", Price: 20, Quantity: 1, UOM: "kg",
	})
	direct, err := original.Build(context.Background())
	if err != nil {
		t.Fatalf("Build: %v", err)
	}

	rehydrated := NewBuilder("testlab", "https://shop.example.com", nil).SetData(original.Dump())
	fromDump, err := rehydrated.Build(context.Background())
	if err != nil {
		t.Fatalf("Build after rehydrate: %v", err)
	}
	if !reflect.DeepEqual(direct, fromDump) {
		t.Fatalf("round trip lossy:\ndirect   %+v\nrehydrated %+v", direct, fromDump)
	}
}

func TestDumpIsDetached(t *testing.T) {
	b := completeBuilder(nil).AddVariant(domain.Variant{Title: "1 kg", Price: 20, Quantity: 1, UOM: "kg"})
	snap := b.Dump()
	snap.Variants[0].Price = 999
	if got := b.Dump().Variants[0].Price; got != 20 {
		t.Fatalf("dump aliases builder state: %v", got)
	}
}

// ---------------------------------------------------------------------------
// Setters
// ---------------------------------------------------------------------------

func TestSetCASRejectsInvalid(t *testing.T) {
	b := NewBuilder("testlab", "", nil).SetCAS("1232-56-6")
	if b.CAS() != "" {
		t.Fatalf("invalid CAS accepted: %q", b.CAS())
	}
	b.SetCAS("50-00-0")
	if b.CAS() != "50-00-0" {
		t.Fatalf("valid CAS rejected")
	}
}

func TestSetPriceTextUnparseableIsNoop(t *testing.T) {
	b := NewBuilder("testlab", "", nil).
		SetPricing(5, "USD", "$").
		SetPriceText("call for pricing")
	snap := b.Dump()
	if snap.Price != 5 || snap.CurrencyCode != "USD" {
		t.Fatalf("unparseable price text clobbered state: %+v", snap)
	}
}

func TestSetQuantityCanonicalizesUnit(t *testing.T) {
	snap := NewBuilder("testlab", "", nil).SetQuantity(2, "liters").Dump()
	if snap.UOM != "L" {
		t.Fatalf("uom = %q, want L", snap.UOM)
	}
}

func TestBuildAbsoluteURLUntouched(t *testing.T) {
	b := NewBuilder("testlab", "https://shop.example.com", nil).
		SetBasicInfo("Thing 1 g", "https://cdn.example.org/thing").
		SetPricing(1, "USD", "$").
		SetQuantity(1, "g")
	p, err := b.Build(context.Background())
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if p.URL != "https://cdn.example.org/thing" {
		t.Fatalf("absolute url rewritten: %q", p.URL)
	}
}
