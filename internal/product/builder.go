// Package product assembles partial supplier data into canonical
// domain.Product values. A Builder accumulates whatever fields the
// search and detail phases manage to extract; Build validates the
// result and derives the cross-supplier comparison fields.
package product

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"chemsource/searchservice/internal/domain"
	"chemsource/searchservice/internal/parse"
)

// RateSource converts native-currency amounts to USD. Lookups may hit
// the network, so Build takes a context.
type RateSource interface {
	ToUSD(ctx context.Context, amount float64, from string) (float64, error)
}

// Snapshot is the serializable partial state of a builder. The query
// cache persists snapshots, never live builders.
type Snapshot struct {
	Title          string           `json:"title,omitempty"`
	URL            string           `json:"url,omitempty"`
	Supplier       string           `json:"supplier,omitempty"`
	Price          float64          `json:"price,omitempty"`
	CurrencyCode   string           `json:"currencyCode,omitempty"`
	CurrencySymbol string           `json:"currencySymbol,omitempty"`
	Quantity       float64          `json:"quantity,omitempty"`
	UOM            string           `json:"uom,omitempty"`
	CAS            string           `json:"cas,omitempty"`
	Description    string           `json:"description,omitempty"`
	ID             string           `json:"id,omitempty"`
	SKU            string           `json:"sku,omitempty"`
	UUID           string           `json:"uuid,omitempty"`
	Match          int              `json:"matchPercentage,omitempty"`
	Variants       []domain.Variant `json:"variants,omitempty"`
}

// ValidationError reports a builder that lacks the minimum field set at
// Build time. Callers treat it as "drop this candidate", not a failure
// of the search.
type ValidationError struct {
	Supplier string
	Title    string
	Missing  []string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("incomplete product from %s (%q): missing %s",
		e.Supplier, e.Title, strings.Join(e.Missing, ", "))
}

// Builder stages one candidate product. It belongs to a single adapter
// invocation and is never shared across concurrent candidates.
type Builder struct {
	supplier string
	base     *url.URL
	rates    RateSource
	data     Snapshot
}

func NewBuilder(supplier, baseURL string, rates RateSource) *Builder {
	b := &Builder{supplier: supplier, rates: rates}
	b.data.Supplier = supplier
	if parsed, err := url.Parse(strings.TrimSpace(baseURL)); err == nil && parsed.Host != "" {
		b.base = parsed
	}
	return b
}

func (b *Builder) Supplier() string { return b.supplier }
func (b *Builder) Title() string    { return b.data.Title }
func (b *Builder) URL() string      { return b.data.URL }
func (b *Builder) CAS() string      { return b.data.CAS }

func (b *Builder) Quantity() (float64, string) { return b.data.Quantity, b.data.UOM }

func (b *Builder) SetBasicInfo(title, pageURL string) *Builder {
	b.data.Title = strings.TrimSpace(title)
	b.data.URL = strings.TrimSpace(pageURL)
	return b
}

func (b *Builder) SetPricing(price float64, code, symbol string) *Builder {
	b.data.Price = price
	b.data.CurrencyCode = strings.ToUpper(strings.TrimSpace(code))
	b.data.CurrencySymbol = strings.TrimSpace(symbol)
	return b
}

// SetPriceText parses a formatted price ("€ 10,95", "1 234,56 zł") and
// applies it. Unparseable input leaves the builder untouched.
func (b *Builder) SetPriceText(raw string) *Builder {
	if price, ok := parse.ParsePrice(raw); ok {
		return b.SetPricing(price.Price, price.CurrencyCode, price.CurrencySymbol)
	}
	return b
}

func (b *Builder) SetQuantity(quantity float64, uom string) *Builder {
	b.data.Quantity = quantity
	if canonical, ok := parse.StandardizeUOM(uom); ok {
		b.data.UOM = canonical
	} else {
		b.data.UOM = strings.TrimSpace(uom)
	}
	return b
}

// SetQuantityText extracts the first quantity from free text (usually
// the listing title). No-op when nothing parses.
func (b *Builder) SetQuantityText(raw string) *Builder {
	if q, ok := parse.ParseQuantity(raw); ok {
		return b.SetQuantity(q.Quantity, q.UOM)
	}
	return b
}

// SetCAS silently ignores values that fail CAS validation; validity is
// enforced here at the edge, not deferred to Build.
func (b *Builder) SetCAS(cas string) *Builder {
	cas = strings.TrimSpace(cas)
	if parse.IsCAS(cas) {
		b.data.CAS = cas
	}
	return b
}

func (b *Builder) SetDescription(description string) *Builder {
	b.data.Description = strings.TrimSpace(description)
	return b
}

func (b *Builder) SetID(id string) *Builder {
	b.data.ID = strings.TrimSpace(id)
	return b
}

func (b *Builder) SetSKU(sku string) *Builder {
	b.data.SKU = strings.TrimSpace(sku)
	return b
}

func (b *Builder) SetUUID(uuid string) *Builder {
	b.data.UUID = strings.TrimSpace(uuid)
	return b
}

func (b *Builder) SetMatch(percent int) *Builder {
	if percent < 0 {
		percent = 0
	}
	if percent > 100 {
		percent = 100
	}
	b.data.Match = percent
	return b
}

func (b *Builder) AddVariant(v domain.Variant) *Builder {
	b.data.Variants = append(b.data.Variants, v)
	return b
}

func (b *Builder) AddVariants(vs []domain.Variant) *Builder {
	b.data.Variants = append(b.data.Variants, vs...)
	return b
}

// SetData bulk-merges a snapshot into the builder: set fields win over
// unset ones. This is the cache rehydration path.
func (b *Builder) SetData(snap Snapshot) *Builder {
	if snap.Title != "" {
		b.data.Title = snap.Title
	}
	if snap.URL != "" {
		b.data.URL = snap.URL
	}
	if snap.Price > 0 {
		b.data.Price = snap.Price
	}
	if snap.CurrencyCode != "" {
		b.data.CurrencyCode = snap.CurrencyCode
	}
	if snap.CurrencySymbol != "" {
		b.data.CurrencySymbol = snap.CurrencySymbol
	}
	if snap.Quantity > 0 {
		b.data.Quantity = snap.Quantity
	}
	if snap.UOM != "" {
		b.data.UOM = snap.UOM
	}
	if snap.CAS != "" && parse.IsCAS(snap.CAS) {
		b.data.CAS = snap.CAS
	}
	if snap.Description != "" {
		b.data.Description = snap.Description
	}
	if snap.ID != "" {
		b.data.ID = snap.ID
	}
	if snap.SKU != "" {
		b.data.SKU = snap.SKU
	}
	if snap.UUID != "" {
		b.data.UUID = snap.UUID
	}
	if snap.Match > 0 {
		b.data.Match = snap.Match
	}
	if len(snap.Variants) > 0 {
		b.data.Variants = append([]domain.Variant(nil), snap.Variants...)
	}
	return b
}

// Dump exposes the current partial state for cache serialization. No
// validation happens here.
func (b *Builder) Dump() Snapshot {
	snap := b.data
	snap.Variants = append([]domain.Variant(nil), b.data.Variants...)
	return snap
}

// Build validates the accumulated state and produces the immutable
// product: usdPrice and baseQuantity are derived, URLs resolved against
// the supplier base, variants processed recursively. Build reads but
// never mutates the builder, so repeated calls yield equal products.
func (b *Builder) Build(ctx context.Context) (domain.Product, error) {
	if missing := b.missingFields(); len(missing) > 0 {
		return domain.Product{}, &ValidationError{
			Supplier: b.supplier,
			Title:    b.data.Title,
			Missing:  missing,
		}
	}

	p := domain.Product{
		Title:          b.data.Title,
		URL:            b.resolveURL(b.data.URL),
		Supplier:       b.data.Supplier,
		Price:          b.data.Price,
		CurrencyCode:   b.data.CurrencyCode,
		CurrencySymbol: b.data.CurrencySymbol,
		Quantity:       b.data.Quantity,
		UOM:            b.data.UOM,
		CAS:            b.data.CAS,
		Description:    b.data.Description,
		ID:             b.data.ID,
		SKU:            b.data.SKU,
		UUID:           b.data.UUID,
		MatchPercent:   b.data.Match,
	}
	p.USDPrice = b.toUSD(ctx, p.Price, p.CurrencyCode)
	p.BaseQuantity = parse.BaseQuantity(p.Quantity, p.UOM)
	p.Variants = b.buildVariants(ctx)
	return p, nil
}

func (b *Builder) missingFields() []string {
	var missing []string
	if strings.TrimSpace(b.data.Title) == "" {
		missing = append(missing, "title")
	}
	if strings.TrimSpace(b.data.URL) == "" {
		missing = append(missing, "url")
	}
	if b.data.Price <= 0 {
		missing = append(missing, "price")
	}
	if b.data.Quantity <= 0 {
		missing = append(missing, "quantity")
	}
	if b.data.UOM == "" {
		missing = append(missing, "uom")
	}
	if b.data.CurrencyCode == "" {
		missing = append(missing, "currencyCode")
	}
	if b.data.CurrencySymbol == "" {
		missing = append(missing, "currencySymbol")
	}
	return missing
}

// toUSD degrades to zero when no rate source is wired or the lookup
// fails; a product with a native price is still worth surfacing.
func (b *Builder) toUSD(ctx context.Context, amount float64, code string) float64 {
	if code == "USD" {
		return amount
	}
	if b.rates == nil {
		return 0
	}
	usd, err := b.rates.ToUSD(ctx, amount, code)
	if err != nil {
		return 0
	}
	return usd
}

func (b *Builder) resolveURL(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" || b.base == nil {
		return raw
	}
	ref, err := url.Parse(raw)
	if err != nil {
		return raw
	}
	return b.base.ResolveReference(ref).String()
}

func (b *Builder) buildVariants(ctx context.Context) []domain.Variant {
	if len(b.data.Variants) == 0 {
		return nil
	}
	out := make([]domain.Variant, 0, len(b.data.Variants))
	for _, v := range b.data.Variants {
		if v.Price <= 0 && v.Quantity <= 0 && strings.TrimSpace(v.URL) == "" {
			continue
		}
		if v.CurrencyCode == "" {
			v.CurrencyCode = b.data.CurrencyCode
			v.CurrencySymbol = b.data.CurrencySymbol
		}
		if v.Price > 0 {
			v.USDPrice = b.toUSD(ctx, v.Price, v.CurrencyCode)
		}
		if v.Quantity > 0 {
			v.BaseQuantity = parse.BaseQuantity(v.Quantity, v.UOM)
		}
		v.URL = b.resolveURL(v.URL)
		out = append(out, v)
	}
	if len(out) == 0 {
		return nil
	}
	return out
}
