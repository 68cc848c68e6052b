// Package chemsavers integrates the Chemsavers shop through its hosted
// Typesense search cluster. Hit documents carry the full product
// record, variants included, so the adapter has no detail phase. The
// cluster lives off the shop's primary domain; product URLs still
// resolve against the shop itself.
package chemsavers

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/tidwall/gjson"

	"chemsource/searchservice/internal/domain"
	"chemsource/searchservice/internal/fetch"
	"chemsource/searchservice/internal/parse"
	"chemsource/searchservice/internal/product"
	"chemsource/searchservice/internal/suppliers"
	"chemsource/searchservice/internal/suppliers/common"
)

const (
	supplierName          = "chemsavers"
	shopURL               = "https://www.chemsavers.com"
	defaultSearchEndpoint = "https://typesense.chemsavers.com/multi_search"
	// Search-only key the storefront ships to every visitor.
	defaultAPIKey = "iPltuzpMbSZEBxmXraSXyZYAkRrGBLHH"
)

func init() {
	suppliers.Register(suppliers.Entry{Name: supplierName, Info: info(), New: New})
}

func info() domain.SupplierInfo {
	return domain.SupplierInfo{
		Name:     supplierName,
		Label:    "Chemsavers",
		BaseURL:  shopURL,
		Shipping: domain.ShippingDomestic,
		Country:  "US",
		Enabled:  true,
	}
}

type searchRequest struct {
	Searches []searchClause `json:"searches"`
}

type searchClause struct {
	Collection string `json:"collection"`
	Q          string `json:"q"`
	QueryBy    string `json:"query_by"`
	PerPage    int    `json:"per_page"`
	Page       int    `json:"page"`
}

type Adapter struct {
	client   *fetch.Client
	endpoint string
	apiKey   string
	rates    product.RateSource
}

// New builds the adapter. cfg.Endpoint overrides the Typesense search
// endpoint, not the shop URL; that is what tests and self-hosted
// mirrors need to replace.
func New(cfg suppliers.Config) (suppliers.Supplier, error) {
	client, err := fetch.NewClient(fetch.Config{
		BaseURL:   shopURL,
		Client:    cfg.Client,
		UserAgent: cfg.UserAgent,
		Budget:    cfg.Budget,
	})
	if err != nil {
		return nil, fmt.Errorf("chemsavers: %w", err)
	}
	endpoint := strings.TrimSpace(cfg.Endpoint)
	if endpoint == "" {
		endpoint = defaultSearchEndpoint
	}
	apiKey := strings.TrimSpace(cfg.APIKey)
	if apiKey == "" {
		apiKey = defaultAPIKey
	}
	return &Adapter{client: client, endpoint: endpoint, apiKey: apiKey, rates: cfg.Rates}, nil
}

func (a *Adapter) Name() string              { return supplierName }
func (a *Adapter) Info() domain.SupplierInfo { return info() }

func (a *Adapter) Search(ctx context.Context, query string, limit int) ([]*product.Builder, error) {
	body := searchRequest{Searches: []searchClause{{
		Collection: "products",
		Q:          query,
		QueryBy:    "name,CAS,sku",
		PerPage:    limit,
		Page:       1,
	}}}
	target := a.endpoint + "?x-typesense-api-key=" + url.QueryEscape(a.apiKey)
	payload, err := a.client.PostJSONBytes(ctx, target, body)
	if err != nil {
		return nil, err
	}
	if !gjson.GetBytes(payload, "results").Exists() {
		return nil, common.Shapef(supplierName, "response has no results array")
	}
	return a.initBuilders(payload, limit), nil
}

func (a *Adapter) initBuilders(payload []byte, limit int) []*product.Builder {
	builders := make([]*product.Builder, 0, limit)
	gjson.GetBytes(payload, "results.0.hits").ForEach(func(_, hit gjson.Result) bool {
		doc := hit.Get("document")
		name := strings.TrimSpace(doc.Get("name").String())
		pageURL := strings.TrimSpace(doc.Get("url").String())
		if name == "" || pageURL == "" {
			return true
		}

		b := product.NewBuilder(supplierName, shopURL, a.rates).
			SetBasicInfo(name, pageURL).
			SetQuantityText(name).
			SetCAS(doc.Get("CAS").String()).
			SetSKU(doc.Get("sku").String()).
			SetID(doc.Get("id").String()).
			SetUUID(doc.Get("uuid").String())
		if price := doc.Get("price").Float(); price > 0 {
			b.SetPricing(price, "USD", "$")
		}
		if description := common.CleanText(doc.Get("description").String()); description != "" {
			b.SetDescription(description)
		}
		doc.Get("variants").ForEach(func(_, raw gjson.Result) bool {
			variant := domain.Variant{
				Title: strings.TrimSpace(raw.Get("name").String()),
				URL:   strings.TrimSpace(raw.Get("url").String()),
				Price: raw.Get("price").Float(),
				SKU:   raw.Get("sku").String(),
			}
			if q, ok := parse.ParseQuantity(variant.Title); ok {
				variant.Quantity = q.Quantity
				variant.UOM = q.UOM
			}
			b.AddVariant(variant)
			return true
		})

		builders = append(builders, b)
		return len(builders) < limit
	})
	return builders
}

// Enrich is a no-op: search documents already carry everything.
func (a *Adapter) Enrich(context.Context, *product.Builder) error { return nil }

// SelectTitle appends the CAS number so fuzzy matching also works when
// the user searches by registry number.
func (a *Adapter) SelectTitle(b *product.Builder) string {
	if cas := b.CAS(); cas != "" {
		return b.Title() + " " + cas
	}
	return b.Title()
}
