// Package labdiscounter integrates the Laboratoriumdiscounter
// storefront through its JSON API: a paginated search endpoint plus a
// per-product detail document. Prices are EUR, shipped worldwide
// from the Netherlands.
package labdiscounter

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"chemsource/searchservice/internal/cache"
	"chemsource/searchservice/internal/domain"
	"chemsource/searchservice/internal/fetch"
	"chemsource/searchservice/internal/parse"
	"chemsource/searchservice/internal/product"
	"chemsource/searchservice/internal/suppliers"
	"chemsource/searchservice/internal/suppliers/common"
)

const (
	supplierName    = "labdiscounter"
	defaultEndpoint = "https://www.laboratoriumdiscounter.nl"
	pageSize        = 24
	// maxPages caps pagination independently of the request budget so
	// a shop bug cannot spin the adapter through its whole catalog.
	maxPages = 5
)

func init() {
	suppliers.Register(suppliers.Entry{Name: supplierName, Info: info(), New: New})
}

func info() domain.SupplierInfo {
	return domain.SupplierInfo{
		Name:     supplierName,
		Label:    "Laboratoriumdiscounter",
		BaseURL:  defaultEndpoint,
		Shipping: domain.ShippingWorldwide,
		Country:  "NL",
		Enabled:  true,
	}
}

type searchResponse struct {
	Products []searchProduct `json:"products"`
	Total    int             `json:"total"`
	Pages    int             `json:"pages"`
	Page     int             `json:"page"`
}

type searchProduct struct {
	ID        int64       `json:"id"`
	Title     string      `json:"title"`
	URL       string      `json:"url"`
	SKU       string      `json:"sku"`
	Available bool        `json:"available"`
	Price     searchPrice `json:"price"`
}

type searchPrice struct {
	Price     float64 `json:"price"`
	Formatted string  `json:"price_formatted"`
}

type detailResponse struct {
	Product struct {
		ID             int64  `json:"id"`
		Code           string `json:"code"`
		Description    string `json:"description"`
		Content        string `json:"content"`
		Specifications []struct {
			Name  string `json:"name"`
			Value string `json:"value"`
		} `json:"specifications"`
	} `json:"product"`
}

type Adapter struct {
	client *fetch.Client
	detail *cache.DetailCache
	rates  product.RateSource
}

func New(cfg suppliers.Config) (suppliers.Supplier, error) {
	endpoint := strings.TrimSpace(cfg.Endpoint)
	if endpoint == "" {
		endpoint = defaultEndpoint
	}
	client, err := fetch.NewClient(fetch.Config{
		BaseURL:   endpoint,
		Client:    cfg.Client,
		UserAgent: cfg.UserAgent,
		Budget:    cfg.Budget,
	})
	if err != nil {
		return nil, fmt.Errorf("labdiscounter: %w", err)
	}
	return &Adapter{client: client, detail: cfg.Detail, rates: cfg.Rates}, nil
}

func (a *Adapter) Name() string              { return supplierName }
func (a *Adapter) Info() domain.SupplierInfo { return info() }

// Search accumulates result pages until the limit is met or the shop
// runs out of pages.
func (a *Adapter) Search(ctx context.Context, query string, limit int) ([]*product.Builder, error) {
	builders := make([]*product.Builder, 0, limit)
	for page := 1; page <= maxPages; page++ {
		target := fmt.Sprintf("/en/search/%s.json?limit=%d&page=%d",
			url.PathEscape(query), pageSize, page)

		var resp searchResponse
		if err := a.client.GetJSON(ctx, target, &resp); err != nil {
			// Results from pages already fetched still count.
			if len(builders) > 0 {
				return builders, nil
			}
			return nil, err
		}
		if len(resp.Products) == 0 {
			break
		}

		for _, p := range resp.Products {
			if !p.Available {
				continue
			}
			b, err := a.initBuilder(p)
			if err != nil {
				continue // one malformed product never fails the page
			}
			builders = append(builders, b)
			if len(builders) >= limit {
				return builders, nil
			}
		}
		if resp.Pages > 0 && page >= resp.Pages {
			break
		}
	}
	return builders, nil
}

func (a *Adapter) initBuilder(p searchProduct) (*product.Builder, error) {
	title := strings.TrimSpace(p.Title)
	if title == "" || strings.TrimSpace(p.URL) == "" {
		return nil, common.Shapef(supplierName, "product %d lacks title or url", p.ID)
	}
	b := product.NewBuilder(supplierName, a.client.BaseURL(), a.rates).
		SetBasicInfo(title, p.URL).
		SetQuantityText(title).
		SetSKU(p.SKU)
	if p.ID != 0 {
		b.SetID(strconv.FormatInt(p.ID, 10))
	}
	if p.Price.Price > 0 {
		b.SetPricing(p.Price.Price, "EUR", "€")
	} else {
		// Some payloads carry only the shop-formatted string ("€ 10,95").
		b.SetPriceText(p.Price.Formatted)
	}
	return b, nil
}

// Enrich fetches the product's JSON document, preferring the detail
// cache, and fills CAS, description and code.
func (a *Adapter) Enrich(ctx context.Context, b *product.Builder) error {
	if b.URL() == "" {
		return common.Shapef(supplierName, "builder has no url")
	}
	pageURL, err := a.client.Resolve(b.URL())
	if err != nil {
		return err
	}
	const params = "format=json"
	target := pageURL + "?" + params

	raw, cached := a.detail.Get(ctx, pageURL, params, supplierName)
	if !cached {
		if raw, err = a.client.GetJSONBytes(ctx, target); err != nil {
			return err
		}
	}

	var resp detailResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return common.Shapef(supplierName, "detail document: %v", err)
	}

	doc := resp.Product
	content := common.CleanText(doc.Content)
	if description := strings.TrimSpace(doc.Description); description != "" {
		b.SetDescription(description)
	} else if content != "" {
		b.SetDescription(content)
	}
	for _, spec := range doc.Specifications {
		if strings.Contains(strings.ToLower(spec.Name), "cas") {
			b.SetCAS(spec.Value)
		}
	}
	if b.CAS() == "" {
		if cas, ok := parse.FindCAS(content); ok {
			b.SetCAS(cas)
		}
	}
	if doc.Code != "" {
		b.SetSKU(doc.Code)
	}

	if !cached {
		a.detail.Put(ctx, pageURL, params, supplierName, raw)
	}
	return nil
}
