// Package onyxmet scrapes the Onyxmet shop, an OpenCart storefront
// listing reagents in USD, shipping worldwide from Poland. Two-phase:
// the search page gives title, url and price; the product page adds
// CAS, description and SKU.
package onyxmet

import (
	"bytes"
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"chemsource/searchservice/internal/cache"
	"chemsource/searchservice/internal/domain"
	"chemsource/searchservice/internal/fetch"
	"chemsource/searchservice/internal/parse"
	"chemsource/searchservice/internal/product"
	"chemsource/searchservice/internal/suppliers"
	"chemsource/searchservice/internal/suppliers/common"
)

const (
	supplierName    = "onyxmet"
	defaultEndpoint = "https://onyxmet.com"
)

func init() {
	suppliers.Register(suppliers.Entry{Name: supplierName, Info: info(), New: New})
}

func info() domain.SupplierInfo {
	return domain.SupplierInfo{
		Name:     supplierName,
		Label:    "Onyxmet",
		BaseURL:  defaultEndpoint,
		Shipping: domain.ShippingWorldwide,
		Country:  "PL",
		Enabled:  true,
	}
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
		return nil, fmt.Errorf("onyxmet: %w", err)
	}
	return &Adapter{client: client, detail: cfg.Detail, rates: cfg.Rates}, nil
}

func (a *Adapter) Name() string              { return supplierName }
func (a *Adapter) Info() domain.SupplierInfo { return info() }

// Search scrapes one results page. The shop caps a page at 100 tiles,
// comfortably past any practical limit, so there is no pagination.
func (a *Adapter) Search(ctx context.Context, query string, limit int) ([]*product.Builder, error) {
	target := "/index.php?route=product/search&limit=100&search=" + url.QueryEscape(query)
	doc, err := a.client.GetHTML(ctx, target)
	if err != nil {
		return nil, err
	}
	return a.initBuilders(doc, limit), nil
}

func (a *Adapter) initBuilders(doc *goquery.Document, limit int) []*product.Builder {
	builders := make([]*product.Builder, 0, limit)
	doc.Find("div.product-thumb").EachWithBreak(func(_ int, tile *goquery.Selection) bool {
		link := tile.Find(".caption h4 a").First()
		title := common.CleanText(link.Text())
		href, _ := link.Attr("href")
		if title == "" || href == "" {
			return true // malformed tile, keep scanning
		}

		price := tile.Find("p.price span.price-new").First()
		if price.Length() == 0 {
			price = tile.Find("p.price").First()
		}

		b := product.NewBuilder(supplierName, a.client.BaseURL(), a.rates).
			SetBasicInfo(title, href).
			SetPriceText(common.CleanText(price.Text())).
			SetQuantityText(title)
		builders = append(builders, b)
		return len(builders) < limit
	})
	return builders
}

// Enrich loads the product page, preferring the detail cache, and
// fills description, CAS, SKU and quantity.
func (a *Adapter) Enrich(ctx context.Context, b *product.Builder) error {
	if b.URL() == "" {
		return common.Shapef(supplierName, "builder has no url")
	}
	target, err := a.client.Resolve(b.URL())
	if err != nil {
		return err
	}

	raw, cached := a.detail.Get(ctx, target, "", supplierName)
	if !cached {
		if raw, err = a.client.GetHTMLBytes(ctx, target); err != nil {
			return err
		}
	}
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(raw))
	if err != nil {
		return common.Shapef(supplierName, "detail page: %v", err)
	}

	if description := common.CleanText(doc.Find("#tab-description").First().Text()); description != "" {
		b.SetDescription(description)
		if b.CAS() == "" {
			if cas, ok := parse.FindCAS(description); ok {
				b.SetCAS(cas)
			}
		}
	}
	doc.Find("ul.list-unstyled li").Each(func(_ int, item *goquery.Selection) {
		text := common.CleanText(item.Text())
		if code, ok := strings.CutPrefix(text, "Product Code:"); ok {
			b.SetSKU(strings.TrimSpace(code))
		}
	})
	if qty, _ := b.Quantity(); qty == 0 {
		b.SetQuantityText(common.CleanText(doc.Find("h1").First().Text()))
	}

	if !cached {
		a.detail.Put(ctx, target, "", supplierName, raw)
	}
	return nil
}
