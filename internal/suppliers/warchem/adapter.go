// Package warchem scrapes the WarChem shop, a WooCommerce storefront
// in Poland with złoty prices in the "1 234,56 zł" locale format.
// Paginated search; the product page supplies CAS, quantity and SKU
// through the attribute table.
package warchem

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
	supplierName    = "warchem"
	defaultEndpoint = "https://warchem.pl"
	maxPages        = 5
)

func init() {
	suppliers.Register(suppliers.Entry{Name: supplierName, Info: info(), New: New})
}

func info() domain.SupplierInfo {
	return domain.SupplierInfo{
		Name:     supplierName,
		Label:    "WarChem",
		BaseURL:  defaultEndpoint,
		Shipping: domain.ShippingInternational,
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
		return nil, fmt.Errorf("warchem: %w", err)
	}
	return &Adapter{client: client, detail: cfg.Detail, rates: cfg.Rates}, nil
}

func (a *Adapter) Name() string              { return supplierName }
func (a *Adapter) Info() domain.SupplierInfo { return info() }

// Search walks the paginated results until the limit is met or the
// pager runs out of next links.
func (a *Adapter) Search(ctx context.Context, query string, limit int) ([]*product.Builder, error) {
	builders := make([]*product.Builder, 0, limit)
	for page := 1; page <= maxPages; page++ {
		doc, err := a.client.GetHTML(ctx, searchPath(query, page))
		if err != nil {
			if len(builders) > 0 {
				return builders, nil
			}
			return nil, err
		}

		before := len(builders)
		builders = a.collectTiles(doc, builders, limit)
		if len(builders) >= limit {
			return builders, nil
		}
		if len(builders) == before || doc.Find("a.next.page-numbers").Length() == 0 {
			break
		}
	}
	return builders, nil
}

func searchPath(query string, page int) string {
	suffix := "?s=" + url.QueryEscape(query) + "&post_type=product"
	if page <= 1 {
		return "/" + suffix
	}
	return fmt.Sprintf("/page/%d/%s", page, suffix)
}

func (a *Adapter) collectTiles(doc *goquery.Document, builders []*product.Builder, limit int) []*product.Builder {
	doc.Find("ul.products li.product").EachWithBreak(func(_ int, tile *goquery.Selection) bool {
		link := tile.Find("a.woocommerce-LoopProduct-link").First()
		href, _ := link.Attr("href")
		title := common.CleanText(tile.Find("h2.woocommerce-loop-product__title").First().Text())
		if title == "" || href == "" {
			return true
		}

		// A discounted tile keeps the old price in <del>; the live one
		// is inside <ins>.
		price := tile.Find("span.price ins .woocommerce-Price-amount").First()
		if price.Length() == 0 {
			price = tile.Find("span.price .woocommerce-Price-amount").First()
		}

		b := product.NewBuilder(supplierName, a.client.BaseURL(), a.rates).
			SetBasicInfo(title, href).
			SetPriceText(price.Text()).
			SetQuantityText(title)
		builders = append(builders, b)
		return len(builders) < limit
	})
	return builders
}

// Enrich loads the product page, preferring the detail cache, and
// fills CAS, quantity, SKU and the short description.
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

	description := common.CleanText(doc.Find("div.woocommerce-product-details__short-description").First().Text())
	if description != "" {
		b.SetDescription(description)
	}

	doc.Find("table.woocommerce-product-attributes tr").Each(func(_ int, row *goquery.Selection) {
		name := strings.ToLower(common.CleanText(row.Find("th").First().Text()))
		value := common.CleanText(row.Find("td").First().Text())
		switch {
		case strings.Contains(name, "cas"):
			b.SetCAS(value)
		case strings.Contains(name, "pojemność"), strings.Contains(name, "masa"), strings.Contains(name, "waga"):
			b.SetQuantityText(value)
		}
	})

	if b.CAS() == "" {
		if cas, ok := parse.FindCAS(description); ok {
			b.SetCAS(cas)
		}
	}
	if sku := common.CleanText(doc.Find("span.sku").First().Text()); sku != "" {
		b.SetSKU(sku)
	}
	if qty, _ := b.Quantity(); qty == 0 {
		b.SetQuantityText(common.CleanText(doc.Find("h1.product_title").First().Text()))
	}

	if !cached {
		a.detail.Put(ctx, target, "", supplierName, raw)
	}
	return nil
}
