package domain

type ShippingScope string

const (
	ShippingWorldwide     ShippingScope = "worldwide"
	ShippingDomestic      ShippingScope = "domestic"
	ShippingInternational ShippingScope = "international"
	ShippingLocal         ShippingScope = "local"
)

// Variant is a purchasable variation of a product (pack size, grade).
// Same shape as Product minus nested variants and match metadata.
type Variant struct {
	Title          string  `json:"title,omitempty"`
	URL            string  `json:"url,omitempty"`
	Price          float64 `json:"price,omitempty"`
	CurrencyCode   string  `json:"currencyCode,omitempty"`
	CurrencySymbol string  `json:"currencySymbol,omitempty"`
	USDPrice       float64 `json:"usdPrice,omitempty"`
	Quantity       float64 `json:"quantity,omitempty"`
	UOM            string  `json:"uom,omitempty"`
	BaseQuantity   float64 `json:"baseQuantity,omitempty"`
	ID             string  `json:"id,omitempty"`
	SKU            string  `json:"sku,omitempty"`
	UUID           string  `json:"uuid,omitempty"`
}

// Product is the canonical, cross-supplier entity. Instances are only
// produced by product.Builder.Build and are treated as immutable.
type Product struct {
	Title          string    `json:"title"`
	URL            string    `json:"url"`
	Supplier       string    `json:"supplier"`
	Price          float64   `json:"price"`
	CurrencyCode   string    `json:"currencyCode"`
	CurrencySymbol string    `json:"currencySymbol"`
	USDPrice       float64   `json:"usdPrice"`
	Quantity       float64   `json:"quantity"`
	UOM            string    `json:"uom"`
	BaseQuantity   float64   `json:"baseQuantity"`
	CAS            string    `json:"cas,omitempty"`
	Description    string    `json:"description,omitempty"`
	ID             string    `json:"id,omitempty"`
	SKU            string    `json:"sku,omitempty"`
	UUID           string    `json:"uuid,omitempty"`
	Variants       []Variant `json:"variants,omitempty"`
	MatchPercent   int       `json:"matchPercentage,omitempty"`
}
