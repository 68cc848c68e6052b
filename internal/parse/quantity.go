package parse

import (
	"regexp"
	"sort"
	"strconv"
	"strings"
)

// ParsedQuantity is a numeric amount with a canonical unit of measure.
type ParsedQuantity struct {
	Quantity float64 `json:"quantity"`
	UOM      string  `json:"uom"`
}

// uomAliases maps every accepted spelling (lowercase) to its canonical
// unit. The table is closed: an unknown token means no quantity.
var uomAliases = map[string]string{
	"mg":          "mg",
	"milligram":   "mg",
	"milligrams":  "mg",
	"g":           "g",
	"gm":          "g",
	"gram":        "g",
	"grams":       "g",
	"kg":          "kg",
	"kilo":        "kg",
	"kilos":       "kg",
	"kilogram":    "kg",
	"kilograms":   "kg",
	"oz":          "oz",
	"ounce":       "oz",
	"ounces":      "oz",
	"lb":          "lb",
	"lbs":         "lb",
	"pound":       "lb",
	"pounds":      "lb",
	"ml":          "mL",
	"milliliter":  "mL",
	"milliliters": "mL",
	"millilitre":  "mL",
	"millilitres": "mL",
	"l":           "L",
	"liter":       "L",
	"liters":      "L",
	"litre":       "L",
	"litres":      "L",
	"gal":         "gal",
	"gallon":      "gal",
	"gallons":     "gal",
	"qt":          "qt",
	"quart":       "qt",
	"quarts":      "qt",
	"pc":          "pc",
	"pcs":         "pc",
	"piece":       "pc",
	"pieces":      "pc",
	"ea":          "pc",
	"each":        "pc",
}

// baseFactors normalizes a canonical unit to its dimension's base unit:
// grams for mass, milliliters for volume, pieces for count. Units
// missing from the table pass through with factor 1.
var baseFactors = map[string]float64{
	"mg":  0.001,
	"g":   1,
	"kg":  1000,
	"oz":  28.3495,
	"lb":  453.592,
	"mL":  1,
	"L":   1000,
	"gal": 3785.41,
	"qt":  946.353,
	"pc":  1,
}

var quantityPattern = buildQuantityPattern()

// buildQuantityPattern compiles the single combined regex used for
// quantity extraction: a number (decimal point or decimal comma)
// immediately followed by one alias token. Longer aliases are listed
// first so prefixes never shadow them.
func buildQuantityPattern() *regexp.Regexp {
	aliases := make([]string, 0, len(uomAliases))
	for alias := range uomAliases {
		aliases = append(aliases, alias)
	}
	sort.Slice(aliases, func(i, j int) bool {
		if len(aliases[i]) != len(aliases[j]) {
			return len(aliases[i]) > len(aliases[j])
		}
		return aliases[i] < aliases[j]
	})
	return regexp.MustCompile(`(?i)(\d+(?:[.,]\d+)?)\s*(` + strings.Join(aliases, "|") + `)\b`)
}

// ParseQuantity extracts the first number-plus-unit pair from text.
// Ambiguous strings resolve to the leftmost match; there is no
// backtracking across candidate substrings.
func ParseQuantity(text string) (ParsedQuantity, bool) {
	m := quantityPattern.FindStringSubmatch(text)
	if m == nil {
		return ParsedQuantity{}, false
	}
	value, err := strconv.ParseFloat(strings.Replace(m[1], ",", ".", 1), 64)
	if err != nil {
		return ParsedQuantity{}, false
	}
	uom, ok := StandardizeUOM(m[2])
	if !ok {
		return ParsedQuantity{}, false
	}
	return ParsedQuantity{Quantity: value, UOM: uom}, true
}

// StandardizeUOM resolves a raw unit spelling to its canonical form.
func StandardizeUOM(raw string) (string, bool) {
	uom, ok := uomAliases[strings.ToLower(strings.TrimSpace(raw))]
	return uom, ok
}

// BaseQuantity converts an amount in a canonical unit to the dimension's
// base unit. Unknown units pass through unchanged.
func BaseQuantity(quantity float64, uom string) float64 {
	factor, ok := baseFactors[uom]
	if !ok {
		return quantity
	}
	return quantity * factor
}
