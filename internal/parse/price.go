package parse

import (
	"regexp"
	"strconv"
	"strings"
)

// ParsedPrice is an amount in a supplier's native currency.
type ParsedPrice struct {
	Price          float64 `json:"price"`
	CurrencyCode   string  `json:"currencyCode"`
	CurrencySymbol string  `json:"currencySymbol"`
}

// currencySymbols is scanned in order; multi-rune symbols come first so
// they are never shadowed by a substring.
var currencySymbols = []struct {
	Symbol string
	Code   string
}{
	{"zł", "PLN"},
	{"$", "USD"},
	{"€", "EUR"},
	{"£", "GBP"},
	{"¥", "JPY"},
	{"₹", "INR"},
	{"₩", "KRW"},
	{"₽", "RUB"},
	{"₺", "TRY"},
}

var numberRun = regexp.MustCompile("[0-9][0-9.,  ]*")

// ParsePrice extracts a currency symbol and the amount next to it.
// Strings without a recognizable symbol yield no result: a bare number
// is not a price. Both the "1,234.56" and the European "1.234,56"
// separator conventions are handled.
func ParsePrice(text string) (ParsedPrice, bool) {
	symbol, code := "", ""
	for _, entry := range currencySymbols {
		if strings.Contains(text, entry.Symbol) {
			symbol, code = entry.Symbol, entry.Code
			break
		}
	}
	if symbol == "" {
		return ParsedPrice{}, false
	}

	run := numberRun.FindString(strings.ReplaceAll(text, symbol, " "))
	if run == "" {
		return ParsedPrice{}, false
	}
	value, err := strconv.ParseFloat(normalizeSeparators(run), 64)
	if err != nil {
		return ParsedPrice{}, false
	}
	return ParsedPrice{Price: value, CurrencyCode: code, CurrencySymbol: symbol}, true
}

// normalizeSeparators rewrites a raw digit run to ParseFloat form. When
// both separators appear, the one occurring last is the decimal mark.
// A lone comma is a decimal mark unless it groups exactly three
// trailing digits; a lone repeated separator always groups thousands.
func normalizeSeparators(run string) string {
	s := strings.Map(func(r rune) rune {
		if r == ' ' || r == ' ' {
			return -1
		}
		return r
	}, run)
	s = strings.Trim(s, ".,")

	lastDot := strings.LastIndex(s, ".")
	lastComma := strings.LastIndex(s, ",")

	switch {
	case lastDot >= 0 && lastComma >= 0:
		if lastComma > lastDot {
			s = strings.ReplaceAll(s, ".", "")
			s = strings.Replace(s, ",", ".", 1)
		} else {
			s = strings.ReplaceAll(s, ",", "")
		}
	case lastComma >= 0:
		if strings.Count(s, ",") == 1 && len(s)-lastComma-1 != 3 {
			s = strings.Replace(s, ",", ".", 1)
		} else {
			s = strings.ReplaceAll(s, ",", "")
		}
	case lastDot >= 0:
		if strings.Count(s, ".") > 1 {
			s = strings.ReplaceAll(s, ".", "")
		}
	}
	return s
}
