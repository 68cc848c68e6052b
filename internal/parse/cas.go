// Package parse contains the deterministic text parsers the acquisition
// pipeline relies on: CAS registry numbers, quantities with units, and
// prices with currency symbols. Supplier payloads are messy and locale
// dependent, so everything here favors explicit tables and single-pass
// regexes over clever heuristics.
package parse

import "regexp"

var (
	casExact = regexp.MustCompile(`^(\d{2,7})-(\d{2})-(\d)$`)
	casScan  = regexp.MustCompile(`\b(\d{2,7})-(\d{2})-(\d)\b`)
)

// IsCAS reports whether candidate is a structurally valid CAS registry
// number with a correct check digit. The checksum weights each digit of
// the first two segments by its reverse position (rightmost = 1) and
// takes the sum mod 10.
func IsCAS(candidate string) bool {
	m := casExact.FindStringSubmatch(candidate)
	if m == nil {
		return false
	}
	return casChecksumOK(m[1], m[2], m[3])
}

// FindCAS scans free text and returns the first candidate that passes
// both the structural pattern and the checksum.
func FindCAS(text string) (string, bool) {
	for _, m := range casScan.FindAllStringSubmatch(text, -1) {
		if casChecksumOK(m[1], m[2], m[3]) {
			return m[0], true
		}
	}
	return "", false
}

func casChecksumOK(seg1, seg2, check string) bool {
	digits := seg1 + seg2

	allZero := true
	for _, r := range seg1 {
		if r != '0' {
			allZero = false
			break
		}
	}
	if allZero {
		return false
	}

	sum := 0
	weight := 1
	for i := len(digits) - 1; i >= 0; i-- {
		sum += int(digits[i]-'0') * weight
		weight++
	}
	return sum%10 == int(check[0]-'0')
}
