// Package ticker normalizes user-entered security identifiers into the
// canonical form used as cache and job keys throughout the service.
package ticker

import "strings"

// Normalize trims whitespace and uppercases a raw ticker. Returns "" for
// blank input so callers can treat the result as a validity check.
func Normalize(raw string) string {
	return strings.ToUpper(strings.TrimSpace(raw))
}

// NormalizeAll normalizes a list and drops blanks and duplicates, keeping
// first-seen order. The returned order defines job traversal order.
func NormalizeAll(raw []string) []string {
	out := make([]string, 0, len(raw))
	seen := make(map[string]struct{}, len(raw))
	for _, v := range raw {
		t := Normalize(v)
		if t == "" {
			continue
		}
		if _, ok := seen[t]; ok {
			continue
		}
		seen[t] = struct{}{}
		out = append(out, t)
	}
	return out
}

// IsKoreanListed reports whether a ticker looks like a 6-digit KRX code.
func IsKoreanListed(t string) bool {
	if len(t) != 6 {
		return false
	}
	for _, c := range t {
		if c < '0' || c > '9' {
			return false
		}
	}
	return true
}
