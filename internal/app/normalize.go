package app

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// NormalizeName builds the join key: lowercased, accents stripped, [a-z0-9] only.
// Letters without an ASCII base (ø, ß, ...) are dropped.
func NormalizeName(s string) string {
	if s == "" {
		return ""
	}
	s = strings.ToLower(s)
	// transformers keep state; build one per call
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)))
	if out, _, err := transform.String(t, s); err == nil {
		s = out
	}
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
		}
	}
	return b.String()
}
