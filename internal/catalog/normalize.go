package catalog

import (
	"strings"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/unicode/norm"
)

// NormalizeTerm canonicalizes a raw field value for comparison: Unicode NFKC
// (so full-width and composed variants collapse), control characters removed,
// surrounding whitespace trimmed. Inner whitespace and case are preserved.
func NormalizeTerm(s string) string {
	s = norm.NFKC.String(s)
	s = strings.Map(func(r rune) rune {
		if unicode.IsControl(r) {
			return -1
		}
		return r
	}, s)
	return strings.TrimSpace(s)
}

// FoldKey case-folds a term for case-insensitive identity comparison.
// Callers normalize first; FoldKey only removes case distinctions.
// A Caser is stateful, so one is built per call rather than shared.
func FoldKey(s string) string {
	return cases.Fold().String(s)
}
