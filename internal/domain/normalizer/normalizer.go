// Package normalizer canonicalizes raw question text into a stable comparison
// form used both as embedding input and as the cache key fragment.
package normalizer

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// stripMarks removes combining diacritical marks after decomposition and
// recomposes. Kazakh and Russian letters are base characters and pass
// through unchanged; precomposed accents (й -> и, ё -> е) fold to their base.
var stripMarks = transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)

// Normalize canonicalizes a question: Unicode compatibility normalization,
// lowercase fold, diacritic strip, punctuation removal and whitespace
// collapse. Returns "" for non-substantive input (nothing left that is a
// letter or digit). The transform is deterministic and idempotent:
// Normalize(Normalize(x)) == Normalize(x).
func Normalize(text string) string {
	s := norm.NFKC.String(text)
	s = strings.ToLower(s)
	if folded, _, err := transform.String(stripMarks, s); err == nil {
		s = folded
	}

	var b strings.Builder
	b.Grow(len(s))
	lastSpace := true
	substantive := false
	for _, r := range s {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			b.WriteRune(r)
			lastSpace = false
			substantive = true
		case unicode.IsSpace(r) || unicode.IsPunct(r) || unicode.IsSymbol(r):
			if !lastSpace {
				b.WriteRune(' ')
				lastSpace = true
			}
		}
	}
	if !substantive {
		return ""
	}
	return strings.TrimSpace(b.String())
}
