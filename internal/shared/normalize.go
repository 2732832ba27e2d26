package shared

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// NormalizeName folds an artist or track name into its comparison form:
// lower-cased, diacritics stripped, punctuation removed, whitespace collapsed.
//
// "Beyoncé" and "beyonce" normalize identically; so do "AC/DC" and "ac dc".
// "&" is kept as the word "and" so "Simon & Garfunkel" matches "Simon and Garfunkel".
// Names made only of symbols, like "!!!", fall back to their lower-cased raw form.
func NormalizeName(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	folded, _, err := transform.String(t, s)
	if err != nil {
		folded = s
	}
	folded = strings.ToLower(folded)
	folded = strings.ReplaceAll(folded, "&", " and ")

	var b strings.Builder
	b.Grow(len(folded))
	for _, r := range folded {
		switch {
		case unicode.IsLetter(r), unicode.IsDigit(r):
			b.WriteRune(r)
		case unicode.IsSpace(r), r == '-', r == '/', r == '_':
			b.WriteRune(' ')
		}
	}
	if out := strings.Join(strings.Fields(b.String()), " "); out != "" {
		return out
	}
	return strings.Join(strings.Fields(strings.ToLower(s)), " ")
}

// NameSet builds a set of normalized names, skipping blanks.
func NameSet(names ...string) map[string]struct{} {
	set := make(map[string]struct{}, len(names))
	for _, n := range names {
		if k := NormalizeName(n); k != "" {
			set[k] = struct{}{}
		}
	}
	return set
}
