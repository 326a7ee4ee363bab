package skills

import (
	"strings"
	"unicode"

	"golang.org/x/text/cases"
)

var folder = cases.Fold()

// stopwords never count as evidence for a provider.
var stopwords = map[string]bool{
	"the": true, "and": true, "for": true, "with": true, "from": true, "into": true,
	"that": true, "this": true, "are": true, "all": true, "any": true, "not": true,
	"add": true, "use": true, "new": true, "its": true, "per": true, "via": true,
}

// tokenize case-folds s and splits it on anything that is not a letter or digit.
// Tokens shorter than three runes and stopwords are dropped.
func tokenize(s string) []string {
	fields := strings.FieldsFunc(folder.String(s), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})

	out := fields[:0]
	for _, f := range fields {
		if len([]rune(f)) < 3 || stopwords[f] {
			continue
		}
		out = append(out, f)
	}
	return out
}

// tokenSet returns the distinct tokens of every input string.
func tokenSet(parts ...string) map[string]bool {
	set := make(map[string]bool)
	for _, p := range parts {
		for _, tok := range tokenize(p) {
			set[tok] = true
		}
	}
	return set
}
