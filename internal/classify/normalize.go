package classify

import (
	"regexp"
	"strings"
	"unicode"

	"github.com/kljensen/snowball/english"
	"github.com/kljensen/snowball/russian"
)

// tokenExpr keeps letters, digits and the #/+ signs so tokens like
// "c#" and "c++" survive tokenization intact.
var tokenExpr = regexp.MustCompile(`[\p{L}\p{N}#+]+`)

// NormalizeWord reduces one token to its canonical comparable form:
// edge punctuation stripped, lower-cased, then stemmed by script
// (Cyrillic tokens through the Russian stemmer, everything else through
// the English one). Normalization never fails; when a stemmer produces
// nothing usable the cleaned token is returned as is.
func NormalizeWord(token string) string {
	w := strings.ToLower(trimEdges(token))
	if w == "" {
		return ""
	}
	if hasCyrillic(w) {
		if stem := russian.Stem(w, false); stem != "" {
			return stem
		}
		return w
	}
	if stem := english.Stem(w, false); stem != "" {
		return stem
	}
	return w
}

// NormalizePhrase tokenizes a phrase, normalizes every token and joins
// the survivors with single spaces, preserving order. Deterministic:
// the same input always yields the same output.
func NormalizePhrase(phrase string) string {
	tokens := tokenExpr.FindAllString(phrase, -1)
	if len(tokens) == 0 {
		return ""
	}
	stems := make([]string, 0, len(tokens))
	for _, tok := range tokens {
		if stem := NormalizeWord(tok); stem != "" {
			stems = append(stems, stem)
		}
	}
	return strings.Join(stems, " ")
}

func trimEdges(token string) string {
	return strings.TrimFunc(token, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsNumber(r) && r != '#' && r != '+'
	})
}

func hasCyrillic(s string) bool {
	for _, r := range s {
		if unicode.Is(unicode.Cyrillic, r) {
			return true
		}
	}
	return false
}
