package rag

import (
	"strings"
	"unicode"
)

// Tokenize lowercases text, splits it on anything that is not a letter or
// digit and folds simple plural and third-person "s" suffixes, so "headaches"
// and "headache" produce the same term.
func Tokenize(text string) []string {
	fields := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	out := fields[:0]
	for _, f := range fields {
		out = append(out, stem(f))
	}
	return out
}

func stem(term string) string {
	if len(term) > 3 && strings.HasSuffix(term, "s") && !strings.HasSuffix(term, "ss") {
		return term[:len(term)-1]
	}
	return term
}
