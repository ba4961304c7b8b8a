package interview

import (
	"strings"
	"unicode"
)

// Normalize case-folds q, drops punctuation and symbols, and collapses runs
// of whitespace to a single space. Two questions that differ only in casing
// or punctuation normalize to the same string.
func Normalize(q string) string {
	var sb strings.Builder
	sb.Grow(len(q))
	space := false
	for _, r := range strings.ToLower(q) {
		switch {
		case unicode.IsLetter(r), unicode.IsDigit(r):
			if space && sb.Len() > 0 {
				sb.WriteByte(' ')
			}
			space = false
			sb.WriteRune(r)
		case unicode.IsSpace(r):
			space = true
		default:
			// Punctuation joins nothing: "don't" becomes "dont".
		}
	}
	return sb.String()
}
