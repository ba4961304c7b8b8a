package guard

import (
	"strings"

	"github.com/antzucaro/matchr"

	"github.com/MrWong99/mockflow/internal/interview"
)

// IsDuplicate reports whether normalized (see [interview.Normalize]) matches
// a question already asked, either exactly or as a substring in either
// direction. An empty question is always treated as a duplicate.
func IsDuplicate(st *interview.State, normalized string) bool {
	if normalized == "" {
		return true
	}
	for _, q := range st.QuestionsAsked {
		if q == normalized || strings.Contains(q, normalized) || strings.Contains(normalized, q) {
			return true
		}
	}
	return false
}

// DuplicateChecker extends [IsDuplicate] with fuzzy matching.
//
// With a positive Similarity, a question whose Jaro-Winkler similarity to
// any earlier question reaches the threshold is also a duplicate. The zero
// value performs exact and substring matching only.
type DuplicateChecker struct {
	// Similarity is the Jaro-Winkler score in (0,1] from which two questions
	// are considered the same. Zero disables fuzzy matching.
	Similarity float64
}

// IsDuplicate applies exact, substring and (optionally) fuzzy matching.
func (c DuplicateChecker) IsDuplicate(st *interview.State, normalized string) bool {
	if IsDuplicate(st, normalized) {
		return true
	}
	if c.Similarity <= 0 {
		return false
	}
	for _, q := range st.QuestionsAsked {
		if matchr.JaroWinkler(q, normalized, true) >= c.Similarity {
			return true
		}
	}
	return false
}
