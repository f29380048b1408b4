package dispatcher

import (
	"strings"
	"unicode"
)

// Similarity is the Jaccard index of the lowercased word sets of a and b.
func Similarity(a, b string) float64 {
	sa, sb := wordSet(a), wordSet(b)
	if len(sa) == 0 && len(sb) == 0 {
		return 0
	}
	shared := 0
	for w := range sa {
		if sb[w] {
			shared++
		}
	}
	return float64(shared) / float64(len(sa)+len(sb)-shared)
}

func wordSet(s string) map[string]bool {
	set := make(map[string]bool)
	for _, w := range strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	}) {
		set[w] = true
	}
	return set
}
