package scorer

import (
	"regexp"
	"strings"
	"unicode"
)

var articles = regexp.MustCompile(`\b(a|an|the)\b`)

// NormalizeAnswer lowercases s and removes punctuation, articles and extra
// whitespace, as the official SQuAD evaluation does.
func NormalizeAnswer(s string) string {
	s = strings.ToLower(s)
	s = strings.Map(func(r rune) rune {
		if unicode.IsPunct(r) || unicode.IsSymbol(r) {
			return -1
		}
		return r
	}, s)
	s = articles.ReplaceAllString(s, " ")
	return strings.Join(strings.Fields(s), " ")
}

// ExactMatch is 1 when prediction and gold normalise to the same string.
func ExactMatch(prediction, gold string) float64 {
	if NormalizeAnswer(prediction) == NormalizeAnswer(gold) {
		return 1
	}
	return 0
}

// F1 is the token-overlap F1 between prediction and gold. When either side
// normalises to no tokens, F1 is 1 if both do and 0 otherwise.
func F1(prediction, gold string) float64 {
	predTokens := strings.Fields(NormalizeAnswer(prediction))
	goldTokens := strings.Fields(NormalizeAnswer(gold))
	if len(predTokens) == 0 || len(goldTokens) == 0 {
		if len(predTokens) == len(goldTokens) {
			return 1
		}
		return 0
	}

	counts := make(map[string]int, len(goldTokens))
	for _, t := range goldTokens {
		counts[t]++
	}
	common := 0
	for _, t := range predTokens {
		if counts[t] > 0 {
			counts[t]--
			common++
		}
	}
	if common == 0 {
		return 0
	}
	precision := float64(common) / float64(len(predTokens))
	recall := float64(common) / float64(len(goldTokens))
	return 2 * precision * recall / (precision + recall)
}

// Best returns the maximum EM and F1 of prediction over the gold answers. An
// empty gold list marks an unanswerable question: the empty prediction scores
// 1 and anything else 0.
func Best(prediction string, golds []string) (em, f1 float64) {
	if len(golds) == 0 {
		golds = []string{""}
	}
	for _, g := range golds {
		em = max(em, ExactMatch(prediction, g))
		f1 = max(f1, F1(prediction, g))
	}
	return em, f1
}
