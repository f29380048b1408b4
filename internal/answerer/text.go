package answerer

import (
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/text/unicode/norm"
)

var stopWords = map[string]bool{
	"a": true, "an": true, "and": true, "are": true, "as": true, "at": true,
	"be": true, "by": true, "for": true, "from": true, "has": true, "he": true,
	"in": true, "is": true, "it": true, "its": true, "of": true, "on": true,
	"that": true, "the": true, "to": true, "was": true, "were": true, "will": true,
	"with": true, "this": true, "but": true, "they": true, "have": true,
	"had": true, "what": true, "when": true, "where": true, "who": true, "which": true,
	"why": true, "how": true, "did": true, "do": true, "does": true,
}

var sentenceBoundary = regexp.MustCompile(`([.!?])\s+`)

// ProcessQuestion returns the normalised question reported as
// processed_question: NFKC-normalised, control characters dropped and
// whitespace collapsed.
func ProcessQuestion(question string) string {
	normed := norm.NFKC.String(question)
	normed = strings.Map(func(r rune) rune {
		if unicode.IsControl(r) && !unicode.IsSpace(r) {
			return -1
		}
		return r
	}, normed)
	return strings.Join(strings.Fields(normed), " ")
}

// terms lowercases text and splits it into content terms, dropping stop words.
func terms(text string) []string {
	fields := strings.FieldsFunc(strings.ToLower(norm.NFKC.String(text)), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	out := fields[:0]
	for _, f := range fields {
		if !stopWords[f] {
			out = append(out, f)
		}
	}
	return out
}

// queryTerms prefers the caller-supplied tokenization of the question.
func queryTerms(question string, tokenized []string) []string {
	if len(tokenized) > 0 {
		return terms(strings.Join(tokenized, " "))
	}
	return terms(question)
}

// splitSentences breaks a document into sentence-sized passages.
func splitSentences(doc string) []string {
	marked := sentenceBoundary.ReplaceAllString(doc, "$1\n")
	var out []string
	for _, s := range strings.Split(marked, "\n") {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}
