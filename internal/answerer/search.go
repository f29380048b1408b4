package answerer

import (
	"context"
	"errors"
	"math"
	"sort"

	"github.com/giantswarm/qa-environment/internal/schema"
)

// SearchConfig configures the passage-search backend.
type SearchConfig struct {
	// MaxResults caps the number of returned passages (default 3).
	MaxResults int `yaml:"max_results"`
}

// Search ranks sentence passages of a query's context documents against the
// question with TF-IDF and returns the best passages as answers.
type Search struct {
	maxResults int
}

// NewSearch creates a passage-search backend.
func NewSearch(config SearchConfig) *Search {
	if config.MaxResults <= 0 {
		config.MaxResults = 3
	}
	return &Search{maxResults: config.MaxResults}
}

type passage struct {
	doc, idx int
	text     string
	freq     map[string]int
	score    float64
}

// Answer returns the highest scoring passages for q.
func (s *Search) Answer(ctx context.Context, q *schema.Query) (*schema.Response, error) {
	docs := q.Documents()
	if len(docs) == 0 {
		return nil, errors.New("query has no context documents to search")
	}

	var passages []*passage
	docFreq := make(map[string]int)
	for d, doc := range docs {
		for i, sentence := range splitSentences(doc) {
			p := &passage{doc: d, idx: i, text: sentence, freq: make(map[string]int)}
			for _, term := range terms(sentence) {
				if p.freq[term] == 0 {
					docFreq[term]++
				}
				p.freq[term]++
			}
			passages = append(passages, p)
		}
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	total := float64(len(passages))
	qterms := queryTerms(q.Question, q.TokenizedQuestion)
	for _, p := range passages {
		for _, term := range qterms {
			tf := float64(p.freq[term])
			if tf == 0 {
				continue
			}
			idf := math.Log(1 + total/float64(docFreq[term]))
			p.score += tf * idf
		}
	}

	sort.SliceStable(passages, func(i, j int) bool {
		return passages[i].score > passages[j].score
	})

	resp := &schema.Response{
		Question:          q.Question,
		ProcessedQuestion: ProcessQuestion(q.Question),
		Observations: map[string]schema.Observation{
			"index": {Scores: map[string]float64{
				"documents": float64(len(docs)),
				"passages":  total,
				"terms":     float64(len(docFreq)),
			}},
		},
	}
	for _, p := range passages {
		if len(resp.Answers) == s.maxResults || p.score <= 0 {
			break
		}
		obs := schema.Observation{
			Text:   p.text,
			Scores: map[string]float64{"tfidf": math.Round(p.score*10000) / 10000},
		}
		if err := obs.SetExtension("source", map[string]any{"document": p.doc, "passage": p.idx}); err != nil {
			return nil, err
		}
		resp.Answers = append(resp.Answers, obs)
	}
	return resp, nil
}
