// Package qainstance assembles evaluation datapoints from an original query
// response pair, its rewrites and ground-truth labels.
package qainstance

import (
	"errors"
	"fmt"
	"slices"

	"github.com/giantswarm/qa-environment/internal/schema"
)

// Labels is the ground truth attached to an instance.
type Labels struct {
	ID               string
	GoldAnswers      []string
	PlausibleAnswers []string
	IsImpossible     bool
	Title            string
}

// ScoreFunc rates one pair. Returning ok=false excludes the pair from best
// selection.
type ScoreFunc func(pair *schema.QueryResponse) (score float64, ok bool)

type options struct {
	score ScoreFunc
}

// Option configures Assemble.
type Option func(*options)

// WithScoreFunc enables qr_best selection with fn.
func WithScoreFunc(fn ScoreFunc) Option {
	return func(o *options) { o.score = fn }
}

// Pair builds a QueryResponse.
func Pair(q *schema.Query, r *schema.Response) *schema.QueryResponse {
	return &schema.QueryResponse{Query: q, Response: r}
}

// Assemble builds a QAInstance. The pair pointers are stored as given, so
// QRBest is always identical to original or to one element of rewrites.
//
// With a score function the highest scoring pair becomes QRBest. Ties keep
// the earlier pair, the original first. Without one QRBest stays nil.
func Assemble(original *schema.QueryResponse, rewrites []*schema.QueryResponse, labels Labels, opts ...Option) (*schema.QAInstance, error) {
	if original == nil {
		return nil, errors.New("original query response is required")
	}
	var o options
	for _, opt := range opts {
		opt(&o)
	}

	inst := &schema.QAInstance{
		ID:               labels.ID,
		QROriginal:       original,
		QRRewrites:       rewrites,
		GoldAnswers:      slices.Clone(labels.GoldAnswers),
		IsImpossible:     labels.IsImpossible,
		PlausibleAnswers: slices.Clone(labels.PlausibleAnswers),
		Title:            labels.Title,
	}
	if o.score != nil {
		inst.QRBest = best(inst.Pairs(), o.score)
	}
	return inst, nil
}

func best(pairs []*schema.QueryResponse, score ScoreFunc) *schema.QueryResponse {
	var chosen *schema.QueryResponse
	var top float64
	for _, p := range pairs {
		s, ok := score(p)
		if !ok {
			continue
		}
		if chosen == nil || s > top {
			chosen, top = p, s
		}
	}
	return chosen
}

// Validate checks that QRBest, when set, is the original or one of the
// rewrites by identity.
func Validate(inst *schema.QAInstance) error {
	if inst == nil {
		return errors.New("nil instance")
	}
	if inst.QROriginal == nil {
		return fmt.Errorf("instance %q has no original pair", inst.ID)
	}
	if inst.QRBest == nil {
		return nil
	}
	if slices.Contains(inst.Pairs(), inst.QRBest) {
		return nil
	}
	return fmt.Errorf("instance %q: qr_best is neither the original nor a rewrite", inst.ID)
}

// MaxAnswerScore scores a pair by the highest value of the named score over
// its answers. Pairs without a response, failed pairs and pairs with no
// answer carrying the score are skipped.
func MaxAnswerScore(name string) ScoreFunc {
	return func(pair *schema.QueryResponse) (float64, bool) {
		if pair == nil || pair.Response == nil || pair.Response.Failed() {
			return 0, false
		}
		var top float64
		found := false
		for i := range pair.Response.Answers {
			s, ok := pair.Response.Answers[i].Score(name)
			if ok && (!found || s > top) {
				top, found = s, true
			}
		}
		return top, found
	}
}
