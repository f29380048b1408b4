package runner

import (
	"context"
	"log/slog"

	"github.com/giantswarm/qa-environment/internal/qainstance"
	"github.com/giantswarm/qa-environment/internal/schema"
	"github.com/giantswarm/qa-environment/internal/testsuite"
)

// batch is one request worth of items. Each item contributes its original
// query followed by its rewrites; spans records where they sit.
type batch struct {
	items   []testsuite.Item
	queries []*schema.Query
	spans   []span
}

type span struct {
	start, rewrites int
}

func (r *Runner) buildBatch(ctx context.Context, runID string, items []testsuite.Item, rewrites int) *batch {
	b := &batch{items: items}
	for _, item := range items {
		orig := item.Query()
		orig.PassthroughDebug = map[string]string{"run_id": runID, "item_id": item.ID}

		var rws []*schema.Query
		if r.rewriter != nil && rewrites > 0 {
			var err error
			rws, err = r.rewriter.Rewrite(ctx, orig)
			if err != nil {
				slog.Warn("rewrite failed, continuing with original only", "item_id", item.ID, "error", err)
			}
			if len(rws) > rewrites {
				rws = rws[:rewrites]
			}
		}

		b.spans = append(b.spans, span{start: len(b.queries), rewrites: len(rws)})
		b.queries = append(b.queries, orig)
		b.queries = append(b.queries, rws...)
	}
	return b
}

func (b *batch) request() *schema.EnvironmentRequest {
	return &schema.EnvironmentRequest{Queries: b.queries}
}

// failAll stands in for a rejected batch: every query gets err as its error.
func (b *batch) failAll(err error) *schema.EnvironmentResponse {
	resp := &schema.EnvironmentResponse{Responses: make([]*schema.Response, len(b.queries))}
	for i, q := range b.queries {
		resp.Responses[i] = schema.NewErrorResponse(q, err.Error())
	}
	return resp
}

func (b *batch) assemble(responses []*schema.Response, strategy SelectionStrategy) ([]*schema.QAInstance, error) {
	out := make([]*schema.QAInstance, 0, len(b.items))
	for i, item := range b.items {
		s := b.spans[i]
		original := qainstance.Pair(b.queries[s.start], responses[s.start])
		var rewrites []*schema.QueryResponse
		for j := s.start + 1; j <= s.start+s.rewrites; j++ {
			rewrites = append(rewrites, qainstance.Pair(b.queries[j], responses[j]))
		}

		var opts []qainstance.Option
		if fn := strategy.ScoreFunc(item); fn != nil {
			opts = append(opts, qainstance.WithScoreFunc(fn))
		}
		inst, err := qainstance.Assemble(original, rewrites, item.Labels(), opts...)
		if err != nil {
			return nil, err
		}
		out = append(out, inst)
	}
	return out, nil
}
