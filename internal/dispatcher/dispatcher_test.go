package dispatcher

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	promtestutil "github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/giantswarm/qa-environment/internal/answerer"
	"github.com/giantswarm/qa-environment/internal/observability"
	"github.com/giantswarm/qa-environment/internal/schema"
	"github.com/giantswarm/qa-environment/internal/testutil"
)

func queries(questions ...string) *schema.EnvironmentRequest {
	req := &schema.EnvironmentRequest{}
	for i, q := range questions {
		req.Queries = append(req.Queries, &schema.Query{
			Question:         q,
			ID:               fmt.Sprintf("id-%d", i),
			PassthroughDebug: map[string]string{"row": fmt.Sprint(i)},
		})
	}
	return req
}

func TestDispatchPreservesLengthAndOrder(t *testing.T) {
	a := &testutil.ScriptedAnswerer{}
	d := New(a, Config{})

	req := queries("q0", "q1", "q2", "q3", "q4")
	resp, err := d.Dispatch(context.Background(), req)
	require.NoError(t, err)
	require.Len(t, resp.Responses, len(req.Queries))

	for i, r := range resp.Responses {
		assert.Equal(t, req.Queries[i].Question, r.Question)
		assert.Equal(t, req.Queries[i].ID, r.ID)
		assert.Equal(t, req.Queries[i].PassthroughDebug, r.PassthroughDebug)
		assert.Equal(t, "answer: "+req.Queries[i].Question, r.Answers[0].Text)
		assert.False(t, r.Failed())
	}
}

func TestDispatchReversedCompletionOrder(t *testing.T) {
	a := &testutil.ScriptedAnswerer{Delay: map[string]time.Duration{
		"first":  60 * time.Millisecond,
		"second": 30 * time.Millisecond,
		"third":  0,
	}}
	d := New(a, Config{Concurrency: 3})

	resp, err := d.Dispatch(context.Background(), queries("first", "second", "third"))
	require.NoError(t, err)

	assert.Equal(t, []string{"third", "second", "first"}, a.CompletionOrder())
	require.Len(t, resp.Responses, 3)
	assert.Equal(t, "first", resp.Responses[0].Question)
	assert.Equal(t, "second", resp.Responses[1].Question)
	assert.Equal(t, "third", resp.Responses[2].Question)
}

func TestDispatchIsolatesFailures(t *testing.T) {
	a := &testutil.ScriptedAnswerer{Fail: map[string]error{"bad": errors.New("model exploded")}}
	d := New(a, Config{})

	req := queries("good", "bad", "also good")
	req.Queries[1].OriginalQuestion = "the original"
	resp, err := d.Dispatch(context.Background(), req)
	require.NoError(t, err)
	require.Len(t, resp.Responses, 3)

	failed := resp.Responses[1]
	assert.Equal(t, "model exploded", failed.ErrorMessage)
	assert.Empty(t, failed.Answers)
	assert.Empty(t, failed.Observations)
	assert.Equal(t, "bad", failed.Question)
	assert.Equal(t, "id-1", failed.ID)
	assert.Equal(t, map[string]string{"row": "1"}, failed.PassthroughDebug)
	assert.Equal(t, "the original", failed.OriginalQuestion)

	for _, i := range []int{0, 2} {
		assert.False(t, resp.Responses[i].Failed())
		assert.NotEmpty(t, resp.Responses[i].Answers)
	}
}

func TestDispatchPassthroughIsCopied(t *testing.T) {
	d := New(&testutil.ScriptedAnswerer{}, Config{})

	req := queries("q")
	resp, err := d.Dispatch(context.Background(), req)
	require.NoError(t, err)

	req.Queries[0].PassthroughDebug["row"] = "changed"
	assert.Equal(t, "0", resp.Responses[0].PassthroughDebug["row"])
}

func TestDispatchAbsentPassthroughStaysAbsent(t *testing.T) {
	d := New(&testutil.ScriptedAnswerer{}, Config{})

	resp, err := d.Dispatch(context.Background(), &schema.EnvironmentRequest{
		Queries: []*schema.Query{{Question: "q"}},
	})
	require.NoError(t, err)
	assert.Nil(t, resp.Responses[0].PassthroughDebug)
	assert.Empty(t, resp.Responses[0].ID)
}

func TestDispatchValidation(t *testing.T) {
	tests := []struct {
		name     string
		req      *schema.EnvironmentRequest
		wantCode schema.ErrorCode
	}{
		{"nil request", nil, schema.NoQueries},
		{"no queries", &schema.EnvironmentRequest{}, schema.NoQueries},
		{"empty question", queries("ok", ""), schema.EmptyQuestion},
		{"whitespace question", queries("  \t"), schema.EmptyQuestion},
		{"nil query", &schema.EnvironmentRequest{Queries: []*schema.Query{{Question: "ok"}, nil}}, schema.EmptyQuestion},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := &testutil.ScriptedAnswerer{}
			d := New(a, Config{})

			resp, err := d.Dispatch(context.Background(), tt.req)
			assert.Nil(t, resp)
			var be *BatchError
			require.ErrorAs(t, err, &be)
			assert.Equal(t, tt.wantCode, be.Code)
			assert.Equal(t, tt.wantCode, CodeOf(err))
			assert.Empty(t, a.CompletionOrder(), "no backend call expected")
		})
	}
}

func TestDispatchIsolateQueryPolicy(t *testing.T) {
	a := &testutil.ScriptedAnswerer{}
	d := New(a, Config{Policy: IsolateQuery})

	req := queries("first", " ", "third")
	resp, err := d.Dispatch(context.Background(), req)
	require.NoError(t, err)
	require.Len(t, resp.Responses, 3)

	assert.Equal(t, "empty question", resp.Responses[1].ErrorMessage)
	assert.Equal(t, "id-1", resp.Responses[1].ID)
	assert.False(t, resp.Responses[0].Failed())
	assert.False(t, resp.Responses[2].Failed())
	assert.ElementsMatch(t, []string{"first", "third"}, a.CompletionOrder())

	_, err = d.Dispatch(context.Background(), &schema.EnvironmentRequest{})
	assert.Equal(t, schema.NoQueries, CodeOf(err))
}

func TestDispatchRespectsConcurrencyBound(t *testing.T) {
	const n = 20
	a := &testutil.ScriptedAnswerer{Delay: map[string]time.Duration{}}
	var qs []string
	for i := range n {
		q := fmt.Sprintf("q%d", i)
		a.Delay[q] = 10 * time.Millisecond
		qs = append(qs, q)
	}
	d := New(a, Config{Concurrency: 3})

	resp, err := d.Dispatch(context.Background(), queries(qs...))
	require.NoError(t, err)
	assert.Len(t, resp.Responses, n)
	assert.LessOrEqual(t, a.MaxInFlight(), 3)
	assert.Greater(t, a.MaxInFlight(), 0)
}

func TestDispatchDefaultConcurrency(t *testing.T) {
	d := New(&testutil.ScriptedAnswerer{}, Config{Concurrency: -1})
	assert.Equal(t, DefaultConcurrency, d.Config().Concurrency)
}

func TestDispatchCancellationReturnsNoResponse(t *testing.T) {
	a := &testutil.ScriptedAnswerer{Delay: map[string]time.Duration{
		"slow": 5 * time.Second,
	}}
	d := New(a, Config{})

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	start := time.Now()
	resp, err := d.Dispatch(ctx, queries("fast", "slow"))
	assert.Nil(t, resp)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Less(t, time.Since(start), 2*time.Second)
}

func TestDispatchUnavailableAbortsBatch(t *testing.T) {
	a := &testutil.ScriptedAnswerer{
		Fail:  map[string]error{"q1": answerer.Unavailable(errors.New("connection refused"))},
		Delay: map[string]time.Duration{"q2": 5 * time.Second},
	}
	d := New(a, Config{})

	start := time.Now()
	resp, err := d.Dispatch(context.Background(), queries("q0", "q1", "q2"))
	assert.Nil(t, resp)
	var be *BatchError
	require.ErrorAs(t, err, &be)
	assert.Equal(t, schema.ScrapeFailed, be.Code)
	assert.ErrorIs(t, err, answerer.ErrUnavailable)
	assert.Less(t, time.Since(start), 2*time.Second)
}

func TestDispatchSkipsQueuedQueriesAfterAbort(t *testing.T) {
	a := &testutil.ScriptedAnswerer{
		Fail: map[string]error{"q0": answerer.Unavailable(errors.New("connection refused"))},
	}
	d := New(a, Config{Concurrency: 1})

	_, err := d.Dispatch(context.Background(), queries("q0", "q1", "q2", "q3"))
	assert.Equal(t, schema.ScrapeFailed, CodeOf(err))
	assert.Equal(t, 1, a.Calls(), "queries waiting for a slot must not reach the backend")
}

func TestDispatchNullQueryUnderIsolateQuery(t *testing.T) {
	var req schema.EnvironmentRequest
	require.NoError(t, json.Unmarshal([]byte(`{"queries":[{"question":"ok","id":"a"},null]}`), &req))
	require.Len(t, req.Queries, 2)

	a := &testutil.ScriptedAnswerer{}
	resp, err := New(a, Config{Policy: IsolateQuery}).Dispatch(context.Background(), &req)
	require.NoError(t, err)
	require.Len(t, resp.Responses, 2)
	assert.Equal(t, "a", resp.Responses[0].ID)
	assert.False(t, resp.Responses[0].Failed())
	assert.True(t, resp.Responses[1].Failed())
	assert.Nil(t, resp.Responses[1].PassthroughDebug)
	assert.Equal(t, 1, a.Calls())

	_, err = New(a, Config{}).Dispatch(context.Background(), &req)
	assert.Equal(t, schema.EmptyQuestion, CodeOf(err))
}

func TestDispatchQueryTimeoutIsPerQuery(t *testing.T) {
	a := &testutil.ScriptedAnswerer{Delay: map[string]time.Duration{"slow": 5 * time.Second}}
	d := New(a, Config{QueryTimeout: 30 * time.Millisecond})

	resp, err := d.Dispatch(context.Background(), queries("fast", "slow"))
	require.NoError(t, err)
	assert.False(t, resp.Responses[0].Failed())
	assert.Contains(t, resp.Responses[1].ErrorMessage, "deadline exceeded")
}

func TestDispatchPanicAndNilResponse(t *testing.T) {
	a := answerer.Func(func(_ context.Context, q *schema.Query) (*schema.Response, error) {
		switch q.Question {
		case "panic":
			panic("boom")
		case "nil":
			return nil, nil
		}
		return &schema.Response{Answers: []schema.Observation{{Text: "ok"}}}, nil
	})
	d := New(a, Config{})

	resp, err := d.Dispatch(context.Background(), queries("panic", "nil", "fine"))
	require.NoError(t, err)
	assert.Contains(t, resp.Responses[0].ErrorMessage, "panicked: boom")
	assert.Equal(t, "answer backend returned no response", resp.Responses[1].ErrorMessage)
	assert.Equal(t, "fine", resp.Responses[2].Question)
	assert.Equal(t, "ok", resp.Responses[2].Answers[0].Text)
}

func TestDispatchForcesIdentityFields(t *testing.T) {
	backendResp := &schema.Response{
		Question:         "rewritten by backend",
		ID:               "wrong",
		PassthroughDebug: map[string]string{"backend": "x"},
	}
	a := answerer.Func(func(context.Context, *schema.Query) (*schema.Response, error) {
		return backendResp, nil
	})
	d := New(a, Config{})

	req := queries("real question")
	req.Queries[0].OriginalQuestion = "real original question"
	resp, err := d.Dispatch(context.Background(), req)
	require.NoError(t, err)

	r := resp.Responses[0]
	assert.Equal(t, "real question", r.Question)
	assert.Equal(t, "id-0", r.ID)
	assert.Equal(t, map[string]string{"row": "0"}, r.PassthroughDebug)
	assert.Equal(t, "real original question", r.OriginalQuestion)
	require.NotNil(t, r.QuestionOriginalSimilarity)
	assert.InDelta(t, 2.0/3.0, *r.QuestionOriginalSimilarity, 1e-9)

	assert.Equal(t, "rewritten by backend", backendResp.Question, "backend response must not be mutated")
}

func TestDispatchKeepsBackendSimilarity(t *testing.T) {
	sim := 0.25
	a := answerer.Func(func(context.Context, *schema.Query) (*schema.Response, error) {
		return &schema.Response{OriginalQuestion: "from backend", QuestionOriginalSimilarity: &sim}, nil
	})
	d := New(a, Config{})

	req := queries("q")
	req.Queries[0].OriginalQuestion = "from query"
	resp, err := d.Dispatch(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, "from backend", resp.Responses[0].OriginalQuestion)
	assert.Equal(t, 0.25, *resp.Responses[0].QuestionOriginalSimilarity)
}

func TestDispatchRecordsMetrics(t *testing.T) {
	m := observability.NewMetrics(prometheus.NewRegistry())
	a := &testutil.ScriptedAnswerer{Fail: map[string]error{"bad": errors.New("x")}}
	d := New(a, Config{Policy: IsolateQuery, Backend: "search"}, WithMetrics(m))

	_, err := d.Dispatch(context.Background(), queries("good", "bad", ""))
	require.NoError(t, err)

	assert.Equal(t, 1.0, promtestutil.ToFloat64(m.QueryCounter.WithLabelValues(observability.OutcomeAnswered)))
	assert.Equal(t, 1.0, promtestutil.ToFloat64(m.QueryCounter.WithLabelValues(observability.OutcomeFailed)))
	assert.Equal(t, 1.0, promtestutil.ToFloat64(m.QueryCounter.WithLabelValues(observability.OutcomeRejected)))
	assert.Equal(t, 0.0, promtestutil.ToFloat64(m.QueriesInFlight))
}

func TestSimilarity(t *testing.T) {
	tests := []struct {
		a, b string
		want float64
	}{
		{"Who wrote Hamlet?", "who wrote hamlet", 1},
		{"a b", "c d", 0},
		{"a b c", "a b d", 0.5},
		{"", "", 0},
	}
	for _, tt := range tests {
		assert.InDelta(t, tt.want, Similarity(tt.a, tt.b), 1e-9, "%q vs %q", tt.a, tt.b)
	}
}

func TestParsePolicy(t *testing.T) {
	p, err := ParsePolicy("")
	require.NoError(t, err)
	assert.Equal(t, RejectBatch, p)

	p, err = ParsePolicy("ISOLATE_QUERY")
	require.NoError(t, err)
	assert.Equal(t, IsolateQuery, p)
	assert.Equal(t, "isolate_query", p.String())

	_, err = ParsePolicy("ignore")
	assert.Error(t, err)
}
