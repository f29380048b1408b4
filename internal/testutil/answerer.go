package testutil

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/giantswarm/qa-environment/internal/schema"
)

// ScriptedAnswerer answers every query with "answer: <question>" unless a
// per-question failure or delay is configured. It records concurrency so
// tests can assert on the fan-out bound.
type ScriptedAnswerer struct {
	// Fail maps question text to the error returned for it.
	Fail map[string]error
	// Delay maps question text to an artificial latency.
	Delay map[string]time.Duration
	// Score is attached to every answer under the "score" name when non-nil.
	Score map[string]float64

	calls       atomic.Int32
	inFlight    atomic.Int32
	maxInFlight atomic.Int32

	mu    sync.Mutex
	order []string
}

// Answer implements answerer.Answerer.
func (a *ScriptedAnswerer) Answer(ctx context.Context, q *schema.Query) (*schema.Response, error) {
	a.calls.Add(1)
	n := a.inFlight.Add(1)
	defer a.inFlight.Add(-1)
	for {
		peak := a.maxInFlight.Load()
		if n <= peak || a.maxInFlight.CompareAndSwap(peak, n) {
			break
		}
	}

	if d := a.Delay[q.Question]; d > 0 {
		select {
		case <-time.After(d):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	a.mu.Lock()
	a.order = append(a.order, q.Question)
	a.mu.Unlock()

	if err := a.Fail[q.Question]; err != nil {
		return nil, err
	}

	answer := schema.Observation{Text: fmt.Sprintf("answer: %s", q.Question)}
	if s, ok := a.Score[q.Question]; ok {
		answer.Scores = map[string]float64{"score": s}
	}
	return &schema.Response{
		Question: q.Question,
		Answers:  []schema.Observation{answer},
		Observations: map[string]schema.Observation{
			"echo": {Text: q.Question},
		},
	}, nil
}

// Calls returns how many times Answer was invoked.
func (a *ScriptedAnswerer) Calls() int {
	return int(a.calls.Load())
}

// MaxInFlight returns the highest number of concurrent Answer calls seen.
func (a *ScriptedAnswerer) MaxInFlight() int {
	return int(a.maxInFlight.Load())
}

// CompletionOrder returns questions in the order their calls completed.
func (a *ScriptedAnswerer) CompletionOrder() []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]string(nil), a.order...)
}
