// Package dispatcher fans a batch of queries out to an answer backend and
// reassembles the results in input order.
//
// Every query is answered independently. A failing query produces a response
// carrying an error message at its own index and never disturbs its
// neighbours. Only request-shape violations, backend-wide unavailability and
// cancellation of the call itself abort a batch.
package dispatcher

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/errgroup"

	"github.com/giantswarm/qa-environment/internal/answerer"
	"github.com/giantswarm/qa-environment/internal/observability"
	"github.com/giantswarm/qa-environment/internal/schema"
)

// DefaultConcurrency bounds in-flight backend calls per batch.
const DefaultConcurrency = 8

// Config tunes a Dispatcher.
type Config struct {
	// Concurrency is the maximum number of concurrent backend calls per
	// batch. Values <= 0 select DefaultConcurrency.
	Concurrency int
	// QueryTimeout bounds a single backend call; zero disables it. Expiry is
	// a per-query failure.
	QueryTimeout time.Duration
	Policy       ValidationPolicy
	// Backend labels metrics and spans.
	Backend string
}

// Dispatcher runs batches against one shared Answerer.
type Dispatcher struct {
	answerer answerer.Answerer
	config   Config
	logger   *slog.Logger
	metrics  *observability.Metrics
	tracer   *observability.Tracer
}

// Option configures optional Dispatcher collaborators.
type Option func(*Dispatcher)

// WithLogger sets the logger (default slog.Default()).
func WithLogger(l *slog.Logger) Option {
	return func(d *Dispatcher) { d.logger = l }
}

// WithMetrics records query metrics.
func WithMetrics(m *observability.Metrics) Option {
	return func(d *Dispatcher) { d.metrics = m }
}

// WithTracer emits a span per batch and per query.
func WithTracer(t *observability.Tracer) Option {
	return func(d *Dispatcher) { d.tracer = t }
}

// New creates a Dispatcher. The Answerer must be safe for concurrent use.
func New(a answerer.Answerer, config Config, opts ...Option) *Dispatcher {
	if config.Concurrency <= 0 {
		config.Concurrency = DefaultConcurrency
	}
	if config.Backend == "" {
		config.Backend = "default"
	}
	d := &Dispatcher{answerer: a, config: config, logger: slog.Default()}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Config returns the effective configuration.
func (d *Dispatcher) Config() Config {
	return d.config
}

// Answerer returns the backend this dispatcher drives.
func (d *Dispatcher) Answerer() answerer.Answerer {
	return d.answerer
}

// Dispatch answers every query of req and returns one response per query in
// input order. It returns a *BatchError for request violations and backend
// unavailability, and the context error when ctx ends before all queries
// complete. No partial response is returned alongside an error.
func (d *Dispatcher) Dispatch(ctx context.Context, req *schema.EnvironmentRequest) (*schema.EnvironmentResponse, error) {
	if err := d.Validate(req); err != nil {
		return nil, err
	}

	n := len(req.Queries)
	ctx, span := d.tracer.Start(ctx, "dispatcher.Dispatch",
		attribute.Int("qaenv.queries", n),
		attribute.String("qaenv.backend", d.config.Backend),
	)
	defer span.End()

	d.metrics.BatchStarted(n)
	d.logger.Debug("dispatching batch", "queries", n, "concurrency", d.config.Concurrency)

	responses := make([]*schema.Response, n)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(d.config.Concurrency)

	for i, q := range req.Queries {
		if schema.IsEmptyQuestion(q) {
			responses[i] = schema.NewErrorResponse(q, "empty question")
			d.metrics.QueryRejected(1)
			continue
		}
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			resp, err := d.answerOne(ctx, gctx, i, q)
			if err != nil {
				return err
			}
			responses[i] = resp
			return nil
		})
	}
	err := g.Wait()

	if ctxErr := ctx.Err(); ctxErr != nil {
		observability.RecordError(span, ctxErr)
		return nil, ctxErr
	}
	if err != nil {
		observability.RecordError(span, err)
		if errors.Is(err, answerer.ErrUnavailable) {
			d.logger.Warn("answer backend unavailable, aborting batch", "error", err)
			return nil, &BatchError{Code: schema.ScrapeFailed, Message: err.Error(), Err: err}
		}
		return nil, err
	}

	return &schema.EnvironmentResponse{Responses: responses}, nil
}

// Validate applies the batch-level request checks under the configured
// policy. It returns a *BatchError or nil.
func (d *Dispatcher) Validate(req *schema.EnvironmentRequest) error {
	v := schema.Validate(req)
	if v == nil {
		return nil
	}
	if v.Code == schema.EmptyQuestion && d.config.Policy == IsolateQuery {
		return nil
	}
	return newViolationError(v)
}

// answerOne returns a response for q, or an error only when the whole batch
// must stop: backend unavailability or cancellation of the batch.
func (d *Dispatcher) answerOne(parent, ctx context.Context, i int, q *schema.Query) (*schema.Response, error) {
	// The batch may have been aborted while this query waited for a slot.
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	ctx, span := d.tracer.Start(ctx, "dispatcher.answer",
		attribute.Int("qaenv.index", i),
		attribute.String("qaenv.query_id", q.ID),
	)
	defer span.End()

	if d.config.QueryTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d.config.QueryTimeout)
		defer cancel()
	}

	done := d.metrics.QueryStarted(d.config.Backend)
	resp, err := d.call(ctx, q)
	if err == nil && resp == nil {
		err = errors.New("answer backend returned no response")
	}
	if err != nil {
		done(observability.OutcomeFailed)
		observability.RecordError(span, err)
		if errors.Is(err, answerer.ErrUnavailable) {
			return nil, err
		}
		if ctxErr := parent.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		d.logger.Warn("query failed", "index", i, "id", q.ID, "error", err)
		return schema.NewErrorResponse(q, err.Error()), nil
	}

	done(observability.OutcomeAnswered)
	return finalize(q, resp), nil
}

func (d *Dispatcher) call(ctx context.Context, q *schema.Query) (resp *schema.Response, err error) {
	defer func() {
		if r := recover(); r != nil {
			resp, err = nil, fmt.Errorf("answer backend panicked: %v", r)
		}
	}()
	return d.answerer.Answer(ctx, q)
}

// finalize copies resp and forces the identity fields back to the query's.
func finalize(q *schema.Query, resp *schema.Response) *schema.Response {
	out := *resp
	out.Question = q.Question
	out.ID = q.ID
	out.PassthroughDebug = schema.CloneDebug(q.PassthroughDebug)
	if out.OriginalQuestion == "" {
		out.OriginalQuestion = q.OriginalQuestion
	}
	if out.QuestionOriginalSimilarity == nil && q.OriginalQuestion != "" {
		sim := Similarity(q.Question, q.OriginalQuestion)
		out.QuestionOriginalSimilarity = &sim
	}
	return &out
}
