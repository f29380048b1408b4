// Package service is the front door of the environment: it exposes
// GetObservations over gRPC, turns batch failures into status errors that
// carry an ErrorCode, and provides a matching client.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/giantswarm/qa-environment/internal/answerer"
	"github.com/giantswarm/qa-environment/internal/dispatcher"
	"github.com/giantswarm/qa-environment/internal/observability"
	"github.com/giantswarm/qa-environment/internal/schema"
)

// Service implements EnvironmentServer on top of a Dispatcher.
type Service struct {
	dispatcher *dispatcher.Dispatcher
	logger     *slog.Logger
	metrics    *observability.Metrics
}

// Option configures a Service.
type Option func(*Service)

// WithLogger sets the logger (default slog.Default()).
func WithLogger(l *slog.Logger) Option {
	return func(s *Service) { s.logger = l }
}

// WithMetrics records per-batch metrics.
func WithMetrics(m *observability.Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

// New creates a Service.
func New(d *dispatcher.Dispatcher, opts ...Option) *Service {
	s := &Service{dispatcher: d, logger: slog.Default()}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// GetObservations validates req, checks the backend when it supports health
// checks, and returns the dispatcher's response unchanged. Errors are gRPC
// status errors; use ErrorCodeOf to read the batch error code.
func (s *Service) GetObservations(ctx context.Context, req *schema.EnvironmentRequest) (*schema.EnvironmentResponse, error) {
	resp, err := s.observe(ctx, req)
	s.metrics.BatchFinished(batchLabel(err))
	if err != nil {
		s.logger.Debug("batch rejected", "error", err)
		return nil, toStatus(err)
	}
	return resp, nil
}

func (s *Service) observe(ctx context.Context, req *schema.EnvironmentRequest) (*schema.EnvironmentResponse, error) {
	if err := s.dispatcher.Validate(req); err != nil {
		return nil, err
	}
	if hc, ok := s.dispatcher.Answerer().(answerer.HealthChecker); ok {
		if err := hc.Check(ctx); err != nil {
			return nil, &dispatcher.BatchError{
				Code:    schema.ScrapeFailed,
				Message: fmt.Sprintf("answer backend health check failed: %v", err),
				Err:     err,
			}
		}
	}
	return s.dispatcher.Dispatch(ctx, req)
}

func batchLabel(err error) string {
	switch {
	case err == nil:
		return schema.NoError.String()
	case errors.Is(err, context.Canceled):
		return "CANCELED"
	case errors.Is(err, context.DeadlineExceeded):
		return "DEADLINE_EXCEEDED"
	}
	if code := dispatcher.CodeOf(err); code != schema.NoError {
		return code.String()
	}
	return "INTERNAL"
}
