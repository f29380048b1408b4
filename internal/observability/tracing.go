package observability

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
)

// TraceConfig configures span export.
type TraceConfig struct {
	ServiceName    string
	ServiceVersion string

	// Endpoint is the OTLP gRPC collector address (e.g. "localhost:4317").
	// Tracing is a no-op when empty.
	Endpoint string

	// SamplingRate is the fraction of traces recorded; 0 means 1.0.
	SamplingRate float64

	// Insecure disables TLS towards the collector.
	Insecure bool
}

// Tracer wraps an OpenTelemetry tracer.
type Tracer struct {
	tracer trace.Tracer
}

// NewTracer builds a tracer and a shutdown function that flushes pending
// spans. With an empty endpoint it returns the global (no-op) tracer.
func NewTracer(ctx context.Context, config TraceConfig) (*Tracer, func(context.Context) error, error) {
	if config.ServiceName == "" {
		config.ServiceName = "qa-environment"
	}
	noop := func(context.Context) error { return nil }
	if config.Endpoint == "" {
		return &Tracer{tracer: otel.Tracer(config.ServiceName)}, noop, nil
	}
	if config.SamplingRate == 0 {
		config.SamplingRate = 1.0
	}

	opts := []otlptracegrpc.Option{otlptracegrpc.WithEndpoint(config.Endpoint)}
	if config.Insecure {
		opts = append(opts, otlptracegrpc.WithInsecure())
	}
	exporter, err := otlptracegrpc.New(ctx, opts...)
	if err != nil {
		return nil, noop, fmt.Errorf("failed to create OTLP exporter: %w", err)
	}

	res, err := resource.New(ctx, resource.WithAttributes(
		attribute.String("service.name", config.ServiceName),
		attribute.String("service.version", config.ServiceVersion),
	))
	if err != nil {
		res = resource.Default()
	}

	var sampler sdktrace.Sampler
	switch {
	case config.SamplingRate >= 1.0:
		sampler = sdktrace.AlwaysSample()
	case config.SamplingRate < 0:
		sampler = sdktrace.NeverSample()
	default:
		sampler = sdktrace.TraceIDRatioBased(config.SamplingRate)
	}

	provider := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sdktrace.ParentBased(sampler)),
	)
	otel.SetTracerProvider(provider)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	return &Tracer{tracer: provider.Tracer(config.ServiceName)}, provider.Shutdown, nil
}

// NoopTracer returns a tracer backed by the global provider.
func NoopTracer() *Tracer {
	return &Tracer{tracer: otel.Tracer("qa-environment")}
}

// Start opens a span. A nil *Tracer falls back to the global provider.
func (t *Tracer) Start(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	tr := otel.Tracer("qa-environment")
	if t != nil && t.tracer != nil {
		tr = t.tracer
	}
	return tr.Start(ctx, name, trace.WithAttributes(attrs...))
}

// RecordError marks span as failed.
func RecordError(span trace.Span, err error) {
	if err == nil {
		return
	}
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
}
