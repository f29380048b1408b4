package service

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"net"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	promtestutil "github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"

	"github.com/giantswarm/qa-environment/internal/answerer"
	"github.com/giantswarm/qa-environment/internal/dispatcher"
	"github.com/giantswarm/qa-environment/internal/observability"
	"github.com/giantswarm/qa-environment/internal/schema"
	"github.com/giantswarm/qa-environment/internal/testutil"
)

type checkedAnswerer struct {
	testutil.ScriptedAnswerer
	checkErr error
	checks   int
}

func (c *checkedAnswerer) Check(context.Context) error {
	c.checks++
	return c.checkErr
}

func newService(a answerer.Answerer, config dispatcher.Config) *Service {
	return New(dispatcher.New(a, config))
}

func request(questions ...string) *schema.EnvironmentRequest {
	req := &schema.EnvironmentRequest{}
	for _, q := range questions {
		req.Queries = append(req.Queries, &schema.Query{Question: q, ID: "id-" + q})
	}
	return req
}

func TestGetObservationsErrorCodes(t *testing.T) {
	tests := []struct {
		name      string
		req       *schema.EnvironmentRequest
		checkErr  error
		wantCode  schema.ErrorCode
		wantGRPC  codes.Code
		wantCheck bool
	}{
		{"nil request", nil, nil, schema.NoQueries, codes.InvalidArgument, false},
		{"no queries", &schema.EnvironmentRequest{}, nil, schema.NoQueries, codes.InvalidArgument, false},
		{"empty question", request("ok", ""), nil, schema.EmptyQuestion, codes.InvalidArgument, false},
		{"backend down", request("ok"), errors.New("connection refused"), schema.ScrapeFailed, codes.Unavailable, true},
		{"ok", request("ok"), nil, schema.NoError, codes.OK, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := &checkedAnswerer{checkErr: tt.checkErr}
			svc := newService(a, dispatcher.Config{})

			resp, err := svc.GetObservations(context.Background(), tt.req)
			assert.Equal(t, tt.wantCode, ErrorCodeOf(err))
			assert.Equal(t, tt.wantGRPC, status.Code(err))
			assert.Equal(t, tt.wantCheck, a.checks > 0)
			if tt.wantCode == schema.NoError {
				require.NoError(t, err)
				assert.Len(t, resp.Responses, len(tt.req.Queries))
			} else {
				assert.Nil(t, resp)
			}
		})
	}
}

func TestGetObservationsUnavailableDuringDispatch(t *testing.T) {
	a := &testutil.ScriptedAnswerer{Fail: map[string]error{
		"q": answerer.Unavailable(errors.New("no route to host")),
	}}
	svc := newService(a, dispatcher.Config{})

	_, err := svc.GetObservations(context.Background(), request("q"))
	assert.Equal(t, schema.ScrapeFailed, ErrorCodeOf(err))
	assert.Equal(t, codes.Unavailable, status.Code(err))
}

func TestGetObservationsCancellation(t *testing.T) {
	a := &testutil.ScriptedAnswerer{Delay: map[string]time.Duration{"q": 5 * time.Second}}
	svc := newService(a, dispatcher.Config{})

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()
	resp, err := svc.GetObservations(ctx, request("q"))
	assert.Nil(t, resp)
	assert.Equal(t, codes.Canceled, status.Code(err))
	assert.Equal(t, schema.NoError, ErrorCodeOf(err))
}

func TestGetObservationsRecordsBatchMetrics(t *testing.T) {
	m := observability.NewMetrics(prometheus.NewRegistry())
	svc := New(dispatcher.New(&testutil.ScriptedAnswerer{}, dispatcher.Config{}), WithMetrics(m))

	_, err := svc.GetObservations(context.Background(), request("a", "b"))
	require.NoError(t, err)
	_, err = svc.GetObservations(context.Background(), &schema.EnvironmentRequest{})
	require.Error(t, err)

	assert.Equal(t, 1.0, promtestutil.ToFloat64(m.BatchCounter.WithLabelValues("NO_ERROR")))
	assert.Equal(t, 1.0, promtestutil.ToFloat64(m.BatchCounter.WithLabelValues("NO_QUERIES")))
}

func TestErrorCodeOf(t *testing.T) {
	assert.Equal(t, schema.NoError, ErrorCodeOf(nil))
	assert.Equal(t, schema.NoError, ErrorCodeOf(errors.New("plain")))
	assert.Equal(t, schema.NoError, ErrorCodeOf(status.Error(codes.Unavailable, "transport")))
	assert.Equal(t, schema.EmptyQuestion, ErrorCodeOf(&dispatcher.BatchError{Code: schema.EmptyQuestion}))
	assert.Equal(t, schema.EmptyQuestion, ErrorCodeOf(toStatus(&dispatcher.BatchError{Code: schema.EmptyQuestion})))

	wrapped := toStatus(&dispatcher.BatchError{
		Code: schema.ScrapeFailed,
		Err:  status.Error(codes.Internal, "remote"),
	})
	assert.Equal(t, codes.Unavailable, status.Code(wrapped))
}

func startBufconn(t *testing.T, srv EnvironmentServer) *grpc.ClientConn {
	t.Helper()
	lis := bufconn.Listen(1 << 20)
	grpcServer, _ := NewGRPCServer(srv, slog.Default(), nil)
	go func() { _ = grpcServer.Serve(lis) }()
	t.Cleanup(grpcServer.Stop)

	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
			return lis.DialContext(ctx)
		}),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func TestGRPCRoundTrip(t *testing.T) {
	a := answerer.Func(func(_ context.Context, q *schema.Query) (*schema.Response, error) {
		if q.Question == "broken" {
			return nil, errors.New("backend error")
		}
		obs := schema.Observation{Text: "Paris", Scores: map[string]float64{"confidence": 0.9}}
		if err := obs.SetExtension("span", map[string]any{"start": 3, "end": 8}); err != nil {
			return nil, err
		}
		return &schema.Response{Answers: []schema.Observation{obs}}, nil
	})
	client := NewClient(startBufconn(t, newService(a, dispatcher.Config{})))

	req := &schema.EnvironmentRequest{Queries: []*schema.Query{
		{Question: "capital of France?", ID: "a", PassthroughDebug: map[string]string{"k": "v"}},
		{Question: "broken", ID: "b"},
	}}
	resp, err := client.GetObservations(context.Background(), req)
	require.NoError(t, err)
	require.Len(t, resp.Responses, 2)

	first := resp.Responses[0]
	assert.Equal(t, "a", first.ID)
	assert.Equal(t, map[string]string{"k": "v"}, first.PassthroughDebug)
	require.Len(t, first.Answers, 1)
	assert.Equal(t, "Paris", first.Answers[0].Text)
	assert.Equal(t, 0.9, first.Answers[0].Scores["confidence"])
	span, ok := first.Answers[0].Extension("span")
	require.True(t, ok)
	assert.Equal(t, map[string]any{"start": 3.0, "end": 8.0}, span)

	assert.Equal(t, "b", resp.Responses[1].ID)
	assert.Equal(t, "backend error", resp.Responses[1].ErrorMessage)
}

func TestGRPCErrorCodeCrossesTheWire(t *testing.T) {
	client := NewClient(startBufconn(t, newService(&testutil.ScriptedAnswerer{}, dispatcher.Config{})))

	_, err := client.GetObservations(context.Background(), &schema.EnvironmentRequest{})
	require.Error(t, err)
	assert.Equal(t, codes.InvalidArgument, status.Code(err))
	assert.Equal(t, schema.NoQueries, ErrorCodeOf(err))

	_, err = client.GetObservations(context.Background(), request("fine", "  "))
	assert.Equal(t, schema.EmptyQuestion, ErrorCodeOf(err))
}

func TestGRPCScrapeFailedWrapsBackendStatus(t *testing.T) {
	a := answerer.Func(func(context.Context, *schema.Query) (*schema.Response, error) {
		return nil, answerer.Unavailable(status.Error(codes.Internal, "index shard down"))
	})
	client := NewClient(startBufconn(t, newService(a, dispatcher.Config{})))

	_, err := client.GetObservations(context.Background(), request("who?"))
	require.Error(t, err)
	assert.Equal(t, codes.Unavailable, status.Code(err))
	assert.Equal(t, schema.ScrapeFailed, ErrorCodeOf(err))
	assert.Contains(t, status.Convert(err).Message(), "index shard down")
}

func TestErrorLevel(t *testing.T) {
	tests := []struct {
		code codes.Code
		want slog.Level
	}{
		{codes.InvalidArgument, slog.LevelDebug},
		{codes.Canceled, slog.LevelDebug},
		{codes.DeadlineExceeded, slog.LevelWarn},
		{codes.Unavailable, slog.LevelError},
		{codes.Internal, slog.LevelError},
		{codes.Unknown, slog.LevelError},
	}
	for _, tt := range tests {
		t.Run(tt.code.String(), func(t *testing.T) {
			assert.Equal(t, tt.want, errorLevel(tt.code))
		})
	}
}

func TestLoggingInterceptorLevels(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelInfo}))
	intercept := loggingInterceptor(logger, nil)
	info := &grpc.UnaryServerInfo{FullMethod: GetObservationsMethod}

	_, _ = intercept(context.Background(), nil, info, func(context.Context, any) (any, error) {
		return nil, toStatus(&dispatcher.BatchError{Code: schema.NoQueries})
	})
	assert.Empty(t, buf.String(), "client errors stay below info")

	_, _ = intercept(context.Background(), nil, info, func(context.Context, any) (any, error) {
		return nil, toStatus(errors.New("boom"))
	})
	assert.Contains(t, buf.String(), "level=ERROR")
	assert.Contains(t, buf.String(), "code=Internal")
}

func TestGRPCHealthService(t *testing.T) {
	conn := startBufconn(t, newService(&testutil.ScriptedAnswerer{}, dispatcher.Config{}))

	resp, err := grpc_health_v1.NewHealthClient(conn).Check(context.Background(), &grpc_health_v1.HealthCheckRequest{Service: ServiceName})
	require.NoError(t, err)
	assert.Equal(t, grpc_health_v1.HealthCheckResponse_SERVING, resp.GetStatus())
}
