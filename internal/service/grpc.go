package service

import (
	"context"
	"log/slog"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/health"
	"google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/status"

	"github.com/giantswarm/qa-environment/internal/observability"
	"github.com/giantswarm/qa-environment/internal/schema"
)

const (
	// ServiceName is the fully qualified gRPC service name.
	ServiceName = "qaenv.EnvironmentServer"
	// GetObservationsMethod is the full method path of GetObservations.
	GetObservationsMethod = "/" + ServiceName + "/GetObservations"
)

// EnvironmentServer is the server API of the environment service.
type EnvironmentServer interface {
	GetObservations(ctx context.Context, req *schema.EnvironmentRequest) (*schema.EnvironmentResponse, error)
}

// ServiceDesc describes the environment service for grpc.Server.
var ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*EnvironmentServer)(nil),
	Methods: []grpc.MethodDesc{
		{
			MethodName: "GetObservations",
			Handler:    getObservationsHandler,
		},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "qaenv/environment",
}

// RegisterEnvironmentServer registers srv with a gRPC server.
func RegisterEnvironmentServer(r grpc.ServiceRegistrar, srv EnvironmentServer) {
	r.RegisterService(&ServiceDesc, srv)
}

func getObservationsHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(schema.EnvironmentRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(EnvironmentServer).GetObservations(ctx, in)
	}
	info := &grpc.UnaryServerInfo{
		Server:     srv,
		FullMethod: GetObservationsMethod,
	}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(EnvironmentServer).GetObservations(ctx, req.(*schema.EnvironmentRequest))
	}
	return interceptor(ctx, in, info, handler)
}

// NewGRPCServer creates a gRPC server with the environment service and the
// standard health service registered.
func NewGRPCServer(srv EnvironmentServer, logger *slog.Logger, metrics *observability.Metrics, opts ...grpc.ServerOption) (*grpc.Server, *health.Server) {
	opts = append([]grpc.ServerOption{
		grpc.ChainUnaryInterceptor(
			loggingInterceptor(logger, metrics),
		),
	}, opts...)
	grpcServer := grpc.NewServer(opts...)
	RegisterEnvironmentServer(grpcServer, srv)

	healthServer := health.NewServer()
	grpc_health_v1.RegisterHealthServer(grpcServer, healthServer)
	healthServer.SetServingStatus(ServiceName, grpc_health_v1.HealthCheckResponse_SERVING)

	return grpcServer, healthServer
}

// loggingInterceptor logs unary RPC calls and counts them by status code.
func loggingInterceptor(logger *slog.Logger, metrics *observability.Metrics) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		start := time.Now()
		logger.Debug("rpc call", "method", info.FullMethod)
		resp, err := handler(ctx, req)
		code := status.Code(err)
		metrics.RequestHandled("grpc", info.FullMethod, code.String())
		if err != nil {
			logger.Log(ctx, errorLevel(code), "rpc error", "method", info.FullMethod, "code", code.String(), "error", err)
		} else {
			logger.Debug("rpc done", "method", info.FullMethod, "duration", time.Since(start))
		}
		return resp, err
	}
}

// errorLevel keeps Error for server-side failures. Client mistakes and
// cancellations are logged at lower levels.
func errorLevel(code codes.Code) slog.Level {
	switch code {
	case codes.InvalidArgument, codes.NotFound, codes.Canceled:
		return slog.LevelDebug
	case codes.DeadlineExceeded, codes.ResourceExhausted:
		return slog.LevelWarn
	default:
		return slog.LevelError
	}
}
