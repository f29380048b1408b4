// Package server hosts the HTTP side of the environment: health and metrics
// endpoints, a JSON rendition of GetObservations and the MCP endpoint.
package server

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"time"

	mcpserver "github.com/mark3labs/mcp-go/server"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/giantswarm/qa-environment/internal/observability"
)

const (
	// DefaultMCPEndpoint is where the MCP server is mounted.
	DefaultMCPEndpoint = "/mcp"
	// ObservationsPath serves POST requests carrying an EnvironmentRequest.
	ObservationsPath = "/v1/observations"

	defaultReadHeaderTimeout = 10 * time.Second
	defaultWriteTimeout      = 120 * time.Second
	defaultIdleTimeout       = 120 * time.Second
)

// HTTPConfig configures the HTTP server. Every collaborator is optional;
// routes whose collaborator is missing are not registered.
type HTTPConfig struct {
	Addr        string
	MCPServer   *mcpserver.MCPServer
	MCPEndpoint string
	// OAuth, when set, puts the MCP endpoint behind OAuth 2.1.
	OAuth    *OAuthConfig
	Gatherer prometheus.Gatherer
	Metrics  *observability.Metrics
	Logger   *slog.Logger
}

// HTTPServer serves the environment over HTTP.
type HTTPServer struct {
	httpServer *http.Server
	oauth      *oauthGuard
}

// NewHTTPServer builds the HTTP server for sc.
func NewHTTPServer(sc *ServerContext, cfg HTTPConfig) (*HTTPServer, error) {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.MCPEndpoint == "" {
		cfg.MCPEndpoint = DefaultMCPEndpoint
	}

	s := &HTTPServer{}
	mux := http.NewServeMux()

	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	if cfg.Gatherer != nil {
		mux.Handle("GET /metrics", promhttp.HandlerFor(cfg.Gatherer, promhttp.HandlerOpts{}))
	}

	if sc != nil && sc.Environment != nil {
		mux.Handle("POST "+ObservationsPath, &observationsHandler{
			env:     sc.Environment,
			logger:  cfg.Logger,
			metrics: cfg.Metrics,
		})
	}

	if cfg.MCPServer != nil {
		var mcpHandler http.Handler = mcpserver.NewStreamableHTTPServer(cfg.MCPServer,
			mcpserver.WithEndpointPath(cfg.MCPEndpoint),
		)
		if cfg.OAuth != nil {
			guard, err := newOAuthGuard(*cfg.OAuth, cfg.Logger)
			if err != nil {
				return nil, err
			}
			guard.register(mux, cfg.MCPEndpoint)
			mcpHandler = guard.protect(mcpHandler)
			s.oauth = guard
		}
		mux.Handle(cfg.MCPEndpoint, mcpHandler)
	}

	s.httpServer = &http.Server{
		Addr:              cfg.Addr,
		Handler:           mux,
		ReadHeaderTimeout: defaultReadHeaderTimeout,
		WriteTimeout:      defaultWriteTimeout,
		IdleTimeout:       defaultIdleTimeout,
	}
	return s, nil
}

// Handler returns the root handler.
func (s *HTTPServer) Handler() http.Handler {
	return s.httpServer.Handler
}

// Start listens on the configured address. It returns nil after Shutdown.
func (s *HTTPServer) Start() error {
	return ignoreClosed(s.httpServer.ListenAndServe())
}

// Serve accepts connections on l. It returns nil after Shutdown.
func (s *HTTPServer) Serve(l net.Listener) error {
	return ignoreClosed(s.httpServer.Serve(l))
}

// Shutdown gracefully shuts down the server.
func (s *HTTPServer) Shutdown(ctx context.Context) error {
	if s.oauth != nil {
		if err := s.oauth.server.Shutdown(ctx); err != nil {
			slog.Error("failed to shutdown OAuth server", "error", err)
		}
	}
	return s.httpServer.Shutdown(ctx)
}

func ignoreClosed(err error) error {
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}
