package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	mcpserver "github.com/mark3labs/mcp-go/server"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/giantswarm/qa-environment/internal/answerer"
	"github.com/giantswarm/qa-environment/internal/config"
	"github.com/giantswarm/qa-environment/internal/kserve"
	"github.com/giantswarm/qa-environment/internal/llm"
	mcptools "github.com/giantswarm/qa-environment/internal/mcp"
	"github.com/giantswarm/qa-environment/internal/observability"
	"github.com/giantswarm/qa-environment/internal/server"
	"github.com/giantswarm/qa-environment/internal/service"
)

const (
	transportGRPC  = "grpc"
	transportStdio = "stdio"
)

func newServeCmd() *cobra.Command {
	var (
		env           envFlags
		transport     string
		grpcAddr      string
		httpAddr      string
		httpEndpoint  string
		inCluster     bool
		kserveBackend string
		outputDir     string
		suitesDir     string
		traceEndpoint string

		enableOAuth     bool
		oauthBaseURL    string
		oauthProvider   string
		dexIssuerURL    string
		dexClientID     string
		dexClientSecret string
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the QA environment server",
		Long: `Start the QA environment.

Supports two transports:
  - grpc: the EnvironmentServer gRPC service plus an HTTP server with
    /healthz, /metrics, POST /v1/observations and the MCP endpoint (default)
  - stdio: the MCP tools over standard input/output (for IDE integration)

With --kserve-backend the llm backend endpoint is taken from a KServe
InferenceService, waiting for it to become ready. OAuth 2.1 can protect the
MCP endpoint of the HTTP server.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd, &env)
			if err != nil {
				return err
			}
			fs := cmd.Flags()
			if fs.Changed("grpc-addr") {
				cfg.Server.GRPCAddr = grpcAddr
			}
			if fs.Changed("http-addr") {
				cfg.Server.HTTPAddr = httpAddr
			}
			if fs.Changed("tracing-endpoint") {
				cfg.Tracing.Endpoint = traceEndpoint
			}

			logger, err := observability.SetupLogging(os.Stderr, observability.LogConfig{
				Format: cfg.Logging.Format,
				Debug:  cfg.Logging.Debug,
			})
			if err != nil {
				return err
			}

			parent := cmd.Context()
			if parent == nil {
				// Invoked directly by the root command.
				parent = context.Background()
			}
			ctx, cancel := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
			defer cancel()

			tracer, shutdownTracing, err := observability.NewTracer(ctx, observability.TraceConfig{
				ServiceName:    "qa-environment",
				ServiceVersion: rootCmd.Version,
				Endpoint:       cfg.Tracing.Endpoint,
				SamplingRate:   cfg.Tracing.SamplingRate,
				Insecure:       cfg.Tracing.Insecure,
			})
			if err != nil {
				return fmt.Errorf("failed to set up tracing: %w", err)
			}
			defer func() {
				flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				if err := shutdownTracing(flushCtx); err != nil {
					logger.Warn("failed to flush traces", "error", err)
				}
			}()

			reg := prometheus.NewRegistry()
			reg.MustRegister(
				collectors.NewGoCollector(),
				collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
			)
			metrics := observability.NewMetrics(reg)

			namespace, _ := fs.GetString("namespace")
			kubeconfig, _ := fs.GetString("kubeconfig")
			discovery, err := kserve.NewDiscovery(namespace, kubeconfig, inCluster)
			if err != nil {
				logger.Warn("KServe discovery not available", "error", err)
			}

			if kserveBackend != "" {
				if discovery == nil {
					return fmt.Errorf("--kserve-backend requires access to a Kubernetes cluster")
				}
				b, err := discovery.WaitForReady(ctx, kserveBackend, kserve.DefaultReadyTimeout)
				if err != nil {
					return err
				}
				cfg.Answerer.Backend = answerer.BackendLLM
				cfg.LLM.Endpoint = b.EndpointURL
				logger.Info("using KServe backend", "name", b.Name, "endpoint", b.EndpointURL)
			}

			svc, err := newEnvironment(cfg, envDeps{logger: logger, metrics: metrics, tracer: tracer})
			if err != nil {
				return err
			}

			sc := &server.ServerContext{
				Environment: svc,
				Discovery:   discovery,
				LLMClient:   newLLMClientFromFlags(cfg.LLM.Endpoint, cfg.LLM.APIKey, "", llm.WithTimeout(cfg.LLM.Timeout)),
				OutputDir:   outputDir,
				SuitesDir:   suitesDir,
			}

			mcpSrv := mcpserver.NewMCPServer("qa-environment", rootCmd.Version,
				mcpserver.WithToolCapabilities(true),
			)
			if err := mcptools.RegisterTools(mcpSrv, sc); err != nil {
				return fmt.Errorf("failed to register MCP tools: %w", err)
			}

			if transport == transportStdio {
				return runStdioServer(mcpSrv)
			}
			if transport != transportGRPC {
				return fmt.Errorf("unsupported transport: %s (supported: grpc, stdio)", transport)
			}

			var oauthCfg *server.OAuthConfig
			if enableOAuth {
				oauthCfg = &server.OAuthConfig{
					BaseURL:         oauthBaseURL,
					Provider:        oauthProvider,
					DexIssuerURL:    envOr(dexIssuerURL, "DEX_ISSUER_URL"),
					DexClientID:     envOr(dexClientID, "DEX_CLIENT_ID"),
					DexClientSecret: envOr(dexClientSecret, "DEX_CLIENT_SECRET"),
				}
			}

			return runServers(ctx, cfg, svc, serverDeps{
				sc:          sc,
				mcpServer:   mcpSrv,
				mcpEndpoint: httpEndpoint,
				oauth:       oauthCfg,
				registry:    reg,
				metrics:     metrics,
				logger:      logger,
			})
		},
	}

	env.register(cmd)
	cmd.Flags().StringVar(&transport, "transport", transportGRPC, "Transport type: grpc or stdio")
	cmd.Flags().StringVar(&grpcAddr, "grpc-addr", ":50051", "gRPC listen address")
	cmd.Flags().StringVar(&httpAddr, "http-addr", ":8080", `HTTP listen address ("-" disables the HTTP server)`)
	cmd.Flags().StringVar(&httpEndpoint, "http-endpoint", server.DefaultMCPEndpoint, "MCP endpoint path on the HTTP server")
	cmd.Flags().BoolVar(&inCluster, "in-cluster", false, "Use in-cluster Kubernetes authentication")
	cmd.Flags().StringVar(&kserveBackend, "kserve-backend", "", "InferenceService serving the llm backend")
	cmd.Flags().StringVar(&outputDir, "output-dir", "results", "Directory for evaluation runs started over MCP")
	cmd.Flags().StringVar(&suitesDir, "suites-dir", "", "External datasets directory (optional)")
	cmd.Flags().StringVar(&traceEndpoint, "tracing-endpoint", "", "OTLP gRPC collector address (tracing disabled when empty)")

	cmd.Flags().BoolVar(&enableOAuth, "enable-oauth", false, "Protect the MCP endpoint with OAuth 2.1")
	cmd.Flags().StringVar(&oauthBaseURL, "oauth-base-url", "", "OAuth base URL (e.g. https://qa.example.com)")
	cmd.Flags().StringVar(&oauthProvider, "oauth-provider", server.OAuthProviderDex, "OAuth provider: dex")
	cmd.Flags().StringVar(&dexIssuerURL, "dex-issuer-url", "", "Dex OIDC issuer URL (or set DEX_ISSUER_URL)")
	cmd.Flags().StringVar(&dexClientID, "dex-client-id", "", "Dex OAuth client ID (or set DEX_CLIENT_ID)")
	cmd.Flags().StringVar(&dexClientSecret, "dex-client-secret", "", "Dex OAuth client secret (or set DEX_CLIENT_SECRET)")

	return cmd
}

func envOr(value, key string) string {
	if value != "" {
		return value
	}
	return os.Getenv(key)
}

func runStdioServer(mcpSrv *mcpserver.MCPServer) error {
	if err := mcpserver.ServeStdio(mcpSrv); err != nil {
		return fmt.Errorf("server stopped with error: %w", err)
	}
	return nil
}

type serverDeps struct {
	sc          *server.ServerContext
	mcpServer   *mcpserver.MCPServer
	mcpEndpoint string
	oauth       *server.OAuthConfig
	registry    *prometheus.Registry
	metrics     *observability.Metrics
	logger      *slog.Logger
}

// runServers serves gRPC and HTTP until ctx ends or one of them fails, then
// shuts both down.
func runServers(ctx context.Context, cfg *config.Config, svc *service.Service, deps serverDeps) error {
	grpcSrv, health := service.NewGRPCServer(svc, deps.logger, deps.metrics)
	lis, err := net.Listen("tcp", cfg.Server.GRPCAddr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", cfg.Server.GRPCAddr, err)
	}

	var httpSrv *server.HTTPServer
	if cfg.Server.HTTPAddr != "-" {
		httpSrv, err = server.NewHTTPServer(deps.sc, server.HTTPConfig{
			Addr:        cfg.Server.HTTPAddr,
			MCPServer:   deps.mcpServer,
			MCPEndpoint: deps.mcpEndpoint,
			OAuth:       deps.oauth,
			Gatherer:    deps.registry,
			Metrics:     deps.metrics,
			Logger:      deps.logger,
		})
		if err != nil {
			_ = lis.Close()
			return fmt.Errorf("failed to create HTTP server: %w", err)
		}
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		deps.logger.Info("gRPC server listening", "addr", lis.Addr().String(), "service", service.ServiceName)
		return grpcSrv.Serve(lis)
	})

	if httpSrv != nil {
		g.Go(func() error {
			deps.logger.Info("HTTP server listening",
				"addr", cfg.Server.HTTPAddr,
				"observations", server.ObservationsPath,
				"mcp", deps.mcpEndpoint,
				"oauth", deps.oauth != nil,
			)
			return httpSrv.Start()
		})
	}

	g.Go(func() error {
		<-gctx.Done()
		deps.logger.Info("shutting down")
		health.Shutdown()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()

		var shutdownErr error
		if httpSrv != nil {
			if err := httpSrv.Shutdown(shutdownCtx); err != nil {
				shutdownErr = fmt.Errorf("error shutting down HTTP server: %w", err)
			}
		}

		stopped := make(chan struct{})
		go func() {
			grpcSrv.GracefulStop()
			close(stopped)
		}()
		select {
		case <-stopped:
		case <-shutdownCtx.Done():
			grpcSrv.Stop()
		}
		return shutdownErr
	})

	if err := g.Wait(); err != nil {
		return err
	}
	deps.logger.Info("server stopped")
	return nil
}
