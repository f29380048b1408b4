package cmd

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/spf13/cobra"

	"github.com/giantswarm/qa-environment/internal/answerer"
	"github.com/giantswarm/qa-environment/internal/config"
	"github.com/giantswarm/qa-environment/internal/dispatcher"
	"github.com/giantswarm/qa-environment/internal/llm"
	"github.com/giantswarm/qa-environment/internal/observability"
	"github.com/giantswarm/qa-environment/internal/service"
)

// envFlags override the environment part of the YAML config. They are shared
// by serve and by run when no remote server is given.
type envFlags struct {
	backend      string
	concurrency  int
	queryTimeout time.Duration
	policy       string
	llmEndpoint  string
	apiKey       string
	model        string
	scrapeURL    string
}

func (f *envFlags) register(cmd *cobra.Command) {
	fs := cmd.Flags()
	fs.StringVar(&f.backend, "backend", answerer.BackendSearch, "Answer backend: search, llm or scrape")
	fs.IntVar(&f.concurrency, "concurrency", dispatcher.DefaultConcurrency, "Maximum concurrent backend calls per batch")
	fs.DurationVar(&f.queryTimeout, "query-timeout", 0, "Timeout for a single backend call (0 means none)")
	fs.StringVar(&f.policy, "policy", dispatcher.RejectBatch.String(), "Empty question handling: reject_batch or isolate_query")
	fs.StringVar(&f.llmEndpoint, "llm-endpoint", "", "OpenAI-compatible endpoint for the llm backend")
	fs.StringVar(&f.apiKey, "api-key", "", "API key for the llm backend (or set OPENAI_API_KEY)")
	fs.StringVar(&f.model, "model", "", "Model used by the llm backend")
	fs.StringVar(&f.scrapeURL, "scrape-url", "", "URL template for the scrape backend, {query} is replaced by the question")
}

// loadConfig reads --config (if any) and applies the flags that were set.
func loadConfig(cmd *cobra.Command, f *envFlags) (*config.Config, error) {
	path, _ := cmd.Flags().GetString("config")

	cfg := config.Default()
	if path != "" {
		var err error
		if cfg, err = config.Load(path); err != nil {
			return nil, err
		}
	}

	fs := cmd.Flags()
	if fs.Changed("backend") {
		cfg.Answerer.Backend = f.backend
	}
	if fs.Changed("concurrency") {
		cfg.Dispatcher.Concurrency = f.concurrency
	}
	if fs.Changed("query-timeout") {
		cfg.Dispatcher.QueryTimeout = f.queryTimeout
	}
	if fs.Changed("policy") {
		cfg.Dispatcher.Policy = f.policy
	}
	if fs.Changed("llm-endpoint") {
		cfg.LLM.Endpoint = f.llmEndpoint
	}
	if fs.Changed("api-key") {
		cfg.LLM.APIKey = f.apiKey
	}
	if fs.Changed("model") {
		cfg.Answerer.LLM.Model = f.model
	}
	if fs.Changed("scrape-url") {
		cfg.Answerer.Scrape.URLTemplate = f.scrapeURL
	}
	if fs.Changed("log-format") {
		cfg.Logging.Format, _ = fs.GetString("log-format")
	}
	if debug, _ := fs.GetBool("debug"); debug {
		cfg.Logging.Debug = true
	}
	if verbose, _ := fs.GetBool("verbose"); verbose {
		cfg.Logging.Debug = true
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

type envDeps struct {
	logger  *slog.Logger
	metrics *observability.Metrics
	tracer  *observability.Tracer
}

// newEnvironment wires backend, dispatcher and service from cfg.
func newEnvironment(cfg *config.Config, deps envDeps) (*service.Service, error) {
	if deps.logger == nil {
		deps.logger = slog.Default()
	}

	client := newLLMClientFromFlags(cfg.LLM.Endpoint, cfg.LLM.APIKey, "", llm.WithTimeout(cfg.LLM.Timeout))
	a, err := answerer.New(cfg.Answerer, client)
	if err != nil {
		return nil, fmt.Errorf("failed to create answer backend: %w", err)
	}

	dcfg, err := cfg.DispatcherSettings()
	if err != nil {
		return nil, err
	}
	d := dispatcher.New(a, dcfg,
		dispatcher.WithLogger(deps.logger),
		dispatcher.WithMetrics(deps.metrics),
		dispatcher.WithTracer(deps.tracer),
	)

	deps.logger.Info("environment ready",
		"backend", dcfg.Backend,
		"concurrency", dcfg.Concurrency,
		"policy", dcfg.Policy.String(),
	)
	return service.New(d, service.WithLogger(deps.logger), service.WithMetrics(deps.metrics)), nil
}
