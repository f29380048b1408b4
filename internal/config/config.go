// Package config loads the YAML configuration of the environment server.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/giantswarm/qa-environment/internal/answerer"
	"github.com/giantswarm/qa-environment/internal/dispatcher"
)

// Config is the server configuration. Every field has a usable default, so an
// empty file (or no file) yields a working search-backed server.
type Config struct {
	Server     ServerConfig     `yaml:"server"`
	LLM        LLMConfig        `yaml:"llm"`
	Answerer   answerer.Config  `yaml:"answerer"`
	Dispatcher DispatcherConfig `yaml:"dispatcher"`
	Tracing    TracingConfig    `yaml:"tracing"`
	Logging    LoggingConfig    `yaml:"logging"`
}

type ServerConfig struct {
	GRPCAddr string `yaml:"grpc_addr"`
	// HTTPAddr serves /healthz, /metrics, /v1/observations and /mcp. Set to
	// "-" to disable the HTTP server.
	HTTPAddr        string        `yaml:"http_addr"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// LLMConfig configures the OpenAI-compatible endpoint used by the llm backend.
type LLMConfig struct {
	Endpoint string `yaml:"endpoint"`
	APIKey   string `yaml:"api_key"`
	// Timeout bounds each HTTP call to the endpoint. Zero leaves the client
	// default.
	Timeout time.Duration `yaml:"timeout"`
}

type DispatcherConfig struct {
	Concurrency  int           `yaml:"concurrency"`
	QueryTimeout time.Duration `yaml:"query_timeout"`
	Policy       string        `yaml:"policy"`
}

type TracingConfig struct {
	Endpoint     string  `yaml:"endpoint"`
	SamplingRate float64 `yaml:"sampling_rate"`
	Insecure     bool    `yaml:"insecure"`
}

type LoggingConfig struct {
	Format string `yaml:"format"`
	Debug  bool   `yaml:"debug"`
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	var cfg Config
	applyDefaults(&cfg)
	return &cfg
}

// Load reads and parses the configuration file. Environment variables in the
// file are expanded before parsing.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	return Parse(data)
}

// Parse decodes, defaults and validates a configuration document.
func Parse(data []byte) (*Config, error) {
	expanded := os.ExpandEnv(string(data))

	var cfg Config
	if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	applyDefaults(&cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks values that defaults cannot repair.
func (c *Config) Validate() error {
	if _, err := dispatcher.ParsePolicy(c.Dispatcher.Policy); err != nil {
		return err
	}
	switch c.Answerer.Backend {
	case answerer.BackendSearch, answerer.BackendLLM, answerer.BackendScrape:
	default:
		return &answerer.UnsupportedBackendError{Name: c.Answerer.Backend}
	}
	if c.Answerer.Backend == answerer.BackendScrape && c.Answerer.Scrape.URLTemplate == "" {
		return fmt.Errorf("scrape backend requires answerer.scrape.url_template")
	}
	if c.Dispatcher.Concurrency < 0 {
		return fmt.Errorf("dispatcher.concurrency must not be negative")
	}
	if c.Tracing.SamplingRate < 0 || c.Tracing.SamplingRate > 1 {
		return fmt.Errorf("tracing.sampling_rate must be between 0 and 1")
	}
	switch c.Logging.Format {
	case "text", "json":
	default:
		return fmt.Errorf("unsupported log format %q", c.Logging.Format)
	}
	return nil
}

// DispatcherSettings converts the file settings into a dispatcher.Config.
func (c *Config) DispatcherSettings() (dispatcher.Config, error) {
	policy, err := dispatcher.ParsePolicy(c.Dispatcher.Policy)
	if err != nil {
		return dispatcher.Config{}, err
	}
	return dispatcher.Config{
		Concurrency:  c.Dispatcher.Concurrency,
		QueryTimeout: c.Dispatcher.QueryTimeout,
		Policy:       policy,
		Backend:      c.Answerer.Backend,
	}, nil
}

func applyDefaults(cfg *Config) {
	if cfg.Server.GRPCAddr == "" {
		cfg.Server.GRPCAddr = ":50051"
	}
	if cfg.Server.HTTPAddr == "" {
		cfg.Server.HTTPAddr = ":8080"
	}
	if cfg.Server.ShutdownTimeout == 0 {
		cfg.Server.ShutdownTimeout = 15 * time.Second
	}
	if cfg.LLM.Endpoint == "" {
		cfg.LLM.Endpoint = "https://api.openai.com/v1"
	}
	if cfg.Answerer.Backend == "" {
		cfg.Answerer.Backend = answerer.BackendSearch
	}
	if cfg.Dispatcher.Concurrency == 0 {
		cfg.Dispatcher.Concurrency = dispatcher.DefaultConcurrency
	}
	if cfg.Dispatcher.Policy == "" {
		cfg.Dispatcher.Policy = dispatcher.RejectBatch.String()
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "text"
	}
}
