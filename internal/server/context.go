package server

import (
	"github.com/giantswarm/qa-environment/internal/kserve"
	"github.com/giantswarm/qa-environment/internal/llm"
	"github.com/giantswarm/qa-environment/internal/runner"
)

// ServerContext holds shared dependencies for the HTTP handlers and MCP tools.
type ServerContext struct {
	// Environment answers observation requests, usually the in-process service.
	Environment runner.ObservationsClient
	// Discovery is nil when no cluster is reachable.
	Discovery *kserve.Discovery
	// LLMClient rewrites questions and judges runs; optional.
	LLMClient llm.Client
	OutputDir string
	SuitesDir string // external test suites directory (optional)
}
