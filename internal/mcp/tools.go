// Package mcp exposes the QA environment as Model Context Protocol tools.
package mcp

import (
	"encoding/json"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"

	"github.com/giantswarm/qa-environment/internal/server"
)

// RegisterTools registers all MCP tools with the server.
func RegisterTools(s *mcpserver.MCPServer, sc *server.ServerContext) error {
	if sc == nil {
		return fmt.Errorf("server context is required")
	}
	registerObservationTools(s, sc)
	registerDatasetTools(s, sc)
	registerResultTools(s, sc)
	registerBackendTools(s, sc)
	return nil
}

func jsonResult(v any) (*mcp.CallToolResult, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to marshal result: %v", err)), nil
	}
	return mcp.NewToolResultText(string(data)), nil
}
