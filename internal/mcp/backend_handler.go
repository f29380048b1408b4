package mcp

import (
	"context"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"

	"github.com/giantswarm/qa-environment/internal/server"
)

func registerBackendTools(s *mcpserver.MCPServer, sc *server.ServerContext) {
	listTool := mcp.NewTool("list_backends",
		mcp.WithDescription("List QA answer backends served as KServe InferenceServices in the cluster"),
		mcp.WithString("kind",
			mcp.Description("Only list backends of this kind (llm, search or scrape)"),
		),
	)
	s.AddTool(listTool, func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		return handleListBackends(ctx, request, sc)
	})
}

func handleListBackends(ctx context.Context, request mcp.CallToolRequest, sc *server.ServerContext) (*mcp.CallToolResult, error) {
	if sc.Discovery == nil {
		return mcp.NewToolResultError("KServe discovery is not configured"), nil
	}

	kind, _ := request.GetArguments()["kind"].(string)
	backends, err := sc.Discovery.List(ctx, kind)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to list backends: %v", err)), nil
	}
	return jsonResult(backends)
}
