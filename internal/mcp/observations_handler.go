package mcp

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"
	"google.golang.org/grpc/status"

	"github.com/giantswarm/qa-environment/internal/schema"
	"github.com/giantswarm/qa-environment/internal/server"
	"github.com/giantswarm/qa-environment/internal/service"
)

func registerObservationTools(s *mcpserver.MCPServer, sc *server.ServerContext) {
	tool := mcp.NewTool("get_observations",
		mcp.WithDescription("Ask the QA environment one question, or a full batch, and return the observed answers. Pass either 'question' (with optional 'context') or 'request'."),
		mcp.WithString("question",
			mcp.Description("A single question to answer"),
		),
		mcp.WithString("context",
			mcp.Description("Document the answer should be read from (optional)"),
		),
		mcp.WithString("request",
			mcp.Description(`A JSON EnvironmentRequest, e.g. {"queries": [{"question": "..."}]}`),
		),
	)
	s.AddTool(tool, func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		return handleGetObservations(ctx, request, sc)
	})
}

func handleGetObservations(ctx context.Context, request mcp.CallToolRequest, sc *server.ServerContext) (*mcp.CallToolResult, error) {
	if sc.Environment == nil {
		return mcp.NewToolResultError("QA environment is not configured"), nil
	}

	args := request.GetArguments()
	req := &schema.EnvironmentRequest{}

	if raw, _ := args["request"].(string); raw != "" {
		if err := json.Unmarshal([]byte(raw), req); err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("invalid request JSON: %v", err)), nil
		}
	} else if question, _ := args["question"].(string); question != "" {
		q := &schema.Query{Question: question}
		if doc, _ := args["context"].(string); doc != "" {
			q.Context = []schema.Context{{Document: doc}}
		}
		req.Queries = []*schema.Query{q}
	} else {
		return mcp.NewToolResultError("either 'question' or 'request' is required"), nil
	}

	resp, err := sc.Environment.GetObservations(ctx, req)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("%s: %s",
			service.ErrorCodeOf(err), status.Convert(err).Message())), nil
	}
	return jsonResult(resp)
}
