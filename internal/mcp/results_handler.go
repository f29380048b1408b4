package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"

	"github.com/giantswarm/qa-environment/internal/runner"
	"github.com/giantswarm/qa-environment/internal/server"
)

const scoresSuffix = "_scores.json"

func registerResultTools(s *mcpserver.MCPServer, sc *server.ServerContext) {
	scoreTool := mcp.NewTool("score_results",
		mcp.WithDescription("Score a completed evaluation run with SQuAD exact match and F1, optionally adding an LLM judge"),
		mcp.WithString("run_id",
			mcp.Description("Run ID whose instances.jsonl should be scored"),
		),
		mcp.WithString("results_file",
			mcp.Description("Path to an instances.jsonl file inside the output directory"),
		),
		mcp.WithBoolean("judge",
			mcp.Description("Also ask an LLM judge to grade the best answers (default: false)"),
		),
		mcp.WithString("judge_model",
			mcp.Description("Model used as judge (default: gpt-4o-mini)"),
		),
		mcp.WithNumber("repetitions",
			mcp.Description("Number of judge repetitions (default: 3)"),
		),
	)
	s.AddTool(scoreTool, func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		return handleScoreResults(ctx, request, sc)
	})

	getResultsTool := mcp.NewTool("get_results",
		mcp.WithDescription("Retrieve metadata and scores of past evaluation runs"),
		mcp.WithString("run_id",
			mcp.Description("Specific run ID to retrieve (optional, lists all if omitted)"),
		),
	)
	s.AddTool(getResultsTool, func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		return handleGetResults(ctx, request, sc)
	})
}

func handleGetResults(_ context.Context, request mcp.CallToolRequest, sc *server.ServerContext) (*mcp.CallToolResult, error) {
	runID, _ := request.GetArguments()["run_id"].(string)
	if runID == "" {
		return listRuns(sc.OutputDir)
	}

	runPath, err := resolveRunPath(sc.OutputDir, runID)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	metadata, err := readRunMetadata(runPath)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("run %q not found: %v", runID, err)), nil
	}

	scores := make(map[string]any)
	for _, name := range scoreFiles(runPath) {
		data, err := os.ReadFile(filepath.Join(runPath, name))
		if err != nil {
			continue
		}
		var v any
		if json.Unmarshal(data, &v) == nil {
			scores[name] = v
		}
	}
	if len(scores) > 0 {
		metadata["scores"] = scores
	}
	return jsonResult(metadata)
}

func listRuns(outputDir string) (*mcp.CallToolResult, error) {
	entries, err := os.ReadDir(outputDir)
	if err != nil {
		if os.IsNotExist(err) {
			return mcp.NewToolResultText("[]"), nil
		}
		return mcp.NewToolResultError(fmt.Sprintf("failed to read results directory: %v", err)), nil
	}

	runs := []map[string]any{}
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		runPath := filepath.Join(outputDir, e.Name())
		metadata, err := readRunMetadata(runPath)
		if err != nil {
			continue
		}
		metadata["score_files"] = scoreFiles(runPath)
		runs = append(runs, metadata)
	}
	if len(runs) == 0 {
		return mcp.NewToolResultText("[]"), nil
	}
	return jsonResult(runs)
}

func readRunMetadata(runPath string) (map[string]any, error) {
	data, err := os.ReadFile(filepath.Join(runPath, runner.ResultSetFile))
	if err != nil {
		return nil, err
	}
	var metadata map[string]any
	if err := json.Unmarshal(data, &metadata); err != nil {
		return nil, fmt.Errorf("failed to parse run metadata: %w", err)
	}
	return metadata, nil
}

func scoreFiles(runPath string) []string {
	entries, _ := os.ReadDir(runPath)
	names := []string{}
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(e.Name(), scoresSuffix) {
			names = append(names, e.Name())
		}
	}
	return names
}
