package mcp

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/giantswarm/qa-environment/internal/llm"
	"github.com/giantswarm/qa-environment/internal/runner"
	"github.com/giantswarm/qa-environment/internal/scorer"
	"github.com/giantswarm/qa-environment/internal/server"
)

func handleScoreResults(ctx context.Context, request mcp.CallToolRequest, sc *server.ServerContext) (*mcp.CallToolResult, error) {
	args := request.GetArguments()

	resultsFile, _ := args["results_file"].(string)
	runID, _ := args["run_id"].(string)

	var (
		path string
		err  error
	)
	switch {
	case runID != "":
		path, err = resolveRunPath(sc.OutputDir, runID)
		path = filepath.Join(path, runner.InstancesFile)
	case resultsFile != "":
		path, err = resolveResultFilePath(sc.OutputDir, resultsFile)
	default:
		return mcp.NewToolResultError("either 'run_id' or 'results_file' is required"), nil
	}
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	var judge llm.Client
	cfg := scorer.Config{Repetitions: 3}
	if useJudge, _ := args["judge"].(bool); useJudge {
		if sc.LLMClient == nil {
			return mcp.NewToolResultError("LLM client is not configured"), nil
		}
		judge = sc.LLMClient
		if model, ok := args["judge_model"].(string); ok && model != "" {
			cfg.JudgeModel = model
		}
		if reps, ok := args["repetitions"].(float64); ok && reps > 0 {
			cfg.Repetitions = int(reps)
		}
	}

	output, err := scorer.NewScorer(judge, cfg).ScoreFile(ctx, path)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("scoring failed: %v", err)), nil
	}

	scoresFile, err := scorer.WriteScoreFile(output, path)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to write scores: %v", err)), nil
	}

	return jsonResult(map[string]any{
		"scores_file": scoresFile,
		"instances":   output.Metadata.Instances,
		"summary":     output.Summary,
		"judge":       output.Judge,
	})
}
