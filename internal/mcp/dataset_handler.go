package mcp

import (
	"context"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"

	"github.com/giantswarm/qa-environment/internal/rewriter"
	"github.com/giantswarm/qa-environment/internal/runner"
	"github.com/giantswarm/qa-environment/internal/server"
	"github.com/giantswarm/qa-environment/internal/testsuite"
)

func registerDatasetTools(s *mcpserver.MCPServer, sc *server.ServerContext) {
	listTool := mcp.NewTool("list_datasets",
		mcp.WithDescription("List the evaluation datasets available to run_evaluation"),
	)
	s.AddTool(listTool, func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		return handleListDatasets(ctx, request, sc)
	})

	runTool := mcp.NewTool("run_evaluation",
		mcp.WithDescription("Run a dataset through the QA environment, optionally with LLM rewrites of every question, and write the resulting QA instances to a new run directory."),
		mcp.WithString("dataset",
			mcp.Required(),
			mcp.Description("Name of the dataset to run (e.g. 'squad-sample')"),
		),
		mcp.WithNumber("rewrites",
			mcp.Description("Rewrites per question (default: from dataset config, -1 disables)"),
		),
		mcp.WithString("strategy",
			mcp.Description("qr_best selection: gold_f1 (default), none, or max_score:<name>"),
		),
		mcp.WithNumber("batch_size",
			mcp.Description("Questions per request (default: 16)"),
		),
	)
	s.AddTool(runTool, func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		return handleRunEvaluation(ctx, request, sc)
	})
}

type datasetInfo struct {
	// Dataset is the identifier accepted by run_evaluation; Name is the
	// display title from config.yaml.
	Dataset      string `json:"dataset"`
	Name         string `json:"name"`
	Description  string `json:"description"`
	Version      string `json:"version"`
	Format       string `json:"format"`
	ItemCount    int    `json:"item_count"`
	Impossible   int    `json:"impossible_count"`
	RewriteCount int    `json:"rewrite_count"`
}

func handleListDatasets(_ context.Context, _ mcp.CallToolRequest, sc *server.ServerContext) (*mcp.CallToolResult, error) {
	names, err := testsuite.List(sc.SuitesDir)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to list datasets: %v", err)), nil
	}

	datasets := make([]datasetInfo, 0, len(names))
	for _, name := range names {
		suite, err := testsuite.Load(name, sc.SuitesDir)
		if err != nil {
			continue
		}
		info := datasetInfo{
			Dataset:      name,
			Name:         suite.Name,
			Description:  suite.Description,
			Version:      suite.Version,
			Format:       suite.Format,
			ItemCount:    len(suite.Items),
			RewriteCount: suite.Rewrite.Count,
		}
		for _, item := range suite.Items {
			if item.IsImpossible {
				info.Impossible++
			}
		}
		datasets = append(datasets, info)
	}
	return jsonResult(datasets)
}

func handleRunEvaluation(ctx context.Context, request mcp.CallToolRequest, sc *server.ServerContext) (*mcp.CallToolResult, error) {
	args := request.GetArguments()

	name, _ := args["dataset"].(string)
	if name == "" {
		return mcp.NewToolResultError("dataset is required"), nil
	}
	if sc.Environment == nil {
		return mcp.NewToolResultError("QA environment is not configured"), nil
	}

	suite, err := testsuite.Load(name, sc.SuitesDir)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to load dataset: %v", err)), nil
	}

	cfg := runner.Config{Target: "mcp"}
	if n, ok := args["rewrites"].(float64); ok {
		cfg.Rewrites = int(n)
	}
	if n, ok := args["batch_size"].(float64); ok && n > 0 {
		cfg.BatchSize = int(n)
	}
	cfg.Strategy, _ = args["strategy"].(string)

	r, err := runner.NewRunner(sc.Environment, sc.OutputDir, cfg)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	if count := runner.RewriteCount(suite, cfg.Rewrites); count > 0 {
		if sc.LLMClient == nil {
			return mcp.NewToolResultError("rewrites requested but no LLM client is configured"), nil
		}
		r.SetRewriter(rewriter.New(sc.LLMClient, rewriter.Config{
			SystemPrompt: suite.Rewrite.SystemMessage,
			Count:        count,
		}))
	}

	run, err := r.Run(ctx, suite)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("evaluation failed: %v", err)), nil
	}

	return jsonResult(map[string]any{
		"run_id":         run.ID,
		"dataset":        run.Suite,
		"items":          run.Items,
		"rewrites":       run.Rewrites,
		"failed_queries": run.FailedQueries,
		"instances_file": run.InstancesFile,
		"duration":       run.Duration.String(),
	})
}
