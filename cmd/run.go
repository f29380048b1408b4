package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/giantswarm/qa-environment/internal/rewriter"
	"github.com/giantswarm/qa-environment/internal/runner"
	"github.com/giantswarm/qa-environment/internal/service"
	"github.com/giantswarm/qa-environment/internal/testsuite"
)

func newRunCmd() *cobra.Command {
	var (
		env         envFlags
		target      string
		outputDir   string
		suitesDir   string
		rewrites    int
		strategy    string
		batchSize   int
		timeout     time.Duration
		rwEndpoint  string
		rwAPIKey    string
		rwModel     string
		temperature float64
	)

	cmd := &cobra.Command{
		Use:   "run <dataset>",
		Short: "Run an evaluation dataset through the QA environment",
		Long: `Send every question of a dataset, together with optional LLM rewrites of it,
to the QA environment and record the answers as QA instances.

Without --server the environment runs in-process, configured by --config and
the backend flags. Results are written to <output-dir>/<run-id>/ as
instances.jsonl with a resultset.json manifest; score them with
'qa-environment score'.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			if timeout > 0 {
				var cancel context.CancelFunc
				ctx, cancel = context.WithTimeout(ctx, timeout)
				defer cancel()
			}

			suite, err := testsuite.Load(args[0], suitesDir)
			if err != nil {
				return fmt.Errorf("failed to load dataset: %w", err)
			}

			var client runner.ObservationsClient
			if target != "" {
				c, err := service.Dial(target)
				if err != nil {
					return err
				}
				defer c.Close()
				client = c
			} else {
				cfg, err := loadConfig(cmd, &env)
				if err != nil {
					return err
				}
				if client, err = newEnvironment(cfg, envDeps{}); err != nil {
					return err
				}
				target = "in-process:" + cfg.Answerer.Backend
			}

			r, err := runner.NewRunner(client, outputDir, runner.Config{
				BatchSize: batchSize,
				Rewrites:  rewrites,
				Strategy:  strategy,
				Target:    target,
			})
			if err != nil {
				return err
			}

			count := runner.RewriteCount(suite, rewrites)
			if count > 0 {
				r.SetRewriter(rewriter.New(newLLMClientFromFlags(rwEndpoint, rwAPIKey, rwModel), rewriter.Config{
					Model:        rwModel,
					SystemPrompt: suite.Rewrite.SystemMessage,
					Count:        count,
					Temperature:  temperature,
				}))
			}
			r.SetProgressFunc(func(done, total int) {
				fmt.Printf("\r  Processed %d/%d questions...", done, total)
			})

			fmt.Printf("Dataset: %s\n", suite.Name)
			fmt.Printf("Description: %s\n", suite.Description)
			fmt.Printf("Questions: %d\n", len(suite.Items))
			fmt.Printf("Rewrites per question: %d\n", count)
			fmt.Printf("Target: %s\n", target)
			fmt.Println()

			run, err := r.Run(ctx, suite)
			if err != nil {
				return err
			}

			fmt.Printf("\n\nEvaluation completed.\n")
			fmt.Printf("Run ID: %s\n", run.ID)
			fmt.Printf("Duration: %s\n", run.Duration)
			fmt.Printf("Questions: %d (%d rewrites, %d failed queries)\n", run.Items, run.Rewrites, run.FailedQueries)
			fmt.Printf("Instances: %s\n", run.InstancesFile)
			return nil
		},
	}

	env.register(cmd)
	cmd.Flags().StringVar(&target, "server", "", "gRPC address of a running server (in-process when empty)")
	cmd.Flags().StringVar(&outputDir, "output-dir", "results", "Directory for evaluation runs")
	cmd.Flags().StringVar(&suitesDir, "suites-dir", "", "External datasets directory")
	cmd.Flags().IntVar(&rewrites, "rewrites", 0, "Rewrites per question (0 uses the dataset config, -1 disables)")
	cmd.Flags().StringVar(&strategy, "strategy", "gold_f1", "qr_best selection: gold_f1, none or max_score:<name>")
	cmd.Flags().IntVar(&batchSize, "batch-size", runner.DefaultBatchSize, "Questions per request")
	cmd.Flags().DurationVar(&timeout, "timeout", 0, "Overall timeout for the run (e.g. 30m, 1h). 0 means no timeout")
	cmd.Flags().StringVar(&rwEndpoint, "rewrite-endpoint", "", "OpenAI-compatible endpoint used for rewrites")
	cmd.Flags().StringVar(&rwAPIKey, "rewrite-api-key", "", "API key for rewrites (or set OPENAI_API_KEY)")
	cmd.Flags().StringVar(&rwModel, "rewrite-model", "", "Model used for rewrites")
	cmd.Flags().Float64Var(&temperature, "rewrite-temperature", 0.7, "Temperature for rewrites")

	return cmd
}
