package runner

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/giantswarm/qa-environment/internal/qainstance"
	"github.com/giantswarm/qa-environment/internal/rewriter"
	"github.com/giantswarm/qa-environment/internal/schema"
	"github.com/giantswarm/qa-environment/internal/testsuite"
)

// DefaultBatchSize is the number of dataset items sent per request.
const DefaultBatchSize = 16

// Output file names inside a run directory.
const (
	InstancesFile = "instances.jsonl"
	ResultSetFile = "resultset.json"
)

// ObservationsClient is the environment API the runner drives. It is
// implemented by the in-process service and by the gRPC client.
type ObservationsClient interface {
	GetObservations(ctx context.Context, req *schema.EnvironmentRequest) (*schema.EnvironmentResponse, error)
}

// ProgressFunc is called after each batch with the number of completed items.
type ProgressFunc func(done, total int)

// Config tunes a run.
type Config struct {
	// BatchSize is the number of items per request (default 16). Rewrites
	// travel in the same request as their original.
	BatchSize int
	// Rewrites overrides the suite's rewrite count when > 0. A negative
	// value disables rewriting.
	Rewrites int
	// Strategy selects qr_best; see GetStrategy.
	Strategy string
	// Target describes the environment under test in resultset.json.
	Target string
}

// Runner orchestrates the evaluation of test suites against an environment.
type Runner struct {
	client    ObservationsClient
	rewriter  *rewriter.Rewriter // optional
	strategy  SelectionStrategy
	outputDir string
	config    Config
	progress  ProgressFunc
}

// NewRunner creates a new runner.
func NewRunner(client ObservationsClient, outputDir string, config Config) (*Runner, error) {
	strategy, err := GetStrategy(config.Strategy)
	if err != nil {
		return nil, err
	}
	if config.BatchSize <= 0 {
		config.BatchSize = DefaultBatchSize
	}
	return &Runner{
		client:    client,
		strategy:  strategy,
		outputDir: outputDir,
		config:    config,
	}, nil
}

// SetProgressFunc sets the progress callback.
func (r *Runner) SetProgressFunc(fn ProgressFunc) {
	r.progress = fn
}

// SetRewriter enables question rewriting.
func (r *Runner) SetRewriter(rw *rewriter.Rewriter) {
	r.rewriter = rw
}

// Run evaluates suite and writes instances.jsonl and resultset.json into a
// new run directory. A batch rejected by the environment is recorded as
// failed responses and the run continues; cancellation stops the run after
// writing what has completed.
func (r *Runner) Run(ctx context.Context, suite *testsuite.TestSuite) (*testsuite.TestRun, error) {
	if len(suite.Items) == 0 {
		return nil, fmt.Errorf("test suite %q has no questions", suite.Name)
	}

	timestamp := time.Now()
	sanitizedName := sanitizeFilename(strings.ReplaceAll(suite.Name, " ", "_"))
	runID := fmt.Sprintf("%s_%s_%s", sanitizedName, timestamp.Format("20060102-150405"), uuid.NewString()[:8])

	outputPath := filepath.Join(r.outputDir, runID)
	if err := os.MkdirAll(outputPath, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create output directory: %w", err)
	}

	run := &testsuite.TestRun{
		ID:            runID,
		Suite:         suite.Name,
		Target:        r.config.Target,
		Timestamp:     timestamp,
		InstancesFile: filepath.Join(outputPath, InstancesFile),
	}

	rewrites := RewriteCount(suite, r.config.Rewrites)

	slog.Info("running test suite",
		"suite", suite.Name,
		"items", len(suite.Items),
		"rewrites", rewrites,
		"strategy", r.strategy.Name(),
	)

	for start := 0; start < len(suite.Items); start += r.config.BatchSize {
		if err := ctx.Err(); err != nil {
			slog.Warn("test run cancelled", "completed", start, "total", len(suite.Items))
			break
		}

		items := suite.Items[start:min(start+r.config.BatchSize, len(suite.Items))]
		b := r.buildBatch(ctx, runID, items, rewrites)

		resp, err := r.client.GetObservations(ctx, b.request())
		if err != nil {
			if ctx.Err() != nil {
				slog.Warn("test run cancelled", "completed", start, "total", len(suite.Items))
				break
			}
			slog.Error("batch failed", "first_item", items[0].ID, "error", err)
			resp = b.failAll(err)
		}
		if len(resp.Responses) != len(b.queries) {
			return nil, fmt.Errorf("environment returned %d responses for %d queries", len(resp.Responses), len(b.queries))
		}

		instances, err := b.assemble(resp.Responses, r.strategy)
		if err != nil {
			return nil, err
		}
		for _, inst := range instances {
			for _, p := range inst.Pairs() {
				if p.Response.Failed() {
					run.FailedQueries++
				}
			}
			run.Rewrites += len(inst.QRRewrites)
		}
		run.Instances = append(run.Instances, instances...)
		run.Items += len(items)

		if r.progress != nil {
			r.progress(run.Items, len(suite.Items))
		}
	}

	run.Duration = time.Since(timestamp)

	if err := writeInstances(run.InstancesFile, run.Instances); err != nil {
		return nil, fmt.Errorf("failed to write instances: %w", err)
	}
	if err := writeRunMetadata(outputPath, run); err != nil {
		return nil, fmt.Errorf("failed to write run metadata: %w", err)
	}

	slog.Info("test run complete",
		"id", run.ID,
		"items", run.Items,
		"failed_queries", run.FailedQueries,
		"duration", run.Duration,
	)
	return run, nil
}

// RewriteCount resolves the number of rewrites per item: a non-zero override
// wins over the suite setting and a negative override disables rewriting.
func RewriteCount(suite *testsuite.TestSuite, override int) int {
	if override != 0 {
		return max(override, 0)
	}
	return max(suite.Rewrite.Count, 0)
}

// sanitizeFilename replaces characters unsafe for filenames with underscores.
func sanitizeFilename(name string) string {
	replacer := strings.NewReplacer(
		"/", "_",
		"\\", "_",
		":", "_",
		"*", "_",
		"?", "_",
		"\"", "_",
		"<", "_",
		">", "_",
		"|", "_",
	)
	return replacer.Replace(name)
}

func writeInstances(path string, instances []*schema.QAInstance) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := qainstance.WriteJSONL(f, instances); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

func writeRunMetadata(outputPath string, run *testsuite.TestRun) error {
	metadata := map[string]any{
		"id":             run.ID,
		"suite":          run.Suite,
		"target":         run.Target,
		"timestamp":      run.Timestamp,
		"full_duration":  run.Duration.Seconds(),
		"items":          run.Items,
		"rewrites":       run.Rewrites,
		"failed_queries": run.FailedQueries,
		"instances_file": run.InstancesFile,
	}

	data, err := json.MarshalIndent(metadata, "", "    ")
	if err != nil {
		return err
	}

	return os.WriteFile(filepath.Join(outputPath, ResultSetFile), data, 0o644)
}
