package cmd

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/giantswarm/qa-environment/internal/observability"
)

var rootCmd = &cobra.Command{
	Use:   "qa-environment",
	Short: "Question-answering environment with gRPC, HTTP and MCP front ends",
	Long: `qa-environment answers batches of reading-comprehension questions through a
pluggable answer backend (LLM, lexical search or web scrape). Queries of a batch
are answered concurrently and returned in request order; a failing query is
reported on its own response without failing the batch.

Besides serving the environment over gRPC, HTTP and MCP it runs evaluation
datasets (optionally with LLM question rewrites), scores the resulting QA
instances with SQuAD exact match and F1, and discovers backends served by
KServe.

When run without subcommands, it starts the server (equivalent to 'qa-environment serve').`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
		verbose, _ := cmd.Flags().GetBool("verbose")
		debug, _ := cmd.Flags().GetBool("debug")
		format, _ := cmd.Flags().GetString("log-format")
		// Logs go to stderr so that stdout stays usable for results and the
		// MCP stdio transport.
		_, err := observability.SetupLogging(os.Stderr, observability.LogConfig{
			Format: format,
			Debug:  verbose || debug,
		})
		return err
	},
}

// serveCmd is stored so the root command can delegate to it by default.
var serveCmd *cobra.Command

var (
	buildCommit = "unknown"
	buildDate   = "unknown"
)

// SetVersion sets the version for the root command.
func SetVersion(v string) {
	rootCmd.Version = v
}

// SetBuildInfo sets the commit and build date for the version command.
func SetBuildInfo(commit, date string) {
	buildCommit = commit
	buildDate = date
}

// Execute is the main entry point for the CLI application.
func Execute() {
	rootCmd.SetVersionTemplate(`{{printf "qa-environment version %s\n" .Version}}`)

	// The root command cannot parse serve-specific flags, so it runs serve
	// with its defaults and points at the explicit subcommand.
	rootCmd.Run = func(cmd *cobra.Command, args []string) {
		fmt.Fprintln(os.Stderr, "No subcommand specified. Defaulting to 'serve'.")
		fmt.Fprintln(os.Stderr, "For flags such as --backend or --grpc-addr, use: qa-environment serve --help")
		fmt.Fprintln(os.Stderr)
		if err := serveCmd.RunE(serveCmd, args); err != nil {
			slog.Error("serve failed", "error", err)
			os.Exit(1)
		}
	}

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	serveCmd = newServeCmd()
	rootCmd.AddCommand(newVersionCmd())
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(newQueryCmd())
	rootCmd.AddCommand(newRunCmd())
	rootCmd.AddCommand(newScoreCmd())
	rootCmd.AddCommand(newListCmd())
	rootCmd.AddCommand(newBackendsCmd())

	rootCmd.PersistentFlags().BoolP("verbose", "v", false, "Enable verbose output")
	rootCmd.PersistentFlags().Bool("debug", false, "Enable debug logging")
	rootCmd.PersistentFlags().String("log-format", "text", "Log format: text or json")
	rootCmd.PersistentFlags().String("config", "", "Path to the YAML server config")
	rootCmd.PersistentFlags().String("kubeconfig", "", "Path to kubeconfig file")
	rootCmd.PersistentFlags().StringP("namespace", "n", "qa-environment", "Kubernetes namespace of the InferenceService backends")
}
