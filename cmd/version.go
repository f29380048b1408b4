package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version number of qa-environment",
		Run: func(cmd *cobra.Command, args []string) {
			out := cmd.OutOrStdout()
			_, _ = fmt.Fprintf(out, "qa-environment version %s\n", rootCmd.Version)
			_, _ = fmt.Fprintf(out, "  commit: %s\n", buildCommit)
			_, _ = fmt.Fprintf(out, "  built:  %s\n", buildDate)
		},
	}
}
