package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/giantswarm/qa-environment/internal/testsuite"
)

func newListCmd() *cobra.Command {
	var suitesDir string

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List available evaluation datasets",
		RunE: func(cmd *cobra.Command, args []string) error {
			names, err := testsuite.List(suitesDir)
			if err != nil {
				return fmt.Errorf("failed to list datasets: %w", err)
			}

			if len(names) == 0 {
				fmt.Println("No datasets found.")
				return nil
			}

			fmt.Printf("Available datasets:\n\n")
			for _, name := range names {
				suite, err := testsuite.Load(name, suitesDir)
				if err != nil {
					fmt.Printf("  - %s (error loading: %v)\n", name, err)
					continue
				}
				impossible := 0
				for _, item := range suite.Items {
					if item.IsImpossible {
						impossible++
					}
				}
				format := suite.Format
				if format == "" {
					format = "csv"
				}
				fmt.Printf("  - %s\n", name)
				fmt.Printf("    Title: %s\n", suite.Name)
				fmt.Printf("    Description: %s\n", suite.Description)
				fmt.Printf("    Version: %s\n", suite.Version)
				fmt.Printf("    Format: %s\n", format)
				fmt.Printf("    Questions: %d (%d impossible)\n", len(suite.Items), impossible)
				fmt.Printf("    Rewrites: %d\n\n", suite.Rewrite.Count)
			}

			return nil
		},
	}

	cmd.Flags().StringVar(&suitesDir, "suites-dir", "", "External datasets directory")

	return cmd
}
