package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/giantswarm/qa-environment/internal/llm"
	"github.com/giantswarm/qa-environment/internal/scorer"
)

func newScoreCmd() *cobra.Command {
	var (
		judge         bool
		judgeModel    string
		judgeEndpoint string
		judgeAPIKey   string
		repetitions   int
	)

	cmd := &cobra.Command{
		Use:   "score <instances-file>",
		Short: "Score the QA instances of an evaluation run",
		Long: `Compute SQuAD exact match and F1 of the original and the best answer of
every QA instance in an instances.jsonl file, and how much the rewrites
improved on the original.

With --judge an LLM additionally grades the best answers, repeated for
confidence. Scores are written next to the input as <name>_scores.json.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			resultsFile := args[0]

			if _, err := os.Stat(resultsFile); os.IsNotExist(err) {
				return fmt.Errorf("results file not found: %s", resultsFile)
			}

			var client llm.Client
			if judge {
				client = newLLMClientFromFlags(judgeEndpoint, judgeAPIKey, "")
			}
			s := scorer.NewScorer(client, scorer.Config{
				JudgeModel:  judgeModel,
				Repetitions: repetitions,
			})

			fmt.Printf("Scoring: %s\n", resultsFile)
			if judge {
				fmt.Printf("Judge: %s (%d repetitions)\n", judgeModel, repetitions)
			}
			fmt.Println()

			output, err := s.ScoreFile(cmd.Context(), resultsFile)
			if err != nil {
				return err
			}

			scoresFile, err := scorer.WriteScoreFile(output, resultsFile)
			if err != nil {
				return err
			}

			fmt.Printf("Scores written to: %s\n", scoresFile)

			sum := output.Summary
			if sum.MeanBestF1 != nil {
				fmt.Printf("\nSummary (%d instances):\n", output.Metadata.Instances)
				fmt.Printf("  Original: EM %.2f  F1 %.2f\n", *sum.MeanOriginalEM, *sum.MeanOriginalF1)
				fmt.Printf("  Best:     EM %.2f  F1 %.2f\n", *sum.MeanBestEM, *sum.MeanBestF1)
				fmt.Printf("  F1 improvement: %+.2f (%d instances improved)\n", *sum.Improvement, sum.ImprovedInstances)
				if !sum.AllResponsesOK {
					fmt.Printf("  Some responses carried errors.\n")
				}
			}

			if output.Judge != nil && output.Judge.Summary.MeanCorrect != nil {
				js := output.Judge.Summary
				fmt.Printf("\nJudge:\n")
				fmt.Printf("  Mean Score: %.2f (%.2f%%)\n", *js.MeanCorrect, *js.MeanPercent)
				fmt.Printf("  Range: %d-%d correct\n", *js.MinCorrect, *js.MaxCorrect)
			}

			return nil
		},
	}

	cmd.Flags().BoolVar(&judge, "judge", false, "Also grade the best answers with an LLM judge")
	cmd.Flags().StringVar(&judgeModel, "judge-model", scorer.DefaultJudgeModel, "Judge model name")
	cmd.Flags().StringVar(&judgeEndpoint, "judge-endpoint", "", "Judge LLM endpoint URL")
	cmd.Flags().StringVar(&judgeAPIKey, "api-key", "", "Judge API key (or set OPENAI_API_KEY)")
	cmd.Flags().IntVar(&repetitions, "repetitions", 3, "Number of judge repetitions")

	return cmd
}
