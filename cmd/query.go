package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strconv"
	"time"

	"github.com/spf13/cobra"
	"google.golang.org/grpc/status"

	"github.com/giantswarm/qa-environment/internal/schema"
	"github.com/giantswarm/qa-environment/internal/service"
)

func newQueryCmd() *cobra.Command {
	var (
		target  string
		file    string
		docs    []string
		timeout time.Duration
	)

	cmd := &cobra.Command{
		Use:   "query [question...]",
		Short: "Send one batch of questions to a running server",
		Long: `Send an EnvironmentRequest to a qa-environment gRPC server and print the
EnvironmentResponse as JSON.

The request is either built from the positional questions (each sharing the
--context documents) or read as JSON from --file ("-" reads stdin).`,
		Example: `  qa-environment query "Who wrote Hamlet?" --context "Hamlet is a tragedy by William Shakespeare."
  qa-environment query --file request.json --server qa.example.com:50051`,
		RunE: func(cmd *cobra.Command, args []string) error {
			req, err := buildRequest(cmd.InOrStdin(), file, args, docs)
			if err != nil {
				return err
			}

			ctx := cmd.Context()
			if timeout > 0 {
				var cancel context.CancelFunc
				ctx, cancel = context.WithTimeout(ctx, timeout)
				defer cancel()
			}

			client, err := service.Dial(target)
			if err != nil {
				return err
			}
			defer client.Close()

			resp, err := client.GetObservations(ctx, req)
			if err != nil {
				code := service.ErrorCodeOf(err)
				return fmt.Errorf("request failed (%s): %s", code, status.Convert(err).Message())
			}

			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(resp)
		},
	}

	cmd.Flags().StringVar(&target, "server", "localhost:50051", "gRPC address of the server")
	cmd.Flags().StringVarP(&file, "file", "f", "", `JSON EnvironmentRequest file ("-" for stdin)`)
	cmd.Flags().StringArrayVar(&docs, "context", nil, "Context document attached to every question (repeatable)")
	cmd.Flags().DurationVar(&timeout, "timeout", 30*time.Second, "Request timeout (0 means none)")

	return cmd
}

func buildRequest(stdin io.Reader, file string, questions, docs []string) (*schema.EnvironmentRequest, error) {
	if file != "" {
		if len(questions) > 0 {
			return nil, fmt.Errorf("questions and --file are mutually exclusive")
		}
		r := stdin
		if file != "-" {
			f, err := os.Open(file)
			if err != nil {
				return nil, fmt.Errorf("failed to open request file: %w", err)
			}
			defer f.Close()
			r = f
		}
		var req schema.EnvironmentRequest
		if err := json.NewDecoder(r).Decode(&req); err != nil {
			return nil, fmt.Errorf("failed to parse request file: %w", err)
		}
		return &req, nil
	}

	if len(questions) == 0 {
		return nil, fmt.Errorf("at least one question or --file is required")
	}
	var contexts []schema.Context
	for _, d := range docs {
		contexts = append(contexts, schema.Context{Document: d})
	}
	req := &schema.EnvironmentRequest{}
	for i, q := range questions {
		req.Queries = append(req.Queries, &schema.Query{
			Question: q,
			ID:       strconv.Itoa(i + 1),
			Context:  contexts,
		})
	}
	return req, nil
}
