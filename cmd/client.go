package cmd

import (
	"os"

	"github.com/giantswarm/qa-environment/internal/llm"
)

// newLLMClientFromFlags creates an LLM client from common CLI flags.
// An empty apiKey falls back to the OPENAI_API_KEY environment variable.
func newLLMClientFromFlags(endpoint, apiKey, model string, extra ...llm.Option) llm.Client {
	var opts []llm.Option
	if endpoint != "" {
		opts = append(opts, llm.WithBaseURL(endpoint))
	}
	if apiKey == "" {
		apiKey = os.Getenv("OPENAI_API_KEY")
	}
	if apiKey != "" {
		opts = append(opts, llm.WithAPIKey(apiKey))
	}
	if model != "" {
		opts = append(opts, llm.WithModel(model))
	}
	return llm.NewOpenAIClient(append(opts, extra...)...)
}
