package answerer

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/giantswarm/qa-environment/internal/llm"
	"github.com/giantswarm/qa-environment/internal/schema"
)

// DefaultLLMSystemPrompt instructs the model to answer from the supplied
// context only.
const DefaultLLMSystemPrompt = `You answer questions using only the supplied context documents.
Reply with the shortest span of text that answers the question.
If the context does not contain the answer, reply with an empty line.`

// LLMConfig configures the chat-model backend.
type LLMConfig struct {
	Model        string `yaml:"model"`
	SystemPrompt string `yaml:"system_prompt"`
	// Temperature is left to the client default when nil.
	Temperature *float64 `yaml:"temperature"`
	MaxTokens   int      `yaml:"max_tokens"`
}

// LLM answers queries with an OpenAI-compatible chat model.
type LLM struct {
	client llm.Client
	config LLMConfig
}

// NewLLM creates a chat-model backend.
func NewLLM(client llm.Client, config LLMConfig) *LLM {
	if config.SystemPrompt == "" {
		config.SystemPrompt = DefaultLLMSystemPrompt
	}
	return &LLM{client: client, config: config}
}

// Answer asks the model for one answer to q.
func (a *LLM) Answer(ctx context.Context, q *schema.Query) (*schema.Response, error) {
	start := time.Now()

	resp, err := a.client.ChatCompletion(ctx, llm.ChatRequest{
		Model:         a.config.Model,
		SystemMessage: a.systemMessage(q),
		UserMessage:   q.Question,
		Temperature:   a.config.Temperature,
		MaxTokens:     a.config.MaxTokens,
	})
	if err != nil {
		return nil, classifyTransport(fmt.Errorf("failed to get completion for question %q: %w", q.ID, err))
	}

	answer := schema.Observation{
		Text: strings.TrimSpace(resp.Content),
		Scores: map[string]float64{
			"latency_seconds":   time.Since(start).Seconds(),
			"completion_tokens": float64(resp.CompletionTokens),
		},
	}
	if resp.FinishReason != "" {
		if err := answer.SetExtension("finish_reason", resp.FinishReason); err != nil {
			return nil, err
		}
	}

	return &schema.Response{
		Question:          q.Question,
		ProcessedQuestion: ProcessQuestion(q.Question),
		Answers:           []schema.Observation{answer},
		Observations: map[string]schema.Observation{
			"usage": {Scores: map[string]float64{
				"prompt_tokens":     float64(resp.PromptTokens),
				"completion_tokens": float64(resp.CompletionTokens),
			}},
		},
	}, nil
}

func (a *LLM) systemMessage(q *schema.Query) string {
	docs := q.Documents()
	if len(docs) == 0 {
		return a.config.SystemPrompt
	}
	var b strings.Builder
	b.WriteString(a.config.SystemPrompt)
	b.WriteString("\n\nContext:\n")
	for i, doc := range docs {
		fmt.Fprintf(&b, "[%d] %s\n", i+1, doc)
	}
	return strings.TrimRight(b.String(), "\n")
}
