package llm

import (
	"context"
	"fmt"
	"net/http"

	"github.com/sashabaranov/go-openai"
)

// Client abstracts an OpenAI-compatible chat API.
type Client interface {
	// ChatCompletion sends a chat completion request and returns the response.
	ChatCompletion(ctx context.Context, req ChatRequest) (*ChatResponse, error)
}

// ChatRequest is a simplified single-turn chat request.
type ChatRequest struct {
	Model         string
	SystemMessage string
	UserMessage   string
	// Temperature is left to the client default when nil.
	Temperature *float64
	MaxTokens   int
	// N asks for several independent completions. Zero means one.
	N int
}

// ChatResponse holds the result of a chat completion.
type ChatResponse struct {
	// Content is the first choice.
	Content string
	// Choices holds every returned completion in order.
	Choices          []string
	FinishReason     string
	PromptTokens     int
	CompletionTokens int
}

// OpenAIClient implements Client using the OpenAI-compatible API.
type OpenAIClient struct {
	client      *openai.Client
	model       string
	temperature *float64
}

// NewOpenAIClient creates a new OpenAI-compatible client.
func NewOpenAIClient(opts ...Option) *OpenAIClient {
	cfg := &clientConfig{
		baseURL: "http://localhost:8000/v1",
		apiKey:  "not-needed",
	}
	for _, opt := range opts {
		opt(cfg)
	}

	config := openai.DefaultConfig(cfg.apiKey)
	config.BaseURL = cfg.baseURL
	if cfg.timeout > 0 {
		config.HTTPClient = &http.Client{Timeout: cfg.timeout}
	}

	return &OpenAIClient{
		client:      openai.NewClientWithConfig(config),
		model:       cfg.model,
		temperature: cfg.temperature,
	}
}

// ChatCompletion sends a non-streaming chat completion request.
func (c *OpenAIClient) ChatCompletion(ctx context.Context, req ChatRequest) (*ChatResponse, error) {
	req = c.applyDefaults(req)

	messages := make([]openai.ChatCompletionMessage, 0, 2)
	if req.SystemMessage != "" {
		messages = append(messages, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleSystem, Content: req.SystemMessage})
	}
	messages = append(messages, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleUser, Content: req.UserMessage})

	ccr := openai.ChatCompletionRequest{
		Model:     req.Model,
		Messages:  messages,
		MaxTokens: req.MaxTokens,
		N:         req.N,
	}
	if req.Temperature != nil {
		ccr.Temperature = float32(*req.Temperature)
	}

	resp, err := c.client.CreateChatCompletion(ctx, ccr)
	if err != nil {
		return nil, fmt.Errorf("chat completion failed: %w", err)
	}

	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("no choices returned")
	}

	out := &ChatResponse{
		Content:          resp.Choices[0].Message.Content,
		Choices:          make([]string, 0, len(resp.Choices)),
		FinishReason:     string(resp.Choices[0].FinishReason),
		PromptTokens:     resp.Usage.PromptTokens,
		CompletionTokens: resp.Usage.CompletionTokens,
	}
	for _, choice := range resp.Choices {
		out.Choices = append(out.Choices, choice.Message.Content)
	}
	return out, nil
}

// applyDefaults applies client-level defaults to a request where
// the request does not specify its own values.
func (c *OpenAIClient) applyDefaults(req ChatRequest) ChatRequest {
	if req.Model == "" && c.model != "" {
		req.Model = c.model
	}
	if req.Temperature == nil && c.temperature != nil {
		req.Temperature = c.temperature
	}
	return req
}
