// Package testutil provides shared test helpers.
package testutil

import (
	"context"
	"sync"

	"github.com/giantswarm/qa-environment/internal/llm"
)

// MockLLMClient is a configurable mock for llm.Client used across test packages.
// It is safe for concurrent use.
type MockLLMClient struct {
	// Responses maps user messages to canned responses.
	Responses map[string]string

	// DefaultResponse is returned when no matching key is found in Responses.
	DefaultResponse string

	// Choices, when set, is returned as the full choice list of every call.
	Choices []string

	// Err, when set, is returned by every call.
	Err error

	mu       sync.Mutex
	calls    int
	requests []llm.ChatRequest
}

func (m *MockLLMClient) ChatCompletion(_ context.Context, req llm.ChatRequest) (*llm.ChatResponse, error) {
	m.mu.Lock()
	m.calls++
	m.requests = append(m.requests, req)
	m.mu.Unlock()

	if m.Err != nil {
		return nil, m.Err
	}

	content := "mock response"
	if resp, ok := m.Responses[req.UserMessage]; ok {
		content = resp
	} else if m.DefaultResponse != "" {
		content = m.DefaultResponse
	}

	choices := m.Choices
	if len(choices) == 0 {
		choices = []string{content}
	}
	return &llm.ChatResponse{
		Content:          choices[0],
		Choices:          choices,
		FinishReason:     "stop",
		PromptTokens:     10,
		CompletionTokens: 2,
	}, nil
}

// Calls returns the number of ChatCompletion invocations.
func (m *MockLLMClient) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

// LastRequest returns the most recent request, or the zero value.
func (m *MockLLMClient) LastRequest() llm.ChatRequest {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.requests) == 0 {
		return llm.ChatRequest{}
	}
	return m.requests[len(m.requests)-1]
}
