package answerer

import (
	"context"
	"errors"
	"net"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/giantswarm/qa-environment/internal/llm"
	"github.com/giantswarm/qa-environment/internal/schema"
	"github.com/giantswarm/qa-environment/internal/testutil"
)

func TestNew(t *testing.T) {
	tests := []struct {
		name    string
		config  Config
		client  bool
		want    any
		wantErr bool
	}{
		{"empty defaults to search", Config{}, false, &Search{}, false},
		{"search", Config{Backend: BackendSearch}, false, &Search{}, false},
		{"llm", Config{Backend: BackendLLM}, true, &LLM{}, false},
		{"llm without client", Config{Backend: BackendLLM}, false, nil, true},
		{"scrape", Config{Backend: BackendScrape, Scrape: ScrapeConfig{URLTemplate: "http://localhost/?q={query}"}}, false, &Scrape{}, false},
		{"scrape without placeholder", Config{Backend: BackendScrape, Scrape: ScrapeConfig{URLTemplate: "http://localhost/"}}, false, nil, true},
		{"unknown", Config{Backend: "oracle"}, false, nil, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var client *testutil.MockLLMClient
			if tt.client {
				client = &testutil.MockLLMClient{}
			}
			var a Answerer
			var err error
			if client != nil {
				a, err = New(tt.config, client)
			} else {
				a, err = New(tt.config, nil)
			}
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.IsType(t, tt.want, a)
		})
	}
}

func TestUnsupportedBackendError(t *testing.T) {
	_, err := New(Config{Backend: "oracle"}, nil)
	var ube *UnsupportedBackendError
	require.ErrorAs(t, err, &ube)
	assert.Equal(t, "oracle", ube.Name)
}

func TestClassifyTransport(t *testing.T) {
	dial := &net.OpError{Op: "dial", Net: "tcp", Err: errors.New("connection refused")}
	assert.ErrorIs(t, classifyTransport(dial), ErrUnavailable)

	read := &net.OpError{Op: "read", Net: "tcp", Err: errors.New("reset")}
	assert.NotErrorIs(t, classifyTransport(read), ErrUnavailable)

	assert.NoError(t, classifyTransport(nil))
}

func TestFuncAdapter(t *testing.T) {
	var a Answerer = Func(func(_ context.Context, q *schema.Query) (*schema.Response, error) {
		return &schema.Response{Question: q.Question}, nil
	})
	resp, err := a.Answer(context.Background(), &schema.Query{Question: "q"})
	require.NoError(t, err)
	assert.Equal(t, "q", resp.Question)
}

func TestProcessQuestion(t *testing.T) {
	assert.Equal(t, "What is ABC 123?", ProcessQuestion("  What\tis  ＡＢＣ １２３?\n"))
	assert.Equal(t, "", ProcessQuestion("   "))
}

func TestLLMAnswer(t *testing.T) {
	client := &testutil.MockLLMClient{Responses: map[string]string{"Who wrote Hamlet?": " Shakespeare \n"}}
	a := NewLLM(client, LLMConfig{Model: "qa-model", Temperature: llm.Float64Ptr(0.2)})

	resp, err := a.Answer(context.Background(), &schema.Query{
		Question: "Who wrote Hamlet?",
		Context:  []schema.Context{{Document: "Hamlet is a tragedy by William Shakespeare."}, {}},
	})
	require.NoError(t, err)
	require.Len(t, resp.Answers, 1)
	assert.Equal(t, "Shakespeare", resp.Answers[0].Text)
	assert.Contains(t, resp.Answers[0].Scores, "latency_seconds")
	reason, ok := resp.Answers[0].Extension("finish_reason")
	require.True(t, ok)
	assert.Equal(t, "stop", reason)
	assert.Equal(t, 10.0, resp.Observations["usage"].Scores["prompt_tokens"])

	req := client.LastRequest()
	assert.Equal(t, "qa-model", req.Model)
	assert.Contains(t, req.SystemMessage, DefaultLLMSystemPrompt)
	assert.Contains(t, req.SystemMessage, "[1] Hamlet is a tragedy by William Shakespeare.")
	assert.NotContains(t, req.SystemMessage, "[2]")
	require.NotNil(t, req.Temperature)
	assert.Equal(t, 0.2, *req.Temperature)
}

func TestLLMAnswerLeavesTemperatureUnset(t *testing.T) {
	client := &testutil.MockLLMClient{}
	a := NewLLM(client, LLMConfig{})

	_, err := a.Answer(context.Background(), &schema.Query{Question: "x"})
	require.NoError(t, err)
	assert.Nil(t, client.LastRequest().Temperature)
}

func TestLLMAnswerError(t *testing.T) {
	client := &testutil.MockLLMClient{Err: errors.New("rate limited")}
	a := NewLLM(client, LLMConfig{})

	_, err := a.Answer(context.Background(), &schema.Query{ID: "q1", Question: "x"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "rate limited")
	assert.NotErrorIs(t, err, ErrUnavailable)
}
