package answerer

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/giantswarm/qa-environment/internal/schema"
)

func TestSearchRanksRelevantPassageFirst(t *testing.T) {
	s := NewSearch(SearchConfig{MaxResults: 2})

	q := &schema.Query{
		Question: "When was the Eiffel Tower completed?",
		Context: []schema.Context{
			{Document: "Paris is the capital of France. It hosts many museums."},
			{Document: "The Eiffel Tower was completed in 1889. It was designed by Gustave Eiffel's company."},
		},
	}

	resp, err := s.Answer(context.Background(), q)
	require.NoError(t, err)
	require.NotEmpty(t, resp.Answers)
	assert.LessOrEqual(t, len(resp.Answers), 2)
	assert.Equal(t, "The Eiffel Tower was completed in 1889.", resp.Answers[0].Text)
	assert.Greater(t, resp.Answers[0].Scores["tfidf"], 0.0)

	src, ok := resp.Answers[0].Extension("source")
	require.True(t, ok)
	assert.Equal(t, map[string]any{"document": 1.0, "passage": 0.0}, src)

	assert.Equal(t, 2.0, resp.Observations["index"].Scores["documents"])
	assert.Equal(t, 4.0, resp.Observations["index"].Scores["passages"])
	assert.Equal(t, "When was the Eiffel Tower completed?", resp.ProcessedQuestion)
}

func TestSearchUsesTokenizedQuestion(t *testing.T) {
	s := NewSearch(SearchConfig{})

	q := &schema.Query{
		Question:          "unrelated words",
		TokenizedQuestion: []string{"river"},
		Context:           []schema.Context{{Document: "Mountains are tall. The river is long."}},
	}

	resp, err := s.Answer(context.Background(), q)
	require.NoError(t, err)
	require.Len(t, resp.Answers, 1)
	assert.Equal(t, "The river is long.", resp.Answers[0].Text)
}

func TestSearchWithoutContextFails(t *testing.T) {
	_, err := NewSearch(SearchConfig{}).Answer(context.Background(), &schema.Query{Question: "q"})
	assert.Error(t, err)
}

func TestSearchNoMatchReturnsNoAnswers(t *testing.T) {
	resp, err := NewSearch(SearchConfig{}).Answer(context.Background(), &schema.Query{
		Question: "zebra",
		Context:  []schema.Context{{Document: "Nothing relevant here."}},
	})
	require.NoError(t, err)
	assert.Empty(t, resp.Answers)
}
