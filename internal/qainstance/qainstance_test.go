package qainstance

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/giantswarm/qa-environment/internal/schema"
)

func scored(question string, scores ...float64) *schema.QueryResponse {
	resp := &schema.Response{Question: question}
	for _, s := range scores {
		resp.Answers = append(resp.Answers, schema.Observation{Text: question, Scores: map[string]float64{"f1": s}})
	}
	return Pair(&schema.Query{Question: question}, resp)
}

func TestAssembleWithoutScoreFunc(t *testing.T) {
	orig := scored("orig", 0.5)
	rewrites := []*schema.QueryResponse{scored("r1", 0.9)}

	inst, err := Assemble(orig, rewrites, Labels{
		ID:               "x1",
		GoldAnswers:      []string{"Paris"},
		PlausibleAnswers: []string{"France"},
		IsImpossible:     true,
		Title:            "Geography",
	})
	require.NoError(t, err)

	assert.Equal(t, "x1", inst.ID)
	assert.Same(t, orig, inst.QROriginal)
	assert.Same(t, rewrites[0], inst.QRRewrites[0])
	assert.Nil(t, inst.QRBest)
	assert.Equal(t, []string{"Paris"}, inst.GoldAnswers)
	assert.Equal(t, []string{"France"}, inst.PlausibleAnswers)
	assert.True(t, inst.IsImpossible)
	assert.Equal(t, "Geography", inst.Title)
	assert.NoError(t, Validate(inst))
}

func TestAssembleBestIsIdentical(t *testing.T) {
	orig := scored("orig", 0.2)
	r1 := scored("r1", 0.4)
	r2 := scored("r2", 0.1, 0.95)
	r3 := scored("r3", 0.3)

	inst, err := Assemble(orig, []*schema.QueryResponse{r1, r2, r3}, Labels{ID: "x"}, WithScoreFunc(MaxAnswerScore("f1")))
	require.NoError(t, err)
	assert.Same(t, r2, inst.QRBest)
	assert.NoError(t, Validate(inst))
}

func TestAssembleTiesKeepEarliest(t *testing.T) {
	orig := scored("orig", 0.5)
	r1 := scored("r1", 0.5)

	inst, err := Assemble(orig, []*schema.QueryResponse{r1}, Labels{}, WithScoreFunc(MaxAnswerScore("f1")))
	require.NoError(t, err)
	assert.Same(t, orig, inst.QRBest)

	r2 := scored("r2", 0.7)
	r3 := scored("r3", 0.7)
	inst, err = Assemble(orig, []*schema.QueryResponse{r2, r3}, Labels{}, WithScoreFunc(MaxAnswerScore("f1")))
	require.NoError(t, err)
	assert.Same(t, r2, inst.QRBest)
}

func TestAssembleSkipsUnscoredPairs(t *testing.T) {
	orig := Pair(&schema.Query{Question: "orig"}, &schema.Response{ErrorMessage: "failed"})
	r1 := scored("r1")
	r2 := scored("r2", 0.1)

	inst, err := Assemble(orig, []*schema.QueryResponse{r1, nil, r2}, Labels{}, WithScoreFunc(MaxAnswerScore("f1")))
	require.NoError(t, err)
	assert.Same(t, r2, inst.QRBest)

	inst, err = Assemble(orig, nil, Labels{}, WithScoreFunc(MaxAnswerScore("f1")))
	require.NoError(t, err)
	assert.Nil(t, inst.QRBest)
}

func TestAssembleRequiresOriginal(t *testing.T) {
	_, err := Assemble(nil, nil, Labels{})
	assert.Error(t, err)
}

func TestValidateRejectsForeignBest(t *testing.T) {
	orig := scored("orig", 0.1)
	inst, err := Assemble(orig, []*schema.QueryResponse{scored("r1", 0.2)}, Labels{ID: "x"})
	require.NoError(t, err)

	// An equal-valued copy is not the same pair.
	inst.QRBest = scored("r1", 0.2)
	assert.Error(t, Validate(inst))

	assert.Error(t, Validate(nil))
	assert.Error(t, Validate(&schema.QAInstance{ID: "empty"}))
}

func TestJSONLRoundTripRelinksBest(t *testing.T) {
	orig := scored("orig", 0.2)
	r1 := scored("r1", 0.9)
	inst, err := Assemble(orig, []*schema.QueryResponse{r1}, Labels{ID: "x", GoldAnswers: []string{"a"}}, WithScoreFunc(MaxAnswerScore("f1")))
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, WriteJSONL(&buf, []*schema.QAInstance{inst, inst}))
	assert.Equal(t, 2, strings.Count(buf.String(), "\n"))

	got, err := ReadJSONL(&buf)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "x", got[0].ID)
	require.Len(t, got[0].QRRewrites, 1)
	assert.Same(t, got[0].QRRewrites[0], got[0].QRBest)
	assert.NoError(t, Validate(got[0]))
}

func TestReadJSONLRejectsGarbage(t *testing.T) {
	_, err := ReadJSONL(strings.NewReader("{\"id\":\"ok\"}\nnot json\n"))
	assert.Error(t, err)
}
