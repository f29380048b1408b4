// Package schema defines the wire data model of the question-answering
// environment: queries, their supporting contexts, the responses and
// observations produced for them, and the bookkeeping records used to pair
// original and rewritten questions with ground-truth answers.
//
// Optional string fields use the empty string for "unset". Values are treated
// as immutable once handed to another component; use the Clone helpers when a
// modified copy is needed.
package schema

import "maps"

// Context is a supporting document for a question.
type Context struct {
	Document string `json:"document,omitempty"`
	// TokenizedDocument, when present, is a tokenization of Document.
	TokenizedDocument []string `json:"tokenized_document,omitempty"`
}

// Query is one question to answer.
type Query struct {
	Question string    `json:"question"`
	Context  []Context `json:"context,omitempty"`

	// ID identifies the query within its batch for correlation.
	ID string `json:"id,omitempty"`
	// SecondaryID is only meaningful when IsImpossible is true.
	SecondaryID string `json:"secondary_id,omitempty"`

	// PassthroughDebug is echoed verbatim onto the matching Response.
	PassthroughDebug map[string]string `json:"passthrough_debug,omitempty"`

	TokenizedQuestion []string `json:"tokenized_question,omitempty"`
	OriginalQuestion  string   `json:"original_question,omitempty"`
	IsImpossible      bool     `json:"is_impossible,omitempty"`
}

// GetQuestion returns the question text, tolerating a nil query.
func (q *Query) GetQuestion() string {
	if q == nil {
		return ""
	}
	return q.Question
}

// GetID returns the query id, tolerating a nil query.
func (q *Query) GetID() string {
	if q == nil {
		return ""
	}
	return q.ID
}

// GetPassthroughDebug returns the passthrough map, tolerating a nil query.
func (q *Query) GetPassthroughDebug() map[string]string {
	if q == nil {
		return nil
	}
	return q.PassthroughDebug
}

// GetOriginalQuestion returns the pre-rewrite question, tolerating a nil query.
func (q *Query) GetOriginalQuestion() string {
	if q == nil {
		return ""
	}
	return q.OriginalQuestion
}

// Documents returns the non-empty context documents in order.
func (q *Query) Documents() []string {
	if q == nil {
		return nil
	}
	docs := make([]string, 0, len(q.Context))
	for _, c := range q.Context {
		if c.Document != "" {
			docs = append(docs, c.Document)
		}
	}
	return docs
}

// Response is the environment's answer to one Query.
type Response struct {
	Question          string                 `json:"question"`
	ProcessedQuestion string                 `json:"processed_question,omitempty"`
	Answers           []Observation          `json:"answers,omitempty"`
	Observations      map[string]Observation `json:"observations,omitempty"`

	// ID equals the originating Query's ID when set.
	ID               string            `json:"id,omitempty"`
	PassthroughDebug map[string]string `json:"passthrough_debug,omitempty"`
	OriginalQuestion string            `json:"original_question,omitempty"`

	// ErrorMessage is set when this single query failed. The error is scoped
	// to the response, never to the batch.
	ErrorMessage string `json:"error_message,omitempty"`

	QuestionOriginalSimilarity *float64 `json:"question_original_similarity,omitempty"`
}

// Failed reports whether the response carries a query-scoped error.
func (r *Response) Failed() bool {
	return r != nil && r.ErrorMessage != ""
}

// TopAnswer returns the first answer, or nil when there is none.
func (r *Response) TopAnswer() *Observation {
	if r == nil || len(r.Answers) == 0 {
		return nil
	}
	return &r.Answers[0]
}

// EnvironmentRequest is a batch of independent queries. The i-th response of
// the matching EnvironmentResponse corresponds to the i-th query.
type EnvironmentRequest struct {
	Queries []*Query `json:"queries"`
}

// EnvironmentResponse is a batch of responses, positionally matched to the
// originating request's queries.
type EnvironmentResponse struct {
	Responses []*Response `json:"responses"`
}

// QueryResponse ties a response back to the exact query that produced it.
type QueryResponse struct {
	Query    *Query    `json:"query,omitempty"`
	Response *Response `json:"response,omitempty"`
}

// QAInstance is a full evaluation datapoint.
type QAInstance struct {
	ID               string           `json:"id"`
	QROriginal       *QueryResponse   `json:"qr_original,omitempty"`
	QRRewrites       []*QueryResponse `json:"qr_rewrites,omitempty"`
	GoldAnswers      []string         `json:"gold_answers,omitempty"`
	QRBest           *QueryResponse   `json:"qr_best,omitempty"`
	IsImpossible     bool             `json:"is_impossible,omitempty"`
	PlausibleAnswers []string         `json:"plausible_answers,omitempty"`
	Title            string           `json:"title,omitempty"`
}

// Pairs returns the original pair followed by the rewrites, skipping nils.
func (i *QAInstance) Pairs() []*QueryResponse {
	if i == nil {
		return nil
	}
	pairs := make([]*QueryResponse, 0, 1+len(i.QRRewrites))
	if i.QROriginal != nil {
		pairs = append(pairs, i.QROriginal)
	}
	for _, qr := range i.QRRewrites {
		if qr != nil {
			pairs = append(pairs, qr)
		}
	}
	return pairs
}

// CloneDebug returns a copy of a passthrough map. A nil map stays nil so that
// an absent mapping is echoed as absent.
func CloneDebug(m map[string]string) map[string]string {
	if m == nil {
		return nil
	}
	return maps.Clone(m)
}

// NewErrorResponse builds the response recorded for a query whose backend call
// failed: identity fields are echoed and no answers are attached.
func NewErrorResponse(q *Query, msg string) *Response {
	return &Response{
		Question:         q.GetQuestion(),
		ID:               q.GetID(),
		PassthroughDebug: CloneDebug(q.GetPassthroughDebug()),
		OriginalQuestion: q.GetOriginalQuestion(),
		ErrorMessage:     msg,
	}
}
