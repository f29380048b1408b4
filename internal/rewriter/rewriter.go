// Package rewriter produces alternative phrasings of a question with a chat
// model. Rewrites are sent to the environment next to the original question
// so the evaluation can pick the phrasing that yields the best answer.
package rewriter

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/giantswarm/qa-environment/internal/llm"
	"github.com/giantswarm/qa-environment/internal/schema"
)

// DefaultSystemPrompt asks for one self-contained rewrite per completion.
const DefaultSystemPrompt = `Rewrite the user's question so that a reading-comprehension system can answer it more easily.
Keep its meaning unchanged. Reply with the rewritten question only.`

// Config configures the rewriter.
type Config struct {
	Model        string
	SystemPrompt string
	// Count is the number of rewrites per question (default 1).
	Count       int
	Temperature float64
}

// Rewriter turns a query into rewrite queries.
type Rewriter struct {
	client llm.Client
	config Config
}

// New creates a Rewriter.
func New(client llm.Client, config Config) *Rewriter {
	if config.Count <= 0 {
		config.Count = 1
	}
	if config.SystemPrompt == "" {
		config.SystemPrompt = DefaultSystemPrompt
	}
	return &Rewriter{client: client, config: config}
}

// Rewrite returns up to Count rewrites of q. Each rewrite keeps q's context,
// carries q's question as original_question and gets the id "<id>#<n>".
// Blank rewrites and rewrites identical to the original are dropped, so
// fewer than Count queries may be returned.
func (r *Rewriter) Rewrite(ctx context.Context, q *schema.Query) ([]*schema.Query, error) {
	if q == nil || strings.TrimSpace(q.Question) == "" {
		return nil, errors.New("cannot rewrite an empty question")
	}

	resp, err := r.client.ChatCompletion(ctx, llm.ChatRequest{
		Model:         r.config.Model,
		SystemMessage: r.config.SystemPrompt,
		UserMessage:   q.Question,
		Temperature:   llm.Float64Ptr(r.config.Temperature),
		N:             r.config.Count,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to rewrite question %q: %w", q.ID, err)
	}

	choices := resp.Choices
	if len(choices) == 0 {
		choices = []string{resp.Content}
	}

	seen := map[string]bool{normalize(q.Question): true}
	var out []*schema.Query
	for _, choice := range choices {
		// Servers that ignore n may answer with one rewrite per line.
		for _, line := range strings.Split(choice, "\n") {
			text := cleanLine(line)
			key := normalize(text)
			if key == "" || seen[key] {
				continue
			}
			seen[key] = true
			out = append(out, derive(q, text, len(out)+1))
			if len(out) == r.config.Count {
				return out, nil
			}
		}
	}
	return out, nil
}

func derive(q *schema.Query, question string, n int) *schema.Query {
	rw := &schema.Query{
		Question:         question,
		Context:          q.Context,
		SecondaryID:      q.SecondaryID,
		PassthroughDebug: schema.CloneDebug(q.PassthroughDebug),
		OriginalQuestion: q.Question,
		IsImpossible:     q.IsImpossible,
	}
	if q.ID != "" {
		rw.ID = q.ID + "#" + strconv.Itoa(n)
	}
	if rw.PassthroughDebug == nil {
		rw.PassthroughDebug = make(map[string]string, 1)
	}
	rw.PassthroughDebug["rewrite"] = strconv.Itoa(n)
	return rw
}

// cleanLine strips list markers and quotes models like to add.
func cleanLine(s string) string {
	s = strings.TrimSpace(s)
	s = strings.TrimLeft(s, "-*• ")
	if i := strings.IndexAny(s, ".)"); i > 0 && i <= 3 {
		if _, err := strconv.Atoi(s[:i]); err == nil {
			s = s[i+1:]
		}
	}
	return strings.Trim(strings.TrimSpace(s), `"'`)
}

func normalize(s string) string {
	return strings.ToLower(strings.Join(strings.Fields(s), " "))
}
