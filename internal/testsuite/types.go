package testsuite

import (
	"time"

	"github.com/giantswarm/qa-environment/internal/qainstance"
	"github.com/giantswarm/qa-environment/internal/schema"
)

// Supported question file formats.
const (
	FormatCSV   = "csv"
	FormatSQuAD = "squad"
)

// TestSuite is an evaluation dataset: its configuration and the loaded items.
type TestSuite struct {
	Name        string `yaml:"name"`
	Description string `yaml:"description"`
	Version     string `yaml:"version"`
	// Format is "csv" (default) or "squad". A questions file ending in .json
	// implies "squad".
	Format        string  `yaml:"format"`
	QuestionsFile string  `yaml:"questions_file"`
	Rewrite       Rewrite `yaml:"rewrite"`
	Items         []Item  `yaml:"-"` // loaded separately from the questions file
}

// Rewrite configures question rewriting for a suite.
type Rewrite struct {
	// Count is the number of rewrites requested per question. Zero disables
	// rewriting unless overridden at runtime.
	Count         int    `yaml:"count"`
	SystemMessage string `yaml:"system_message"`
}

// Item is one question with its supporting documents and ground truth.
type Item struct {
	ID               string   `json:"id"`
	Title            string   `json:"title,omitempty"`
	Question         string   `json:"question"`
	Contexts         []string `json:"contexts,omitempty"`
	GoldAnswers      []string `json:"gold_answers,omitempty"`
	PlausibleAnswers []string `json:"plausible_answers,omitempty"`
	IsImpossible     bool     `json:"is_impossible,omitempty"`
}

// Query converts the item into an environment query.
func (i Item) Query() *schema.Query {
	q := &schema.Query{
		Question:     i.Question,
		ID:           i.ID,
		IsImpossible: i.IsImpossible,
	}
	if i.IsImpossible {
		q.SecondaryID = i.ID
	}
	for _, doc := range i.Contexts {
		q.Context = append(q.Context, schema.Context{Document: doc})
	}
	return q
}

// Labels returns the ground truth used to assemble a QAInstance.
func (i Item) Labels() qainstance.Labels {
	return qainstance.Labels{
		ID:               i.ID,
		GoldAnswers:      i.GoldAnswers,
		PlausibleAnswers: i.PlausibleAnswers,
		IsImpossible:     i.IsImpossible,
		Title:            i.Title,
	}
}

// TestRun is the metadata of one evaluation run, written to resultset.json.
type TestRun struct {
	ID            string        `json:"id"`
	Suite         string        `json:"suite"`
	Target        string        `json:"target"`
	Timestamp     time.Time     `json:"timestamp"`
	Duration      time.Duration `json:"duration"`
	Items         int           `json:"items"`
	Rewrites      int           `json:"rewrites"`
	FailedQueries int           `json:"failed_queries"`
	InstancesFile string        `json:"instances_file"`

	Instances []*schema.QAInstance `json:"-"`
}
