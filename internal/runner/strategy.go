package runner

import (
	"strings"

	"github.com/giantswarm/qa-environment/internal/qainstance"
	"github.com/giantswarm/qa-environment/internal/scorer"
	"github.com/giantswarm/qa-environment/internal/testsuite"
)

// SelectionStrategy decides how qr_best is picked for an item.
type SelectionStrategy interface {
	// Name returns the strategy identifier (e.g. "gold_f1").
	Name() string

	// ScoreFunc returns the score function for item, or nil to leave
	// qr_best unset.
	ScoreFunc(item testsuite.Item) qainstance.ScoreFunc
}

// GetStrategy returns a SelectionStrategy by name:
//
//	gold_f1 (default)  F1 of the top answer against the item's gold answers
//	max_score:<name>   highest answer score <name> reported by the backend
//	none               no selection
func GetStrategy(name string) (SelectionStrategy, error) {
	switch {
	case name == "gold_f1" || name == "":
		return goldF1Strategy{}, nil
	case name == "none":
		return noSelection{}, nil
	case strings.HasPrefix(name, "max_score:") && len(name) > len("max_score:"):
		return maxScoreStrategy{score: strings.TrimPrefix(name, "max_score:")}, nil
	default:
		return nil, &UnsupportedStrategyError{Name: name}
	}
}

// UnsupportedStrategyError is returned when an unknown strategy is requested.
type UnsupportedStrategyError struct {
	Name string
}

func (e *UnsupportedStrategyError) Error() string {
	return "unsupported selection strategy: " + e.Name
}

type goldF1Strategy struct{}

func (goldF1Strategy) Name() string { return "gold_f1" }

func (goldF1Strategy) ScoreFunc(item testsuite.Item) qainstance.ScoreFunc {
	return scorer.GoldF1(item.GoldAnswers)
}

type maxScoreStrategy struct {
	score string
}

func (s maxScoreStrategy) Name() string { return "max_score:" + s.score }

func (s maxScoreStrategy) ScoreFunc(testsuite.Item) qainstance.ScoreFunc {
	return qainstance.MaxAnswerScore(s.score)
}

type noSelection struct{}

func (noSelection) Name() string { return "none" }

func (noSelection) ScoreFunc(testsuite.Item) qainstance.ScoreFunc { return nil }
