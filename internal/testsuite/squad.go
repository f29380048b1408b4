package testsuite

import (
	"encoding/json"
	"fmt"
	"io"
)

// squadFile is the SQuAD v2.0 dataset layout.
type squadFile struct {
	Version string `json:"version"`
	Data    []struct {
		Title      string `json:"title"`
		Paragraphs []struct {
			Context string `json:"context"`
			Qas     []struct {
				ID               string        `json:"id"`
				Question         string        `json:"question"`
				IsImpossible     bool          `json:"is_impossible"`
				Answers          []squadAnswer `json:"answers"`
				PlausibleAnswers []squadAnswer `json:"plausible_answers,omitempty"`
			} `json:"qas"`
		} `json:"paragraphs"`
	} `json:"data"`
}

type squadAnswer struct {
	AnswerStart int    `json:"answer_start"`
	Text        string `json:"text"`
}

// ReadSQuAD parses a SQuAD v2.0 JSON dataset. Each question becomes one item
// whose single context is its paragraph. Duplicate answer texts are dropped.
func ReadSQuAD(r io.Reader) ([]Item, error) {
	var f squadFile
	if err := json.NewDecoder(r).Decode(&f); err != nil {
		return nil, fmt.Errorf("failed to decode SQuAD JSON: %w", err)
	}

	var items []Item
	for _, article := range f.Data {
		for _, para := range article.Paragraphs {
			for _, qa := range para.Qas {
				items = append(items, Item{
					ID:               qa.ID,
					Title:            article.Title,
					Question:         qa.Question,
					Contexts:         []string{para.Context},
					GoldAnswers:      answerTexts(qa.Answers),
					PlausibleAnswers: answerTexts(qa.PlausibleAnswers),
					IsImpossible:     qa.IsImpossible,
				})
			}
		}
	}
	return items, nil
}

func answerTexts(answers []squadAnswer) []string {
	seen := make(map[string]bool)
	var out []string
	for _, a := range answers {
		if a.Text == "" || seen[a.Text] {
			continue
		}
		seen[a.Text] = true
		out = append(out, a.Text)
	}
	return out
}
