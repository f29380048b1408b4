package testsuite

import (
	"embed"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

//go:embed all:testdata
var embeddedSuites embed.FS

// answerSeparator splits multiple answers inside one CSV cell.
const answerSeparator = "|"

// Load loads a test suite by name, searching first in the external directory
// (if provided), then in the embedded test suites.
func Load(name string, externalDir string) (*TestSuite, error) {
	if externalDir != "" {
		dir := filepath.Join(externalDir, name)
		if info, err := os.Stat(dir); err == nil && info.IsDir() {
			return loadFromFS(os.DirFS(dir), name)
		}
	}

	// embed.FS always uses forward slashes.
	subFS, err := fs.Sub(embeddedSuites, path.Join("testdata", name))
	if err != nil {
		return nil, fmt.Errorf("test suite %q not found: %w", name, err)
	}
	return loadFromFS(subFS, name)
}

// List returns the names of all available test suites.
func List(externalDir string) ([]string, error) {
	seen := make(map[string]bool)
	var names []string

	entries, err := fs.ReadDir(embeddedSuites, "testdata")
	if err == nil {
		for _, e := range entries {
			if e.IsDir() {
				seen[e.Name()] = true
				names = append(names, e.Name())
			}
		}
	}

	if externalDir != "" {
		entries, err := os.ReadDir(externalDir)
		if err != nil {
			return nil, fmt.Errorf("failed to read suites directory: %w", err)
		}
		for _, e := range entries {
			if e.IsDir() && !seen[e.Name()] {
				names = append(names, e.Name())
			}
		}
	}

	return names, nil
}

func loadFromFS(fsys fs.FS, name string) (*TestSuite, error) {
	configData, err := fs.ReadFile(fsys, "config.yaml")
	if err != nil {
		return nil, fmt.Errorf("failed to read config.yaml for suite %q: %w", name, err)
	}

	var suite TestSuite
	if err := yaml.Unmarshal(configData, &suite); err != nil {
		return nil, fmt.Errorf("failed to parse config.yaml for suite %q: %w", name, err)
	}
	if suite.Name == "" {
		suite.Name = name
	}
	if suite.QuestionsFile == "" {
		suite.QuestionsFile = "questions.csv"
	}
	if suite.Format == "" {
		suite.Format = FormatCSV
		if strings.HasSuffix(strings.ToLower(suite.QuestionsFile), ".json") {
			suite.Format = FormatSQuAD
		}
	}

	f, err := fsys.Open(suite.QuestionsFile)
	if err != nil {
		return nil, fmt.Errorf("failed to open questions for suite %q: %w", name, err)
	}
	defer f.Close()

	switch suite.Format {
	case FormatCSV:
		suite.Items, err = ReadCSV(f)
	case FormatSQuAD:
		suite.Items, err = ReadSQuAD(f)
	default:
		return nil, fmt.Errorf("suite %q: unsupported format %q", name, suite.Format)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load questions for suite %q: %w", name, err)
	}
	if len(suite.Items) == 0 {
		return nil, fmt.Errorf("suite %q has no questions", name)
	}

	return &suite, nil
}

// ReadCSV parses questions with the columns ID, Title, Question, Context,
// GoldAnswers, PlausibleAnswers and IsImpossible. Only ID and Question are
// required. Answer cells hold several answers separated by "|".
func ReadCSV(r io.Reader) ([]Item, error) {
	reader := csv.NewReader(r)
	reader.LazyQuotes = true
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("failed to read CSV header: %w", err)
	}

	colIndex := make(map[string]int)
	for i, col := range header {
		colIndex[strings.TrimSpace(col)] = i
	}
	for _, required := range []string{"ID", "Question"} {
		if _, ok := colIndex[required]; !ok {
			return nil, fmt.Errorf("missing required CSV column: %s", required)
		}
	}

	minCols := 0
	for _, idx := range colIndex {
		if idx >= minCols {
			minCols = idx + 1
		}
	}

	var items []Item
	for lineNum := 2; ; lineNum++ { // 1-indexed, after the header
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read CSV row %d: %w", lineNum, err)
		}
		if len(record) < minCols {
			return nil, fmt.Errorf("CSV row %d has %d columns, expected at least %d", lineNum, len(record), minCols)
		}

		cell := func(col string) string {
			if i, ok := colIndex[col]; ok {
				return strings.TrimSpace(record[i])
			}
			return ""
		}

		item := Item{
			ID:               cell("ID"),
			Title:            cell("Title"),
			Question:         cell("Question"),
			GoldAnswers:      splitAnswers(cell("GoldAnswers")),
			PlausibleAnswers: splitAnswers(cell("PlausibleAnswers")),
		}
		if doc := cell("Context"); doc != "" {
			item.Contexts = []string{doc}
		}
		if v := cell("IsImpossible"); v != "" {
			item.IsImpossible, err = strconv.ParseBool(v)
			if err != nil {
				return nil, fmt.Errorf("CSV row %d: invalid IsImpossible %q", lineNum, v)
			}
		}
		items = append(items, item)
	}

	return items, nil
}

func splitAnswers(cell string) []string {
	var out []string
	for _, a := range strings.Split(cell, answerSeparator) {
		if a = strings.TrimSpace(a); a != "" {
			out = append(out, a)
		}
	}
	return out
}
