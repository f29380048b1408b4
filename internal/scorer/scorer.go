// Package scorer rates evaluation results: SQuAD exact match and F1 against
// the gold answers, with an optional LLM judge for answers that are right but
// worded differently.
package scorer

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"math"
	"os"
	"regexp"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/giantswarm/qa-environment/internal/llm"
	"github.com/giantswarm/qa-environment/internal/qainstance"
	"github.com/giantswarm/qa-environment/internal/schema"
)

// DefaultJudgeModel is the default model used for LLM-as-judge scoring.
const DefaultJudgeModel = "gpt-4o-mini"

// Config holds judge configuration. It is ignored when the Scorer has no
// LLM client.
type Config struct {
	JudgeModel  string
	Repetitions int
}

// InstanceScore holds the metrics of one QAInstance.
type InstanceScore struct {
	ID             string  `json:"id"`
	IsImpossible   bool    `json:"is_impossible,omitempty"`
	Prediction     string  `json:"prediction"`
	OriginalEM     float64 `json:"original_em"`
	OriginalF1     float64 `json:"original_f1"`
	BestPrediction string  `json:"best_prediction"`
	BestEM         float64 `json:"best_em"`
	BestF1         float64 `json:"best_f1"`
	BestIsRewrite  bool    `json:"best_is_rewrite"`
	Rewrites       int     `json:"rewrites"`
	Failed         int     `json:"failed_responses"`
}

// ScoreOutput is the full structured scoring output.
type ScoreOutput struct {
	Metadata  ScoreMetadata   `json:"metadata"`
	Instances []InstanceScore `json:"instances"`
	Summary   Summary         `json:"summary"`
	Judge     *JudgeResult    `json:"judge,omitempty"`
}

// ScoreMetadata holds information about the scoring run.
type ScoreMetadata struct {
	Timestamp   string `json:"timestamp"`
	ResultsFile string `json:"results_file"`
	Instances   int    `json:"instances"`
	JudgeModel  string `json:"judge_model,omitempty"`
	Repetitions int    `json:"repetitions,omitempty"`
}

// Summary holds aggregate statistics over all instances. Pointers are nil
// when there were no instances.
type Summary struct {
	MeanOriginalEM    *float64 `json:"mean_original_em"`
	MeanOriginalF1    *float64 `json:"mean_original_f1"`
	MeanBestEM        *float64 `json:"mean_best_em"`
	MeanBestF1        *float64 `json:"mean_best_f1"`
	Improvement       *float64 `json:"f1_improvement"`
	MinBestF1         *float64 `json:"min_best_f1"`
	MaxBestF1         *float64 `json:"max_best_f1"`
	VarianceBestF1    *float64 `json:"variance_best_f1"`
	ImprovedInstances int      `json:"improved_instances"`
	AllResponsesOK    bool     `json:"all_responses_ok"`
}

// RunScore represents the parsed result of a single judge run.
type RunScore struct {
	Correct   *int     `json:"correct"`
	Total     *int     `json:"total"`
	Percent   *float64 `json:"percentage"`
	RawOutput string   `json:"raw_output"`
	ParseErr  string   `json:"parse_error,omitempty"`
}

// JudgeResult holds the judge runs and their statistics.
type JudgeResult struct {
	Runs    []RunScore   `json:"runs"`
	Summary JudgeSummary `json:"summary"`
}

// JudgeSummary holds aggregate statistics from multiple judge runs.
type JudgeSummary struct {
	MeanCorrect   *float64 `json:"mean_correct"`
	MeanPercent   *float64 `json:"mean_percentage"`
	MinCorrect    *int     `json:"min_correct"`
	MaxCorrect    *int     `json:"max_correct"`
	Variance      *float64 `json:"variance"`
	AllRunsParsed bool     `json:"all_runs_parsed"`
}

// Scorer evaluates QAInstances.
type Scorer struct {
	client llm.Client
	config Config
}

// NewScorer creates a new Scorer. client may be nil to skip the LLM judge.
func NewScorer(client llm.Client, config Config) *Scorer {
	if config.Repetitions <= 0 {
		config.Repetitions = 3
	}
	if config.JudgeModel == "" {
		config.JudgeModel = DefaultJudgeModel
	}
	return &Scorer{client: client, config: config}
}

// Prediction returns the text of the top answer of r, or "" when there is none.
func Prediction(r *schema.Response) string {
	if a := r.TopAnswer(); a != nil {
		return a.Text
	}
	return ""
}

// GoldF1 scores a pair by the F1 of its top answer against golds. Pairs
// without a usable response are skipped.
func GoldF1(golds []string) qainstance.ScoreFunc {
	return func(pair *schema.QueryResponse) (float64, bool) {
		if pair == nil || pair.Response == nil || pair.Response.Failed() {
			return 0, false
		}
		_, f1 := Best(Prediction(pair.Response), golds)
		return f1, true
	}
}

// ScoreInstance computes EM and F1 for the original pair and for qr_best
// (falling back to the original when qr_best is unset).
func ScoreInstance(inst *schema.QAInstance) InstanceScore {
	score := InstanceScore{
		ID:           inst.ID,
		IsImpossible: inst.IsImpossible,
		Rewrites:     len(inst.QRRewrites),
	}
	for _, p := range inst.Pairs() {
		if p.Response == nil || p.Response.Failed() {
			score.Failed++
		}
	}

	if inst.QROriginal != nil {
		score.Prediction = Prediction(inst.QROriginal.Response)
		score.OriginalEM, score.OriginalF1 = Best(score.Prediction, inst.GoldAnswers)
	}

	best := inst.QRBest
	if best == nil {
		best = inst.QROriginal
	}
	if best != nil {
		score.BestPrediction = Prediction(best.Response)
		score.BestEM, score.BestF1 = Best(score.BestPrediction, inst.GoldAnswers)
		score.BestIsRewrite = best != inst.QROriginal
	}
	return score
}

// ScoreFile reads an instances.jsonl file and scores it.
func (s *Scorer) ScoreFile(ctx context.Context, resultsFile string) (*ScoreOutput, error) {
	f, err := os.Open(resultsFile)
	if err != nil {
		return nil, fmt.Errorf("failed to read results file: %w", err)
	}
	defer f.Close()

	instances, err := qainstance.ReadJSONL(f)
	if err != nil {
		return nil, fmt.Errorf("failed to parse results file: %w", err)
	}
	return s.Score(ctx, instances, resultsFile)
}

// Score evaluates the given instances.
func (s *Scorer) Score(ctx context.Context, instances []*schema.QAInstance, resultsFile string) (*ScoreOutput, error) {
	output := &ScoreOutput{
		Metadata: ScoreMetadata{
			Timestamp:   time.Now().Format(time.RFC3339),
			ResultsFile: resultsFile,
			Instances:   len(instances),
		},
		Instances: make([]InstanceScore, 0, len(instances)),
	}

	for _, inst := range instances {
		output.Instances = append(output.Instances, ScoreInstance(inst))
	}
	output.Summary = summarize(output.Instances)

	if s.client != nil && len(instances) > 0 {
		output.Metadata.JudgeModel = s.config.JudgeModel
		output.Metadata.Repetitions = s.config.Repetitions
		judge, err := s.judge(ctx, FormatInstances(instances))
		if err != nil {
			return nil, err
		}
		output.Judge = judge
	}

	return output, nil
}

// FormatInstances renders the best answer of every instance in the text
// layout the judge prompt expects.
func FormatInstances(instances []*schema.QAInstance) string {
	var b strings.Builder
	for _, inst := range instances {
		best := inst.QRBest
		if best == nil {
			best = inst.QROriginal
		}
		var question, answer string
		if inst.QROriginal != nil {
			question = inst.QROriginal.Query.GetQuestion()
		}
		if best != nil {
			answer = Prediction(best.Response)
		}
		fmt.Fprintf(&b, "---\n")
		fmt.Fprintf(&b, "NO. %s - %s\n", inst.ID, inst.Title)
		fmt.Fprintf(&b, "QUESTION: %s\n", question)
		fmt.Fprintf(&b, "EXPECTED ANSWER: %s\n", strings.Join(inst.GoldAnswers, " | "))
		fmt.Fprintf(&b, "ACTUAL ANSWER: %s\n", answer)
	}
	return b.String()
}

func (s *Scorer) judge(ctx context.Context, content string) (*JudgeResult, error) {
	result := &JudgeResult{Runs: make([]RunScore, 0, s.config.Repetitions)}

	for i := 0; i < s.config.Repetitions; i++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		slog.Info("judge run", "run", i+1, "total", s.config.Repetitions)

		resp, err := s.client.ChatCompletion(ctx, llm.ChatRequest{
			Model:         s.config.JudgeModel,
			SystemMessage: JudgePrompt,
			UserMessage:   content,
			Temperature:   llm.Float64Ptr(0),
		})
		if err != nil {
			slog.Error("judge run failed", "run", i+1, "error", err)
			result.Runs = append(result.Runs, RunScore{ParseErr: err.Error()})
			continue
		}

		parsed := parseScore(resp.Content)
		result.Runs = append(result.Runs, parsed)
		if parsed.Correct != nil {
			slog.Info("judge score parsed",
				"run", i+1,
				"correct", *parsed.Correct,
				"total", *parsed.Total,
				"percentage", *parsed.Percent,
			)
		}
	}

	result.Summary = calculateStatistics(result.Runs)
	return result, nil
}

// WriteScoreFile writes the score output as JSON next to the results file.
func WriteScoreFile(output *ScoreOutput, resultsFile string) (string, error) {
	scoresFile := strings.TrimSuffix(resultsFile, ".jsonl") + "_scores.json"

	data, err := json.MarshalIndent(output, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to marshal scores: %w", err)
	}

	if err := os.WriteFile(scoresFile, data, 0o644); err != nil {
		return "", fmt.Errorf("failed to write scores file: %w", err)
	}

	return scoresFile, nil
}

func summarize(scores []InstanceScore) Summary {
	if len(scores) == 0 {
		return Summary{}
	}

	var origEM, origF1, bestEM, bestF1 []float64
	sum := Summary{AllResponsesOK: true}
	for _, s := range scores {
		origEM = append(origEM, s.OriginalEM)
		origF1 = append(origF1, s.OriginalF1)
		bestEM = append(bestEM, s.BestEM)
		bestF1 = append(bestF1, s.BestF1)
		if s.BestF1 > s.OriginalF1 {
			sum.ImprovedInstances++
		}
		if s.Failed > 0 {
			sum.AllResponsesOK = false
		}
	}

	mOrigEM, mOrigF1 := meanFloat(origEM), meanFloat(origF1)
	mBestEM, mBestF1 := meanFloat(bestEM), meanFloat(bestF1)
	improvement := round2(mBestF1 - mOrigF1)
	minF1, maxF1 := round2(slices.Min(bestF1)), round2(slices.Max(bestF1))
	variance := varianceOf(bestF1, mBestF1)

	sum.MeanOriginalEM = &mOrigEM
	sum.MeanOriginalF1 = &mOrigF1
	sum.MeanBestEM = &mBestEM
	sum.MeanBestF1 = &mBestF1
	sum.Improvement = &improvement
	sum.MinBestF1 = &minF1
	sum.MaxBestF1 = &maxF1
	sum.VarianceBestF1 = &variance
	return sum
}

var scorePattern = regexp.MustCompile(`(\d+)\s+out\s+of\s+(\d+)`)

func parseScore(text string) RunScore {
	matches := scorePattern.FindStringSubmatch(text)
	if matches == nil {
		return RunScore{
			RawOutput: text,
			ParseErr:  "Could not parse score from output",
		}
	}

	correct, _ := strconv.Atoi(matches[1])
	total, _ := strconv.Atoi(matches[2])
	pct := 0.0
	if total > 0 {
		pct = round2(float64(correct) / float64(total) * 100)
	}

	return RunScore{
		Correct:   &correct,
		Total:     &total,
		Percent:   &pct,
		RawOutput: text,
	}
}

func calculateStatistics(runs []RunScore) JudgeSummary {
	var correctValues []float64
	var percentValues []float64

	for _, r := range runs {
		if r.Correct != nil {
			correctValues = append(correctValues, float64(*r.Correct))
			percentValues = append(percentValues, *r.Percent)
		}
	}

	if len(correctValues) == 0 {
		return JudgeSummary{AllRunsParsed: false}
	}

	meanCorrect := meanFloat(correctValues)
	meanPercent := meanFloat(percentValues)
	minC := int(slices.Min(correctValues))
	maxC := int(slices.Max(correctValues))
	variance := varianceOf(correctValues, meanCorrect)

	return JudgeSummary{
		MeanCorrect:   &meanCorrect,
		MeanPercent:   &meanPercent,
		MinCorrect:    &minC,
		MaxCorrect:    &maxC,
		Variance:      &variance,
		AllRunsParsed: len(correctValues) == len(runs),
	}
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

func meanFloat(vals []float64) float64 {
	sum := 0.0
	for _, v := range vals {
		sum += v
	}
	return round2(sum / float64(len(vals)))
}

// varianceOf calculates the population variance of vals given a precomputed mean.
func varianceOf(vals []float64, mean float64) float64 {
	if len(vals) == 0 {
		return 0
	}
	sumSquaredDiff := 0.0
	for _, v := range vals {
		diff := v - mean
		sumSquaredDiff += diff * diff
	}
	return round2(sumSquaredDiff / float64(len(vals)))
}
