// Package eval scores generated SQL against reference SQL: exact match on
// normalised text and soft accuracy on executed results.
package eval

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"regexp"
	"strings"

	"github.com/leapstack-labs/leapask/pkg/core"
	"gopkg.in/yaml.v3"
)

// Case is one evaluation question. When Predicted is empty the evaluator
// asks its Predictor for the SQL.
type Case struct {
	Question    string `yaml:"question" json:"question"`
	GroundTruth string `yaml:"ground_truth" json:"ground_truth"`
	Predicted   string `yaml:"predicted,omitempty" json:"predicted,omitempty"`
}

// LoadCases reads a YAML list of cases.
func LoadCases(path string) ([]Case, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read eval cases: %w", err)
	}
	var cases []Case
	if err := yaml.Unmarshal(data, &cases); err != nil {
		return nil, fmt.Errorf("failed to parse eval cases %s: %w", path, err)
	}
	for i, c := range cases {
		if strings.TrimSpace(c.GroundTruth) == "" {
			return nil, fmt.Errorf("eval case %d (%q) has no ground_truth", i, c.Question)
		}
	}
	return cases, nil
}

var spaceRe = regexp.MustCompile(`\s+`)

// NormalizeSQL collapses whitespace, lowercases and drops trailing semicolons.
func NormalizeSQL(sql string) string {
	s := spaceRe.ReplaceAllString(strings.TrimSpace(sql), " ")
	return strings.TrimRight(strings.ToLower(s), ";")
}

// ExactMatch compares normalised SQL text.
func ExactMatch(predicted, truth string) bool {
	return NormalizeSQL(predicted) == NormalizeSQL(truth)
}

// Runner executes a statement and returns its rows.
type Runner interface {
	Run(ctx context.Context, sql string) (*core.ResultSet, error)
}

// RunnerFunc adapts a function to Runner.
type RunnerFunc func(ctx context.Context, sql string) (*core.ResultSet, error)

func (f RunnerFunc) Run(ctx context.Context, sql string) (*core.ResultSet, error) { return f(ctx, sql) }

// Predictor produces SQL for a question.
type Predictor func(ctx context.Context, question string) (string, error)

// SoftAccuracy runs both statements and returns the share of agreeing
// cells over columns the two results share, row by row. Either statement
// failing, or differing row counts, score 0. Two empty results score 1.
func SoftAccuracy(ctx context.Context, r Runner, predicted, truth string) float64 {
	pred, err := r.Run(ctx, predicted)
	if err != nil {
		return 0
	}
	gt, err := r.Run(ctx, truth)
	if err != nil {
		return 0
	}
	return compareResults(pred, gt)
}

func compareResults(pred, gt *core.ResultSet) float64 {
	if len(pred.Rows) != len(gt.Rows) {
		return 0
	}
	if len(pred.Rows) == 0 {
		return 1
	}

	gtIndex := make(map[string]int, len(gt.Columns))
	for i, c := range gt.Columns {
		gtIndex[c] = i
	}

	total, matching := 0, 0
	for r, row := range pred.Rows {
		for i, c := range pred.Columns {
			j, ok := gtIndex[c]
			if !ok {
				continue
			}
			total++
			if fmt.Sprint(row[i]) == fmt.Sprint(gt.Rows[r][j]) {
				matching++
			}
		}
	}
	if total == 0 {
		return 0
	}
	return float64(matching) / float64(total)
}

// CaseResult is the score of one case.
type CaseResult struct {
	Case      Case    `json:"case"`
	Predicted string  `json:"predicted"`
	Exact     bool    `json:"exact"`
	Soft      float64 `json:"soft"`
	Error     string  `json:"error,omitempty"`
}

// Report aggregates a run. Averages are over all cases.
type Report struct {
	ExactMatch   float64      `json:"exact_match"`
	SoftAccuracy float64      `json:"soft_accuracy"`
	Total        int          `json:"total_cases"`
	Cases        []CaseResult `json:"cases"`
}

// Evaluator scores cases.
type Evaluator struct {
	runner  Runner
	predict Predictor
	logger  *slog.Logger
}

// New creates an Evaluator. predict may be nil when every case carries
// its own Predicted SQL.
func New(r Runner, predict Predictor, logger *slog.Logger) *Evaluator {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Evaluator{runner: r, predict: predict, logger: logger}
}

// Evaluate scores every case. A prediction failure scores the case 0 and
// is reported in CaseResult.Error; it does not stop the run.
func (e *Evaluator) Evaluate(ctx context.Context, cases []Case) (*Report, error) {
	rep := &Report{Total: len(cases), Cases: make([]CaseResult, 0, len(cases))}

	var exact, soft float64
	for _, c := range cases {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		res := CaseResult{Case: c, Predicted: c.Predicted}
		if res.Predicted == "" {
			if e.predict == nil {
				res.Error = "no predicted sql and no predictor configured"
			} else if sql, err := e.predict(ctx, c.Question); err != nil {
				res.Error = err.Error()
			} else {
				res.Predicted = sql
			}
		}

		if res.Error == "" {
			res.Exact = ExactMatch(res.Predicted, c.GroundTruth)
			res.Soft = SoftAccuracy(ctx, e.runner, res.Predicted, c.GroundTruth)
		}
		if res.Exact {
			exact++
		}
		soft += res.Soft

		e.logger.Debug("eval case",
			slog.String("question", c.Question),
			slog.Bool("exact", res.Exact),
			slog.Float64("soft", res.Soft))
		rep.Cases = append(rep.Cases, res)
	}

	if rep.Total > 0 {
		rep.ExactMatch = exact / float64(rep.Total)
		rep.SoftAccuracy = soft / float64(rep.Total)
	}
	return rep, nil
}
