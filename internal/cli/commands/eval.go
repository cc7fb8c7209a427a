package commands

import (
	"context"
	"fmt"

	"github.com/leapstack-labs/leapask/internal/cli/output"
	"github.com/leapstack-labs/leapask/internal/eval"
	"github.com/leapstack-labs/leapask/internal/pipeline"
	"github.com/leapstack-labs/leapask/pkg/core"
	"github.com/spf13/cobra"
)

// NewEvalCommand creates the eval command.
func NewEvalCommand() *cobra.Command {
	var level string

	cmd := &cobra.Command{
		Use:   "eval <cases.yaml>",
		Short: "Score the pipeline against question/SQL test cases",
		Long: `Run every test case through the pipeline and report exact-match
accuracy (normalized SQL text) and soft accuracy (agreement of executed
results). Cases that carry a predicted SQL are scored without asking.

Cases file format:

  - question: "Сколько лотов в производстве?"
    ground_truth: "SELECT COUNT(*) FROM lots WHERE status = 'in_production'"`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runEval(cmd, args[0], level)
		},
	}

	cmd.Flags().StringVarP(&level, "level", "l", "permissive", "Validation level for predictions and result comparison")
	return cmd
}

func runEval(cmd *cobra.Command, path, levelFlag string) error {
	cc := NewCommandContext(cmd)

	cases, err := eval.LoadCases(path)
	if err != nil {
		return err
	}
	level, err := resolveLevel(cc, levelFlag, "")
	if err != nil {
		return err
	}

	svc, err := openServices(cmd.Context(), cc)
	if err != nil {
		return err
	}
	defer svc.Close()

	p, err := newPipeline(cc, svc)
	if err != nil {
		return err
	}

	predict := func(ctx context.Context, question string) (string, error) {
		ans, err := p.Ask(ctx, pipeline.Request{Question: question, Level: &level, SQLOnly: true, SessionID: "eval"})
		if ans != nil && ans.GeneratedSQL != "" {
			return ans.GeneratedSQL, nil
		}
		return "", err
	}
	run := eval.RunnerFunc(func(ctx context.Context, sql string) (*core.ResultSet, error) {
		return svc.Executor.Execute(ctx, sql, level)
	})

	rep, err := eval.New(run, predict, cc.Logger).Evaluate(cmd.Context(), cases)
	if err != nil {
		return err
	}
	return renderReport(cc.Renderer, rep)
}

func renderReport(r *output.Renderer, rep *eval.Report) error {
	if r.EffectiveMode() == output.ModeJSON {
		return r.JSON(rep)
	}

	r.Header("Evaluation")
	r.Println(output.FormatKeyValue("Cases", fmt.Sprint(rep.Total)))
	r.Println(output.FormatKeyValue("Exact match", fmt.Sprintf("%.1f%%", rep.ExactMatch*100)))
	r.Println(output.FormatKeyValue("Soft accuracy", fmt.Sprintf("%.1f%%", rep.SoftAccuracy*100)))
	r.Println("")

	if r.EffectiveMode() == output.ModeMarkdown {
		r.Println("| Question | Exact | Soft | Error |")
		r.Println("| --- | --- | --- | --- |")
		for _, c := range rep.Cases {
			r.Printf("| %s | %v | %.2f | %s |\n", c.Case.Question, c.Exact, c.Soft, c.Error)
		}
		return nil
	}

	t := output.NewTable(r.Writer(), "Question", "Exact", "Soft", "Error")
	for _, c := range rep.Cases {
		t.AppendRow([]any{c.Case.Question, c.Exact, fmt.Sprintf("%.2f", c.Soft), c.Error})
	}
	t.Render()
	return nil
}
