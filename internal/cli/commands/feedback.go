package commands

import (
	"fmt"
	"strings"

	"github.com/leapstack-labs/leapask/internal/examples"
	"github.com/leapstack-labs/leapask/pkg/validator"
	"github.com/spf13/cobra"
)

// FeedbackOptions holds options for the feedback command.
type FeedbackOptions struct {
	Question string
	SQL      string
	File     string
}

// NewFeedbackCommand creates the feedback command.
func NewFeedbackCommand() *cobra.Command {
	opts := &FeedbackOptions{}

	cmd := &cobra.Command{
		Use:   "feedback",
		Short: "Save a corrected question/SQL pair as a few-shot example",
		Long: `Append a question and its correct SQL to the examples file used for
free-text SQL generation. The SQL must pass the validator's permissive
level, so denylisted statements are never stored.`,
		Example: `  leapask feedback -q "сколько лотов закрыто" --sql "SELECT COUNT(*) FROM lots WHERE status = 'closed'"`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runFeedback(cmd, opts)
		},
	}

	cmd.Flags().StringVarP(&opts.Question, "question", "q", "", "The question as the user asked it")
	cmd.Flags().StringVar(&opts.SQL, "sql", "", "The correct SQL")
	cmd.Flags().StringVar(&opts.File, "file", "", "Examples file (default: examples.feedback_file)")
	_ = cmd.MarkFlagRequired("question")
	_ = cmd.MarkFlagRequired("sql")

	return cmd
}

func runFeedback(cmd *cobra.Command, opts *FeedbackOptions) error {
	cc := NewCommandContext(cmd)

	path := opts.File
	if path == "" {
		path = cc.Cfg.Examples.FeedbackFile
	}
	if path == "" {
		return fmt.Errorf("no examples file configured (set examples.feedback_file or pass --file)")
	}

	sql := strings.TrimSpace(opts.SQL)
	res := newValidator(cc.Cfg, nil).Validate(sql, validator.Permissive)
	if !res.Valid {
		return fmt.Errorf("refusing to store invalid sql: %s", strings.Join(res.Errors, "; "))
	}

	if err := examples.Append(path, examples.Example{Question: strings.TrimSpace(opts.Question), SQL: sql}); err != nil {
		return err
	}

	cc.Logger.Debug("feedback stored", "file", path)
	cc.Renderer.Success(fmt.Sprintf("example saved to %s", path))
	return nil
}
