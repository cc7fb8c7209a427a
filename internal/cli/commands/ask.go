package commands

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/leapstack-labs/leapask/internal/cli/output"
	"github.com/leapstack-labs/leapask/internal/executor"
	"github.com/leapstack-labs/leapask/internal/pipeline"
	"github.com/leapstack-labs/leapask/pkg/core"
	"github.com/leapstack-labs/leapask/pkg/validator"
	"github.com/spf13/cobra"
	"golang.org/x/term"
)

// AskOptions holds options for the ask command.
type AskOptions struct {
	Level   string
	Role    string
	Session string
	SQLOnly bool
	Format  string
}

// NewAskCommand creates the ask command.
func NewAskCommand() *cobra.Command {
	opts := &AskOptions{}

	cmd := &cobra.Command{
		Use:   "ask [question]",
		Short: "Answer a question about the plant database",
		Long: `Translate a natural-language question into validated, read-only SQL
and run it against the configured database.

Template plans are tried first; free-text SQL generation is used only when
no template matches and an LLM provider is configured. Every statement is
validated before it reaches the database.

When invoked without arguments on a terminal, enters interactive REPL mode.`,
		Example: `  # Ask in Russian or English
  leapask ask "Сколько лотов в производстве?"
  leapask ask "how many machines did Сидоров set up in March"

  # Show the SQL without running it
  leapask ask --sql-only "lots in production"

  # Relaxed validation for an engineer
  leapask ask --role engineer "parts for lot 17"

  # Interactive mode
  leapask ask`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAsk(cmd, args, opts)
		},
	}

	cmd.Flags().StringVarP(&opts.Level, "level", "l", "", "Validation level: strict, moderate, permissive (default: role default)")
	cmd.Flags().StringVarP(&opts.Role, "role", "r", "", "Caller role used to pick the default level")
	cmd.Flags().StringVarP(&opts.Session, "session", "s", "", "Session id for history and follow-up context")
	cmd.Flags().BoolVar(&opts.SQLOnly, "sql-only", false, "Validate the SQL but do not execute it")
	cmd.Flags().StringVarP(&opts.Format, "format", "f", "", "Result format: table, json, csv, md (default: follows --output)")

	_ = cmd.RegisterFlagCompletionFunc("level", func(_ *cobra.Command, _ []string, _ string) ([]string, cobra.ShellCompDirective) {
		return []string{"strict", "moderate", "permissive"}, cobra.ShellCompDirectiveNoFileComp
	})
	_ = cmd.RegisterFlagCompletionFunc("format", func(_ *cobra.Command, _ []string, _ string) ([]string, cobra.ShellCompDirective) {
		return output.Formats, cobra.ShellCompDirectiveNoFileComp
	})

	return cmd
}

func runAsk(cmd *cobra.Command, args []string, opts *AskOptions) error {
	cc := NewCommandContext(cmd)

	req, err := opts.request(cc)
	if err != nil {
		return err
	}

	interactive := false
	switch {
	case len(args) > 0:
		req.Question = strings.Join(args, " ")
	case !isTerminal(os.Stdin):
		content, err := io.ReadAll(cmd.InOrStdin())
		if err != nil {
			return fmt.Errorf("failed to read stdin: %w", err)
		}
		req.Question = string(content)
	default:
		interactive = true
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

	if interactive {
		return runAskREPL(cmd, cc, svc, p, req, opts)
	}
	ans, err := p.Ask(cmd.Context(), req)
	return renderAnswer(cc.Renderer, ans, err, opts.format(cc.Renderer))
}

// request builds the pipeline request common to one-shot and REPL use.
func (o *AskOptions) request(cc *CommandContext) (pipeline.Request, error) {
	req := pipeline.Request{
		Level:     cc.Cfg.Level(),
		Role:      o.Role,
		SessionID: o.Session,
		SQLOnly:   o.SQLOnly,
	}
	if req.Role == "" {
		req.Role = cc.Cfg.Roles.Default
	}
	if o.Level != "" {
		l, err := validator.ParseLevel(o.Level)
		if err != nil {
			return req, err
		}
		req.Level = &l
	}
	return req, nil
}

func (o *AskOptions) format(r *output.Renderer) string {
	if o.Format != "" {
		return o.Format
	}
	return output.FormatFor(r.EffectiveMode())
}

// renderAnswer prints the SQL, the validation outcome and any rows. A
// validation failure is rendered in full before its error is returned.
func renderAnswer(r *output.Renderer, ans *pipeline.Answer, askErr error, format string) error {
	if ans == nil {
		return askErr
	}

	if format == output.FormatJSON {
		if err := r.JSON(ans); err != nil {
			return err
		}
		return askErr
	}

	styles := r.Styles()
	sql := ans.ExecutedSQL
	if sql == "" {
		sql = ans.GeneratedSQL
	}

	if r.EffectiveMode() == output.ModeMarkdown || format == output.FormatMarkdown {
		r.Println("```sql")
		r.Println(sql)
		r.Println("```")
	} else {
		r.Println(styles.Muted.Render(fmt.Sprintf("-- %s, %s", ans.Source, ans.Validation.Level)))
		r.Println(styles.Code.Render(sql))
	}
	for _, w := range ans.Validation.Warnings {
		r.Warning(w)
	}

	var verr *executor.ValidationError
	if errors.As(askErr, &verr) {
		for _, e := range verr.Result.Errors {
			r.Error(e)
		}
		return askErr
	}
	if askErr != nil {
		return askErr
	}

	if ans.Columns == nil {
		return nil
	}
	r.Println("")
	return output.RenderResult(r.Writer(), answerResult(ans), format)
}

func isTerminal(f *os.File) bool {
	return term.IsTerminal(int(f.Fd()))
}

func answerResult(ans *pipeline.Answer) *core.ResultSet {
	return &core.ResultSet{Columns: ans.Columns, Rows: ans.Rows}
}
