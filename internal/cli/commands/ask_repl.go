package commands

import (
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/chzyer/readline"
	"github.com/google/uuid"
	"github.com/leapstack-labs/leapask/internal/pipeline"
	"github.com/leapstack-labs/leapask/pkg/core"
	"github.com/leapstack-labs/leapask/pkg/validator"
	"github.com/spf13/cobra"
)

const replPrompt = "leapask> "

// replState is what dot-commands may change between questions.
type replState struct {
	req    pipeline.Request
	format string
}

func runAskREPL(cmd *cobra.Command, cc *CommandContext, svc *Services, p *pipeline.Pipeline, req pipeline.Request, opts *AskOptions) error {
	ctx := cmd.Context()

	if req.SessionID == "" {
		req.SessionID = uuid.NewString()
	}
	state := &replState{req: req, format: opts.format(cc.Renderer)}

	// Keep line history next to the exchange history.
	historyFile := ""
	if cc.Cfg.History.Path != "" {
		historyFile = filepath.Join(filepath.Dir(cc.Cfg.History.Path), "ask_history")
	}

	rl, err := readline.NewEx(&readline.Config{
		Prompt:          replPrompt,
		HistoryFile:     historyFile,
		AutoComplete:    newSchemaCompleter(svc.Schema),
		InterruptPrompt: "^C",
		EOFPrompt:       ".quit",
	})
	if err != nil {
		return fmt.Errorf("failed to initialize REPL: %w", err)
	}
	defer func() { _ = rl.Close() }()

	out := cmd.OutOrStdout()
	_, _ = fmt.Fprintf(out, "LeapAsk REPL (%s, %d tables, session %s)\n", svc.Adapter.Dialect().Name, svc.Schema.Len(), state.req.SessionID)
	_, _ = fmt.Fprintln(out, "Type .help for commands, .quit to exit")
	_, _ = fmt.Fprintln(out)

	for {
		line, err := rl.Readline()
		if errors.Is(err, readline.ErrInterrupt) {
			continue
		}
		if errors.Is(err, io.EOF) {
			break
		}

		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}

		if strings.HasPrefix(line, ".") {
			if quit := handleDotCommand(cmd, svc.Schema, state, line); quit {
				break
			}
			continue
		}

		req := state.req
		req.Question = line
		ans, err := p.Ask(ctx, req)
		if err := renderAnswer(cc.Renderer, ans, err, state.format); err != nil {
			_, _ = fmt.Fprintf(cmd.ErrOrStderr(), "Error: %v\n", err)
		}
		_, _ = fmt.Fprintln(out)
	}

	return nil
}

// handleDotCommand runs one REPL command and reports whether to exit.
func handleDotCommand(cmd *cobra.Command, schema *core.AllowedSchema, state *replState, line string) bool {
	parts := strings.Fields(line)
	command := strings.ToLower(parts[0])
	out, errOut := cmd.OutOrStdout(), cmd.ErrOrStderr()

	switch command {
	case ".quit", ".exit":
		return true

	case ".help":
		printREPLHelp(out)

	case ".tables":
		for _, t := range schema.Tables() {
			_, _ = fmt.Fprintln(out, t)
		}

	case ".schema":
		if len(parts) < 2 {
			_, _ = fmt.Fprintln(errOut, "Usage: .schema <table>")
			return false
		}
		if !schema.HasTable(parts[1]) {
			_, _ = fmt.Fprintf(errOut, "Error: table %q is not allowed\n", parts[1])
			return false
		}
		_, _ = fmt.Fprintf(out, "%s: %s\n", parts[1], strings.Join(schema.Columns(parts[1]), ", "))

	case ".level":
		if len(parts) < 2 {
			_, _ = fmt.Fprintf(out, "level: %s\n", levelName(state.req.Level))
			return false
		}
		l, err := validator.ParseLevel(parts[1])
		if err != nil {
			_, _ = fmt.Fprintf(errOut, "Error: %v\n", err)
			return false
		}
		state.req.Level = &l
		_, _ = fmt.Fprintf(out, "level: %s\n", l)

	case ".sql":
		state.req.SQLOnly = !state.req.SQLOnly
		_, _ = fmt.Fprintf(out, "sql-only: %v\n", state.req.SQLOnly)

	case ".format":
		if len(parts) < 2 {
			_, _ = fmt.Fprintf(out, "format: %s\n", state.format)
			return false
		}
		state.format = parts[1]

	case ".session":
		_, _ = fmt.Fprintf(out, "session: %s\n", state.req.SessionID)

	case ".clear":
		_, _ = fmt.Fprint(out, "\033[H\033[2J")

	default:
		_, _ = fmt.Fprintf(errOut, "Unknown command: %s (type .help for commands)\n", command)
	}
	return false
}

func levelName(l *validator.Level) string {
	if l == nil {
		return "role default"
	}
	return l.String()
}

func printREPLHelp(w io.Writer) {
	help := `
Commands:
  .help              Show this help message
  .tables            List the allowed tables
  .schema <table>    Show the allowed columns of a table
  .level [name]      Show or set the validation level
  .sql               Toggle SQL-only mode
  .format [name]     Show or set the result format (table, json, csv, md)
  .session           Show the session id
  .clear             Clear the screen
  .quit / .exit      Exit the REPL

Anything else is asked as a question. Follow-up questions in the same
session see the time ranges of earlier questions.
`
	_, _ = fmt.Fprintln(w, help)
}

// newSchemaCompleter completes dot-commands and allowed table names.
func newSchemaCompleter(schema *core.AllowedSchema) *readline.PrefixCompleter {
	tables := make([]readline.PrefixCompleterInterface, 0, schema.Len())
	for _, t := range schema.Tables() {
		tables = append(tables, readline.PcItem(t))
	}

	return readline.NewPrefixCompleter(
		readline.PcItem(".help"),
		readline.PcItem(".tables"),
		readline.PcItem(".schema", tables...),
		readline.PcItem(".level",
			readline.PcItem("strict"),
			readline.PcItem("moderate"),
			readline.PcItem("permissive"),
		),
		readline.PcItem(".sql"),
		readline.PcItem(".format",
			readline.PcItem("table"),
			readline.PcItem("json"),
			readline.PcItem("csv"),
			readline.PcItem("md"),
		),
		readline.PcItem(".session"),
		readline.PcItem(".clear"),
		readline.PcItem(".quit"),
		readline.PcItem(".exit"),
	)
}
