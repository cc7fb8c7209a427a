package commands

import (
	"fmt"
	"time"

	"github.com/leapstack-labs/leapask/internal/cli/output"
	"github.com/leapstack-labs/leapask/internal/history"
	"github.com/spf13/cobra"
)

// historyRow is the rendered form of a history entry.
type historyRow struct {
	ID        string    `json:"id"`
	Session   string    `json:"session_id"`
	Question  string    `json:"question"`
	SQL       string    `json:"sql"`
	Error     string    `json:"error,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// NewHistoryCommand creates the history command.
func NewHistoryCommand() *cobra.Command {
	var (
		session string
		limit   int
	)

	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show recent questions of a session",
		Example: `  leapask history
  leapask history --session 7f1c --limit 5 -o json`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cc := NewCommandContext(cmd)
			if cc.Cfg.History.Path == "" {
				return fmt.Errorf("history is disabled (set history.path)")
			}

			store, err := history.Open(cmd.Context(), cc.Cfg.History.Path, cc.Logger)
			if err != nil {
				return err
			}
			defer func() { _ = store.Close() }()

			if session == "" {
				session = history.DefaultSession
			}
			entries, err := store.Recent(cmd.Context(), session, limit)
			if err != nil {
				return err
			}
			return renderHistory(cc.Renderer, entries)
		},
	}

	cmd.Flags().StringVarP(&session, "session", "s", "", "Session id (default: anon)")
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "Number of entries")
	return cmd
}

func renderHistory(r *output.Renderer, entries []history.Entry) error {
	rows := make([]historyRow, 0, len(entries))
	for _, e := range entries {
		rows = append(rows, historyRow{
			ID:        e.ID,
			Session:   e.SessionID,
			Question:  e.Question,
			SQL:       e.EffectiveSQL(),
			Error:     e.Error,
			CreatedAt: e.CreatedAt,
		})
	}

	switch r.EffectiveMode() {
	case output.ModeJSON:
		return r.JSON(rows)
	case output.ModeMarkdown:
		for _, row := range rows {
			r.Printf("## %s\n\n", row.Question)
			r.Println(output.FormatKeyValue("Asked", row.CreatedAt.Format(time.RFC3339)))
			if row.Error != "" {
				r.Println(output.FormatKeyValue("Error", row.Error))
			}
			if row.SQL != "" {
				r.Println("")
				r.Println("```sql")
				r.Println(row.SQL)
				r.Println("```")
			}
			r.Println("")
		}
		return nil
	}

	if len(rows) == 0 {
		r.Println("(no history)")
		return nil
	}
	t := output.NewTable(r.Writer(), "Asked", "Question", "SQL", "Error")
	for _, row := range rows {
		t.AppendRow([]any{row.CreatedAt.Local().Format("2006-01-02 15:04"), row.Question, row.SQL, row.Error})
	}
	t.Render()
	return nil
}
