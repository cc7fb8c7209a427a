package sqlgen

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/leapstack-labs/leapask/internal/examples"
	"github.com/leapstack-labs/leapask/internal/llm"
	"github.com/leapstack-labs/leapask/internal/testutil"
	"github.com/leapstack-labs/leapask/pkg/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recorder struct {
	reply string
	err   error
	req   llm.Request
}

func (r *recorder) Complete(_ context.Context, req llm.Request) (string, error) {
	r.req = req
	return r.reply, r.err
}

func TestGenerate_ExtractsSQL(t *testing.T) {
	tests := []struct {
		name    string
		reply   string
		want    string
		wantErr error
	}{
		{"fenced", "Sure:\n```sql\nSELECT 1 FROM lots LIMIT 5\n```\nDone.", "SELECT 1 FROM lots LIMIT 5", nil},
		{"bare", "  SELECT 2  ", "SELECT 2", nil},
		{"empty fence", "```sql\n```", "", llm.ErrMalformedResponse},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g := New(&recorder{reply: tt.reply}, WithLogger(testutil.NewTestLogger(t)))
			got, err := g.Generate(context.Background(), Request{Question: "q", Schema: testutil.FactorySchema()})
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestGenerate_Prompt(t *testing.T) {
	rec := &recorder{reply: "SELECT 1"}
	static := examples.Set{
		{Question: "покажи все станки", SQL: "SELECT name FROM machines"},
		{Question: "сколько открытых батчей", SQL: "SELECT COUNT(*) FROM batches WHERE status = 'open'"},
	}
	g := New(rec, WithExamples(static), WithTop(2), WithSchemaDocs("lots are production orders"), WithDialect("DuckDB"))

	_, err := g.Generate(context.Background(), Request{
		Question: "[CONTEXT] yesterday (timezone Asia/Jerusalem)\n\nсколько батчей вчера?",
		Schema:   core.NewAllowedSchema(map[string][]string{"lots": {"status", "id"}}),
		Session:  examples.Set{{Question: "сколько батчей закрыто", SQL: "SELECT COUNT(*) FROM batches WHERE status = 'closed'"}},
	})
	require.NoError(t, err)

	assert.Contains(t, rec.req.System, "expert Text-to-SQL assistant for DuckDB")
	p := rec.req.Prompt
	assert.True(t, strings.HasPrefix(p, "Context:\n# SCHEMA\nlots are production orders\n\n# LIVE SCHEMA (auto-generated)\n- lots(id, status)"))
	assert.Contains(t, p, "# FEW-SHOT EXAMPLES\nQ: сколько батчей закрыто\nSQL:\nSELECT COUNT(*) FROM batches WHERE status = 'closed'\n\n"+
		"Q: сколько открытых батчей\n")
	assert.NotContains(t, p, "покажи все станки")
	assert.Contains(t, p, "Task: Generate a valid DuckDB SQL for the user's question.")
	assert.Contains(t, p, "User question (any language): [CONTEXT] yesterday (timezone Asia/Jerusalem)\n\nсколько батчей вчера?")
	assert.True(t, strings.HasSuffix(p, "Return ONLY the SQL in a fenced code block."))
}

func TestGenerate_ContextBounded(t *testing.T) {
	rec := &recorder{reply: "SELECT 1"}
	g := New(rec, WithSchemaDocs(strings.Repeat("схема ", 5000)))

	_, err := g.Generate(context.Background(), Request{Question: "q"})
	require.NoError(t, err)

	ctxPart := strings.TrimPrefix(rec.req.Prompt, "Context:\n")
	ctxPart = ctxPart[:strings.Index(ctxPart, "\n\nTask:")]
	assert.LessOrEqual(t, len(ctxPart), MaxContextChars)
	assert.Contains(t, ctxPart, "# FEW-SHOT EXAMPLES")
}

func TestGenerate_ProviderError(t *testing.T) {
	g := New(&recorder{err: llm.ErrNotConfigured})
	_, err := g.Generate(context.Background(), Request{Question: "q"})
	assert.True(t, errors.Is(err, llm.ErrNotConfigured))
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "abc", truncate("abc", 5))
	assert.Equal(t, "ab", truncate("abc", 2))
	assert.Equal(t, "д", truncate("да", 3))
}
