// Package sqlgen generates free-text SQL with an LLM for questions no plan
// template covers. Its output is untrusted and always goes through the
// validator before it can run.
package sqlgen

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/leapstack-labs/leapask/internal/examples"
	"github.com/leapstack-labs/leapask/internal/llm"
	"github.com/leapstack-labs/leapask/pkg/core"
)

// MaxContextChars bounds the schema and example context of one prompt.
// The schema part gets at most half.
const MaxContextChars = 8000

// Generator turns questions into SQL text.
type Generator struct {
	llm        llm.Completer
	dialect    string
	schemaDocs string
	examples   examples.Set
	top        int
	logger     *slog.Logger
}

// Option configures a Generator.
type Option func(*Generator)

// WithDialect names the SQL engine in the prompt. Default "PostgreSQL".
func WithDialect(name string) Option {
	return func(g *Generator) {
		if name != "" {
			g.dialect = name
		}
	}
}

// WithSchemaDocs adds hand-written schema documentation ahead of the live schema.
func WithSchemaDocs(docs string) Option {
	return func(g *Generator) { g.schemaDocs = docs }
}

// WithExamples sets the static few-shot example pool.
func WithExamples(set examples.Set) Option {
	return func(g *Generator) { g.examples = set }
}

// WithTop overrides how many examples go into a prompt.
func WithTop(k int) Option {
	return func(g *Generator) {
		if k > 0 {
			g.top = k
		}
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(g *Generator) {
		if logger != nil {
			g.logger = logger
		}
	}
}

// New creates a Generator.
func New(c llm.Completer, opts ...Option) *Generator {
	g := &Generator{
		llm:     c,
		dialect: "PostgreSQL",
		top:     examples.DefaultTop,
		logger:  slog.New(slog.DiscardHandler),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Request is one generation call. Session examples are ranked ahead of the
// static pool on equal overlap. Question may already carry a "[CONTEXT]"
// preamble.
type Request struct {
	Question string
	Schema   *core.AllowedSchema
	Session  examples.Set
}

// Generate returns the SQL of the first fenced block of the reply.
func (g *Generator) Generate(ctx context.Context, req Request) (string, error) {
	pool := make(examples.Set, 0, len(req.Session)+len(g.examples))
	pool = append(pool, req.Session...)
	pool = append(pool, g.examples...)

	prompt := fmt.Sprintf("Context:\n%s\n\n"+
		"Task: Generate a valid %s SQL for the user's question.\n"+
		"User question (any language): %s\n"+
		"Return ONLY the SQL in a fenced code block.",
		g.context(req.Question, req.Schema, pool), g.dialect, req.Question)

	reply, err := g.llm.Complete(ctx, llm.Request{System: g.systemPrompt(), Prompt: prompt})
	if err != nil {
		return "", err
	}
	sql := llm.ExtractSQL(reply)
	if sql == "" {
		return "", fmt.Errorf("%w: no sql in reply", llm.ErrMalformedResponse)
	}

	g.logger.Debug("generated sql",
		slog.Int("examples", len(pool)),
		slog.Int("chars", len(sql)))
	return sql, nil
}

func (g *Generator) systemPrompt() string {
	return "You are an expert Text-to-SQL assistant for " + g.dialect + ". " +
		"Return ONLY SQL code block without explanations. Prefer selecting existing columns, avoid hallucinations. " +
		"If the request is vague, infer reasonable filters and add LIMIT if missing."
}

func (g *Generator) context(question string, schema *core.AllowedSchema, pool examples.Set) string {
	var b strings.Builder
	b.WriteString("# SCHEMA\n")
	b.WriteString(truncate(g.schemaText(schema), MaxContextChars/2))
	b.WriteString("\n\n# FEW-SHOT EXAMPLES\n")
	for _, ex := range pool.Top(question, g.top) {
		fmt.Fprintf(&b, "Q: %s\nSQL:\n%s\n\n", ex.Question, ex.SQL)
	}
	return truncate(b.String(), MaxContextChars)
}

// schemaText renders docs followed by one "- table(col, ...)" line per
// allowed table.
func (g *Generator) schemaText(schema *core.AllowedSchema) string {
	var lines []string
	if schema != nil {
		for _, t := range schema.Tables() {
			cols := schema.Columns(t)
			sorted := append([]string(nil), cols...)
			sort.Strings(sorted)
			lines = append(lines, fmt.Sprintf("- %s(%s)", t, strings.Join(sorted, ", ")))
		}
	}
	live := strings.Join(lines, "\n")

	switch {
	case g.schemaDocs == "":
		return live
	case live == "":
		return g.schemaDocs
	default:
		return g.schemaDocs + "\n\n# LIVE SCHEMA (auto-generated)\n" + live
	}
}

// truncate cuts s to at most n bytes without splitting a UTF-8 sequence.
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}
