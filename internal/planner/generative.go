package planner

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/leapstack-labs/leapask/internal/llm"
	"github.com/leapstack-labs/leapask/pkg/compiler"
	"github.com/leapstack-labs/leapask/pkg/core"
	"github.com/leapstack-labs/leapask/pkg/plan"
)

// maxSchemaChars bounds the schema JSON embedded in the planning prompt.
const maxSchemaChars = 8000

const planSystemPrompt = `You translate questions about a manufacturing database into a query plan.
Reply with ONE JSON object and nothing else:
{"tables": ["t0", ...],
 "joins": [{"left": "t0.col", "right": "t1.id"}],
 "select": [{"table": "t", "column": "c", "alias": "a", "distinct": false, "agg": "count|count_distinct|sum|avg|min|max"}],
 "filters": [{"op": "eq|in|is_null|not_null|between|date_range", "table": "t", "column": "c", ...}],
 "group_by": [{"table": "t", "column": "c"}],
 "order_by": [{"table": "t", "column": "c", "dir": "asc|desc"}],
 "limit": 100}
Use only tables and columns from SCHEMA. Filter by the ids in ENTITIES.
date_range filters take "from", "to" (YYYY-MM-DD) and "tz".`

// Generative asks an LLM for plan JSON. A reply that does not decode, or
// a plan the compiler would refuse, is an error so WithFallback can take
// over.
type Generative struct {
	llm      llm.Completer
	timezone string
	opts     []compiler.Option
	logger   *slog.Logger
}

// NewGenerative creates a generative planner. opts are compile options the
// plan is always dry-run with, in addition to those passed to Build.
func NewGenerative(c llm.Completer, logger *slog.Logger, opts ...compiler.Option) *Generative {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Generative{llm: c, timezone: DefaultTimezone, opts: opts, logger: logger}
}

func (g *Generative) Build(ctx context.Context, question string, e core.ResolvedEntities, schema *core.AllowedSchema, opts ...compiler.Option) (*plan.Plan, error) {
	prompt, err := g.prompt(question, e, schema)
	if err != nil {
		return nil, err
	}

	reply, err := g.llm.Complete(ctx, llm.Request{System: planSystemPrompt, Prompt: prompt})
	if err != nil {
		return nil, err
	}

	p, err := plan.Parse([]byte(llm.ExtractJSON(reply)))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", llm.ErrMalformedResponse, err)
	}
	checkOpts := append(append([]compiler.Option{}, g.opts...), opts...)
	if err := compiler.Check(p, schema, checkOpts...); err != nil {
		return nil, fmt.Errorf("generated plan rejected: %w", err)
	}

	g.logger.Debug("generative plan",
		slog.Any("tables", p.Tables),
		slog.Int("filters", len(p.Filters)))
	return p, nil
}

func (g *Generative) prompt(question string, e core.ResolvedEntities, schema *core.AllowedSchema) (string, error) {
	ents, err := json.Marshal(e)
	if err != nil {
		return "", fmt.Errorf("failed to encode entities: %w", err)
	}
	var b strings.Builder
	b.WriteString("SCHEMA:\n")
	b.WriteString(schema.JSON(maxSchemaChars))
	b.WriteString("\n\nENTITIES:\n")
	b.Write(ents)
	b.WriteString("\n\nTIMEZONE: ")
	b.WriteString(g.timezone)
	b.WriteString("\n\nQUESTION: ")
	b.WriteString(question)
	return b.String(), nil
}

var _ Planner = (*Generative)(nil)
