package resolver

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/leapstack-labs/leapask/internal/llm"
	"github.com/leapstack-labs/leapask/pkg/core"
)

// maxCandidates bounds each enumerated name list in the prompt.
const maxCandidates = 200

const resolveSystemPrompt = `You extract entities from questions about a manufacturing database.
Reply with ONE JSON object and nothing else:
{"intent": "list_machinists" | "count_machines_by_machinists" | "generic",
 "timeframe": "yesterday" | "month:YYYY-MM" | null,
 "employees": [names copied verbatim from EMPLOYEES],
 "machines": [names copied verbatim from MACHINES]}
Only pick names that appear in the lists. Use empty arrays when nothing matches.`

// Generative delegates intent, timeframe, employee and machine extraction
// to an LLM. Part and lot numbers always come from the deterministic
// extractor because they must match exactly.
type Generative struct {
	llm    llm.Completer
	det    *Deterministic
	logger *slog.Logger
}

// NewGenerative creates a generative resolver. det supplies the part and
// lot extraction and the current date shown to the model.
func NewGenerative(c llm.Completer, det *Deterministic, logger *slog.Logger) *Generative {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	if det == nil {
		det = NewDeterministic()
	}
	return &Generative{llm: c, det: det, logger: logger}
}

type resolveReply struct {
	Intent    string   `json:"intent"`
	Timeframe *string  `json:"timeframe"`
	Employees []string `json:"employees"`
	Machines  []string `json:"machines"`
}

// Resolve fails with llm.ErrMalformedResponse when the reply does not match
// the contract.
func (g *Generative) Resolve(ctx context.Context, question string, catalog *core.Catalog) (core.ResolvedEntities, error) {
	if catalog == nil {
		catalog = &core.Catalog{}
	}

	reply, err := g.llm.Complete(ctx, llm.Request{
		System: resolveSystemPrompt,
		Prompt: g.prompt(question, catalog),
	})
	if err != nil {
		return core.ResolvedEntities{}, err
	}

	var r resolveReply
	if err := llm.DecodeJSON(reply, &r); err != nil {
		return core.ResolvedEntities{}, err
	}

	intent, ok := core.ParseIntent(r.Intent)
	if !ok {
		return core.ResolvedEntities{}, fmt.Errorf("%w: unknown intent %q", llm.ErrMalformedResponse, r.Intent)
	}
	var tf core.Timeframe
	if r.Timeframe != nil {
		if tf, err = core.ParseTimeframe(*r.Timeframe); err != nil {
			return core.ResolvedEntities{}, fmt.Errorf("%w: %v", llm.ErrMalformedResponse, err)
		}
	}

	out := core.ResolvedEntities{
		Intent:    intent,
		Timeframe: tf,
		Employees: idsByName(r.Employees, catalog.Employees),
		Machines:  idsByName(r.Machines, catalog.Machines),
	}
	out.Parts, out.Lots = matchNumbers(question, catalog)
	out.Normalize()

	g.logger.Debug("generative resolution",
		slog.String("intent", string(out.Intent)),
		slog.String("timeframe", out.Timeframe.String()))
	return out, nil
}

func (g *Generative) prompt(question string, catalog *core.Catalog) string {
	var b strings.Builder
	fmt.Fprintf(&b, "TODAY: %s\n\n", g.det.now().In(g.det.loc).Format("2006-01-02"))
	writeList(&b, "EMPLOYEES", catalog.EmployeeNames())
	writeList(&b, "MACHINES", catalog.MachineNames())
	fmt.Fprintf(&b, "QUESTION: %s\n", question)
	return b.String()
}

func writeList(b *strings.Builder, title string, names []string) {
	if len(names) > maxCandidates {
		names = names[:maxCandidates]
	}
	data, _ := json.Marshal(names)
	fmt.Fprintf(b, "%s: %s\n\n", title, data)
}

func idsByName(names []string, entities []core.Entity) []int64 {
	if len(names) == 0 {
		return nil
	}
	want := make(map[string]struct{}, len(names))
	for _, n := range names {
		want[fold(n)] = struct{}{}
	}
	return lookupIDs(want, entities)
}

var _ Resolver = (*Generative)(nil)
