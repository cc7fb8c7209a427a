package resolver

import (
	"context"
	"strings"
	"time"

	"github.com/leapstack-labs/leapask/pkg/core"
)

// Deterministic resolves entities with fixed phrase lists and substring
// matching against the catalog.
type Deterministic struct {
	now func() time.Time
	loc *time.Location
}

// Option configures a Deterministic resolver.
type Option func(*Deterministic)

// WithClock overrides the clock used for relative timeframes.
func WithClock(now func() time.Time) Option {
	return func(d *Deterministic) { d.now = now }
}

// WithLocation sets the timezone relative timeframes are computed in.
func WithLocation(loc *time.Location) Option {
	return func(d *Deterministic) {
		if loc != nil {
			d.loc = loc
		}
	}
}

// NewDeterministic creates a deterministic resolver. The default timezone
// is Asia/Jerusalem, falling back to UTC when the zone database is missing.
func NewDeterministic(opts ...Option) *Deterministic {
	d := &Deterministic{now: time.Now, loc: time.UTC}
	if loc, err := time.LoadLocation(DefaultTimezone); err == nil {
		d.loc = loc
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Resolve never fails.
func (d *Deterministic) Resolve(_ context.Context, question string, catalog *core.Catalog) (core.ResolvedEntities, error) {
	q := fold(question)
	toks := tokens(q)

	out := core.ResolvedEntities{
		Intent:    detectIntent(q, toks),
		Timeframe: detectTimeframe(q, toks, d.now().In(d.loc)),
	}
	if catalog != nil {
		out.Employees = matchEmployees(toks, catalog.Employees)
		out.Machines = matchMachines(q, toks, catalog.Machines)
		out.Parts, out.Lots = matchNumbers(question, catalog)
	}
	out.Normalize()
	return out, nil
}

var (
	listWordsRU  = []string{"кто", "имена", "наладчик", "оператор"}
	listWordsEN  = map[string]struct{}{"who": {}, "names": {}}
	listPrefixEN = []string{"machinist", "operator"}
	countWords   = []string{"сколько", "скольки", "скольких", "how many", "count"}
	machineWords = []string{"стан", "machine"}
)

func detectIntent(q string, toks []string) core.Intent {
	for _, w := range listWordsRU {
		if strings.Contains(q, w) {
			return core.IntentListMachinists
		}
	}
	for _, tok := range toks {
		if _, ok := listWordsEN[tok]; ok {
			return core.IntentListMachinists
		}
		for _, p := range listPrefixEN {
			if strings.HasPrefix(tok, p) {
				return core.IntentListMachinists
			}
		}
	}
	if containsAny(q, countWords) && containsAny(q, machineWords) {
		return core.IntentCountMachines
	}
	return core.IntentGeneric
}

func containsAny(s string, subs []string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}

func nameTokens(toks []string) []string {
	out := make([]string, 0, len(toks))
	for _, tok := range toks {
		if runeLen(tok) < 3 || isStopword(tok) || hasDigit(tok) {
			continue
		}
		if _, isMonth := monthToken(tok); isMonth {
			continue
		}
		out = append(out, tok)
	}
	return out
}

func matchEmployees(toks []string, employees []core.Entity) []int64 {
	cand := nameTokens(toks)
	if len(cand) == 0 {
		return nil
	}
	var ids []int64
	for _, e := range employees {
		name := fold(e.Name)
		for _, tok := range cand {
			if strings.Contains(name, tok) || strings.Contains(name, stem(tok)) {
				ids = append(ids, e.ID)
				break
			}
		}
	}
	return ids
}

func machineTokens(toks []string) []string {
	out := make([]string, 0, len(toks))
	for _, tok := range toks {
		if isStopword(tok) {
			continue
		}
		if runeLen(tok) >= 3 || hasDigit(tok) {
			out = append(out, tok)
		}
	}
	return out
}

func matchMachines(q string, toks []string, machines []core.Entity) []int64 {
	cand := machineTokens(toks)
	normQ := "-" + canonicalMachine(q) + "-"

	var ids []int64
	for _, m := range machines {
		name := canonicalMachine(m.Name)
		if name == "" {
			continue
		}
		if runeLen(name) >= 3 && strings.Contains(normQ, "-"+name+"-") {
			ids = append(ids, m.ID)
			continue
		}
		for _, tok := range cand {
			if strings.Contains(name, tok) {
				ids = append(ids, m.ID)
				break
			}
		}
	}
	return ids
}

// matchNumbers extracts drawing and lot numbers. Candidates are the numeric
// pattern matches plus the whole words that contain them, so prefixed lot
// numbers ("L-2024-15") resolve too. Lookup is exact and case-insensitive.
func matchNumbers(question string, catalog *core.Catalog) (parts, lots []int64) {
	cand := map[string]struct{}{}
	for _, w := range words(question) {
		if numberRe.MatchString(w) {
			cand[fold(w)] = struct{}{}
		}
	}
	for _, m := range numberRe.FindAllString(question, -1) {
		cand[fold(m)] = struct{}{}
	}
	if len(cand) == 0 {
		return nil, nil
	}
	return lookupIDs(cand, catalog.Parts), lookupIDs(cand, catalog.Lots)
}

func lookupIDs(cand map[string]struct{}, entities []core.Entity) []int64 {
	var ids []int64
	for _, e := range entities {
		if _, ok := cand[fold(e.Name)]; ok {
			ids = append(ids, e.ID)
		}
	}
	return ids
}

var _ Resolver = (*Deterministic)(nil)
