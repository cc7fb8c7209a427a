package planner

import (
	"context"
	"time"

	"github.com/leapstack-labs/leapask/pkg/compiler"
	"github.com/leapstack-labs/leapask/pkg/core"
	"github.com/leapstack-labs/leapask/pkg/plan"
)

// Deterministic builds plans from a fixed template per intent.
type Deterministic struct {
	now func() time.Time
	loc *time.Location
}

// Option configures a Deterministic planner.
type Option func(*Deterministic)

// WithClock overrides the clock used for "yesterday".
func WithClock(now func() time.Time) Option {
	return func(d *Deterministic) { d.now = now }
}

// WithLocation sets the timezone date filters are evaluated in.
func WithLocation(loc *time.Location) Option {
	return func(d *Deterministic) {
		if loc != nil {
			d.loc = loc
		}
	}
}

// NewDeterministic creates a template planner in Asia/Jerusalem time.
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

// Build never fails. A generic question without a recognisable subject
// yields an empty plan, which callers route to free-text SQL generation.
// Templates use typed filters only, so compile options do not change them.
func (d *Deterministic) Build(_ context.Context, question string, e core.ResolvedEntities, schema *core.AllowedSchema, _ ...compiler.Option) (*plan.Plan, error) {
	switch e.Intent {
	case core.IntentListMachinists:
		return d.listMachinists(e, schema), nil
	case core.IntentCountMachines:
		return d.countMachines(e, schema), nil
	default:
		return d.generic(question, e, schema), nil
	}
}

const setupJobs = "setup_jobs"

// setupJoins are the optional lookups of the setup_jobs templates.
var setupJoins = []struct {
	table string
	fk    string
}{
	{"employees", "employee_id"},
	{"machines", "machine_id"},
	{"parts", "part_id"},
}

func (d *Deterministic) listMachinists(e core.ResolvedEntities, schema *core.AllowedSchema) *plan.Plan {
	p := &plan.Plan{Tables: []string{setupJobs}, Limit: plan.LimitOf(plan.DefaultLimit)}

	joined := map[string]bool{}
	for _, j := range setupJoins {
		if schema.HasColumn(setupJobs, j.fk) && schema.HasColumn(j.table, "id") {
			p.Tables = append(p.Tables, j.table)
			p.Joins = append(p.Joins, plan.Join{
				Left:  plan.Col(setupJobs, j.fk).String(),
				Right: plan.Col(j.table, "id").String(),
			})
			joined[j.table] = true
		}
	}

	if joined["employees"] && schema.HasColumn("employees", "full_name") {
		p.Select = append(p.Select, plan.SelectItem{Table: "employees", Column: "full_name", Alias: "machinist_name", Distinct: true})
		p.OrderBy = append(p.OrderBy, plan.OrderItem{Table: "employees", Column: "full_name"})
	}
	if joined["parts"] && schema.HasColumn("parts", "drawing_number") {
		p.Select = append(p.Select, plan.SelectItem{Table: "parts", Column: "drawing_number", Alias: "part_drawing"})
		p.OrderBy = append(p.OrderBy, plan.OrderItem{Table: "parts", Column: "drawing_number"})
	}
	if len(p.Select) == 0 {
		p.Select = []plan.SelectItem{{Table: setupJobs, Column: "id", Alias: "setup_job_id", Distinct: true}}
	}

	p.Filters = d.setupFilters(e, schema)
	return p
}

func (d *Deterministic) countMachines(e core.ResolvedEntities, schema *core.AllowedSchema) *plan.Plan {
	return &plan.Plan{
		Tables: []string{setupJobs},
		Select: []plan.SelectItem{{
			Table:  setupJobs,
			Column: "machine_id",
			Alias:  "machine_count",
			Agg:    plan.AggCountDistinct,
		}},
		Filters: d.setupFilters(e, schema),
		Limit:   plan.LimitOf(plan.DefaultLimit),
	}
}

func (d *Deterministic) setupFilters(e core.ResolvedEntities, schema *core.AllowedSchema) plan.Filters {
	var fs plan.Filters
	if f, ok := d.timeframe(plan.Col(setupJobs, "created_at"), e.Timeframe, schema); ok {
		fs = append(fs, f)
	}
	fs = appendIn(fs, schema, plan.Col(setupJobs, "employee_id"), e.Employees)
	fs = appendIn(fs, schema, plan.Col(setupJobs, "machine_id"), e.Machines)
	fs = appendIn(fs, schema, plan.Col(setupJobs, "part_id"), e.Parts)
	fs = appendIn(fs, schema, plan.Col(setupJobs, "lot_id"), e.Lots)
	return fs
}

func appendIn(fs plan.Filters, schema *core.AllowedSchema, ref plan.ColumnRef, ids []int64) plan.Filters {
	if len(ids) == 0 || !schema.HasColumn(ref.Table, ref.Column) {
		return fs
	}
	return append(fs, plan.InInt64(ref, ids))
}

// timeframe renders tf as a DateRange on ref in the planner's timezone.
// Month ranges end on the calendar-correct last day.
func (d *Deterministic) timeframe(ref plan.ColumnRef, tf core.Timeframe, schema *core.AllowedSchema) (plan.Filter, bool) {
	if tf.IsZero() || !schema.HasColumn(ref.Table, ref.Column) {
		return nil, false
	}

	switch tf.Kind {
	case core.TimeframeYesterday:
		now := d.now().In(d.loc)
		day := time.Date(now.Year(), now.Month(), now.Day()-1, 0, 0, 0, 0, d.loc)
		return plan.DateRange{Ref: ref, From: day, To: day, TimeZone: d.loc.String()}, true
	case core.TimeframeMonth:
		first := time.Date(tf.Year, tf.Month, 1, 0, 0, 0, 0, d.loc)
		last := time.Date(tf.Year, tf.Month+1, 0, 0, 0, 0, 0, d.loc)
		return plan.DateRange{Ref: ref, From: first, To: last, TimeZone: d.loc.String()}, true
	}
	return nil, false
}

var _ Planner = (*Deterministic)(nil)
