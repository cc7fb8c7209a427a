// Package compiler turns a plan.Plan into literal SQL text.
//
// Compilation is total and schema-checked: every table, column and join
// endpoint is verified against a core.AllowedSchema before any SQL is
// produced. The output shape is fixed:
//
//	SELECT [DISTINCT] <cols> FROM <t0> [JOIN <t> ON <l> = <r>]*
//	[WHERE <f1> AND ...] [GROUP BY ...] [ORDER BY ...] LIMIT <n>
package compiler

import (
	"fmt"
	"regexp"
	"strings"

	sq "github.com/Masterminds/squirrel"
	"github.com/leapstack-labs/leapask/pkg/core"
	"github.com/leapstack-labs/leapask/pkg/plan"
)

// Dialects with distinct date handling.
const (
	DialectPostgres = "postgres"
	DialectDuckDB   = "duckdb"
	DialectSQLite   = "sqlite"
)

var rawDenyRe = regexp.MustCompile(`(?i)\b(insert|update|delete|drop|alter|truncate|grant|revoke|create)\b|;|--|/\*`)

type options struct {
	allowRaw bool
	dialect  string
}

// Option configures compilation.
type Option func(*options)

// WithoutRawFilters rejects plan.Raw filters outright.
func WithoutRawFilters() Option {
	return func(o *options) { o.allowRaw = false }
}

// WithDialect selects date rendering for the target engine.
// Unknown names fall back to postgres.
func WithDialect(name string) Option {
	return func(o *options) { o.dialect = strings.ToLower(name) }
}

// Compile produces SQL for p, or an *Error naming the violated constraint.
func Compile(p *plan.Plan, schema *core.AllowedSchema, opts ...Option) (string, error) {
	c := newCompiler(schema, opts)
	return c.compile(p)
}

// Check runs every schema and safety check of Compile without rendering.
func Check(p *plan.Plan, schema *core.AllowedSchema, opts ...Option) error {
	_, err := Compile(p, schema, opts...)
	return err
}

type compiler struct {
	schema *core.AllowedSchema
	opts   options
}

func newCompiler(schema *core.AllowedSchema, opts []Option) *compiler {
	o := options{allowRaw: true, dialect: DialectPostgres}
	for _, opt := range opts {
		opt(&o)
	}
	return &compiler{schema: schema, opts: o}
}

func (c *compiler) compile(p *plan.Plan) (string, error) {
	if p == nil || len(p.Tables) == 0 {
		return "", &Error{Kind: ErrNoTables}
	}
	for _, t := range p.Tables {
		if !c.schema.HasTable(t) {
			return "", fail(ErrUnknownTable, "%s", t)
		}
	}

	cols, distinct, err := c.selectList(p.Select)
	if err != nil {
		return "", err
	}

	b := sq.Select(cols...)
	if distinct {
		b = b.Distinct()
	}
	b = b.From(p.Tables[0])

	for _, j := range p.Joins {
		on, err := c.join(j)
		if err != nil {
			return "", err
		}
		b = b.Join(on)
	}

	for i, f := range p.Filters {
		expr, err := c.filter(f)
		if err != nil {
			return "", fmt.Errorf("filter %d: %w", i, err)
		}
		b = b.Where(expr)
	}

	groups := make([]string, 0, len(p.GroupBy))
	for _, g := range p.GroupBy {
		if err := c.column("group_by", g); err != nil {
			return "", err
		}
		groups = append(groups, g.String())
	}
	b = b.GroupBy(groups...)

	orders := make([]string, 0, len(p.OrderBy))
	for _, o := range p.OrderBy {
		if err := c.column("order_by", o.Ref()); err != nil {
			return "", err
		}
		dir := strings.ToUpper(strings.TrimSpace(o.Dir))
		if dir == "" {
			dir = "ASC"
		}
		if dir != "ASC" && dir != "DESC" {
			return "", fail(ErrBadOrder, "%s", o.Dir)
		}
		orders = append(orders, o.Ref().String()+" "+dir)
	}
	b = b.OrderBy(orders...)

	limit, err := p.Limit.Value()
	if err != nil {
		return "", fail(ErrBadLimit, "%s", p.Limit)
	}
	b = b.Limit(uint64(limit))

	sql, _, err := b.ToSql()
	if err != nil {
		return "", fmt.Errorf("failed to assemble SQL: %w", err)
	}
	return sql, nil
}

func (c *compiler) column(where string, ref plan.ColumnRef) error {
	if !c.schema.HasTable(ref.Table) {
		return fail(ErrUnknownTable, "%s in %s", ref.Table, where)
	}
	if !c.schema.HasColumn(ref.Table, ref.Column) {
		return fail(ErrUnknownColumn, "%s in %s", ref, where)
	}
	return nil
}

func (c *compiler) selectList(items []plan.SelectItem) ([]string, bool, error) {
	if len(items) == 0 {
		return nil, false, &Error{Kind: ErrNoSelect}
	}
	cols := make([]string, 0, len(items))
	distinct := false
	for _, item := range items {
		if err := c.column("select", item.Ref()); err != nil {
			return nil, false, err
		}
		expr := item.Ref().String()
		switch item.Agg {
		case plan.AggNone:
		case plan.AggCountDistinct:
			expr = "COUNT(DISTINCT " + expr + ")"
		case plan.AggCount, plan.AggSum, plan.AggAvg, plan.AggMin, plan.AggMax:
			expr = strings.ToUpper(string(item.Agg)) + "(" + expr + ")"
		default:
			return nil, false, fail(ErrBadAggregate, "%s", item.Agg)
		}
		if alias := strings.TrimSpace(item.Alias); alias != "" {
			if !identRe.MatchString(alias) {
				return nil, false, fail(ErrBadAlias, "%q", item.Alias)
			}
			expr += " AS " + alias
		}
		cols = append(cols, expr)
		distinct = distinct || item.Distinct
	}
	return cols, distinct, nil
}

func (c *compiler) join(j plan.Join) (string, error) {
	left, err := c.endpoint(j.Left)
	if err != nil {
		return "", err
	}
	right, err := c.endpoint(j.Right)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%s ON %s = %s", right.Table, left, right), nil
}

func (c *compiler) endpoint(s string) (plan.ColumnRef, error) {
	parts := strings.Split(strings.TrimSpace(s), ".")
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return plan.ColumnRef{}, fail(ErrBadJoin, "%s", s)
	}
	ref := plan.Col(parts[0], parts[1])
	if err := c.column("join", ref); err != nil {
		return plan.ColumnRef{}, err
	}
	return ref, nil
}

func (c *compiler) filter(f plan.Filter) (string, error) {
	switch x := f.(type) {
	case plan.Raw:
		return c.raw(x)
	case plan.Equals:
		if err := c.column("filter", x.Ref); err != nil {
			return "", err
		}
		lit, err := literal(x.Value)
		if err != nil {
			return "", fail(ErrBadFilter, "%s: %v", x.Ref, err)
		}
		return x.Ref.String() + " = " + lit, nil
	case plan.In:
		if err := c.column("filter", x.Ref); err != nil {
			return "", err
		}
		if len(x.Values) == 0 {
			return "", fail(ErrBadFilter, "%s: in requires values", x.Ref)
		}
		lits := make([]string, 0, len(x.Values))
		for _, v := range x.Values {
			lit, err := literal(v)
			if err != nil {
				return "", fail(ErrBadFilter, "%s: %v", x.Ref, err)
			}
			lits = append(lits, lit)
		}
		return x.Ref.String() + " IN (" + strings.Join(lits, ", ") + ")", nil
	case plan.IsNull:
		if err := c.column("filter", x.Ref); err != nil {
			return "", err
		}
		if x.Not {
			return x.Ref.String() + " IS NOT NULL", nil
		}
		return x.Ref.String() + " IS NULL", nil
	case plan.Between:
		if err := c.column("filter", x.Ref); err != nil {
			return "", err
		}
		low, err := literal(x.Low)
		if err != nil {
			return "", fail(ErrBadFilter, "%s: %v", x.Ref, err)
		}
		high, err := literal(x.High)
		if err != nil {
			return "", fail(ErrBadFilter, "%s: %v", x.Ref, err)
		}
		return x.Ref.String() + " BETWEEN " + low + " AND " + high, nil
	case plan.DateRange:
		return c.dateRange(x)
	default:
		return "", fail(ErrBadFilter, "unsupported filter %T", f)
	}
}

func (c *compiler) raw(r plan.Raw) (string, error) {
	if !c.opts.allowRaw {
		return "", fail(ErrRawDisabled, "%s", r.Expr)
	}
	expr := strings.TrimSpace(r.Expr)
	if expr == "" {
		return "", fail(ErrBadFilter, "filter requires expr string")
	}
	if rawDenyRe.MatchString(expr) {
		return "", fail(ErrForbiddenToken, "%s", expr)
	}
	return "(" + expr + ")", nil
}

func (c *compiler) dateRange(d plan.DateRange) (string, error) {
	if err := c.column("filter", d.Ref); err != nil {
		return "", err
	}
	if d.To.Before(d.From) {
		return "", fail(ErrBadFilter, "%s: date range ends before it starts", d.Ref)
	}

	var col, from, to string
	switch c.opts.dialect {
	case DialectSQLite:
		col = "date(" + d.Ref.String() + ")"
		from, to = quote(d.From.Format("2006-01-02")), quote(d.To.Format("2006-01-02"))
	default:
		col = "CAST(" + d.Ref.String() + " AS DATE)"
		if d.TimeZone != "" {
			if err := validZone(d.TimeZone); err != nil {
				return "", fail(ErrBadFilter, "%s: %v", d.Ref, err)
			}
			col = "(" + d.Ref.String() + " AT TIME ZONE " + quote(d.TimeZone) + ")::date"
		}
		from, _ = literal(d.From)
		to, _ = literal(d.To)
	}

	if d.SingleDay() {
		return col + " = " + from, nil
	}
	return col + " BETWEEN " + from + " AND " + to, nil
}
