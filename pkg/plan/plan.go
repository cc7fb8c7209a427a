// Package plan defines the query plan IR: a small, typed description of a
// single-level SELECT that the compiler turns into SQL.
//
// A Plan is built per request, never persisted, and always recompiled.
// It cannot express subqueries, CTEs or UNIONs.
package plan

import (
	"fmt"
	"strconv"
	"strings"
)

// DefaultLimit is used when a plan carries no limit or a non-positive one.
const DefaultLimit = 100

// Plan is the intermediate representation between a resolved question and SQL.
type Plan struct {
	Tables  []string     `json:"tables"`
	Joins   []Join       `json:"joins,omitempty"`
	Select  []SelectItem `json:"select"`
	Filters Filters      `json:"filters,omitempty"`
	GroupBy []ColumnRef  `json:"group_by,omitempty"`
	OrderBy []OrderItem  `json:"order_by,omitempty"`
	Limit   *Limit       `json:"limit,omitempty"`
}

// IsEmpty reports whether the plan names no tables. The deterministic
// planner returns an empty plan when no template matches.
func (p *Plan) IsEmpty() bool {
	return p == nil || len(p.Tables) == 0
}

// Join is an inner join between two "table.column" endpoints.
// The right endpoint's table is the one joined in.
type Join struct {
	Left  string `json:"left"`
	Right string `json:"right"`
}

// ColumnRef names a column of a table.
type ColumnRef struct {
	Table  string `json:"table"`
	Column string `json:"column"`
}

// Col is shorthand for building a ColumnRef.
func Col(table, column string) ColumnRef {
	return ColumnRef{Table: table, Column: column}
}

// String renders the reference as table.column.
func (c ColumnRef) String() string {
	return c.Table + "." + c.Column
}

// Agg is an aggregate applied to a select item.
type Agg string

// Supported aggregates.
const (
	AggNone          Agg = ""
	AggCount         Agg = "count"
	AggCountDistinct Agg = "count_distinct"
	AggSum           Agg = "sum"
	AggAvg           Agg = "avg"
	AggMin           Agg = "min"
	AggMax           Agg = "max"
)

// Valid reports whether the aggregate is supported.
func (a Agg) Valid() bool {
	switch a {
	case AggNone, AggCount, AggCountDistinct, AggSum, AggAvg, AggMin, AggMax:
		return true
	}
	return false
}

// SelectItem is one output column. Distinct on any item makes the whole
// SELECT distinct.
type SelectItem struct {
	Table    string `json:"table"`
	Column   string `json:"column"`
	Alias    string `json:"alias,omitempty"`
	Distinct bool   `json:"distinct,omitempty"`
	Agg      Agg    `json:"agg,omitempty"`
}

// Ref returns the column the item reads.
func (s SelectItem) Ref() ColumnRef { return Col(s.Table, s.Column) }

// OrderItem is one ORDER BY term. An empty Dir means ascending.
type OrderItem struct {
	Table  string `json:"table"`
	Column string `json:"column"`
	Dir    string `json:"dir,omitempty"`
}

// Ref returns the column the item orders by.
func (o OrderItem) Ref() ColumnRef { return Col(o.Table, o.Column) }

// Limit holds the raw limit token so that an absent limit (nil) can be told
// apart from one that is present but not an integer.
type Limit struct {
	raw string
}

// LimitOf returns a limit of n rows.
func LimitOf(n int) *Limit {
	return &Limit{raw: strconv.Itoa(n)}
}

// RawLimit returns a limit holding an arbitrary token, as decoded from JSON.
func RawLimit(token string) *Limit {
	return &Limit{raw: token}
}

// String returns the raw token.
func (l *Limit) String() string {
	if l == nil {
		return ""
	}
	return l.raw
}

// Value coerces the limit to a row count. A nil limit or a non-positive
// value yields DefaultLimit. Integral floats ("100.0") are accepted.
func (l *Limit) Value() (int, error) {
	if l == nil {
		return DefaultLimit, nil
	}
	tok := strings.Trim(strings.TrimSpace(l.raw), `"`)
	n, err := strconv.Atoi(tok)
	if err != nil {
		f, ferr := strconv.ParseFloat(tok, 64)
		if ferr != nil || f != float64(int(f)) {
			return 0, fmt.Errorf("invalid limit value: %s", l.raw)
		}
		n = int(f)
	}
	if n <= 0 {
		return DefaultLimit, nil
	}
	return n, nil
}
