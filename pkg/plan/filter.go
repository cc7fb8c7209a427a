package plan

import "time"

// Filter is one WHERE conjunct. The set of variants is closed: only the
// types in this package implement it.
type Filter interface {
	isFilter()
}

// Equals matches Ref = Value.
type Equals struct {
	Ref   ColumnRef
	Value any
}

// In matches Ref IN (Values...).
type In struct {
	Ref    ColumnRef
	Values []any
}

// IsNull matches Ref IS NULL, or IS NOT NULL when Not is set.
type IsNull struct {
	Ref ColumnRef
	Not bool
}

// Between matches Ref BETWEEN Low AND High.
type Between struct {
	Ref  ColumnRef
	Low  any
	High any
}

// DateRange matches rows whose timestamp column, read as a calendar date in
// TimeZone, falls within [From, To]. Only the date part of From and To is used.
type DateRange struct {
	Ref      ColumnRef
	From     time.Time
	To       time.Time
	TimeZone string
}

// SingleDay reports whether the range covers exactly one date.
func (d DateRange) SingleDay() bool {
	return d.From.Format(time.DateOnly) == d.To.Format(time.DateOnly)
}

// Raw is an opaque boolean SQL expression. It is the escape hatch of the IR
// and can be refused entirely by the compiler.
type Raw struct {
	Expr string
}

func (Equals) isFilter()    {}
func (In) isFilter()        {}
func (IsNull) isFilter()    {}
func (Between) isFilter()   {}
func (DateRange) isFilter() {}
func (Raw) isFilter()       {}

// Filters is an ordered list of conjuncts with a JSON form.
type Filters []Filter

// InInt64 builds an In filter from integer ids.
func InInt64(ref ColumnRef, ids []int64) In {
	values := make([]any, len(ids))
	for i, id := range ids {
		values[i] = id
	}
	return In{Ref: ref, Values: values}
}
