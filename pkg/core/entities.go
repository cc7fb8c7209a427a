package core

import (
	"fmt"
	"sort"
	"strings"
	"time"
)

// MaxEntityIDs caps how many ids of one kind a resolution may carry.
const MaxEntityIDs = 10

// Intent classifies what a question asks for.
type Intent string

// Supported intents.
const (
	IntentListMachinists Intent = "list_machinists"
	IntentCountMachines  Intent = "count_machines_by_machinists"
	IntentGeneric        Intent = "generic"
)

// ParseIntent converts a string to an Intent.
// Returns the intent and true if valid, or IntentGeneric and false if invalid.
func ParseIntent(s string) (Intent, bool) {
	switch Intent(strings.ToLower(strings.TrimSpace(s))) {
	case IntentListMachinists:
		return IntentListMachinists, true
	case IntentCountMachines:
		return IntentCountMachines, true
	case IntentGeneric:
		return IntentGeneric, true
	default:
		return IntentGeneric, false
	}
}

// TimeframeKind is the shape of a Timeframe.
type TimeframeKind int

// Timeframe kinds.
const (
	TimeframeNone TimeframeKind = iota
	TimeframeYesterday
	TimeframeMonth
)

// Timeframe is the canonical time window of a question:
// "yesterday", "month:YYYY-MM" or "none".
type Timeframe struct {
	Kind  TimeframeKind
	Year  int
	Month time.Month
}

// Yesterday returns the yesterday timeframe.
func Yesterday() Timeframe { return Timeframe{Kind: TimeframeYesterday} }

// MonthOf returns the timeframe covering a calendar month.
func MonthOf(year int, month time.Month) Timeframe {
	return Timeframe{Kind: TimeframeMonth, Year: year, Month: month}
}

// String renders the canonical token.
func (tf Timeframe) String() string {
	switch tf.Kind {
	case TimeframeYesterday:
		return "yesterday"
	case TimeframeMonth:
		return fmt.Sprintf("month:%04d-%02d", tf.Year, int(tf.Month))
	default:
		return "none"
	}
}

// IsZero reports whether no timeframe was detected.
func (tf Timeframe) IsZero() bool { return tf.Kind == TimeframeNone }

// ParseTimeframe parses a canonical timeframe token. The empty string and
// "none" (or JSON null rendered as "null") parse as TimeframeNone.
func ParseTimeframe(s string) (Timeframe, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	switch s {
	case "", "none", "null":
		return Timeframe{}, nil
	case "yesterday":
		return Yesterday(), nil
	}
	ym, ok := strings.CutPrefix(s, "month:")
	if !ok {
		return Timeframe{}, fmt.Errorf("unknown timeframe %q", s)
	}
	t, err := time.Parse("2006-01", ym)
	if err != nil {
		return Timeframe{}, fmt.Errorf("invalid month timeframe %q: %w", s, err)
	}
	return MonthOf(t.Year(), t.Month()), nil
}

// MarshalText implements encoding.TextMarshaler.
func (tf Timeframe) MarshalText() ([]byte, error) {
	return []byte(tf.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (tf *Timeframe) UnmarshalText(b []byte) error {
	parsed, err := ParseTimeframe(string(b))
	if err != nil {
		return err
	}
	*tf = parsed
	return nil
}

// ResolvedEntities is the outcome of entity resolution for one question.
// Id slices are sorted, de-duplicated and capped at MaxEntityIDs.
type ResolvedEntities struct {
	Intent    Intent    `json:"intent"`
	Timeframe Timeframe `json:"timeframe"`
	Employees []int64   `json:"employees,omitempty"`
	Machines  []int64   `json:"machines,omitempty"`
	Parts     []int64   `json:"parts,omitempty"`
	Lots      []int64   `json:"lots,omitempty"`
}

// Normalize sorts, de-duplicates and caps every id set in place and
// defaults an empty intent to generic.
func (e *ResolvedEntities) Normalize() {
	if e.Intent == "" {
		e.Intent = IntentGeneric
	}
	e.Employees = NormalizeIDs(e.Employees)
	e.Machines = NormalizeIDs(e.Machines)
	e.Parts = NormalizeIDs(e.Parts)
	e.Lots = NormalizeIDs(e.Lots)
}

// NormalizeIDs returns ids sorted ascending, without duplicates and
// truncated to MaxEntityIDs. A nil or empty input returns nil.
func NormalizeIDs(ids []int64) []int64 {
	if len(ids) == 0 {
		return nil
	}
	out := make([]int64, len(ids))
	copy(out, ids)
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	n := 1
	for i := 1; i < len(out); i++ {
		if out[i] != out[n-1] {
			out[n] = out[i]
			n++
		}
	}
	out = out[:n]
	if len(out) > MaxEntityIDs {
		out = out[:MaxEntityIDs]
	}
	return out
}
