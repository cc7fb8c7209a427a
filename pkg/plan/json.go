package plan

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Filter ops in the JSON form.
const (
	OpEquals    = "eq"
	OpIn        = "in"
	OpIsNull    = "is_null"
	OpNotNull   = "not_null"
	OpBetween   = "between"
	OpDateRange = "date_range"
)

type filterJSON struct {
	Op     string            `json:"op,omitempty"`
	Expr   *string           `json:"expr,omitempty"`
	Table  string            `json:"table,omitempty"`
	Column string            `json:"column,omitempty"`
	Value  json.RawMessage   `json:"value,omitempty"`
	Values []json.RawMessage `json:"values,omitempty"`
	Low    json.RawMessage   `json:"low,omitempty"`
	High   json.RawMessage   `json:"high,omitempty"`
	From   string            `json:"from,omitempty"`
	To     string            `json:"to,omitempty"`
	TZ     string            `json:"tz,omitempty"`
}

// Parse decodes a plan from JSON.
func Parse(data []byte) (*Plan, error) {
	var p Plan
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("failed to decode plan: %w", err)
	}
	return &p, nil
}

// UnmarshalJSON decodes filters. An object with only "expr" is a Raw filter;
// anything else must carry a supported "op".
func (fs *Filters) UnmarshalJSON(data []byte) error {
	var items []filterJSON
	if err := json.Unmarshal(data, &items); err != nil {
		return err
	}
	out := make(Filters, 0, len(items))
	for i, item := range items {
		f, err := item.decode()
		if err != nil {
			return fmt.Errorf("filter %d: %w", i, err)
		}
		out = append(out, f)
	}
	*fs = out
	return nil
}

func (f filterJSON) decode() (Filter, error) {
	if f.Op == "" {
		if f.Expr == nil {
			return nil, fmt.Errorf("filter requires expr or op")
		}
		return Raw{Expr: *f.Expr}, nil
	}

	ref := Col(f.Table, f.Column)
	if ref.Table == "" || ref.Column == "" {
		return nil, fmt.Errorf("%s filter requires table/column", f.Op)
	}

	switch f.Op {
	case OpEquals:
		v, err := decodeValue(f.Value)
		if err != nil {
			return nil, err
		}
		return Equals{Ref: ref, Value: v}, nil
	case OpIn:
		if len(f.Values) == 0 {
			return nil, fmt.Errorf("in filter requires values")
		}
		values := make([]any, 0, len(f.Values))
		for _, raw := range f.Values {
			v, err := decodeValue(raw)
			if err != nil {
				return nil, err
			}
			values = append(values, v)
		}
		return In{Ref: ref, Values: values}, nil
	case OpIsNull:
		return IsNull{Ref: ref}, nil
	case OpNotNull:
		return IsNull{Ref: ref, Not: true}, nil
	case OpBetween:
		low, err := decodeValue(f.Low)
		if err != nil {
			return nil, err
		}
		high, err := decodeValue(f.High)
		if err != nil {
			return nil, err
		}
		return Between{Ref: ref, Low: low, High: high}, nil
	case OpDateRange:
		from, err := time.Parse(time.DateOnly, f.From)
		if err != nil {
			return nil, fmt.Errorf("date_range from: %w", err)
		}
		to := from
		if f.To != "" {
			if to, err = time.Parse(time.DateOnly, f.To); err != nil {
				return nil, fmt.Errorf("date_range to: %w", err)
			}
		}
		return DateRange{Ref: ref, From: from, To: to, TimeZone: f.TZ}, nil
	default:
		return nil, fmt.Errorf("unknown filter op %q", f.Op)
	}
}

// decodeValue accepts JSON strings, numbers and booleans.
// Integral numbers decode to int64, others to float64.
func decodeValue(raw json.RawMessage) (any, error) {
	if len(raw) == 0 {
		return nil, fmt.Errorf("filter value is required")
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, err
	}
	switch x := v.(type) {
	case string, bool:
		return x, nil
	case json.Number:
		if n, err := x.Int64(); err == nil {
			return n, nil
		}
		return x.Float64()
	default:
		return nil, fmt.Errorf("unsupported filter value %s", string(raw))
	}
}

// MarshalJSON encodes filters in the same shape UnmarshalJSON accepts.
func (fs Filters) MarshalJSON() ([]byte, error) {
	items := make([]map[string]any, 0, len(fs))
	for _, f := range fs {
		switch x := f.(type) {
		case Raw:
			items = append(items, map[string]any{"expr": x.Expr})
		case Equals:
			items = append(items, refMap(OpEquals, x.Ref, "value", x.Value))
		case In:
			items = append(items, refMap(OpIn, x.Ref, "values", x.Values))
		case IsNull:
			op := OpIsNull
			if x.Not {
				op = OpNotNull
			}
			items = append(items, refMap(op, x.Ref, "", nil))
		case Between:
			m := refMap(OpBetween, x.Ref, "low", x.Low)
			m["high"] = x.High
			items = append(items, m)
		case DateRange:
			m := refMap(OpDateRange, x.Ref, "from", x.From.Format(time.DateOnly))
			m["to"] = x.To.Format(time.DateOnly)
			if x.TimeZone != "" {
				m["tz"] = x.TimeZone
			}
			items = append(items, m)
		default:
			return nil, fmt.Errorf("unsupported filter type %T", f)
		}
	}
	return json.Marshal(items)
}

func refMap(op string, ref ColumnRef, key string, value any) map[string]any {
	m := map[string]any{"op": op, "table": ref.Table, "column": ref.Column}
	if key != "" {
		m[key] = value
	}
	return m
}

// MarshalJSON writes integral limits as numbers and anything else as a string.
func (l *Limit) MarshalJSON() ([]byte, error) {
	if _, err := strconv.Atoi(l.raw); err == nil {
		return []byte(l.raw), nil
	}
	return json.Marshal(l.raw)
}

// UnmarshalJSON keeps the raw token; coercion happens in Value.
func (l *Limit) UnmarshalJSON(data []byte) error {
	l.raw = strings.TrimSpace(string(data))
	return nil
}
