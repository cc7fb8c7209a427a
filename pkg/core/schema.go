package core

import (
	"encoding/json"
	"sort"
	"strings"
)

// AllowedSchema is an immutable snapshot of the tables and columns a query
// may reference. Names are stored lower-cased and lookups are
// case-insensitive. The zero value is an empty schema.
type AllowedSchema struct {
	tables map[string]map[string]struct{}
	order  map[string][]string
}

// NewAllowedSchema builds a snapshot from a table -> columns mapping.
// Column order is preserved for rendering; duplicates are dropped.
func NewAllowedSchema(tables map[string][]string) *AllowedSchema {
	s := &AllowedSchema{
		tables: make(map[string]map[string]struct{}, len(tables)),
		order:  make(map[string][]string, len(tables)),
	}
	for table, cols := range tables {
		t := strings.ToLower(strings.TrimSpace(table))
		if t == "" {
			continue
		}
		set, ok := s.tables[t]
		if !ok {
			set = make(map[string]struct{}, len(cols))
			s.tables[t] = set
		}
		for _, c := range cols {
			c = strings.ToLower(strings.TrimSpace(c))
			if c == "" {
				continue
			}
			if _, dup := set[c]; dup {
				continue
			}
			set[c] = struct{}{}
			s.order[t] = append(s.order[t], c)
		}
	}
	return s
}

// HasTable reports whether the table is part of the snapshot.
func (s *AllowedSchema) HasTable(table string) bool {
	if s == nil {
		return false
	}
	_, ok := s.tables[strings.ToLower(table)]
	return ok
}

// HasColumn reports whether table.column is part of the snapshot.
func (s *AllowedSchema) HasColumn(table, column string) bool {
	if s == nil {
		return false
	}
	cols, ok := s.tables[strings.ToLower(table)]
	if !ok {
		return false
	}
	_, ok = cols[strings.ToLower(column)]
	return ok
}

// Tables returns the sorted table names.
func (s *AllowedSchema) Tables() []string {
	if s == nil {
		return nil
	}
	names := make([]string, 0, len(s.tables))
	for t := range s.tables {
		names = append(names, t)
	}
	sort.Strings(names)
	return names
}

// Columns returns the columns of a table in catalog order.
// The returned slice is a copy.
func (s *AllowedSchema) Columns(table string) []string {
	if s == nil {
		return nil
	}
	cols := s.order[strings.ToLower(table)]
	out := make([]string, len(cols))
	copy(out, cols)
	return out
}

// AllColumns returns the set of column names across every table.
func (s *AllowedSchema) AllColumns() map[string]struct{} {
	all := make(map[string]struct{})
	if s == nil {
		return all
	}
	for _, cols := range s.tables {
		for c := range cols {
			all[c] = struct{}{}
		}
	}
	return all
}

// Len returns the number of tables.
func (s *AllowedSchema) Len() int {
	if s == nil {
		return 0
	}
	return len(s.tables)
}

// Restrict returns a new snapshot limited to the named tables.
// An empty list returns the receiver unchanged.
func (s *AllowedSchema) Restrict(tables []string) *AllowedSchema {
	if len(tables) == 0 || s == nil {
		return s
	}
	m := make(map[string][]string, len(tables))
	for _, t := range tables {
		t = strings.ToLower(t)
		if cols, ok := s.order[t]; ok {
			m[t] = cols
		}
	}
	return NewAllowedSchema(m)
}

// JSON renders the snapshot as a table -> columns object, truncated to at
// most maxChars bytes (0 means unbounded). Tables are emitted in sorted
// order and whole tables are dropped once the budget is exhausted.
func (s *AllowedSchema) JSON(maxChars int) string {
	var b strings.Builder
	b.WriteByte('{')
	written := 0
	for _, t := range s.Tables() {
		key, _ := json.Marshal(t)
		val, _ := json.Marshal(s.order[t])
		entry := string(key) + ":" + string(val)
		if written > 0 {
			entry = "," + entry
		}
		if maxChars > 0 && b.Len()+len(entry)+1 > maxChars {
			break
		}
		b.WriteString(entry)
		written++
	}
	b.WriteByte('}')
	return b.String()
}
