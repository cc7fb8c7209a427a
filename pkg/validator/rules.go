package validator

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/leapstack-labs/leapask/pkg/core"
)

// RuleUnknownTable is the id of the unknown-table warning. Callers key
// table-synonym rewrites on it.
const RuleUnknownTable = "SV07"

// RuleDef is a data-driven validation rule. Rules are stateless; all context
// comes through the statement passed to Check.
type RuleDef struct {
	ID          string        // Unique identifier, e.g. "SV04"
	Name        string        // Human-readable name, e.g. "denylist"
	Description string        // What the rule enforces
	Severity    core.Severity // Error blocks execution, warning does not
	MinLevel    Level         // Lowest level at which the rule runs
	Stop        bool          // A finding ends evaluation
	Check       CheckFunc     // Returns one message per finding
	Rewrite     RewriteFunc   // Optional; rewrites the statement instead of checking it
}

// CheckFunc inspects a statement and returns finding messages.
type CheckFunc func(s *statement) []string

// RewriteFunc returns the rewritten SQL and a message when it changed anything.
type RewriteFunc func(s *statement) (string, string)

// AppliesAt reports whether the rule runs at the given level.
func (r RuleDef) AppliesAt(l Level) bool {
	return l >= r.MinLevel
}

type pattern struct {
	label string
	re    *regexp.Regexp
}

func p(label, expr string) pattern {
	return pattern{label: label, re: regexp.MustCompile(`(?i)` + expr)}
}

var (
	commentRe = regexp.MustCompile(`--|/\*|\*/`)

	denylist = []pattern{
		p("data modification", `\b(insert|update|delete|drop|alter|truncate|grant|revoke|copy)\b`),
		p("schema change", `\b(create|replace|modify|rename)\b`),
		p("procedure execution", `\b(exec|execute|call)\b|\b(sp|xp)_\w+`),
		p("information_schema union", `\bunion\b[\s\S]*\binformation_schema\b`),
		p("file access", `\bload_file\b|\binto\s+(outfile|dumpfile)\b|\bpg_read_file\b|\bpg_ls_dir\b|\blo_(import|export)\b`),
		p("table locking", `\b(lock|unlock)\s+tables?\b`),
		p("privilege inspection", `\bshow\s+(grants|processlist)\b`),
		p("stacked statement", `;\s*(drop|delete|update|insert|alter|truncate)\b`),
	}

	shapes = []*regexp.Regexp{
		regexp.MustCompile(`(?i)^\s*select\b`),
		regexp.MustCompile(`(?i)^\s*with\b`),
		regexp.MustCompile(`(?i)\bfrom\b`),
		regexp.MustCompile(`(?i)\bwhere\b`),
		regexp.MustCompile(`(?i)\bgroup\s+by\b`),
		regexp.MustCompile(`(?i)\border\s+by\b`),
		regexp.MustCompile(`(?i)\blimit\b`),
		regexp.MustCompile(`(?i)\b(count|sum|avg|max|min|coalesce)\s*\(`),
		regexp.MustCompile(`(?i)\bnow\s*\(\s*\)`),
		regexp.MustCompile(`(?i)\bcase\s+when\b`),
	}

	leadingRe  = regexp.MustCompile(`(?i)^\s*(select|with)\b`)
	tableRe    = regexp.MustCompile(`(?i)\b(?:from|join)\s+([a-z_][a-z0-9_]*)(?:\s*\.\s*([a-z_][a-z0-9_]*))?`)
	cteRe      = regexp.MustCompile(`(?i)(?:\bwith|,)\s*([a-z_][a-z0-9_]*)\s+as\s*\(`)
	funcRe     = regexp.MustCompile(`(?i)\b([a-z_][a-z0-9_]*)\s*\(`)
	qualRe     = regexp.MustCompile(`(?i)\b([a-z_][a-z0-9_]*)\s*\.\s*([a-z_][a-z0-9_]*)\b`)
	fromQualRe = regexp.MustCompile(`(?i)\b(from|join)\s+[a-z_][a-z0-9_]*\s*\.\s*[a-z_][a-z0-9_]*`)
	limitRe    = regexp.MustCompile(`(?i)\blimit\b`)

	// injection runs on the full text.
	injection = []pattern{
		p("stacked drop", `;\s*drop\s+`),
		p("stacked delete", `;\s*delete\s+`),
		p("stacked update", `;\s*update\s+`),
		p("hex literal", `\b0x[0-9a-f]+\b`),
	}
	// stacked runs with string literals blanked.
	stacked = []pattern{
		p("multiple statements", `;\s*\S`),
	}
)

// knownFunctions are the function names SV08 accepts without a warning.
var knownFunctions = toSet(
	"count", "sum", "avg", "min", "max", "coalesce", "nullif", "greatest", "least",
	"now", "date", "date_trunc", "date_part", "extract", "age", "to_char", "to_date",
	"to_timestamp", "timezone", "cast", "lower", "upper", "trim", "length", "round",
	"abs", "floor", "ceil", "concat", "substring", "string_agg",
	"array_agg", "row_number", "rank", "dense_rank", "strftime", "julianday", "ifnull",
	"datetime", "current_date", "current_timestamp", "interval", "split_part",
)

// sqlKeywords precede "(" without being function calls.
var sqlKeywords = toSet(
	"in", "and", "or", "not", "exists", "as", "on", "values", "over", "filter",
	"from", "select", "where", "join", "using", "any", "all", "by", "when", "then",
	"else", "is", "like", "ilike", "between", "with", "union", "distinct", "partition",
	"within", "case", "end", "limit", "having",
)

func toSet(items ...string) map[string]struct{} {
	m := make(map[string]struct{}, len(items))
	for _, it := range items {
		m[it] = struct{}{}
	}
	return m
}

// builtinRules returns the ordered rule table.
func builtinRules() []RuleDef {
	return []RuleDef{
		{
			ID: "SV01", Name: "max-length", Severity: core.SeverityError, MinLevel: Permissive,
			Description: "Statement length must not exceed the configured maximum",
			Check: func(s *statement) []string {
				if n := len(s.trimmed); n > s.v.opts.MaxLength {
					return []string{fmt.Sprintf("Query too long: %d > %d", n, s.v.opts.MaxLength)}
				}
				return nil
			},
		},
		{
			ID: "SV02", Name: "empty", Severity: core.SeverityError, MinLevel: Permissive, Stop: true,
			Description: "Statement must not be empty",
			Check: func(s *statement) []string {
				if s.trimmed == "" {
					return []string{"Empty query"}
				}
				return nil
			},
		},
		{
			ID: "SV03", Name: "comments", Severity: core.SeverityError, MinLevel: Permissive,
			Description: "SQL comments (line or block) are forbidden",
			Check: func(s *statement) []string {
				if commentRe.MatchString(s.trimmed) {
					return []string{"SQL comments are forbidden"}
				}
				return nil
			},
		},
		{
			ID: "SV04", Name: "denylist", Severity: core.SeverityError, MinLevel: Permissive,
			Description: "Mutating or DDL verbs, procedure calls, file access, locking and stacked statements are forbidden",
			Check: func(s *statement) []string {
				return matchAll(denylist, s.trimmed, "Forbidden operation detected: %s")
			},
		},
		{
			ID: "SV05", Name: "shape", Severity: core.SeverityError, MinLevel: Strict,
			Description: "Statement must match at least one allowed read-query shape",
			Check: func(s *statement) []string {
				for _, re := range shapes {
					if re.MatchString(s.stripped) {
						return nil
					}
				}
				return []string{"Query does not match whitelist patterns"}
			},
		},
		{
			ID: "SV06", Name: "leading-select", Severity: core.SeverityError, MinLevel: Moderate,
			Description: "Statement must begin with SELECT or WITH",
			Check: func(s *statement) []string {
				if !leadingRe.MatchString(s.trimmed) {
					return []string{"Query must start with SELECT or WITH"}
				}
				return nil
			},
		},
		{
			ID: RuleUnknownTable, Name: "known-tables", Severity: core.SeverityWarning, MinLevel: Permissive,
			Description: "Referenced tables should be in the static allow-list or the known schema",
			Check:       checkTables,
		},
		{
			ID: "SV08", Name: "known-functions", Severity: core.SeverityWarning, MinLevel: Permissive,
			Description: "Called functions should be recognised read-only functions",
			Check:       checkFunctions,
		},
		{
			ID: "SV09", Name: "known-columns", Severity: core.SeverityError, MinLevel: Permissive,
			Description: "Qualified column references must resolve against the column catalog",
			Check:       checkColumns,
		},
		{
			ID: "SV10", Name: "limit", Severity: core.SeverityWarning, MinLevel: Permissive,
			Description: "A LIMIT clause is appended when missing",
			Rewrite: func(s *statement) (string, string) {
				if limitRe.MatchString(s.stripped) {
					return s.sql, ""
				}
				n := s.v.opts.MaxRows
				return strings.TrimRight(s.sql, "; \t\r\n") + fmt.Sprintf(" LIMIT %d", n), fmt.Sprintf("Added LIMIT %d", n)
			},
		},
		{
			ID: "SV11", Name: "injection", Severity: core.SeverityError, MinLevel: Permissive,
			Description: "Final injection heuristics: hex literals and stacked statements",
			Check: func(s *statement) []string {
				out := matchAll(injection, s.sql, "Potential SQL injection detected: %s")
				return append(out, matchAll(stacked, blankLiterals(s.sql), "Potential SQL injection detected: %s")...)
			},
		},
	}
}

func matchAll(patterns []pattern, text, format string) []string {
	var out []string
	for _, pt := range patterns {
		if pt.re.MatchString(text) {
			out = append(out, fmt.Sprintf(format, pt.label))
		}
	}
	return out
}

func checkTables(s *statement) []string {
	ctes := make(map[string]struct{})
	for _, m := range cteRe.FindAllStringSubmatch(s.stripped, -1) {
		ctes[strings.ToLower(m[1])] = struct{}{}
	}

	seen := make(map[string]struct{})
	var out []string
	for _, m := range tableRe.FindAllStringSubmatch(s.stripped, -1) {
		name := m[1]
		if m[2] != "" {
			name = m[2]
		}
		low := strings.ToLower(name)
		if _, dup := seen[low]; dup {
			continue
		}
		seen[low] = struct{}{}
		if _, ok := ctes[low]; ok {
			continue
		}
		if _, ok := s.v.allowed[low]; ok {
			continue
		}
		if s.v.opts.Schema.HasTable(low) {
			continue
		}
		out = append(out, "Unknown table: "+name)
	}
	return out
}

func checkFunctions(s *statement) []string {
	seen := make(map[string]struct{})
	var out []string
	for _, m := range funcRe.FindAllStringSubmatch(s.stripped, -1) {
		low := strings.ToLower(m[1])
		if _, ok := sqlKeywords[low]; ok {
			continue
		}
		if _, ok := knownFunctions[low]; ok {
			continue
		}
		if _, dup := seen[low]; dup {
			continue
		}
		seen[low] = struct{}{}
		out = append(out, "Unknown function: "+m[1])
	}
	return out
}

func checkColumns(s *statement) []string {
	schema := s.v.opts.Schema
	if schema.Len() == 0 {
		return nil
	}
	global := schema.AllColumns()
	text := fromQualRe.ReplaceAllString(s.stripped, "$1 _")

	var out []string
	seen := make(map[string]struct{})
	for _, m := range qualRe.FindAllStringSubmatch(text, -1) {
		left, col := strings.ToLower(m[1]), strings.ToLower(m[2])
		ref := m[1] + "." + m[2]
		if _, dup := seen[strings.ToLower(ref)]; dup {
			continue
		}
		seen[strings.ToLower(ref)] = struct{}{}
		if schema.HasTable(left) {
			if !schema.HasColumn(left, col) {
				out = append(out, "Unknown column: "+ref)
			}
			continue
		}
		if _, ok := global[col]; !ok {
			out = append(out, "Unknown column: "+ref)
		}
	}
	return out
}
