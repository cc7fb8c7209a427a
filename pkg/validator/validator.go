// Package validator is the independent second line of defense for SQL text.
//
// Every statement, whether compiled from a plan or produced by a generative
// component, passes through Validate before execution. Validation is a pure
// function of (sql, level, options): it never touches a database.
package validator

import (
	"regexp"
	"strings"

	"github.com/leapstack-labs/leapask/pkg/core"
)

// Default option values.
const (
	DefaultMaxLength = 1000
	DefaultMaxRows   = 100
)

// DefaultAllowedTables is the static table allow-list used for the
// unknown-table warning when none is configured.
var DefaultAllowedTables = []string{
	"batches", "batch_operations", "machines", "employees", "access_attempts",
	"cards", "setup_jobs", "batches_with_shifts", "lots", "parts",
}

// Options configures a Validator.
type Options struct {
	MaxLength     int                 // statements longer than this are rejected
	MaxRows       int                 // row cap used for the appended LIMIT
	AllowedTables []string            // static allow-list for the unknown-table warning
	Schema        *core.AllowedSchema // column catalog; nil disables the column check
}

// Violation is one rule finding.
type Violation struct {
	RuleID   string        `json:"rule_id"`
	Severity core.Severity `json:"severity"`
	Message  string        `json:"message"`
}

// Result is the outcome of validating one statement.
// Valid is exactly len(Errors) == 0.
type Result struct {
	Valid        bool        `json:"valid"`
	Errors       []string    `json:"errors"`
	Warnings     []string    `json:"warnings"`
	SanitizedSQL string      `json:"sanitized_sql"`
	Level        Level       `json:"level"`
	Violations   []Violation `json:"violations,omitempty"`
}

// RuleIDs returns the ids of rules that produced findings of the given severity.
func (r Result) RuleIDs(sev core.Severity) []string {
	var ids []string
	seen := make(map[string]struct{})
	for _, v := range r.Violations {
		if v.Severity != sev {
			continue
		}
		if _, ok := seen[v.RuleID]; ok {
			continue
		}
		seen[v.RuleID] = struct{}{}
		ids = append(ids, v.RuleID)
	}
	return ids
}

// Validator applies the rule table to SQL text.
type Validator struct {
	opts    Options
	allowed map[string]struct{}
	rules   []RuleDef
}

// New creates a Validator. Zero option values take the defaults.
func New(opts Options) *Validator {
	if opts.MaxLength <= 0 {
		opts.MaxLength = DefaultMaxLength
	}
	if opts.MaxRows <= 0 {
		opts.MaxRows = DefaultMaxRows
	}
	if opts.AllowedTables == nil {
		opts.AllowedTables = DefaultAllowedTables
	}
	allowed := make(map[string]struct{}, len(opts.AllowedTables))
	for _, t := range opts.AllowedTables {
		allowed[strings.ToLower(t)] = struct{}{}
	}
	return &Validator{opts: opts, allowed: allowed, rules: builtinRules()}
}

// Rules returns the rule table in evaluation order.
func (v *Validator) Rules() []RuleDef {
	out := make([]RuleDef, len(v.rules))
	copy(out, v.rules)
	return out
}

// Options returns the effective options.
func (v *Validator) Options() Options { return v.opts }

// statement is the rule input. sql is the current (possibly rewritten)
// text; stripped has string literals blanked for identifier extraction.
type statement struct {
	v        *Validator
	trimmed  string
	stripped string
	sql      string
}

var stringLitRe = regexp.MustCompile(`'(?:[^']|'')*'`)

func blankLiterals(sql string) string { return stringLitRe.ReplaceAllString(sql, "''") }

// Validate checks sql at the given level.
func (v *Validator) Validate(sql string, level Level) Result {
	trimmed := strings.TrimSpace(sql)
	s := &statement{
		v:        v,
		trimmed:  trimmed,
		stripped: blankLiterals(trimmed),
		sql:      trimmed,
	}
	res := Result{Level: level, Errors: []string{}, Warnings: []string{}}

	for _, rule := range v.rules {
		if !rule.AppliesAt(level) {
			continue
		}
		if rule.Rewrite != nil {
			if out, msg := rule.Rewrite(s); msg != "" {
				s.sql = out
				res.add(rule, msg)
			}
			continue
		}
		msgs := rule.Check(s)
		for _, msg := range msgs {
			res.add(rule, msg)
		}
		if rule.Stop && len(msgs) > 0 {
			s.sql = ""
			break
		}
	}

	res.SanitizedSQL = s.sql
	res.Valid = len(res.Errors) == 0
	return res
}

func (r *Result) add(rule RuleDef, msg string) {
	if rule.Severity == core.SeverityError {
		r.Errors = append(r.Errors, msg)
	} else {
		r.Warnings = append(r.Warnings, msg)
	}
	r.Violations = append(r.Violations, Violation{RuleID: rule.ID, Severity: rule.Severity, Message: msg})
}
