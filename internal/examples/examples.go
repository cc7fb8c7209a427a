// Package examples loads question/SQL pairs used as few-shot context for
// SQL generation, and appends feedback pairs back to the markdown source.
//
// Three file formats are understood, chosen by extension:
//
//	.md     "Q: question" followed by "SQL:" and a fenced block (or lines up to a blank line)
//	.yaml   a list of {question, sql} mappings
//	.jsonl  one object per line with question_ru, question_en or question_he and sql
package examples

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
)

// DefaultTop is the number of examples placed into a prompt.
const DefaultTop = 6

// Example is one question with its reference SQL.
type Example struct {
	Question string `yaml:"question" json:"question"`
	SQL      string `yaml:"sql" json:"sql"`
}

// Set is an ordered collection of examples. Earlier examples win ties in Top.
type Set []Example

// Load reads every path and concatenates the examples in path order.
// Missing files are skipped so a fresh install works without examples.
func Load(paths ...string) (Set, error) {
	var out Set
	for _, p := range paths {
		data, err := os.ReadFile(p)
		if os.IsNotExist(err) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read examples %s: %w", p, err)
		}

		var set Set
		switch strings.ToLower(filepath.Ext(p)) {
		case ".yaml", ".yml":
			set, err = ParseYAML(data)
		case ".jsonl":
			set, err = ParseJSONL(data)
		default:
			set = ParseMarkdown(string(data))
		}
		if err != nil {
			return nil, fmt.Errorf("failed to parse examples %s: %w", p, err)
		}
		out = append(out, set...)
	}
	return out, nil
}

var wordRe = regexp.MustCompile(`[\p{L}\p{N}_]+`)

// Top returns up to k examples ranked by how many words of question occur
// in the example question. Ties keep set order.
func (s Set) Top(question string, k int) Set {
	if k <= 0 || len(s) == 0 {
		return nil
	}
	words := wordRe.FindAllString(strings.ToLower(question), -1)

	type scored struct {
		score int
		ex    Example
	}
	ranked := make([]scored, 0, len(s))
	for _, ex := range s {
		q := strings.ToLower(ex.Question)
		n := 0
		for _, w := range words {
			if strings.Contains(q, w) {
				n++
			}
		}
		ranked = append(ranked, scored{score: n, ex: ex})
	}
	sort.SliceStable(ranked, func(i, j int) bool { return ranked[i].score > ranked[j].score })

	if k > len(ranked) {
		k = len(ranked)
	}
	out := make(Set, 0, k)
	for _, r := range ranked[:k] {
		out = append(out, r.ex)
	}
	return out
}

// Append writes one feedback pair to the markdown file at path in the
// format ParseMarkdown reads, creating the file and its directory.
func Append(path string, ex Example) error {
	q, sql := strings.TrimSpace(ex.Question), strings.TrimSpace(ex.SQL)
	if q == "" || sql == "" {
		return fmt.Errorf("feedback requires both a question and sql")
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("failed to create examples directory: %w", err)
		}
	}

	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("failed to open examples file: %w", err)
	}
	defer func() { _ = f.Close() }()

	if _, err := fmt.Fprintf(f, "\nQ: %s\nSQL:\n```sql\n%s\n```\n", q, sql); err != nil {
		return fmt.Errorf("failed to write example: %w", err)
	}
	return nil
}
