package validator

import (
	"regexp"
	"sort"
	"strings"
)

// ApplySynonyms rewrites whole-word occurrences of the table names in
// synonyms to their canonical names, including qualifiers such as
// "setups.id". Text inside string literals and names after a dot are left
// alone. It reports whether anything changed. Keys are matched
// case-insensitively; longer keys are tried first.
func ApplySynonyms(sql string, synonyms map[string]string) (string, bool) {
	if len(synonyms) == 0 {
		return sql, false
	}
	keys := make([]string, 0, len(synonyms))
	for k := range synonyms {
		if strings.TrimSpace(k) != "" {
			keys = append(keys, k)
		}
	}
	sort.Slice(keys, func(i, j int) bool {
		if len(keys[i]) != len(keys[j]) {
			return len(keys[i]) > len(keys[j])
		}
		return keys[i] < keys[j]
	})

	res := make([]*regexp.Regexp, len(keys))
	for i, k := range keys {
		res[i] = regexp.MustCompile(`(?i)(^|[^.\w])` + regexp.QuoteMeta(strings.TrimSpace(k)) + `\b`)
	}

	var b strings.Builder
	last := 0
	rewrite := func(code string) {
		for i, re := range res {
			code = re.ReplaceAllString(code, "${1}"+synonyms[keys[i]])
		}
		b.WriteString(code)
	}
	for _, loc := range stringLitRe.FindAllStringIndex(sql, -1) {
		rewrite(sql[last:loc[0]])
		b.WriteString(sql[loc[0]:loc[1]])
		last = loc[1]
	}
	rewrite(sql[last:])

	out := b.String()
	return out, out != sql
}
