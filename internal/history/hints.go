package history

import (
	"fmt"
	"regexp"
	"strings"
)

// MaxHints bounds how many time hints are passed on to SQL generation.
const MaxHints = 2

// hintWindow is how many recent entries TimeHints inspects.
const hintWindow = 10

type hintRule struct {
	label    string
	question []string
	sql      []string
}

var hintRules = []hintRule{
	{label: "yesterday", question: []string{"вчера", "yesterday"}, sql: []string{"interval '1 day'", "current_date - 1"}},
	{label: "today", question: []string{"сегодня", "today"}},
	{label: "this week", question: []string{"на этой неделе", "this week"}, sql: []string{"date_trunc('week'"}},
	{label: "last week", question: []string{"на прошлой неделе", "last week"}},
	{label: "this month", question: []string{"в этом месяце", "this month"}, sql: []string{"date_trunc('month'"}},
	{label: "last month", question: []string{"в прошлом месяце", "last month"}},
	{label: "this quarter", question: []string{"в этом квартале", "this quarter"}, sql: []string{"date_trunc('quarter'"}},
	{label: "last quarter", question: []string{"в прошлом квартале", "last quarter"}},
	{label: "this year", question: []string{"в этом году", "this year"}, sql: []string{"date_trunc('year'"}},
	{label: "last year", question: []string{"в прошлом году", "last year"}},
}

var (
	ruLastNRe = regexp.MustCompile(`за\s+последние\s+(\d+)\s+(час|часа|часов|день|дня|дней|минут|минуты|минута|секунд|секунды|секунда)`)
	enLastNRe = regexp.MustCompile(`last\s+(\d+)\s+(hours?|days?|minutes?|secs|seconds?)`)

	ruUnits = map[string]string{
		"час": "hours", "часа": "hours", "часов": "hours",
		"день": "days", "дня": "days", "дней": "days",
		"минут": "minutes", "минуты": "minutes", "минута": "minutes",
		"секунд": "seconds", "секунды": "seconds", "секунда": "seconds",
	}
)

func enUnit(u string) string {
	switch {
	case strings.HasPrefix(u, "hour"):
		return "hours"
	case strings.HasPrefix(u, "day"):
		return "days"
	case strings.HasPrefix(u, "sec"):
		return "seconds"
	default:
		return "minutes"
	}
}

// TimeHints derives relative time windows ("yesterday", "last 3 days") from
// the newest entries of a session. Each hint names timezone. Entries are
// expected newest first, as Recent returns them.
func TimeHints(entries []Entry, timezone string) []string {
	var hints []string
	add := func(h string) {
		for _, have := range hints {
			if have == h {
				return
			}
		}
		hints = append(hints, h)
	}
	zoned := func(label string) string {
		return fmt.Sprintf("%s (timezone %s)", label, timezone)
	}

	if len(entries) > hintWindow {
		entries = entries[:hintWindow]
	}
	for _, e := range entries {
		q := strings.ToLower(e.Question)
		s := strings.ToLower(e.EffectiveSQL())

		for _, r := range hintRules {
			if containsAny(q, r.question) || containsAny(s, r.sql) {
				add(zoned(r.label))
			}
		}
		if strings.Contains(s, "current_date") && !strings.Contains(s, "- 1") {
			add(zoned("today"))
		}
		if m := ruLastNRe.FindStringSubmatch(q); m != nil {
			add(zoned("last " + m[1] + " " + ruUnits[m[2]]))
		}
		if m := enLastNRe.FindStringSubmatch(q); m != nil {
			add(zoned("last " + m[1] + " " + enUnit(m[2])))
		}
		if strings.Contains(s, "now() - interval '") {
			add("use the same relative now()-interval window as previous")
		}
	}
	return hints
}

// ContextPrefix renders at most MaxHints hints as a "[CONTEXT]" preamble for
// question, or returns question unchanged when there are none.
func ContextPrefix(question string, hints []string) string {
	if len(hints) == 0 {
		return question
	}
	if len(hints) > MaxHints {
		hints = hints[:MaxHints]
	}
	return "[CONTEXT] " + strings.Join(hints, "; ") + "\n\n" + question
}

func containsAny(s string, subs []string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}
