package resolver

import (
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/leapstack-labs/leapask/pkg/core"
)

var yearRe = regexp.MustCompile(`\b(19|20)\d{2}\b`)

// ruMonthStems match every grammatical case of the Russian month names.
// March and May are matched by exact forms: their stems collide with
// surnames and common words.
var ruMonthStems = []struct {
	stem  string
	month time.Month
}{
	{"январ", time.January},
	{"феврал", time.February},
	{"апрел", time.April},
	{"июн", time.June},
	{"июл", time.July},
	{"август", time.August},
	{"сентябр", time.September},
	{"октябр", time.October},
	{"ноябр", time.November},
	{"декабр", time.December},
}

var ruExactMonths = map[string]time.Month{
	"март": time.March, "марта": time.March, "марте": time.March, "мартом": time.March,
	"май": time.May, "мая": time.May, "мае": time.May, "маем": time.May,
}

var enMonths = map[string]time.Month{
	"january": time.January, "february": time.February, "march": time.March,
	"april": time.April, "june": time.June, "july": time.July,
	"august": time.August, "september": time.September, "october": time.October,
	"november": time.November, "december": time.December,
}

// "may" is only a month after a preposition or before a year.
var mayPrepositions = map[string]struct{}{"in": {}, "of": {}, "for": {}, "during": {}, "since": {}}

// monthToken reports the month a single folded token names.
func monthToken(tok string) (time.Month, bool) {
	if m, ok := enMonths[tok]; ok {
		return m, true
	}
	if m, ok := ruExactMonths[tok]; ok {
		return m, true
	}
	for _, s := range ruMonthStems {
		if strings.HasPrefix(tok, s.stem) {
			return s.month, true
		}
	}
	return 0, false
}

func findMonth(toks []string) (time.Month, bool) {
	for i, tok := range toks {
		if tok == "may" {
			prev := i > 0 && isMayPreposition(toks[i-1])
			next := i+1 < len(toks) && yearRe.MatchString(toks[i+1])
			if prev || next {
				return time.May, true
			}
			continue
		}
		if m, ok := monthToken(tok); ok {
			return m, true
		}
	}
	return 0, false
}

func isMayPreposition(tok string) bool {
	_, ok := mayPrepositions[tok]
	return ok
}

// detectTimeframe maps the folded question to a canonical timeframe.
// now must already be in the plant timezone.
func detectTimeframe(q string, toks []string, now time.Time) core.Timeframe {
	switch {
	case strings.Contains(q, "вчера") || strings.Contains(q, "yesterday"):
		return core.Yesterday()
	case strings.Contains(q, "в этом месяце") || strings.Contains(q, "this month"):
		return core.MonthOf(now.Year(), now.Month())
	case strings.Contains(q, "в прошлом месяце") || strings.Contains(q, "last month"):
		prev := time.Date(now.Year(), now.Month()-1, 1, 0, 0, 0, 0, now.Location())
		return core.MonthOf(prev.Year(), prev.Month())
	}

	month, ok := findMonth(toks)
	if !ok {
		return core.Timeframe{}
	}
	if y := yearRe.FindString(q); y != "" {
		year, _ := strconv.Atoi(y)
		return core.MonthOf(year, month)
	}
	year := now.Year()
	if month > now.Month() {
		year--
	}
	return core.MonthOf(year, month)
}
