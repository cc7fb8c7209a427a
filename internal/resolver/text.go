package resolver

import (
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"

	"golang.org/x/text/cases"
	"golang.org/x/text/unicode/norm"
)

var (
	wordRe        = regexp.MustCompile(`[\p{L}\p{N}_]+`)
	machinePrefix = regexp.MustCompile(`^m_\d+_`)
	nonAlnumRe    = regexp.MustCompile(`[^\p{L}\p{N}]+`)
	numberRe      = regexp.MustCompile(`(?i)\b\d{2,}(?:[-./]\d+)*[a-z]{0,3}\b`)
)

// fold returns s in NFC with Unicode case folding applied.
func fold(s string) string {
	return cases.Fold().String(norm.NFC.String(strings.TrimSpace(s)))
}

func tokens(folded string) []string {
	return wordRe.FindAllString(folded, -1)
}

// canonicalMachine lower-cases a machine name, strips the "m_<n>_" code
// prefix and joins the alphanumeric runs with dashes.
func canonicalMachine(name string) string {
	s := machinePrefix.ReplaceAllString(fold(name), "")
	s = nonAlnumRe.ReplaceAllString(s, "-")
	return strings.Trim(s, "-")
}

func hasDigit(s string) bool {
	return strings.IndexFunc(s, unicode.IsDigit) >= 0
}

func runeLen(s string) int { return utf8.RuneCountInString(s) }

// stem drops the last rune of longer tokens so inflected Russian forms
// ("петрова", "ивану") still hit the nominative display name.
func stem(tok string) string {
	if runeLen(tok) < 5 {
		return tok
	}
	_, size := utf8.DecodeLastRuneInString(tok)
	return tok[:len(tok)-size]
}

// words splits the raw question on whitespace and trims surrounding
// punctuation, keeping inner separators such as "-" and "/".
func words(question string) []string {
	fields := strings.FieldsFunc(question, unicode.IsSpace)
	out := make([]string, 0, len(fields))
	for _, f := range fields {
		f = strings.TrimFunc(f, func(r rune) bool {
			return (unicode.IsPunct(r) && r != '-' && r != '/') || unicode.IsSymbol(r)
		})
		if f != "" {
			out = append(out, f)
		}
	}
	return out
}

var stopwords = map[string]struct{}{}

func init() {
	for _, w := range []string{
		// ru
		"кто", "имена", "наладчик", "наладчики", "наладчиков", "оператор", "операторы", "операторов",
		"сколько", "скольки", "скольких", "станок", "станки", "станков", "станках", "станке",
		"вчера", "сегодня", "месяц", "месяце", "месяца", "этом", "прошлом", "году",
		"покажи", "какие", "какой", "какая", "все", "всех", "был", "были", "было", "делал", "делали",
		"наладку", "наладки", "наладка", "работал", "работали", "на", "по", "для", "или",
		"лот", "лоты", "лотов", "деталь", "детали", "деталей", "чертеж", "чертёж", "партия", "партии",
		"производстве", "статус", "статусе",
		// en
		"who", "names", "name", "machinist", "machinists", "operator", "operators",
		"how", "many", "count", "machine", "machines", "yesterday", "today", "this", "last", "month",
		"the", "and", "did", "was", "were", "what", "which", "show", "list", "all", "for", "with",
		"set", "setup", "setups", "lot", "lots", "part", "parts", "drawing", "batch", "batches",
		"production", "status", "from", "into", "are", "has", "have",
	} {
		stopwords[w] = struct{}{}
	}
}

func isStopword(tok string) bool {
	_, ok := stopwords[tok]
	return ok
}
