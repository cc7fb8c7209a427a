package planner

import (
	"slices"
	"strings"

	"github.com/leapstack-labs/leapask/pkg/core"
	"github.com/leapstack-labs/leapask/pkg/plan"
	"golang.org/x/text/cases"
	"golang.org/x/text/unicode/norm"
)

// subject is a table a generic question can be about.
type subject struct {
	table    string
	singular string
	keywords []string
	display  []string
	// narrow maps entity kinds to the column that filters this table.
	narrow map[string]string
	// statuses lists the values the status column takes. Status phrases
	// only filter subjects that list the matched value.
	statuses []string
}

var (
	lotStatuses   = []string{"new", "in_production", "post_production", "completed", "cancelled", "active"}
	setupStatuses = []string{"created", "pending_qc", "allowed", "started", "completed", "queued", "idle"}
	cardStatuses  = []string{"free", "in_use", "lost"}
)

var subjects = []subject{
	{
		table:    "setup_jobs",
		singular: "setup_job",
		keywords: []string{"налад", "setup"},
		display:  []string{"id", "status", "created_at"},
		narrow:   map[string]string{"employees": "employee_id", "machines": "machine_id", "parts": "part_id", "lots": "lot_id"},
		statuses: setupStatuses,
	},
	{
		table:    "batch_operations",
		singular: "operation",
		keywords: []string{"операц", "operation"},
		display:  []string{"id", "batch_id", "status", "created_at"},
		narrow:   map[string]string{"employees": "employee_id", "machines": "machine_id"},
	},
	{
		table:    "batches",
		singular: "batch",
		keywords: []string{"батч", "парти", "batch"},
		display:  []string{"id", "lot_id", "status", "quantity", "created_at"},
		narrow:   map[string]string{"lots": "lot_id"},
	},
	{
		table:    "lots",
		singular: "lot",
		keywords: []string{"лот", "lot"},
		display:  []string{"id", "lot_number", "status", "created_at"},
		narrow:   map[string]string{"parts": "part_id", "lots": "id"},
		statuses: lotStatuses,
	},
	{
		table:    "cards",
		singular: "card",
		keywords: []string{"карт", "card"},
		display:  []string{"id", "card_number", "status"},
		statuses: cardStatuses,
	},
	{
		table:    "parts",
		singular: "part",
		keywords: []string{"детал", "чертеж", "чертёж", "part", "drawing"},
		display:  []string{"id", "drawing_number", "name"},
		narrow:   map[string]string{"parts": "id"},
	},
	{
		table:    "machines",
		singular: "machine",
		keywords: []string{"станк", "станок", "machine"},
		display:  []string{"id", "name"},
		narrow:   map[string]string{"machines": "id"},
	},
	{
		table:    "employees",
		singular: "employee",
		keywords: []string{"сотрудник", "employee"},
		display:  []string{"id", "full_name", "username"},
		narrow:   map[string]string{"employees": "id"},
	},
}

var countPhrases = []string{"сколько", "скольк", "how many", "count", "количество", "число"}

// statusPhrases map question fragments to status values. Earlier entries win.
var statusPhrases = []struct {
	phrase string
	status string
}{
	{"после производства", "post_production"},
	{"post production", "post_production"},
	{"post_production", "post_production"},
	{"в производстве", "in_production"},
	{"in production", "in_production"},
	{"in_production", "in_production"},
	{"в работе", "in_production"},
	{"в работе", "started"},
	{"запущ", "started"},
	{"started", "started"},
	{"running", "started"},
	{"в очеред", "queued"},
	{"queued", "queued"},
	{"на проверке", "pending_qc"},
	{"pending qc", "pending_qc"},
	{"разреш", "allowed"},
	{"простаива", "idle"},
	{"idle", "idle"},
	{"заверш", "completed"},
	{"completed", "completed"},
	{"отмен", "cancelled"},
	{"cancel", "cancelled"},
	{"свобод", "free"},
	{"free", "free"},
	{"в использовании", "in_use"},
	{"in use", "in_use"},
	{"потерян", "lost"},
	{"lost", "lost"},
	{"новы", "new"},
}

func foldQuestion(q string) string {
	return strings.Join(strings.Fields(cases.Fold().String(norm.NFC.String(q))), " ")
}

// pickSubject returns the subject whose keyword appears earliest in q.
func pickSubject(q string, schema *core.AllowedSchema) (subject, bool) {
	best, bestAt := subject{}, -1
	for _, s := range subjects {
		if !schema.HasTable(s.table) {
			continue
		}
		for _, kw := range s.keywords {
			at := strings.Index(q, kw)
			if at >= 0 && (bestAt < 0 || at < bestAt) {
				best, bestAt = s, at
			}
		}
	}
	return best, bestAt >= 0
}

func asksCount(q string) bool {
	for _, p := range countPhrases {
		if strings.Contains(q, p) {
			return true
		}
	}
	return false
}

// statusOf returns the first phrase-matched status that s accepts.
func statusOf(q string, s subject) (string, bool) {
	for _, sp := range statusPhrases {
		if strings.Contains(q, sp.phrase) && slices.Contains(s.statuses, sp.status) {
			return sp.status, true
		}
	}
	if !slices.Contains(s.statuses, "new") {
		return "", false
	}
	for _, tok := range strings.Fields(q) {
		if strings.Trim(tok, ".,;:!?\"'()") == "new" {
			return "new", true
		}
	}
	return "", false
}

func (d *Deterministic) generic(question string, e core.ResolvedEntities, schema *core.AllowedSchema) *plan.Plan {
	q := foldQuestion(question)
	s, ok := pickSubject(q, schema)
	if !ok {
		return &plan.Plan{}
	}

	p := &plan.Plan{Tables: []string{s.table}, Limit: plan.LimitOf(plan.DefaultLimit)}

	switch {
	case asksCount(q) && schema.HasColumn(s.table, "id"):
		p.Select = []plan.SelectItem{{Table: s.table, Column: "id", Alias: s.singular + "_count", Agg: plan.AggCount}}
	default:
		for _, c := range s.display {
			if schema.HasColumn(s.table, c) {
				p.Select = append(p.Select, plan.SelectItem{Table: s.table, Column: c})
			}
		}
		if schema.HasColumn(s.table, "created_at") {
			p.OrderBy = []plan.OrderItem{{Table: s.table, Column: "created_at", Dir: "desc"}}
		}
	}
	if len(p.Select) == 0 {
		return &plan.Plan{}
	}

	if status, ok := statusOf(q, s); ok && schema.HasColumn(s.table, "status") {
		p.Filters = append(p.Filters, plan.Equals{Ref: plan.Col(s.table, "status"), Value: status})
	}
	if f, ok := d.timeframe(plan.Col(s.table, "created_at"), e.Timeframe, schema); ok {
		p.Filters = append(p.Filters, f)
	}
	for _, kind := range []struct {
		name string
		ids  []int64
	}{
		{"employees", e.Employees},
		{"machines", e.Machines},
		{"parts", e.Parts},
		{"lots", e.Lots},
	} {
		if col, ok := s.narrow[kind.name]; ok {
			p.Filters = appendIn(p.Filters, schema, plan.Col(s.table, col), kind.ids)
		}
	}
	return p
}
