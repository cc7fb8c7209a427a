package planner

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/leapstack-labs/leapask/internal/llm"
	"github.com/leapstack-labs/leapask/internal/testutil"
	"github.com/leapstack-labs/leapask/pkg/compiler"
	"github.com/leapstack-labs/leapask/pkg/core"
	"github.com/leapstack-labs/leapask/pkg/plan"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testNow = time.Date(2024, time.October, 15, 12, 0, 0, 0, testutil.Jerusalem())

func newTestPlanner(now time.Time) *Deterministic {
	return NewDeterministic(WithClock(testutil.FixedClock(now)), WithLocation(testutil.Jerusalem()))
}

func buildSQL(t *testing.T, p Planner, question string, e core.ResolvedEntities, schema *core.AllowedSchema) string {
	t.Helper()
	pl, err := p.Build(context.Background(), question, e, schema)
	require.NoError(t, err)
	sql, err := compiler.Compile(pl, schema)
	require.NoError(t, err)
	return sql
}

func TestDeterministic_Templates(t *testing.T) {
	tests := []struct {
		name     string
		question string
		entities core.ResolvedEntities
		want     string
	}{
		{
			name:     "lots in production",
			question: "Сколько лотов в производстве?",
			entities: core.ResolvedEntities{Intent: core.IntentGeneric},
			want:     "SELECT COUNT(lots.id) AS lot_count FROM lots WHERE lots.status = 'in_production' LIMIT 100",
		},
		{
			name:     "machinists yesterday",
			question: "Кто делал наладку вчера?",
			entities: core.ResolvedEntities{Intent: core.IntentListMachinists, Timeframe: core.Yesterday()},
			want: "SELECT DISTINCT employees.full_name AS machinist_name, parts.drawing_number AS part_drawing " +
				"FROM setup_jobs " +
				"JOIN employees ON setup_jobs.employee_id = employees.id " +
				"JOIN machines ON setup_jobs.machine_id = machines.id " +
				"JOIN parts ON setup_jobs.part_id = parts.id " +
				"WHERE (setup_jobs.created_at AT TIME ZONE 'Asia/Jerusalem')::date = DATE '2024-10-14' " +
				"ORDER BY employees.full_name ASC, parts.drawing_number ASC LIMIT 100",
		},
		{
			name:     "machines counted for one employee in march",
			question: "На скольких станках работал Сидоров в марте?",
			entities: core.ResolvedEntities{
				Intent:    core.IntentCountMachines,
				Timeframe: core.MonthOf(2024, time.March),
				Employees: []int64{3},
			},
			want: "SELECT COUNT(DISTINCT setup_jobs.machine_id) AS machine_count FROM setup_jobs " +
				"WHERE (setup_jobs.created_at AT TIME ZONE 'Asia/Jerusalem')::date BETWEEN DATE '2024-03-01' AND DATE '2024-03-31' " +
				"AND setup_jobs.employee_id IN (3) LIMIT 100",
		},
		{
			name:     "machinists narrowed by machine and lot",
			question: "Who worked on M_2_Nakamura-NTY3 for lot L-2024-15?",
			entities: core.ResolvedEntities{Intent: core.IntentListMachinists, Machines: []int64{7}, Lots: []int64{21}},
			want: "SELECT DISTINCT employees.full_name AS machinist_name, parts.drawing_number AS part_drawing " +
				"FROM setup_jobs " +
				"JOIN employees ON setup_jobs.employee_id = employees.id " +
				"JOIN machines ON setup_jobs.machine_id = machines.id " +
				"JOIN parts ON setup_jobs.part_id = parts.id " +
				"WHERE setup_jobs.machine_id IN (7) AND setup_jobs.lot_id IN (21) " +
				"ORDER BY employees.full_name ASC, parts.drawing_number ASC LIMIT 100",
		},
		{
			name:     "lots of a part",
			question: "Покажи лоты по детали 1001-02",
			entities: core.ResolvedEntities{Intent: core.IntentGeneric, Parts: []int64{11}},
			want: "SELECT lots.id, lots.lot_number, lots.status, lots.created_at FROM lots " +
				"WHERE lots.part_id IN (11) ORDER BY lots.created_at DESC LIMIT 100",
		},
		{
			name:     "completed setups this month",
			question: "How many setup jobs were completed this month?",
			entities: core.ResolvedEntities{Intent: core.IntentGeneric, Timeframe: core.MonthOf(2024, time.October)},
			want: "SELECT COUNT(setup_jobs.id) AS setup_job_count FROM setup_jobs WHERE setup_jobs.status = 'completed' " +
				"AND (setup_jobs.created_at AT TIME ZONE 'Asia/Jerusalem')::date BETWEEN DATE '2024-10-01' AND DATE '2024-10-31' LIMIT 100",
		},
		{
			name:     "running setups use setup statuses",
			question: "Сколько наладок в работе?",
			entities: core.ResolvedEntities{Intent: core.IntentGeneric},
			want:     "SELECT COUNT(setup_jobs.id) AS setup_job_count FROM setup_jobs WHERE setup_jobs.status = 'started' LIMIT 100",
		},
		{
			name:     "free cards",
			question: "Сколько свободных карт?",
			entities: core.ResolvedEntities{Intent: core.IntentGeneric},
			want:     "SELECT COUNT(cards.id) AS card_count FROM cards WHERE cards.status = 'free' LIMIT 100",
		},
		{
			name:     "status outside the subject vocabulary is ignored",
			question: "How many batches were closed this month?",
			entities: core.ResolvedEntities{Intent: core.IntentGeneric, Timeframe: core.MonthOf(2024, time.October)},
			want: "SELECT COUNT(batches.id) AS batch_count FROM batches " +
				"WHERE (batches.created_at AT TIME ZONE 'Asia/Jerusalem')::date BETWEEN DATE '2024-10-01' AND DATE '2024-10-31' LIMIT 100",
		},
		{
			name:     "lot-only status does not filter cards",
			question: "Show new cards",
			entities: core.ResolvedEntities{Intent: core.IntentGeneric},
			want:     "SELECT cards.id, cards.card_number, cards.status FROM cards LIMIT 100",
		},
	}

	p := newTestPlanner(testNow)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, buildSQL(t, p, tt.question, tt.entities, testutil.FactorySchema()))
		})
	}
}

func TestDeterministic_MonthEnds(t *testing.T) {
	tests := []struct {
		year  int
		month time.Month
		from  string
		to    string
	}{
		{2023, time.February, "2023-02-01", "2023-02-28"},
		{2024, time.February, "2024-02-01", "2024-02-29"},
		{2024, time.April, "2024-04-01", "2024-04-30"},
		{2023, time.December, "2023-12-01", "2023-12-31"},
	}

	p := newTestPlanner(testNow)
	for _, tt := range tests {
		t.Run(tt.from, func(t *testing.T) {
			e := core.ResolvedEntities{Intent: core.IntentCountMachines, Timeframe: core.MonthOf(tt.year, tt.month)}
			sql := buildSQL(t, p, "", e, testutil.FactorySchema())
			assert.Contains(t, sql, "BETWEEN DATE '"+tt.from+"' AND DATE '"+tt.to+"'")
		})
	}
}

func TestDeterministic_YesterdayUsesPlantDate(t *testing.T) {
	// 22:30 UTC on the 14th is already the 15th in Jerusalem.
	p := newTestPlanner(time.Date(2024, time.October, 14, 22, 30, 0, 0, time.UTC))
	e := core.ResolvedEntities{Intent: core.IntentCountMachines, Timeframe: core.Yesterday()}

	sql := buildSQL(t, p, "", e, testutil.FactorySchema())
	assert.Contains(t, sql, "= DATE '2024-10-14'")
}

func TestDeterministic_SchemaSubsets(t *testing.T) {
	tests := []struct {
		name   string
		schema *core.AllowedSchema
		want   string
	}{
		{
			name: "no employees table",
			schema: core.NewAllowedSchema(map[string][]string{
				"setup_jobs": {"id", "machine_id", "part_id", "created_at"},
				"machines":   {"id", "name"},
				"parts":      {"id", "drawing_number"},
			}),
			want: "SELECT parts.drawing_number AS part_drawing FROM setup_jobs " +
				"JOIN machines ON setup_jobs.machine_id = machines.id " +
				"JOIN parts ON setup_jobs.part_id = parts.id " +
				"ORDER BY parts.drawing_number ASC LIMIT 100",
		},
		{
			name:   "bare setup jobs",
			schema: core.NewAllowedSchema(map[string][]string{"setup_jobs": {"id"}}),
			want:   "SELECT DISTINCT setup_jobs.id AS setup_job_id FROM setup_jobs LIMIT 100",
		},
	}

	p := newTestPlanner(testNow)
	e := core.ResolvedEntities{
		Intent:    core.IntentListMachinists,
		Timeframe: core.Yesterday(),
		Employees: []int64{3},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, buildSQL(t, p, "", e, tt.schema))
		})
	}
}

func TestDeterministic_EmptyPlan(t *testing.T) {
	p := newTestPlanner(testNow)

	tests := []struct {
		name     string
		question string
		schema   *core.AllowedSchema
	}{
		{"no subject", "What is the weather like?", testutil.FactorySchema()},
		{"subject table not allowed", "Сколько лотов?", core.NewAllowedSchema(map[string][]string{"setup_jobs": {"id"}})},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := p.Build(context.Background(), tt.question, core.ResolvedEntities{Intent: core.IntentGeneric}, tt.schema)
			require.NoError(t, err)
			assert.True(t, got.IsEmpty())
		})
	}
}

func TestDeterministic_StatusNeedsColumn(t *testing.T) {
	schema := core.NewAllowedSchema(map[string][]string{"lots": {"id", "lot_number"}})
	sql := buildSQL(t, newTestPlanner(testNow), "Сколько лотов в производстве?", core.ResolvedEntities{Intent: core.IntentGeneric}, schema)
	assert.Equal(t, "SELECT COUNT(lots.id) AS lot_count FROM lots LIMIT 100", sql)
}

type fakeLLM struct {
	reply  string
	err    error
	prompt string
}

func (f *fakeLLM) Complete(_ context.Context, req llm.Request) (string, error) {
	f.prompt = req.Prompt
	return f.reply, f.err
}

func TestGenerative_Build(t *testing.T) {
	tests := []struct {
		name    string
		reply   string
		opts    []compiler.Option
		want    string
		wantErr error
	}{
		{
			name: "valid plan",
			reply: "Here you go:\n```json\n" +
				`{"tables":["lots"],"select":[{"table":"lots","column":"id","alias":"lot_count","agg":"count"}],` +
				`"filters":[{"op":"eq","table":"lots","column":"status","value":"completed"}],"limit":10}` +
				"\n```",
			want: "SELECT COUNT(lots.id) AS lot_count FROM lots WHERE lots.status = 'completed' LIMIT 10",
		},
		{
			name:    "unknown column",
			reply:   `{"tables":["lots"],"select":[{"table":"lots","column":"secret"}]}`,
			wantErr: compiler.ErrUnknownColumn,
		},
		{
			name:    "not json",
			reply:   "I cannot help with that.",
			wantErr: llm.ErrMalformedResponse,
		},
		{
			name:    "raw filter refused",
			reply:   `{"tables":["lots"],"select":[{"table":"lots","column":"id"}],"filters":[{"expr":"lots.id > 1"}]}`,
			opts:    []compiler.Option{compiler.WithoutRawFilters()},
			wantErr: compiler.ErrRawDisabled,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g := NewGenerative(&fakeLLM{reply: tt.reply}, testutil.NewTestLogger(t), tt.opts...)
			got, err := g.Build(context.Background(), "q", core.ResolvedEntities{Intent: core.IntentGeneric}, testutil.FactorySchema())
			if tt.wantErr != nil {
				require.Error(t, err)
				assert.True(t, errors.Is(err, tt.wantErr), "got %v", err)
				return
			}
			require.NoError(t, err)
			sql, err := compiler.Compile(got, testutil.FactorySchema())
			require.NoError(t, err)
			assert.Equal(t, tt.want, sql)
		})
	}
}

func TestGenerative_Prompt(t *testing.T) {
	f := &fakeLLM{err: errors.New("offline")}
	g := NewGenerative(f, nil)

	_, err := g.Build(context.Background(), "Кто делал наладку вчера?",
		core.ResolvedEntities{Intent: core.IntentListMachinists, Timeframe: core.Yesterday(), Employees: []int64{3}},
		testutil.FactorySchema())
	require.Error(t, err)

	assert.Contains(t, f.prompt, "SCHEMA:\n")
	assert.Contains(t, f.prompt, `"setup_jobs"`)
	assert.Contains(t, f.prompt, `"intent":"list_machinists","timeframe":"yesterday","employees":[3]`)
	assert.Contains(t, f.prompt, "TIMEZONE: Asia/Jerusalem")
	assert.Contains(t, f.prompt, "QUESTION: Кто делал наладку вчера?")
}

func TestWithFallback_Equivalence(t *testing.T) {
	det := newTestPlanner(testNow)
	failing := NewGenerative(&fakeLLM{err: context.DeadlineExceeded}, nil)
	p := WithFallback(failing, det, testutil.NewTestLogger(t))

	cases := []struct {
		question string
		entities core.ResolvedEntities
	}{
		{"Сколько лотов в производстве?", core.ResolvedEntities{Intent: core.IntentGeneric}},
		{"Кто делал наладку вчера?", core.ResolvedEntities{Intent: core.IntentListMachinists, Timeframe: core.Yesterday()}},
		{"What is the weather like?", core.ResolvedEntities{Intent: core.IntentGeneric}},
	}
	for _, c := range cases {
		t.Run(c.question, func(t *testing.T) {
			want, err := det.Build(context.Background(), c.question, c.entities, testutil.FactorySchema())
			require.NoError(t, err)

			got, err := p.Build(context.Background(), c.question, c.entities, testutil.FactorySchema())
			require.NoError(t, err)
			assert.Equal(t, want, got)
		})
	}
}

func TestWithFallback_PrefersPrimary(t *testing.T) {
	reply := `{"tables":["machines"],"select":[{"table":"machines","column":"name"}]}`
	p := WithFallback(NewGenerative(&fakeLLM{reply: reply}, nil), newTestPlanner(testNow), nil)

	got, err := p.Build(context.Background(), "Сколько лотов?", core.ResolvedEntities{Intent: core.IntentGeneric}, testutil.FactorySchema())
	require.NoError(t, err)
	assert.Equal(t, []string{"machines"}, got.Tables)
	assert.Equal(t, []plan.SelectItem{{Table: "machines", Column: "name"}}, got.Select)
}
