package plan

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse_LegacyShape(t *testing.T) {
	data := []byte(`{
		"tables": ["setup_jobs", "employees"],
		"joins": [{"left": "setup_jobs.employee_id", "right": "employees.id"}],
		"select": [{"table": "employees", "column": "full_name", "alias": null, "distinct": true}],
		"filters": [{"expr": "setup_jobs.status = 'started'"}],
		"order_by": [{"table": "employees", "column": "full_name", "dir": "asc"}],
		"limit": 50
	}`)

	p, err := Parse(data)
	require.NoError(t, err)

	assert.Equal(t, []string{"setup_jobs", "employees"}, p.Tables)
	assert.Equal(t, Join{Left: "setup_jobs.employee_id", Right: "employees.id"}, p.Joins[0])
	assert.True(t, p.Select[0].Distinct)
	assert.Empty(t, p.Select[0].Alias)
	require.Len(t, p.Filters, 1)
	assert.Equal(t, Raw{Expr: "setup_jobs.status = 'started'"}, p.Filters[0])

	n, err := p.Limit.Value()
	require.NoError(t, err)
	assert.Equal(t, 50, n)
}

func TestParse_TypedFilters(t *testing.T) {
	data := []byte(`{
		"tables": ["lots"],
		"select": [{"table": "lots", "column": "id", "agg": "count"}],
		"filters": [
			{"op": "eq", "table": "lots", "column": "status", "value": "in_production"},
			{"op": "in", "table": "lots", "column": "part_id", "values": [3, 1]},
			{"op": "not_null", "table": "lots", "column": "lot_number"},
			{"op": "between", "table": "lots", "column": "id", "low": 1, "high": 2.5},
			{"op": "date_range", "table": "lots", "column": "created_at", "from": "2024-02-01", "to": "2024-02-29", "tz": "Asia/Jerusalem"}
		]
	}`)

	p, err := Parse(data)
	require.NoError(t, err)
	require.Len(t, p.Filters, 5)

	assert.Equal(t, Equals{Ref: Col("lots", "status"), Value: "in_production"}, p.Filters[0])
	assert.Equal(t, In{Ref: Col("lots", "part_id"), Values: []any{int64(3), int64(1)}}, p.Filters[1])
	assert.Equal(t, IsNull{Ref: Col("lots", "lot_number"), Not: true}, p.Filters[2])
	assert.Equal(t, Between{Ref: Col("lots", "id"), Low: int64(1), High: 2.5}, p.Filters[3])

	dr, ok := p.Filters[4].(DateRange)
	require.True(t, ok)
	assert.Equal(t, time.February, dr.To.Month())
	assert.Equal(t, 29, dr.To.Day())
	assert.False(t, dr.SingleDay())
	assert.Nil(t, p.Limit)
}

func TestParse_FilterErrors(t *testing.T) {
	tests := []struct {
		name string
		data string
	}{
		{"empty object", `{"tables":["lots"],"filters":[{}]}`},
		{"unknown op", `{"tables":["lots"],"filters":[{"op":"like","table":"lots","column":"id","value":"x"}]}`},
		{"missing column", `{"tables":["lots"],"filters":[{"op":"eq","table":"lots","value":1}]}`},
		{"object value", `{"tables":["lots"],"filters":[{"op":"eq","table":"lots","column":"id","value":{"a":1}}]}`},
		{"bad date", `{"tables":["lots"],"filters":[{"op":"date_range","table":"lots","column":"created_at","from":"yesterday"}]}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.data))
			assert.Error(t, err)
		})
	}
}

func TestLimit_Value(t *testing.T) {
	tests := []struct {
		name    string
		limit   *Limit
		want    int
		wantErr bool
	}{
		{"absent", nil, DefaultLimit, false},
		{"explicit", LimitOf(25), 25, false},
		{"zero defaults", LimitOf(0), DefaultLimit, false},
		{"negative defaults", LimitOf(-5), DefaultLimit, false},
		{"numeric string", RawLimit(`"40"`), 40, false},
		{"integral float", RawLimit("30.0"), 30, false},
		{"fractional", RawLimit("12.5"), 0, true},
		{"word", RawLimit(`"many"`), 0, true},
		{"bool", RawLimit("true"), 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := tt.limit.Value()
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestLimit_NullIsAbsent(t *testing.T) {
	p, err := Parse([]byte(`{"tables":["lots"],"limit":null}`))
	require.NoError(t, err)
	assert.Nil(t, p.Limit)
}

func TestFilters_MarshalJSON(t *testing.T) {
	fs := Filters{
		Raw{Expr: "lots.id > 1"},
		InInt64(Col("lots", "part_id"), []int64{7}),
		IsNull{Ref: Col("lots", "status")},
	}
	b, err := json.Marshal(fs)
	require.NoError(t, err)
	assert.JSONEq(t, `[
		{"expr": "lots.id > 1"},
		{"op": "in", "table": "lots", "column": "part_id", "values": [7]},
		{"op": "is_null", "table": "lots", "column": "status"}
	]`, string(b))
}

func TestAgg_Valid(t *testing.T) {
	assert.True(t, AggCountDistinct.Valid())
	assert.True(t, AggNone.Valid())
	assert.False(t, Agg("median").Valid())
}
