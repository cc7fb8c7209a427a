package output

import (
	"bytes"
	"strings"
	"testing"

	"github.com/leapstack-labs/leapask/pkg/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleResult() *core.ResultSet {
	return &core.ResultSet{
		Columns: []string{"lot_number", "qty", "note"},
		Rows: [][]any{
			{"L-1", int64(4), nil},
			{"L-2", int64(12), `a,"b"`},
		},
	}
}

func TestRenderer_EffectiveMode(t *testing.T) {
	tests := []struct {
		mode  Mode
		isTTY bool
		want  Mode
	}{
		{ModeAuto, true, ModeText},
		{ModeAuto, false, ModeMarkdown},
		{"", false, ModeMarkdown},
		{ModeJSON, true, ModeJSON},
		{ModeText, false, ModeText},
		{"bogus", true, ModeText},
	}

	for _, tt := range tests {
		r := NewRendererWithTTY(&bytes.Buffer{}, &bytes.Buffer{}, tt.isTTY, tt.mode)
		assert.Equal(t, tt.want, r.EffectiveMode(), "mode=%q tty=%v", tt.mode, tt.isTTY)
	}
}

func TestRenderer_NonTTYHasNoANSI(t *testing.T) {
	out, errOut := &bytes.Buffer{}, &bytes.Buffer{}
	r := NewRendererWithTTY(out, errOut, false, ModeText)

	r.Header("Validation")
	r.Success("valid")
	r.Warning("unknown table")
	r.Error("denied")

	assert.NotContains(t, out.String(), "\x1b[")
	assert.Contains(t, out.String(), "✓ valid")
	assert.Contains(t, errOut.String(), "✗ denied")
}

func TestRenderer_JSON(t *testing.T) {
	out := &bytes.Buffer{}
	r := NewRendererWithTTY(out, &bytes.Buffer{}, false, ModeJSON)
	require.NoError(t, r.JSON(map[string]int{"rows": 2}))
	assert.Equal(t, "{\n  \"rows\": 2\n}\n", out.String())
}

func TestRenderResult(t *testing.T) {
	tests := []struct {
		format string
		want   []string
	}{
		{FormatTable, []string{"lot_number", "L-2", "NULL", "(2 rows)"}},
		{FormatCSV, []string{"lot_number,qty,note\n", "L-1,4,NULL\n", `L-2,12,"a,""b"""`}},
		{FormatMarkdown, []string{"| lot_number | qty | note |", "| --- | --- | --- |", "| L-1 | 4 | NULL |"}},
		{FormatJSON, []string{`"lot_number": "L-1"`, `"qty": 12`, `"note": null`}},
	}

	for _, tt := range tests {
		t.Run(tt.format, func(t *testing.T) {
			buf := &bytes.Buffer{}
			require.NoError(t, RenderResult(buf, sampleResult(), tt.format))
			for _, want := range tt.want {
				assert.Contains(t, buf.String(), want)
			}
		})
	}
}

func TestRenderResult_Empty(t *testing.T) {
	for _, format := range []string{FormatTable, FormatMarkdown} {
		buf := &bytes.Buffer{}
		require.NoError(t, RenderResult(buf, &core.ResultSet{Columns: []string{"a"}}, format))
		assert.Equal(t, "(0 rows)\n", buf.String())
	}

	buf := &bytes.Buffer{}
	require.NoError(t, RenderResult(buf, nil, FormatJSON))
	assert.Equal(t, "[]", strings.TrimSpace(buf.String()))
}

func TestFormatFor(t *testing.T) {
	assert.Equal(t, FormatJSON, FormatFor(ModeJSON))
	assert.Equal(t, FormatMarkdown, FormatFor(ModeMarkdown))
	assert.Equal(t, FormatTable, FormatFor(ModeText))
}
