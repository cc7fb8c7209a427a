package commands

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func runRules(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := NewRulesCommand()
	buf := new(bytes.Buffer)
	cmd.SetOut(buf)
	cmd.SetErr(buf)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return buf.String(), err
}

func TestNewRulesCommand(t *testing.T) {
	cmd := NewRulesCommand()

	assert.Equal(t, "rules [rule-id]", cmd.Use)
	assert.NotEmpty(t, cmd.Short, "Short should not be empty")
	assert.NotEmpty(t, cmd.Example, "Example should not be empty")

	for _, flag := range []string{"level", "severity", "verbose", "format"} {
		assert.NotNil(t, cmd.Flags().Lookup(flag), "flag %q should exist", flag)
	}
}

func TestRulesCommand_ListAll(t *testing.T) {
	out, err := runRules(t, "--format", "text")
	require.NoError(t, err)

	assert.Contains(t, out, "Validator Rules")
	for _, id := range []string{"SV01", "SV04", "SV11"} {
		assert.Contains(t, out, id)
	}
}

func TestRulesCommand_JSON(t *testing.T) {
	out, err := runRules(t, "--format", "json")
	require.NoError(t, err)

	var got struct {
		Rules []ruleInfo `json:"rules"`
		Count int        `json:"count"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &got))
	assert.Equal(t, len(allRules()), got.Count)
	assert.Len(t, got.Rules, got.Count)
	assert.Equal(t, "SV01", got.Rules[0].ID)
}

func TestRulesCommand_FilterByLevel(t *testing.T) {
	tests := []struct {
		level   string
		wantIDs []string
		notIDs  []string
	}{
		{level: "permissive", wantIDs: []string{"SV01", "SV02"}, notIDs: []string{"SV06"}},
		{level: "strict", wantIDs: []string{"SV01", "SV06", "SV11"}},
	}

	for _, tt := range tests {
		t.Run(tt.level, func(t *testing.T) {
			rules, err := filterRules(allRules(), &RulesOptions{Level: tt.level})
			require.NoError(t, err)

			ids := make(map[string]bool, len(rules))
			for _, r := range rules {
				ids[r.ID] = true
			}
			for _, id := range tt.wantIDs {
				assert.True(t, ids[id], "expected %s at %s", id, tt.level)
			}
			for _, id := range tt.notIDs {
				assert.False(t, ids[id], "did not expect %s at %s", id, tt.level)
			}
		})
	}
}

func TestRulesCommand_StrictRunsEverything(t *testing.T) {
	rules, err := filterRules(allRules(), &RulesOptions{Level: "strict"})
	require.NoError(t, err)
	assert.Len(t, rules, len(allRules()))
}

func TestRulesCommand_FilterBySeverity(t *testing.T) {
	out, err := runRules(t, "--severity", "warning", "--format", "json")
	require.NoError(t, err)

	var got struct {
		Rules []map[string]any `json:"rules"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &got))
	require.NotEmpty(t, got.Rules)
	for _, r := range got.Rules {
		assert.Equal(t, "warning", r["severity"])
	}
}

func TestRulesCommand_InvalidFilters(t *testing.T) {
	_, err := runRules(t, "--level", "lenient")
	assert.Error(t, err)

	_, err = runRules(t, "--severity", "fatal")
	assert.Error(t, err)
}

func TestRulesCommand_ShowRule(t *testing.T) {
	t.Run("text", func(t *testing.T) {
		out, err := runRules(t, "sv04", "--format", "text")
		require.NoError(t, err)
		assert.Contains(t, out, "SV04")
		assert.Contains(t, out, "Description")
	})

	t.Run("markdown", func(t *testing.T) {
		out, err := runRules(t, "SV04", "--format", "markdown")
		require.NoError(t, err)
		assert.Contains(t, out, "# SV04")
		assert.Contains(t, out, "**Severity:**")
	})

	t.Run("json", func(t *testing.T) {
		out, err := runRules(t, "SV04", "--format", "json")
		require.NoError(t, err)
		var rule map[string]any
		require.NoError(t, json.Unmarshal([]byte(out), &rule))
		assert.Equal(t, "SV04", rule["id"])
	})

	t.Run("unknown", func(t *testing.T) {
		_, err := runRules(t, "SV99")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "not found")
	})
}
