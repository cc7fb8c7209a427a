package duckdb

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseParams(t *testing.T) {
	tests := []struct {
		name    string
		input   map[string]any
		want    *Params
		wantErr string
	}{
		{
			name:  "nil params returns empty struct",
			input: nil,
			want:  &Params{},
		},
		{
			name:  "empty map returns empty struct",
			input: map[string]any{},
			want:  &Params{},
		},
		{
			name: "extensions only",
			input: map[string]any{
				"extensions": []any{"icu", "json"},
			},
			want: &Params{Extensions: []string{"icu", "json"}},
		},
		{
			name: "settings are weakly typed",
			input: map[string]any{
				"settings": map[string]any{
					"memory_limit": "4GB",
					"threads":      4,
				},
			},
			want: &Params{Settings: map[string]string{"memory_limit": "4GB", "threads": "4"}},
		},
		{
			name:  "access mode",
			input: map[string]any{"access_mode": "read_write"},
			want:  &Params{AccessMode: "read_write"},
		},
		{
			name:    "bad access mode",
			input:   map[string]any{"access_mode": "exclusive"},
			wantErr: "access_mode",
		},
		{
			name:    "unknown key",
			input:   map[string]any{"secrets": []any{}},
			wantErr: "invalid duckdb params",
		},
		{
			name: "setting name with punctuation",
			input: map[string]any{
				"settings": map[string]any{"threads; DROP": "1"},
			},
			wantErr: "bad setting name",
		},
		{
			name:    "extension name with punctuation",
			input:   map[string]any{"extensions": []any{"icu'"}},
			wantErr: "bad extension name",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := parseParams(tt.input)

			if tt.wantErr != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
				return
			}

			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}
