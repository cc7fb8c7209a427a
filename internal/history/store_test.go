package history

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/leapstack-labs/leapask/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(context.Background(), ":memory:", testutil.NewTestLogger(t))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestOpen_Migrates(t *testing.T) {
	tests := []struct {
		name string
		path func(t *testing.T) string
	}{
		{"in memory", func(*testing.T) string { return ":memory:" }},
		{"nested file", func(t *testing.T) string { return filepath.Join(t.TempDir(), "state", "history.db") }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, err := Open(context.Background(), tt.path(t), nil)
			require.NoError(t, err)
			defer func() { _ = s.Close() }()

			v, err := s.Version()
			require.NoError(t, err)
			assert.Equal(t, int64(1), v)
		})
	}
}

func TestStore_RecordAndRecent(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()
	base := time.Date(2024, time.October, 15, 9, 0, 0, 0, time.UTC)

	entries := []Entry{
		{SessionID: "s1", Question: "Сколько лотов?", SQL: "SELECT COUNT(*) FROM lots", CreatedAt: base},
		{SessionID: "s1", Question: "Кто делал наладку вчера?", SQL: "SELECT 1", ValidatedSQL: "SELECT 1 LIMIT 100", CreatedAt: base.Add(time.Minute)},
		{SessionID: "s2", Question: "other session", SQL: "SELECT 2", CreatedAt: base.Add(2 * time.Minute)},
		{
			SessionID:   "s1",
			Question:    "machines",
			SQL:         "SELECT machines.name FROM machines",
			RowsPreview: [][]any{{"a"}, {"b"}, {"c"}, {"d"}},
			CreatedAt:   base.Add(3 * time.Minute),
		},
	}
	for _, e := range entries {
		id, err := s.Record(ctx, e)
		require.NoError(t, err)
		assert.NotEmpty(t, id)
	}

	got, err := s.Recent(ctx, "s1", 2)
	require.NoError(t, err)
	require.Len(t, got, 2)

	assert.Equal(t, "machines", got[0].Question)
	assert.Equal(t, [][]any{{"a"}, {"b"}, {"c"}}, got[0].RowsPreview)
	assert.True(t, got[0].CreatedAt.Equal(base.Add(3*time.Minute)))

	assert.Equal(t, "Кто делал наладку вчера?", got[1].Question)
	assert.Equal(t, "SELECT 1 LIMIT 100", got[1].EffectiveSQL())
	assert.Empty(t, got[1].Error)
}

func TestStore_DefaultSession(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	_, err := s.Record(ctx, Entry{Question: "q", SQL: "SELECT 1", Error: "boom"})
	require.NoError(t, err)

	got, err := s.Recent(ctx, "", 5)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, DefaultSession, got[0].SessionID)
	assert.Equal(t, "boom", got[0].Error)
	assert.Equal(t, "SELECT 1", got[0].EffectiveSQL())
}

func TestStore_NotOpened(t *testing.T) {
	s := &Store{}
	_, err := s.Record(context.Background(), Entry{})
	assert.EqualError(t, err, "database not opened")
	_, err = s.Recent(context.Background(), "x", 1)
	assert.EqualError(t, err, "database not opened")
	assert.NoError(t, s.Close())
}

func TestTimeHints(t *testing.T) {
	const tz = "Asia/Jerusalem"

	tests := []struct {
		name    string
		entries []Entry
		want    []string
	}{
		{
			name:    "no history",
			entries: nil,
			want:    nil,
		},
		{
			name:    "yesterday from question",
			entries: []Entry{{Question: "Кто делал наладку вчера?"}},
			want:    []string{"yesterday (timezone Asia/Jerusalem)"},
		},
		{
			name:    "today from sql",
			entries: []Entry{{Question: "lots", SQL: "SELECT * FROM lots WHERE created_at::date = CURRENT_DATE"}},
			want:    []string{"today (timezone Asia/Jerusalem)"},
		},
		{
			name:    "current_date minus one is only yesterday",
			entries: []Entry{{Question: "lots", SQL: "SELECT * FROM lots WHERE created_at::date = current_date - 1"}},
			want:    []string{"yesterday (timezone Asia/Jerusalem)"},
		},
		{
			name:    "russian last n days",
			entries: []Entry{{Question: "Сколько батчей за последние 3 дня?"}},
			want:    []string{"last 3 days (timezone Asia/Jerusalem)"},
		},
		{
			name:    "english last n minutes",
			entries: []Entry{{Question: "errors in the last 15 mins"}, {Question: "errors in the last 15 minutes"}},
			want:    []string{"last 15 minutes (timezone Asia/Jerusalem)"},
		},
		{
			name: "deduplicated in order",
			entries: []Entry{
				{Question: "what happened this month?"},
				{Question: "and yesterday?"},
				{Question: "this month again"},
			},
			want: []string{"this month (timezone Asia/Jerusalem)", "yesterday (timezone Asia/Jerusalem)"},
		},
		{
			name:    "interval window",
			entries: []Entry{{Question: "recent", ValidatedSQL: "SELECT 1 FROM lots WHERE created_at > now() - interval '2 hours'"}},
			want:    []string{"use the same relative now()-interval window as previous"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, TimeHints(tt.entries, tz))
		})
	}
}

func TestTimeHints_Window(t *testing.T) {
	entries := make([]Entry, 0, 11)
	for range 10 {
		entries = append(entries, Entry{Question: "plain"})
	}
	entries = append(entries, Entry{Question: "yesterday"})
	assert.Empty(t, TimeHints(entries, "UTC"))
}

func TestContextPrefix(t *testing.T) {
	assert.Equal(t, "q", ContextPrefix("q", nil))
	assert.Equal(t, "[CONTEXT] a; b\n\nq", ContextPrefix("q", []string{"a", "b", "c"}))
}
