// Package testutil provides test utilities for CLI testing.
package testutil

import (
	"bytes"
	"database/sql"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"testing"

	"github.com/leapstack-labs/leapask/internal/cli/output"
	_ "modernc.org/sqlite" // registers the "sqlite" driver
)

// plantSeed creates the tables the CLI tests query. Statuses and numbers
// mirror the fixtures in internal/testutil.
var plantSeed = []string{
	`CREATE TABLE parts (id INTEGER PRIMARY KEY, drawing_number TEXT, name TEXT)`,
	`CREATE TABLE lots (id INTEGER PRIMARY KEY, lot_number TEXT, part_id INTEGER, status TEXT, created_at TEXT)`,
	`CREATE TABLE audit_log (id INTEGER PRIMARY KEY, note TEXT)`,
	`INSERT INTO parts VALUES (11, '1001-02', 'Flange'), (12, '2044A', 'Shaft')`,
	`INSERT INTO lots VALUES
		(21, 'L-2024-15', 11, 'in_production', '2024-05-01 08:00:00'),
		(22, '5523', 12, 'closed', '2024-05-02 09:30:00'),
		(23, '5524', 12, 'in_production', '2024-05-03 10:15:00')`,
}

// Project is a temporary leapask project backed by a SQLite database.
type Project struct {
	Dir        string
	ConfigPath string
	DBPath     string
}

// SetupTestProject creates a temporary project with a seeded SQLite
// database and a leapask.yaml pointing at it. The audit_log table exists
// in the database but is not in validator.allowed_tables.
func SetupTestProject(t *testing.T) *Project {
	t.Helper()

	tmpDir := t.TempDir()
	dbPath := filepath.Join(tmpDir, "plant.db")

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		t.Fatalf("failed to open sqlite database: %v", err)
	}
	defer func() { _ = db.Close() }()

	for _, stmt := range plantSeed {
		if _, err := db.Exec(stmt); err != nil {
			t.Fatalf("failed to seed database: %v", err)
		}
	}

	if err := os.MkdirAll(filepath.Join(tmpDir, "knowledge"), 0755); err != nil {
		t.Fatalf("failed to create knowledge directory: %v", err)
	}

	cfg := `database:
  type: sqlite
  path: plant.db
validator:
  level: moderate
  allowed_tables: [parts, lots]
history:
  path: .leapask/history.db
examples:
  feedback_file: knowledge/examples.md
output: markdown
`
	cfgPath := filepath.Join(tmpDir, "leapask.yaml")
	if err := os.WriteFile(cfgPath, []byte(cfg), 0644); err != nil {
		t.Fatalf("failed to write leapask.yaml: %v", err)
	}

	return &Project{Dir: tmpDir, ConfigPath: cfgPath, DBPath: dbPath}
}

// WriteFile writes content to a file relative to the project directory.
func (p *Project) WriteFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(p.Dir, name)
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("failed to write %s: %v", name, err)
	}
	return path
}

// TestRenderer wraps a Renderer for testing with captured output buffers.
type TestRenderer struct {
	*output.Renderer
	Out    *bytes.Buffer
	ErrOut *bytes.Buffer
}

// NewTestRenderer creates a new test renderer with the specified mode and TTY state.
// Output is captured in buffers for inspection.
func NewTestRenderer(mode output.Mode, isTTY bool) *TestRenderer {
	out := &bytes.Buffer{}
	errOut := &bytes.Buffer{}
	return &TestRenderer{
		Renderer: output.NewRendererWithTTY(out, errOut, isTTY, mode),
		Out:      out,
		ErrOut:   errOut,
	}
}

// NewTestRendererText creates a new test renderer in text mode (simulated TTY).
func NewTestRendererText() *TestRenderer {
	return NewTestRenderer(output.ModeText, true)
}

// NewTestRendererMarkdown creates a new test renderer in markdown mode.
func NewTestRendererMarkdown() *TestRenderer {
	return NewTestRenderer(output.ModeMarkdown, false)
}

// NewTestRendererJSON creates a new test renderer in JSON mode.
func NewTestRendererJSON() *TestRenderer {
	return NewTestRenderer(output.ModeJSON, false)
}

// Output returns the stdout output as a string.
func (tr *TestRenderer) Output() string {
	return tr.Out.String()
}

// ErrorOutput returns the stderr output as a string.
func (tr *TestRenderer) ErrorOutput() string {
	return tr.ErrOut.String()
}

// ansiPattern matches ANSI escape codes.
var ansiPattern = regexp.MustCompile(`\x1b\[[0-9;]*[a-zA-Z]`)

// AssertNoANSI checks that a string contains no ANSI escape codes.
func AssertNoANSI(t *testing.T, s string) {
	t.Helper()
	if ansiPattern.MatchString(s) {
		t.Errorf("string contains ANSI escape codes: %q", s)
	}
}

// AssertValidMarkdown performs basic markdown validation.
// It checks for unclosed code fences and empty headers.
func AssertValidMarkdown(t *testing.T, md string) {
	t.Helper()

	fenceCount := strings.Count(md, "```")
	if fenceCount%2 != 0 {
		t.Errorf("unbalanced code fences in markdown: found %d occurrences", fenceCount)
	}

	lines := strings.Split(md, "\n")
	for i, line := range lines {
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, "#") && strings.TrimLeft(trimmed, "# ") == "" {
			t.Errorf("empty header at line %d: %q", i+1, line)
		}
	}
}
