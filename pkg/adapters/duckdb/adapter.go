// Package duckdb provides a DuckDB database adapter for LeapAsk.
package duckdb

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/leapstack-labs/leapask/pkg/adapter"
	"github.com/leapstack-labs/leapask/pkg/core"

	_ "github.com/marcboeker/go-duckdb" // duckdb driver
)

const (
	memoryPath    = ":memory:"
	defaultSchema = "main"
)

// Adapter implements the adapter.Adapter interface for DuckDB.
type Adapter struct {
	adapter.BaseSQLAdapter
	params *Params
}

// New creates a new DuckDB adapter instance.
// If logger is nil, a discard logger is used.
func New(logger *slog.Logger) *Adapter {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Adapter{
		BaseSQLAdapter: adapter.BaseSQLAdapter{Logger: logger},
	}
}

// Dialect returns the DuckDB engine description. DuckDB has no
// per-statement timeout so the executor relies on context cancellation.
func (a *Adapter) Dialect() adapter.Dialect {
	return adapter.Dialect{
		Name:        "duckdb",
		Placeholder: "?",
	}
}

// Connect establishes a connection to DuckDB.
// Use ":memory:" (or an empty path) for an in-memory database.
func (a *Adapter) Connect(ctx context.Context, cfg adapter.Config) error {
	params, err := parseParams(cfg.Params)
	if err != nil {
		return err
	}

	dsn := buildDSN(cfg.Path, params)
	a.Logger.Debug("connecting to duckdb", slog.String("dsn", dsn))

	db, err := sql.Open("duckdb", dsn)
	if err != nil {
		return fmt.Errorf("failed to open duckdb connection: %w", err)
	}

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return fmt.Errorf("failed to ping duckdb: %w", err)
	}

	if err := applyParams(ctx, db, params); err != nil {
		_ = db.Close()
		return err
	}

	a.DB = db
	a.Cfg = cfg
	a.params = params
	return nil
}

// LoadSchema lists every column of the configured schema ("main" by default).
func (a *Adapter) LoadSchema(ctx context.Context) (*core.AllowedSchema, error) {
	schema := a.Cfg.Schema
	if schema == "" {
		schema = defaultSchema
	}
	return a.LoadSchemaCommon(ctx, adapter.InformationSchemaQuery(a.Dialect().Placeholder), schema)
}

func buildDSN(path string, p *Params) string {
	if path == "" || path == memoryPath {
		return ""
	}
	if p.AccessMode == "read_write" {
		return path
	}
	return path + "?access_mode=READ_ONLY"
}

func applyParams(ctx context.Context, db *sql.DB, p *Params) error {
	for _, ext := range p.Extensions {
		if _, err := db.ExecContext(ctx, "LOAD "+ext); err != nil {
			return fmt.Errorf("failed to load extension %s: %w", ext, err)
		}
	}

	names := make([]string, 0, len(p.Settings))
	for name := range p.Settings {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		value := strings.ReplaceAll(p.Settings[name], "'", "''")
		//nolint:gosec // name is checked against settingNameRe, value is quoted
		if _, err := db.ExecContext(ctx, fmt.Sprintf("SET %s = '%s'", name, value)); err != nil {
			return fmt.Errorf("failed to apply setting %s: %w", name, err)
		}
	}
	return nil
}

var _ adapter.Adapter = (*Adapter)(nil)
