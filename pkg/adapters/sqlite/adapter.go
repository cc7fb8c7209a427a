// Package sqlite provides a read-only SQLite database adapter for LeapAsk.
// It uses the pure-Go modernc.org/sqlite driver so the binary stays cgo-free
// for this engine.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	"github.com/leapstack-labs/leapask/pkg/adapter"
	"github.com/leapstack-labs/leapask/pkg/core"

	_ "modernc.org/sqlite" // registers the "sqlite" driver
)

const schemaQuery = `
	SELECT m.name, p.name
	FROM sqlite_master m
	JOIN pragma_table_info(m.name) p
	WHERE m.type IN ('table', 'view') AND m.name NOT LIKE 'sqlite_%'
	ORDER BY m.name, p.cid
`

// Adapter implements the adapter.Adapter interface for SQLite.
type Adapter struct {
	adapter.BaseSQLAdapter
}

// New creates a new SQLite adapter instance.
// If logger is nil, a discard logger is used.
func New(logger *slog.Logger) *Adapter {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Adapter{
		BaseSQLAdapter: adapter.BaseSQLAdapter{Logger: logger},
	}
}

// Dialect returns the SQLite engine description.
func (a *Adapter) Dialect() adapter.Dialect {
	return adapter.Dialect{
		Name:        "sqlite",
		Placeholder: "?",
	}
}

// Connect opens the database file in read-only mode. The file must exist.
func (a *Adapter) Connect(ctx context.Context, cfg adapter.Config) error {
	if cfg.Path == "" {
		return fmt.Errorf("sqlite adapter requires database.path")
	}

	dsn := buildDSN(cfg.Path)
	a.Logger.Debug("connecting to sqlite", slog.String("path", cfg.Path))

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return fmt.Errorf("failed to open sqlite database: %w", err)
	}

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return fmt.Errorf("failed to ping sqlite database: %w", err)
	}

	a.DB = db
	a.Cfg = cfg
	return nil
}

// LoadSchema lists every table and view column from sqlite_master.
func (a *Adapter) LoadSchema(ctx context.Context) (*core.AllowedSchema, error) {
	return a.LoadSchemaCommon(ctx, schemaQuery)
}

func buildDSN(path string) string {
	return fmt.Sprintf("file:%s?mode=ro&_pragma=query_only(1)", path)
}

var _ adapter.Adapter = (*Adapter)(nil)
