// Package adapter provides the database adapter contract used by LeapAsk
// to introspect the allowed schema, load catalog entities and run
// validated read-only queries.
//
// Concrete adapter implementations are in pkg/adapters/ subdirectories.
package adapter

import (
	"context"
	"database/sql"

	"github.com/leapstack-labs/leapask/pkg/core"
)

type (
	// Config is an alias for core.AdapterConfig.
	Config = core.AdapterConfig

	// Rows is an alias for core.Rows.
	Rows = core.Rows
)

// Dialect describes the engine-specific behaviour the executor and
// compiler need to know about.
type Dialect struct {
	// Name is the compiler dialect ("postgres", "duckdb", "sqlite").
	Name string

	// ReadOnlyTx reports whether the engine enforces sql.TxOptions.ReadOnly.
	ReadOnlyTx bool

	// StatementTimeout is a format string taking the timeout in
	// milliseconds. Empty when the engine has no per-statement timeout.
	StatementTimeout string

	// Placeholder is the first positional bind marker ("$1" or "?").
	Placeholder string
}

// Adapter defines the interface that all database adapters must implement.
type Adapter interface {
	// Connect establishes a connection to the database using the provided config.
	Connect(ctx context.Context, cfg Config) error

	// Close closes the database connection and releases resources.
	Close() error

	// Query executes a SQL statement that returns rows.
	Query(ctx context.Context, sql string, args ...any) (*Rows, error)

	// BeginTx starts a transaction. The executor runs every user query
	// inside one so the timeout directive stays scoped to it.
	BeginTx(ctx context.Context, opts *sql.TxOptions) (*sql.Tx, error)

	// LoadSchema introspects the live database and returns every table
	// with its columns.
	LoadSchema(ctx context.Context) (*core.AllowedSchema, error)

	// Dialect returns the engine description for this adapter.
	Dialect() Dialect
}
