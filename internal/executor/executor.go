// Package executor runs validated SQL against the target database.
//
// Execute always re-validates its input, so SQL reaching the database has
// passed the validator at the requested level no matter where it came from.
package executor

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/leapstack-labs/leapask/pkg/adapter"
	"github.com/leapstack-labs/leapask/pkg/core"
	"github.com/leapstack-labs/leapask/pkg/validator"
)

// DefaultStatementTimeout is applied through the dialect's timeout directive.
const DefaultStatementTimeout = 5 * time.Second

// Result is a fully materialised query result.
type Result = core.ResultSet

// Conn is the part of an adapter the executor needs.
type Conn interface {
	BeginTx(ctx context.Context, opts *sql.TxOptions) (*sql.Tx, error)
	Dialect() adapter.Dialect
}

// ValidationError is returned when the statement fails validation. No
// database work happens in that case.
type ValidationError struct {
	Result validator.Result
}

func (e *ValidationError) Error() string {
	return "sql validation failed: " + strings.Join(e.Result.Errors, "; ")
}

// ExecutionError hides database failure details behind a generic message.
// The cause is logged and available through errors.Unwrap.
type ExecutionError struct {
	Err error
}

func (e *ExecutionError) Error() string { return "query execution failed" }

func (e *ExecutionError) Unwrap() error { return e.Err }

// Executor validates and runs statements, one transaction per call.
type Executor struct {
	conn      Conn
	validator *validator.Validator
	timeout   time.Duration
	logger    *slog.Logger
}

// Option configures an Executor.
type Option func(*Executor)

// WithStatementTimeout overrides DefaultStatementTimeout.
func WithStatementTimeout(d time.Duration) Option {
	return func(e *Executor) {
		if d > 0 {
			e.timeout = d
		}
	}
}

// WithLogger sets the logger. The default discards.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Executor) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// New creates an Executor.
func New(conn Conn, v *validator.Validator, opts ...Option) *Executor {
	e := &Executor{
		conn:      conn,
		validator: v,
		timeout:   DefaultStatementTimeout,
		logger:    slog.New(slog.DiscardHandler),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Execute validates query at level and runs the sanitized statement.
func (e *Executor) Execute(ctx context.Context, query string, level validator.Level) (*Result, error) {
	res := e.validator.Validate(query, level)
	if !res.Valid {
		return nil, &ValidationError{Result: res}
	}

	rs, err := e.run(ctx, res.SanitizedSQL)
	if err != nil {
		e.logger.Error("query execution failed",
			slog.String("sql", res.SanitizedSQL),
			slog.String("error", err.Error()))
		return nil, &ExecutionError{Err: err}
	}

	e.logger.Debug("query executed",
		slog.String("level", level.String()),
		slog.Int("rows", len(rs.Rows)))
	return rs, nil
}

func (e *Executor) run(ctx context.Context, query string) (*Result, error) {
	d := e.conn.Dialect()

	tx, err := e.conn.BeginTx(ctx, &sql.TxOptions{ReadOnly: d.ReadOnlyTx})
	if err != nil {
		return nil, err
	}
	// Nothing is ever written, so the transaction is always rolled back.
	defer func() { _ = tx.Rollback() }()

	if d.StatementTimeout != "" {
		directive := fmt.Sprintf(d.StatementTimeout, e.timeout.Milliseconds())
		if _, err := tx.ExecContext(ctx, directive); err != nil {
			e.logger.Debug("statement timeout directive failed",
				slog.String("dialect", d.Name),
				slog.String("error", err.Error()))
		}
	}

	rows, err := tx.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to execute query: %w", err)
	}
	defer func() { _ = rows.Close() }()

	return scan(rows)
}

func scan(rows *sql.Rows) (*Result, error) {
	cols, err := rows.Columns()
	if err != nil {
		return nil, fmt.Errorf("failed to read columns: %w", err)
	}

	out := &Result{Columns: cols, Rows: [][]any{}}
	for rows.Next() {
		values := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		for i, v := range values {
			if b, ok := v.([]byte); ok {
				values[i] = string(b)
			}
		}
		out.Rows = append(out.Rows, values)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}
	return out, nil
}
