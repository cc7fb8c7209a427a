// Package catalog loads the live entity lists (employees, machines, parts,
// lots) the resolver matches question text against.
package catalog

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	sq "github.com/Masterminds/squirrel"
	"github.com/leapstack-labs/leapask/pkg/core"
	"golang.org/x/sync/errgroup"
)

// Querier runs a read query. adapter.Adapter satisfies it.
type Querier interface {
	Query(ctx context.Context, sql string, args ...any) (*core.Rows, error)
}

// Loader reads the catalog tables described by an AllowedSchema.
type Loader struct {
	q      Querier
	schema *core.AllowedSchema
	logger *slog.Logger
}

// NewLoader creates a catalog loader.
// If logger is nil, a discard logger is used.
func NewLoader(q Querier, schema *core.AllowedSchema, logger *slog.Logger) *Loader {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Loader{q: q, schema: schema, logger: logger}
}

// Load fetches the four entity lists concurrently. A failing list is left
// empty; the returned catalog is always usable and err joins every failure.
func (l *Loader) Load(ctx context.Context) (*core.Catalog, error) {
	cat := &core.Catalog{}

	var (
		g    errgroup.Group
		errs [4]error
	)
	load := func(i int, dst *[]core.Entity, build func() (sq.SelectBuilder, bool)) {
		g.Go(func() error {
			query, ok := build()
			if !ok {
				return nil
			}
			entities, err := l.fetch(ctx, query)
			if err != nil {
				errs[i] = err
				return nil
			}
			*dst = entities
			return nil
		})
	}

	load(0, &cat.Employees, l.employeesQuery)
	load(1, &cat.Machines, l.machinesQuery)
	load(2, &cat.Parts, l.namedQuery("parts", "drawing_number"))
	load(3, &cat.Lots, l.namedQuery("lots", "lot_number"))
	_ = g.Wait()

	err := errors.Join(errs[:]...)
	if err != nil {
		l.logger.Warn("catalog partially loaded", slog.String("error", err.Error()))
	}
	l.logger.Debug("catalog loaded",
		slog.Int("employees", len(cat.Employees)),
		slog.Int("machines", len(cat.Machines)),
		slog.Int("parts", len(cat.Parts)),
		slog.Int("lots", len(cat.Lots)))
	return cat, err
}

func (l *Loader) employeesQuery() (sq.SelectBuilder, bool) {
	const t = "employees"
	if !l.schema.HasColumn(t, "id") {
		return sq.SelectBuilder{}, false
	}

	var name string
	switch full, user := l.schema.HasColumn(t, "full_name"), l.schema.HasColumn(t, "username"); {
	case full && user:
		name = "COALESCE(full_name, username)"
	case full:
		name = "full_name"
	case user:
		name = "username"
	default:
		return sq.SelectBuilder{}, false
	}

	b := sq.Select("id", name+" AS name").From(t)
	if l.schema.HasColumn(t, "is_active") {
		b = b.Where("(is_active IS NULL OR is_active = TRUE)")
	}
	return b.OrderBy("id"), true
}

func (l *Loader) machinesQuery() (sq.SelectBuilder, bool) {
	build, ok := l.namedQuery("machines", "name")()
	if ok && l.schema.HasColumn("machines", "is_active") {
		build = build.Where("is_active = TRUE")
	}
	return build, ok
}

func (l *Loader) namedQuery(table, column string) func() (sq.SelectBuilder, bool) {
	return func() (sq.SelectBuilder, bool) {
		if !l.schema.HasColumn(table, "id") || !l.schema.HasColumn(table, column) {
			return sq.SelectBuilder{}, false
		}
		return sq.Select("id", column+" AS name").From(table).OrderBy("id"), true
	}
}

func (l *Loader) fetch(ctx context.Context, b sq.SelectBuilder) ([]core.Entity, error) {
	query, args, err := b.ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build catalog query: %w", err)
	}

	rows, err := l.q.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var out []core.Entity
	for rows.Next() {
		var (
			id   int64
			name sql.NullString
		)
		if err := rows.Scan(&id, &name); err != nil {
			return nil, fmt.Errorf("failed to scan catalog row: %w", err)
		}
		if !name.Valid || name.String == "" {
			continue
		}
		out = append(out, core.Entity{ID: id, Name: name.String})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating catalog rows: %w", err)
	}
	return out, nil
}
