// Package planner builds a plan.Plan from resolved entities. Deterministic
// uses hand-written templates; Generative asks an LLM for plan JSON and
// dry-runs it through the compiler. WithFallback composes the two.
//
// A plan never becomes SQL except through pkg/compiler.
package planner

import (
	"context"
	"log/slog"

	"github.com/leapstack-labs/leapask/internal/fallback"
	"github.com/leapstack-labs/leapask/pkg/compiler"
	"github.com/leapstack-labs/leapask/pkg/core"
	"github.com/leapstack-labs/leapask/pkg/plan"
)

// DefaultTimezone is the plant timezone used for date filters.
const DefaultTimezone = "Asia/Jerusalem"

// Planner builds a plan for a question. The question text is passed along
// with the entities so templates can pick a subject table and generative
// planners can quote it. opts are the compile options the caller will
// compile the returned plan with.
type Planner interface {
	Build(ctx context.Context, question string, entities core.ResolvedEntities, schema *core.AllowedSchema, opts ...compiler.Option) (*plan.Plan, error)
}

type withFallback struct {
	primary   Planner
	secondary Planner
	logger    *slog.Logger
}

// WithFallback returns a Planner that runs secondary with the same inputs
// whenever primary fails.
func WithFallback(primary, secondary Planner, logger *slog.Logger) Planner {
	return &withFallback{primary: primary, secondary: secondary, logger: logger}
}

func (p *withFallback) Build(ctx context.Context, question string, entities core.ResolvedEntities, schema *core.AllowedSchema, opts ...compiler.Option) (*plan.Plan, error) {
	return fallback.Do(ctx, p.logger, "plan",
		func(ctx context.Context) (*plan.Plan, error) {
			return p.primary.Build(ctx, question, entities, schema, opts...)
		},
		func(ctx context.Context) (*plan.Plan, error) {
			return p.secondary.Build(ctx, question, entities, schema, opts...)
		})
}
