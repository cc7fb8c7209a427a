// Package resolver maps a free-text question to entity ids, an intent and a
// timeframe. Two strategies share the Resolver interface: Deterministic
// (pattern and substring matching) and Generative (LLM extraction constrained
// to the live name lists). WithFallback composes them.
package resolver

import (
	"context"
	"log/slog"

	"github.com/leapstack-labs/leapask/internal/fallback"
	"github.com/leapstack-labs/leapask/pkg/core"
)

// DefaultTimezone is the plant timezone used for relative timeframes.
const DefaultTimezone = "Asia/Jerusalem"

// Resolver resolves the entities mentioned in a question.
// Unmatched fragments are dropped; they are never an error.
type Resolver interface {
	Resolve(ctx context.Context, question string, catalog *core.Catalog) (core.ResolvedEntities, error)
}

type withFallback struct {
	primary   Resolver
	secondary Resolver
	logger    *slog.Logger
}

// WithFallback returns a Resolver that runs secondary with the same inputs
// whenever primary fails.
func WithFallback(primary, secondary Resolver, logger *slog.Logger) Resolver {
	return &withFallback{primary: primary, secondary: secondary, logger: logger}
}

func (r *withFallback) Resolve(ctx context.Context, question string, catalog *core.Catalog) (core.ResolvedEntities, error) {
	return fallback.Do(ctx, r.logger, "resolve",
		func(ctx context.Context) (core.ResolvedEntities, error) {
			return r.primary.Resolve(ctx, question, catalog)
		},
		func(ctx context.Context) (core.ResolvedEntities, error) {
			return r.secondary.Resolve(ctx, question, catalog)
		})
}
