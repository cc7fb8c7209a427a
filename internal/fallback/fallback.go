// Package fallback runs a primary strategy and, when it fails, a secondary
// strategy with the same inputs.
package fallback

import (
	"context"
	"log/slog"
)

// Do returns primary's result, or secondary's when primary fails. The
// primary error is logged at debug level and never surfaced.
func Do[T any](ctx context.Context, logger *slog.Logger, stage string, primary, secondary func(context.Context) (T, error)) (T, error) {
	v, err := primary(ctx)
	if err == nil {
		return v, nil
	}
	if logger != nil {
		logger.Debug("primary strategy failed, using fallback",
			slog.String("stage", stage),
			slog.String("error", err.Error()))
	}
	return secondary(ctx)
}
