package platform

import (
	"context"
	"time"

	"github.com/rs/zerolog"
)

// BestEffort runs fn with a bounded timeout and logs any failure without
// propagating it. Side effects like notification mail, Drive ownership
// transfer, and temp-file cleanup must never change the outcome of the
// operation that triggered them.
func BestEffort(logger zerolog.Logger, name string, timeout time.Duration, fn func(context.Context) error) {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- fn(ctx) }()

	select {
	case err := <-done:
		if err != nil {
			logger.Warn().Err(err).Str("side_effect", name).Msg("best-effort side effect failed")
		}
	case <-ctx.Done():
		logger.Warn().Str("side_effect", name).Dur("timeout", timeout).Msg("best-effort side effect timed out")
	}
}
