package storage

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"
)

// PruneError aggregates individual delete failures from one prune pass.
// Pruning is best-effort at the run level; callers log this instead of
// failing the backup.
type PruneError struct {
	Failures int
	Last     error
}

func (e *PruneError) Error() string {
	return fmt.Sprintf("prune: %d deletions failed, last: %v", e.Failures, e.Last)
}

func (e *PruneError) Unwrap() error { return e.Last }

// Prune deletes artifacts beyond the keep count, oldest first. The newest
// min(len, keep) artifacts are never touched. Individual delete failures
// are logged and counted but do not stop the remaining deletions; the
// number of successful deletions is returned either way.
func Prune(ctx context.Context, logger zerolog.Logger, backend Backend, keep int) (int, error) {
	if keep < 0 {
		keep = 0
	}

	objects, err := backend.List(ctx, ArtifactPrefix)
	if err != nil {
		return 0, fmt.Errorf("list artifacts for pruning: %w", err)
	}
	if len(objects) <= keep {
		return 0, nil
	}

	excess := objects[keep:]

	deleted := 0
	failures := 0
	var last error
	// Walk the excess from the very oldest up.
	for i := len(excess) - 1; i >= 0; i-- {
		obj := excess[i]
		if err := backend.Delete(ctx, obj.ID, obj.Name); err != nil {
			logger.Warn().Err(err).Str("artifact", obj.Name).Str("backend", backend.Name()).Msg("prune delete failed")
			failures++
			last = err
			continue
		}
		deleted++
	}

	if failures > 0 {
		return deleted, &PruneError{Failures: failures, Last: last}
	}
	return deleted, nil
}
