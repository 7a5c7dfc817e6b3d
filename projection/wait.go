package projection

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/ledgerid/core/evt"
)

// WaitForProjection implements the wait_for_projection helper named in §6:
// block until (projection, instance)'s last_processed_position is >= at,
// or deadline elapses. It layers evt.Notifier.Await (fast path, woken by
// the worker's post-batch Announce) over a plain position-table poll
// (authoritative fallback, since Announce is explicitly best-effort).
func WaitForProjection(ctx context.Context, db *gorm.DB, notifier *evt.Notifier, projectionName, instanceID string, at int64, deadline time.Duration) bool {
	deadlineAt := time.Now().Add(deadline)

	check := func() (bool, error) {
		pos, err := lastProcessedPosition(ctx, db, projectionName, instanceID)
		if err != nil {
			return false, err
		}
		return pos >= at, nil
	}

	if ok, err := check(); err == nil && ok {
		return true
	}

	for {
		remaining := time.Until(deadlineAt)
		if remaining <= 0 {
			return false
		}
		if notifier != nil {
			notifier.Await(ctx, instanceID, at, minDuration(remaining, 200*time.Millisecond))
		}
		if ok, err := check(); err == nil && ok {
			return true
		}
		if ctx.Err() != nil {
			return false
		}
	}
}

func minDuration(a, b time.Duration) time.Duration {
	if a < b {
		return a
	}
	return b
}
