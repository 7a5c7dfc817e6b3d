// Package projection implements the Projection Engine (§4.4): async,
// at-least-once derivation of read-models from the event log, with
// per-(projection, instance) locking, position tracking and failed-event
// bookkeeping. Grounded on the teacher's qrymem/qrypgx dual in-memory/sql
// backend split, generalized here to "gorm read-model, in the same
// transaction as this package's own bookkeeping tables".
package projection

import (
	"context"

	"gorm.io/gorm"

	"github.com/ledgerid/core/evt"
)

// Definition is a named, typed handler bundle (§4.4): the event filter it
// subscribes to, its read-model schema, and its per-event-type reducer.
type Definition interface {
	// Name identifies the projection in the position/lock/failed-event
	// tables. Stable, never reused for a differently-shaped projection.
	Name() string
	// AggregateTypes and EventTypes narrow the subscription; either may be
	// left empty to mean "all".
	AggregateTypes() []string
	EventTypes() []string
	// StrictOrder halts processing for a (projection, instance) pair at a
	// poisoned event instead of skipping past it (§4.4 step 4).
	StrictOrder() bool
	// EnsureSchema creates or migrates this projection's own tables.
	// Called once per process start, before any worker tick.
	EnsureSchema(db *gorm.DB) error
	// Reduce applies one event to the projection's tables within tx.
	// Must be idempotent (INSERT ... ON CONFLICT DO UPDATE or equivalent)
	// since events are delivered at-least-once (§4.4).
	Reduce(ctx context.Context, tx *gorm.DB, ev *evt.Event) error
}

// filterOf builds the evt.Filter a Definition's subscription implies for
// one instance, starting strictly after lastProcessedPosition.
func filterOf(def Definition, instanceID string, lastProcessedPosition int64, limit int) evt.Filter {
	return evt.Filter{
		FromPosition:   lastProcessedPosition + 1,
		InstanceIDs:    []string{instanceID},
		AggregateTypes: def.AggregateTypes(),
		EventTypes:     def.EventTypes(),
		Limit:          limit,
	}
}
