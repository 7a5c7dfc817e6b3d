package evt

import "context"

// Store is the Event Store's contract (§4.1). Both evtpg (Postgres) and
// evtmem (in-memory, for tests) implement it identically.
type Store interface {
	// Push appends writes atomically: either every event and every
	// unique-constraint operation commits, or none does. On success the
	// returned events carry their assigned Position and Sequence.
	//
	// A stale ExpectedSequence on any write fails the whole batch with an
	// *ierr.Error of kind ConcurrencyConflict. A colliding "add" unique op
	// fails the whole batch with kind UniqueConstraintViolation.
	Push(ctx context.Context, commandID string, writes []Write) ([]*Event, error)

	// Query returns events matching filter, ordered by (position ASC,
	// in-transaction order ASC), or reversed if filter.Desc.
	Query(ctx context.Context, filter Filter) ([]*Event, error)

	// Stream lazily yields events matching filter at or beyond
	// filter.FromPosition (an inclusive lower bound, as in Filter).
	// If follow is false the returned channel closes once the tail known
	// at call time is exhausted; if true it keeps blocking and yielding
	// newly appended matching events until ctx is done.
	Stream(ctx context.Context, filter Filter, follow bool) <-chan StreamItem

	// LatestPosition returns the highest position committed so far. If
	// instanceID is non-empty the result is scoped to that instance.
	LatestPosition(ctx context.Context, instanceID string) (int64, error)
}
