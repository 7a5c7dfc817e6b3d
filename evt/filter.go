package evt

// Filter is the query/stream language of §4.1: an inclusive lower bound on
// position, an optional upper bound, set-membership predicates and a limit.
// A zero-value Filter matches every event from position 0.
type Filter struct {
	FromPosition int64
	ToPosition   *int64

	InstanceIDs    []string
	AggregateTypes []string
	AggregateIDs   []string
	EventTypes     []string
	EditorUsers    []string

	Limit int
	// Desc reverses the order (position DESC); the tie-break within a
	// position is always the store's stable in-transaction insert order,
	// reversed along with everything else when Desc is set.
	Desc bool
}

// Matches reports whether ev satisfies every predicate in f. Both
// evtmem and evtpg use this so their filtering semantics never drift.
func (f Filter) Matches(ev *Event) bool {
	if ev.Position < f.FromPosition {
		return false
	}
	if f.ToPosition != nil && ev.Position > *f.ToPosition {
		return false
	}
	if len(f.InstanceIDs) > 0 && !contains(f.InstanceIDs, ev.InstanceID) {
		return false
	}
	if len(f.AggregateTypes) > 0 && !contains(f.AggregateTypes, ev.AggregateType) {
		return false
	}
	if len(f.AggregateIDs) > 0 && !contains(f.AggregateIDs, ev.AggregateID) {
		return false
	}
	if len(f.EventTypes) > 0 && !contains(f.EventTypes, ev.EventType) {
		return false
	}
	if len(f.EditorUsers) > 0 && !contains(f.EditorUsers, ev.EditorUser) {
		return false
	}
	return true
}

// MatchesMembership reports whether ev satisfies every set-membership
// predicate in f and the ToPosition upper bound, ignoring FromPosition.
// Streaming implementations use this together with their own "beyond
// last-sent position" cursor check.
func (f Filter) MatchesMembership(ev *Event) bool {
	if len(f.InstanceIDs) > 0 && !contains(f.InstanceIDs, ev.InstanceID) {
		return false
	}
	if len(f.AggregateTypes) > 0 && !contains(f.AggregateTypes, ev.AggregateType) {
		return false
	}
	if len(f.AggregateIDs) > 0 && !contains(f.AggregateIDs, ev.AggregateID) {
		return false
	}
	if len(f.EventTypes) > 0 && !contains(f.EventTypes, ev.EventType) {
		return false
	}
	if len(f.EditorUsers) > 0 && !contains(f.EditorUsers, ev.EditorUser) {
		return false
	}
	if f.ToPosition != nil && ev.Position > *f.ToPosition {
		return false
	}
	return true
}

func contains(list []string, v string) bool {
	for _, s := range list {
		if s == v {
			return true
		}
	}
	return false
}
