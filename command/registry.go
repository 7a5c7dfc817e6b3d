package command

import "github.com/ledgerid/core/ierr"

// Definition registers one aggregate type's write-model constructor and
// its full event-type vocabulary (used by avers.Compute to stamp
// AggregateVersion on every event this aggregate type produces).
type Definition struct {
	AggregateType string
	New           func() WriteModel
	EventTypes    []string
}

// Registry maps aggregate type names to their Definition, the data-driven
// reducer registry §9 calls for ("a registry mapping event_type ->
// (state, payload) -> state", generalized here one level up to
// aggregate-type -> write-model constructor, since each write-model's own
// Apply method is the per-event-type reducer table).
type Registry struct {
	defs map[string]Definition
}

// NewRegistry returns an empty Registry.
func NewRegistry() *Registry {
	return &Registry{defs: make(map[string]Definition)}
}

// Register adds def, replacing any existing definition for the same
// aggregate type.
func (r *Registry) Register(def Definition) {
	r.defs[def.AggregateType] = def
}

// Get returns the Definition for aggregateType, or a Validation error if
// none was registered.
func (r *Registry) Get(aggregateType string) (Definition, error) {
	def, ok := r.defs[aggregateType]
	if !ok {
		return Definition{}, ierr.New(ierr.Validation, "unknown aggregate type "+aggregateType)
	}
	return def, nil
}
