package command

import "github.com/ledgerid/core/evt"

// WriteModel is the transient, replay-derived state a command validates
// against and mutates (§9: "write-model as data-driven reducer"). It is
// never persisted and never cached across commands for correctness — an
// Engine MAY cache under a staleness bound if it re-validates against the
// store's current sequence, but the base Engine here always replays fresh.
type WriteModel interface {
	// Apply mutates the write-model to reflect ev. The Engine guarantees
	// ev belongs to this aggregate and arrives in ascending Sequence
	// order; Apply must tolerate unknown EventType values (forward
	// compatibility, §9) by ignoring them.
	Apply(ev *evt.Event)
	// Sequence is the aggregate's sequence after every Apply call so far,
	// 0 if no events have been applied.
	Sequence() int64
}

// Base is embedded by every concrete write-model to provide the Sequence
// bookkeeping every aggregate needs, so aggregate Apply implementations
// only have to handle their own fields.
type Base struct {
	seq int64
}

// Sequence implements WriteModel.
func (b *Base) Sequence() int64 { return b.seq }

// Advance records that ev has been applied; concrete Apply methods must
// call this once per event, even for event types they don't otherwise
// recognize.
func (b *Base) Advance(ev *evt.Event) { b.seq = ev.Sequence }
