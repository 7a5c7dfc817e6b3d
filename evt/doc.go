// Package evt defines the storage-agnostic vocabulary of the Event Store:
// the immutable Event record, the Write intent a command submits, the
// unique-constraint operations that travel alongside a write, and the
// Store interface both the Postgres-backed (evtpg) and in-memory (evtmem)
// implementations satisfy.
//
// Position is assigned sequence-based (see SPEC_FULL.md's Open Question
// resolution): a single shared counter, advanced inside the same
// transaction as the event insert, gives strict monotonicity and
// commit-order correspondence without depending on wall-clock precision.
package evt
