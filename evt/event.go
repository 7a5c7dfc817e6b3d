package evt

import (
	"encoding/json"
	"time"
)

// Event is an immutable fact appended to the log. See §3 of SPEC_FULL.md
// for the field-by-field contract.
type Event struct {
	// Position is the global, strictly monotonic ordering across the
	// entire log (§3, §9's Open Question resolution: sequence-based).
	Position int64 `json:"position"`
	// Sequence is the 1-based, gapless per-aggregate ordering.
	Sequence int64 `json:"sequence"`

	InstanceID       string `json:"instance_id"`
	AggregateType    string `json:"aggregate_type"`
	AggregateID      string `json:"aggregate_id"`
	AggregateVersion int32  `json:"aggregate_version"`

	// EventType is a dotted, stable, append-only name, e.g. "user.human.added".
	EventType string          `json:"event_type"`
	Payload   json.RawMessage `json:"payload"`

	EditorUser    string `json:"editor_user,omitempty"`
	EditorService string `json:"editor_service,omitempty"`
	ResourceOwner string `json:"resource_owner"`

	CreatedAt time.Time `json:"created_at"`
	// CommandID groups every event written by the same command; events
	// sharing a CommandID for one aggregate are guaranteed contiguous.
	CommandID string `json:"command_id"`
}

// UniqueOp is a unique-constraint operation submitted alongside a Write.
// "Add" reserves the tuple (instance_id, unique_type, unique_field); an
// add against an already-held tuple fails the whole push with
// UniqueConstraintViolation carrying ErrorMessage. "Remove" releases the
// tuple and is a no-op if it was not held (§4.2).
type UniqueOp struct {
	Add          bool
	Type         string
	Field        string
	CaseInsensitive bool
	ErrorMessage string
}

// Write is one aggregate's contribution to a push: the event to append plus
// the unique-constraint operations that must commit atomically with it.
type Write struct {
	InstanceID    string
	AggregateType string
	AggregateID   string
	// ExpectedSequence is the aggregate's sequence before this write, as
	// observed by the write-model that produced it. A nil value skips the
	// optimistic concurrency check for this write; command.Engine sets it
	// on a command's first write only (0 for a brand-new aggregate), and
	// the later writes of the same push follow on from that one.
	ExpectedSequence *int64

	// AggregateVersion is the write-model schema version, computed by the
	// caller (see package avers) from the aggregate type's registered
	// event-type set.
	AggregateVersion int32

	EventType string
	Payload   json.RawMessage

	EditorUser    string
	EditorService string
	ResourceOwner string

	UniqueOps []UniqueOp
}

// StreamItem is one element of a Stream: either an Event or a terminal
// error. A Stream that reaches the tail with follow=false simply closes
// its channel with no final StreamItem.
type StreamItem struct {
	Event *Event
	Err   error
}
