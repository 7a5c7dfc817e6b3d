// Package user implements the human-user aggregate: the FSM
// initial -> active -> inactive -> removed, unique on (instance, username)
// and (instance, email), used throughout SPEC_FULL.md's scenarios as the
// worked example of a Command Engine aggregate.
package user

import (
	"encoding/json"

	"github.com/ledgerid/core/command"
	"github.com/ledgerid/core/evt"
)

const AggregateType = "user"

const (
	EventHumanAdded   = "user.human.added"
	EventEmailChanged = "user.human.email.changed"
	EventDeactivated  = "user.deactivated"
	EventReactivated  = "user.reactivated"
	EventRemoved      = "user.removed"
)

// EventTypes is the aggregate's full event vocabulary, used by avers to
// stamp AggregateVersion; keep append-only (§3).
var EventTypes = []string{
	EventHumanAdded, EventEmailChanged, EventDeactivated, EventReactivated, EventRemoved,
}

// State is the FSM's state name.
type State int

const (
	StateInitial State = iota
	StateActive
	StateInactive
	StateRemoved
)

// WriteModel is the transient replay-derived state for one user aggregate.
type WriteModel struct {
	command.Base

	InstanceID string
	UserID     string
	Username   string
	Email      string
	State      State
}

var _ command.WriteModel = (*WriteModel)(nil)

func New() command.WriteModel { return &WriteModel{} }

type humanAddedPayload struct {
	Username string `json:"username"`
	Email    string `json:"email"`
}

type emailChangedPayload struct {
	Email string `json:"email"`
}

// Apply is the data-driven reducer: unknown event types are ignored so
// that future event types don't break replay of old aggregates (§9).
func (w *WriteModel) Apply(ev *evt.Event) {
	defer w.Advance(ev)

	switch ev.EventType {
	case EventHumanAdded:
		var p humanAddedPayload
		if err := json.Unmarshal(ev.Payload, &p); err != nil {
			return
		}
		w.InstanceID = ev.InstanceID
		w.UserID = ev.AggregateID
		w.Username = p.Username
		w.Email = p.Email
		w.State = StateActive
	case EventEmailChanged:
		var p emailChangedPayload
		if err := json.Unmarshal(ev.Payload, &p); err != nil {
			return
		}
		w.Email = p.Email
	case EventDeactivated:
		w.State = StateInactive
	case EventReactivated:
		w.State = StateActive
	case EventRemoved:
		w.State = StateRemoved
	}
}

// Definition registers this aggregate with a command.Registry.
func Definition() command.Definition {
	return command.Definition{
		AggregateType: AggregateType,
		New:           New,
		EventTypes:    EventTypes,
	}
}
