// Package org implements the organization aggregate: the resource-owner
// boundary that user aggregates and other org-scoped aggregates reference
// (§2's instance/resource_owner tenancy model). Its own FSM is
// deliberately small: added -> deactivated/reactivated -> removed.
package org

import (
	"context"
	"encoding/json"

	"github.com/ledgerid/core/command"
	"github.com/ledgerid/core/evt"
	"github.com/ledgerid/core/ierr"
)

const AggregateType = "org"

const (
	EventAdded       = "org.added"
	EventNameChanged = "org.name.changed"
	EventDeactivated = "org.deactivated"
	EventReactivated = "org.reactivated"
	EventRemoved     = "org.removed"
)

const uniqueName = "org.name"

var EventTypes = []string{
	EventAdded, EventNameChanged, EventDeactivated, EventReactivated, EventRemoved,
}

type State int

const (
	StateInitial State = iota
	StateActive
	StateInactive
	StateRemoved
)

// WriteModel is the transient replay-derived state for one org aggregate.
type WriteModel struct {
	command.Base

	InstanceID string
	OrgID      string
	Name       string
	State      State
}

var _ command.WriteModel = (*WriteModel)(nil)

func New() command.WriteModel { return &WriteModel{} }

type addedPayload struct {
	Name string `json:"name"`
}

type nameChangedPayload struct {
	Name string `json:"name"`
}

func (w *WriteModel) Apply(ev *evt.Event) {
	defer w.Advance(ev)

	switch ev.EventType {
	case EventAdded:
		var p addedPayload
		if err := json.Unmarshal(ev.Payload, &p); err != nil {
			return
		}
		w.InstanceID = ev.InstanceID
		w.OrgID = ev.AggregateID
		w.Name = p.Name
		w.State = StateActive
	case EventNameChanged:
		var p nameChangedPayload
		if err := json.Unmarshal(ev.Payload, &p); err != nil {
			return
		}
		w.Name = p.Name
	case EventDeactivated:
		w.State = StateInactive
	case EventReactivated:
		w.State = StateActive
	case EventRemoved:
		w.State = StateRemoved
	}
}

func Definition() command.Definition {
	return command.Definition{AggregateType: AggregateType, New: New, EventTypes: EventTypes}
}

// AddPayload is the input for Add.
type AddPayload struct {
	Name string
}

// Add creates a new organization, reserving its name uniquely within the
// instance (§2, §4.2).
func Add(ctx context.Context, ws command.WriteModel, cmd command.Command) ([]command.EventDraft, error) {
	w := ws.(*WriteModel)
	if w.State != StateInitial {
		return nil, ierr.New(ierr.PreconditionFailed, "org already exists").WithAggregate(cmd.InstanceID, AggregateType, cmd.AggregateID)
	}
	p, ok := cmd.Payload.(AddPayload)
	if !ok || p.Name == "" {
		return nil, ierr.New(ierr.Validation, "Add requires a non-empty org name")
	}
	return []command.EventDraft{{
		EventType: EventAdded,
		Payload:   addedPayload{Name: p.Name},
		UniqueOps: []evt.UniqueOp{
			{Add: true, Type: uniqueName, Field: p.Name, CaseInsensitive: true, ErrorMessage: "org name already taken"},
		},
	}}, nil
}

// Deactivate suspends an active org.
func Deactivate(ctx context.Context, ws command.WriteModel, cmd command.Command) ([]command.EventDraft, error) {
	w := ws.(*WriteModel)
	if w.State != StateActive {
		return nil, ierr.New(ierr.PreconditionFailed, "org is not active")
	}
	return []command.EventDraft{{EventType: EventDeactivated}}, nil
}

// Reactivate resumes a deactivated org.
func Reactivate(ctx context.Context, ws command.WriteModel, cmd command.Command) ([]command.EventDraft, error) {
	w := ws.(*WriteModel)
	if w.State != StateInactive {
		return nil, ierr.New(ierr.PreconditionFailed, "org is not inactive")
	}
	return []command.EventDraft{{EventType: EventReactivated}}, nil
}

// Remove deletes an org, releasing its name for reuse.
func Remove(ctx context.Context, ws command.WriteModel, cmd command.Command) ([]command.EventDraft, error) {
	w := ws.(*WriteModel)
	if w.State == StateInitial || w.State == StateRemoved {
		return nil, ierr.New(ierr.PreconditionFailed, "org already removed")
	}
	return []command.EventDraft{{
		EventType: EventRemoved,
		UniqueOps: []evt.UniqueOp{
			{Add: false, Type: uniqueName, Field: w.Name, CaseInsensitive: true},
		},
	}}, nil
}
