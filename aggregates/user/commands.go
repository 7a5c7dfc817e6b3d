package user

import (
	"context"

	"github.com/ledgerid/core/command"
	"github.com/ledgerid/core/ierr"
)

const (
	uniqueUsername = "user.username"
	uniqueEmail    = "user.email"
)

// AddHumanPayload is the input for AddHuman.
type AddHumanPayload struct {
	Username string
	Email    string
}

// AddHuman creates a new human user, reserving its username and email as
// unique constraints scoped to the instance (§4.2).
func AddHuman(ctx context.Context, ws command.WriteModel, cmd command.Command) ([]command.EventDraft, error) {
	w := ws.(*WriteModel)
	if w.State != StateInitial {
		return nil, ierr.New(ierr.PreconditionFailed, "user already exists").WithAggregate(cmd.InstanceID, AggregateType, cmd.AggregateID)
	}
	p, ok := cmd.Payload.(AddHumanPayload)
	if !ok {
		return nil, ierr.New(ierr.Validation, "AddHuman requires an AddHumanPayload")
	}
	if p.Username == "" || p.Email == "" {
		return nil, ierr.New(ierr.Validation, "username and email are required")
	}
	return []command.EventDraft{{
		EventType: EventHumanAdded,
		Payload:   humanAddedPayload{Username: p.Username, Email: p.Email},
		UniqueOps: evtUniqueOps(p.Username, p.Email, true),
	}}, nil
}

// ChangeEmailPayload is the input for ChangeEmail.
type ChangeEmailPayload struct {
	Email string
}

// ChangeEmail updates the user's email, releasing the old unique
// reservation and taking the new one atomically with the event (§4.2).
func ChangeEmail(ctx context.Context, ws command.WriteModel, cmd command.Command) ([]command.EventDraft, error) {
	w := ws.(*WriteModel)
	if w.State == StateInitial {
		return nil, ierr.New(ierr.NotFound, "user not found").WithAggregate(cmd.InstanceID, AggregateType, cmd.AggregateID)
	}
	if w.State == StateRemoved {
		return nil, ierr.New(ierr.PreconditionFailed, "user removed")
	}
	p, ok := cmd.Payload.(ChangeEmailPayload)
	if !ok {
		return nil, ierr.New(ierr.Validation, "ChangeEmail requires a ChangeEmailPayload")
	}
	if p.Email == "" || p.Email == w.Email {
		return nil, ierr.New(ierr.Validation, "new email must be non-empty and different")
	}
	return []command.EventDraft{{
		EventType: EventEmailChanged,
		Payload:   emailChangedPayload{Email: p.Email},
		UniqueOps: releaseThenTake(uniqueEmail, w.Email, p.Email, true),
	}}, nil
}

// Deactivate moves an active user to inactive.
func Deactivate(ctx context.Context, ws command.WriteModel, cmd command.Command) ([]command.EventDraft, error) {
	w := ws.(*WriteModel)
	if w.State != StateActive {
		return nil, ierr.New(ierr.PreconditionFailed, "user is not active")
	}
	return []command.EventDraft{{EventType: EventDeactivated}}, nil
}

// Reactivate moves an inactive user back to active.
func Reactivate(ctx context.Context, ws command.WriteModel, cmd command.Command) ([]command.EventDraft, error) {
	w := ws.(*WriteModel)
	if w.State != StateInactive {
		return nil, ierr.New(ierr.PreconditionFailed, "user is not inactive")
	}
	return []command.EventDraft{{EventType: EventReactivated}}, nil
}

// Remove deletes a user, releasing both unique reservations for reuse.
func Remove(ctx context.Context, ws command.WriteModel, cmd command.Command) ([]command.EventDraft, error) {
	w := ws.(*WriteModel)
	if w.State == StateRemoved || w.State == StateInitial {
		return nil, ierr.New(ierr.PreconditionFailed, "user already removed")
	}
	return []command.EventDraft{{
		EventType: EventRemoved,
		UniqueOps: releaseOnly(w.Username, w.Email),
	}}, nil
}
