package user_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/ledgerid/core/aggregates/user"
	"github.com/ledgerid/core/command"
	"github.com/ledgerid/core/evtmem"
	"github.com/ledgerid/core/ierr"
)

func newEngine() *command.Engine {
	store := evtmem.New(nil)
	reg := command.NewRegistry()
	reg.Register(user.Definition())
	return command.NewEngine(store, reg, nil, nil)
}

func TestAddHumanThenChangeEmail(t *testing.T) {
	e := newEngine()
	ctx := context.Background()

	res, err := e.Execute(ctx, user.AddHuman, command.Command{
		CommandID: "c1", InstanceID: "inst1", AggregateType: user.AggregateType, AggregateID: "u1",
		Payload: user.AddHumanPayload{Username: "ada", Email: "ada@example.com"},
	})
	require.NoError(t, err)
	require.Len(t, res.Events, 1)
	require.Equal(t, user.EventHumanAdded, res.Events[0].EventType)

	res, err = e.Execute(ctx, user.ChangeEmail, command.Command{
		CommandID: "c2", InstanceID: "inst1", AggregateType: user.AggregateType, AggregateID: "u1",
		Payload: user.ChangeEmailPayload{Email: "ada2@example.com"},
	})
	require.NoError(t, err)
	w := res.State.(*user.WriteModel)
	require.Equal(t, "ada2@example.com", w.Email)
}

func TestAddHumanRejectsDuplicateUsername(t *testing.T) {
	e := newEngine()
	ctx := context.Background()

	_, err := e.Execute(ctx, user.AddHuman, command.Command{
		CommandID: "c1", InstanceID: "inst1", AggregateType: user.AggregateType, AggregateID: "u1",
		Payload: user.AddHumanPayload{Username: "ada", Email: "ada@example.com"},
	})
	require.NoError(t, err)

	_, err = e.Execute(ctx, user.AddHuman, command.Command{
		CommandID: "c2", InstanceID: "inst1", AggregateType: user.AggregateType, AggregateID: "u2",
		Payload: user.AddHumanPayload{Username: "ADA", Email: "other@example.com"},
	})
	require.Error(t, err)
	require.True(t, ierr.OfKind(err, ierr.UniqueConstraintViolation))
}

func TestDeactivateReactivateFSM(t *testing.T) {
	e := newEngine()
	ctx := context.Background()

	_, err := e.Execute(ctx, user.AddHuman, command.Command{
		CommandID: "c1", InstanceID: "inst1", AggregateType: user.AggregateType, AggregateID: "u1",
		Payload: user.AddHumanPayload{Username: "grace", Email: "grace@example.com"},
	})
	require.NoError(t, err)

	_, err = e.Execute(ctx, user.Deactivate, command.Command{
		CommandID: "c2", InstanceID: "inst1", AggregateType: user.AggregateType, AggregateID: "u1",
	})
	require.NoError(t, err)

	_, err = e.Execute(ctx, user.Deactivate, command.Command{
		CommandID: "c3", InstanceID: "inst1", AggregateType: user.AggregateType, AggregateID: "u1",
	})
	require.Error(t, err)
	require.True(t, ierr.OfKind(err, ierr.PreconditionFailed))

	res, err := e.Execute(ctx, user.Reactivate, command.Command{
		CommandID: "c4", InstanceID: "inst1", AggregateType: user.AggregateType, AggregateID: "u1",
	})
	require.NoError(t, err)
	require.Equal(t, user.StateActive, res.State.(*user.WriteModel).State)
}

func TestRemoveFreesUsernameForReuse(t *testing.T) {
	e := newEngine()
	ctx := context.Background()

	_, err := e.Execute(ctx, user.AddHuman, command.Command{
		CommandID: "c1", InstanceID: "inst1", AggregateType: user.AggregateType, AggregateID: "u1",
		Payload: user.AddHumanPayload{Username: "hopper", Email: "hopper@example.com"},
	})
	require.NoError(t, err)

	_, err = e.Execute(ctx, user.Remove, command.Command{
		CommandID: "c2", InstanceID: "inst1", AggregateType: user.AggregateType, AggregateID: "u1",
	})
	require.NoError(t, err)

	_, err = e.Execute(ctx, user.AddHuman, command.Command{
		CommandID: "c3", InstanceID: "inst1", AggregateType: user.AggregateType, AggregateID: "u2",
		Payload: user.AddHumanPayload{Username: "hopper", Email: "hopper@example.com"},
	})
	require.NoError(t, err)
}
