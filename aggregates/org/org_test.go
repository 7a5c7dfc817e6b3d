package org_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/ledgerid/core/aggregates/org"
	"github.com/ledgerid/core/command"
	"github.com/ledgerid/core/evtmem"
	"github.com/ledgerid/core/ierr"
)

func newEngine() *command.Engine {
	store := evtmem.New(nil)
	reg := command.NewRegistry()
	reg.Register(org.Definition())
	return command.NewEngine(store, reg, nil, nil)
}

func TestAddOrgRejectsDuplicateName(t *testing.T) {
	e := newEngine()
	ctx := context.Background()

	_, err := e.Execute(ctx, org.Add, command.Command{
		CommandID: "c1", InstanceID: "inst1", AggregateType: org.AggregateType, AggregateID: "o1",
		Payload: org.AddPayload{Name: "Acme"},
	})
	require.NoError(t, err)

	_, err = e.Execute(ctx, org.Add, command.Command{
		CommandID: "c2", InstanceID: "inst1", AggregateType: org.AggregateType, AggregateID: "o2",
		Payload: org.AddPayload{Name: "acme"},
	})
	require.Error(t, err)
	require.True(t, ierr.OfKind(err, ierr.UniqueConstraintViolation))

	_, err = e.Execute(ctx, org.Add, command.Command{
		CommandID: "c3", InstanceID: "inst2", AggregateType: org.AggregateType, AggregateID: "o3",
		Payload: org.AddPayload{Name: "acme"},
	})
	require.NoError(t, err, "same name in a different instance must be allowed")
}

func TestOrgDeactivateReactivate(t *testing.T) {
	e := newEngine()
	ctx := context.Background()

	_, err := e.Execute(ctx, org.Add, command.Command{
		CommandID: "c1", InstanceID: "inst1", AggregateType: org.AggregateType, AggregateID: "o1",
		Payload: org.AddPayload{Name: "Globex"},
	})
	require.NoError(t, err)

	_, err = e.Execute(ctx, org.Deactivate, command.Command{
		CommandID: "c2", InstanceID: "inst1", AggregateType: org.AggregateType, AggregateID: "o1",
	})
	require.NoError(t, err)

	res, err := e.Execute(ctx, org.Reactivate, command.Command{
		CommandID: "c3", InstanceID: "inst1", AggregateType: org.AggregateType, AggregateID: "o1",
	})
	require.NoError(t, err)
	require.Equal(t, org.StateActive, res.State.(*org.WriteModel).State)
}
