package command_test

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/ledgerid/core/aggregates/user"
	"github.com/ledgerid/core/authz"
	"github.com/ledgerid/core/command"
	"github.com/ledgerid/core/evtmem"
	"github.com/ledgerid/core/ierr"
)

func TestExecuteRejectsUnauthorizedAction(t *testing.T) {
	store := evtmem.New(nil)
	reg := command.NewRegistry()
	reg.Register(user.Definition())
	policy := authz.NewRules().AddRole("viewer", false).AddRole("admin", true)
	engine := command.NewEngine(store, reg, policy, nil)

	_, err := engine.Execute(context.Background(), user.AddHuman, command.Command{
		CommandID: "c1", InstanceID: "inst1", AggregateType: user.AggregateType, AggregateID: "u1",
		Editor: command.Editor{Role: "viewer"}, Action: "user.write",
		Payload: user.AddHumanPayload{Username: "ada", Email: "ada@example.com"},
	})
	require.Error(t, err)
	require.True(t, ierr.OfKind(err, ierr.PreconditionFailed))

	_, err = engine.Execute(context.Background(), user.AddHuman, command.Command{
		CommandID: "c2", InstanceID: "inst1", AggregateType: user.AggregateType, AggregateID: "u1",
		Editor: command.Editor{Role: "admin"}, Action: "user.write",
		Payload: user.AddHumanPayload{Username: "ada", Email: "ada@example.com"},
	})
	require.NoError(t, err)
}

func TestExecuteRetriesConcurrentConflict(t *testing.T) {
	store := evtmem.New(nil)
	reg := command.NewRegistry()
	reg.Register(user.Definition())
	engine := command.NewEngine(store, reg, nil, nil)

	_, err := engine.Execute(context.Background(), user.AddHuman, command.Command{
		CommandID: "seed", InstanceID: "inst1", AggregateType: user.AggregateType, AggregateID: "u1",
		Payload: user.AddHumanPayload{Username: "grace", Email: "grace@example.com"},
	})
	require.NoError(t, err)

	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := engine.Execute(context.Background(), user.ChangeEmail, command.Command{
				CommandID: "c" + string(rune('a'+i)), InstanceID: "inst1",
				AggregateType: user.AggregateType, AggregateID: "u1",
				Payload: user.ChangeEmailPayload{Email: "changed" + string(rune('0'+i)) + "@example.com"},
			})
			errs[i] = err
		}(i)
	}
	wg.Wait()
	require.NoError(t, errs[0])
	require.NoError(t, errs[1], "the engine must transparently retry past the loser's concurrency conflict")
}
