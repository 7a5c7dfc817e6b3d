package query_test

import (
	"context"
	"os"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"github.com/ledgerid/core/aggregates/user"
	"github.com/ledgerid/core/command"
	"github.com/ledgerid/core/evtpg"
	"github.com/ledgerid/core/projection"
	"github.com/ledgerid/core/projection/users"
	"github.com/ledgerid/core/query"
)

func requireDSN(t *testing.T) string {
	dsn := os.Getenv("PG_TEST_DSN")
	if dsn == "" {
		t.Skip("PG_TEST_DSN not set, skipping postgres-backed test")
	}
	return dsn
}

// TestEndToEndCommandProjectionQuery exercises the whole pipeline named in
// §8: a command appends an event, a projection tick derives a read-model
// row, and the Query Façade finds it.
func TestEndToEndCommandProjectionQuery(t *testing.T) {
	dsn := requireDSN(t)
	ctx := context.Background()

	store, err := evtpg.Open(ctx, dsn, 4, nil, nil)
	require.NoError(t, err)
	defer store.Close()
	require.NoError(t, store.EnsureSchema(ctx))

	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{})
	require.NoError(t, err)
	def := users.Definition{}
	require.NoError(t, def.EnsureSchema(db))

	reg := command.NewRegistry()
	reg.Register(user.Definition())
	engine := command.NewEngine(store, reg, nil, nil)

	instanceID := "query-e2e-" + uuid.NewString()
	_, err = engine.Execute(ctx, user.AddHuman, command.Command{
		CommandID: "c1", InstanceID: instanceID, AggregateType: user.AggregateType, AggregateID: "u1",
		Payload: user.AddHumanPayload{Username: "turing", Email: "turing@example.com"},
	})
	require.NoError(t, err)

	w := projection.NewWorker(def, store, db, nil, nil, "worker-1")
	require.NoError(t, w.Tick(ctx, instanceID))

	row, err := query.GetUserByID(ctx, db, instanceID, "u1")
	require.NoError(t, err)
	require.Equal(t, "turing", row.Username)

	rows, page, err := query.SearchUsers(ctx, db, instanceID, query.SearchUsersFilter{UsernamePrefix: "tur"}, "", query.Asc, query.Pagination{})
	require.NoError(t, err)
	require.Len(t, rows, 1)
	require.EqualValues(t, 1, page.TotalCount)
	require.False(t, page.HasMore)
}

// TestSearchUsersPaginatesNonUniqueSortColumnWithoutDropping exercises
// keyset pagination over "state", a column many rows share: without the id
// tiebreak in the cursor predicate, page two's `state > 'active'` would
// skip every remaining active row instead of resuming after the cursor row.
func TestSearchUsersPaginatesNonUniqueSortColumnWithoutDropping(t *testing.T) {
	dsn := requireDSN(t)
	ctx := context.Background()

	store, err := evtpg.Open(ctx, dsn, 4, nil, nil)
	require.NoError(t, err)
	defer store.Close()
	require.NoError(t, store.EnsureSchema(ctx))

	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{})
	require.NoError(t, err)
	def := users.Definition{}
	require.NoError(t, def.EnsureSchema(db))

	reg := command.NewRegistry()
	reg.Register(user.Definition())
	engine := command.NewEngine(store, reg, nil, nil)

	instanceID := "query-e2e-" + uuid.NewString()
	usernames := []string{"ada", "grace", "linus", "margaret"}
	for i, name := range usernames {
		_, err := engine.Execute(ctx, user.AddHuman, command.Command{
			CommandID: "seed-" + name, InstanceID: instanceID, AggregateType: user.AggregateType,
			AggregateID: "u" + string(rune('0'+i)),
			Payload:     user.AddHumanPayload{Username: name, Email: name + "@example.com"},
		})
		require.NoError(t, err)
	}

	w := projection.NewWorker(def, store, db, nil, nil, "worker-1")
	require.NoError(t, w.Tick(ctx, instanceID))

	var seen []string
	page := query.Pagination{Limit: 2}
	for {
		rows, result, err := query.SearchUsers(ctx, db, instanceID, query.SearchUsersFilter{}, "state", query.Asc, page)
		require.NoError(t, err)
		for _, row := range rows {
			seen = append(seen, row.Username)
		}
		if !result.HasMore {
			break
		}
		last := rows[len(rows)-1]
		page = query.Pagination{Cursor: last.State, CursorID: last.UserID, Limit: 2}
	}
	require.ElementsMatch(t, usernames, seen, "every row shares state=active; paginating must not drop any of them")
}
