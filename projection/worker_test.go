package projection_test

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"github.com/ledgerid/core/aggregates/user"
	"github.com/ledgerid/core/evt"
	"github.com/ledgerid/core/evtpg"
	"github.com/ledgerid/core/projection"
	"github.com/ledgerid/core/projection/users"
)

// requireDSN mirrors evtpg's own pattern: skip rather than fail when no
// live Postgres is configured for integration tests.
func requireDSN(t *testing.T) string {
	dsn := os.Getenv("PG_TEST_DSN")
	if dsn == "" {
		t.Skip("PG_TEST_DSN not set, skipping postgres-backed test")
	}
	return dsn
}

func TestWorkerAppliesEventsIdempotently(t *testing.T) {
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

	instanceID := "proj-test-" + uuid.NewString()
	seq := int64(0)
	_, err = store.Push(ctx, "cmd1", []evt.Write{
		{InstanceID: instanceID, AggregateType: user.AggregateType, AggregateID: "u1",
			EventType: user.EventHumanAdded, ExpectedSequence: &seq,
			Payload: []byte(`{"username":"ada","email":"ada@example.com"}`)},
	})
	require.NoError(t, err)

	w := projection.NewWorker(def, store, db, nil, nil, "worker-1")
	require.NoError(t, w.Tick(ctx, instanceID))
	// A second tick with no new events must be a safe no-op.
	require.NoError(t, w.Tick(ctx, instanceID))

	var row users.Row
	require.NoError(t, db.Where("instance_id = ? AND user_id = ?", instanceID, "u1").First(&row).Error)
	require.Equal(t, "ada", row.Username)
	require.Equal(t, "active", row.State)
}

func TestWaitForProjectionObservesAdvance(t *testing.T) {
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

	instanceID := "proj-wait-" + uuid.NewString()
	seq := int64(0)
	events, err := store.Push(ctx, "cmd1", []evt.Write{
		{InstanceID: instanceID, AggregateType: user.AggregateType, AggregateID: "u1",
			EventType: user.EventHumanAdded, ExpectedSequence: &seq,
			Payload: []byte(`{"username":"grace","email":"grace@example.com"}`)},
	})
	require.NoError(t, err)

	w := projection.NewWorker(def, store, db, nil, nil, "worker-1")
	require.NoError(t, w.Tick(ctx, instanceID))

	ok := projection.WaitForProjection(ctx, db, nil, users.Name, instanceID, events[0].Position, time.Second)
	require.True(t, ok)
}
