package projection

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/ledgerid/core/corelog"
	"github.com/ledgerid/core/evt"
)

// Config tunes one Worker's timing; callers typically derive these from
// coreconfig.Config.
type Config struct {
	BatchSize   int
	LockTTL     time.Duration
	MaxRetries  int
	BaseBackoff time.Duration
	MaxBackoff  time.Duration
}

// Worker runs the per-(projection, instance) loop of §4.4 for one
// Definition. A process typically owns many Workers, one per registered
// Definition, driven by a Supervisor across the instances it serves.
type Worker struct {
	Def      Definition
	Store    evt.Store
	DB       *gorm.DB
	Notifier *evt.Notifier
	Log      corelog.Logger
	WorkerID string
	Config   Config
}

// NewWorker returns a Worker with the spec's default tuning.
func NewWorker(def Definition, store evt.Store, db *gorm.DB, notifier *evt.Notifier, log corelog.Logger, workerID string) *Worker {
	if log == nil {
		log = corelog.Discard{}
	}
	return &Worker{
		Def: def, Store: store, DB: db, Notifier: notifier, Log: log, WorkerID: workerID,
		Config: Config{
			BatchSize: 200, LockTTL: 30 * time.Second,
			MaxRetries: 10, BaseBackoff: 500 * time.Millisecond, MaxBackoff: 5 * time.Minute,
		},
	}
}

// Tick runs one iteration of the worker loop for instanceID: acquire lock,
// retry any due failed events, process a bounded batch of new events,
// release the lock. Returns nil (not an error) when the lock is held by
// another worker — that is the ordinary "skip this tick" outcome (§4.4
// step 1), not a failure.
func (w *Worker) Tick(ctx context.Context, instanceID string) error {
	acquired, err := tryAcquireLock(ctx, w.DB, w.Def.Name(), instanceID, w.WorkerID, w.Config.LockTTL)
	if err != nil {
		return err
	}
	if !acquired {
		return nil
	}
	defer func() {
		if err := releaseLock(ctx, w.DB, w.Def.Name(), instanceID, w.WorkerID); err != nil {
			w.Log.Error("releasing projection lock", err, "projection", w.Def.Name(), "instance_id", instanceID)
		}
	}()

	// renewIfDue extends the lock's TTL window once we're past its
	// halfway point (§4.4 step 5), so a batch of slow handler transactions
	// can't outlive the TTL and have the lock stolen mid-tick.
	lastRenew := time.Now()
	renewIfDue := func() {
		if time.Since(lastRenew) < w.Config.LockTTL/2 {
			return
		}
		if err := renewLock(ctx, w.DB, w.Def.Name(), instanceID, w.WorkerID, w.Config.LockTTL); err != nil {
			w.Log.Error("renewing projection lock", err, "projection", w.Def.Name(), "instance_id", instanceID)
			return
		}
		lastRenew = time.Now()
	}

	halted, err := w.retryFailedEvents(ctx, instanceID, renewIfDue)
	if err != nil {
		return err
	}
	if halted {
		return nil
	}

	last, err := lastProcessedPosition(ctx, w.DB, w.Def.Name(), instanceID)
	if err != nil {
		return err
	}
	events, err := w.Store.Query(ctx, filterOf(w.Def, instanceID, last, w.Config.BatchSize))
	if err != nil {
		return err
	}

	for _, ev := range events {
		renewIfDue()
		ok, err := w.applyOne(ctx, ev)
		if err != nil {
			return err
		}
		if !ok && w.Def.StrictOrder() {
			// Halt: the poisoned event blocks the tail until resolved.
			return nil
		}
	}
	if len(events) > 0 && w.Notifier != nil {
		w.Notifier.Announce(instanceID, events[len(events)-1].Position)
	}
	return nil
}

// applyOne runs the handler for ev inside its own transaction, advancing
// the position record and clearing any prior failure on success, or
// recording the failure (never dropping it) on error. The bool return is
// false on handler failure, so callers can decide whether to halt.
func (w *Worker) applyOne(ctx context.Context, ev *evt.Event) (bool, error) {
	txErr := w.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := w.Def.Reduce(ctx, tx, ev); err != nil {
			return err
		}
		if err := advancePosition(ctx, tx, w.Def.Name(), ev.InstanceID, ev.Position); err != nil {
			return err
		}
		return clearFailedEvent(ctx, tx, w.Def.Name(), ev.Sequence, ev.InstanceID)
	})
	if txErr == nil {
		return true, nil
	}
	w.Log.Error("projection handler failed", txErr,
		"projection", w.Def.Name(), "event_type", ev.EventType, "aggregate_id", ev.AggregateID, "sequence", ev.Sequence)
	if err := recordFailure(ctx, w.DB, w.Def.Name(), ev.Sequence, ev.InstanceID, ev.EventType, ev.AggregateType, ev.AggregateID, txErr.Error()); err != nil {
		return false, err
	}
	return false, nil
}

// retryFailedEvents re-attempts every outstanding failed event whose
// backoff has elapsed and whose failure_count has not reached the
// quarantine cap. In strict-order mode the first still-unresolved failure
// halts the tick entirely (halted=true); in best-effort mode it just moves
// on, leaving unresolved ones for the next tick or resolve_failed_event.
func (w *Worker) retryFailedEvents(ctx context.Context, instanceID string, renewIfDue func()) (halted bool, err error) {
	rows, err := listFailedEvents(ctx, w.DB, w.Def.Name(), instanceID)
	if err != nil {
		return false, err
	}
	now := time.Now().UTC()
	for _, row := range rows {
		renewIfDue()
		if row.FailureCount >= w.Config.MaxRetries {
			if w.Def.StrictOrder() {
				return true, nil // quarantined: needs resolve_failed_event
			}
			continue
		}
		if now.Before(row.LastFailedAt.Add(w.backoffFor(row.FailureCount))) {
			if w.Def.StrictOrder() {
				return true, nil
			}
			continue
		}
		ev, err := w.findEvent(ctx, instanceID, row.AggregateID, row.FailedSequence)
		if err != nil {
			return false, err
		}
		if ev == nil {
			// The event no longer matches the subscription or was purged;
			// nothing left to retry, drop the bookkeeping row.
			if err := clearFailedEvent(ctx, w.DB, w.Def.Name(), row.FailedSequence, instanceID); err != nil {
				return false, err
			}
			continue
		}
		ok, err := w.applyOne(ctx, ev)
		if err != nil {
			return false, err
		}
		if !ok && w.Def.StrictOrder() {
			return true, nil
		}
	}
	return false, nil
}

func (w *Worker) backoffFor(failureCount int) time.Duration {
	d := w.Config.BaseBackoff
	for i := 0; i < failureCount && d < w.Config.MaxBackoff; i++ {
		d *= 2
	}
	if d > w.Config.MaxBackoff {
		d = w.Config.MaxBackoff
	}
	return d
}

func (w *Worker) findEvent(ctx context.Context, instanceID, aggregateID string, sequence int64) (*evt.Event, error) {
	events, err := w.Store.Query(ctx, evt.Filter{
		InstanceIDs:  []string{instanceID},
		AggregateIDs: []string{aggregateID},
	})
	if err != nil {
		return nil, err
	}
	for _, ev := range events {
		if ev.Sequence == sequence {
			return ev, nil
		}
	}
	return nil, nil
}

// ResolveFailedEvent implements the operator operation named in §4.4:
// either re-attempt the event with the current handler, or mark it
// permanently skipped.
func (w *Worker) ResolveFailedEvent(ctx context.Context, instanceID string, sequence int64, retry bool) error {
	if !retry {
		return markSkipped(ctx, w.DB, w.Def.Name(), sequence, instanceID)
	}
	rows, err := listFailedEvents(ctx, w.DB, w.Def.Name(), instanceID)
	if err != nil {
		return err
	}
	for _, row := range rows {
		if row.FailedSequence != sequence {
			continue
		}
		ev, err := w.findEvent(ctx, instanceID, row.AggregateID, sequence)
		if err != nil {
			return err
		}
		if ev == nil {
			return fmt.Errorf("event for failed sequence %d not found", sequence)
		}
		_, err = w.applyOne(ctx, ev)
		return err
	}
	return fmt.Errorf("no failed event recorded at sequence %d for projection %s", sequence, w.Def.Name())
}
