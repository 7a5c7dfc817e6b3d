// Package evtpg is the Postgres-backed evt.Store. It keeps the teacher's
// qrypgx.Open/WithTx shape (a connection pool plus a small transaction
// helper) but ports it from the pgx v3 ConnPool API the teacher used to the
// pgx/v5 pgxpool API the rest of the retrieved pack (louisbranch-fracturing.space,
// yungbote-neurobridge-backend) uses.
package evtpg

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ledgerid/core/corelog"
	"github.com/ledgerid/core/evt"
	"github.com/ledgerid/core/ierr"
)

// Store is a Postgres-backed evt.Store.
type Store struct {
	pool     *pgxpool.Pool
	log      corelog.Logger
	notifier *evt.Notifier
}

// Open parses dsn, builds a bounded connection pool and verifies
// connectivity with a trivial round trip, mirroring the teacher's
// qrypgx.Open (parse DSN, build pool, `SELECT 1`).
func Open(ctx context.Context, dsn string, maxConns int32, log corelog.Logger, notifier *evt.Notifier) (*Store, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, ierr.Wrap(ierr.Fatal, err, "parsing postgres dsn")
	}
	if maxConns > 0 {
		cfg.MaxConns = maxConns
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, ierr.Wrap(ierr.TransientStorage, err, "creating postgres pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, ierr.Wrap(ierr.TransientStorage, err, "opening first postgres connection")
	}
	if log == nil {
		log = corelog.Discard{}
	}
	return &Store{pool: pool, log: log, notifier: notifier}, nil
}

// Close releases the pool.
func (s *Store) Close() { s.pool.Close() }

// withTx runs fn inside a transaction, committing on success and rolling
// back on any error or panic — the teacher's WithTx(db, f) idiom.
func (s *Store) withTx(ctx context.Context, fn func(pgx.Tx) error) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return ierr.Wrap(ierr.TransientStorage, err, "beginning transaction")
	}
	defer tx.Rollback(ctx)
	if err := fn(tx); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

// Push implements the append algorithm of §4.1: per-aggregate row lock,
// expected-sequence check, sequence/position assignment, event insert and
// unique-constraint reservation, all inside one transaction.
func (s *Store) Push(ctx context.Context, commandID string, writes []evt.Write) ([]*evt.Event, error) {
	if len(writes) == 0 {
		return nil, nil
	}
	var out []*evt.Event
	err := s.withTx(ctx, func(tx pgx.Tx) error {
		out = nil
		perAggregateNext := make(map[string]int64, len(writes))
		for _, w := range writes {
			k := aggKeyOf(w)
			cur, ok := perAggregateNext[k]
			if !ok {
				var err error
				cur, err = lockAggregateSequence(ctx, tx, w.InstanceID, w.AggregateType, w.AggregateID)
				if err != nil {
					return err
				}
			}
			if w.ExpectedSequence != nil && *w.ExpectedSequence != cur {
				return ierr.New(ierr.ConcurrencyConflict, "aggregate sequence mismatch").
					WithCommand(commandID).WithAggregate(w.InstanceID, w.AggregateType, w.AggregateID)
			}
			perAggregateNext[k] = cur + 1
		}

		now := time.Now().UTC()
		// Assign sequences in submission order per aggregate: perAggregateNext
		// currently holds each aggregate's sequence *after* the whole batch;
		// rewind it to the first sequence number this aggregate's writes use.
		nextSeq := make(map[string]int64, len(writes))
		for k, v := range perAggregateNext {
			nextSeq[k] = v - countWritesFor(writes, k) + 1
		}
		for _, w := range writes {
			k := aggKeyOf(w)
			seq := nextSeq[k]
			nextSeq[k] = seq + 1

			var position int64
			payload := w.Payload
			if payload == nil {
				payload = []byte("null")
			}
			// position comes from the events table's own nextval default: a
			// transaction can draw a lower position than one that started
			// later but commits first, so a concurrent reader can transiently
			// observe positions out of commit order. Strict monotonicity of
			// the sequence itself still holds; see SPEC_FULL.md's Open
			// Question resolution for why this gap is accepted.
			row := tx.QueryRow(ctx, `
				INSERT INTO events (
					sequence, instance_id, aggregate_type, aggregate_id, aggregate_version,
					event_type, payload, editor_user, editor_service, resource_owner,
					created_at, command_id
				) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)
				RETURNING position`,
				seq, w.InstanceID, w.AggregateType, w.AggregateID, w.AggregateVersion,
				w.EventType, payload, w.EditorUser, w.EditorService, w.ResourceOwner,
				now, commandID,
			)
			if err := row.Scan(&position); err != nil {
				if isUniqueViolation(err) {
					// Two concurrent first commands for the same brand-new
					// aggregate both pass the sequence check above (there is
					// no row yet for FOR UPDATE to lock) and race to insert
					// sequence=1; the loser trips the (instance_id,
					// aggregate_type, aggregate_id, sequence) unique index.
					// Report it the same way a stale ExpectedSequence would,
					// so the command engine's transparent retry applies.
					return ierr.New(ierr.ConcurrencyConflict, "aggregate sequence race on insert").
						WithCommand(commandID).WithAggregate(w.InstanceID, w.AggregateType, w.AggregateID)
				}
				return ierr.Wrap(ierr.TransientStorage, err, "inserting event")
			}
			for _, op := range w.UniqueOps {
				if err := applyUniqueOp(ctx, tx, w.InstanceID, op, commandID); err != nil {
					return err
				}
			}
			out = append(out, &evt.Event{
				Position:         position,
				Sequence:         seq,
				InstanceID:       w.InstanceID,
				AggregateType:    w.AggregateType,
				AggregateID:      w.AggregateID,
				AggregateVersion: w.AggregateVersion,
				EventType:        w.EventType,
				Payload:          payload,
				EditorUser:       w.EditorUser,
				EditorService:    w.EditorService,
				ResourceOwner:    w.ResourceOwner,
				CreatedAt:        now,
				CommandID:        commandID,
			})
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if s.notifier != nil && len(out) > 0 {
		last := out[len(out)-1]
		s.notifier.Announce(last.InstanceID, last.Position)
	}
	return out, nil
}

// lockAggregateSequence takes a row lock on the aggregate's latest event
// and returns its sequence, or 0 if the aggregate has no events yet. This
// is the per-aggregate serialization point of §5. Postgres rejects
// `FOR UPDATE` combined with an aggregate function (MAX), so the latest row
// is selected by ORDER BY ... LIMIT 1 and the "no events yet" case is
// handled as an empty result rather than by COALESCE.
func lockAggregateSequence(ctx context.Context, tx pgx.Tx, instanceID, aggregateType, aggregateID string) (int64, error) {
	var seq int64
	err := tx.QueryRow(ctx, `
		SELECT sequence FROM events
		WHERE instance_id = $1 AND aggregate_type = $2 AND aggregate_id = $3
		ORDER BY sequence DESC LIMIT 1
		FOR UPDATE`,
		instanceID, aggregateType, aggregateID,
	).Scan(&seq)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, ierr.Wrap(ierr.TransientStorage, err, "locking aggregate sequence")
	}
	return seq, nil
}

func applyUniqueOp(ctx context.Context, tx pgx.Tx, instanceID string, op evt.UniqueOp, commandID string) error {
	field := op.Field
	if op.CaseInsensitive {
		field = strings.ToLower(field)
	}
	if op.Add {
		_, err := tx.Exec(ctx, `
			INSERT INTO unique_constraints (instance_id, unique_type, unique_field)
			VALUES ($1, $2, $3)`, instanceID, op.Type, field)
		if err != nil {
			if isUniqueViolation(err) {
				msg := op.ErrorMessage
				if msg == "" {
					msg = fmt.Sprintf("%s %q already reserved", op.Type, field)
				}
				return ierr.New(ierr.UniqueConstraintViolation, msg).WithCommand(commandID)
			}
			return ierr.Wrap(ierr.TransientStorage, err, "reserving unique constraint")
		}
		return nil
	}
	_, err := tx.Exec(ctx, `
		DELETE FROM unique_constraints WHERE instance_id = $1 AND unique_type = $2 AND unique_field = $3`,
		instanceID, op.Type, field)
	if err != nil {
		return ierr.Wrap(ierr.TransientStorage, err, "releasing unique constraint")
	}
	return nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

func aggKeyOf(w evt.Write) string {
	return w.InstanceID + "\x00" + w.AggregateType + "\x00" + w.AggregateID
}

// countWritesFor counts how many writes in the batch target the same
// aggregate as key k, used to back-compute the first sequence number for
// that aggregate within the batch.
func countWritesFor(writes []evt.Write, k string) int64 {
	var n int64
	for _, w := range writes {
		if aggKeyOf(w) == k {
			n++
		}
	}
	return n
}

func (s *Store) Query(ctx context.Context, filter evt.Filter) ([]*evt.Event, error) {
	q, args := buildQuery(filter)
	rows, err := s.pool.Query(ctx, q, args...)
	if err != nil {
		return nil, ierr.Wrap(ierr.TransientStorage, err, "querying events")
	}
	defer rows.Close()
	return scanEvents(rows)
}

func (s *Store) Stream(ctx context.Context, filter evt.Filter, follow bool) <-chan evt.StreamItem {
	out := make(chan evt.StreamItem, 64)
	go func() {
		defer close(out)
		cursor := filter.FromPosition
		for {
			batchFilter := filter
			batchFilter.FromPosition = cursor
			batchFilter.Desc = false
			events, err := s.Query(ctx, batchFilter)
			if err != nil {
				select {
				case out <- evt.StreamItem{Err: err}:
				case <-ctx.Done():
				}
				return
			}
			for _, ev := range events {
				select {
				case out <- evt.StreamItem{Event: ev}:
					cursor = ev.Position + 1
				case <-ctx.Done():
					return
				}
			}
			if !follow {
				return
			}
			if len(events) == 0 {
				select {
				case <-time.After(200 * time.Millisecond):
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out
}

func (s *Store) LatestPosition(ctx context.Context, instanceID string) (int64, error) {
	var pos int64
	var err error
	if instanceID == "" {
		err = s.pool.QueryRow(ctx, `SELECT COALESCE(MAX(position), 0) FROM events`).Scan(&pos)
	} else {
		err = s.pool.QueryRow(ctx, `SELECT COALESCE(MAX(position), 0) FROM events WHERE instance_id = $1`, instanceID).Scan(&pos)
	}
	if err != nil {
		return 0, ierr.Wrap(ierr.TransientStorage, err, "reading latest position")
	}
	return pos, nil
}
