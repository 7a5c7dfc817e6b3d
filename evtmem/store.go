// Package evtmem provides an in-memory evt.Store, the adaptation of the
// teacher's qrymem backend (a map-of-slices standing in for tables) used
// the same way here: as the fast, dependency-free backend command-engine
// and projection-engine tests run against instead of a live Postgres.
package evtmem

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/ledgerid/core/evt"
	"github.com/ledgerid/core/ierr"
)

type aggKey struct {
	instanceID    string
	aggregateType string
	aggregateID   string
}

type uniqKey struct {
	instanceID string
	uniqueType string
	field      string
}

// Store is a mutex-guarded, process-local evt.Store.
type Store struct {
	mu       sync.Mutex
	events   []*evt.Event
	seqs     map[aggKey]int64
	uniques  map[uniqKey]struct{}
	position int64
	notifier *evt.Notifier
}

// New returns an empty Store. notifier may be nil if callers never use
// wait-for-projection style blocking.
func New(notifier *evt.Notifier) *Store {
	return &Store{
		seqs:     make(map[aggKey]int64),
		uniques:  make(map[uniqKey]struct{}),
		notifier: notifier,
	}
}

func (s *Store) Push(ctx context.Context, commandID string, writes []evt.Write) ([]*evt.Event, error) {
	if len(writes) == 0 {
		return nil, nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	// Validate every write's optimistic concurrency and unique ops before
	// mutating anything, so a mid-batch failure never leaves partial state
	// — mirroring the all-or-nothing transaction in evtpg.
	perAggregateNext := make(map[aggKey]int64, len(writes))
	for _, w := range writes {
		k := aggKey{w.InstanceID, w.AggregateType, w.AggregateID}
		cur, ok := perAggregateNext[k]
		if !ok {
			cur = s.seqs[k]
		}
		if w.ExpectedSequence != nil && *w.ExpectedSequence != cur {
			return nil, ierr.New(ierr.ConcurrencyConflict, "aggregate sequence mismatch").
				WithCommand(commandID).WithAggregate(w.InstanceID, w.AggregateType, w.AggregateID)
		}
		perAggregateNext[k] = cur + 1
	}

	// pending tracks each key's held state as the batch's ops apply in
	// order, so a remove earlier in the push frees the key for a later add.
	pending := make(map[uniqKey]bool)
	for _, w := range writes {
		for _, op := range w.UniqueOps {
			field := op.Field
			if op.CaseInsensitive {
				field = lower(field)
			}
			uk := uniqKey{w.InstanceID, op.Type, field}
			held, ok := pending[uk]
			if !ok {
				_, held = s.uniques[uk]
			}
			if op.Add && held {
				msg := op.ErrorMessage
				if msg == "" {
					msg = "unique constraint already reserved"
				}
				return nil, ierr.New(ierr.UniqueConstraintViolation, msg).WithCommand(commandID)
			}
			pending[uk] = op.Add
		}
	}

	now := time.Now().UTC()
	out := make([]*evt.Event, 0, len(writes))
	for _, w := range writes {
		k := aggKey{w.InstanceID, w.AggregateType, w.AggregateID}
		next := s.seqs[k] + 1
		s.seqs[k] = next
		s.position++
		ev := &evt.Event{
			Position:         s.position,
			Sequence:         next,
			InstanceID:       w.InstanceID,
			AggregateType:    w.AggregateType,
			AggregateID:      w.AggregateID,
			AggregateVersion: w.AggregateVersion,
			EventType:        w.EventType,
			Payload:          append([]byte(nil), w.Payload...),
			EditorUser:       w.EditorUser,
			EditorService:    w.EditorService,
			ResourceOwner:    w.ResourceOwner,
			CreatedAt:        now,
			CommandID:        commandID,
		}
		for _, op := range w.UniqueOps {
			field := op.Field
			if op.CaseInsensitive {
				field = lower(field)
			}
			uk := uniqKey{w.InstanceID, op.Type, field}
			if op.Add {
				s.uniques[uk] = struct{}{}
			} else {
				delete(s.uniques, uk)
			}
		}
		s.events = append(s.events, ev)
		out = append(out, ev)
	}
	if s.notifier != nil && len(out) > 0 {
		instanceID := out[len(out)-1].InstanceID
		pos := out[len(out)-1].Position
		s.notifier.Announce(instanceID, pos)
	}
	return out, nil
}

func (s *Store) Query(ctx context.Context, filter evt.Filter) ([]*evt.Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*evt.Event
	for _, ev := range s.events {
		if filter.Matches(ev) {
			out = append(out, ev)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if filter.Desc {
			return out[i].Position > out[j].Position
		}
		return out[i].Position < out[j].Position
	})
	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[:filter.Limit]
	}
	return out, nil
}

func (s *Store) Stream(ctx context.Context, filter evt.Filter, follow bool) <-chan evt.StreamItem {
	out := make(chan evt.StreamItem, 32)
	go func() {
		defer close(out)
		// FromPosition is an inclusive lower bound (evt.Filter's contract,
		// matching evtpg's "position >= FromPosition"): start one below it
		// so the first batch's "> sent" check doesn't exclude the event
		// sitting exactly at FromPosition.
		sent := filter.FromPosition - 1
		for {
			s.mu.Lock()
			var batch []*evt.Event
			for _, ev := range s.events {
				if ev.Position > sent && filter.MatchesMembership(ev) {
					batch = append(batch, ev)
				}
			}
			s.mu.Unlock()
			sort.Slice(batch, func(i, j int) bool { return batch[i].Position < batch[j].Position })
			for _, ev := range batch {
				select {
				case out <- evt.StreamItem{Event: ev}:
					sent = ev.Position
				case <-ctx.Done():
					return
				}
			}
			if !follow {
				return
			}
			select {
			case <-time.After(20 * time.Millisecond):
			case <-ctx.Done():
				return
			}
		}
	}()
	return out
}

func (s *Store) LatestPosition(ctx context.Context, instanceID string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if instanceID == "" {
		return s.position, nil
	}
	var latest int64
	for _, ev := range s.events {
		if ev.InstanceID == instanceID && ev.Position > latest {
			latest = ev.Position
		}
	}
	return latest, nil
}

func lower(s string) string {
	b := []byte(s)
	for i, c := range b {
		if c >= 'A' && c <= 'Z' {
			b[i] = c + ('a' - 'A')
		}
	}
	return string(b)
}
