package command

import (
	"context"
	"encoding/json"
	"time"

	"github.com/cenkalti/backoff/v5"

	"github.com/ledgerid/core/authz"
	"github.com/ledgerid/core/avers"
	"github.com/ledgerid/core/corelog"
	"github.com/ledgerid/core/evt"
	"github.com/ledgerid/core/ierr"
)

// EventDraft is what a Handler produces: one event to append plus any
// unique-constraint operations that must commit atomically with it.
type EventDraft struct {
	EventType string
	Payload   interface{}
	UniqueOps []evt.UniqueOp
}

// HandlerFunc implements one command's business logic: validate cmd
// against ws and, if allowed, return the events to append. Handlers must
// be deterministic given their inputs (§4.3 step 3) and never load another
// aggregate's write-model (§9).
type HandlerFunc func(ctx context.Context, ws WriteModel, cmd Command) ([]EventDraft, error)

// Result is what Execute returns on success.
type Result struct {
	Events []*evt.Event
	State  WriteModel
	// Position is the position of the last committed event, the waited-
	// position callers thread through to wait_for_projection for
	// read-your-writes (§9).
	Position int64
}

// Engine is the Command Engine (§4.3).
type Engine struct {
	Store    evt.Store
	Registry *Registry
	Policy   authz.Policy // optional; nil skips the authorize step entirely
	Log      corelog.Logger

	RetryMax       int
	RetryBaseDelay time.Duration
}

// NewEngine returns an Engine with the spec's default retry bound (3
// attempts, §4.3 step 4) and a discard logger if none is given.
func NewEngine(store evt.Store, registry *Registry, policy authz.Policy, log corelog.Logger) *Engine {
	if log == nil {
		log = corelog.Discard{}
	}
	return &Engine{
		Store: store, Registry: registry, Policy: policy, Log: log,
		RetryMax: 3, RetryBaseDelay: 10 * time.Millisecond,
	}
}

// Execute runs the per-command procedure of §4.3: load write-model,
// authorize, validate via handler, append with optimistic concurrency,
// transparently retrying ConcurrencyConflict up to RetryMax attempts.
func (e *Engine) Execute(ctx context.Context, handler HandlerFunc, cmd Command) (*Result, error) {
	def, err := e.Registry.Get(cmd.AggregateType)
	if err != nil {
		return nil, err
	}
	if cmd.ResourceOwner == "" {
		cmd.ResourceOwner = cmd.InstanceID
	}

	if e.Policy != nil && cmd.Action != "" {
		if err := e.Policy.Allowed(cmd.Editor.Role, cmd.Action); err != nil {
			return nil, err
		}
	}

	version := avers.Compute(cmd.AggregateType, def.EventTypes)

	attempts := uint(e.RetryMax)
	if attempts < 1 {
		attempts = 1
	}
	baseDelay := e.RetryBaseDelay
	if baseDelay <= 0 {
		baseDelay = 10 * time.Millisecond
	}

	attempt := 0
	op := func() (*Result, error) {
		attempt++
		ws := def.New()
		events, err := e.Store.Query(ctx, evt.Filter{
			InstanceIDs:    []string{cmd.InstanceID},
			AggregateTypes: []string{cmd.AggregateType},
			AggregateIDs:   []string{cmd.AggregateID},
		})
		if err != nil {
			return nil, backoff.Permanent(ierr.Wrap(ierr.TransientStorage, err, "loading write-model").WithCommand(cmd.CommandID))
		}
		for _, ev := range events {
			ws.Apply(ev)
		}

		drafts, err := handler(ctx, ws, cmd)
		if err != nil {
			return nil, backoff.Permanent(err)
		}
		if len(drafts) == 0 {
			return &Result{Events: nil, State: ws, Position: 0}, nil
		}

		writes := make([]evt.Write, len(drafts))
		startSeq := ws.Sequence()
		for i, d := range drafts {
			payload, err := json.Marshal(d.Payload)
			if err != nil {
				return nil, backoff.Permanent(ierr.Wrap(ierr.Validation, err, "marshaling event payload").WithCommand(cmd.CommandID))
			}
			w := evt.Write{
				InstanceID:       cmd.InstanceID,
				AggregateType:    cmd.AggregateType,
				AggregateID:      cmd.AggregateID,
				AggregateVersion: version,
				EventType:        d.EventType,
				Payload:          payload,
				EditorUser:       cmd.Editor.UserID,
				EditorService:    cmd.Editor.ServiceID,
				ResourceOwner:    cmd.ResourceOwner,
				UniqueOps:        d.UniqueOps,
			}
			if i == 0 {
				expected := startSeq
				w.ExpectedSequence = &expected
			}
			writes[i] = w
		}

		appended, err := e.Store.Push(ctx, cmd.CommandID, writes)
		if err != nil {
			if !ierr.OfKind(err, ierr.ConcurrencyConflict) {
				return nil, backoff.Permanent(err)
			}
			e.Log.Debug("command retrying after concurrency conflict",
				"command_id", cmd.CommandID, "attempt", attempt, "aggregate_id", cmd.AggregateID)
			return nil, err
		}
		for _, ev := range appended {
			ws.Apply(ev)
		}
		return &Result{Events: appended, State: ws, Position: appended[len(appended)-1].Position}, nil
	}

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = baseDelay

	return backoff.Retry(ctx, op,
		backoff.WithBackOff(bo),
		backoff.WithMaxTries(attempts),
	)
}
