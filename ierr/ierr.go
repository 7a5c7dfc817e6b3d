// Package ierr defines the typed error taxonomy shared by every core
// component (event store, command engine, projection engine, query façade).
package ierr

import (
	"fmt"

	"github.com/pkg/errors"
)

// Kind classifies an Error the way the core's callers are expected to
// branch on: never by string-matching a message.
type Kind int

const (
	// Unknown is never constructed directly; it signals a bug in the core
	// if it ever crosses a component boundary.
	Unknown Kind = iota
	// Validation marks malformed command input. Never retried.
	Validation
	// PreconditionFailed marks a business rule or FSM-forbidden transition.
	PreconditionFailed
	// ConcurrencyConflict marks a stale write-model detected during append.
	ConcurrencyConflict
	// UniqueConstraintViolation marks a cross-aggregate uniqueness clash.
	UniqueConstraintViolation
	// NotFound marks an absent query target.
	NotFound
	// TransientStorage marks a retryable database failure.
	TransientStorage
	// HandlerFailure marks a projection handler error for a specific event.
	HandlerFailure
	// Fatal marks a broken structural invariant requiring operator action.
	Fatal
)

func (k Kind) String() string {
	switch k {
	case Validation:
		return "validation"
	case PreconditionFailed:
		return "precondition_failed"
	case ConcurrencyConflict:
		return "concurrency_conflict"
	case UniqueConstraintViolation:
		return "unique_constraint_violation"
	case NotFound:
		return "not_found"
	case TransientStorage:
		return "transient_storage"
	case HandlerFailure:
		return "handler_failure"
	case Fatal:
		return "fatal"
	default:
		return "unknown"
	}
}

// Error is the typed error every core component returns across its public
// boundary. It always carries a Kind, a human message and, where
// applicable, the command id and the aggregate/event coordinates involved.
type Error struct {
	Kind          Kind
	Message       string
	CommandID     string
	InstanceID    string
	AggregateType string
	AggregateID   string
	EventType     string
	cause         error
}

func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.cause }

// Is reports whether target is an *Error with the same Kind, so callers
// can do `errors.Is(err, ierr.New(ierr.NotFound, ""))` or, more idiomatically,
// use the Kind-specific helpers below.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Kind == t.Kind
}

// New builds a bare Error of the given kind.
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Wrap builds an Error of the given kind that preserves cause in its chain,
// with a stack trace recorded at this call (errors.WithStack). Error()
// prints the cause with %v, without the trace; formatting the unwrapped
// cause with %+v prints it.
func Wrap(kind Kind, cause error, message string) *Error {
	return &Error{Kind: kind, Message: message, cause: errors.WithStack(cause)}
}

// WithCommand attaches a command id, mutating and returning e for chaining.
func (e *Error) WithCommand(id string) *Error { e.CommandID = id; return e }

// WithAggregate attaches aggregate coordinates.
func (e *Error) WithAggregate(instanceID, aggregateType, aggregateID string) *Error {
	e.InstanceID = instanceID
	e.AggregateType = aggregateType
	e.AggregateID = aggregateID
	return e
}

// WithEvent attaches the event type under processing.
func (e *Error) WithEvent(eventType string) *Error { e.EventType = eventType; return e }

// OfKind reports whether err is a core *Error of the given kind, unwrapping
// standard error chains along the way.
func OfKind(err error, kind Kind) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind == kind
	}
	return false
}

// Retryable reports whether the caller may safely retry the operation that
// produced err (ConcurrencyConflict is retried by the Command Engine
// itself; TransientStorage is retryable by callers on idempotent ops).
func Retryable(err error) bool {
	return OfKind(err, ConcurrencyConflict) || OfKind(err, TransientStorage)
}
