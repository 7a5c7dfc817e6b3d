// Package hub provides the transport-agnostic connection primitives used
// by the Projection Engine's change-notification path: a Msg envelope, a
// Conn interface any in-process listener can implement, and a Bus that
// tracks live connections and lets a publisher fan a message out to all of
// them. Wire transports (websocket, gRPC streams, ...) build on top of this
// but are out of the core's scope; only the in-process registry lives here.
package hub

import (
	"sync"
	"sync/atomic"
)

// Msg is the envelope passed from a publisher to every interested Conn.
// Subj identifies what happened (evt.Notifier uses the instance id); Data carries
// whatever payload the publisher and its listeners agree on out of band —
// for the core's own use that's always a position advance notice.
type Msg struct {
	Subj string
	Data interface{}
}

// Conn is anything that can receive Msg values in-process. The hub only
// ever writes to Chan(); it never closes it — a Conn that stops listening
// must ask the Bus to Remove it.
type Conn interface {
	ID() int64
	Chan() chan<- *Msg
}

// lastID hands out unique in-process connection ids; must only be touched
// via atomic primitives.
var lastID int64

// NextID returns a new unused connection id.
func NextID() int64 { return atomic.AddInt64(&lastID, 1) }

// ChanConn is the simplest Conn: a channel wrapped with an id, suitable for
// a one-shot waiter (e.g. one call to wait_for_projection).
type ChanConn struct {
	id int64
	ch chan *Msg
}

// NewChanConn returns a ChanConn with the given id, backed by ch.
func NewChanConn(id int64, ch chan *Msg) *ChanConn { return &ChanConn{id: id, ch: ch} }

func (c *ChanConn) ID() int64         { return c.id }
func (c *ChanConn) Chan() chan<- *Msg { return c.ch }

// Bus fans a published Msg out to every registered Conn subscribed to its
// subject. It never blocks a slow subscriber against a fast one: sends are
// best-effort and dropped if the subscriber's channel is full, since the
// notification path is always paired with a position-table poll fallback
// (see projection.WaitForProjection).
type Bus struct {
	mu   sync.Mutex
	subs map[string]map[int64]Conn
}

// NewBus returns an empty Bus.
func NewBus() *Bus {
	return &Bus{subs: make(map[string]map[int64]Conn)}
}

// Add registers c to receive messages published under subj.
func (b *Bus) Add(subj string, c Conn) {
	b.mu.Lock()
	defer b.mu.Unlock()
	m := b.subs[subj]
	if m == nil {
		m = make(map[int64]Conn)
		b.subs[subj] = m
	}
	m[c.ID()] = c
}

// Remove unregisters c from subj. If subj is empty, c is removed from every
// subject it was registered under.
func (b *Bus) Remove(subj string, c Conn) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if subj != "" {
		delete(b.subs[subj], c.ID())
		return
	}
	for _, m := range b.subs {
		delete(m, c.ID())
	}
}

// Publish sends msg to every Conn currently registered under msg.Subj.
func (b *Bus) Publish(msg *Msg) {
	b.mu.Lock()
	targets := make([]Conn, 0, len(b.subs[msg.Subj]))
	for _, c := range b.subs[msg.Subj] {
		targets = append(targets, c)
	}
	b.mu.Unlock()
	for _, c := range targets {
		select {
		case c.Chan() <- msg:
		default:
		}
	}
}
