package evt

import (
	"context"
	"time"

	"github.com/ledgerid/core/hub"
)

// Notifier lets a Store publisher announce "instance I has advanced past
// position P" and lets callers (chiefly projection.WaitForProjection) block
// until that happens instead of busy-polling the database. It is the
// adaptation of the teacher's evt/subs.go Subscribers/Bcast idiom to the
// spec's position-based ordering instead of time-based revisions.
type Notifier struct {
	bus *hub.Bus
}

// NewNotifier returns a ready Notifier.
func NewNotifier() *Notifier {
	return &Notifier{bus: hub.NewBus()}
}

// Announce publishes that instanceID has committed events up to position.
// A Store implementation calls this once per successful Push.
func (n *Notifier) Announce(instanceID string, position int64) {
	n.bus.Publish(&hub.Msg{Subj: instanceID, Data: position})
}

// Await blocks until instanceID has been announced at a position >= at, ctx
// is done, or the deadline elapses — whichever comes first. It returns true
// only in the first case. Callers should still re-check the authoritative
// position record after Await returns false, since Announce is
// best-effort (a slow subscriber can miss a notification if its channel is
// full): Await is a latency optimization, not the source of truth.
func (n *Notifier) Await(ctx context.Context, instanceID string, at int64, deadline time.Duration) bool {
	ch := make(chan *hub.Msg, 8)
	conn := hub.NewChanConn(hub.NextID(), ch)
	n.bus.Add(instanceID, conn)
	defer n.bus.Remove(instanceID, conn)

	timer := time.NewTimer(deadline)
	defer timer.Stop()
	for {
		select {
		case msg := <-ch:
			if pos, ok := msg.Data.(int64); ok && pos >= at {
				return true
			}
		case <-timer.C:
			return false
		case <-ctx.Done():
			return false
		}
	}
}
