package base

import (
	"sync/atomic"
	"time"

	"github.com/ValentinKolb/ibgw/lib/market"
	"github.com/ValentinKolb/ibgw/rpc/common"
	"github.com/puzpuzpuz/xsync/v3"
)

// pendingEntry is one outstanding request. done is buffered with capacity one and
// receives at most one envelope: whoever removes the entry from the registry first
// owns the right to complete it.
type pendingEntry struct {
	id        int32
	kind      common.IncomingKind
	scoped    bool
	done      chan common.Envelope
	createdAt time.Time

	// values accumulates streamed account values of a scoped entry, only touched by the pump
	values []market.AccountValue
}

// correlator maps request ids to the callers waiting for them
type correlator struct {
	pending *xsync.MapOf[int32, *pendingEntry]
	// scoped holds the id of the outstanding request per completing kind for kinds
	// whose completing message does not echo the request id
	scoped *xsync.MapOf[common.IncomingKind, int32]
	closed atomic.Bool
}

func newCorrelator() *correlator {
	return &correlator{
		pending: xsync.NewMapOf[int32, *pendingEntry](),
		scoped:  xsync.NewMapOf[common.IncomingKind, int32](),
	}
}

// register adds a pending entry for id
func (c *correlator) register(id int32, kind common.IncomingKind) (*pendingEntry, error) {
	return c.store(&pendingEntry{
		id:        id,
		kind:      kind,
		done:      make(chan common.Envelope, 1),
		createdAt: time.Now(),
	})
}

// registerScoped adds a pending entry for id and claims the slot of kind.
// Only one scoped request per kind can be outstanding.
func (c *correlator) registerScoped(id int32, kind common.IncomingKind) (*pendingEntry, error) {
	if _, loaded := c.scoped.LoadOrStore(kind, id); loaded {
		return nil, common.ErrKindBusy
	}

	e, err := c.store(&pendingEntry{
		id:        id,
		kind:      kind,
		scoped:    true,
		done:      make(chan common.Envelope, 1),
		createdAt: time.Now(),
	})
	if err != nil {
		c.releaseSlot(kind, id)
		return nil, err
	}
	return e, nil
}

func (c *correlator) store(e *pendingEntry) (*pendingEntry, error) {
	if c.closed.Load() {
		return nil, common.ErrDisconnected
	}
	if _, loaded := c.pending.LoadOrStore(e.id, e); loaded {
		return nil, common.ErrDuplicateRequestID
	}

	// drainWith may have run between the check above and the store
	if c.closed.Load() {
		c.pending.Delete(e.id)
		return nil, common.ErrDisconnected
	}
	return e, nil
}

// resolve completes the entry of id. It returns false if no entry is pending,
// i.e. the id is unknown, already resolved or cancelled.
func (c *correlator) resolve(id int32, env common.Envelope) bool {
	e, ok := c.pending.LoadAndDelete(id)
	if !ok {
		return false
	}
	if e.scoped {
		c.releaseSlot(e.kind, id)
	}
	e.done <- env
	return true
}

// resolveScoped completes the outstanding scoped request of kind.
// build receives the entry so accumulated values can be attached.
func (c *correlator) resolveScoped(kind common.IncomingKind, build func(e *pendingEntry) common.Envelope) bool {
	id, ok := c.scoped.Load(kind)
	if !ok {
		return false
	}
	// the slot is claimed before the entry is stored, an end arriving in between
	// belongs to an earlier request and must not free the slot
	e, ok := c.pending.Load(id)
	if !ok {
		return false
	}
	return c.resolve(id, build(e))
}

// appendScoped adds a streamed value to the outstanding scoped request of kind
func (c *correlator) appendScoped(kind common.IncomingKind, value market.AccountValue) bool {
	id, ok := c.scoped.Load(kind)
	if !ok {
		return false
	}
	e, ok := c.pending.Load(id)
	if !ok {
		return false
	}
	e.values = append(e.values, value)
	return true
}

// lookup returns the pending entry of id without removing it
func (c *correlator) lookup(id int32) (*pendingEntry, bool) {
	return c.pending.Load(id)
}

// cancel removes the entry of id without completing it. Exactly one of cancel and
// resolve succeeds for an id.
func (c *correlator) cancel(id int32) bool {
	e, ok := c.pending.LoadAndDelete(id)
	if !ok {
		return false
	}
	if e.scoped {
		c.releaseSlot(e.kind, id)
	}
	return true
}

// drainWith marks the correlator closed and completes every pending entry with the
// error returned by errFn. It returns the number of completed entries.
func (c *correlator) drainWith(errFn func(id int32) error) int {
	c.closed.Store(true)

	n := 0
	c.pending.Range(func(id int32, _ *pendingEntry) bool {
		if e, ok := c.pending.LoadAndDelete(id); ok {
			e.done <- common.Envelope{Err: errFn(id)}
			n++
		}
		return true
	})
	c.scoped.Clear()
	return n
}

// size returns the number of pending entries
func (c *correlator) size() int {
	return c.pending.Size()
}

// oldest returns the age of the oldest pending entry
func (c *correlator) oldest() time.Duration {
	var oldest time.Time
	c.pending.Range(func(_ int32, e *pendingEntry) bool {
		if oldest.IsZero() || e.createdAt.Before(oldest) {
			oldest = e.createdAt
		}
		return true
	})
	if oldest.IsZero() {
		return 0
	}
	return time.Since(oldest)
}

// releaseSlot frees the slot of kind if it is still held by id
func (c *correlator) releaseSlot(kind common.IncomingKind, id int32) {
	c.scoped.Compute(kind, func(old int32, loaded bool) (int32, bool) {
		return old, !loaded || old == id
	})
}
