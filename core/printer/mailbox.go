package printer

import (
	"context"
	"errors"
	"sync"
)

// Mailbox is the single-slot handoff between the delivery goroutine and the
// caller blocked in a reply-awaiting publish. The protocol carries no
// correlation id, so at most one call may await a reply at a time; Acquire
// enforces that instead of risking a misdelivered reply.
type Mailbox struct {
	mu      sync.Mutex
	waiting bool
	slot    chan Reply
	done    chan struct{}
	closed  bool
}

func NewMailbox() *Mailbox {
	return &Mailbox{
		slot: make(chan Reply, 1),
		done: make(chan struct{}),
	}
}

// Acquire reserves the reply slot for one call. It fails with ErrCallPending
// while another call holds it, and with ErrSessionClosed after Close.
func (m *Mailbox) Acquire() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrSessionClosed
	}
	if m.waiting {
		return ErrCallPending
	}
	m.waiting = true
	return nil
}

// Release frees the slot for the next call. A reply that raced in while the
// caller was giving up is discarded here: it belongs to the abandoned call and
// must never be handed to the next one.
func (m *Mailbox) Release() {
	m.mu.Lock()
	m.waiting = false
	select {
	case <-m.slot:
	default:
	}
	m.mu.Unlock()
}

// Wait blocks until a reply is delivered, the context expires, or the mailbox
// is closed. The caller must hold the slot via Acquire. Context expiry maps
// to ErrReplyTimeout so device silence is distinguishable from teardown.
func (m *Mailbox) Wait(ctx context.Context) (Reply, error) {
	defer m.Release()
	select {
	case r := <-m.slot:
		return r, nil
	case <-ctx.Done():
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, ErrReplyTimeout
		}
		return nil, ctx.Err()
	case <-m.done:
		return nil, ErrSessionClosed
	}
}

// Deliver hands a reply to the waiting call. It reports false when no call is
// pending; such replies are unsolicited and the router logs them instead of
// stashing them for a future call.
func (m *Mailbox) Deliver(r Reply) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.waiting || m.closed {
		return false
	}
	select {
	case m.slot <- r:
		return true
	default:
		return false
	}
}

// Close unblocks any waiter and rejects future calls. Idempotent.
func (m *Mailbox) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return
	}
	m.closed = true
	close(m.done)
}
