// SPDX-License-Identifier: Apache-2.0

package mailbox

import (
	"sync"
	"time"
)

// Mailbox is a FIFO of Events guarded by a mutex and condition variable
// (§4.2). Handlers run with no lock held, so embedder callbacks can never
// deadlock against the reactor thread posting new events.
type Mailbox struct {
	mu         sync.Mutex
	cond       *sync.Cond
	events     []Event
	terminated bool
}

// New returns an empty, running Mailbox.
func New() *Mailbox {
	m := &Mailbox{}
	m.cond = sync.NewCond(&m.mu)
	return m
}

// Post enqueues e and wakes one waiter. It never blocks beyond acquiring the
// mutex (§4.2). Posting after Shutdown still succeeds, but the event will
// never be drained — matching §4.2's documented post-shutdown behavior.
func (m *Mailbox) Post(e Event) {
	m.mu.Lock()
	m.events = append(m.events, e)
	m.mu.Unlock()

	m.cond.Signal()
}

// Handler is invoked once per drained event, with no lock held.
type Handler func(Event)

// Poll atomically drains all queued events under the lock, releases it, and
// invokes handler on each in post order. If the queue is empty, it waits up
// to timeout (negative means forever) or until Shutdown is called. On
// shutdown, or on an empty-after-timeout wakeup, Poll returns without
// invoking handler (§4.2).
func (m *Mailbox) Poll(handler Handler, timeout time.Duration) {
	m.mu.Lock()

	if len(m.events) == 0 && !m.terminated {
		m.waitLocked(timeout)
	}

	if m.terminated || len(m.events) == 0 {
		m.mu.Unlock()
		return
	}

	drained := m.events
	m.events = nil
	m.mu.Unlock()

	for _, e := range drained {
		handler(e)
	}
}

// waitLocked blocks on m.cond until an event is posted, Shutdown is called,
// or timeout elapses, whichever comes first. m.mu must be held on entry and
// is held on return.
func (m *Mailbox) waitLocked(timeout time.Duration) {
	if timeout < 0 {
		for len(m.events) == 0 && !m.terminated {
			m.cond.Wait()
		}
		return
	}

	done := make(chan struct{})
	deadline := time.AfterFunc(timeout, func() {
		// Taking m.mu orders the close against the waiter's done check, so
		// the Broadcast cannot land before the waiter has entered Wait.
		m.mu.Lock()
		close(done)
		m.mu.Unlock()
		m.cond.Broadcast()
	})
	defer deadline.Stop()

	for len(m.events) == 0 && !m.terminated {
		select {
		case <-done:
			return
		default:
		}
		m.cond.Wait()
	}
}

// Shutdown is idempotent: it sets a terminated flag and wakes every waiter.
// After Shutdown, Post still succeeds but posted events are never drained
// (§4.2).
func (m *Mailbox) Shutdown() {
	m.mu.Lock()
	m.terminated = true
	m.mu.Unlock()

	m.cond.Broadcast()
}

// ShuttingDown reports whether Shutdown has been called.
func (m *Mailbox) ShuttingDown() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.terminated
}
