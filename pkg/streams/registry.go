// SPDX-License-Identifier: Apache-2.0

package streams

import "sync"

// Registry is the per-connection map of stream id to incoming/outgoing
// stream state (§2's StreamRegistry, §3's invariant "at most one
// IncomingStream and one OutgoingStream per stream-id per connection at any
// time"). It is guarded independently of Connection's own mutex so
// StreamRegistry stays a leaf component reusable from tests without pulling
// in the whole engine.
type Registry struct {
	mu       sync.Mutex
	incoming map[uint64]*Incoming
	outgoing map[uint64]*Outgoing
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		incoming: make(map[uint64]*Incoming),
		outgoing: make(map[uint64]*Outgoing),
	}
}

// GetOrCreateIncoming returns the existing IncomingStream for id, or creates
// and stores a new one.
func (r *Registry) GetOrCreateIncoming(id uint64) *Incoming {
	r.mu.Lock()
	defer r.mu.Unlock()

	if s, ok := r.incoming[id]; ok {
		return s
	}
	s := NewIncoming(id)
	r.incoming[id] = s
	return s
}

// TakeIncoming removes and returns the IncomingStream for id, if any. Called
// on FINISHED, when the stream is extracted and handed to the Mailbox (§4.4).
func (r *Registry) TakeIncoming(id uint64) (*Incoming, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.incoming[id]
	if ok {
		delete(r.incoming, id)
	}
	return s, ok
}

// DropIncoming removes an IncomingStream without returning it, used on RESET
// (§4.4).
func (r *Registry) DropIncoming(id uint64) {
	r.mu.Lock()
	delete(r.incoming, id)
	r.mu.Unlock()
}

// SetOutgoing stores o, replacing any previous OutgoingStream for the same
// id.
func (r *Registry) SetOutgoing(o *Outgoing) {
	r.mu.Lock()
	r.outgoing[o.StreamID] = o
	r.mu.Unlock()
}

// GetOutgoing returns the OutgoingStream for id, if one exists — its
// presence implies the transport previously refused some remainder (§3).
func (r *Registry) GetOutgoing(id uint64) (*Outgoing, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	o, ok := r.outgoing[id]
	return o, ok
}

// RemoveOutgoing deletes the OutgoingStream for id once its remainder plus
// FIN have both been accepted.
func (r *Registry) RemoveOutgoing(id uint64) {
	r.mu.Lock()
	delete(r.outgoing, id)
	r.mu.Unlock()
}

// OutgoingIDs returns a snapshot of stream ids with pending outgoing data, in
// no particular order. Connection.Close uses it to report streams that still
// hold unsent bytes at teardown.
func (r *Registry) OutgoingIDs() []uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()

	ids := make([]uint64, 0, len(r.outgoing))
	for id := range r.outgoing {
		ids = append(ids, id)
	}
	return ids
}
