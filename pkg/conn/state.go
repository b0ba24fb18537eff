// SPDX-License-Identifier: Apache-2.0

// Package conn implements the Connection type from §4.4: one QUIC+HTTP/3
// session, its handshake/ingress/egress lifecycle, flow-control-aware send
// queuing, bearer-token authorization, and peer-certificate pinning. It sits
// directly on top of github.com/quic-go/quic-go and quic-go/http3, which
// between them provide everything §1 lists as out of scope: packet parsing,
// the QUIC crypto handshake, congestion control, and QPACK.
package conn

import "sync/atomic"

// State is the connection lifecycle from §4.4's state machine diagram.
type State int32

const (
	Handshaking State = iota
	Established
	Closing
	Closed
)

func (s State) String() string {
	switch s {
	case Handshaking:
		return "handshaking"
	case Established:
		return "established"
	case Closing:
		return "closing"
	case Closed:
		return "closed"
	default:
		return "unknown"
	}
}

// stateBox wraps atomic access to a State value.
type stateBox struct {
	v atomic.Int32
}

func (b *stateBox) load() State   { return State(b.v.Load()) }
func (b *stateBox) store(s State) { b.v.Store(int32(s)) }
func (b *stateBox) cas(old, next State) bool {
	return b.v.CompareAndSwap(int32(old), int32(next))
}
