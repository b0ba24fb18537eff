// SPDX-License-Identifier: Apache-2.0

// Package mailbox implements the thread-safe, bounded-wait event queue that
// decouples the reactor/pacer goroutines from whatever goroutine the
// embedder polls from (§4.2). Its Event type follows the same
// "Sender/MessageType/payload" tagged-record shape dtn7-go's
// cla.ConvergenceStatus uses, chosen by §9's Open Question because it loses
// no data and keeps the custom quicsend-header-info header reachable.
package mailbox

import (
	"fmt"
	"net"

	"github.com/catid/quicsend/pkg/streams"
)

// Kind identifies which variant an Event carries (§3).
type Kind uint

const (
	_ Kind = iota

	// Connect reports that a Connection finished its handshake (and, on the
	// server, passed bearer-token authorization).
	Connect

	// Timeout reports that a Connection was torn down. It is terminal for
	// that connection: no further events for the same connection id follow.
	Timeout

	// Data reports a finished incoming stream, carrying either a request
	// (server-received) or a response (client-received).
	Data
)

func (k Kind) String() string {
	switch k {
	case Connect:
		return "Connect"
	case Timeout:
		return "Timeout"
	case Data:
		return "Data"
	default:
		return "Unknown"
	}
}

// Direction distinguishes a Data event carrying a request from one carrying
// a response to a request this endpoint previously sent.
type Direction uint

const (
	_ Direction = iota
	Request
	Response
)

func (d Direction) String() string {
	if d == Request {
		return "request"
	}
	return "response"
}

// ConnectionID is the 64-bit id handed to embedders (§3's "assigned_id"), not
// a raw QUIC connection id — embedders never see wire-level connection-id
// bytes.
type ConnectionID int64

// Event is the tagged record described in §3. Exactly one of the
// Kind-specific fields is meaningful for a given Kind.
type Event struct {
	Kind ConnectionEventKind
}

// ConnectionEventKind is kept as an unexported-friendly alias so callers
// construct Events only through the New* constructors below, mirroring
// dtn7-go's NewConvergence* constructor pattern.
type ConnectionEventKind struct {
	Kind         Kind
	ConnectionID ConnectionID

	// Connect
	Peer net.Addr

	// Data
	Stream    *streams.Incoming
	Direction Direction
}

// NewConnect builds a Connect event.
func NewConnect(id ConnectionID, peer net.Addr) Event {
	return Event{Kind: ConnectionEventKind{Kind: Connect, ConnectionID: id, Peer: peer}}
}

// NewTimeout builds a Timeout event.
func NewTimeout(id ConnectionID) Event {
	return Event{Kind: ConnectionEventKind{Kind: Timeout, ConnectionID: id}}
}

// NewData builds a Data event carrying a finished IncomingStream.
func NewData(id ConnectionID, stream *streams.Incoming, dir Direction) Event {
	return Event{Kind: ConnectionEventKind{
		Kind:         Data,
		ConnectionID: id,
		Stream:       stream,
		Direction:    dir,
	}}
}

func (e Event) String() string {
	k := e.Kind
	switch k.Kind {
	case Connect:
		return fmt.Sprintf("Connect{conn=%d peer=%v}", k.ConnectionID, k.Peer)
	case Timeout:
		return fmt.Sprintf("Timeout{conn=%d}", k.ConnectionID)
	case Data:
		return fmt.Sprintf("Data{conn=%d dir=%v}", k.ConnectionID, k.Direction)
	default:
		return "Event{unknown}"
	}
}
