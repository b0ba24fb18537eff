// SPDX-License-Identifier: Apache-2.0

// Package streams implements the per-connection stream-id aggregation
// described in §3 and §4.4: IncomingStream accumulates a request or response
// as HEADERS/DATA/FINISHED events arrive; OutgoingStream buffers bytes the
// transport has not yet accepted under flow-control backpressure.
package streams

import "bytes"

// HeaderInfoKey is the custom header carrying an opaque embedder string
// (§6's "quicsend-header-info").
const HeaderInfoKey = "quicsend-header-info"

// Incoming aggregates one stream's header/body/fin sequence from the first
// HEADERS event to FINISHED, at which point it is extracted from the
// Registry and handed to the Mailbox as an event (§3).
type Incoming struct {
	StreamID uint64

	// Request fields (meaningful when this is a request).
	Method string
	Path   string

	// Response fields (meaningful when this is a response).
	Status int

	Authorization string
	ContentType   string
	HeaderInfo    string

	body bytes.Buffer
}

// NewIncoming creates an empty, in-progress stream aggregation.
func NewIncoming(streamID uint64) *Incoming {
	return &Incoming{StreamID: streamID}
}

// OnHeader updates the appropriate slot for a single header seen in a
// HEADERS event (§4.4's ingress processing).
func (s *Incoming) OnHeader(name, value string) {
	switch name {
	case ":method":
		s.Method = value
	case ":path":
		s.Path = value
	case ":status":
		// quic-go/http3 surfaces :status as an int on the response already;
		// this slot exists for transports that hand it back as a header.
	case "authorization":
		s.Authorization = value
	case "content-type":
		s.ContentType = value
	case HeaderInfoKey:
		s.HeaderInfo = value
	}
}

// OnData appends a body chunk (§4.4's DATA handling).
func (s *Incoming) OnData(p []byte) {
	s.body.Write(p)
}

// Body returns the accumulated, append-only body buffer. The returned slice
// aliases internal storage and must not be retained past the stream's
// extraction from the Registry.
func (s *Incoming) Body() []byte {
	return s.body.Bytes()
}

// BodyLen reports the number of body bytes accumulated so far.
func (s *Incoming) BodyLen() int {
	return s.body.Len()
}
