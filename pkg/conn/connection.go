// SPDX-License-Identifier: Apache-2.0

package conn

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/quic-go/quic-go"
	"github.com/quic-go/quic-go/http3"
	log "github.com/sirupsen/logrus"

	"github.com/catid/quicsend/pkg/mailbox"
	"github.com/catid/quicsend/pkg/sendpool"
	"github.com/catid/quicsend/pkg/streams"
)

// Role distinguishes which side of the handshake a Connection played,
// mirroring EndpointRouter's server/client split (§2).
type Role int

const (
	RoleServer Role = iota
	RoleClient
)

// pollInterval is how often a SendRequest waiting for a stream slot rechecks
// for teardown, and how often writeChunked retries a blocked remainder,
// matching §4.4's ~20ms flow-control retry cadence.
const pollInterval = 20 * time.Millisecond

// pendingResponse is what a blocked request handler is waiting to receive.
type pendingResponse struct {
	status  int
	headers map[string]string
	body    []byte
}

// cachedResponse is a SendResponse call that could not be delivered
// immediately because no request handler was waiting on its stream id
// (§4.4's flush_cached_responses).
type cachedResponse struct {
	streamID int64
	resp     pendingResponse
}

// Connection is one QUIC+HTTP/3 session: the handshake, the bearer-token or
// certificate-pin authorization that gates it, and the request/response
// traffic flowing over it (§4.4). It is built on quic.Connection for
// transport-level lifecycle and http3 for HEADERS/DATA framing, since both
// are provided by the third-party library this module treats as the QUIC
// wire-protocol implementation (§1).
type Connection struct {
	role       Role
	assignedID int64
	bearer     string
	pinnedCert []byte

	registry *streams.Registry
	mbox     *mailbox.Mailbox
	pool     *sendpool.Pool

	mu    sync.Mutex
	qconn quic.Connection
	rt    *http3.Transport // client only

	state     stateBox
	connected atomic.Bool
	timedOut  atomic.Bool
	closeOnce sync.Once

	streamSem   chan struct{}
	nextLocalID atomic.Int64

	pendingMu sync.Mutex
	pending   map[int64]chan pendingResponse

	cachedMu sync.Mutex
	cached   []cachedResponse
}

// NewServer wraps an already-accepted quic.Connection for the server side.
// The QUIC/TLS handshake is already complete by the time quic-go hands back
// a Connection from Accept, so state starts Established; authorization
// (bearer check) is a separate, request-scoped gate handled in HandleRequest
// (§4.4's "server becomes connected only after the first authorized
// request").
func NewServer(qconn quic.Connection, assignedID int64, bearer string, mbox *mailbox.Mailbox, pool *sendpool.Pool, maxStreams int) *Connection {
	c := &Connection{
		role:       RoleServer,
		assignedID: assignedID,
		bearer:     bearer,
		registry:   streams.NewRegistry(),
		mbox:       mbox,
		pool:       pool,
		qconn:      qconn,
		streamSem:  make(chan struct{}, maxStreams),
		pending:    make(map[int64]chan pendingResponse),
	}
	c.state.store(Established)
	return c
}

// NewClient creates a not-yet-connected client-side Connection. BindDialed
// must be called before any SendRequest.
func NewClient(assignedID int64, bearer string, pinnedCert []byte, mbox *mailbox.Mailbox, pool *sendpool.Pool, maxStreams int) *Connection {
	c := &Connection{
		role:       RoleClient,
		assignedID: assignedID,
		bearer:     bearer,
		pinnedCert: pinnedCert,
		registry:   streams.NewRegistry(),
		mbox:       mbox,
		pool:       pool,
		streamSem:  make(chan struct{}, maxStreams),
		pending:    make(map[int64]chan pendingResponse),
	}
	c.state.store(Handshaking)
	return c
}

// AssignedID returns the 64-bit id embedders see in mailbox events (§3).
func (c *Connection) AssignedID() int64 { return c.assignedID }

// PeerAddrKey returns the map key the server's address index uses for this
// connection, empty for a server Connection with no bound quic.Connection
// (only possible in tests).
func (c *Connection) PeerAddrKey() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.qconn == nil {
		return ""
	}
	return c.qconn.RemoteAddr().String()
}

// Connected reports whether the connection has passed its authorization
// gate: bearer-token check on the server, certificate pin on the client.
func (c *Connection) Connected() bool { return c.connected.Load() }

// TimedOut reports whether the connection has been torn down, via idle
// timeout, handshake failure, or an explicit Close.
func (c *Connection) TimedOut() bool { return c.timedOut.Load() }

// State returns the current lifecycle state (§4.4).
func (c *Connection) State() State { return c.state.load() }

// BindDialed finishes client-side setup once pkg/client has dialed a
// quic.Connection and built an http3.Transport bound to it. It is a separate
// step from construction because the dial/RoundTripper wiring needs the
// shared quic.Transport the client's EndpointRouter owns, not just this one
// Connection.
func (c *Connection) BindDialed(qconn quic.Connection, rt *http3.Transport) error {
	c.mu.Lock()
	c.qconn = qconn
	c.rt = rt
	c.mu.Unlock()

	c.state.store(Established)

	if err := comparePeerCert(qconn.ConnectionState().TLS, c.pinnedCert); err != nil {
		c.Close("Peer certificate does not match")
		return err
	}

	c.connected.Store(true)
	c.mbox.Post(mailbox.NewConnect(mailbox.ConnectionID(c.assignedID), qconn.RemoteAddr()))
	go c.watchTransportClose()
	return nil
}

// watchTransportClose blocks until the underlying quic.Connection's context
// is done (idle timeout, peer CONNECTION_CLOSE, or local close) and posts
// exactly one Timeout event (§4.4, §5).
func (c *Connection) watchTransportClose() {
	<-c.qconn.Context().Done()
	c.Close("transport closed")
}

// HandleRequest is the http3.Server Handler entry point for this
// connection's incoming requests (§4.4's ingress path, generalized from
// quic-go's HEADERS/DATA/FINISHED stream events to the higher-level
// http.Request/ResponseWriter the http3 package already assembles them
// into). It enforces bearer-token authorization on the first request, then
// blocks until SendResponse delivers a response for the synthetic stream id
// it assigns.
func (c *Connection) HandleRequest(w http.ResponseWriter, r *http.Request) {
	if c.role != RoleServer {
		http.Error(w, "not a server connection", http.StatusInternalServerError)
		return
	}

	if !c.connected.Load() {
		token, ok := ParseBearer(r.Header.Get(HeaderAuthorization))
		if !ok || !checkBearer(token, c.bearer) {
			log.WithField("conn", c.assignedID).Warn("Rejecting request with invalid auth token")
			c.Close("invalid auth token")
			http.Error(w, "invalid auth token", http.StatusUnauthorized)
			return
		}
		c.connected.Store(true)
		c.mbox.Post(mailbox.NewConnect(mailbox.ConnectionID(c.assignedID), stringAddr(r.RemoteAddr)))
	}

	body, err := io.ReadAll(r.Body)
	if err != nil {
		http.Error(w, "error reading body", http.StatusBadRequest)
		return
	}

	localID := c.nextLocalID.Add(1)
	in := c.registry.GetOrCreateIncoming(uint64(localID))
	in.Method = r.Method
	in.Path = r.URL.Path
	in.ContentType = r.Header.Get(HeaderContentType)
	in.HeaderInfo = r.Header.Get(HeaderInfo)
	in.Authorization = r.Header.Get(HeaderAuthorization)
	in.OnData(body)
	c.registry.TakeIncoming(uint64(localID))

	respCh := make(chan pendingResponse, 1)
	c.pendingMu.Lock()
	c.pending[localID] = respCh
	c.pendingMu.Unlock()

	c.mbox.Post(mailbox.NewData(mailbox.ConnectionID(c.assignedID), in, mailbox.Request))

	select {
	case resp := <-respCh:
		for k, v := range resp.headers {
			w.Header().Set(k, v)
		}
		w.WriteHeader(resp.status)
		if err := writeChunked(w, c.pool, c.registry, localID, resp.body, c.timedOut.Load); err != nil {
			log.WithError(err).Warn("Failed writing response body")
		}
	case <-r.Context().Done():
		c.pendingMu.Lock()
		delete(c.pending, localID)
		c.pendingMu.Unlock()
	}
}

// SendResponse delivers a response for a request previously surfaced via a
// Data{Request} mailbox event. HandleRequest registers its wait channel
// before posting that event, so a response is only cached when no handler is
// waiting on streamID (the handler's request context already ended, the id
// was already answered, or it was never issued); a cached response is
// retried by FlushCached, matching §4.4's retry contract for outgoing sends.
func (c *Connection) SendResponse(streamID int64, status int, headers map[string]string, body []byte) error {
	resp := pendingResponse{status: status, headers: headers, body: body}

	c.pendingMu.Lock()
	ch, ok := c.pending[streamID]
	if ok {
		delete(c.pending, streamID)
	}
	c.pendingMu.Unlock()

	if ok {
		ch <- resp
		return nil
	}

	c.cachedMu.Lock()
	c.cached = append(c.cached, cachedResponse{streamID: streamID, resp: resp})
	c.cachedMu.Unlock()
	return nil
}

// FlushCached retries any SendResponse calls that found no handler waiting
// on their stream id, delivering each one whose id now has a wait channel
// (§4.4's flush_cached_responses, invoked by the pacer on its tick).
func (c *Connection) FlushCached() {
	c.cachedMu.Lock()
	pending := c.cached
	c.cached = nil
	c.cachedMu.Unlock()

	var retry []cachedResponse
	for _, cr := range pending {
		c.pendingMu.Lock()
		ch, ok := c.pending[cr.streamID]
		if ok {
			delete(c.pending, cr.streamID)
		}
		c.pendingMu.Unlock()

		if ok {
			ch <- cr.resp
		} else {
			retry = append(retry, cr)
		}
	}

	if len(retry) > 0 {
		c.cachedMu.Lock()
		c.cached = append(c.cached, retry...)
		c.cachedMu.Unlock()
	}
}

// SendRequest issues a request over the client's RoundTripper, blocking on
// the admission-control semaphore (sized to quicutil.MaxConcurrentStreams)
// to emulate §4.4's STREAM_BLOCKED/STREAM_LIMIT retry loop: quic-go's
// http3.Transport.RoundTrip already blocks internally on flow control, so
// the semaphore bounds concurrent in-flight requests rather than bytes.
// Returns the synthetic local stream id, or an error if ctx is done or the
// connection is torn down before a slot frees up.
func (c *Connection) SendRequest(ctx context.Context, method, path string, headers map[string]string, body []byte) (int64, error) {
	if c.role != RoleClient {
		return -1, fmt.Errorf("quicsend: SendRequest on a server connection")
	}

	acquired := false
	for !acquired {
		select {
		case c.streamSem <- struct{}{}:
			acquired = true
		case <-ctx.Done():
			return -1, ctx.Err()
		case <-time.After(pollInterval):
			if c.timedOut.Load() {
				return -1, fmt.Errorf("quicsend: connection timed out waiting for a stream slot")
			}
		}
	}

	localID := c.nextLocalID.Add(1)
	go c.doRequest(ctx, localID, method, path, headers, body)
	return localID, nil
}

func (c *Connection) doRequest(ctx context.Context, localID int64, method, path string, headers map[string]string, body []byte) {
	defer func() { <-c.streamSem }()

	c.mu.Lock()
	rt := c.rt
	c.mu.Unlock()

	req, err := http.NewRequestWithContext(ctx, method, "https://"+pseudoAuthority+path, bytes.NewReader(body))
	if err != nil {
		log.WithError(err).Warn("Failed to build outgoing request")
		return
	}
	req.Header.Set(HeaderAuthorization, BearerPrefix+c.bearer)
	req.Header.Set(HeaderUserAgent, UserAgentClient)
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := rt.RoundTrip(req)
	if err != nil {
		log.WithError(err).Warn("RoundTrip failed")
		return
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		log.WithError(err).Warn("Failed to read response body")
		return
	}

	in := c.registry.GetOrCreateIncoming(uint64(localID))
	in.Status = resp.StatusCode
	in.ContentType = resp.Header.Get(HeaderContentType)
	in.HeaderInfo = resp.Header.Get(HeaderInfo)
	in.OnData(respBody)
	c.registry.TakeIncoming(uint64(localID))

	c.mbox.Post(mailbox.NewData(mailbox.ConnectionID(c.assignedID), in, mailbox.Response))
}

// stringAddr wraps an "ip:port" string as a net.Addr for mailbox Connect
// events raised from HandleRequest, where only http.Request.RemoteAddr (a
// string) is available rather than the underlying quic.Connection.
type stringAddr string

func (a stringAddr) Network() string { return "udp" }
func (a stringAddr) String() string  { return string(a) }

// pseudoAuthority is a placeholder host for building *http.Request values
// against http3.Transport.RoundTrip, which dials via the already-established
// quic.Connection rather than resolving this string (§4.4 has no concept of
// DNS; addressing is the client's job before Connect).
const pseudoAuthority = "quicsend.local"

// chunkWriteTimeout bounds a single chunk write. http3's ResponseWriter
// gives no direct "transport refused N of these bytes" return the way a raw
// quic.Stream.Write does (§3's OutgoingStream model assumes exactly that
// signal), so a short write deadline stands in for it: a write that doesn't
// clear within chunkWriteTimeout is treated the same as a blocked stream
// (grounded on the write-deadline-as-backpressure-detector idiom used for
// the same purpose in the pack's own HTTP/1 server write path).
const chunkWriteTimeout = 50 * time.Millisecond

// writeChunked implements §4.4's send_body against an http.ResponseWriter:
// it copies data through sendpool buffers in MaxDatagramSend-sized pieces
// (§4.1's buffer-reuse contract), and on a chunk that the transport does not
// accept within chunkWriteTimeout, stores everything not yet accepted in a
// streams.Outgoing and retries from there — matching send_body's "store
// data[sent..n] in OutgoingStream for later retry" — until the remainder
// drains or the connection times out.
func writeChunked(w http.ResponseWriter, pool *sendpool.Pool, registry *streams.Registry, streamID int64, data []byte, timedOut func() bool) error {
	rc := http.NewResponseController(w)

	write := func(p []byte) (int, error) {
		_ = rc.SetWriteDeadline(time.Now().Add(chunkWriteTimeout))
		n, err := w.Write(p)
		_ = rc.SetWriteDeadline(time.Time{})
		return n, err
	}

	offset := 0
	for offset < len(data) {
		end := offset + sendpool.MaxDatagramSend
		if end > len(data) {
			end = len(data)
		}

		buf := pool.Acquire()
		buf.Length = copy(buf.Payload[:], data[offset:end])
		chunk := buf.Payload[:buf.Length]

		n, err := write(chunk)
		pool.Release(buf)

		if err == nil {
			offset = end
			continue
		}

		remainder := make([]byte, 0, len(chunk)-n+len(data)-end)
		remainder = append(remainder, chunk[n:]...)
		remainder = append(remainder, data[end:]...)

		out := streams.NewOutgoing(uint64(streamID), remainder)
		registry.SetOutgoing(out)

		for !out.Done() {
			if timedOut() {
				registry.RemoveOutgoing(uint64(streamID))
				return fmt.Errorf("quicsend: connection timed out with %d bytes unsent", len(out.Remaining()))
			}
			time.Sleep(pollInterval)

			wn, werr := write(out.Remaining())
			if wn > 0 {
				out.Advance(wn)
			}
			if werr != nil && wn == 0 {
				continue
			}
		}

		registry.RemoveOutgoing(uint64(streamID))
		return nil
	}
	return nil
}

// Close tears the connection down at most once, posting a single Timeout
// event (§4.4, §5). reason is logged but not sent to the embedder, matching
// the mailbox Event shape decided by §9's Open Question.
func (c *Connection) Close(reason string) error {
	var err error
	c.closeOnce.Do(func() {
		c.state.store(Closing)
		c.timedOut.Store(true)

		c.mu.Lock()
		qconn := c.qconn
		c.mu.Unlock()

		if qconn != nil {
			err = qconn.CloseWithError(0, reason)
		}

		if pending := c.registry.OutgoingIDs(); len(pending) > 0 {
			log.WithFields(log.Fields{"conn": c.assignedID, "streams": pending}).
				Warn("Closing with unflushed outgoing streams")
		}

		c.mbox.Post(mailbox.NewTimeout(mailbox.ConnectionID(c.assignedID)))
		c.state.store(Closed)
		log.WithFields(log.Fields{"conn": c.assignedID, "reason": reason}).Info("Connection closed")
	})
	return err
}
