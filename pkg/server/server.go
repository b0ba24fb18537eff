// SPDX-License-Identifier: Apache-2.0

// Package server implements the server-variant EndpointRouter from §4.5: it
// accepts many peer sessions on one bound UDP port, indexes each Connection
// by the assigned id embedders use, and enforces bearer-token authorization
// on the first request of every session.
//
// §4.5's steps 1-5 (parse the long header, route by dcid, send version
// negotiation, mint/validate a retry token) never run here: quic-go's own
// quic.Transport/http3.Server do this internally before ever calling
// ConnContext, and quic-go exposes no public hook in this version to
// substitute a caller-supplied token format for its own address validation.
// Reaching underneath http3.Server to parse raw datagrams ourselves would
// mean reimplementing QUIC long-header parsing, which §1 puts in scope for
// the transport library, not this engine. This is a disclosed, deliberate
// non-conformance, not an oversight — see DESIGN.md's pkg/retrytoken entry
// for the full reasoning and its effect on §8's E5 scenario and property #3.
// This package hooks in at the one seam quic-go/http3 does expose for
// per-connection bookkeeping once a connection is already established,
// http3.Server.ConnContext, grounded on the same hook found in quic-go/http3's
// own server.go (see DESIGN.md).
package server

import (
	"context"
	"net"
	"net/http"
	"sync"
	"sync/atomic"

	"github.com/hashicorp/go-multierror"
	"github.com/quic-go/quic-go"
	"github.com/quic-go/quic-go/http3"
	log "github.com/sirupsen/logrus"

	"github.com/catid/quicsend/pkg/conn"
	"github.com/catid/quicsend/pkg/mailbox"
	"github.com/catid/quicsend/pkg/quicutil"
	"github.com/catid/quicsend/pkg/sendpool"
)

// Config holds the parameters LoadConfig reads from a TOML file (§6).
type Config struct {
	ListenAddr  string `toml:"listen_addr"`
	BearerToken string `toml:"bearer_token"`
	CertPEMPath string `toml:"cert_pem_path"`
	KeyPEMPath  string `toml:"key_pem_path"`
}

type connCtxKey struct{}

// Server is the server-side EndpointRouter (§4.5).
type Server struct {
	cfg  Config
	mbox *mailbox.Mailbox
	pool *sendpool.Pool

	h3      *http3.Server
	pktConn net.PacketConn

	nextAssignedID atomic.Int64

	mu     sync.Mutex
	byID   map[int64]*conn.Connection
	byAddr map[string]*conn.Connection

	pacer *pacer

	closeOnce sync.Once
	closed    chan struct{}
}

// New builds a Server from cfg, sharing mbox with whatever else the
// embedder's process wires it into (§4.2's mailbox is one per endpoint).
func New(cfg Config, mbox *mailbox.Mailbox) (*Server, error) {
	tlsConf, err := quicutil.ServerTLSConfig(cfg.CertPEMPath, cfg.KeyPEMPath)
	if err != nil {
		return nil, err
	}

	s := &Server{
		cfg:    cfg,
		mbox:   mbox,
		pool:   sendpool.New(),
		byID:   make(map[int64]*conn.Connection),
		byAddr: make(map[string]*conn.Connection),
		closed: make(chan struct{}),
	}

	s.h3 = &http3.Server{
		Addr:        cfg.ListenAddr,
		TLSConfig:   tlsConf,
		QUICConfig:  quicutil.QUICConfig(),
		Handler:     http.HandlerFunc(s.serveHTTP),
		ConnContext: s.connContext,
	}

	s.pacer = newPacer(s.reap, s.flushCached)
	return s, nil
}

// connContext runs once per accepted QUIC connection, before any of its
// streams are handled (§4.5 step 6, "create a Connection, register it").
func (s *Server) connContext(ctx context.Context, qc quic.Connection) context.Context {
	id := s.nextAssignedID.Add(1)
	c := conn.NewServer(qc, id, s.cfg.BearerToken, s.mbox, s.pool, quicutil.MaxConcurrentStreams)

	s.mu.Lock()
	s.byID[id] = c
	s.byAddr[qc.RemoteAddr().String()] = c
	s.mu.Unlock()

	log.WithFields(log.Fields{"conn": id, "peer": qc.RemoteAddr()}).Info("Accepted connection")

	go s.awaitClose(qc, id)
	return context.WithValue(ctx, connCtxKey{}, c)
}

// awaitClose removes conn id from both indexes once its transport-level
// context is done, so the pacer stops iterating a dead Connection, and closes
// that Connection so its single Timeout event is posted (§4.5's
// dcid/assigned_id indexes; §4.4's reap-on-timed_out).
func (s *Server) awaitClose(qc quic.Connection, id int64) {
	<-qc.Context().Done()

	s.mu.Lock()
	c, ok := s.byID[id]
	if ok {
		delete(s.byAddr, c.PeerAddrKey())
	}
	delete(s.byID, id)
	s.mu.Unlock()

	if ok {
		c.Close("transport closed")
	}
}

// serveHTTP dispatches to the Connection captured by connContext for
// whichever quic.Connection this request's stream belongs to.
func (s *Server) serveHTTP(w http.ResponseWriter, r *http.Request) {
	c, ok := r.Context().Value(connCtxKey{}).(*conn.Connection)
	if !ok {
		http.Error(w, "no connection context", http.StatusInternalServerError)
		return
	}
	c.HandleRequest(w, r)
}

// Serve binds the UDP socket via quicutil's tuned ListenConfig and blocks
// serving HTTP/3 requests until the server is closed (§4.3's socket tuning
// applied ahead of quic-go ever seeing the file descriptor).
func (s *Server) Serve(ctx context.Context) error {
	lc := quicutil.ListenConfig()
	pc, err := lc.ListenPacket(ctx, "udp", s.cfg.ListenAddr)
	if err != nil {
		return err
	}
	s.pktConn = pc

	go s.pacer.run(s.closed)

	err = s.h3.Serve(pc)
	if err != nil && !isClosedErr(err) {
		return err
	}
	return nil
}

// reap is the pacer's per-tick callback: close every Connection past its
// idle timeout and drop it from both indexes (§4.6's pacing thread).
func (s *Server) reap() {
	s.mu.Lock()
	var dead []*conn.Connection
	for id, c := range s.byID {
		if c.TimedOut() {
			dead = append(dead, c)
			delete(s.byID, id)
			delete(s.byAddr, c.PeerAddrKey())
		}
	}
	s.mu.Unlock()

	for _, c := range dead {
		c.Close("idle timeout")
	}
}

// flushCached is the pacer's other per-tick job: retry any SendResponse
// calls that found no handler waiting on their stream id
// (§4.4's flush_cached_responses).
func (s *Server) flushCached() {
	s.mu.Lock()
	snapshot := make([]*conn.Connection, 0, len(s.byID))
	for _, c := range s.byID {
		snapshot = append(snapshot, c)
	}
	s.mu.Unlock()

	for _, c := range snapshot {
		c.FlushCached()
	}
}

// SendResponse looks up assignedID and forwards to its Connection
// (§4.5's embedder-facing respond operation).
func (s *Server) SendResponse(assignedID, streamID int64, status int, headers map[string]string, body []byte) error {
	s.mu.Lock()
	c, ok := s.byID[assignedID]
	s.mu.Unlock()
	if !ok {
		return errConnNotFound
	}
	return c.SendResponse(streamID, status, headers, body)
}

// Close tears the server down at most once: gracefully GOAWAYs every live
// HTTP/3 connection, then closes each Connection and releases the bound
// socket (§5's "destruction of an endpoint stops the reactor ... and
// releases all buffers"). Every component's teardown runs regardless of
// earlier failures; their errors are collected with go-multierror rather
// than the first one masking the rest.
func (s *Server) Close() error {
	var result *multierror.Error
	s.closeOnce.Do(func() {
		close(s.closed)

		if err := s.h3.CloseGracefully(quicutil.HandshakeDeadline); err != nil {
			if err := s.h3.Close(); err != nil {
				result = multierror.Append(result, err)
			}
		}

		s.mu.Lock()
		conns := make([]*conn.Connection, 0, len(s.byID))
		for _, c := range s.byID {
			conns = append(conns, c)
		}
		s.byID = make(map[int64]*conn.Connection)
		s.byAddr = make(map[string]*conn.Connection)
		s.mu.Unlock()

		for _, c := range conns {
			if err := c.Close("server shutting down"); err != nil {
				result = multierror.Append(result, err)
			}
		}

		if s.pktConn != nil {
			if err := s.pktConn.Close(); err != nil {
				result = multierror.Append(result, err)
			}
		}
	})
	return result.ErrorOrNil()
}
