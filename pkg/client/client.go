// SPDX-License-Identifier: Apache-2.0

package client

import (
	"context"
	"fmt"
	"net"
	"sync"

	"github.com/hashicorp/go-multierror"
	"github.com/quic-go/quic-go"
	"github.com/quic-go/quic-go/http3"
	log "github.com/sirupsen/logrus"

	"github.com/catid/quicsend/pkg/conn"
	"github.com/catid/quicsend/pkg/mailbox"
	"github.com/catid/quicsend/pkg/quicutil"
	"github.com/catid/quicsend/pkg/sendpool"
)

// assignedID is fixed at 1: a client EndpointRouter holds exactly one
// Connection (§4.6), so there is nothing for the id to disambiguate.
const assignedID = 1

// Client is the client-side EndpointRouter (§4.6): it owns exactly one
// Connection to a known peer, resolving and dialing it once, and rejecting
// the session outright if the peer's certificate does not match the pin.
type Client struct {
	cfg       Config
	pinnedDER []byte
	mbox      *mailbox.Mailbox
	pool      *sendpool.Pool

	mu      sync.Mutex
	udpConn net.PacketConn
	qt      *quic.Transport
	rt      *http3.Transport
	c       *conn.Connection

	closeOnce sync.Once
}

// New builds a Client. mbox is shared with whatever else the embedder's
// process polls (§4.2's "one mailbox per endpoint").
func New(cfg Config, pinnedDER []byte, mbox *mailbox.Mailbox) *Client {
	return &Client{
		cfg:       cfg,
		pinnedDER: pinnedDER,
		mbox:      mbox,
		pool:      sendpool.New(),
	}
}

// Connect resolves the server address and dials it, retrying once on
// handshake-deadline expiry (§5's "on expiry the client retries connect").
// The peer's leaf certificate is pinned via tls.Config.VerifyPeerCertificate
// (set by quicutil.ClientTLSConfig's caller below), so a mismatched cert
// fails the dial itself rather than requiring a separate post-handshake
// check.
func (cl *Client) Connect(ctx context.Context) error {
	addr, err := net.ResolveUDPAddr("udp", cl.cfg.ServerAddr)
	if err != nil {
		return fmt.Errorf("quicsend: resolving server address: %w", err)
	}

	var qc quic.Connection
	var lastErr error
	for attempt := 0; attempt < 2; attempt++ {
		qc, lastErr = cl.dial(ctx, addr)
		if lastErr == nil {
			break
		}
		log.WithError(lastErr).Warn("Handshake attempt failed, retrying")
	}
	if lastErr != nil {
		return lastErr
	}

	c := conn.NewClient(assignedID, cl.cfg.BearerToken, cl.pinnedDER, cl.mbox, cl.pool, quicutil.MaxConcurrentStreams)

	cl.mu.Lock()
	cl.c = c
	cl.mu.Unlock()

	return c.BindDialed(qc, cl.rt)
}

// dial performs one handshake attempt bounded by quicutil.HandshakeDeadline.
func (cl *Client) dial(ctx context.Context, addr *net.UDPAddr) (quic.Connection, error) {
	udpConn, err := net.ListenUDP("udp", nil)
	if err != nil {
		return nil, err
	}

	tlsConf := quicutil.ClientTLSConfig()
	tlsConf.VerifyPeerCertificate = conn.PeerCertVerifier(cl.pinnedDER)
	quicConf := quicutil.QUICConfig()

	hctx, cancel := context.WithTimeout(ctx, quicutil.HandshakeDeadline)
	defer cancel()

	qt := &quic.Transport{Conn: udpConn}
	qc, err := qt.Dial(hctx, addr, tlsConf, quicConf)
	if err != nil {
		_ = udpConn.Close()
		return nil, err
	}

	rt := &http3.Transport{TLSClientConfig: tlsConf, QUICConfig: quicConf}

	cl.mu.Lock()
	cl.udpConn = udpConn
	cl.qt = qt
	cl.rt = rt
	cl.mu.Unlock()

	return qc, nil
}

// SendRequest issues a request over the single Connection (§4.6's
// embedder-facing request operation).
func (cl *Client) SendRequest(ctx context.Context, method, path string, headers map[string]string, body []byte) (int64, error) {
	cl.mu.Lock()
	c := cl.c
	cl.mu.Unlock()
	if c == nil {
		return -1, fmt.Errorf("quicsend: not connected")
	}
	return c.SendRequest(ctx, method, path, headers, body)
}

// Connected reports whether the session has passed certificate pinning.
func (cl *Client) Connected() bool {
	cl.mu.Lock()
	c := cl.c
	cl.mu.Unlock()
	return c != nil && c.Connected()
}

// Close tears the Connection down, closes the HTTP/3 RoundTripper, and
// releases the UDP socket (§5's endpoint-destruction contract). All three
// run even if an earlier one fails; their errors are collected with
// go-multierror instead of the first dropping the rest.
func (cl *Client) Close() error {
	var result *multierror.Error
	cl.closeOnce.Do(func() {
		cl.mu.Lock()
		c, rt, udpConn := cl.c, cl.rt, cl.udpConn
		cl.mu.Unlock()

		if c != nil {
			if err := c.Close("client closing"); err != nil {
				result = multierror.Append(result, err)
			}
		}
		if rt != nil {
			if err := rt.Close(); err != nil {
				result = multierror.Append(result, err)
			}
		}
		if udpConn != nil {
			if err := udpConn.Close(); err != nil {
				result = multierror.Append(result, err)
			}
		}
	})
	return result.ErrorOrNil()
}
