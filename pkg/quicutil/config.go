// SPDX-License-Identifier: Apache-2.0

// Package quicutil builds the tls.Config and quic.Config values shared by
// the server and client endpoints, and tunes the raw UDP socket both sit on
// top of (§6's wire-protocol parameters).
package quicutil

import (
	"crypto/tls"
	"net"
	"os"
	"syscall"
	"time"

	"github.com/quic-go/quic-go"
	log "github.com/sirupsen/logrus"
)

// ALPN is the negotiated application protocol (§6).
const ALPN = "h3"

// SNI is the fixed TLS server name both endpoints use (§6).
const SNI = "catid.io"

const (
	// IdleTimeout is the max idle timeout enforced by the transport and
	// surfaced as a Timeout event (§5, §6).
	IdleTimeout = 5000 * time.Millisecond

	// HandshakeDeadline bounds Connect() before a single retry (§4.4).
	HandshakeDeadline = 3000 * time.Millisecond

	// MaxDatagramRecv is the statically sized receive scratch buffer (§4.3).
	MaxDatagramRecv = 2800

	// InitialMaxData and InitialMaxStreamData are the QUIC flow-control
	// window sizes negotiated at handshake time (§6).
	InitialMaxData       = 8 * 1024 * 1024
	InitialMaxStreamData = 1 * 1024 * 1024

	// MaxConcurrentStreams bounds both bidi and uni streams per connection
	// (§6). The admission-control semaphore in pkg/conn is sized to this.
	MaxConcurrentStreams = 8

	// SocketBufferSize is the send/receive buffer size requested on the raw
	// UDP socket (§4.3).
	SocketBufferSize = 8 * 1024 * 1024
)

// QUICConfig returns the quic.Config shared by both endpoints, matching the
// non-negotiable parameters from §6. Active migration is disabled (quic-go
// never enables it unless a Transport opts in with ConnectionIDGenerator/
// verified paths, so leaving those unset already satisfies this), and 0-RTT
// is enabled. Pacing is quic-go's own internal, always-on behavior; §6's
// "congestion controller BBR" is NOT configurable here — quic-go v0.42.0
// exposes no public field on quic.Config or quic.Transport to select a
// congestion control algorithm, so this parameter cannot be satisfied
// through this dependency's public API and is a disclosed gap, not an
// oversight (see DESIGN.md).
func QUICConfig() *quic.Config {
	return &quic.Config{
		MaxIdleTimeout:                 IdleTimeout,
		HandshakeIdleTimeout:           HandshakeDeadline,
		InitialConnectionReceiveWindow: InitialMaxData,
		MaxConnectionReceiveWindow:     InitialMaxData,
		InitialStreamReceiveWindow:     InitialMaxStreamData,
		MaxStreamReceiveWindow:         InitialMaxStreamData,
		MaxIncomingStreams:             MaxConcurrentStreams,
		MaxIncomingUniStreams:          MaxConcurrentStreams,
		Allow0RTT:                      true,
		DisablePathMTUDiscovery:        false,
		EnableDatagrams:                false,
	}
}

// ServerTLSConfig loads the server's certificate/key pair and pins the ALPN
// and SNI. The server requests no client certificate, so it verifies none —
// the client is the one pinning a DER, per §4.4.
func ServerTLSConfig(certPEMPath, keyPEMPath string) (*tls.Config, error) {
	cert, err := tls.LoadX509KeyPair(certPEMPath, keyPEMPath)
	if err != nil {
		return nil, err
	}

	cfg := &tls.Config{
		Certificates: []tls.Certificate{cert},
		NextProtos:   []string{ALPN},
		MinVersion:   tls.VersionTLS13,
		ServerName:   SNI,
	}
	applyKeyLog(cfg)
	return cfg, nil
}

// ClientTLSConfig builds the client's tls.Config. Chain verification is
// disabled because the client pins the peer's leaf certificate by exact DER
// comparison in pkg/conn instead of trusting a CA (§4.4's compare_peer_cert, conn.PeerCertVerifier) —
// InsecureSkipVerify only turns off the library's own chain walk; the
// application-level pin is what actually rejects a bad peer.
func ClientTLSConfig() *tls.Config {
	cfg := &tls.Config{
		NextProtos:         []string{ALPN},
		MinVersion:         tls.VersionTLS13,
		ServerName:         SNI,
		InsecureSkipVerify: true,
	}
	applyKeyLog(cfg)
	return cfg
}

// applyKeyLog wires SSLKEYLOGFILE into cfg.KeyLogWriter when set (§6).
func applyKeyLog(cfg *tls.Config) {
	path := os.Getenv("SSLKEYLOGFILE")
	if path == "" {
		return
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0600)
	if err != nil {
		log.WithError(err).Warn("Failed to open SSLKEYLOGFILE, continuing without key logging")
		return
	}
	cfg.KeyLogWriter = f
}

// ListenConfig returns a net.ListenConfig that enables SO_REUSEADDR and
// tunes the socket's send/receive buffers before quic-go ever sees the file
// descriptor (§4.3). It follows the raw syscall.RawConn.Control shape used
// throughout the retrieved pack's own socket-tuning code rather than pulling
// in a dedicated sockopt library.
func ListenConfig() net.ListenConfig {
	return net.ListenConfig{
		Control: func(_, _ string, c syscall.RawConn) error {
			var ctrlErr error
			err := c.Control(func(fd uintptr) {
				if err := syscall.SetsockoptInt(int(fd), syscall.SOL_SOCKET, syscall.SO_REUSEADDR, 1); err != nil {
					ctrlErr = err
					return
				}
				if err := syscall.SetsockoptInt(int(fd), syscall.SOL_SOCKET, syscall.SO_SNDBUF, SocketBufferSize); err != nil {
					ctrlErr = err
					return
				}
				if err := syscall.SetsockoptInt(int(fd), syscall.SOL_SOCKET, syscall.SO_RCVBUF, SocketBufferSize); err != nil {
					ctrlErr = err
					return
				}
			})
			if err != nil {
				return err
			}
			return ctrlErr
		},
	}
}
