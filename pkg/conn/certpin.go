// SPDX-License-Identifier: Apache-2.0

package conn

import (
	"crypto/subtle"
	"crypto/tls"
	"crypto/x509"
	"errors"
)

// ErrCertMismatch is returned when the peer's leaf certificate does not
// match the pinned DER bytes (§5, client-side authentication).
var ErrCertMismatch = errors.New("quicsend: peer certificate does not match pinned certificate")

// PeerCertVerifier builds a tls.Config.VerifyPeerCertificate callback that
// pins the leaf certificate to pinnedDER, for wiring into the client's TLS
// config alongside InsecureSkipVerify (grounded in costinm-hbone's
// MeshAuth.VerifyServerCert pattern of replacing chain validation with an
// explicit raw-certificate check). Aborting here fails the handshake itself,
// rather than waiting for BindDialed's redundant post-handshake check.
func PeerCertVerifier(pinnedDER []byte) func(rawCerts [][]byte, _ [][]*x509.Certificate) error {
	return func(rawCerts [][]byte, _ [][]*x509.Certificate) error {
		if len(rawCerts) == 0 {
			return ErrCertMismatch
		}
		got := rawCerts[0]
		if len(got) != len(pinnedDER) || subtle.ConstantTimeCompare(got, pinnedDER) != 1 {
			return ErrCertMismatch
		}
		return nil
	}
}

// comparePeerCert verifies the peer's leaf certificate against pinnedDER in
// constant time. TLS CA trust is not the security boundary here:
// ClientTLSConfig sets InsecureSkipVerify, and this pin is what actually
// authenticates the server.
func comparePeerCert(state tls.ConnectionState, pinnedDER []byte) error {
	if len(state.PeerCertificates) == 0 {
		return ErrCertMismatch
	}
	got := state.PeerCertificates[0].Raw
	if len(got) != len(pinnedDER) {
		return ErrCertMismatch
	}
	if subtle.ConstantTimeCompare(got, pinnedDER) != 1 {
		return ErrCertMismatch
	}
	return nil
}
