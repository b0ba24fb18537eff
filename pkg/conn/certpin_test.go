// SPDX-License-Identifier: Apache-2.0

package conn

import (
	"crypto/tls"
	"crypto/x509"
	"testing"

	"github.com/catid/quicsend/pkg/quicutil"
)

func TestComparePeerCertMatch(t *testing.T) {
	_, der, err := quicutil.GenerateSelfSignedCert()
	if err != nil {
		t.Fatalf("GenerateSelfSignedCert: %v", err)
	}
	leaf, err := x509.ParseCertificate(der)
	if err != nil {
		t.Fatalf("ParseCertificate: %v", err)
	}

	state := tls.ConnectionState{PeerCertificates: []*x509.Certificate{leaf}}
	if err := comparePeerCert(state, der); err != nil {
		t.Fatalf("comparePeerCert rejected a matching certificate: %v", err)
	}
}

func TestComparePeerCertMismatch(t *testing.T) {
	_, der1, err := quicutil.GenerateSelfSignedCert()
	if err != nil {
		t.Fatalf("GenerateSelfSignedCert: %v", err)
	}
	_, der2, err := quicutil.GenerateSelfSignedCert()
	if err != nil {
		t.Fatalf("GenerateSelfSignedCert: %v", err)
	}
	leaf1, err := x509.ParseCertificate(der1)
	if err != nil {
		t.Fatalf("ParseCertificate: %v", err)
	}

	state := tls.ConnectionState{PeerCertificates: []*x509.Certificate{leaf1}}
	if err := comparePeerCert(state, der2); err == nil {
		t.Fatalf("comparePeerCert accepted a mismatched certificate")
	}
}

func TestComparePeerCertNoCertificates(t *testing.T) {
	state := tls.ConnectionState{}
	if err := comparePeerCert(state, []byte{1, 2, 3}); err == nil {
		t.Fatalf("comparePeerCert accepted an empty peer chain")
	}
}
