// SPDX-License-Identifier: Apache-2.0

package client

import (
	"encoding/pem"
	"os"
	"path/filepath"
	"testing"

	"github.com/catid/quicsend/pkg/quicutil"
)

func writeTOML(t *testing.T, contents string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "client.toml")
	if err := os.WriteFile(path, []byte(contents), 0600); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	return path
}

func TestLoadConfigValid(t *testing.T) {
	path := writeTOML(t, `
server_addr = "127.0.0.1:4433"
bearer_token = "secret"
pinned_cert_path = "peer.pem"
`)

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.ServerAddr != "127.0.0.1:4433" {
		t.Fatalf("unexpected server_addr: %q", cfg.ServerAddr)
	}
}

func TestLoadConfigRejectsMissingFields(t *testing.T) {
	path := writeTOML(t, `server_addr = "127.0.0.1:4433"`)
	if _, err := LoadConfig(path); err == nil {
		t.Fatalf("expected an error for a config missing bearer_token/pinned_cert_path")
	}
}

func TestLoadPinnedCertDERFromPEM(t *testing.T) {
	_, der, err := quicutil.GenerateSelfSignedCert()
	if err != nil {
		t.Fatalf("GenerateSelfSignedCert: %v", err)
	}

	dir := t.TempDir()
	path := filepath.Join(dir, "peer.pem")
	pemBytes := pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: der})
	if err := os.WriteFile(path, pemBytes, 0600); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	got, err := LoadPinnedCertDER(path)
	if err != nil {
		t.Fatalf("LoadPinnedCertDER: %v", err)
	}
	if len(got) != len(der) {
		t.Fatalf("DER length = %d, want %d", len(got), len(der))
	}
}

func TestLoadPinnedCertDERFromRawDER(t *testing.T) {
	_, der, err := quicutil.GenerateSelfSignedCert()
	if err != nil {
		t.Fatalf("GenerateSelfSignedCert: %v", err)
	}

	dir := t.TempDir()
	path := filepath.Join(dir, "peer.der")
	if err := os.WriteFile(path, der, 0600); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	got, err := LoadPinnedCertDER(path)
	if err != nil {
		t.Fatalf("LoadPinnedCertDER: %v", err)
	}
	if len(got) != len(der) {
		t.Fatalf("DER length = %d, want %d", len(got), len(der))
	}
}

func TestLoadPinnedCertDERRejectsGarbage(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "peer.bad")
	if err := os.WriteFile(path, []byte("not a certificate"), 0600); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	if _, err := LoadPinnedCertDER(path); err == nil {
		t.Fatalf("expected an error for garbage input")
	}
}
