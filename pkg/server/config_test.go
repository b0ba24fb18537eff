// SPDX-License-Identifier: Apache-2.0

package server

import (
	"os"
	"path/filepath"
	"testing"
)

func writeTOML(t *testing.T, contents string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "server.toml")
	if err := os.WriteFile(path, []byte(contents), 0600); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	return path
}

func TestLoadConfigValid(t *testing.T) {
	path := writeTOML(t, `
listen_addr = "0.0.0.0:4433"
bearer_token = "secret"
cert_pem_path = "server.pem"
key_pem_path = "server.key"
`)

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.ListenAddr != "0.0.0.0:4433" || cfg.BearerToken != "secret" {
		t.Fatalf("unexpected config: %+v", cfg)
	}
}

func TestLoadConfigRejectsMissingFields(t *testing.T) {
	path := writeTOML(t, `listen_addr = "0.0.0.0:4433"`)

	if _, err := LoadConfig(path); err == nil {
		t.Fatalf("expected an error for a config missing bearer_token/cert paths")
	}
}
