// SPDX-License-Identifier: Apache-2.0

// Package client implements the client-variant EndpointRouter from §4.6: a
// single persistent session to one known peer, with peer-certificate
// pinning wired into the TLS handshake itself. Host/port resolution runs
// synchronously inside Client.Connect, before the dial; there is no
// background resolution.
package client

import (
	"crypto/x509"
	"encoding/pem"
	"fmt"
	"os"

	"github.com/BurntSushi/toml"
)

// Config holds the parameters LoadConfig reads from a TOML file (§6).
type Config struct {
	ServerAddr     string `toml:"server_addr"`
	BearerToken    string `toml:"bearer_token"`
	PinnedCertPath string `toml:"pinned_cert_path"`
}

// LoadConfig reads a Config from a TOML file, matching the toml.DecodeFile
// pattern used throughout the retrieved pack's own configuration loaders.
func LoadConfig(filename string) (Config, error) {
	var cfg Config
	if _, err := toml.DecodeFile(filename, &cfg); err != nil {
		return Config{}, err
	}

	if cfg.ServerAddr == "" {
		return Config{}, fmt.Errorf("quicsend: server_addr is empty")
	}
	if cfg.BearerToken == "" {
		return Config{}, fmt.Errorf("quicsend: bearer_token is empty")
	}
	if cfg.PinnedCertPath == "" {
		return Config{}, fmt.Errorf("quicsend: pinned_cert_path is empty")
	}
	return cfg, nil
}

// LoadPinnedCertDER reads the peer certificate to pin, accepting either a
// PEM-encoded file or a raw DER file.
func LoadPinnedCertDER(path string) ([]byte, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	if block, _ := pem.Decode(raw); block != nil {
		if _, err := x509.ParseCertificate(block.Bytes); err != nil {
			return nil, fmt.Errorf("quicsend: pinned cert PEM does not parse: %w", err)
		}
		return block.Bytes, nil
	}

	if _, err := x509.ParseCertificate(raw); err != nil {
		return nil, fmt.Errorf("quicsend: pinned cert is neither valid PEM nor DER: %w", err)
	}
	return raw, nil
}
