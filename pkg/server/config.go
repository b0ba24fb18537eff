// SPDX-License-Identifier: Apache-2.0

package server

import (
	"fmt"

	"github.com/BurntSushi/toml"
)

// LoadConfig reads a Config from a TOML file, matching the
// toml.DecodeFile pattern used throughout the retrieved pack's own
// configuration loaders.
func LoadConfig(filename string) (Config, error) {
	var cfg Config
	if _, err := toml.DecodeFile(filename, &cfg); err != nil {
		return Config{}, err
	}

	if cfg.ListenAddr == "" {
		return Config{}, fmt.Errorf("quicsend: listen_addr is empty")
	}
	if cfg.BearerToken == "" {
		return Config{}, fmt.Errorf("quicsend: bearer_token is empty")
	}
	if cfg.CertPEMPath == "" || cfg.KeyPEMPath == "" {
		return Config{}, fmt.Errorf("quicsend: cert_pem_path and key_pem_path are required")
	}
	return cfg, nil
}
