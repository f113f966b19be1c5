package config

import (
	"fmt"
	"os"
)

// LoadSearchSpace loads and parses a search-space description file
func LoadSearchSpace(path string) (*SearchSpaceConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read search space file %s: %w", path, err)
	}
	cfg, err := ParseSearchSpaceYAML(data)
	if err != nil {
		return nil, fmt.Errorf("failed to parse search space file %s: %w", path, err)
	}
	return cfg, nil
}

// LoadServerConfig reads a TOML server configuration file, applies defaults
// and STUDYD_* environment overrides, and validates the result. An empty
// path skips the file and yields defaults plus environment.
func LoadServerConfig(path string) (*ServerConfig, error) {
	cfg := DefaultServerConfig()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read server config %s: %w", path, err)
		}
		if err := cfg.decodeTOML(data); err != nil {
			return nil, fmt.Errorf("failed to parse server config %s: %w", path, err)
		}
	}
	cfg.applyEnv(os.LookupEnv)
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid server config: %w", err)
	}
	return cfg, nil
}
