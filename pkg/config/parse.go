package config

import (
	"bytes"
	"fmt"

	"gopkg.in/yaml.v3"
)

// ParseSearchSpaceYAML parses a search-space description from YAML bytes.
// This is used for APIs where the description is provided as payload (not via filesystem).
// Only the document shape is checked here; bounds and types are validated
// when the description is turned into a search space.
func ParseSearchSpaceYAML(data []byte) (*SearchSpaceConfig, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, fmt.Errorf("search space yaml is empty")
	}

	var cfg SearchSpaceConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse search space yaml: %w", err)
	}
	if len(cfg.Params) == 0 {
		return nil, fmt.Errorf("search space defines no parameters")
	}
	return &cfg, nil
}
