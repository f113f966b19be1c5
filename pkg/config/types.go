package config

import (
	"fmt"

	"gopkg.in/yaml.v3"
)

// SearchSpaceConfig is the parsed search-space description file.
//
// Two layouts are accepted: a mapping of label to parameter entry (labels
// are only used as a fallback name) or a plain list of entries. Document
// order is preserved in both cases.
type SearchSpaceConfig struct {
	Params []ParamConfig
}

// ParamConfig describes one parameter of the search space
type ParamConfig struct {
	Name    string   `yaml:"name"`
	Type    string   `yaml:"type"` // categorical, float, int
	Choices []any    `yaml:"choices,omitempty"`
	Low     *float64 `yaml:"low,omitempty"`
	High    *float64 `yaml:"high,omitempty"`
	Step    *float64 `yaml:"step,omitempty"`
	Log     bool     `yaml:"log,omitempty"`
}

// UnmarshalYAML accepts either a mapping or a sequence of parameter entries.
func (c *SearchSpaceConfig) UnmarshalYAML(node *yaml.Node) error {
	c.Params = nil
	switch node.Kind {
	case yaml.SequenceNode:
		return node.Decode(&c.Params)
	case yaml.MappingNode:
		for i := 0; i+1 < len(node.Content); i += 2 {
			key, val := node.Content[i], node.Content[i+1]
			var p ParamConfig
			if err := val.Decode(&p); err != nil {
				return fmt.Errorf("entry %q: %w", key.Value, err)
			}
			if p.Name == "" {
				p.Name = key.Value
			}
			c.Params = append(c.Params, p)
		}
		return nil
	default:
		return fmt.Errorf("line %d: search space must be a mapping or a list", node.Line)
	}
}
