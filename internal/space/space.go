// Package space turns a search-space description into typed parameter
// distributions.
package space

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"math"
	"strings"

	"github.com/GoSim-25-26J-441/study-core/pkg/config"
)

// Param is one named entry of a search space.
type Param struct {
	Name string
	Dist Distribution
}

// SearchSpace is an ordered, immutable mapping from parameter name to
// distribution.
type SearchSpace struct {
	params  []Param
	index   map[string]int
	version string
}

// New builds a search space from already-validated params.
func New(params ...Param) (*SearchSpace, error) {
	if len(params) == 0 {
		return nil, configErr("", "no parameters defined")
	}
	s := &SearchSpace{
		params: make([]Param, 0, len(params)),
		index:  make(map[string]int, len(params)),
	}
	for _, p := range params {
		if strings.TrimSpace(p.Name) == "" {
			return nil, configErr("", "parameter name is required")
		}
		if p.Dist == nil {
			return nil, configErr(p.Name, "distribution is required")
		}
		if _, dup := s.index[p.Name]; dup {
			return nil, configErr(p.Name, "duplicate parameter")
		}
		s.index[p.Name] = len(s.params)
		s.params = append(s.params, p)
	}
	s.version = fingerprint(s.params)
	return s, nil
}

// Build validates a parsed description and constructs the search space.
func Build(cfg *config.SearchSpaceConfig) (*SearchSpace, error) {
	if cfg == nil || len(cfg.Params) == 0 {
		return nil, configErr("", "no parameters defined")
	}
	params := make([]Param, 0, len(cfg.Params))
	for _, pc := range cfg.Params {
		dist, err := buildDistribution(pc)
		if err != nil {
			return nil, err
		}
		params = append(params, Param{Name: pc.Name, Dist: dist})
	}
	return New(params...)
}

// ParseYAML parses and builds a search space from YAML text.
func ParseYAML(data []byte) (*SearchSpace, error) {
	cfg, err := config.ParseSearchSpaceYAML(data)
	if err != nil {
		return nil, &ConfigError{Reason: "parse", Err: err}
	}
	return Build(cfg)
}

// Load reads a search-space file from disk. I/O failures keep their
// fs.PathError; anything else is a ConfigError.
func Load(path string) (*SearchSpace, error) {
	cfg, err := config.LoadSearchSpace(path)
	if err != nil {
		var pathErr *fs.PathError
		if errors.As(err, &pathErr) {
			return nil, err
		}
		return nil, &ConfigError{Reason: "parse", Err: err}
	}
	return Build(cfg)
}

func buildDistribution(pc config.ParamConfig) (Distribution, error) {
	name := pc.Name
	switch Kind(strings.ToLower(strings.TrimSpace(pc.Type))) {
	case KindCategorical:
		d, err := NewCategorical(pc.Choices)
		if err != nil {
			return nil, &ConfigError{Param: name, Reason: "categorical", Err: err}
		}
		return d, nil

	case KindFloat:
		if pc.Low == nil || pc.High == nil {
			return nil, configErr(name, "float requires low and high")
		}
		var step float64
		if pc.Step != nil {
			if *pc.Step <= 0 {
				return nil, configErr(name, "step must be positive")
			}
			step = *pc.Step
		}
		if step > 0 && pc.Log {
			return nil, configErr(name, "step and log are mutually exclusive")
		}
		d, err := NewFloat(*pc.Low, *pc.High, step, pc.Log)
		if err != nil {
			return nil, &ConfigError{Param: name, Reason: "float", Err: err}
		}
		return d, nil

	case KindInt:
		if pc.Low == nil || pc.High == nil {
			return nil, configErr(name, "int requires low and high")
		}
		low, err := integral(*pc.Low)
		if err != nil {
			return nil, &ConfigError{Param: name, Reason: "low", Err: err}
		}
		high, err := integral(*pc.High)
		if err != nil {
			return nil, &ConfigError{Param: name, Reason: "high", Err: err}
		}
		var step int64 = 1
		if pc.Step != nil {
			if step, err = integral(*pc.Step); err != nil {
				return nil, &ConfigError{Param: name, Reason: "step", Err: err}
			}
			if step <= 0 {
				return nil, configErr(name, "step must be positive")
			}
		}
		if step != 1 && pc.Log {
			return nil, configErr(name, "step and log are mutually exclusive")
		}
		d, err := NewInt(low, high, step, pc.Log)
		if err != nil {
			return nil, &ConfigError{Param: name, Reason: "int", Err: err}
		}
		return d, nil

	case "":
		return nil, configErr(name, "type is required")
	default:
		return nil, configErr(name, "unknown type %q", pc.Type)
	}
}

func integral(f float64) (int64, error) {
	if math.IsNaN(f) || math.IsInf(f, 0) || f != math.Trunc(f) {
		return 0, fmt.Errorf("%v is not an integer", f)
	}
	return int64(f), nil
}

// Params returns the parameters in declaration order.
func (s *SearchSpace) Params() []Param {
	out := make([]Param, len(s.params))
	copy(out, s.params)
	return out
}

// Names returns the parameter names in declaration order.
func (s *SearchSpace) Names() []string {
	out := make([]string, len(s.params))
	for i, p := range s.params {
		out[i] = p.Name
	}
	return out
}

// Get returns the distribution registered for name.
func (s *SearchSpace) Get(name string) (Distribution, bool) {
	i, ok := s.index[name]
	if !ok {
		return nil, false
	}
	return s.params[i].Dist, true
}

func (s *SearchSpace) Len() int { return len(s.params) }

// Version is a stable fingerprint of the space. Two spaces with the same
// parameters in the same order share a version.
func (s *SearchSpace) Version() string { return s.version }

// Validate checks that params assigns an in-domain value to every parameter
// and to nothing else.
func (s *SearchSpace) Validate(params map[string]any) error {
	if len(params) != len(s.params) {
		return fmt.Errorf("expected %d parameters, got %d", len(s.params), len(params))
	}
	for _, p := range s.params {
		v, ok := params[p.Name]
		if !ok {
			return fmt.Errorf("parameter %q missing", p.Name)
		}
		if !p.Dist.Contains(v) {
			return fmt.Errorf("parameter %q: value %v outside %s domain", p.Name, v, p.Dist.Kind())
		}
	}
	return nil
}

// Compatible reports whether every value in params lies in this space.
// Extra keys are ignored; missing keys make the params incompatible.
func (s *SearchSpace) Compatible(params map[string]any) bool {
	for _, p := range s.params {
		v, ok := params[p.Name]
		if !ok || !p.Dist.Contains(v) {
			return false
		}
	}
	return true
}

type paramDescriptor struct {
	Name    string  `json:"name"`
	Kind    Kind    `json:"kind"`
	Choices []any   `json:"choices,omitempty"`
	Low     float64 `json:"low,omitempty"`
	High    float64 `json:"high,omitempty"`
	Step    float64 `json:"step,omitempty"`
	Log     bool    `json:"log,omitempty"`
}

func describe(p Param) paramDescriptor {
	d := paramDescriptor{Name: p.Name, Kind: p.Dist.Kind()}
	switch dist := p.Dist.(type) {
	case Categorical:
		d.Choices = dist.Choices
	case Float:
		d.Low, d.High, d.Step, d.Log = dist.Low, dist.High, dist.Step, dist.Log
	case Int:
		d.Low, d.High, d.Step, d.Log = float64(dist.Low), float64(dist.High), float64(dist.Step), dist.Log
	}
	return d
}

func fingerprint(params []Param) string {
	descs := make([]paramDescriptor, len(params))
	for i, p := range params {
		descs[i] = describe(p)
	}
	raw, err := json.Marshal(descs)
	if err != nil {
		// Choices that cannot be encoded still need a distinct version.
		raw = []byte(fmt.Sprintf("%#v", descs))
	}
	sum := sha256.Sum256(raw)
	return hex.EncodeToString(sum[:8])
}
