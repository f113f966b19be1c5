package space

import (
	"encoding/json"
	"errors"
	"io/fs"
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const demoYAML = `
lr:
  name: learning_rate
  type: float
  low: 0.00001
  high: 0.1
  log: true
layers:
  name: n_layers
  type: int
  low: 1
  high: 4
optimizer:
  name: optimizer
  type: categorical
  choices: [adam, sgd]
dropout:
  name: dropout
  type: float
  low: 0.0
  high: 0.5
  step: 0.1
`

func TestParseYAML(t *testing.T) {
	s, err := ParseYAML([]byte(demoYAML))
	require.NoError(t, err)

	assert.Equal(t, []string{"learning_rate", "n_layers", "optimizer", "dropout"}, s.Names())
	assert.Equal(t, 4, s.Len())

	lr, ok := s.Get("learning_rate")
	require.True(t, ok)
	assert.Equal(t, Float{Low: 1e-5, High: 0.1, Log: true}, lr)

	layers, _ := s.Get("n_layers")
	assert.Equal(t, Int{Low: 1, High: 4, Step: 1}, layers)

	opt, _ := s.Get("optimizer")
	assert.Equal(t, Categorical{Choices: []any{"adam", "sgd"}}, opt)

	_, ok = s.Get("missing")
	assert.False(t, ok)
}

func TestParseYAMLErrors(t *testing.T) {
	tests := []struct {
		name string
		yaml string
	}{
		{"unknown type", "x: {name: x, type: weird}"},
		{"missing type", "x: {name: x, low: 0, high: 1}"},
		{"float without bounds", "x: {name: x, type: float, low: 0}"},
		{"low above high", "x: {name: x, type: float, low: 2, high: 1}"},
		{"range too wide", "x: {name: x, type: float, low: -1e308, high: 1e308}"},
		{"log with zero low", "x: {name: x, type: float, low: 0, high: 1, log: true}"},
		{"step with log", "x: {name: x, type: float, low: 1, high: 2, step: 0.5, log: true}"},
		{"negative step", "x: {name: x, type: int, low: 0, high: 4, step: -1}"},
		{"fractional int", "x: {name: x, type: int, low: 0.5, high: 4}"},
		{"empty choices", "x: {name: x, type: categorical, choices: []}"},
		{"duplicate names", "a: {name: x, type: int, low: 0, high: 1}\nb: {name: x, type: int, low: 0, high: 1}"},
		{"not yaml", "x: [unterminated"},
		{"empty document", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseYAML([]byte(tt.yaml))
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrInvalidConfig)

			var cfgErr *ConfigError
			assert.True(t, errors.As(err, &cfgErr))
		})
	}
}

func TestLoad(t *testing.T) {
	dir := t.TempDir()
	good := filepath.Join(dir, "space.yaml")
	require.NoError(t, os.WriteFile(good, []byte(demoYAML), 0o600))
	sp, err := Load(good)
	require.NoError(t, err)
	assert.Equal(t, 4, sp.Len())

	_, err = Load(filepath.Join(dir, "missing.yaml"))
	assert.ErrorIs(t, err, fs.ErrNotExist)
	assert.NotErrorIs(t, err, ErrInvalidConfig)

	bad := filepath.Join(dir, "bad.yaml")
	require.NoError(t, os.WriteFile(bad, []byte("x: [unterminated"), 0o600))
	_, err = Load(bad)
	assert.ErrorIs(t, err, ErrInvalidConfig)
}

func TestConfigErrorMessage(t *testing.T) {
	_, err := ParseYAML([]byte("x: {name: x, type: weird}"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), `parameter "x"`)
	assert.Contains(t, err.Error(), `unknown type "weird"`)
}

func TestContains(t *testing.T) {
	f := Float{Low: 0, High: 1, Step: 0.25}
	assert.True(t, f.Contains(0.75))
	assert.False(t, f.Contains(0.8))
	assert.False(t, f.Contains(1.25))
	assert.False(t, f.Contains(int64(1)))

	i := Int{Low: 1, High: 10, Step: 3}
	assert.True(t, i.Contains(int64(7)))
	assert.False(t, i.Contains(int64(8)))
	assert.False(t, i.Contains(7.0))

	c, err := NewCategorical([]any{1, "b", nil, 2.5})
	require.NoError(t, err)
	assert.True(t, c.Contains(int64(1)))
	assert.True(t, c.Contains(1))
	assert.True(t, c.Contains(nil))
	assert.False(t, c.Contains("a"))
	assert.Equal(t, 3, c.Index(2.5))
}

func TestNewIntRejectsOverflowingRange(t *testing.T) {
	_, err := NewInt(math.MinInt64, math.MaxInt64, 1, false)
	assert.Error(t, err)
	_, err = NewInt(math.MinInt64/2, math.MaxInt64/2, 1, false)
	assert.NoError(t, err)
}

func TestNestedChoicesMatchAfterJSONRoundTrip(t *testing.T) {
	s, err := ParseYAML([]byte("shape: {name: shape, type: categorical, choices: [[1, 2], [3, 4], {a: 1}]}"))
	require.NoError(t, err)

	for _, want := range []any{[]any{1, 2}, []any{3, 4}, map[string]any{"a": 1}} {
		data, err := json.Marshal(want)
		require.NoError(t, err)
		var got any
		require.NoError(t, json.Unmarshal(data, &got))
		assert.True(t, s.Compatible(map[string]any{"shape": got}), "%v", got)
	}
	cat := s.Params()[0].Dist.(Categorical)
	assert.Equal(t, 1, cat.Index([]any{3.0, 4.0}))
	assert.Equal(t, -1, cat.Index([]any{3, 5}))
}

func TestVersion(t *testing.T) {
	a, err := ParseYAML([]byte(demoYAML))
	require.NoError(t, err)
	b, err := ParseYAML([]byte(demoYAML))
	require.NoError(t, err)
	assert.Equal(t, a.Version(), b.Version())
	assert.Len(t, a.Version(), 16)

	c, err := ParseYAML([]byte("x: {name: x, type: int, low: 0, high: 5}"))
	require.NoError(t, err)
	assert.NotEqual(t, a.Version(), c.Version())
}

func TestValidateAndCompatible(t *testing.T) {
	s, err := New(
		Param{Name: "x", Dist: Float{Low: -10, High: 10}},
		Param{Name: "n", Dist: Int{Low: 0, High: 3, Step: 1}},
	)
	require.NoError(t, err)

	assert.NoError(t, s.Validate(map[string]any{"x": 1.5, "n": int64(2)}))
	assert.Error(t, s.Validate(map[string]any{"x": 1.5}))
	assert.Error(t, s.Validate(map[string]any{"x": 11.0, "n": int64(2)}))
	assert.Error(t, s.Validate(map[string]any{"x": 1.0, "n": int64(2), "extra": 1}))

	assert.True(t, s.Compatible(map[string]any{"x": 1.5, "n": int64(2), "extra": 1}))
	assert.False(t, s.Compatible(map[string]any{"x": 1.5}))
}

func TestNewRejectsBadParams(t *testing.T) {
	_, err := New()
	assert.ErrorIs(t, err, ErrInvalidConfig)
	_, err = New(Param{Name: "", Dist: Int{Low: 0, High: 1, Step: 1}})
	assert.ErrorIs(t, err, ErrInvalidConfig)
	_, err = New(Param{Name: "x"})
	assert.ErrorIs(t, err, ErrInvalidConfig)
}
