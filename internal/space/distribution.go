package space

import (
	"encoding/json"
	"fmt"
	"math"
	"reflect"
)

// Kind names a distribution variant. The values match the "type" field of
// the search-space description.
type Kind string

const (
	KindCategorical Kind = "categorical"
	KindFloat       Kind = "float"
	KindInt         Kind = "int"
)

// Distribution is the domain of one parameter. The set of implementations
// is closed: Categorical, Float and Int.
type Distribution interface {
	Kind() Kind
	// Contains reports whether v is a value this distribution could produce.
	Contains(v any) bool
	sealed()
}

// Categorical is a choice among opaque values.
type Categorical struct {
	Choices []any
}

// Float is a real interval [Low, High]. Step > 0 restricts values to the
// grid Low + k*Step; Log samples uniformly in log space.
type Float struct {
	Low, High float64
	Step      float64
	Log       bool
}

// Int is an integer interval [Low, High] on the grid Low + k*Step.
type Int struct {
	Low, High int64
	Step      int64
	Log       bool
}

func (Categorical) sealed() {}
func (Float) sealed()       {}
func (Int) sealed()         {}

func (Categorical) Kind() Kind { return KindCategorical }
func (Float) Kind() Kind       { return KindFloat }
func (Int) Kind() Kind         { return KindInt }

// NewCategorical validates and normalizes a set of choices.
func NewCategorical(choices []any) (Categorical, error) {
	if len(choices) == 0 {
		return Categorical{}, fmt.Errorf("categorical needs at least one choice")
	}
	out := make([]any, len(choices))
	for i, c := range choices {
		out[i] = NormalizeValue(c)
	}
	return Categorical{Choices: out}, nil
}

// NewFloat validates a float distribution. step == 0 means continuous.
func NewFloat(low, high, step float64, log bool) (Float, error) {
	switch {
	case math.IsNaN(low) || math.IsNaN(high) || math.IsInf(low, 0) || math.IsInf(high, 0):
		return Float{}, fmt.Errorf("bounds must be finite")
	case low > high:
		return Float{}, fmt.Errorf("low (%v) must be <= high (%v)", low, high)
	case math.IsInf(high-low, 0):
		return Float{}, fmt.Errorf("range [%v, %v] is too wide", low, high)
	case log && low <= 0:
		return Float{}, fmt.Errorf("log scale requires low > 0, got %v", low)
	case step < 0 || math.IsNaN(step):
		return Float{}, fmt.Errorf("step must be positive, got %v", step)
	}
	return Float{Low: low, High: high, Step: step, Log: log}, nil
}

// NewInt validates an int distribution. step == 0 defaults to 1.
func NewInt(low, high, step int64, log bool) (Int, error) {
	if step == 0 {
		step = 1
	}
	switch {
	case low > high:
		return Int{}, fmt.Errorf("low (%d) must be <= high (%d)", low, high)
	case high-low < 0:
		return Int{}, fmt.Errorf("range [%d, %d] is too wide", low, high)
	case log && low <= 0:
		return Int{}, fmt.Errorf("log scale requires low > 0, got %d", low)
	case step < 0:
		return Int{}, fmt.Errorf("step must be positive, got %d", step)
	}
	return Int{Low: low, High: high, Step: step, Log: log}, nil
}

// Contains reports whether v is one of the choices.
func (c Categorical) Contains(v any) bool {
	return c.Index(v) >= 0
}

// Index returns the position of v among the choices, or -1.
func (c Categorical) Index(v any) int {
	v = NormalizeValue(v)
	for i, choice := range c.Choices {
		if reflect.DeepEqual(choice, v) {
			return i
		}
	}
	return -1
}

// Contains reports whether v is a float inside the interval and on the grid.
func (f Float) Contains(v any) bool {
	x, ok := v.(float64)
	if !ok || math.IsNaN(x) || x < f.Low || x > f.High {
		return false
	}
	if f.Step > 0 {
		k := (x - f.Low) / f.Step
		return math.Abs(k-math.Round(k)) < 1e-8
	}
	return true
}

// Contains reports whether v is an int64 inside the interval and on the grid.
func (d Int) Contains(v any) bool {
	x, ok := v.(int64)
	if !ok || x < d.Low || x > d.High {
		return false
	}
	if d.Step <= 1 {
		return true
	}
	return (x-d.Low)%d.Step == 0
}

// NormalizeValue maps Go numeric types onto int64 / float64 so values coming
// from YAML, JSON or callers compare equal. Numbers nested inside lists and
// maps become float64, which is what a JSON round trip yields.
func NormalizeValue(v any) any {
	switch x := v.(type) {
	case int:
		return int64(x)
	case int8:
		return int64(x)
	case int16:
		return int64(x)
	case int32:
		return int64(x)
	case uint:
		return int64(x)
	case uint8:
		return int64(x)
	case uint16:
		return int64(x)
	case uint32:
		return int64(x)
	case uint64:
		return int64(x)
	case float32:
		return float64(x)
	case []any, map[string]any, map[any]any:
		return normalizeNested(x)
	default:
		return v
	}
}

func normalizeNested(v any) any {
	switch x := v.(type) {
	case []any:
		out := make([]any, len(x))
		for i, e := range x {
			out[i] = normalizeNested(e)
		}
		return out
	case map[string]any:
		out := make(map[string]any, len(x))
		for k, e := range x {
			out[k] = normalizeNested(e)
		}
		return out
	case map[any]any:
		out := make(map[string]any, len(x))
		for k, e := range x {
			out[fmt.Sprint(k)] = normalizeNested(e)
		}
		return out
	case json.Number:
		f, err := x.Float64()
		if err != nil {
			return x.String()
		}
		return f
	}
	switch n := NormalizeValue(v).(type) {
	case int64:
		return float64(n)
	default:
		return n
	}
}
