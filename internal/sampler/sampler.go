// Package sampler proposes parameter assignments for new trials.
package sampler

import (
	"context"
	"errors"
	"fmt"
	"math"

	"github.com/GoSim-25-26J-441/study-core/internal/space"
	"github.com/GoSim-25-26J-441/study-core/pkg/config"
	"github.com/GoSim-25-26J-441/study-core/pkg/models"
	"github.com/GoSim-25-26J-441/study-core/pkg/utils"
)

// ErrSampling is wrapped by every error a Sampler returns.
var ErrSampling = errors.New("sampling failed")

// Sampler generates one value per parameter of a search space.
//
// Implementations must only read the space and the given history, must only
// learn from COMPLETE trials, and must return values that the corresponding
// distribution Contains.
type Sampler interface {
	Suggest(ctx context.Context, sp *space.SearchSpace, history []models.TrialRecord, dir models.Direction) (map[string]any, error)
	Name() string
}

// New creates a sampler by name: "random" or "tpe".
func New(name string, seed int64) (Sampler, error) {
	kind, err := config.SamplerKind(name)
	if err != nil {
		return nil, err
	}
	if kind == "random" {
		return NewRandomSampler(seed), nil
	}
	return NewTPESampler(seed), nil
}

// FromConfig creates the sampler described by cfg.
func FromConfig(cfg config.SamplerConfig) (Sampler, error) {
	s, err := New(cfg.Name, cfg.Seed)
	if err != nil {
		return nil, err
	}
	if tpe, ok := s.(*TPESampler); ok {
		if cfg.StartupTrials > 0 {
			tpe.WithStartupTrials(cfg.StartupTrials)
		}
		if cfg.Candidates > 0 {
			tpe.WithCandidates(cfg.Candidates)
		}
	}
	return s, nil
}

// completed returns the COMPLETE trials with a value whose params still fit sp.
func completed(sp *space.SearchSpace, history []models.TrialRecord) []models.TrialRecord {
	out := make([]models.TrialRecord, 0, len(history))
	for _, t := range history {
		if t.State != models.TrialStateComplete || t.Value == nil || math.IsNaN(*t.Value) {
			continue
		}
		if !sp.Compatible(t.Params) {
			continue
		}
		out = append(out, t)
	}
	return out
}

// sampleFromPrior draws one value from the distribution's prior.
func sampleFromPrior(rng *utils.RandSource, dist space.Distribution) (any, error) {
	switch d := dist.(type) {
	case space.Categorical:
		return d.Choices[rng.Intn(len(d.Choices))], nil

	case space.Float:
		if d.Low == d.High {
			return d.Low, nil
		}
		if d.Log {
			return rng.LogUniformFloat64(d.Low, d.High), nil
		}
		if d.Step > 0 {
			n := int64(math.Floor((d.High-d.Low)/d.Step + 1e-9))
			k := rng.UniformInt64(0, n)
			return utils.Quantize(d.Low+float64(k)*d.Step, d.Low, d.High, d.Step), nil
		}
		return rng.UniformFloat64(d.Low, d.High), nil

	case space.Int:
		if d.Low == d.High {
			return d.Low, nil
		}
		if d.Log {
			x := rng.LogUniformFloat64(float64(d.Low)-0.5, float64(d.High)+0.5)
			return utils.Quantize(int64(math.Round(x)), d.Low, d.High, d.Step), nil
		}
		k := rng.UniformInt64(0, (d.High-d.Low)/d.Step)
		return d.Low + k*d.Step, nil

	default:
		return nil, fmt.Errorf("%w: unsupported distribution %T", ErrSampling, dist)
	}
}

func checkContext(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%w: %w", ErrSampling, err)
	}
	return nil
}
