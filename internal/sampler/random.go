package sampler

import (
	"context"
	"fmt"

	"github.com/GoSim-25-26J-441/study-core/internal/space"
	"github.com/GoSim-25-26J-441/study-core/pkg/models"
	"github.com/GoSim-25-26J-441/study-core/pkg/utils"
)

// RandomSampler draws every parameter independently from its prior.
type RandomSampler struct {
	rng *utils.RandSource
}

// NewRandomSampler creates a random sampler. A zero seed is time-based.
func NewRandomSampler(seed int64) *RandomSampler {
	return &RandomSampler{rng: utils.NewRandSource(seed)}
}

func (s *RandomSampler) Name() string {
	return "random"
}

// Suggest ignores history and samples the prior.
func (s *RandomSampler) Suggest(ctx context.Context, sp *space.SearchSpace, _ []models.TrialRecord, _ models.Direction) (map[string]any, error) {
	if err := checkContext(ctx); err != nil {
		return nil, err
	}
	params := make(map[string]any, sp.Len())
	for _, p := range sp.Params() {
		v, err := sampleFromPrior(s.rng, p.Dist)
		if err != nil {
			return nil, fmt.Errorf("parameter %q: %w", p.Name, err)
		}
		params[p.Name] = v
	}
	return params, nil
}
