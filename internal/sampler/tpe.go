package sampler

import (
	"context"
	"fmt"
	"math"
	"sort"

	"github.com/GoSim-25-26J-441/study-core/internal/space"
	"github.com/GoSim-25-26J-441/study-core/pkg/models"
	"github.com/GoSim-25-26J-441/study-core/pkg/utils"
)

const (
	defaultStartupTrials = 10
	defaultCandidates    = 24
	maxGoodTrials        = 25
	goodFraction         = 0.1
)

// TPESampler is a univariate tree-structured Parzen estimator.
//
// Completed trials are split by value into a good and a bad group. For each
// parameter a Parzen mixture is fitted to both groups, candidates are drawn
// from the good mixture, and the candidate maximizing l(x)/g(x) is kept.
// Until enough compatible observations exist it falls back to the prior.
type TPESampler struct {
	rng           *utils.RandSource
	startupTrials int
	candidates    int
}

// NewTPESampler creates a TPE sampler with default settings.
func NewTPESampler(seed int64) *TPESampler {
	return &TPESampler{
		rng:           utils.NewRandSource(seed),
		startupTrials: defaultStartupTrials,
		candidates:    defaultCandidates,
	}
}

// WithStartupTrials sets how many observations are needed before modelling
func (s *TPESampler) WithStartupTrials(n int) *TPESampler {
	s.startupTrials = n
	return s
}

// WithCandidates sets how many candidates are scored per parameter
func (s *TPESampler) WithCandidates(n int) *TPESampler {
	if n > 0 {
		s.candidates = n
	}
	return s
}

func (s *TPESampler) Name() string {
	return "tpe"
}

// Suggest returns a new assignment for sp based on history.
func (s *TPESampler) Suggest(ctx context.Context, sp *space.SearchSpace, history []models.TrialRecord, dir models.Direction) (map[string]any, error) {
	if err := checkContext(ctx); err != nil {
		return nil, err
	}

	obs := completed(sp, history)
	params := make(map[string]any, sp.Len())

	if len(obs) < s.startupTrials || len(obs) < 2 {
		for _, p := range sp.Params() {
			v, err := sampleFromPrior(s.rng, p.Dist)
			if err != nil {
				return nil, fmt.Errorf("parameter %q: %w", p.Name, err)
			}
			params[p.Name] = v
		}
		return params, nil
	}

	good, bad := splitObservations(obs, dir)
	for _, p := range sp.Params() {
		if err := checkContext(ctx); err != nil {
			return nil, err
		}
		v, err := s.sampleParam(p, good, bad)
		if err != nil {
			return nil, fmt.Errorf("parameter %q: %w", p.Name, err)
		}
		params[p.Name] = v
	}
	return params, nil
}

// splitObservations orders trials best first and cuts off the good group.
func splitObservations(obs []models.TrialRecord, dir models.Direction) (good, bad []models.TrialRecord) {
	sorted := make([]models.TrialRecord, len(obs))
	copy(sorted, obs)
	sort.SliceStable(sorted, func(i, j int) bool {
		a, b := *sorted[i].Value, *sorted[j].Value
		if a != b {
			return dir.Better(a, b)
		}
		return sorted[i].ID < sorted[j].ID
	})

	n := int(math.Ceil(goodFraction*float64(len(sorted)) - 1e-9))
	n = utils.Clamp(n, 1, maxGoodTrials)
	if n >= len(sorted) {
		n = len(sorted) - 1
	}
	return sorted[:n], sorted[n:]
}

func (s *TPESampler) sampleParam(p space.Param, good, bad []models.TrialRecord) (any, error) {
	switch d := p.Dist.(type) {
	case space.Categorical:
		return s.sampleCategorical(d, p.Name, good, bad), nil

	case space.Float:
		if d.Low == d.High {
			return d.Low, nil
		}
		lo, hi := d.Low, d.High
		if d.Step > 0 {
			lo, hi = lo-0.5*d.Step, hi+0.5*d.Step
		}
		x := s.sampleNumeric(p.Name, lo, hi, d.Log, good, bad)
		return utils.Quantize(x, d.Low, d.High, d.Step), nil

	case space.Int:
		if d.Low == d.High {
			return d.Low, nil
		}
		half := 0.5 * float64(d.Step)
		x := s.sampleNumeric(p.Name, float64(d.Low)-half, float64(d.High)+half, d.Log, good, bad)
		return utils.Quantize(int64(math.Round(x)), d.Low, d.High, d.Step), nil

	default:
		return nil, fmt.Errorf("%w: unsupported distribution %T", ErrSampling, p.Dist)
	}
}

// sampleNumeric runs the l/g candidate search in internal (possibly log)
// coordinates and returns the winner in the original scale.
func (s *TPESampler) sampleNumeric(name string, lo, hi float64, log bool, good, bad []models.TrialRecord) float64 {
	to := func(v float64) float64 { return v }
	from := to
	if log {
		to, from = math.Log, math.Exp
	}
	ilo, ihi := to(lo), to(hi)

	below := newParzen(numericValues(name, good, to), ilo, ihi)
	above := newParzen(numericValues(name, bad, to), ilo, ihi)

	best, bestScore := 0.0, math.Inf(-1)
	for i := 0; i < s.candidates; i++ {
		x := below.sample(s.rng)
		score := below.logPDF(x) - above.logPDF(x)
		if i == 0 || score > bestScore {
			best, bestScore = x, score
		}
	}
	return utils.ClampFloat64(from(best), lo, hi)
}

func numericValues(name string, trials []models.TrialRecord, to func(float64) float64) []float64 {
	out := make([]float64, 0, len(trials))
	for _, t := range trials {
		switch v := t.Params[name].(type) {
		case float64:
			out = append(out, to(v))
		case int64:
			out = append(out, to(float64(v)))
		}
	}
	return out
}

func (s *TPESampler) sampleCategorical(d space.Categorical, name string, good, bad []models.TrialRecord) any {
	lw := categoricalWeights(d, name, good)
	gw := categoricalWeights(d, name, bad)

	best, bestScore := 0, math.Inf(-1)
	for i := 0; i < s.candidates; i++ {
		idx := s.rng.WeightedIndex(lw)
		if idx < 0 {
			idx = s.rng.Intn(len(d.Choices))
		}
		score := math.Log(lw[idx]) - math.Log(gw[idx])
		if i == 0 || score > bestScore {
			best, bestScore = idx, score
		}
	}
	return d.Choices[best]
}

// categoricalWeights is a smoothed histogram over the choices.
func categoricalWeights(d space.Categorical, name string, trials []models.TrialRecord) []float64 {
	w := make([]float64, len(d.Choices))
	for i := range w {
		w[i] = 1
	}
	for _, t := range trials {
		if idx := d.Index(t.Params[name]); idx >= 0 {
			w[idx]++
		}
	}
	total := float64(len(d.Choices) + len(trials))
	for i := range w {
		w[i] /= total
	}
	return w
}

// parzen is an equally weighted mixture of normals truncated to [lo, hi].
// The first component is a wide prior centred in the interval.
type parzen struct {
	mus, sigmas []float64
	lo, hi      float64
}

func newParzen(obs []float64, lo, hi float64) *parzen {
	width := hi - lo
	mus := append([]float64{0.5 * (lo + hi)}, obs...)

	order := make([]int, len(mus))
	for i := range order {
		order[i] = i
	}
	sort.Slice(order, func(a, b int) bool { return mus[order[a]] < mus[order[b]] })

	minSigma := width / math.Min(100, float64(1+len(mus)))
	sigmas := make([]float64, len(mus))
	for pos, idx := range order {
		left := mus[idx] - lo
		if pos > 0 {
			left = mus[idx] - mus[order[pos-1]]
		}
		right := hi - mus[idx]
		if pos < len(order)-1 {
			right = mus[order[pos+1]] - mus[idx]
		}
		sigmas[idx] = utils.ClampFloat64(math.Max(left, right), minSigma, width)
	}
	sigmas[0] = width

	return &parzen{mus: mus, sigmas: sigmas, lo: lo, hi: hi}
}

func (p *parzen) sample(rng *utils.RandSource) float64 {
	i := rng.Intn(len(p.mus))
	for attempt := 0; attempt < 100; attempt++ {
		x := rng.NormFloat64(p.mus[i], p.sigmas[i])
		if x >= p.lo && x <= p.hi {
			return x
		}
	}
	return utils.ClampFloat64(p.mus[i], p.lo, p.hi)
}

func (p *parzen) logPDF(x float64) float64 {
	terms := make([]float64, len(p.mus))
	logWeight := -math.Log(float64(len(p.mus)))
	for i, mu := range p.mus {
		sigma := p.sigmas[i]
		mass := utils.NormalCDF((p.hi-mu)/sigma) - utils.NormalCDF((p.lo-mu)/sigma)
		if mass < 1e-12 {
			mass = 1e-12
		}
		terms[i] = logWeight + utils.NormalLogPDF(x, mu, sigma) - math.Log(mass)
	}
	return utils.LogSumExp(terms)
}
