package server

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/GoSim-25-26J-441/study-core/internal/space"
	"github.com/GoSim-25-26J-441/study-core/internal/study"
	"github.com/GoSim-25-26J-441/study-core/pkg/logger"
	"github.com/GoSim-25-26J-441/study-core/pkg/models"
)

// Options configures both the HTTP and gRPC front ends.
type Options struct {
	Engine *study.Engine
	// Space is used by asks that carry no search-space description.
	Space      *space.SearchSpace
	Direction  models.Direction
	AuthSecret string
	Logger     *slog.Logger
}

// service holds the request logic shared by the HTTP and gRPC front ends.
type service struct {
	engine    *study.Engine
	space     *space.SearchSpace
	direction models.Direction
	logger    *slog.Logger
}

func newService(opts Options) *service {
	dir := opts.Direction
	if dir == "" {
		dir = models.DirectionMinimize
	}
	return &service{
		engine:    opts.Engine,
		space:     opts.Space,
		direction: dir,
		logger:    logger.Or(opts.Logger),
	}
}

type askRequest struct {
	SearchSpaceYAML string `json:"search_space_yaml,omitempty"`
	Direction       string `json:"direction,omitempty"`
}

type askResponse struct {
	Study        string         `json:"study"`
	TrialID      int64          `json:"trial_id"`
	Params       map[string]any `json:"params"`
	SpaceVersion string         `json:"space_version"`
	Running      int            `json:"running_count"`
	Completed    int            `json:"completed_count"`
}

func (s *service) ask(ctx context.Context, name string, req askRequest) (askResponse, error) {
	sp := s.space
	if strings.TrimSpace(req.SearchSpaceYAML) != "" {
		parsed, err := space.ParseYAML([]byte(req.SearchSpaceYAML))
		if err != nil {
			return askResponse{}, err
		}
		sp = parsed
	}
	dir := s.direction
	if req.Direction != "" {
		d, err := models.ParseDirection(req.Direction)
		if err != nil {
			return askResponse{}, fmt.Errorf("%w: %w", study.ErrInvalidArgument, err)
		}
		dir = d
	}

	st, err := s.engine.Open(ctx, name, sp, dir)
	if err != nil {
		return askResponse{}, err
	}
	res, err := st.Ask(ctx)
	if err != nil {
		return askResponse{}, err
	}
	return askResponse{
		Study:        st.Name(),
		TrialID:      res.Trial.ID,
		Params:       res.Trial.Params,
		SpaceVersion: res.Trial.SpaceVersion,
		Running:      res.Running,
		Completed:    res.Completed,
	}, nil
}

type tellRequest struct {
	TrialID *int64   `json:"trial_id"`
	Value   *float64 `json:"value,omitempty"`
	Step    *int64   `json:"step,omitempty"`
	State   string   `json:"state,omitempty"`
}

type tellResponse struct {
	Study       string            `json:"study"`
	TrialID     int64             `json:"trial_id"`
	State       models.TrialState `json:"state"`
	Params      map[string]any    `json:"params"`
	Value       *float64          `json:"value,omitempty"`
	BestTrialID *int64            `json:"best_trial_id,omitempty"`
	BestParams  map[string]any    `json:"best_params,omitempty"`
	BestValue   *float64          `json:"best_value,omitempty"`
	Running     int               `json:"running_count"`
	Completed   int               `json:"completed_count"`
}

// tell routes a report to Tell, Report or Fail depending on its fields.
func (s *service) tell(ctx context.Context, name string, req tellRequest) (tellResponse, error) {
	if req.TrialID == nil {
		return tellResponse{}, fmt.Errorf("%w: trial_id is required", study.ErrInvalidArgument)
	}
	st, err := s.engine.Get(ctx, name, nil)
	if err != nil {
		return tellResponse{}, err
	}

	var res study.TellResult
	state := models.TrialStateComplete
	if req.State != "" {
		state, err = models.ParseTrialState(req.State)
		if err != nil {
			return tellResponse{}, fmt.Errorf("%w: %w", study.ErrInvalidArgument, err)
		}
	}
	switch {
	case state == models.TrialStateFailed:
		res, err = st.Fail(ctx, *req.TrialID)
	case req.Value == nil:
		return tellResponse{}, fmt.Errorf("%w: value is required", study.ErrInvalidArgument)
	case req.Step != nil || state == models.TrialStateRunning:
		var step int64
		if req.Step != nil {
			step = *req.Step
		}
		res, err = st.Report(ctx, *req.TrialID, step, *req.Value)
	default:
		res, err = st.Tell(ctx, *req.TrialID, *req.Value)
	}
	if err != nil {
		return tellResponse{}, err
	}

	out := tellResponse{
		Study:     st.Name(),
		TrialID:   res.Trial.ID,
		State:     res.Trial.State,
		Params:    res.Trial.Params,
		Value:     res.Trial.Value,
		Running:   res.Running,
		Completed: res.Completed,
	}
	if res.Best != nil {
		id := res.Best.ID
		out.BestTrialID = &id
		out.BestParams = res.Best.Params
		out.BestValue = res.Best.Value
	}
	return out, nil
}

type bestResponse struct {
	Study     string             `json:"study"`
	Direction models.Direction   `json:"direction"`
	Trial     models.TrialRecord `json:"best"`
	Running   int                `json:"running_count"`
	Completed int                `json:"completed_count"`
}

func (s *service) best(ctx context.Context, name string) (bestResponse, error) {
	st, err := s.engine.Get(ctx, name, nil)
	if err != nil {
		return bestResponse{}, err
	}
	trials, err := st.Trials(ctx)
	if err != nil {
		return bestResponse{}, err
	}
	best, ok := models.BestTrial(trials, st.Direction())
	if !ok {
		return bestResponse{}, fmt.Errorf("study %q has no completed trials: %w", name, study.ErrNotFound)
	}
	running, completed := models.CountStates(trials)
	return bestResponse{
		Study:     st.Name(),
		Direction: st.Direction(),
		Trial:     best,
		Running:   running,
		Completed: completed,
	}, nil
}

type trialsResponse struct {
	Study     string               `json:"study"`
	Direction models.Direction     `json:"direction"`
	Trials    []models.TrialRecord `json:"trials"`
}

func (s *service) trials(ctx context.Context, name string, states []models.TrialState) (trialsResponse, error) {
	st, err := s.engine.Get(ctx, name, nil)
	if err != nil {
		return trialsResponse{}, err
	}
	trials, err := st.Trials(ctx, states...)
	if err != nil {
		return trialsResponse{}, err
	}
	if trials == nil {
		trials = []models.TrialRecord{}
	}
	return trialsResponse{Study: st.Name(), Direction: st.Direction(), Trials: trials}, nil
}
