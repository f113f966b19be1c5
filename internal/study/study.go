package study

import (
	"context"
	"fmt"
	"math"
	"sync"

	"github.com/GoSim-25-26J-441/study-core/internal/space"
	"github.com/GoSim-25-26J-441/study-core/internal/storage"
	"github.com/GoSim-25-26J-441/study-core/pkg/models"
)

// AskResult is the trial handed to a worker plus study counters.
type AskResult struct {
	Trial     models.TrialRecord
	Running   int
	Completed int
}

// TellResult is the updated trial plus the study state after the update.
type TellResult struct {
	Trial     models.TrialRecord
	Best      *models.TrialRecord
	Running   int
	Completed int
}

// Study is a handle on one named study. Handles are cheap; all handles for
// the same name on one Engine share a lock.
type Study struct {
	engine    *Engine
	name      string
	direction models.Direction
	space     *space.SearchSpace
	lock      *sync.Mutex
}

func (s *Study) Name() string                { return s.name }
func (s *Study) Direction() models.Direction { return s.direction }

// Space returns the search space this handle asks with, or nil.
func (s *Study) Space() *space.SearchSpace { return s.space }

// Ask samples a new assignment and records it as a RUNNING trial.
// On error nothing is recorded.
func (s *Study) Ask(ctx context.Context) (AskResult, error) {
	if s.space == nil {
		return AskResult{}, &space.ConfigError{Reason: fmt.Sprintf("study %q has no search space", s.name)}
	}
	e := s.engine

	s.lock.Lock()
	defer s.lock.Unlock()

	all, err := s.list(ctx)
	if err != nil {
		return AskResult{}, err
	}
	history := make([]models.TrialRecord, 0, len(all))
	for _, t := range all {
		if t.State == models.TrialStateComplete {
			history = append(history, t)
		}
	}
	running, completed := models.CountStates(all)

	params, err := e.sampler.Suggest(ctx, s.space, history, s.direction)
	if err != nil {
		return AskResult{}, fmt.Errorf("%w: %w", ErrSampler, err)
	}
	if err := s.space.Validate(params); err != nil {
		return AskResult{}, fmt.Errorf("%w: %s returned %v", ErrSampler, e.sampler.Name(), err)
	}

	var trial models.TrialRecord
	err = e.withStore(ctx, "create_trial", func(ctx context.Context) error {
		var err error
		trial, err = e.store.CreateTrial(ctx, models.TrialRecord{
			Study:        s.name,
			State:        models.TrialStateRunning,
			Params:       params,
			SpaceVersion: s.space.Version(),
			CreatedAt:    e.now(),
		})
		return err
	})
	if err != nil {
		return AskResult{}, storeError("ask", err)
	}

	e.metrics.ask(ctx, s.name)
	e.logger.Debug("trial asked", "study", s.name, "trial_id", trial.ID, "params", trial.Params)
	return AskResult{Trial: trial, Running: running + 1, Completed: completed}, nil
}

// Tell completes a RUNNING trial with its objective value.
func (s *Study) Tell(ctx context.Context, id int64, value float64) (TellResult, error) {
	if err := checkValue(value); err != nil {
		return TellResult{}, err
	}
	now := s.engine.now()
	return s.update(ctx, id, "complete", storage.TrialUpdate{
		State:      models.TrialStateComplete,
		Value:      &value,
		FinishedAt: &now,
	})
}

// Report records an intermediate value at step for a RUNNING trial.
// The trial stays RUNNING.
func (s *Study) Report(ctx context.Context, id, step int64, value float64) (TellResult, error) {
	if err := checkValue(value); err != nil {
		return TellResult{}, err
	}
	if step < 0 {
		return TellResult{}, fmt.Errorf("%w: step must be non-negative", ErrInvalidArgument)
	}
	return s.update(ctx, id, "report", storage.TrialUpdate{
		State:        models.TrialStateRunning,
		Intermediate: map[int64]float64{step: value},
	})
}

// Fail marks a RUNNING trial as FAILED. Failed trials never count as best
// and are not fed to the sampler.
func (s *Study) Fail(ctx context.Context, id int64) (TellResult, error) {
	now := s.engine.now()
	return s.update(ctx, id, "fail", storage.TrialUpdate{
		State:      models.TrialStateFailed,
		FinishedAt: &now,
	})
}

func (s *Study) update(ctx context.Context, id int64, outcome string, upd storage.TrialUpdate) (TellResult, error) {
	e := s.engine

	// Publishing under the lock keeps snapshots in update order.
	s.lock.Lock()
	defer s.lock.Unlock()

	var trial models.TrialRecord
	err := e.withStore(ctx, "update_trial", func(ctx context.Context) error {
		var err error
		trial, err = e.store.UpdateTrial(ctx, s.name, id, upd)
		return err
	})
	if err != nil {
		e.metrics.tell(ctx, s.name, "rejected")
		return TellResult{}, storeError(fmt.Sprintf("trial %d", id), err)
	}
	all, err := s.list(ctx)
	if err != nil {
		return TellResult{}, err
	}

	res := TellResult{Trial: trial}
	if best, ok := models.BestTrial(all, s.direction); ok {
		res.Best = &best
	}
	res.Running, res.Completed = models.CountStates(all)

	e.metrics.tell(ctx, s.name, outcome)
	e.logger.Debug("trial updated", "study", s.name, "trial_id", id, "outcome", outcome, "state", trial.State)

	e.publish(ctx, models.StudySnapshot{
		Study:     s.name,
		Direction: s.direction,
		Event:     trial,
		Best:      res.Best,
		Trials:    all,
		Running:   res.Running,
		Completed: res.Completed,
	})
	return res, nil
}

// Best returns the best COMPLETE trial. ok is false when none exists.
func (s *Study) Best(ctx context.Context) (best models.TrialRecord, ok bool, err error) {
	done, err := s.list(ctx, models.TrialStateComplete)
	if err != nil {
		return models.TrialRecord{}, false, err
	}
	best, ok = models.BestTrial(done, s.direction)
	return best, ok, nil
}

// Trials returns trials ordered by id, optionally filtered by state.
func (s *Study) Trials(ctx context.Context, states ...models.TrialState) ([]models.TrialRecord, error) {
	return s.list(ctx, states...)
}

// Counts returns the number of RUNNING and COMPLETE trials.
func (s *Study) Counts(ctx context.Context) (running, completed int, err error) {
	all, err := s.list(ctx)
	if err != nil {
		return 0, 0, err
	}
	running, completed = models.CountStates(all)
	return running, completed, nil
}

func (s *Study) list(ctx context.Context, states ...models.TrialState) ([]models.TrialRecord, error) {
	var trials []models.TrialRecord
	err := s.engine.withStore(ctx, "list_trials", func(ctx context.Context) error {
		var err error
		trials, err = s.engine.store.ListTrials(ctx, s.name, states...)
		return err
	})
	if err != nil {
		return nil, storeError(fmt.Sprintf("study %q", s.name), err)
	}
	return trials, nil
}

func checkValue(v float64) error {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return fmt.Errorf("%w: value must be finite, got %v", ErrInvalidArgument, v)
	}
	return nil
}
