// Package storage persists studies and their trials.
//
// Every backend guarantees that trial ids are allocated atomically per study
// and that a trial leaves the RUNNING state at most once, even when several
// processes share the same database.
package storage

import (
	"context"
	"errors"
	"time"

	"github.com/GoSim-25-26J-441/study-core/pkg/models"
)

var (
	ErrStudyNotFound  = errors.New("storage: study not found")
	ErrTrialNotFound  = errors.New("storage: trial not found")
	ErrTrialTerminal  = errors.New("storage: trial already finished")
	ErrNotInitialized = errors.New("storage: store not initialized")
)

// TrialUpdate is applied to a RUNNING trial by UpdateTrial.
type TrialUpdate struct {
	// State is the new state. RUNNING keeps the trial open and only merges
	// Intermediate.
	State        models.TrialState
	Value        *float64
	Intermediate map[int64]float64
	FinishedAt   *time.Time
}

// Store defines the persistence operations the study engine relies on.
type Store interface {
	Init(ctx context.Context) error

	// CreateStudy inserts info unless a study with that name exists. It
	// returns the stored study and whether it was created by this call.
	CreateStudy(ctx context.Context, info models.StudyInfo) (models.StudyInfo, bool, error)
	GetStudy(ctx context.Context, name string) (models.StudyInfo, error)

	// CreateTrial assigns the next id of trial.Study and inserts the record.
	CreateTrial(ctx context.Context, trial models.TrialRecord) (models.TrialRecord, error)
	// UpdateTrial applies upd only if the trial is still RUNNING.
	UpdateTrial(ctx context.Context, study string, id int64, upd TrialUpdate) (models.TrialRecord, error)
	// ListTrials returns trials ordered by id, optionally filtered by state.
	ListTrials(ctx context.Context, study string, states ...models.TrialState) ([]models.TrialRecord, error)

	Close() error
}

// applyUpdate merges upd into t. The caller has checked that t is RUNNING.
func applyUpdate(t *models.TrialRecord, upd TrialUpdate) {
	if len(upd.Intermediate) > 0 {
		if t.Intermediate == nil {
			t.Intermediate = make(map[int64]float64, len(upd.Intermediate))
		}
		for step, v := range upd.Intermediate {
			t.Intermediate[step] = v
		}
	}
	if upd.State != "" {
		t.State = upd.State
	}
	if upd.Value != nil {
		v := *upd.Value
		t.Value = &v
	}
	if upd.FinishedAt != nil {
		f := *upd.FinishedAt
		t.FinishedAt = &f
	}
}

func stateFilter(states []models.TrialState) map[models.TrialState]bool {
	if len(states) == 0 {
		return nil
	}
	m := make(map[models.TrialState]bool, len(states))
	for _, s := range states {
		m[s] = true
	}
	return m
}
