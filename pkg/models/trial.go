package models

import (
	"fmt"
	"maps"
	"strings"
	"time"
)

// TrialState represents the lifecycle state of a trial
type TrialState string

const (
	TrialStateRunning  TrialState = "RUNNING"
	TrialStateComplete TrialState = "COMPLETE"
	TrialStateFailed   TrialState = "FAILED"
)

// IsTerminal reports whether no further transition is allowed out of s.
func (s TrialState) IsTerminal() bool {
	return s == TrialStateComplete || s == TrialStateFailed
}

// Valid reports whether s is one of the known states.
func (s TrialState) Valid() bool {
	switch s {
	case TrialStateRunning, TrialStateComplete, TrialStateFailed:
		return true
	}
	return false
}

// ParseTrialState parses a state name case-insensitively.
func ParseTrialState(s string) (TrialState, error) {
	st := TrialState(strings.ToUpper(strings.TrimSpace(s)))
	if !st.Valid() {
		return "", fmt.Errorf("unknown trial state %q", s)
	}
	return st, nil
}

// Direction is the optimization direction of a study
type Direction string

const (
	DirectionMinimize Direction = "MINIMIZE"
	DirectionMaximize Direction = "MAXIMIZE"
)

// ParseDirection parses a direction name. The empty string means MINIMIZE.
func ParseDirection(s string) (Direction, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "", "MINIMIZE", "MIN":
		return DirectionMinimize, nil
	case "MAXIMIZE", "MAX":
		return DirectionMaximize, nil
	default:
		return "", fmt.Errorf("unknown direction %q (must be minimize or maximize)", s)
	}
}

// Better reports whether a is strictly better than b under d.
func (d Direction) Better(a, b float64) bool {
	if d == DirectionMaximize {
		return a > b
	}
	return a < b
}

// StudyInfo is the persisted identity of a study
type StudyInfo struct {
	Name      string    `json:"name"`
	Direction Direction `json:"direction"`
	CreatedAt time.Time `json:"created_at"`
}

// TrialRecord is one parameter assignment, its lifecycle state and its outcome
type TrialRecord struct {
	Study        string            `json:"study"`
	ID           int64             `json:"trial_id"`
	State        TrialState        `json:"state"`
	Params       map[string]any    `json:"params"`
	Value        *float64          `json:"value,omitempty"`
	Intermediate map[int64]float64 `json:"intermediate,omitempty"`
	SpaceVersion string            `json:"space_version,omitempty"`
	CreatedAt    time.Time         `json:"created_at"`
	FinishedAt   *time.Time        `json:"finished_at,omitempty"`
}

// Clone returns a deep copy so callers never share maps with a store.
func (t TrialRecord) Clone() TrialRecord {
	out := t
	out.Params = maps.Clone(t.Params)
	out.Intermediate = maps.Clone(t.Intermediate)
	if t.Value != nil {
		v := *t.Value
		out.Value = &v
	}
	if t.FinishedAt != nil {
		f := *t.FinishedAt
		out.FinishedAt = &f
	}
	return out
}

// BestTrial returns the COMPLETE trial with the best value under d.
// Ties are broken by the lowest id. ok is false when nothing has completed.
func BestTrial(trials []TrialRecord, d Direction) (best TrialRecord, ok bool) {
	for _, t := range trials {
		if t.State != TrialStateComplete || t.Value == nil {
			continue
		}
		if !ok {
			best, ok = t, true
			continue
		}
		switch {
		case d.Better(*t.Value, *best.Value):
			best = t
		case *t.Value == *best.Value && t.ID < best.ID:
			best = t
		}
	}
	return best, ok
}

// CountStates returns the number of RUNNING and COMPLETE trials.
func CountStates(trials []TrialRecord) (running, completed int) {
	for _, t := range trials {
		switch t.State {
		case TrialStateRunning:
			running++
		case TrialStateComplete:
			completed++
		}
	}
	return running, completed
}

// StudySnapshot is the state of a study right after a trial changed.
type StudySnapshot struct {
	Study     string        `json:"study"`
	Direction Direction     `json:"direction"`
	Event     TrialRecord   `json:"event"`
	Best      *TrialRecord  `json:"best,omitempty"`
	Trials    []TrialRecord `json:"trials"`
	Running   int           `json:"running_count"`
	Completed int           `json:"completed_count"`
}
