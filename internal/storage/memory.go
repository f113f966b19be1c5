package storage

import (
	"context"
	"sync"

	"github.com/GoSim-25-26J-441/study-core/pkg/models"
)

type memoryStudy struct {
	info   models.StudyInfo
	trials []models.TrialRecord // index == id
}

// MemoryStore keeps everything in process memory. It is not durable and
// only coordinates workers that share the process.
type MemoryStore struct {
	mu          sync.RWMutex
	initialized bool
	studies     map[string]*memoryStudy
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (s *MemoryStore) Init(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.initialized {
		return nil
	}
	s.initialized = true
	s.studies = make(map[string]*memoryStudy)
	return nil
}

func (s *MemoryStore) CreateStudy(_ context.Context, info models.StudyInfo) (models.StudyInfo, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.initialized {
		return models.StudyInfo{}, false, ErrNotInitialized
	}
	if existing, ok := s.studies[info.Name]; ok {
		return existing.info, false, nil
	}
	s.studies[info.Name] = &memoryStudy{info: info}
	return info, true, nil
}

func (s *MemoryStore) GetStudy(_ context.Context, name string) (models.StudyInfo, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	st, err := s.study(name)
	if err != nil {
		return models.StudyInfo{}, err
	}
	return st.info, nil
}

func (s *MemoryStore) CreateTrial(_ context.Context, trial models.TrialRecord) (models.TrialRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	st, err := s.study(trial.Study)
	if err != nil {
		return models.TrialRecord{}, err
	}
	trial = trial.Clone()
	trial.ID = int64(len(st.trials))
	st.trials = append(st.trials, trial)
	return trial.Clone(), nil
}

func (s *MemoryStore) UpdateTrial(_ context.Context, study string, id int64, upd TrialUpdate) (models.TrialRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	st, err := s.study(study)
	if err != nil {
		return models.TrialRecord{}, err
	}
	if id < 0 || id >= int64(len(st.trials)) {
		return models.TrialRecord{}, ErrTrialNotFound
	}
	t := &st.trials[id]
	if t.State.IsTerminal() {
		return t.Clone(), ErrTrialTerminal
	}
	applyUpdate(t, upd)
	return t.Clone(), nil
}

func (s *MemoryStore) ListTrials(_ context.Context, study string, states ...models.TrialState) ([]models.TrialRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	st, err := s.study(study)
	if err != nil {
		return nil, err
	}
	filter := stateFilter(states)
	out := make([]models.TrialRecord, 0, len(st.trials))
	for _, t := range st.trials {
		if filter != nil && !filter[t.State] {
			continue
		}
		out = append(out, t.Clone())
	}
	return out, nil
}

func (s *MemoryStore) Close() error {
	return nil
}

// study must be called with s.mu held.
func (s *MemoryStore) study(name string) (*memoryStudy, error) {
	if !s.initialized {
		return nil, ErrNotInitialized
	}
	st, ok := s.studies[name]
	if !ok {
		return nil, ErrStudyNotFound
	}
	return st, nil
}
