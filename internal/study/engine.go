// Package study coordinates asks and tells for named optimization studies.
//
// The Engine serializes mutations per study inside one process; the Store
// provides the same guarantees across processes. Every trial read comes from
// the Store, so several engines may share one database.
package study

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/GoSim-25-26J-441/study-core/internal/sampler"
	"github.com/GoSim-25-26J-441/study-core/internal/space"
	"github.com/GoSim-25-26J-441/study-core/internal/storage"
	"github.com/GoSim-25-26J-441/study-core/pkg/logger"
	"github.com/GoSim-25-26J-441/study-core/pkg/models"
)

const defaultStoreTimeout = 5 * time.Second

// Sink receives a snapshot after every trial update. Errors are logged and
// never change the outcome of the update.
type Sink interface {
	Publish(ctx context.Context, snap models.StudySnapshot) error
}

// Options configures an Engine. Store and Sampler are required.
type Options struct {
	Store        storage.Store
	Sampler      sampler.Sampler
	Sink         Sink
	Logger       *slog.Logger
	StoreTimeout time.Duration
	Now          func() time.Time
}

// Engine owns the per-study locks and the collaborators shared by studies.
type Engine struct {
	store        storage.Store
	sampler      sampler.Sampler
	sink         Sink
	logger       *slog.Logger
	storeTimeout time.Duration
	now          func() time.Time
	metrics      *engineMetrics

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// NewEngine creates an engine. The store must already be initialized.
func NewEngine(opts Options) (*Engine, error) {
	if opts.Store == nil {
		return nil, fmt.Errorf("study: store is required")
	}
	if opts.Sampler == nil {
		return nil, fmt.Errorf("study: sampler is required")
	}
	timeout := opts.StoreTimeout
	if timeout <= 0 {
		timeout = defaultStoreTimeout
	}
	now := opts.Now
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}
	return &Engine{
		store:        opts.Store,
		sampler:      opts.Sampler,
		sink:         opts.Sink,
		logger:       logger.Or(opts.Logger),
		storeTimeout: timeout,
		now:          now,
		metrics:      newEngineMetrics(),
		locks:        make(map[string]*sync.Mutex),
	}, nil
}

// Open returns the named study, creating it if it does not exist yet. A
// study is only created together with a search space; callers that tell or
// read use Get. The direction of an existing study is never changed.
func (e *Engine) Open(ctx context.Context, name string, sp *space.SearchSpace, dir models.Direction) (*Study, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, fmt.Errorf("%w: study name is required", ErrInvalidArgument)
	}
	if sp == nil {
		return nil, &space.ConfigError{Reason: fmt.Sprintf("study %q has no search space", name)}
	}
	if dir == "" {
		dir = models.DirectionMinimize
	}

	var (
		info    models.StudyInfo
		created bool
	)
	err := e.withStore(ctx, "create_study", func(ctx context.Context) error {
		var err error
		info, created, err = e.store.CreateStudy(ctx, models.StudyInfo{Name: name, Direction: dir, CreatedAt: e.now()})
		return err
	})
	if err != nil {
		return nil, storeError("open study", err)
	}

	if created {
		e.logger.Info("study created", "study", name, "direction", info.Direction)
	} else if info.Direction != dir {
		e.logger.Warn("study direction mismatch, keeping stored direction",
			"study", name, "stored", info.Direction, "requested", dir)
	}
	return e.newStudy(info, sp), nil
}

// Get returns an existing study without creating it. sp may be nil; such a
// study can tell and read but not ask.
func (e *Engine) Get(ctx context.Context, name string, sp *space.SearchSpace) (*Study, error) {
	var info models.StudyInfo
	err := e.withStore(ctx, "get_study", func(ctx context.Context) error {
		var err error
		info, err = e.store.GetStudy(ctx, name)
		return err
	})
	if err != nil {
		return nil, storeError(fmt.Sprintf("study %q", name), err)
	}
	return e.newStudy(info, sp), nil
}

func (e *Engine) newStudy(info models.StudyInfo, sp *space.SearchSpace) *Study {
	return &Study{
		engine:    e,
		name:      info.Name,
		direction: info.Direction,
		space:     sp,
		lock:      e.lockFor(info.Name),
	}
}

// lockFor returns the mutex of a study that exists in the store. Entries are
// never evicted, so the map is bounded by the number of persisted studies.
func (e *Engine) lockFor(name string) *sync.Mutex {
	e.mu.Lock()
	defer e.mu.Unlock()

	l, ok := e.locks[name]
	if !ok {
		l = &sync.Mutex{}
		e.locks[name] = l
	}
	return l
}

// withStore runs fn with the store timeout applied and records its duration.
func (e *Engine) withStore(ctx context.Context, op string, fn func(ctx context.Context) error) error {
	sctx, cancel := context.WithTimeout(ctx, e.storeTimeout)
	defer cancel()

	start := time.Now()
	err := fn(sctx)
	e.metrics.store(ctx, op, start)
	return err
}

func (e *Engine) publish(ctx context.Context, snap models.StudySnapshot) {
	if e.sink == nil {
		return
	}
	if err := e.sink.Publish(ctx, snap); err != nil {
		e.logger.Warn("sink publish failed", "study", snap.Study, "trial_id", snap.Event.ID, "error", err)
	}
}
