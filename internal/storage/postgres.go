package storage

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/GoSim-25-26J-441/study-core/pkg/logger"
	"github.com/GoSim-25-26J-441/study-core/pkg/models"
	"github.com/GoSim-25-26J-441/study-core/pkg/utils"
)

const postgresSchema = `
CREATE TABLE IF NOT EXISTS studies (
	name          TEXT PRIMARY KEY,
	direction     TEXT NOT NULL,
	next_trial_id BIGINT NOT NULL DEFAULT 0,
	created_at    BIGINT NOT NULL
);
CREATE TABLE IF NOT EXISTS trials (
	study         TEXT NOT NULL REFERENCES studies(name),
	id            BIGINT NOT NULL,
	state         TEXT NOT NULL,
	params        TEXT NOT NULL,
	value         DOUBLE PRECISION,
	intermediate  TEXT,
	space_version TEXT NOT NULL DEFAULT '',
	created_at    BIGINT NOT NULL,
	finished_at   BIGINT,
	PRIMARY KEY (study, id)
);
CREATE INDEX IF NOT EXISTS trials_state_idx ON trials (study, state);
`

// PostgresStore persists studies in PostgreSQL through a pgx connection pool.
// Trial ids come from a row-locked counter on the studies table.
type PostgresStore struct {
	dsn     string
	logger  *slog.Logger
	backoff utils.BackoffStrategy

	mu   sync.RWMutex
	pool *pgxpool.Pool
}

func NewPostgresStore(dsn string, log *slog.Logger) *PostgresStore {
	return &PostgresStore{dsn: dsn, logger: logger.Or(log), backoff: defaultBackoff()}
}

func (s *PostgresStore) Init(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.dsn == "" {
		return errors.New("postgres dsn is required")
	}
	if s.pool != nil {
		return nil
	}

	cfg, err := pgxpool.ParseConfig(s.dsn)
	if err != nil {
		return fmt.Errorf("storage: parse pool DSN: %w", err)
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return fmt.Errorf("storage: create pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return fmt.Errorf("storage: ping pool: %w", err)
	}
	if _, err := pool.Exec(ctx, postgresSchema); err != nil {
		pool.Close()
		return fmt.Errorf("storage: create tables: %w", err)
	}

	s.logger.Debug("postgres store ready", "max_conns", cfg.MaxConns)
	s.pool = pool
	return nil
}

func (s *PostgresStore) CreateStudy(ctx context.Context, info models.StudyInfo) (models.StudyInfo, bool, error) {
	pool, err := s.getPool()
	if err != nil {
		return models.StudyInfo{}, false, err
	}

	var created bool
	err = withRetry(ctx, defaultMaxRetries, s.backoff, func() error {
		tag, err := pool.Exec(ctx, `
			INSERT INTO studies (name, direction, next_trial_id, created_at)
			VALUES ($1, $2, 0, $3)
			ON CONFLICT (name) DO NOTHING
		`, info.Name, string(info.Direction), info.CreatedAt.UnixNano())
		created = err == nil && tag.RowsAffected() == 1
		return err
	})
	if err != nil {
		return models.StudyInfo{}, false, err
	}

	stored, err := s.GetStudy(ctx, info.Name)
	return stored, created, err
}

func (s *PostgresStore) GetStudy(ctx context.Context, name string) (models.StudyInfo, error) {
	pool, err := s.getPool()
	if err != nil {
		return models.StudyInfo{}, err
	}

	var (
		info      models.StudyInfo
		direction string
		createdAt int64
	)
	err = pool.QueryRow(ctx, `SELECT name, direction, created_at FROM studies WHERE name = $1`, name).
		Scan(&info.Name, &direction, &createdAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return models.StudyInfo{}, ErrStudyNotFound
	}
	if err != nil {
		return models.StudyInfo{}, err
	}
	info.Direction = models.Direction(direction)
	info.CreatedAt = time.Unix(0, createdAt).UTC()
	return info, nil
}

func (s *PostgresStore) CreateTrial(ctx context.Context, trial models.TrialRecord) (models.TrialRecord, error) {
	pool, err := s.getPool()
	if err != nil {
		return models.TrialRecord{}, err
	}
	params, err := EncodeParams(trial.Params)
	if err != nil {
		return models.TrialRecord{}, err
	}
	intermediate, err := encodeIntermediate(trial.Intermediate)
	if err != nil {
		return models.TrialRecord{}, err
	}

	out := trial.Clone()
	err = withRetry(ctx, defaultMaxRetries, s.backoff, func() error {
		return pgx.BeginFunc(ctx, pool, func(tx pgx.Tx) error {
			var id int64
			err := tx.QueryRow(ctx,
				`UPDATE studies SET next_trial_id = next_trial_id + 1 WHERE name = $1 RETURNING next_trial_id - 1`,
				trial.Study).Scan(&id)
			if errors.Is(err, pgx.ErrNoRows) {
				return ErrStudyNotFound
			}
			if err != nil {
				return err
			}
			_, err = tx.Exec(ctx, `
				INSERT INTO trials (`+trialColumns+`)
				VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
			`, trial.Study, id, string(trial.State), params, nullValue(trial.Value), intermediate,
				trial.SpaceVersion, trial.CreatedAt.UnixNano(), nullTime(trial.FinishedAt))
			if err != nil {
				return err
			}
			out.ID = id
			return nil
		})
	})
	if err != nil {
		return models.TrialRecord{}, err
	}
	return out, nil
}

func (s *PostgresStore) UpdateTrial(ctx context.Context, study string, id int64, upd TrialUpdate) (models.TrialRecord, error) {
	pool, err := s.getPool()
	if err != nil {
		return models.TrialRecord{}, err
	}

	var out models.TrialRecord
	err = withRetry(ctx, defaultMaxRetries, s.backoff, func() error {
		return pgx.BeginFunc(ctx, pool, func(tx pgx.Tx) error {
			t, err := scanTrial(tx.QueryRow(ctx,
				`SELECT `+trialColumns+` FROM trials WHERE study = $1 AND id = $2 FOR UPDATE`, study, id))
			if errors.Is(err, pgx.ErrNoRows) {
				return ErrTrialNotFound
			}
			if err != nil {
				return err
			}
			if t.State.IsTerminal() {
				out = t
				return ErrTrialTerminal
			}

			applyUpdate(&t, upd)
			intermediate, err := encodeIntermediate(t.Intermediate)
			if err != nil {
				return err
			}
			tag, err := tx.Exec(ctx, `
				UPDATE trials SET state = $1, value = $2, intermediate = $3, finished_at = $4
				WHERE study = $5 AND id = $6 AND state = 'RUNNING'
			`, string(t.State), nullValue(t.Value), intermediate, nullTime(t.FinishedAt), study, id)
			if err != nil {
				return err
			}
			if tag.RowsAffected() != 1 {
				return ErrTrialTerminal
			}
			out = t
			return nil
		})
	})
	return out, err
}

func (s *PostgresStore) ListTrials(ctx context.Context, study string, states ...models.TrialState) ([]models.TrialRecord, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}
	if _, err := s.GetStudy(ctx, study); err != nil {
		return nil, err
	}

	query := `SELECT ` + trialColumns + ` FROM trials WHERE study = $1`
	args := []any{study}
	if len(states) > 0 {
		names := make([]string, len(states))
		for i, st := range states {
			names[i] = string(st)
		}
		query += ` AND state = ANY($2)`
		args = append(args, names)
	}
	query += ` ORDER BY id`

	rows, err := pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.TrialRecord
	for rows.Next() {
		t, err := scanTrial(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func (s *PostgresStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.pool != nil {
		s.pool.Close()
		s.pool = nil
	}
	return nil
}

func (s *PostgresStore) getPool() (*pgxpool.Pool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.pool == nil {
		return nil, ErrNotInitialized
	}
	return s.pool, nil
}
