package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	_ "modernc.org/sqlite"

	"github.com/GoSim-25-26J-441/study-core/pkg/models"
	"github.com/GoSim-25-26J-441/study-core/pkg/utils"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS studies (
	name          TEXT PRIMARY KEY,
	direction     TEXT NOT NULL,
	next_trial_id INTEGER NOT NULL DEFAULT 0,
	created_at    INTEGER NOT NULL
);
CREATE TABLE IF NOT EXISTS trials (
	study         TEXT NOT NULL REFERENCES studies(name),
	id            INTEGER NOT NULL,
	state         TEXT NOT NULL,
	params        TEXT NOT NULL,
	value         REAL,
	intermediate  TEXT,
	space_version TEXT NOT NULL DEFAULT '',
	created_at    INTEGER NOT NULL,
	finished_at   INTEGER,
	PRIMARY KEY (study, id)
);
CREATE INDEX IF NOT EXISTS trials_state_idx ON trials (study, state);
`

// SQLiteStore persists studies in a single SQLite file. Several processes may
// open the same file; writes are serialized with BEGIN IMMEDIATE.
type SQLiteStore struct {
	path    string
	backoff utils.BackoffStrategy

	mu sync.RWMutex
	db *sql.DB
}

func NewSQLiteStore(path string) *SQLiteStore {
	return &SQLiteStore{path: path, backoff: defaultBackoff()}
}

func (s *SQLiteStore) Init(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.path == "" {
		return errors.New("sqlite path is required")
	}
	if s.db != nil {
		return nil
	}

	db, err := sql.Open("sqlite", sqliteDSN(s.path))
	if err != nil {
		return err
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return err
	}
	if _, err := db.ExecContext(ctx, sqliteSchema); err != nil {
		_ = db.Close()
		return fmt.Errorf("create tables: %w", err)
	}

	s.db = db
	return nil
}

func sqliteDSN(path string) string {
	sep := "?"
	if strings.Contains(path, "?") {
		sep = "&"
	}
	return path + sep + "_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_pragma=foreign_keys(1)"
}

func (s *SQLiteStore) CreateStudy(ctx context.Context, info models.StudyInfo) (models.StudyInfo, bool, error) {
	db, err := s.getDB()
	if err != nil {
		return models.StudyInfo{}, false, err
	}

	var created bool
	err = withRetry(ctx, defaultMaxRetries, s.backoff, func() error {
		res, err := db.ExecContext(ctx, `
			INSERT INTO studies (name, direction, next_trial_id, created_at)
			VALUES (?, ?, 0, ?)
			ON CONFLICT(name) DO NOTHING
		`, info.Name, string(info.Direction), info.CreatedAt.UnixNano())
		if err != nil {
			return err
		}
		n, err := res.RowsAffected()
		created = n == 1
		return err
	})
	if err != nil {
		return models.StudyInfo{}, false, err
	}

	stored, err := s.GetStudy(ctx, info.Name)
	return stored, created, err
}

func (s *SQLiteStore) GetStudy(ctx context.Context, name string) (models.StudyInfo, error) {
	db, err := s.getDB()
	if err != nil {
		return models.StudyInfo{}, err
	}
	return scanStudy(db.QueryRowContext(ctx,
		`SELECT name, direction, created_at FROM studies WHERE name = ?`, name))
}

func (s *SQLiteStore) CreateTrial(ctx context.Context, trial models.TrialRecord) (models.TrialRecord, error) {
	db, err := s.getDB()
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
		return s.immediate(ctx, db, func(conn *sql.Conn) error {
			var id int64
			err := conn.QueryRowContext(ctx,
				`UPDATE studies SET next_trial_id = next_trial_id + 1 WHERE name = ? RETURNING next_trial_id - 1`,
				trial.Study).Scan(&id)
			if errors.Is(err, sql.ErrNoRows) {
				return ErrStudyNotFound
			}
			if err != nil {
				return err
			}
			_, err = conn.ExecContext(ctx, `
				INSERT INTO trials (`+trialColumns+`)
				VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
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

func (s *SQLiteStore) UpdateTrial(ctx context.Context, study string, id int64, upd TrialUpdate) (models.TrialRecord, error) {
	db, err := s.getDB()
	if err != nil {
		return models.TrialRecord{}, err
	}

	var out models.TrialRecord
	err = withRetry(ctx, defaultMaxRetries, s.backoff, func() error {
		return s.immediate(ctx, db, func(conn *sql.Conn) error {
			t, err := scanTrial(conn.QueryRowContext(ctx,
				`SELECT `+trialColumns+` FROM trials WHERE study = ? AND id = ?`, study, id))
			if errors.Is(err, sql.ErrNoRows) {
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
			res, err := conn.ExecContext(ctx, `
				UPDATE trials SET state = ?, value = ?, intermediate = ?, finished_at = ?
				WHERE study = ? AND id = ? AND state = 'RUNNING'
			`, string(t.State), nullValue(t.Value), intermediate, nullTime(t.FinishedAt), study, id)
			if err != nil {
				return err
			}
			if n, err := res.RowsAffected(); err != nil {
				return err
			} else if n != 1 {
				return ErrTrialTerminal
			}
			out = t
			return nil
		})
	})
	if err != nil {
		return out, err
	}
	return out, nil
}

func (s *SQLiteStore) ListTrials(ctx context.Context, study string, states ...models.TrialState) ([]models.TrialRecord, error) {
	db, err := s.getDB()
	if err != nil {
		return nil, err
	}
	if _, err := s.GetStudy(ctx, study); err != nil {
		return nil, err
	}

	query := `SELECT ` + trialColumns + ` FROM trials WHERE study = ?`
	args := []any{study}
	if len(states) > 0 {
		marks := make([]string, len(states))
		for i, st := range states {
			marks[i] = "?"
			args = append(args, string(st))
		}
		query += ` AND state IN (` + strings.Join(marks, ", ") + `)`
	}
	query += ` ORDER BY id`

	rows, err := db.QueryContext(ctx, query, args...)
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

func (s *SQLiteStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.db == nil {
		return nil
	}
	err := s.db.Close()
	s.db = nil
	return err
}

func (s *SQLiteStore) getDB() (*sql.DB, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.db == nil {
		return nil, ErrNotInitialized
	}
	return s.db, nil
}

// immediate runs fn inside a BEGIN IMMEDIATE transaction on a dedicated
// connection, so the write lock is taken before anything is read.
func (s *SQLiteStore) immediate(ctx context.Context, db *sql.DB, fn func(conn *sql.Conn) error) error {
	conn, err := db.Conn(ctx)
	if err != nil {
		return err
	}
	defer conn.Close()

	if _, err := conn.ExecContext(ctx, "BEGIN IMMEDIATE"); err != nil {
		return err
	}
	if err := fn(conn); err != nil {
		_, _ = conn.ExecContext(context.Background(), "ROLLBACK")
		return err
	}
	if _, err := conn.ExecContext(ctx, "COMMIT"); err != nil {
		_, _ = conn.ExecContext(context.Background(), "ROLLBACK")
		return err
	}
	return nil
}

func scanStudy(row rowScanner) (models.StudyInfo, error) {
	var (
		info      models.StudyInfo
		direction string
		createdAt int64
	)
	if err := row.Scan(&info.Name, &direction, &createdAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return models.StudyInfo{}, ErrStudyNotFound
		}
		return models.StudyInfo{}, err
	}
	info.Direction = models.Direction(direction)
	info.CreatedAt = time.Unix(0, createdAt).UTC()
	return info, nil
}
