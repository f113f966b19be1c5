package storage

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"github.com/GoSim-25-26J-441/study-core/pkg/utils"
)

const (
	defaultMaxRetries = 5
	defaultRetryBase  = 10 * time.Millisecond
	defaultRetryMax   = 500 * time.Millisecond
)

// isRetriable returns true for errors that indicate a transient conflict:
// SQLITE_BUSY / SQLITE_LOCKED, or a Postgres serialization failure or deadlock.
func isRetriable(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "40001": // serialization_failure
			return true
		case "40P01": // deadlock_detected
			return true
		default:
			return false
		}
	}
	var sqErr *sqlite.Error
	if errors.As(err, &sqErr) {
		switch sqErr.Code() & 0xff {
		case sqlite3.SQLITE_BUSY, sqlite3.SQLITE_LOCKED:
			return true
		}
	}
	return false
}

// withRetry executes fn, retrying up to maxRetries times on transient
// conflicts with jittered exponential backoff.
func withRetry(ctx context.Context, maxRetries int, backoff utils.BackoffStrategy, fn func() error) error {
	var err error
	for attempt := range maxRetries + 1 {
		err = fn()
		if err == nil || !isRetriable(err) {
			return err
		}
		if attempt == maxRetries {
			break
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff.NextDelay(attempt)):
		}
	}
	return err
}

func defaultBackoff() utils.BackoffStrategy {
	return utils.NewExponentialBackoff(defaultRetryBase, defaultRetryMax, true)
}
