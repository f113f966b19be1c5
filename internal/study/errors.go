package study

import (
	"errors"
	"fmt"

	"github.com/GoSim-25-26J-441/study-core/internal/storage"
)

var (
	ErrNotFound         = errors.New("not found")
	ErrInvalidState     = errors.New("trial is not running")
	ErrStoreUnavailable = errors.New("store unavailable")
	ErrSampler          = errors.New("sampler error")
	ErrInvalidArgument  = errors.New("invalid argument")
)

// storeError maps a storage failure onto the engine's error kinds.
func storeError(op string, err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, storage.ErrTrialNotFound), errors.Is(err, storage.ErrStudyNotFound):
		return fmt.Errorf("%s: %w: %w", op, ErrNotFound, err)
	case errors.Is(err, storage.ErrTrialTerminal):
		return fmt.Errorf("%s: %w", op, ErrInvalidState)
	default:
		return fmt.Errorf("%s: %w: %w", op, ErrStoreUnavailable, err)
	}
}
