package storage

import (
	"fmt"
	"log/slog"

	"github.com/GoSim-25-26J-441/study-core/pkg/config"
)

// NewStore returns the backend selected by cfg. The store still needs Init.
func NewStore(cfg config.StoreConfig, log *slog.Logger) (Store, error) {
	switch cfg.Backend {
	case "", "memory":
		return NewMemoryStore(), nil
	case "sqlite":
		return NewSQLiteStore(cfg.Path), nil
	case "postgres":
		return NewPostgresStore(cfg.DSN, log), nil
	default:
		return nil, fmt.Errorf("unsupported store backend: %s", cfg.Backend)
	}
}
