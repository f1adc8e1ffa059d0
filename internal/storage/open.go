package storage

import (
	"context"
	"fmt"

	"github.com/wlockwood/lits/internal/config"
)

// Open connects the store selected by cfg.Driver and brings its schema up to
// date. The caller owns the returned store and must Close it.
func Open(ctx context.Context, cfg config.DatabaseConfig, debug bool) (Store, error) {
	switch cfg.Driver {
	case config.DriverSQLite:
		return NewSQLiteStore(cfg.Path, debug)
	case config.DriverPostgres:
		s, err := NewPostgresStore(ctx, cfg)
		if err != nil {
			return nil, err
		}
		if err := s.Migrate(ctx); err != nil {
			_ = s.Close()
			return nil, fmt.Errorf("migrate: %w", err)
		}
		return s, nil
	default:
		return nil, fmt.Errorf("unknown database driver %q", cfg.Driver)
	}
}
