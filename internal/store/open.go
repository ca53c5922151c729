package store

import (
	"context"
	"fmt"

	"viola-joke/internal/config"
	"viola-joke/internal/database"
)

var _ Store = (*database.JokeRepository)(nil)

// Open returns the Store selected by cfg.Driver.
func Open(ctx context.Context, cfg config.StorageConfig, dbCfg config.DatabaseConfig) (Store, error) {
	switch cfg.Driver {
	case config.DriverFile, "":
		return NewFileStore(cfg.Path)
	case config.DriverPostgres:
		db, err := database.New(ctx, dbCfg)
		if err != nil {
			return nil, err
		}
		return database.NewJokeRepository(db), nil
	default:
		return nil, fmt.Errorf("%w: %q", config.ErrUnknownDriver, cfg.Driver)
	}
}
