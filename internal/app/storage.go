package app

import (
	"context"

	"github.com/go-faster/errors"
	"go.uber.org/zap"

	"github.com/xenking/storefront/internal/storage"
	"github.com/xenking/storefront/internal/storage/filestore"
	"github.com/xenking/storefront/internal/storage/postgres"
)

// OpenStorage returns the adapter selected by cfg and a function releasing
// its resources.
func OpenStorage(ctx context.Context, lg *zap.Logger, cfg StorageConfig) (storage.Adapter, func(), error) {
	switch cfg.Driver {
	case DriverFile:
		s, err := filestore.New(cfg.Dir)
		if err != nil {
			return nil, nil, errors.Wrap(err, "open filestore")
		}
		lg.Info("Using file storage", zap.String("dir", cfg.Dir))
		return s, func() {}, nil
	case DriverPostgres:
		pool, err := postgres.NewPool(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, nil, errors.Wrap(err, "create db pool")
		}
		if err := postgres.RunMigrations(ctx, pool); err != nil {
			pool.Close()
			return nil, nil, errors.Wrap(err, "run migrations")
		}
		lg.Info("Using postgres storage")
		return postgres.NewAdapter(pool), pool.Close, nil
	default:
		return nil, nil, errors.Errorf("unknown storage driver %q", cfg.Driver)
	}
}
