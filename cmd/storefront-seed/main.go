// Command storefront-seed copies collection files (products.json,
// coupons.json, ...) from a directory into the configured storage.
package main

import (
	"context"

	"github.com/cristalhq/aconfig"
	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/app"
	"go.uber.org/zap"

	appkg "github.com/xenking/storefront/internal/app"
	"github.com/xenking/storefront/internal/repository"
	"github.com/xenking/storefront/internal/storage/filestore"
)

type config struct {
	Storage     appkg.StorageConfig
	Source      string   `default:"db/seed" usage:"Directory holding the collection files to copy"`
	Collections []string `usage:"Collections to copy, all when empty"`
}

func main() {
	app.Run(func(ctx context.Context, lg *zap.Logger, _ *app.Telemetry) error {
		var cfg config
		if err := aconfig.LoaderFor(&cfg, aconfig.Config{
			EnvPrefix:        "STOREFRONT",
			AllowUnknownEnvs: true,
		}).Load(); err != nil {
			return errors.Wrap(err, "load config")
		}
		if err := cfg.Storage.Resolve(); err != nil {
			return err
		}
		if cfg.Storage.Driver == appkg.DriverFile && cfg.Storage.Dir == cfg.Source {
			return errors.New("source and destination directories are the same")
		}

		src, err := filestore.New(cfg.Source)
		if err != nil {
			return errors.Wrap(err, "open source")
		}
		dst, closeStorage, err := appkg.OpenStorage(ctx, lg, cfg.Storage)
		if err != nil {
			return err
		}
		defer closeStorage()

		collections := cfg.Collections
		if len(collections) == 0 {
			collections = repository.Collections()
		}
		return appkg.Seed(ctx, lg, src, dst, collections)
	})
}
