package app

import (
	"context"

	"github.com/go-faster/errors"
	"go.uber.org/zap"

	"github.com/xenking/storefront/internal/storage"
)

// Seed replaces each collection of dst with its contents in src. Empty
// source collections are left alone in dst.
func Seed(ctx context.Context, lg *zap.Logger, src, dst storage.Adapter, collections []string) error {
	for _, name := range collections {
		docs, err := src.Read(ctx, name)
		if err != nil {
			return errors.Wrapf(err, "read %s", name)
		}
		if len(docs) == 0 {
			lg.Info("Nothing to seed", zap.String("collection", name))
			continue
		}
		if err := dst.Write(ctx, name, docs); err != nil {
			return errors.Wrapf(err, "write %s", name)
		}
		lg.Info("Seeded collection", zap.String("collection", name), zap.Int("documents", len(docs)))
	}
	return nil
}
