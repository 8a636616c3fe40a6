// Command coupon-import creates coupons from gzip-compressed code lists:
//
//	coupon-import -import.discount-percent 10 -import.min-files 2 a.gz b.gz c.gz
//
// Storage is selected the same way as for the server.
package main

import (
	"context"
	"strings"

	"github.com/cristalhq/aconfig"
	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/app"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	appkg "github.com/xenking/storefront/internal/app"
	"github.com/xenking/storefront/internal/couponimport"
	"github.com/xenking/storefront/internal/domain/coupon"
	"github.com/xenking/storefront/internal/repository"
)

type config struct {
	Storage appkg.StorageConfig
	Import  importConfig
}

type importConfig struct {
	DiscountPercent string  `usage:"Percent discount of every imported coupon" flag:"discount-percent"`
	DiscountAmount  string  `usage:"Flat discount of every imported coupon" flag:"discount-amount"`
	MinOrderAmount  string  `usage:"Minimum order subtotal" flag:"min-order-amount"`
	MaxUsage        int     `default:"0" usage:"Usage cap, 0 for unlimited" flag:"max-usage"`
	ExpiresAt       string  `usage:"Expiry timestamp (RFC 3339)" flag:"expires-at"`
	Description     string  `usage:"Coupon description"`
	Disabled        bool    `default:"false" usage:"Create the coupons switched off"`
	MinFiles        int     `default:"1" usage:"Distinct files a code must appear in" flag:"min-files"`
	Workers         int     `default:"4" usage:"Concurrent scans and writes"`
	ExpectedCodes   uint    `default:"1000000" usage:"Expected codes per file, sizes the bloom filters" flag:"expected-codes"`
	FalsePositive   float64 `default:"0.001" usage:"Bloom filter false positive rate" flag:"false-positive"`
}

func parseDecimal(name, v string) (*decimal.Decimal, error) {
	v = strings.TrimSpace(v)
	if v == "" {
		return nil, nil
	}
	d, err := decimal.NewFromString(v)
	if err != nil {
		return nil, errors.Wrapf(err, "parse %s", name)
	}
	if d.IsNegative() {
		return nil, errors.Errorf("%s must not be negative", name)
	}
	return &d, nil
}

func (c importConfig) template() (coupon.Coupon, error) {
	t := coupon.Coupon{
		Description: c.Description,
		ExpiresAt:   c.ExpiresAt,
		Enabled:     !c.Disabled,
	}
	var err error
	if t.DiscountPercent, err = parseDecimal("discount percent", c.DiscountPercent); err != nil {
		return t, err
	}
	if t.DiscountAmount, err = parseDecimal("discount amount", c.DiscountAmount); err != nil {
		return t, err
	}
	if t.MinOrderAmount, err = parseDecimal("min order amount", c.MinOrderAmount); err != nil {
		return t, err
	}
	if t.DiscountPercent == nil && t.DiscountAmount == nil {
		return t, errors.New("either discount percent or discount amount is required")
	}
	if c.MaxUsage > 0 {
		maxUsage := c.MaxUsage
		t.MaxUsage = &maxUsage
	}
	return t, nil
}

func main() {
	app.Run(func(ctx context.Context, lg *zap.Logger, _ *app.Telemetry) error {
		var cfg config
		loader := aconfig.LoaderFor(&cfg, aconfig.Config{
			EnvPrefix:        "STOREFRONT",
			AllowUnknownEnvs: true,
		})
		if err := loader.Load(); err != nil {
			return errors.Wrap(err, "load config")
		}
		if err := cfg.Storage.Resolve(); err != nil {
			return err
		}
		tmpl, err := cfg.Import.template()
		if err != nil {
			return err
		}

		adapter, closeStorage, err := appkg.OpenStorage(ctx, lg, cfg.Storage)
		if err != nil {
			return err
		}
		defer closeStorage()

		svc := coupon.NewService(repository.NewCouponRepository(adapter), coupon.WithLogger(lg.Named("coupon")))
		im := couponimport.New(lg, svc, couponimport.Config{
			Template:          tmpl,
			MinFiles:          cfg.Import.MinFiles,
			Workers:           cfg.Import.Workers,
			ExpectedCodes:     cfg.Import.ExpectedCodes,
			FalsePositiveRate: cfg.Import.FalsePositive,
		})

		stats, err := im.Run(ctx, loader.Flags().Args())
		if err != nil {
			return err
		}
		lg.Info("Import complete",
			zap.Int64("scanned", stats.Scanned),
			zap.Int("qualifying", stats.Unique),
			zap.Int64("created", stats.Created),
			zap.Int64("skipped", stats.Skipped),
		)
		return nil
	})
}
