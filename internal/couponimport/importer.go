// Package couponimport bulk-creates coupons from gzip-compressed code lists.
//
// Each input file holds one code per line. With MinFiles above one, a code is
// imported only if it occurs in at least that many distinct files. Bloom
// filters over every file keep the second pass from holding codes that no
// other file can contain; the final count is exact.
package couponimport

import (
	"bufio"
	"context"
	"math/bits"
	"os"
	"strings"
	"sync/atomic"

	"github.com/bits-and-blooms/bloom/v3"
	"github.com/go-faster/errors"
	"github.com/klauspost/pgzip"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/xenking/storefront/internal/domain/coupon"
)

const (
	maxFiles      = 64
	maxCodeLen    = 64
	progressEvery = 1_000_000
)

// Creator stores one coupon. coupon.Service implements it.
type Creator interface {
	Create(ctx context.Context, c coupon.Coupon) (*coupon.Coupon, error)
}

// Config controls an import run.
type Config struct {
	// Template is copied into every created coupon; only Code changes.
	Template          coupon.Coupon
	// MinFiles is the number of distinct files a code must appear in.
	MinFiles          int
	// Workers bounds concurrent file scans and coupon writes.
	Workers           int
	// ExpectedCodes sizes the bloom filters.
	ExpectedCodes     uint
	// FalsePositiveRate of the bloom filters.
	FalsePositiveRate float64
}

// Stats summarizes an import run.
type Stats struct {
	Scanned int64
	Unique  int
	Created int64
	Skipped int64
}

// Importer runs imports into a Creator.
type Importer struct {
	lg      *zap.Logger
	creator Creator
	cfg     Config
}

// New returns an Importer with cfg defaults filled in.
func New(lg *zap.Logger, creator Creator, cfg Config) *Importer {
	if cfg.MinFiles < 1 {
		cfg.MinFiles = 1
	}
	if cfg.Workers < 1 {
		cfg.Workers = 4
	}
	if cfg.ExpectedCodes == 0 {
		cfg.ExpectedCodes = 1_000_000
	}
	if cfg.FalsePositiveRate <= 0 || cfg.FalsePositiveRate >= 1 {
		cfg.FalsePositiveRate = 0.001
	}
	return &Importer{lg: lg, creator: creator, cfg: cfg}
}

// Run imports the qualifying codes of files. Codes that already exist are
// counted as skipped.
func (im *Importer) Run(ctx context.Context, files []string) (Stats, error) {
	var stats Stats
	if len(files) == 0 {
		return stats, errors.New("no input files")
	}
	if len(files) > maxFiles {
		return stats, errors.Errorf("at most %d input files are supported", maxFiles)
	}
	if im.cfg.MinFiles > len(files) {
		return stats, errors.Errorf("min files %d exceeds the %d inputs", im.cfg.MinFiles, len(files))
	}
	for _, f := range files {
		if _, err := os.Stat(f); err != nil {
			return stats, errors.Wrapf(err, "check file %s", f)
		}
	}

	var filters []*bloom.BloomFilter
	if im.cfg.MinFiles > 1 {
		im.lg.Info("Building bloom filters", zap.Int("files", len(files)))
		var err error
		if filters, err = im.buildFilters(ctx, files); err != nil {
			return stats, errors.Wrap(err, "build bloom filters")
		}
	}

	codes, scanned, err := im.collect(ctx, files, filters)
	if err != nil {
		return stats, errors.Wrap(err, "collect codes")
	}
	stats.Scanned = scanned
	stats.Unique = len(codes)
	im.lg.Info("Codes collected",
		zap.Int64("scanned", scanned),
		zap.Int("qualifying", len(codes)),
	)

	created, skipped, err := im.write(ctx, codes)
	stats.Created, stats.Skipped = created, skipped
	if err != nil {
		return stats, errors.Wrap(err, "write coupons")
	}
	return stats, nil
}

func (im *Importer) buildFilters(ctx context.Context, files []string) ([]*bloom.BloomFilter, error) {
	filters := make([]*bloom.BloomFilter, len(files))
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(im.cfg.Workers)
	for i, path := range files {
		g.Go(func() error {
			filter := bloom.NewWithEstimates(im.cfg.ExpectedCodes, im.cfg.FalsePositiveRate)
			if err := streamCodes(ctx, path, func(code string) {
				filter.AddString(code)
			}); err != nil {
				return errors.Wrapf(err, "index file %d", i+1)
			}
			filters[i] = filter
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return filters, nil
}

// collect returns the codes seen in at least MinFiles files. Every file
// records a bit for the codes it contains; with filters set, a code is only
// recorded when enough other filters may contain it too.
func (im *Importer) collect(ctx context.Context, files []string, filters []*bloom.BloomFilter) ([]string, int64, error) {
	masks := make([]map[string]uint64, len(files))
	var scanned atomic.Int64

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(im.cfg.Workers)
	for i, path := range files {
		g.Go(func() error {
			seen := make(map[string]uint64)
			bit := uint64(1) << uint(i)
			if err := streamCodes(ctx, path, func(code string) {
				if n := scanned.Add(1); n%progressEvery == 0 {
					im.lg.Info("Scan progress", zap.Int64("codes", n))
				}
				if filters != nil && !presentElsewhere(filters, i, code, im.cfg.MinFiles-1) {
					return
				}
				seen[code] |= bit
			}); err != nil {
				return errors.Wrapf(err, "scan file %d", i+1)
			}
			masks[i] = seen
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, 0, err
	}

	merged := make(map[string]uint64)
	for _, m := range masks {
		for code, bit := range m {
			merged[code] |= bit
		}
	}
	codes := make([]string, 0, len(merged))
	for code, mask := range merged {
		if bits.OnesCount64(mask) >= im.cfg.MinFiles {
			codes = append(codes, code)
		}
	}
	return codes, scanned.Load(), nil
}

func presentElsewhere(filters []*bloom.BloomFilter, self int, code string, need int) bool {
	found := 0
	for j, f := range filters {
		if j != self && f.TestString(code) {
			found++
			if found >= need {
				return true
			}
		}
	}
	return false
}

func (im *Importer) write(ctx context.Context, codes []string) (created, skipped int64, _ error) {
	var createdN, skippedN atomic.Int64

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(im.cfg.Workers)
	for _, code := range codes {
		g.Go(func() error {
			c := im.cfg.Template
			c.Code = code
			if _, err := im.creator.Create(ctx, c); err != nil {
				if errors.Is(err, coupon.ErrCodeTaken) {
					skippedN.Add(1)
					return nil
				}
				return errors.Wrapf(err, "create coupon %s", code)
			}
			if n := createdN.Add(1); n%10_000 == 0 {
				im.lg.Info("Write progress", zap.Int64("created", n), zap.Int("total", len(codes)))
			}
			return nil
		})
	}
	err := g.Wait()
	return createdN.Load(), skippedN.Load(), err
}

// normalize upper-cases a line into a code. Blank and oversized lines are
// dropped.
func normalize(line string) (string, bool) {
	code := strings.ToUpper(strings.TrimSpace(line))
	if code == "" || len(code) > maxCodeLen {
		return "", false
	}
	return code, true
}

// streamCodes calls fn for each code of the gzip file at path.
func streamCodes(ctx context.Context, path string, fn func(code string)) error {
	f, err := os.Open(path)
	if err != nil {
		return errors.Wrapf(err, "open %s", path)
	}
	defer func() { _ = f.Close() }()

	gz, err := pgzip.NewReader(f)
	if err != nil {
		return errors.Wrapf(err, "create gzip reader for %s", path)
	}
	defer func() { _ = gz.Close() }()

	scanner := bufio.NewScanner(gz)
	for scanner.Scan() {
		if err := ctx.Err(); err != nil {
			return err
		}
		if code, ok := normalize(scanner.Text()); ok {
			fn(code)
		}
	}
	if err := scanner.Err(); err != nil {
		return errors.Wrapf(err, "scan %s", path)
	}
	return nil
}
