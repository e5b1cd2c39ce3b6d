package main

import (
	"context"
	"encoding/csv"
	"io"
	"math/bits"
	"os"
	"strings"
	"time"

	"github.com/bits-and-blooms/bloom/v3"
	"github.com/go-faster/errors"
	"github.com/klauspost/pgzip"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/xenking/kart-checkout/internal/domain/coupon"
)

const (
	bloomFPR      = 0.001
	progressEvery = 1_000_000
	maxFiles      = bits.UintSize
)

type ingester struct {
	lg        *zap.Logger
	capacity  uint
	batchSize int
}

// duplicates finds codes present in more than one file. The result maps each
// such code to a bitmask of the files containing it.
//
// Pass 1 builds a bloom filter per file. Pass 2 re-reads every file and
// records codes that test positive in another file's filter. A code read from
// file i is literally in file i, so any code recorded by two files is a real
// duplicate and bloom false positives are discarded.
func (ing *ingester) duplicates(ctx context.Context, files []string) (map[string]uint, error) {
	if len(files) > maxFiles {
		return nil, errors.Errorf("at most %d files supported, got %d", maxFiles, len(files))
	}

	filters := make([]*bloom.BloomFilter, len(files))
	g, gctx := errgroup.WithContext(ctx)
	for i, path := range files {
		g.Go(func() error {
			f := bloom.NewWithEstimates(ing.capacity, bloomFPR)
			n, err := streamCoupons(gctx, path, func(c coupon.Coupon) {
				f.AddString(c.Code)
			})
			if err != nil {
				return err
			}
			ing.lg.Info("Pass 1 complete", zap.String("file", path), zap.Int("rows", n))
			filters[i] = f
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	candidates := make([]map[string]struct{}, len(files))
	g, gctx = errgroup.WithContext(ctx)
	for i, path := range files {
		g.Go(func() error {
			found := make(map[string]struct{})
			n, err := streamCoupons(gctx, path, func(c coupon.Coupon) {
				for j, f := range filters {
					if j != i && f.TestString(c.Code) {
						found[c.Code] = struct{}{}
						return
					}
				}
			})
			if err != nil {
				return err
			}
			ing.lg.Info("Pass 2 complete",
				zap.String("file", path),
				zap.Int("rows", n),
				zap.Int("candidates", len(found)),
			)
			candidates[i] = found
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	merged := make(map[string]uint)
	for i, found := range candidates {
		for code := range found {
			merged[code] |= 1 << uint(i)
		}
	}
	for code, mask := range merged {
		if bits.OnesCount(mask) < 2 {
			delete(merged, code)
		}
	}
	ing.lg.Info("Cross-file duplicates", zap.Int("codes", len(merged)))
	return merged, nil
}

// load streams files in order and passes batches to sink, skipping rows whose
// code belongs to an earlier file.
func (ing *ingester) load(ctx context.Context, files []string, dups map[string]uint, sink func(context.Context, []coupon.Coupon) error) error {
	batch := make([]coupon.Coupon, 0, ing.batchSize)
	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		if err := sink(ctx, batch); err != nil {
			return err
		}
		batch = batch[:0]
		return nil
	}

	for i, path := range files {
		var (
			sinkErr error
			skipped int
		)
		n, err := streamCoupons(ctx, path, func(c coupon.Coupon) {
			if sinkErr != nil {
				return
			}
			if mask, ok := dups[c.Code]; ok && bits.TrailingZeros(mask) != i {
				skipped++
				return
			}
			batch = append(batch, c)
			if len(batch) >= ing.batchSize {
				sinkErr = flush()
			}
		})
		if err == nil {
			err = sinkErr
		}
		if err != nil {
			return errors.Wrapf(err, "load %s", path)
		}
		ing.lg.Info("File loaded", zap.String("file", path), zap.Int("rows", n), zap.Int("skipped", skipped))
	}
	return flush()
}

// streamCoupons decodes a gzipped CSV export and calls fn for every valid row.
// A leading header row is skipped. It returns the number of rows passed to fn.
func streamCoupons(ctx context.Context, path string, fn func(coupon.Coupon)) (int, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, errors.Wrapf(err, "open %s", path)
	}
	defer func() { _ = f.Close() }()

	gz, err := pgzip.NewReader(f)
	if err != nil {
		return 0, errors.Wrapf(err, "create gzip reader for %s", path)
	}
	defer func() { _ = gz.Close() }()

	r := csv.NewReader(gz)
	r.FieldsPerRecord = 4
	r.ReuseRecord = true

	var n int
	for line := 1; ; line++ {
		if n%progressEvery == 0 {
			if err := ctx.Err(); err != nil {
				return n, err
			}
		}
		rec, err := r.Read()
		if errors.Is(err, io.EOF) {
			return n, nil
		}
		if err != nil {
			return n, errors.Wrapf(err, "read %s", path)
		}
		if line == 1 && strings.EqualFold(strings.TrimSpace(rec[0]), "code") {
			continue
		}
		c, err := parseRow(rec)
		if err != nil {
			return n, errors.Wrapf(err, "%s line %d", path, line)
		}
		fn(c)
		n++
	}
}

// parseRow accepts RFC 3339 timestamps or plain dates. A plain valid_to date
// covers the whole day.
func parseRow(rec []string) (coupon.Coupon, error) {
	code := strings.ToUpper(strings.TrimSpace(rec[0]))
	if code == "" {
		return coupon.Coupon{}, errors.New("empty code")
	}
	percent, err := decimal.NewFromString(strings.TrimSpace(rec[1]))
	if err != nil {
		return coupon.Coupon{}, errors.Wrap(err, "parse discount")
	}
	if percent.IsNegative() || percent.GreaterThan(decimal.NewFromInt(100)) {
		return coupon.Coupon{}, errors.Errorf("discount %s out of range", percent)
	}
	from, _, err := parseTime(rec[2])
	if err != nil {
		return coupon.Coupon{}, errors.Wrap(err, "parse valid_from")
	}
	to, dateOnly, err := parseTime(rec[3])
	if err != nil {
		return coupon.Coupon{}, errors.Wrap(err, "parse valid_to")
	}
	if dateOnly {
		to = to.Add(24*time.Hour - time.Second)
	}
	if to.Before(from) {
		return coupon.Coupon{}, errors.New("valid_to before valid_from")
	}
	return coupon.Coupon{
		Code:            code,
		DiscountPercent: percent,
		ValidFrom:       from,
		ValidTo:         to,
		Active:          true,
	}, nil
}

func parseTime(s string) (t time.Time, dateOnly bool, err error) {
	s = strings.TrimSpace(s)
	if t, err = time.Parse(time.RFC3339, s); err == nil {
		return t, false, nil
	}
	t, err = time.Parse(time.DateOnly, s)
	return t, true, err
}
