// Command coupon-ingest bulk-loads coupons from gzipped CSV exports.
//
// Each file holds rows of code,discount_percent,valid_from,valid_to. When a
// code appears in several exports the row from the earliest file on the
// command line wins.
package main

import (
	"context"
	"flag"
	"os"
	"os/signal"

	"github.com/go-faster/errors"
	"go.uber.org/zap"

	"github.com/xenking/kart-checkout/internal/domain/coupon"
	"github.com/xenking/kart-checkout/internal/storage/postgres"
)

func main() {
	var (
		databaseURL string
		batchSize   int
		capacity    uint
	)
	flag.StringVar(&databaseURL, "database-url", "", "PostgreSQL connection URL (or DATABASE_URL env)")
	flag.IntVar(&batchSize, "batch", 1000, "coupons per database batch")
	flag.UintVar(&capacity, "capacity", 10_000_000, "expected codes per file, sizes the bloom filters")
	flag.Parse()

	lg, err := zap.NewProduction()
	if err != nil {
		panic(err)
	}
	defer func() { _ = lg.Sync() }()

	files := flag.Args()
	if len(files) == 0 {
		lg.Fatal("Usage: coupon-ingest [flags] export1.csv.gz [export2.csv.gz ...]")
	}
	if databaseURL == "" {
		databaseURL = os.Getenv("DATABASE_URL")
	}
	if databaseURL == "" {
		lg.Fatal("Database URL is required: set --database-url or DATABASE_URL")
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	if err := run(ctx, lg, databaseURL, files, capacity, batchSize); err != nil {
		lg.Fatal("Coupon ingest failed", zap.Error(err))
	}
	lg.Info("Coupon ingest completed")
}

func run(ctx context.Context, lg *zap.Logger, databaseURL string, files []string, capacity uint, batchSize int) error {
	for _, f := range files {
		if _, err := os.Stat(f); err != nil {
			return errors.Wrapf(err, "check file %s", f)
		}
	}

	ing := &ingester{lg: lg, capacity: capacity, batchSize: batchSize}
	dups, err := ing.duplicates(ctx, files)
	if err != nil {
		return errors.Wrap(err, "find duplicates")
	}

	pool, err := postgres.NewPool(ctx, databaseURL)
	if err != nil {
		return errors.Wrap(err, "connect to database")
	}
	defer pool.Close()

	if err := postgres.RunMigrations(ctx, pool); err != nil {
		return errors.Wrap(err, "run migrations")
	}

	repo := postgres.NewCouponRepository(pool)
	var inserted int64
	if err := ing.load(ctx, files, dups, func(ctx context.Context, batch []coupon.Coupon) error {
		n, err := repo.InsertBatch(ctx, batch)
		inserted += n
		return err
	}); err != nil {
		return errors.Wrap(err, "load coupons")
	}
	lg.Info("Coupons inserted", zap.Int64("count", inserted))
	return nil
}
