// Command seed-db loads a demo catalog: products, addresses, payment options
// and coupons.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"os"
	"os/signal"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/xenking/kart-checkout/internal/domain/address"
	"github.com/xenking/kart-checkout/internal/domain/coupon"
	"github.com/xenking/kart-checkout/internal/domain/payment"
	"github.com/xenking/kart-checkout/internal/domain/product"
	"github.com/xenking/kart-checkout/internal/storage/postgres"
)

type catalog struct {
	Products []struct {
		Name  string          `json:"name"`
		Price decimal.Decimal `json:"price"`
		Stock int             `json:"stock"`
	} `json:"products"`
	Addresses []struct {
		UserID      int64  `json:"user_id"`
		Line        string `json:"line"`
		City        string `json:"city"`
		State       string `json:"state"`
		Country     string `json:"country"`
		PostalCode  string `json:"postal_code"`
		PhoneNumber string `json:"phone_number"`
	} `json:"addresses"`
	PaymentOptions []struct {
		Name          string `json:"name"`
		Provider      string `json:"provider"`
		AccountName   string `json:"account_name"`
		AccountNumber string `json:"account_number"`
	} `json:"payment_options"`
	Coupons []struct {
		Code            string          `json:"code"`
		DiscountPercent decimal.Decimal `json:"discount_percent"`
		ValidFrom       time.Time       `json:"valid_from"`
		ValidTo         time.Time       `json:"valid_to"`
		Active          bool            `json:"active"`
	} `json:"coupons"`
}

func main() {
	var (
		databaseURL string
		catalogFile string
	)
	flag.StringVar(&databaseURL, "database-url", "", "PostgreSQL connection URL (or DATABASE_URL env)")
	flag.StringVar(&catalogFile, "catalog", "db/seed/catalog.json", "path to catalog JSON file")
	flag.Parse()

	lg, err := zap.NewProduction()
	if err != nil {
		panic(err)
	}
	defer func() { _ = lg.Sync() }()

	if databaseURL == "" {
		databaseURL = os.Getenv("DATABASE_URL")
	}
	if databaseURL == "" {
		lg.Fatal("Database URL is required: set --database-url or DATABASE_URL")
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	if err := run(ctx, lg, databaseURL, catalogFile); err != nil {
		lg.Fatal("Seed failed", zap.Error(err))
	}
	lg.Info("Seed completed")
}

func run(ctx context.Context, lg *zap.Logger, databaseURL, catalogFile string) error {
	data, err := os.ReadFile(catalogFile)
	if err != nil {
		return errors.Wrap(err, "read catalog")
	}
	var c catalog
	if err := json.Unmarshal(data, &c); err != nil {
		return errors.Wrap(err, "parse catalog")
	}

	pool, err := postgres.NewPool(ctx, databaseURL)
	if err != nil {
		return errors.Wrap(err, "connect to database")
	}
	defer pool.Close()

	if err := postgres.RunMigrations(ctx, pool); err != nil {
		return errors.Wrap(err, "run migrations")
	}

	// One transaction so a bad row leaves the database untouched.
	return postgres.NewTxManager(pool).RunInTx(ctx, func(ctx context.Context) error {
		products := postgres.NewProductRepository(pool)
		for _, p := range c.Products {
			row := product.Product{Name: p.Name, Price: p.Price, Stock: p.Stock}
			if err := products.Create(ctx, &row); err != nil {
				return err
			}
			lg.Info("Product", zap.Int64("id", row.ID), zap.String("name", row.Name), zap.Int("stock", row.Stock))
		}

		addresses := postgres.NewAddressRepository(pool)
		for _, a := range c.Addresses {
			row := address.Address{
				UserID:      a.UserID,
				Line:        a.Line,
				City:        a.City,
				State:       a.State,
				Country:     a.Country,
				PostalCode:  a.PostalCode,
				PhoneNumber: a.PhoneNumber,
			}
			if err := addresses.Create(ctx, &row); err != nil {
				return err
			}
			lg.Info("Address", zap.Int64("id", row.ID), zap.Int64("user_id", row.UserID))
		}

		payments := postgres.NewPaymentRepository(pool)
		for _, p := range c.PaymentOptions {
			row := payment.Method{
				Name:          p.Name,
				Provider:      p.Provider,
				AccountName:   p.AccountName,
				AccountNumber: p.AccountNumber,
				Active:        true,
			}
			if err := payments.Create(ctx, &row); err != nil {
				return err
			}
			lg.Info("Payment option", zap.Int64("id", row.ID), zap.String("name", row.Name), zap.String("provider", row.Provider))
		}

		coupons := make([]coupon.Coupon, 0, len(c.Coupons))
		for _, cp := range c.Coupons {
			coupons = append(coupons, coupon.Coupon{
				Code:            cp.Code,
				DiscountPercent: cp.DiscountPercent,
				ValidFrom:       cp.ValidFrom,
				ValidTo:         cp.ValidTo,
				Active:          cp.Active,
			})
		}
		if err := postgres.NewCouponRepository(pool).Upsert(ctx, coupons); err != nil {
			return err
		}
		lg.Info("Coupons", zap.Int("count", len(coupons)))
		return nil
	})
}
