// Package app wires the checkout services into an HTTP server.
package app

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/app"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.uber.org/zap"

	"github.com/xenking/kart-checkout/internal/domain/cart"
	"github.com/xenking/kart-checkout/internal/domain/order"
	"github.com/xenking/kart-checkout/internal/handler"
	"github.com/xenking/kart-checkout/internal/notify"
	"github.com/xenking/kart-checkout/internal/storage/postgres"
	rediscache "github.com/xenking/kart-checkout/internal/storage/redis"
	"github.com/xenking/kart-checkout/pkg/health"
	"github.com/xenking/kart-checkout/pkg/httpmiddleware"
)

const serviceName = "kart-checkout"

// Run creates all dependencies, starts the HTTP server, and handles graceful
// shutdown. It is the single wiring point for the application.
func Run(ctx context.Context, lg *zap.Logger, m *app.Telemetry, cfg *Config) error {
	lg.Info("Initializing", zap.String("addr", cfg.Addr))

	// PostgreSQL pool + migrations.
	pool, err := postgres.NewPool(ctx, cfg.DatabaseURL)
	if err != nil {
		return errors.Wrap(err, "create db pool")
	}
	defer pool.Close()

	if err := postgres.RunMigrations(ctx, pool); err != nil {
		return errors.Wrap(err, "run migrations")
	}

	healthSvc := health.New()
	healthSvc.AddReadinessCheck("postgres", 5*time.Second, health.PostgresCheck(pool))
	healthSvc.AddLivenessCheck("goroutines", time.Second, health.GoroutineCountCheck(10000))

	// Optional cart cache.
	var cartCache cart.Cache
	if cfg.Redis.Addr != "" {
		rdb := redis.NewUniversalClient(&redis.UniversalOptions{Addrs: []string{cfg.Redis.Addr}})
		defer func() { _ = rdb.Close() }()
		cartCache = rediscache.NewCartCache(rdb, cfg.Redis.CartTTL)
		healthSvc.AddReadinessCheck("redis", 2*time.Second, health.RedisCheck(rdb))
		lg.Info("Cart cache enabled", zap.String("redis", cfg.Redis.Addr))
	}

	// Order events go to Kafka when brokers are configured, else to the log.
	var publisher notify.Publisher = notify.NewLogPublisher(lg.Named("notify"))
	if len(cfg.Kafka.Brokers) > 0 {
		kp := notify.NewKafkaPublisher(notify.NewKafkaWriter(cfg.Kafka.Topic, cfg.Kafka.Brokers...))
		defer func() {
			if err := kp.Close(); err != nil {
				lg.Warn("Close kafka writer", zap.Error(err))
			}
		}()
		publisher = kp
		healthSvc.AddReadinessCheck("kafka", 3*time.Second, health.KafkaCheck(cfg.Kafka.Brokers))
		lg.Info("Kafka events enabled",
			zap.Strings("brokers", cfg.Kafka.Brokers),
			zap.String("topic", cfg.Kafka.Topic),
		)
	}
	dispatcher := notify.NewDispatcher(publisher, cfg.Notify.Timeout)

	healthSvc.Start(ctx, 10*time.Second)
	healthSvc.SetReady(true)

	metrics, err := order.NewMetrics(m.MeterProvider().Meter(serviceName))
	if err != nil {
		return errors.Wrap(err, "create metrics")
	}

	svc := newServices(pool, cartCache, dispatcher, metrics, cfg)
	router := newRouter(svc, healthSvc, lg, cfg.TaxRate())

	server := &http.Server{
		ReadHeaderTimeout: time.Second,
		ReadTimeout:       5 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       120 * time.Second,
		MaxHeaderBytes:    1 << 20,
		Addr:              cfg.Addr,
		Handler: otelhttp.NewHandler(router, "kart-api",
			otelhttp.WithTracerProvider(m.TracerProvider()),
			otelhttp.WithMeterProvider(m.MeterProvider()),
		),
	}

	// Graceful shutdown: wait for context cancellation, drain, then stop.
	shutdownDone := make(chan struct{})
	go func() {
		defer close(shutdownDone)
		<-ctx.Done()
		healthSvc.SetReady(false)
		lg.Info("Readiness set to false, draining", zap.Duration("delay", cfg.Graceful.ReadinessDelay))
		time.Sleep(cfg.Graceful.ReadinessDelay)

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Graceful.ShutdownTimeout)
		defer cancel()

		lg.Info("Shutting down server", zap.Duration("timeout", cfg.Graceful.ShutdownTimeout))
		if err := server.Shutdown(shutdownCtx); err != nil {
			lg.Error("Server shutdown error", zap.Error(err))
		}
		if err := dispatcher.Close(shutdownCtx); err != nil {
			lg.Warn("Pending order events dropped", zap.Error(err))
		}
		healthSvc.Stop()
	}()

	lg.Info("Server listening", zap.String("addr", cfg.Addr))
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return errors.Wrap(err, "server")
	}
	<-shutdownDone
	return nil
}

type services struct {
	carts  *cart.Service
	orders *order.Service
}

func newServices(pool *pgxpool.Pool, cache cart.Cache, notifier order.Notifier, metrics *order.Metrics, cfg *Config) services {
	productRepo := postgres.NewProductRepository(pool)
	cartRepo := postgres.NewCartRepository(pool)

	carts := cart.NewService(cartRepo, productRepo, cache)
	orders := order.NewService(order.Deps{
		Carts:           cartRepo,
		CartCache:       carts,
		Products:        productRepo,
		Stock:           productRepo,
		Coupons:         postgres.NewCouponRepository(pool),
		Orders:          postgres.NewOrderRepository(pool),
		Addresses:       postgres.NewAddressRepository(pool),
		Payments:        postgres.NewPaymentRepository(pool),
		Tx:              postgres.NewTxManager(pool),
		Notifier:        notifier,
		Metrics:         metrics,
		TaxRate:         cfg.TaxRate(),
		ManualProviders: cfg.Checkout.ManualProviders,
	})
	return services{carts: carts, orders: orders}
}

// newRouter mounts the API under /api and the probes at the root, behind
// logging, recovery and request id middleware.
func newRouter(svc services, hl *health.Health, lg *zap.Logger, taxRate decimal.Decimal) http.Handler {
	h := handler.New(handler.Config{TaxRate: taxRate}, svc.carts, svc.orders)
	root := chi.NewRouter()
	h.Mount(root, hl.LiveEndpoint, hl.ReadyEndpoint)

	return httpmiddleware.Wrap(root,
		httpmiddleware.InjectLogger(lg),
		httpmiddleware.Recovery(),
		httpmiddleware.RequestID(),
	)
}
