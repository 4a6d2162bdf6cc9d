package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/andreasstove999/ecommerce-system/reservation-service-go/internal/address"
	"github.com/andreasstove999/ecommerce-system/reservation-service-go/internal/catalog"
	"github.com/andreasstove999/ecommerce-system/reservation-service-go/internal/clock"
	"github.com/andreasstove999/ecommerce-system/reservation-service-go/internal/config"
	"github.com/andreasstove999/ecommerce-system/reservation-service-go/internal/db"
	"github.com/andreasstove999/ecommerce-system/reservation-service-go/internal/events"
	httpapi "github.com/andreasstove999/ecommerce-system/reservation-service-go/internal/http"
	"github.com/andreasstove999/ecommerce-system/reservation-service-go/internal/idempotency"
	"github.com/andreasstove999/ecommerce-system/reservation-service-go/internal/logging"
	"github.com/andreasstove999/ecommerce-system/reservation-service-go/internal/metrics"
	"github.com/andreasstove999/ecommerce-system/reservation-service-go/internal/order"
	"github.com/andreasstove999/ecommerce-system/reservation-service-go/internal/pricing"
	"github.com/andreasstove999/ecommerce-system/reservation-service-go/internal/ratelimit"
	"github.com/andreasstove999/ecommerce-system/reservation-service-go/internal/reservation"
	"github.com/andreasstove999/ecommerce-system/reservation-service-go/internal/stock"
	"github.com/andreasstove999/ecommerce-system/reservation-service-go/internal/tracing"
)

func main() {
	cfg := config.Load()
	logger := logging.New(cfg.LogLevel, cfg.ServiceName)

	if err := run(cfg, logger); err != nil {
		logger.Fatal().Err(err).Msg("service stopped")
	}
	logger.Info().Msg("shutdown complete")
}

func run(cfg config.Config, logger zerolog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// --- tracing ---
	if cfg.JaegerEndpoint != "" {
		tp, err := tracing.InitTracerProvider(cfg.ServiceName, cfg.JaegerEndpoint)
		if err != nil {
			return err
		}
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = tp.Shutdown(shutdownCtx)
		}()
		logger.Info().Str("endpoint", cfg.JaegerEndpoint).Msg("tracing enabled")
	}

	// --- DB ---
	pool, err := db.NewPool(ctx, cfg.DatabaseDSN, db.PoolOptions{
		MaxConns:        int32(cfg.DBMaxConns),
		MinConns:        int32(cfg.DBMinConns),
		MaxConnLifetime: cfg.DBMaxConnLifetime,
		MaxConnIdleTime: cfg.DBMaxConnIdleTime,
	})
	if err != nil {
		return err
	}
	defer pool.Close()

	if cfg.RunMigrations {
		if err := db.RunMigrations(cfg.DatabaseDSN, logger); err != nil {
			return err
		}
	}
	runner := db.NewRunner(pool)

	m := metrics.New()
	clk := clock.NewSystem()

	manager := reservation.NewManager(runner,
		stock.NewPostgresLedger(runner),
		reservation.NewPostgresStore(runner),
		clk,
		reservation.WithTTL(cfg.ReservationTTL),
		reservation.WithMaxQuantity(cfg.MaxItemQuantity),
		reservation.WithLogger(logger),
		reservation.WithMetrics(m),
	)

	// --- Redis (optional) ---
	var idem idempotency.Ledger = idempotency.NewPostgresLedger(runner)
	var rdb *redis.Client
	if cfg.RedisAddr != "" {
		rdb = redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		defer rdb.Close()
		if err := rdb.Ping(ctx).Err(); err != nil {
			logger.Warn().Err(err).Msg("redis unreachable, continuing without cache")
		}
		idem = idempotency.NewCachedLedger(idem, rdb, logger)
	}

	transitions := order.DefaultTransitions()
	if cfg.OrderTransitionsFile != "" {
		if transitions, err = order.LoadTransitions(cfg.OrderTransitionsFile); err != nil {
			return err
		}
	}

	// --- AMQP (optional) ---
	var (
		conn     *amqp.Connection
		notifier order.Notifier = order.LogNotifier{Logger: logger}
	)
	if cfg.RabbitURL != "" {
		if conn, err = events.DialRabbit(cfg.RabbitURL); err != nil {
			return err
		}
		defer conn.Close()

		pub, err := events.NewPublisher(conn, events.NewSequenceRepository(runner))
		if err != nil {
			return err
		}
		defer pub.Close()
		notifier = pub
	}

	orders := order.NewService(order.Deps{
		Tx:          runner,
		Repo:        order.NewPostgresRepository(runner),
		Idempotency: idem,
		Prices:      pricing.NewValidator(catalog.NewPostgresCatalog(runner), cfg.PriceTolerance),
		Stock:       manager,
		Addresses:   address.NewPostgresBook(runner),
		Notifier:    notifier,
		Clock:       clk,
	},
		order.WithTransitions(transitions),
		order.WithMaxItemQuantity(cfg.MaxItemQuantity),
		order.WithLogger(logger),
		order.WithMetrics(m),
	)

	// --- HTTP ---
	routerOpts := httpapi.RouterOptions{Logger: logger, Metrics: m.Handler()}
	if rdb != nil {
		routerOpts.RateLimit = ratelimit.New(ratelimit.NewRedisStore(rdb), cfg.RateLimitPerMinute, logger).Middleware
	}

	httpServer := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           httpapi.NewRouter(httpapi.NewHandler(manager, orders), routerOpts),
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      15 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Info().Str("addr", cfg.HTTPAddr).Msg("http listening")
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	// --- graceful shutdown ---
	g.Go(func() error {
		<-gctx.Done()
		logger.Info().Msg("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return httpServer.Shutdown(shutdownCtx)
	})

	sweeper := reservation.NewSweeper(manager, cfg.SweepInterval, cfg.SweepBatchSize, logger)
	g.Go(func() error { return sweeper.Run(gctx) })

	if conn != nil {
		handler := events.PaymentResultHandler(runner, orders, events.NewCheckpoints(runner), logger)
		g.Go(func() error { return events.ConsumePaymentResults(gctx, conn, handler, logger) })
	}

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}
