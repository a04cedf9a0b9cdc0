package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ariefcatur/marketplace-orders/internal/auth"
	"github.com/ariefcatur/marketplace-orders/internal/config"
	"github.com/ariefcatur/marketplace-orders/internal/httpx"
	kafkax "github.com/ariefcatur/marketplace-orders/internal/kafka"
	"github.com/ariefcatur/marketplace-orders/internal/logging"
	"github.com/ariefcatur/marketplace-orders/internal/metrics"
	"github.com/ariefcatur/marketplace-orders/internal/orders"
	"github.com/ariefcatur/marketplace-orders/internal/postgres"
	"github.com/ariefcatur/marketplace-orders/internal/redisx"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		bootLog := logging.New("order-api", "info")
		bootLog.Fatal().Err(err).Msg("load config")
	}
	log := logging.New(cfg.ServiceName, cfg.LogLevel)
	if cfg.JWTSecret == "" {
		log.Fatal().Msg("JWT_SECRET is required")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if cfg.MigrateOnStart {
		if err := postgres.Migrate(cfg.PostgresDSN, log); err != nil {
			log.Fatal().Err(err).Msg("migrate")
		}
	}

	db, err := postgres.Connect(ctx, cfg.PostgresDSN, postgres.PoolOptions{MaxConns: cfg.PostgresMaxConn})
	if err != nil {
		log.Fatal().Err(err).Msg("db connect")
	}
	defer db.Close()

	rdb := redisx.New(cfg.RedisAddr)
	defer rdb.Close()
	if err := redisx.Ping(ctx, rdb); err != nil {
		// the cache is optional; orders still work from Postgres
		log.Warn().Err(err).Msg("redis unavailable at startup")
	}

	prod := kafkax.NewProducer(kafkax.NewWriter(cfg.KafkaBrokers), 1024, log)
	prod.Start(ctx)

	reg := metrics.NewRegistry()
	svc := &orders.Service{
		Catalog:     &orders.CatalogRepo{DB: db},
		Store:       &orders.Repo{DB: db},
		Cache:       &redisx.OrderCache{RDB: rdb, TTL: cfg.OrderCacheTTL},
		Events:      prod,
		Metrics:     metrics.NewOrderMetrics(reg, cfg.ServiceName),
		Log:         log,
		TxTimeout:   cfg.OrderTxTimeout,
		ServiceName: cfg.ServiceName,
	}

	router := httpx.NewRouter(httpx.RouterDeps{
		Log:      log,
		Metrics:  metrics.NewServerMetrics(reg, cfg.ServiceName),
		Gatherer: reg,
	})
	oh := &httpx.OrdersHandler{
		Orders: svc,
		Auth:   &auth.JWTResolver{Secret: []byte(cfg.JWTSecret)},
		Log:    log,
	}
	oh.Register(router)

	srv := &http.Server{Addr: cfg.HTTPAddr, Handler: router, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		log.Info().Str("addr", cfg.HTTPAddr).Msg("http listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("listen")
		}
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig
	log.Info().Msg("shutting down")

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancelShutdown()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("http shutdown")
	}
	prod.Close() // flush queued events, then close the writer
	prod.WaitClosed()
}
