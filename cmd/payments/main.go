package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/ariefcatur/marketplace-orders/internal/config"
	kafkax "github.com/ariefcatur/marketplace-orders/internal/kafka"
	"github.com/ariefcatur/marketplace-orders/internal/logging"
	"github.com/ariefcatur/marketplace-orders/internal/metrics"
	"github.com/ariefcatur/marketplace-orders/internal/orders"
	"github.com/ariefcatur/marketplace-orders/internal/payments"
	"github.com/ariefcatur/marketplace-orders/internal/postgres"
	"github.com/ariefcatur/marketplace-orders/internal/redisx"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		bootLog := logging.New("order-payments", "info")
		bootLog.Fatal().Err(err).Msg("load config")
	}
	name := cfg.ServiceName + "-payments"
	log := logging.New(name, cfg.LogLevel)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	db, err := postgres.Connect(ctx, cfg.PostgresDSN, postgres.PoolOptions{MaxConns: cfg.PostgresMaxConn})
	if err != nil {
		log.Fatal().Err(err).Msg("db connect")
	}
	defer db.Close()

	rdb := redisx.New(cfg.RedisAddr)
	defer rdb.Close()
	if err := redisx.Ping(ctx, rdb); err != nil {
		log.Fatal().Err(err).Msg("redis")
	}

	reg := metrics.NewRegistry()
	om := metrics.NewOrderMetrics(reg, name)
	svc := &payments.Service{
		Orders: &orders.Service{
			Store:       &orders.Repo{DB: db},
			Cache:       &redisx.OrderCache{RDB: rdb, TTL: cfg.OrderCacheTTL},
			Metrics:     om,
			Log:         log,
			TxTimeout:   cfg.OrderTxTimeout,
			ServiceName: name,
		},
		Dedup:   &redisx.Dedup{RDB: rdb, Service: "payments"},
		Metrics: om,
		Log:     log,
	}

	reader := kafkax.NewReader(cfg.KafkaBrokers, cfg.PaymentsGroup, orders.TopicPaymentConfirmed)
	cons := kafkax.NewConsumer(reader, cfg.PaymentsWorkers, log)

	done := make(chan struct{})
	go func() {
		defer close(done)
		log.Info().
			Str("group", cfg.PaymentsGroup).
			Str("topic", orders.TopicPaymentConfirmed).
			Int("workers", cfg.PaymentsWorkers).
			Msg("payments consumer started")
		if err := cons.Start(ctx, svc.HandlePaymentConfirmed); err != nil {
			log.Error().Err(err).Msg("consumer exit")
			cancel()
		}
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-sig:
	case <-ctx.Done():
	}
	log.Info().Msg("shutting down consumer")
	cancel()
	<-done
}
