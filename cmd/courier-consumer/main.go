package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/mishimanto/ecommerce/internal/config"
	shipapp "github.com/mishimanto/ecommerce/internal/shipment/application"
	"github.com/mishimanto/ecommerce/internal/shipment/courier"
	shipkafka "github.com/mishimanto/ecommerce/internal/shipment/infrastructure/kafka"
	shippg "github.com/mishimanto/ecommerce/internal/shipment/infrastructure/postgres"
	"github.com/mishimanto/ecommerce/internal/storage/postgres"
	"github.com/mishimanto/ecommerce/pkg/httpclient"
	"github.com/mishimanto/ecommerce/pkg/idempotency"
	"github.com/mishimanto/ecommerce/pkg/logging"
	"github.com/mishimanto/ecommerce/pkg/metrics"
	"github.com/mishimanto/ecommerce/pkg/shutdown"
	"github.com/mishimanto/ecommerce/pkg/tracing"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logging.New().Error("config invalid", "err", err)
		os.Exit(1)
	}
	log := logging.NewWithLevel(cfg.LogLevel)
	if cfg.PGURL == "" || cfg.RedisAddr == "" || len(cfg.KafkaBrokers) == 0 {
		log.Error("courier-consumer needs PG_URL, REDIS_ADDR and KAFKA_ADDR")
		os.Exit(1)
	}

	ctx, cancel := shutdown.WithSignals(context.Background())
	defer cancel()

	tp, err := tracing.Init(ctx, "courier-consumer", cfg.OTLPEndpoint, log)
	if err != nil {
		log.Error("otel init failed", "err", err)
		os.Exit(1)
	}
	defer func() { _ = tp.Shutdown(context.Background()) }()
	m := metrics.New("courier-consumer")

	pool, err := postgres.Connect(ctx, cfg.PGURL)
	if err != nil {
		log.Error("pg connect failed", "err", err)
		os.Exit(1)
	}
	defer pool.Close()

	rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
	defer func() { _ = rdb.Close() }()

	statuses, err := courier.LoadStatusMap(cfg.CourierStatusMap)
	if err != nil {
		log.Error("courier status map invalid", "err", err)
		os.Exit(1)
	}
	couriers := courier.NewRegistry(
		courier.NewPathao(cfg.Pathao, httpclient.New("pathao", cfg.GatewayTimeout)),
		courier.NewSteadfast(cfg.Steadfast, httpclient.New("steadfast", cfg.GatewayTimeout)),
		courier.NewRedX(cfg.RedX, httpclient.New("redx", cfg.GatewayTimeout)),
		courier.NewManual(),
	)
	tracker := shipapp.NewTracker(log, shippg.NewRepository(log, pool), couriers, statuses, shippg.NewRecipients(pool))

	reader := shipkafka.NewReader(cfg.KafkaBrokers, cfg.CourierTopic, cfg.CourierGroup)
	consumer := shipkafka.NewConsumer(log, reader, tracker, idempotency.NewStore(rdb, cfg.IdemTTL), m)

	metricsSrv := &http.Server{Addr: cfg.MetricsAddr, Handler: m.Handler(), ReadTimeout: 5 * time.Second}
	go func() {
		if err := metricsSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("metrics server error", "err", err)
		}
	}()

	log.Info("courier consumer started", "topic", cfg.CourierTopic, "group", cfg.CourierGroup)
	if err := consumer.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		log.Error("consumer stopped with error", "err", err)
	}
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	_ = metricsSrv.Shutdown(shutdownCtx)
	log.Info("courier-consumer shutdown complete")
}
