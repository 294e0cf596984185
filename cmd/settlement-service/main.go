package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/marketfleet/Payment-Settlement-Service/internal/config"
	"github.com/marketfleet/Payment-Settlement-Service/internal/payment/application"
	"github.com/marketfleet/Payment-Settlement-Service/internal/payment/infrastructure/gateway"
	paymenthttp "github.com/marketfleet/Payment-Settlement-Service/internal/payment/infrastructure/http"
	pg "github.com/marketfleet/Payment-Settlement-Service/internal/payment/infrastructure/postgres"
	"github.com/marketfleet/Payment-Settlement-Service/internal/payment/signing"
	"github.com/marketfleet/Payment-Settlement-Service/pkg/idempotency"
	"github.com/marketfleet/Payment-Settlement-Service/pkg/logging"
	"github.com/marketfleet/Payment-Settlement-Service/pkg/outbox"
	"github.com/marketfleet/Payment-Settlement-Service/pkg/shutdown"
	"github.com/marketfleet/Payment-Settlement-Service/pkg/tracing"
	"github.com/redis/go-redis/v9"
	"github.com/segmentio/kafka-go"
)

func main() {
	log := logging.New()
	ctx, cancel := shutdown.WithSignals(context.Background())
	defer cancel()

	cfg, err := config.Load()
	if err != nil {
		log.Error("config load failed", "err", err)
		os.Exit(1)
	}

	tp, err := tracing.Init(ctx, "settlement-service", cfg.JaegerURL, log)
	if err != nil {
		log.Error("otel init failed", "err", err)
		os.Exit(1)
	}
	defer func() { _ = tp.Shutdown(context.Background()) }()

	pool, err := pgxpool.New(ctx, cfg.PGURL)
	if err != nil {
		log.Error("pg connect failed", "err", err)
		os.Exit(1)
	}
	defer pool.Close()

	redisDB := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
	replays := idempotency.NewStore(redisDB, 24*time.Hour)

	orders := pg.NewOrderStore(log, pool)
	audit := pg.NewAuditSink(log, pool)
	signer := signing.NewSigner(cfg.Passphrase)

	builder := application.NewBuilder(application.GatewayConfig{
		MerchantID:  cfg.MerchantID,
		MerchantKey: cfg.MerchantKey,
		ReturnURL:   cfg.ReturnURL,
		CancelURL:   cfg.CancelURL,
		NotifyURL:   cfg.NotifyURL,
		ProcessURL:  cfg.ProcessURL(),
		Environment: cfg.Environment(),
	}, signer, orders)

	processor := application.NewProcessor(
		log,
		cfg.Environment(),
		signer,
		gateway.NewResolver(log, cfg.NotifyHosts()),
		gateway.NewClient(log, cfg.ValidateURL()),
		orders,
		audit,
		replays,
	)

	// Outbox relay for settlement events.
	writer := &kafka.Writer{
		Addr:         kafka.TCP(cfg.KafkaAddr),
		Balancer:     &kafka.LeastBytes{},
		RequiredAcks: kafka.RequireAll,
	}
	dispatch := outbox.NewDispatcher(log, writer, cfg.EventTopic)
	relay := outbox.NewRelay(log, pg.NewOutboxStore(log, pool), dispatch, "settlement-service-relay")
	go func() {
		if err := relay.Run(ctx); err != nil {
			log.Error("relay stopped", "err", err)
		}
	}()

	handler := paymenthttp.NewHandler(log, builder, processor, orders)
	srv := &http.Server{Addr: cfg.ListenAddr, Handler: handler.Routes()}

	go func() {
		log.Info("settlement-service listening", "addr", cfg.ListenAddr, "environment", cfg.Environment())
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("http server failed", "err", err)
			cancel()
		}
	}()

	<-ctx.Done()

	drainCtx, drainCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer drainCancel()
	if err := srv.Shutdown(drainCtx); err != nil {
		log.Error("http shutdown failed", "err", err)
	}
	log.Info("settlement-service shutdown")
}
