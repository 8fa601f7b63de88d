package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/meetpatell07/GBC-EventBooking/internal/application/factories/infrastructure"
	"github.com/meetpatell07/GBC-EventBooking/internal/breaker"
	"github.com/meetpatell07/GBC-EventBooking/internal/config"
	"github.com/meetpatell07/GBC-EventBooking/internal/infrastructure/kafka"
	"github.com/meetpatell07/GBC-EventBooking/internal/infrastructure/postgres"
	"github.com/meetpatell07/GBC-EventBooking/internal/logger"
	"github.com/meetpatell07/GBC-EventBooking/internal/relay"
)

func main() {
	cfg, err := config.New()
	if err != nil {
		logger.New("info").Error("failed to load config", "error", err)
		os.Exit(1)
	}
	log := logger.New(cfg.Log.Level)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	infraFactory := infrastructure.NewFactory(cfg)
	defer infraFactory.Close()

	pgPool, err := infraFactory.Postgres(ctx)
	if err != nil {
		log.Error("failed to connect to postgres", "error", err)
		os.Exit(1)
	}

	outboxRepo := postgres.NewOutboxRepository(pgPool)

	// Records claimed by a relay that crashed mid-batch go back to pending.
	if rescued, err := outboxRepo.ReleaseStale(ctx); err != nil {
		log.Error("failed to release stale outbox claims", "error", err)
	} else if rescued > 0 {
		log.Info("released stale outbox claims", "count", rescued)
	}

	kafkaProd := kafka.NewProducer(kafka.Config{
		Brokers: cfg.Kafka.Brokers,
		Topic:   cfg.Kafka.Topic,
	})
	defer kafkaProd.Close()

	registry := breaker.NewRegistry(breaker.Config{
		Window:           cfg.Breaker.Window,
		FailureThreshold: cfg.Breaker.FailureThreshold,
		Cooldown:         cfg.Breaker.Cooldown,
		ProbeSuccesses:   cfg.Breaker.ProbeSuccesses,
	})

	go func() {
		metricsSrv := &http.Server{Addr: ":" + cfg.HTTP.MetricsPort, Handler: promhttp.Handler()}
		log.Info("metrics server starting", "port", cfg.HTTP.MetricsPort)
		if err := metricsSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("metrics listen failed", "error", err)
		}
	}()

	poller := relay.New(outboxRepo, kafkaProd, registry.Get("kafka-publish"), log, relay.Config{
		PollInterval:   cfg.Outbox.PollInterval,
		BatchSize:      cfg.Outbox.BatchSize,
		MaxAttempts:    cfg.Outbox.MaxAttempts,
		PublishTimeout: cfg.Kafka.PublishTimeout,
	})

	log.Info("outbox relay starting", "topic", cfg.Kafka.Topic, "poll_interval", cfg.Outbox.PollInterval.String())
	if err := poller.Run(ctx); err != nil {
		log.Error("relay stopped with error", "error", err)
	}

	log.Info("relay exited")
}
