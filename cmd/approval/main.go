package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/meetpatell07/GBC-EventBooking/internal/api"
	"github.com/meetpatell07/GBC-EventBooking/internal/application/factories/infrastructure"
	"github.com/meetpatell07/GBC-EventBooking/internal/config"
	"github.com/meetpatell07/GBC-EventBooking/internal/consumer"
	"github.com/meetpatell07/GBC-EventBooking/internal/infrastructure/kafka"
	"github.com/meetpatell07/GBC-EventBooking/internal/infrastructure/postgres"
	"github.com/meetpatell07/GBC-EventBooking/internal/logger"
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

	store := postgres.NewApprovalStore(pgPool, cfg.Kafka.GroupID)
	approvalRepo := postgres.NewApprovalRepository(pgPool)

	kafkaConsumer := kafka.NewConsumer(cfg.Kafka.Brokers, cfg.Kafka.Topic, cfg.Kafka.GroupID)
	defer kafkaConsumer.Close()

	dlqProd := kafka.NewProducer(kafka.Config{
		Brokers: cfg.Kafka.Brokers,
		Topic:   cfg.Kafka.DLQTopic,
	})
	defer dlqProd.Close()

	rules := consumer.NewEvaluator(consumer.RulesConfig{
		MaxDuration: cfg.Approval.MaxDuration,
	})

	proc := consumer.NewProcessor(kafkaConsumer, store, dlqProd, rules, log, consumer.Config{})

	go func() {
		metricsSrv := &http.Server{Addr: ":" + cfg.HTTP.MetricsPort, Handler: promhttp.Handler()}
		log.Info("metrics server starting", "port", cfg.HTTP.MetricsPort)
		if err := metricsSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("metrics listen failed", "error", err)
		}
	}()

	// Decision query API.
	srv := &http.Server{
		Addr:    ":" + cfg.HTTP.Port,
		Handler: api.NewApprovalRouter(approvalRepo),
	}
	go func() {
		log.Info("approval query api starting", "port", cfg.HTTP.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("listen failed", "error", err)
			os.Exit(1)
		}
	}()

	// Optional expiry sweeper: zero TTL means decisions stay PENDING
	// until an event settles them.
	if cfg.Approval.PendingTTL > 0 {
		go runSweeper(ctx, approvalRepo, cfg.Approval, log)
	}

	log.Info("approval consumer starting",
		"topic", cfg.Kafka.Topic, "group_id", cfg.Kafka.GroupID, "dlq_topic", cfg.Kafka.DLQTopic)

	err = proc.Run(ctx)

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	srv.Shutdown(shutdownCtx)

	if err != nil {
		log.Error("consumer stopped with error", "error", err)
		os.Exit(1)
	}
	log.Info("approval service exiting")
}

func runSweeper(ctx context.Context, repo *postgres.ApprovalRepository, cfg config.Approval, log *slog.Logger) {
	olderThan := fmt.Sprintf("%d seconds", int(cfg.PendingTTL.Seconds()))
	ticker := time.NewTicker(cfg.SweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			expired, err := repo.CancelStalePending(ctx, olderThan)
			if err != nil {
				log.Error("pending sweep failed", "error", err)
				continue
			}
			if expired > 0 {
				log.Info("expired stale pending decisions", "count", expired, "ttl", cfg.PendingTTL.String())
			}
		}
	}
}
