package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/meetpatell07/GBC-EventBooking/internal/api"
	"github.com/meetpatell07/GBC-EventBooking/internal/application/factories/infrastructure"
	"github.com/meetpatell07/GBC-EventBooking/internal/config"
	"github.com/meetpatell07/GBC-EventBooking/internal/infrastructure/postgres"
	"github.com/meetpatell07/GBC-EventBooking/internal/logger"
	"github.com/meetpatell07/GBC-EventBooking/internal/usecase"
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

	// Redis carries the read cache and request dedup; the booking write
	// path survives without it.
	redisClient, err := infraFactory.Redis(ctx)
	if err != nil {
		log.Warn("redis unavailable, caching and request dedup disabled", "error", err)
		redisClient = nil
	}

	bookingRepo := postgres.NewBookingRepository(pgPool)
	outboxRepo := postgres.NewOutboxRepository(pgPool)
	txManager := postgres.NewTxManager(pgPool)

	createBookingUC := usecase.NewCreateBooking(txManager, bookingRepo, outboxRepo)
	getBookingUC := usecase.NewGetBooking(redisClient, bookingRepo)
	cancelBookingUC := usecase.NewCancelBooking(txManager, bookingRepo, bookingRepo, outboxRepo)

	handlers := api.NewHandlers(createBookingUC, getBookingUC, cancelBookingUC)
	apiHandler := api.NewRouter(handlers, redisClient)

	srv := &http.Server{
		Addr:    ":" + cfg.HTTP.Port,
		Handler: apiHandler,
	}

	go func() {
		metricsSrv := &http.Server{Addr: ":" + cfg.HTTP.MetricsPort, Handler: promhttp.Handler()}
		log.Info("metrics server starting", "port", cfg.HTTP.MetricsPort)
		if err := metricsSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("metrics listen failed", "error", err)
		}
	}()

	go func() {
		log.Info("booking service starting", "port", cfg.HTTP.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("listen failed", "error", err)
			os.Exit(1)
		}
	}()

	<-ctx.Done()
	log.Info("shutting down booking service")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("server forced to shutdown", "error", err)
		os.Exit(1)
	}

	log.Info("booking service exiting")
}
