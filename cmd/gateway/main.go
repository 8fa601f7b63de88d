package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/meetpatell07/GBC-EventBooking/internal/breaker"
	"github.com/meetpatell07/GBC-EventBooking/internal/config"
	"github.com/meetpatell07/GBC-EventBooking/internal/gateway"
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

	registry := breaker.NewRegistry(breaker.Config{
		Window:           cfg.Breaker.Window,
		FailureThreshold: cfg.Breaker.FailureThreshold,
		Cooldown:         cfg.Breaker.Cooldown,
		ProbeSuccesses:   cfg.Breaker.ProbeSuccesses,
	})

	router, err := gateway.NewRouter(cfg.Gateway.BookingURL, cfg.Gateway.ApprovalURL, registry, log)
	if err != nil {
		log.Error("failed to build gateway router", "error", err)
		os.Exit(1)
	}

	srv := &http.Server{
		Addr:    ":" + cfg.HTTP.Port,
		Handler: router,
	}

	go func() {
		metricsSrv := &http.Server{Addr: ":" + cfg.HTTP.MetricsPort, Handler: promhttp.Handler()}
		log.Info("metrics server starting", "port", cfg.HTTP.MetricsPort)
		if err := metricsSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("metrics listen failed", "error", err)
		}
	}()

	go func() {
		log.Info("gateway starting", "port", cfg.HTTP.Port,
			"booking_url", cfg.Gateway.BookingURL, "approval_url", cfg.Gateway.ApprovalURL)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("listen failed", "error", err)
			os.Exit(1)
		}
	}()

	<-ctx.Done()
	log.Info("shutting down gateway")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("server forced to shutdown", "error", err)
		os.Exit(1)
	}

	log.Info("gateway exiting")
}
