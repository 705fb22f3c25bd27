package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/jeobran69367/Mspr4-produits/internal/application/factories/infrastructure"
	"github.com/jeobran69367/Mspr4-produits/internal/config"
	"github.com/jeobran69367/Mspr4-produits/internal/infrastructure/rabbitmq"
	"github.com/jeobran69367/Mspr4-produits/internal/worker"
)

func main() {
	cfg, err := config.New()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: cfg.Log.SlogLevel()}))
	slog.SetDefault(logger)

	if cfg.Storage.Driver == "memory" {
		logger.Error("the spool worker needs the postgres storage driver")
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	go serveMetrics(logger, cfg.Worker.MetricsAddr)

	infraFactory := infrastructure.NewFactory(cfg, logger)
	defer infraFactory.Close()

	storage, err := infraFactory.Storage(ctx)
	if err != nil {
		logger.Error("failed to init storage", "error", err)
		os.Exit(1)
	}

	publisher := rabbitmq.NewPublisher(infraFactory.RabbitMQ(rabbitmq.RoleProducer), logger)
	poller := worker.NewSpoolPoller(storage.Spool, publisher, cfg.Worker.BatchSize, logger)

	w := worker.New(poller, storage.Spool, cfg.Worker.Interval, logger)
	if err := w.Run(ctx); err != nil {
		logger.Error("worker stopped with error", "error", err)
	}

	logger.Info("worker exited")
}

func serveMetrics(logger *slog.Logger, addr string) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	logger.Info("worker metrics listening", "addr", addr)
	if err := http.ListenAndServe(addr, mux); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("metrics server failed", "error", err)
	}
}
