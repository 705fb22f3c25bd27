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
	"github.com/jeobran69367/Mspr4-produits/internal/consumer"
	"github.com/jeobran69367/Mspr4-produits/internal/infrastructure/rabbitmq"
	"github.com/jeobran69367/Mspr4-produits/internal/usecase"
)

func main() {
	cfg, err := config.New()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: cfg.Log.SlogLevel()}))
	slog.SetDefault(logger)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	go serveMetrics(logger, cfg.Consumer.MetricsAddr)

	infraFactory := infrastructure.NewFactory(cfg, logger)
	defer infraFactory.Close()

	storage, err := infraFactory.Storage(ctx)
	if err != nil {
		logger.Error("failed to init storage", "error", err)
		os.Exit(1)
	}

	notifier, err := infraFactory.Notifier(ctx)
	if err != nil {
		logger.Error("failed to init notifier", "error", err)
		os.Exit(1)
	}

	stocks := usecase.NewStocks(storage.Stock, storage.Products, notifier, logger)
	dispatcher := consumer.NewDispatcher(cfg.App.ServiceName+"-service", storage.Tx, storage.Inbox, stocks, logger)

	c := rabbitmq.NewConsumer(infraFactory.RabbitMQ(rabbitmq.RoleConsumer), cfg.Consumer.Tag, logger)

	logger.Info("consumer starting", "queue", cfg.RabbitMQ.Queue, "tag", cfg.Consumer.Tag)
	if err := c.Start(ctx, dispatcher.Handle); err != nil {
		logger.Error("consumer stopped with error", "error", err)
		infraFactory.Close()
		os.Exit(1)
	}

	logger.Info("consumer exited")
}

func serveMetrics(logger *slog.Logger, addr string) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	logger.Info("consumer metrics listening", "addr", addr)
	if err := http.ListenAndServe(addr, mux); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("metrics server failed", "error", err)
	}
}
