package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/jeobran69367/Mspr4-produits/internal/api"
	"github.com/jeobran69367/Mspr4-produits/internal/application/factories/infrastructure"
	"github.com/jeobran69367/Mspr4-produits/internal/config"
	"github.com/jeobran69367/Mspr4-produits/internal/infrastructure/rabbitmq"
	"github.com/jeobran69367/Mspr4-produits/internal/infrastructure/redis"
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

	infraFactory := infrastructure.NewFactory(cfg, logger)
	defer infraFactory.Close()

	storage, err := infraFactory.Storage(ctx)
	if err != nil {
		logger.Error("failed to init storage", "error", err)
		os.Exit(1)
	}

	redisClient, err := infraFactory.Redis(ctx)
	if err != nil {
		logger.Error("failed to connect to redis", "error", err)
		os.Exit(1)
	}

	// The broker is optional at startup; publishes reconnect lazily.
	producerConn := infraFactory.RabbitMQ(rabbitmq.RoleProducer)
	if err := producerConn.Connect(ctx); err != nil {
		logger.Warn("rabbitmq unavailable at startup, events will be spooled", "error", err)
	}

	notifier, err := infraFactory.Notifier(ctx)
	if err != nil {
		logger.Error("failed to init notifier", "error", err)
		os.Exit(1)
	}

	var productOpts []usecase.ProductsOption
	var categoryOpts []usecase.CategoriesOption
	if redisClient != nil {
		cache := redis.NewCache(redisClient, cfg.App.ServiceName)
		productOpts = append(productOpts, usecase.WithProductCache(cache, cfg.Redis.CacheTTL))
		categoryOpts = append(categoryOpts, usecase.WithCascadeEviction(storage.Products, cache))
	}

	categories := usecase.NewCategories(storage.Categories, logger, categoryOpts...)
	products := usecase.NewProducts(storage.Tx, storage.Products, storage.Categories, storage.Stock, notifier, logger, productOpts...)
	stocks := usecase.NewStocks(storage.Stock, storage.Products, notifier, logger)

	routerCfg := api.RouterConfig{
		APIPrefix:   cfg.App.APIPrefix,
		AppName:     cfg.App.Name,
		ServiceName: cfg.App.ServiceName,
		Version:     cfg.App.Version,
		Broker:      producerConn,
		Redis:       redisClient,
	}

	srv := &http.Server{
		Addr:    ":" + cfg.HTTP.Port,
		Handler: api.NewRouter(api.NewHandlers(categories, products, stocks), routerCfg),
	}

	go func() {
		logger.Info("server starting", "port", cfg.HTTP.Port, "storage", cfg.Storage.Driver)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("listen failed", "error", err)
			cancel()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down server")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server forced to shutdown", "error", err)
	}

	logger.Info("server exited")
}
