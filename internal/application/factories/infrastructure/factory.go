// Package infrastructure is the composition root shared by the binaries:
// it builds every long-lived client once and closes them in reverse order.
package infrastructure

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5/pgxpool"
	goredis "github.com/redis/go-redis/v9"

	"github.com/jeobran69367/Mspr4-produits/internal/config"
	"github.com/jeobran69367/Mspr4-produits/internal/domain/category"
	"github.com/jeobran69367/Mspr4-produits/internal/domain/inbox"
	"github.com/jeobran69367/Mspr4-produits/internal/domain/product"
	"github.com/jeobran69367/Mspr4-produits/internal/domain/stock"
	"github.com/jeobran69367/Mspr4-produits/internal/events"
	"github.com/jeobran69367/Mspr4-produits/internal/infrastructure/kafka"
	"github.com/jeobran69367/Mspr4-produits/internal/infrastructure/memory"
	"github.com/jeobran69367/Mspr4-produits/internal/infrastructure/postgres"
	"github.com/jeobran69367/Mspr4-produits/internal/infrastructure/rabbitmq"
	"github.com/jeobran69367/Mspr4-produits/internal/infrastructure/redis"
	"github.com/jeobran69367/Mspr4-produits/internal/retry"
	"github.com/jeobran69367/Mspr4-produits/internal/usecase"
)

// Storage groups the repositories of one driver.
type Storage struct {
	Tx         usecase.Transactor
	Categories category.Repository
	Products   product.Repository
	Stock      stock.Repository
	Inbox      inbox.Repository
	// Spool is nil with the memory driver.
	Spool *postgres.SpoolRepository
}

type Factory struct {
	cfg    *config.Config
	logger *slog.Logger

	pgPool    *pgxpool.Pool
	redisCli  *goredis.Client
	kafkaProd *kafka.Producer
	storage   *Storage
	conns     map[rabbitmq.Role]*rabbitmq.Connection
}

func NewFactory(cfg *config.Config, logger *slog.Logger) *Factory {
	if logger == nil {
		logger = slog.Default()
	}
	return &Factory{
		cfg:    cfg,
		logger: logger,
		conns:  make(map[rabbitmq.Role]*rabbitmq.Connection),
	}
}

func (f *Factory) RetryPolicy() retry.Policy {
	return retry.Policy{
		Attempts:     f.cfg.Retry.Attempts,
		InitialDelay: f.cfg.Retry.InitialDelay,
		Multiplier:   f.cfg.Retry.Multiplier,
		MaxDelay:     f.cfg.Retry.MaxDelay,
	}
}

func (f *Factory) Postgres(ctx context.Context) (*pgxpool.Pool, error) {
	if f.pgPool != nil {
		return f.pgPool, nil
	}

	pgCfg := postgres.Config{DSN: f.cfg.Postgres.DSN(), MaxConns: f.cfg.Postgres.MaxConns}
	policy := f.RetryPolicy()

	var pool *pgxpool.Pool
	err := retry.Do(ctx, policy, func(attempt int) error {
		var err error
		pool, err = postgres.NewClient(ctx, pgCfg)
		if err != nil {
			f.logger.Warn("postgres connection failed",
				"attempt", attempt, "max_attempts", policy.Attempts, "error", err)
		}
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to init postgres: %w", err)
	}

	f.pgPool = pool
	return pool, nil
}

// Redis returns nil without error when no address is configured.
func (f *Factory) Redis(ctx context.Context) (*goredis.Client, error) {
	if f.redisCli != nil || f.cfg.Redis.Addr == "" {
		return f.redisCli, nil
	}

	client, err := redis.NewClient(ctx, redis.Config{
		Addr:     f.cfg.Redis.Addr,
		Password: f.cfg.Redis.Password,
		DB:       f.cfg.Redis.DB,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to init redis: %w", err)
	}

	f.redisCli = client
	return client, nil
}

// Kafka returns nil when no brokers are configured.
func (f *Factory) Kafka() *kafka.Producer {
	if f.kafkaProd != nil || len(f.cfg.Kafka.Brokers) == 0 {
		return f.kafkaProd
	}
	f.kafkaProd = kafka.NewProducer(kafka.Config{
		Brokers: f.cfg.Kafka.Brokers,
		Topic:   f.cfg.Kafka.Topic,
	}, f.cfg.App.ServiceName)
	return f.kafkaProd
}

// RabbitMQ returns the connection for role, creating it on first use. It
// does not dial.
func (f *Factory) RabbitMQ(role rabbitmq.Role) *rabbitmq.Connection {
	if c, ok := f.conns[role]; ok {
		return c
	}
	rc := f.cfg.RabbitMQ
	c := rabbitmq.NewConnection(rabbitmq.Config{
		Endpoint: rabbitmq.Endpoint{
			PrivateURL: rc.PrivateURL,
			URL:        rc.URL,
			Host:       rc.Host,
			Port:       rc.Port,
			Username:   rc.Username,
			Password:   rc.Password,
			VHost:      rc.VHost,
		},
		Topology: rabbitmq.Topology{
			Exchange:     rc.Exchange,
			Queue:        rc.Queue,
			ServiceName:  f.cfg.App.ServiceName,
			PeerServices: rc.PeerServices,
			MaxLength:    rc.MaxLength,
			MessageTTL:   rc.MessageTTL,
		},
		Role:                  role,
		Prefetch:              rc.Prefetch,
		ConnectTimeout:        rc.ConnectTimeout,
		Heartbeat:             rc.Heartbeat,
		TLSInsecureSkipVerify: rc.TLSInsecureSkipVerify,
		Retry:                 f.RetryPolicy(),
	}, rabbitmq.WithLogger(f.logger))
	f.conns[role] = c
	return c
}

// Storage builds the repositories for the configured driver. The postgres
// driver applies the embedded migrations first.
func (f *Factory) Storage(ctx context.Context) (*Storage, error) {
	if f.storage != nil {
		return f.storage, nil
	}

	switch f.cfg.Storage.Driver {
	case "memory":
		s := memory.New()
		f.storage = &Storage{
			Tx:         s,
			Categories: s.Categories(),
			Products:   s.Products(),
			Stock:      s.Stock(),
			Inbox:      s.Inbox(),
		}
	default:
		pool, err := f.Postgres(ctx)
		if err != nil {
			return nil, err
		}
		if err := postgres.Migrate(ctx, pool, f.logger); err != nil {
			return nil, fmt.Errorf("migrate: %w", err)
		}
		f.storage = &Storage{
			Tx:         postgres.NewTxManager(pool),
			Categories: postgres.NewCategoryRepository(pool),
			Products:   postgres.NewProductRepository(pool),
			Stock:      postgres.NewStockRepository(pool),
			Inbox:      postgres.NewInboxRepository(pool),
			Spool:      postgres.NewSpoolRepository(pool),
		}
	}
	f.logger.Info("storage ready", "driver", f.cfg.Storage.Driver)
	return f.storage, nil
}

// Notifier publishes through the producer-role connection, mirrors to
// Kafka when configured and spools failed publishes when the storage has a
// spool.
func (f *Factory) Notifier(ctx context.Context) (*events.Notifier, error) {
	st, err := f.Storage(ctx)
	if err != nil {
		return nil, err
	}
	opts := []events.Option{events.WithLogger(f.logger)}
	if kp := f.Kafka(); kp != nil {
		opts = append(opts, events.WithMirror(kp))
	}
	if st.Spool != nil {
		opts = append(opts, events.WithSpool(st.Spool))
	}
	publisher := rabbitmq.NewPublisher(f.RabbitMQ(rabbitmq.RoleProducer), f.logger)
	return events.NewNotifier(publisher, opts...), nil
}

// Close releases clients in reverse dependency order: broker connections,
// the Kafka writer, then caches and the database.
func (f *Factory) Close() {
	for role, c := range f.conns {
		if err := c.Close(); err != nil {
			f.logger.Warn("close rabbitmq connection", "role", role, "error", err)
		}
	}
	if f.kafkaProd != nil {
		if err := f.kafkaProd.Close(); err != nil {
			f.logger.Warn("close kafka producer", "error", err)
		}
	}
	if f.redisCli != nil {
		_ = f.redisCli.Close()
	}
	if f.pgPool != nil {
		f.pgPool.Close()
	}
}
