package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
)

type Config struct {
	App      App      `yaml:"app"`
	HTTP     HTTP     `yaml:"http"`
	Log      Log      `yaml:"log"`
	Storage  Storage  `yaml:"storage"`
	Postgres Postgres `yaml:"postgres"`
	Redis    Redis    `yaml:"redis"`
	RabbitMQ RabbitMQ `yaml:"rabbitmq"`
	Kafka    Kafka    `yaml:"kafka"`
	Retry    Retry    `yaml:"retry"`
	Worker   Worker   `yaml:"worker"`
	Consumer Consumer `yaml:"consumer"`
}

type App struct {
	Name        string `yaml:"name" env:"APP_NAME" env-default:"Service Produits - PayeTonKawa"`
	Version     string `yaml:"version" env:"APP_VERSION" env-default:"1.0.0"`
	ServiceName string `yaml:"service_name" env:"SERVICE_NAME" env-default:"produits"`
	APIPrefix   string `yaml:"api_prefix" env:"API_V1_PREFIX" env-default:"/api/v1"`
}

type HTTP struct {
	Port            string        `yaml:"port" env:"HTTP_PORT" env-default:"8000"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" env:"HTTP_SHUTDOWN_TIMEOUT" env-default:"5s"`
}

type Log struct {
	Level string `yaml:"level" env:"LOG_LEVEL" env-default:"info"`
}

type Storage struct {
	// Driver is "postgres" or "memory".
	Driver string `yaml:"driver" env:"STORAGE_DRIVER" env-default:"postgres"`
}

type Postgres struct {
	URL      string `yaml:"url" env:"DATABASE_URL"`
	Host     string `yaml:"host" env:"POSTGRES_HOST" env-default:"localhost"`
	Port     string `yaml:"port" env:"POSTGRES_PORT" env-default:"5432"`
	User     string `yaml:"user" env:"POSTGRES_USER" env-default:"user"`
	Password string `yaml:"password" env:"POSTGRES_PASSWORD" env-default:"password"`
	DBName   string `yaml:"dbname" env:"POSTGRES_DB" env-default:"produits_db"`
	SSLMode  string `yaml:"sslmode" env:"POSTGRES_SSLMODE" env-default:"disable"`
	MaxConns int32  `yaml:"max_conns" env:"POSTGRES_MAX_CONNS" env-default:"10"`
}

type Redis struct {
	// Addr empty disables idempotency keys and the product cache.
	Addr     string        `yaml:"addr" env:"REDIS_ADDR"`
	Password string        `yaml:"password" env:"REDIS_PASSWORD"`
	DB       int           `yaml:"db" env:"REDIS_DB" env-default:"0"`
	CacheTTL time.Duration `yaml:"cache_ttl" env:"REDIS_CACHE_TTL" env-default:"30s"`
}

type RabbitMQ struct {
	PrivateURL            string        `yaml:"private_url" env:"RABBITMQ_PRIVATE_URL"`
	URL                   string        `yaml:"url" env:"RABBITMQ_URL"`
	Host                  string        `yaml:"host" env:"RABBITMQ_HOST" env-default:"localhost"`
	Port                  int           `yaml:"port" env:"RABBITMQ_PORT" env-default:"5672"`
	Username              string        `yaml:"username" env:"RABBITMQ_USERNAME" env-default:"guest"`
	Password              string        `yaml:"password" env:"RABBITMQ_PASSWORD" env-default:"guest"`
	VHost                 string        `yaml:"vhost" env:"RABBITMQ_VHOST" env-default:"/"`
	Exchange              string        `yaml:"exchange" env:"RABBITMQ_EXCHANGE" env-default:"mspr.events"`
	Queue                 string        `yaml:"queue" env:"RABBITMQ_QUEUE_PRODUCTS" env-default:"produits.queue"`
	PeerServices          []string      `yaml:"peer_services" env:"RABBITMQ_PEER_SERVICES" env-default:"commandes,clients"`
	MaxLength             int           `yaml:"max_length" env:"RABBITMQ_QUEUE_MAX_LENGTH" env-default:"10000"`
	MessageTTL            time.Duration `yaml:"message_ttl" env:"RABBITMQ_MESSAGE_TTL" env-default:"24h"`
	Prefetch              int           `yaml:"prefetch" env:"RABBITMQ_PREFETCH" env-default:"10"`
	ConnectTimeout        time.Duration `yaml:"connect_timeout" env:"RABBITMQ_CONNECT_TIMEOUT" env-default:"10s"`
	Heartbeat             time.Duration `yaml:"heartbeat" env:"RABBITMQ_HEARTBEAT" env-default:"30s"`
	TLSInsecureSkipVerify bool          `yaml:"tls_insecure_skip_verify" env:"RABBITMQ_TLS_INSECURE" env-default:"false"`
}

type Kafka struct {
	// Brokers empty disables the Kafka mirror sink.
	Brokers []string `yaml:"brokers" env:"KAFKA_BROKERS"`
	Topic   string   `yaml:"topic" env:"KAFKA_TOPIC" env-default:"produits-events"`
}

type Retry struct {
	Attempts     int           `yaml:"attempts" env:"RETRY_ATTEMPTS" env-default:"3"`
	InitialDelay time.Duration `yaml:"initial_delay" env:"RETRY_INITIAL_DELAY" env-default:"2s"`
	Multiplier   float64       `yaml:"multiplier" env:"RETRY_MULTIPLIER" env-default:"2"`
	MaxDelay     time.Duration `yaml:"max_delay" env:"RETRY_MAX_DELAY" env-default:"30s"`
}

type Worker struct {
	Interval    time.Duration `yaml:"interval" env:"WORKER_INTERVAL" env-default:"5s"`
	BatchSize   int           `yaml:"batch_size" env:"WORKER_BATCH_SIZE" env-default:"50"`
	MetricsAddr string        `yaml:"metrics_addr" env:"WORKER_METRICS_ADDR" env-default:":9093"`
}

type Consumer struct {
	Tag         string `yaml:"tag" env:"CONSUMER_TAG" env-default:"produits-consumer"`
	MetricsAddr string `yaml:"metrics_addr" env:"CONSUMER_METRICS_ADDR" env-default:":9091"`
}

// New loads config.yaml when present and lets environment variables
// override it. The result is read once at startup.
func New() (*Config, error) {
	return Load("config.yaml")
}

func Load(path string) (*Config, error) {
	cfg := &Config{}

	if _, statErr := os.Stat(path); statErr == nil {
		if err := cleanenv.ReadConfig(path, cfg); err != nil {
			return nil, fmt.Errorf("config error: %w", err)
		}
	} else if err := cleanenv.ReadEnv(cfg); err != nil {
		return nil, fmt.Errorf("config error: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("config error: %w", err)
	}
	return cfg, nil
}

func (c *Config) validate() error {
	switch c.Storage.Driver {
	case "postgres", "memory":
	default:
		return fmt.Errorf("unknown storage driver %q", c.Storage.Driver)
	}
	if c.App.ServiceName == "" {
		return errors.New("SERVICE_NAME must not be empty")
	}
	if c.Retry.Attempts < 1 {
		return errors.New("RETRY_ATTEMPTS must be at least 1")
	}
	return nil
}

// DSN returns DATABASE_URL when set, otherwise a URL built from the parts.
func (p Postgres) DSN() string {
	if p.URL != "" {
		return p.URL
	}
	return fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=%s",
		p.User, p.Password, p.Host, p.Port, p.DBName, p.SSLMode)
}

// SlogLevel maps LOG_LEVEL to a slog level; unknown values mean info.
func (l Log) SlogLevel() slog.Level {
	switch strings.ToLower(l.Level) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
