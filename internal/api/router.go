package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/jeobran69367/Mspr4-produits/internal/api/middleware"
)

// BrokerStatus reports the RabbitMQ connection state for /health.
type BrokerStatus interface {
	Status() string
}

type RouterConfig struct {
	APIPrefix   string
	AppName     string
	ServiceName string
	Version     string
	Broker      BrokerStatus
	// Redis enables Idempotency-Key handling on POST routes when set.
	Redis *redis.Client
}

func NewRouter(h *Handlers, cfg RouterConfig) http.Handler {
	r := chi.NewRouter()

	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Logger)
	r.Use(chimiddleware.Recoverer)

	r.Get("/", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{
			"message": cfg.AppName,
			"version": cfg.Version,
			"status":  "running",
		})
	})

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		broker := "disconnected"
		if cfg.Broker != nil {
			broker = cfg.Broker.Status()
		}
		writeJSON(w, http.StatusOK, map[string]string{
			"status":   "healthy",
			"service":  cfg.ServiceName,
			"rabbitmq": broker,
		})
	})

	r.Handle("/metrics", promhttp.Handler())

	prefix := cfg.APIPrefix
	if prefix == "" {
		prefix = "/api/v1"
	}

	r.Route(prefix, func(r chi.Router) {
		if cfg.Redis != nil {
			r.Use(middleware.Idempotency(cfg.Redis))
		}

		r.Route("/categories", func(r chi.Router) {
			r.Get("/", h.ListCategories)
			r.Post("/", h.CreateCategory)
			r.Get("/{id}", h.GetCategory)
			r.Put("/{id}", h.UpdateCategory)
			r.Delete("/{id}", h.DeleteCategory)
		})

		r.Route("/products", func(r chi.Router) {
			r.Get("/", h.ListProducts)
			r.Post("/", h.CreateProduct)
			r.Get("/{id}", h.GetProduct)
			r.Put("/{id}", h.UpdateProduct)
			r.Delete("/{id}", h.DeleteProduct)
		})

		r.Route("/stock", func(r chi.Router) {
			r.Get("/", h.ListStock)
			r.Post("/", h.CreateStock)
			r.Get("/alerts", h.StockAlerts)
			r.Get("/product/{product_id}", h.GetStockByProduct)
			r.Post("/product/{product_id}/adjust", h.AdjustStock)
			r.Get("/{id}", h.GetStock)
			r.Put("/{id}", h.UpdateStock)
			r.Delete("/{id}", h.DeleteStock)
		})
	})

	return r
}
