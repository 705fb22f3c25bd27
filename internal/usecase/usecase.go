// Package usecase holds the catalog services: categories, products and
// stock. Writes commit first; events go out afterwards on a best-effort
// basis through the Notifier.
package usecase

import (
	"context"
	"time"

	"github.com/jeobran69367/Mspr4-produits/internal/domain/event"
)

type Transactor interface {
	WithinTransaction(ctx context.Context, fn func(ctx context.Context) error) error
}

// Notifier publishes without reporting failures back.
type Notifier interface {
	Notify(ctx context.Context, t event.Type, data map[string]any)
}

// Cache is an optional read-through cache for single products.
type Cache interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, val []byte, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
}

const (
	DefaultLimit = 100
	MaxLimit     = 1000
)

// Page clamps listing bounds: skip >= 0, 0 < limit <= MaxLimit.
func Page(skip, limit int) (int, int) {
	if skip < 0 {
		skip = 0
	}
	switch {
	case limit <= 0:
		limit = DefaultLimit
	case limit > MaxLimit:
		limit = MaxLimit
	}
	return skip, limit
}

func utcNow() time.Time {
	return time.Now().UTC()
}
