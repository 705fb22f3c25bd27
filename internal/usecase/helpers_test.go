package usecase

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/jeobran69367/Mspr4-produits/internal/domain/category"
	"github.com/jeobran69367/Mspr4-produits/internal/domain/event"
	"github.com/jeobran69367/Mspr4-produits/internal/infrastructure/memory"
)

type notified struct {
	Type event.Type
	Data map[string]any
}

type recordingNotifier struct {
	mu     sync.Mutex
	events []notified
}

func (n *recordingNotifier) Notify(_ context.Context, t event.Type, data map[string]any) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, notified{Type: t, Data: data})
}

func (n *recordingNotifier) types() []event.Type {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := make([]event.Type, 0, len(n.events))
	for _, e := range n.events {
		out = append(out, e.Type)
	}
	return out
}

func (n *recordingNotifier) last() notified {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.events[len(n.events)-1]
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type fixture struct {
	store      *memory.Store
	notifier   *recordingNotifier
	categories *Categories
	products   *Products
	stocks     *Stocks
}

func newFixture(opts ...ProductsOption) *fixture {
	s := memory.New()
	n := &recordingNotifier{}
	return &fixture{
		store:      s,
		notifier:   n,
		categories: NewCategories(s.Categories(), discardLogger()),
		products:   NewProducts(s, s.Products(), s.Categories(), s.Stock(), n, discardLogger(), opts...),
		stocks:     NewStocks(s.Stock(), s.Products(), n, discardLogger()),
	}
}

func (f *fixture) category(t *testing.T, code string) *category.Category {
	t.Helper()
	c, err := f.categories.Create(context.Background(), CreateCategoryParams{Name: "Cat " + code, Code: code})
	require.NoError(t, err)
	return c
}

func ptr[T any](v T) *T {
	return &v
}
