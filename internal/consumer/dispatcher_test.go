package consumer

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jeobran69367/Mspr4-produits/internal/domain/event"
	"github.com/jeobran69367/Mspr4-produits/internal/domain/inbox"
	"github.com/jeobran69367/Mspr4-produits/internal/infrastructure/memory"
	"github.com/jeobran69367/Mspr4-produits/internal/usecase"
)

type recordingNotifier struct {
	mu    sync.Mutex
	types []event.Type
}

func (n *recordingNotifier) Notify(_ context.Context, t event.Type, _ map[string]any) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.types = append(n.types, t)
}

func (n *recordingNotifier) count(t event.Type) int {
	n.mu.Lock()
	defer n.mu.Unlock()
	c := 0
	for _, got := range n.types {
		if got == t {
			c++
		}
	}
	return c
}

type failingInbox struct{}

func (failingInbox) SaveIfNotExists(context.Context, *inbox.Event) (bool, error) {
	return false, errors.New("connection reset")
}

type harness struct {
	store      *memory.Store
	notifier   *recordingNotifier
	stocks     *usecase.Stocks
	dispatcher *Dispatcher
}

func setup(t *testing.T) *harness {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	s := memory.New()
	n := &recordingNotifier{}
	stocks := usecase.NewStocks(s.Stock(), s.Products(), n, logger)
	return &harness{
		store:      s,
		notifier:   n,
		stocks:     stocks,
		dispatcher: NewDispatcher("produits-test", s, s.Inbox(), stocks, logger),
	}
}

// product creates a product whose stock holds qty units.
func (e *harness) product(t *testing.T, sku string, qty int) uuid.UUID {
	t.Helper()
	ctx := context.Background()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	cats := usecase.NewCategories(e.store.Categories(), logger)
	c, err := cats.Create(ctx, usecase.CreateCategoryParams{Name: "Cat " + sku, Code: "C-" + sku})
	require.NoError(t, err)
	products := usecase.NewProducts(e.store, e.store.Products(), e.store.Categories(), e.store.Stock(), &recordingNotifier{}, logger)
	p, err := products.Create(ctx, usecase.CreateProductParams{SKU: sku, Name: sku, CategoryID: c.ID, PriceExclTax: 10})
	require.NoError(t, err)
	if qty > 0 {
		_, err = e.stocks.Apply(ctx, p.ID, qty)
		require.NoError(t, err)
	}
	return p.ID
}

func (e *harness) available(t *testing.T, id uuid.UUID) int {
	t.Helper()
	s, err := e.stocks.GetByProduct(context.Background(), id)
	require.NoError(t, err)
	return s.Available
}

func order(t event.Type, eventID string, lines ...any) event.Envelope {
	items := make([]any, 0, len(lines)/2)
	for i := 0; i+1 < len(lines); i += 2 {
		items = append(items, map[string]any{
			"product_id": lines[i].(uuid.UUID).String(),
			"quantite":   float64(lines[i+1].(int)),
		})
	}
	return event.Envelope{
		EventType: t,
		Data:      map[string]any{"items": items},
		Metadata: map[string]any{
			event.MetaEventID:       eventID,
			event.MetaSourceService: "commandes",
		},
	}
}

func TestDispatcher_OrderCreatedReservesStock(t *testing.T) {
	e := setup(t)
	a := e.product(t, "CAFE-001", 100)
	b := e.product(t, "CAFE-002", 20)

	err := e.dispatcher.Handle(context.Background(), order(OrderCreated, "evt-1", a, 30, b, 15))

	require.NoError(t, err)
	assert.Equal(t, 70, e.available(t, a))
	assert.Equal(t, 5, e.available(t, b))
	assert.Equal(t, 2, e.notifier.count(event.StockUpdated))
	assert.Equal(t, 1, e.notifier.count(event.StockLowAlert))
}

func TestDispatcher_FrenchNamesAreRouted(t *testing.T) {
	e := setup(t)
	id := e.product(t, "CAFE-001", 50)

	require.NoError(t, e.dispatcher.Handle(context.Background(), order(CommandeCreee, "evt-1", id, 20)))
	require.NoError(t, e.dispatcher.Handle(context.Background(), order(CommandeAnnulee, "evt-2", id, 20)))

	assert.Equal(t, 50, e.available(t, id))
}

func TestDispatcher_OrderCancelledReleasesStock(t *testing.T) {
	e := setup(t)
	id := e.product(t, "CAFE-001", 10)

	require.NoError(t, e.dispatcher.Handle(context.Background(), order(OrderCancelled, "evt-1", id, 5)))

	assert.Equal(t, 15, e.available(t, id))
}

func TestDispatcher_DuplicateEventIsAppliedOnce(t *testing.T) {
	e := setup(t)
	id := e.product(t, "CAFE-001", 100)
	msg := order(OrderCreated, "evt-dup", id, 10)

	require.NoError(t, e.dispatcher.Handle(context.Background(), msg))
	require.NoError(t, e.dispatcher.Handle(context.Background(), msg))

	assert.Equal(t, 90, e.available(t, id))
	assert.Equal(t, 1, e.notifier.count(event.StockUpdated))
}

func TestDispatcher_InsufficientStockIsAcknowledged(t *testing.T) {
	e := setup(t)
	id := e.product(t, "CAFE-001", 5)

	err := e.dispatcher.Handle(context.Background(), order(OrderCreated, "evt-1", id, 10))

	assert.NoError(t, err)
	assert.Equal(t, 5, e.available(t, id))
	assert.Zero(t, e.notifier.count(event.StockUpdated))
}

func TestDispatcher_UnknownProductIsAcknowledged(t *testing.T) {
	e := setup(t)

	err := e.dispatcher.Handle(context.Background(), order(OrderCreated, "evt-1", uuid.New(), 1))

	assert.NoError(t, err)
}

func TestDispatcher_IgnoresUnrelatedTypes(t *testing.T) {
	e := setup(t)

	err := e.dispatcher.Handle(context.Background(), event.Envelope{EventType: "client.created"})

	assert.NoError(t, err)
}

func TestDispatcher_MalformedPayloadIsAcknowledged(t *testing.T) {
	e := setup(t)

	cases := map[string]map[string]any{
		"no items":       {},
		"bad product id": {"items": []any{map[string]any{"product_id": "x", "quantite": 1.0}}},
		"zero quantity":  {"items": []any{map[string]any{"product_id": uuid.NewString(), "quantite": 0.0}}},
		"fractional":     {"items": []any{map[string]any{"product_id": uuid.NewString(), "quantite": 1.5}}},
	}
	for name, data := range cases {
		t.Run(name, func(t *testing.T) {
			err := e.dispatcher.Handle(context.Background(), event.Envelope{EventType: OrderCreated, Data: data})
			assert.NoError(t, err)
		})
	}
}

func TestDispatcher_InfrastructureErrorRequeues(t *testing.T) {
	e := setup(t)
	id := e.product(t, "CAFE-001", 10)
	d := NewDispatcher("produits-test", e.store, failingInbox{}, e.stocks, nil)

	err := d.Handle(context.Background(), order(OrderCreated, "evt-1", id, 1))

	require.Error(t, err)
	assert.Contains(t, err.Error(), "connection reset")
	assert.Equal(t, 10, e.available(t, id))
}

func TestMovements_AcceptsProduitIDAlias(t *testing.T) {
	id := uuid.New()
	moves, err := movements(map[string]any{
		"items": []any{map[string]any{"produit_id": id.String(), "quantite": 3.0}},
	}, -1)

	require.NoError(t, err)
	assert.Equal(t, []movement{{ProductID: id, Delta: -3}}, moves)
}
