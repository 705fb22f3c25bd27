// Package memory is an in-process catalog store. It enforces the same
// uniqueness and cascade rules as the Postgres schema.
package memory

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/jeobran69367/Mspr4-produits/internal/domain"
	"github.com/jeobran69367/Mspr4-produits/internal/domain/category"
	"github.com/jeobran69367/Mspr4-produits/internal/domain/inbox"
	"github.com/jeobran69367/Mspr4-produits/internal/domain/product"
	"github.com/jeobran69367/Mspr4-produits/internal/domain/stock"
)

type Store struct {
	mu         sync.RWMutex
	categories map[uuid.UUID]category.Category
	products   map[uuid.UUID]product.Product
	stock      map[uuid.UUID]stock.Stock
	inbox      map[string]inbox.Event
}

func New() *Store {
	return &Store{
		categories: make(map[uuid.UUID]category.Category),
		products:   make(map[uuid.UUID]product.Product),
		stock:      make(map[uuid.UUID]stock.Stock),
		inbox:      make(map[string]inbox.Event),
	}
}

func (s *Store) Categories() *CategoryRepository { return &CategoryRepository{s} }
func (s *Store) Products() *ProductRepository    { return &ProductRepository{s} }
func (s *Store) Stock() *StockRepository         { return &StockRepository{s} }
func (s *Store) Inbox() *InboxRepository         { return &InboxRepository{s} }

// WithinTransaction runs fn directly. Every repository call holds the store
// lock for its whole check-then-write, which is all the atomicity the
// callers rely on.
func (s *Store) WithinTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	return fn(ctx)
}

func page[T any](items []T, skip, limit int) []T {
	if skip >= len(items) {
		return []T{}
	}
	items = items[skip:]
	if limit >= 0 && limit < len(items) {
		items = items[:limit]
	}
	return items
}

type CategoryRepository struct{ s *Store }

func (r *CategoryRepository) Create(_ context.Context, c *category.Category) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, existing := range r.s.categories {
		if existing.Code == c.Code {
			return domain.NewConflict("category already exists")
		}
	}
	r.s.categories[c.ID] = *c
	return nil
}

func (r *CategoryRepository) Get(_ context.Context, id uuid.UUID) (*category.Category, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	c, ok := r.s.categories[id]
	if !ok {
		return nil, domain.NewNotFound("category not found")
	}
	return &c, nil
}

func (r *CategoryRepository) GetByCode(_ context.Context, code string) (*category.Category, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	for _, c := range r.s.categories {
		if c.Code == code {
			return &c, nil
		}
	}
	return nil, domain.NewNotFound("category not found")
}

func (r *CategoryRepository) List(_ context.Context, skip, limit int) ([]*category.Category, error) {
	r.s.mu.RLock()
	out := make([]*category.Category, 0, len(r.s.categories))
	for _, c := range r.s.categories {
		out = append(out, &c)
	}
	r.s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return createdBefore(out[i].CreatedAt, out[j].CreatedAt, out[i].ID, out[j].ID) })
	return page(out, skip, limit), nil
}

func (r *CategoryRepository) Update(_ context.Context, c *category.Category) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.categories[c.ID]; !ok {
		return domain.NewNotFound("category not found")
	}
	for id, existing := range r.s.categories {
		if id != c.ID && existing.Code == c.Code {
			return domain.NewConflict("category already exists")
		}
	}
	r.s.categories[c.ID] = *c
	return nil
}

// Delete cascades to the category's products and their stock rows.
func (r *CategoryRepository) Delete(_ context.Context, id uuid.UUID) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.categories[id]; !ok {
		return domain.NewNotFound("category not found")
	}
	for pid, p := range r.s.products {
		if p.CategoryID == id {
			r.s.deleteProductLocked(pid)
		}
	}
	delete(r.s.categories, id)
	return nil
}

func (s *Store) deleteProductLocked(id uuid.UUID) {
	for sid, st := range s.stock {
		if st.ProductID == id {
			delete(s.stock, sid)
		}
	}
	delete(s.products, id)
}

type ProductRepository struct{ s *Store }

func (r *ProductRepository) Create(_ context.Context, p *product.Product) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.categories[p.CategoryID]; !ok {
		return domain.NewValidation("category %s does not exist", p.CategoryID)
	}
	for _, existing := range r.s.products {
		if existing.SKU == p.SKU {
			return domain.NewConflict("product already exists")
		}
	}
	r.s.products[p.ID] = *p
	return nil
}

func (r *ProductRepository) Get(_ context.Context, id uuid.UUID) (*product.Product, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	p, ok := r.s.products[id]
	if !ok {
		return nil, domain.NewNotFound("product not found")
	}
	return &p, nil
}

func (r *ProductRepository) GetBySKU(_ context.Context, sku string) (*product.Product, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	for _, p := range r.s.products {
		if p.SKU == sku {
			return &p, nil
		}
	}
	return nil, domain.NewNotFound("product not found")
}

func (r *ProductRepository) List(_ context.Context, f product.Filter) ([]*product.Product, error) {
	needle := strings.ToLower(f.Search)

	r.s.mu.RLock()
	out := make([]*product.Product, 0, len(r.s.products))
	for _, p := range r.s.products {
		if f.Status != "" && p.Status != f.Status {
			continue
		}
		if f.CategoryID != uuid.Nil && p.CategoryID != f.CategoryID {
			continue
		}
		if needle != "" && !matches(p, needle) {
			continue
		}
		out = append(out, &p)
	}
	r.s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return createdBefore(out[i].CreatedAt, out[j].CreatedAt, out[i].ID, out[j].ID) })
	return page(out, f.Skip, f.Limit), nil
}

func matches(p product.Product, needle string) bool {
	if strings.Contains(strings.ToLower(p.Name), needle) {
		return true
	}
	return p.Description != nil && strings.Contains(strings.ToLower(*p.Description), needle)
}

func (r *ProductRepository) Update(_ context.Context, p *product.Product) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.products[p.ID]; !ok {
		return domain.NewNotFound("product not found")
	}
	if _, ok := r.s.categories[p.CategoryID]; !ok {
		return domain.NewValidation("category %s does not exist", p.CategoryID)
	}
	for id, existing := range r.s.products {
		if id != p.ID && existing.SKU == p.SKU {
			return domain.NewConflict("product already exists")
		}
	}
	r.s.products[p.ID] = *p
	return nil
}

// Delete removes the product and its stock row.
func (r *ProductRepository) Delete(_ context.Context, id uuid.UUID) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.products[id]; !ok {
		return domain.NewNotFound("product not found")
	}
	r.s.deleteProductLocked(id)
	return nil
}

type StockRepository struct{ s *Store }

func (r *StockRepository) Create(_ context.Context, st *stock.Stock) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.products[st.ProductID]; !ok {
		return domain.NewValidation("product %s does not exist", st.ProductID)
	}
	for _, existing := range r.s.stock {
		if existing.ProductID == st.ProductID {
			return domain.NewConflict("stock for this product already exists")
		}
	}
	r.s.stock[st.ID] = *st
	return nil
}

func (r *StockRepository) Get(_ context.Context, id uuid.UUID) (*stock.Stock, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	st, ok := r.s.stock[id]
	if !ok {
		return nil, domain.NewNotFound("stock not found")
	}
	return &st, nil
}

func (r *StockRepository) GetByProduct(_ context.Context, productID uuid.UUID) (*stock.Stock, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	st, ok := r.s.byProductLocked(productID)
	if !ok {
		return nil, domain.NewNotFound("stock not found")
	}
	return &st, nil
}

func (s *Store) byProductLocked(productID uuid.UUID) (stock.Stock, bool) {
	for _, st := range s.stock {
		if st.ProductID == productID {
			return st, true
		}
	}
	return stock.Stock{}, false
}

func (r *StockRepository) List(_ context.Context, skip, limit int) ([]*stock.Stock, error) {
	return r.list(func(stock.Stock) bool { return true }, skip, limit), nil
}

func (r *StockRepository) ListLow(_ context.Context) ([]*stock.Stock, error) {
	return r.list(func(st stock.Stock) bool { return st.LowStock }, 0, -1), nil
}

// list returns the rows keep accepts; a negative limit means all of them.
func (r *StockRepository) list(keep func(stock.Stock) bool, skip, limit int) []*stock.Stock {
	r.s.mu.RLock()
	out := make([]*stock.Stock, 0, len(r.s.stock))
	for _, st := range r.s.stock {
		if keep(st) {
			out = append(out, &st)
		}
	}
	r.s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return createdBefore(out[i].UpdatedAt, out[j].UpdatedAt, out[i].ID, out[j].ID) })
	return page(out, skip, limit)
}

func (r *StockRepository) Update(_ context.Context, st *stock.Stock) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	current, ok := r.s.stock[st.ID]
	if !ok {
		return domain.NewNotFound("stock not found")
	}
	st.ProductID = current.ProductID
	r.s.stock[st.ID] = *st
	return nil
}

func (r *StockRepository) Delete(_ context.Context, id uuid.UUID) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.stock[id]; !ok {
		return domain.NewNotFound("stock not found")
	}
	delete(r.s.stock, id)
	return nil
}

func (r *StockRepository) Adjust(_ context.Context, productID uuid.UUID, delta int, now time.Time) (*stock.Stock, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	st, ok := r.s.byProductLocked(productID)
	if !ok {
		return nil, domain.NewNotFound("stock not found")
	}
	if !st.Adjust(delta, now) {
		return nil, domain.NewValidation("negative stock: %d available, adjustment %d", st.Available, delta)
	}
	r.s.stock[st.ID] = st
	return &st, nil
}

type InboxRepository struct{ s *Store }

func (r *InboxRepository) SaveIfNotExists(_ context.Context, e *inbox.Event) (bool, error) {
	key := e.Consumer + "/" + e.EventID
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.inbox[key]; ok {
		return false, nil
	}
	saved := *e
	if saved.ProcessedAt.IsZero() {
		saved.ProcessedAt = time.Now().UTC()
	}
	r.s.inbox[key] = saved
	return true, nil
}

func createdBefore(a, b time.Time, idA, idB uuid.UUID) bool {
	if !a.Equal(b) {
		return a.Before(b)
	}
	return idA.String() < idB.String()
}
