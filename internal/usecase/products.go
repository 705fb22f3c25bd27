package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/jeobran69367/Mspr4-produits/internal/domain"
	"github.com/jeobran69367/Mspr4-produits/internal/domain/category"
	"github.com/jeobran69367/Mspr4-produits/internal/domain/event"
	"github.com/jeobran69367/Mspr4-produits/internal/domain/product"
	"github.com/jeobran69367/Mspr4-produits/internal/domain/stock"
)

type Products struct {
	tx         Transactor
	repo       product.Repository
	categories category.Repository
	stock      stock.Repository
	notifier   Notifier
	cache      Cache
	cacheTTL   time.Duration
	logger     *slog.Logger
	now        func() time.Time
}

type ProductsOption func(*Products)

// WithProductCache enables the read-through cache for Get.
func WithProductCache(c Cache, ttl time.Duration) ProductsOption {
	return func(uc *Products) {
		uc.cache = c
		uc.cacheTTL = ttl
	}
}

func NewProducts(
	tx Transactor,
	repo product.Repository,
	categories category.Repository,
	stockRepo stock.Repository,
	notifier Notifier,
	logger *slog.Logger,
	opts ...ProductsOption,
) *Products {
	if logger == nil {
		logger = slog.Default()
	}
	uc := &Products{
		tx:         tx,
		repo:       repo,
		categories: categories,
		stock:      stockRepo,
		notifier:   notifier,
		logger:     logger.With("usecase", "products"),
		now:        utcNow,
	}
	for _, opt := range opts {
		opt(uc)
	}
	return uc
}

type CreateProductParams struct {
	SKU          string
	Name         string
	Description  *string
	CategoryID   uuid.UUID
	PriceExclTax float64
	TaxRate      *float64
	Unit         string
	UnitWeight   *float64
	Supplier     *string
	Origin       *string
	QualityNotes *string
	Status       product.Status
}

func (uc *Products) List(ctx context.Context, f product.Filter) ([]*product.Product, error) {
	f.Skip, f.Limit = Page(f.Skip, f.Limit)
	return uc.repo.List(ctx, f)
}

func cacheKey(id uuid.UUID) string {
	return id.String()
}

func (uc *Products) Get(ctx context.Context, id uuid.UUID) (*product.Product, error) {
	if uc.cache != nil {
		val, ok, err := uc.cache.Get(ctx, cacheKey(id))
		if err != nil {
			uc.logger.Warn("product cache read failed", "id", id, "error", err)
		}
		if ok {
			var p product.Product
			if err := json.Unmarshal(val, &p); err == nil {
				return &p, nil
			}
		}
	}

	p, err := uc.repo.Get(ctx, id)
	if domain.IsNotFound(err) {
		return nil, domain.NewNotFound("Product with id %s not found", id)
	}
	if err != nil {
		return nil, err
	}

	if uc.cache != nil {
		if data, err := json.Marshal(p); err == nil {
			if err := uc.cache.Set(ctx, cacheKey(id), data, uc.cacheTTL); err != nil {
				uc.logger.Warn("product cache write failed", "id", id, "error", err)
			}
		}
	}
	return p, nil
}

// Create stores the product and its empty stock row in one transaction,
// then announces product.created.
func (uc *Products) Create(ctx context.Context, params CreateProductParams) (*product.Product, error) {
	if err := uc.ensureSKUFree(ctx, params.SKU, uuid.Nil); err != nil {
		return nil, err
	}
	if err := uc.ensureCategory(ctx, params.CategoryID); err != nil {
		return nil, err
	}

	now := uc.now()
	p := &product.Product{
		ID:           uuid.New(),
		SKU:          params.SKU,
		Name:         params.Name,
		Description:  params.Description,
		CategoryID:   params.CategoryID,
		PriceExclTax: params.PriceExclTax,
		TaxRate:      product.DefaultTaxRate,
		Unit:         params.Unit,
		UnitWeight:   params.UnitWeight,
		Supplier:     params.Supplier,
		Origin:       params.Origin,
		QualityNotes: params.QualityNotes,
		Status:       params.Status,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if params.TaxRate != nil {
		p.TaxRate = *params.TaxRate
	}
	if p.Unit == "" {
		p.Unit = product.DefaultUnit
	}
	if p.Status == "" {
		p.Status = product.StatusActive
	}
	p.Reprice()

	err := uc.tx.WithinTransaction(ctx, func(txCtx context.Context) error {
		if err := uc.repo.Create(txCtx, p); err != nil {
			return err
		}
		return uc.stock.Create(txCtx, stock.New(p.ID, now))
	})
	if err != nil {
		return nil, uc.skuTaken(err, p.SKU)
	}

	uc.logger.Info("product created", "id", p.ID, "sku", p.SKU)
	uc.notifier.Notify(ctx, event.ProductCreated, productEventData(p))
	return p, nil
}

func (uc *Products) Update(ctx context.Context, id uuid.UUID, patch product.Patch) (*product.Product, error) {
	p, err := uc.repo.Get(ctx, id)
	if domain.IsNotFound(err) {
		return nil, domain.NewNotFound("Product with id %s not found", id)
	}
	if err != nil {
		return nil, err
	}

	if patch.SKU != nil && *patch.SKU != p.SKU {
		if err := uc.ensureSKUFree(ctx, *patch.SKU, id); err != nil {
			return nil, err
		}
	}
	if patch.CategoryID != nil && *patch.CategoryID != p.CategoryID {
		if err := uc.ensureCategory(ctx, *patch.CategoryID); err != nil {
			return nil, err
		}
	}

	p.Apply(patch, uc.now())
	if err := uc.repo.Update(ctx, p); err != nil {
		return nil, uc.skuTaken(err, p.SKU)
	}
	uc.evict(ctx, id)

	uc.notifier.Notify(ctx, event.ProductUpdated, productEventData(p))
	return p, nil
}

// Delete removes the product and, through the cascade, its stock row.
func (uc *Products) Delete(ctx context.Context, id uuid.UUID) error {
	p, err := uc.repo.Get(ctx, id)
	if domain.IsNotFound(err) {
		return domain.NewNotFound("Product with id %s not found", id)
	}
	if err != nil {
		return err
	}

	if err := uc.repo.Delete(ctx, id); err != nil {
		if domain.IsNotFound(err) {
			return domain.NewNotFound("Product with id %s not found", id)
		}
		return fmt.Errorf("delete product: %w", err)
	}
	uc.evict(ctx, id)

	uc.logger.Info("product deleted", "id", id, "sku", p.SKU)
	uc.notifier.Notify(ctx, event.ProductDeleted, map[string]any{
		"product_id": id.String(),
		"sku":        p.SKU,
	})
	return nil
}

func (uc *Products) evict(ctx context.Context, id uuid.UUID) {
	if uc.cache == nil {
		return
	}
	if err := uc.cache.Delete(ctx, cacheKey(id)); err != nil {
		uc.logger.Warn("product cache eviction failed", "id", id, "error", err)
	}
}

func (uc *Products) ensureSKUFree(ctx context.Context, sku string, self uuid.UUID) error {
	existing, err := uc.repo.GetBySKU(ctx, sku)
	switch {
	case domain.IsNotFound(err):
		return nil
	case err != nil:
		return fmt.Errorf("check product sku: %w", err)
	case existing.ID != self:
		return domain.NewConflict("Product with SKU '%s' already exists", sku)
	}
	return nil
}

func (uc *Products) ensureCategory(ctx context.Context, id uuid.UUID) error {
	_, err := uc.categories.Get(ctx, id)
	if domain.IsNotFound(err) {
		return domain.NewValidation("Category with id %s does not exist", id)
	}
	return err
}

func (uc *Products) skuTaken(err error, sku string) error {
	var de *domain.Error
	if errors.As(err, &de) && de.Kind == domain.KindConflict {
		return domain.NewConflict("Product with SKU '%s' already exists", sku)
	}
	return err
}

func productEventData(p *product.Product) map[string]any {
	return map[string]any{
		"product_id": p.ID.String(),
		"sku":        p.SKU,
		"nom":        p.Name,
		"statut":     string(p.Status),
		"prix_ttc":   p.PriceInclTax,
	}
}
