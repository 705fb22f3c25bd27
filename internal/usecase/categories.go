package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/jeobran69367/Mspr4-produits/internal/domain"
	"github.com/jeobran69367/Mspr4-produits/internal/domain/category"
	"github.com/jeobran69367/Mspr4-produits/internal/domain/product"
)

type Categories struct {
	repo   category.Repository
	logger *slog.Logger
	now    func() time.Time

	// products and cache are set together; a category delete cascades to
	// products whose cached copies must go too.
	products product.Repository
	cache    Cache
}

type CategoriesOption func(*Categories)

// WithCascadeEviction evicts the cached products of a deleted category.
// Pass the same cache given to WithProductCache.
func WithCascadeEviction(products product.Repository, c Cache) CategoriesOption {
	return func(uc *Categories) {
		uc.products = products
		uc.cache = c
	}
}

func NewCategories(repo category.Repository, logger *slog.Logger, opts ...CategoriesOption) *Categories {
	if logger == nil {
		logger = slog.Default()
	}
	uc := &Categories{repo: repo, logger: logger.With("usecase", "categories"), now: utcNow}
	for _, opt := range opts {
		opt(uc)
	}
	return uc
}

type CreateCategoryParams struct {
	Name        string
	Description *string
	Code        string
}

func (uc *Categories) List(ctx context.Context, skip, limit int) ([]*category.Category, error) {
	skip, limit = Page(skip, limit)
	return uc.repo.List(ctx, skip, limit)
}

func (uc *Categories) Get(ctx context.Context, id uuid.UUID) (*category.Category, error) {
	c, err := uc.repo.Get(ctx, id)
	if domain.IsNotFound(err) {
		return nil, domain.NewNotFound("Category with id %s not found", id)
	}
	return c, err
}

func (uc *Categories) Create(ctx context.Context, params CreateCategoryParams) (*category.Category, error) {
	if err := uc.ensureCodeFree(ctx, params.Code, uuid.Nil); err != nil {
		return nil, err
	}

	now := uc.now()
	c := &category.Category{
		ID:          uuid.New(),
		Name:        params.Name,
		Description: params.Description,
		Code:        params.Code,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := uc.repo.Create(ctx, c); err != nil {
		return nil, uc.codeTaken(err, params.Code)
	}
	uc.logger.Info("category created", "id", c.ID, "code", c.Code)
	return c, nil
}

func (uc *Categories) Update(ctx context.Context, id uuid.UUID, patch category.Patch) (*category.Category, error) {
	c, err := uc.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if patch.Code != nil && *patch.Code != c.Code {
		if err := uc.ensureCodeFree(ctx, *patch.Code, id); err != nil {
			return nil, err
		}
	}

	c.Apply(patch, uc.now())
	if err := uc.repo.Update(ctx, c); err != nil {
		return nil, uc.codeTaken(err, c.Code)
	}
	return c, nil
}

// Delete removes the category with its products and their stock.
// Delete removes the category with its products and their stock.
func (uc *Categories) Delete(ctx context.Context, id uuid.UUID) error {
	cascaded, err := uc.productIDs(ctx, id)
	if err != nil {
		return fmt.Errorf("list category products: %w", err)
	}

	if err := uc.repo.Delete(ctx, id); err != nil {
		if domain.IsNotFound(err) {
			return domain.NewNotFound("Category with id %s not found", id)
		}
		return fmt.Errorf("delete category: %w", err)
	}

	for _, pid := range cascaded {
		if err := uc.cache.Delete(ctx, cacheKey(pid)); err != nil {
			uc.logger.Warn("product cache eviction failed", "id", pid, "error", err)
		}
	}
	uc.logger.Info("category deleted", "id", id, "products", len(cascaded))
	return nil
}

// productIDs lists the products a delete of category id will cascade to.
// It returns nothing when no cache is configured.
func (uc *Categories) productIDs(ctx context.Context, id uuid.UUID) ([]uuid.UUID, error) {
	if uc.cache == nil || uc.products == nil {
		return nil, nil
	}
	var ids []uuid.UUID
	for skip := 0; ; skip += MaxLimit {
		page, err := uc.products.List(ctx, product.Filter{CategoryID: id, Skip: skip, Limit: MaxLimit})
		if err != nil {
			return nil, err
		}
		for _, p := range page {
			ids = append(ids, p.ID)
		}
		if len(page) < MaxLimit {
			return ids, nil
		}
	}
}

func (uc *Categories) ensureCodeFree(ctx context.Context, code string, self uuid.UUID) error {
	existing, err := uc.repo.GetByCode(ctx, code)
	switch {
	case domain.IsNotFound(err):
		return nil
	case err != nil:
		return fmt.Errorf("check category code: %w", err)
	case existing.ID != self:
		return domain.NewConflict("Category with code '%s' already exists", code)
	}
	return nil
}

// codeTaken rewrites a storage-level uniqueness failure, which a concurrent
// insert can still produce after the pre-check.
func (uc *Categories) codeTaken(err error, code string) error {
	if domain.IsValidation(err) {
		return domain.NewConflict("Category with code '%s' already exists", code)
	}
	return err
}
