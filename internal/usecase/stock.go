package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/jeobran69367/Mspr4-produits/internal/domain"
	"github.com/jeobran69367/Mspr4-produits/internal/domain/event"
	"github.com/jeobran69367/Mspr4-produits/internal/domain/product"
	"github.com/jeobran69367/Mspr4-produits/internal/domain/stock"
)

type Stocks struct {
	repo     stock.Repository
	products product.Repository
	notifier Notifier
	logger   *slog.Logger
	now      func() time.Time
}

func NewStocks(repo stock.Repository, products product.Repository, notifier Notifier, logger *slog.Logger) *Stocks {
	if logger == nil {
		logger = slog.Default()
	}
	return &Stocks{
		repo:     repo,
		products: products,
		notifier: notifier,
		logger:   logger.With("usecase", "stock"),
		now:      utcNow,
	}
}

type CreateStockParams struct {
	ProductID uuid.UUID
	Available int
	Reserved  int
	Minimum   *int
	Maximum   *int
}

func (uc *Stocks) List(ctx context.Context, skip, limit int) ([]*stock.Stock, error) {
	skip, limit = Page(skip, limit)
	return uc.repo.List(ctx, skip, limit)
}

// Alerts lists every stock row whose low-stock flag is set.
func (uc *Stocks) Alerts(ctx context.Context) ([]*stock.Stock, error) {
	return uc.repo.ListLow(ctx)
}

func (uc *Stocks) Get(ctx context.Context, id uuid.UUID) (*stock.Stock, error) {
	s, err := uc.repo.Get(ctx, id)
	if domain.IsNotFound(err) {
		return nil, domain.NewNotFound("Stock with id %s not found", id)
	}
	return s, err
}

func (uc *Stocks) GetByProduct(ctx context.Context, productID uuid.UUID) (*stock.Stock, error) {
	s, err := uc.repo.GetByProduct(ctx, productID)
	if domain.IsNotFound(err) {
		return nil, domain.NewNotFound("Stock for product %s not found", productID)
	}
	return s, err
}

func (uc *Stocks) Create(ctx context.Context, params CreateStockParams) (*stock.Stock, error) {
	if _, err := uc.products.Get(ctx, params.ProductID); err != nil {
		if domain.IsNotFound(err) {
			return nil, domain.NewValidation("Product with id %s does not exist", params.ProductID)
		}
		return nil, err
	}

	_, err := uc.repo.GetByProduct(ctx, params.ProductID)
	switch {
	case err == nil:
		return nil, domain.NewConflict("Stock already exists for product %s", params.ProductID)
	case !domain.IsNotFound(err):
		return nil, fmt.Errorf("check stock: %w", err)
	}

	s := stock.New(params.ProductID, uc.now())
	s.Apply(stock.Patch{
		Available: &params.Available,
		Reserved:  &params.Reserved,
		Minimum:   params.Minimum,
		Maximum:   params.Maximum,
	}, s.UpdatedAt)

	if err := uc.repo.Create(ctx, s); err != nil {
		if domain.IsValidation(err) {
			return nil, domain.NewConflict("Stock already exists for product %s", params.ProductID)
		}
		return nil, err
	}
	return s, nil
}

// Update overwrites the given quantities and thresholds, then publishes
// stock.updated and, when the row is low afterwards, stock.low_alert.
func (uc *Stocks) Update(ctx context.Context, id uuid.UUID, patch stock.Patch) (*stock.Stock, error) {
	s, err := uc.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	s.Apply(patch, uc.now())
	if err := uc.repo.Update(ctx, s); err != nil {
		return nil, err
	}

	uc.announce(ctx, s, nil)
	return s, nil
}

func (uc *Stocks) Delete(ctx context.Context, id uuid.UUID) error {
	if err := uc.repo.Delete(ctx, id); err != nil {
		if domain.IsNotFound(err) {
			return domain.NewNotFound("Stock with id %s not found", id)
		}
		return fmt.Errorf("delete stock: %w", err)
	}
	return nil
}

// Adjust adds delta to the product's available quantity. A delta that would
// take it below zero is a validation error and leaves the row untouched.
func (uc *Stocks) Adjust(ctx context.Context, productID uuid.UUID, delta int) (*stock.Stock, error) {
	s, err := uc.Apply(ctx, productID, delta)
	if err != nil {
		return nil, err
	}
	uc.Announce(ctx, s, delta)
	return s, nil
}

// Apply performs the adjustment without publishing anything, so callers
// running inside a transaction can announce after commit.
func (uc *Stocks) Apply(ctx context.Context, productID uuid.UUID, delta int) (*stock.Stock, error) {
	s, err := uc.repo.Adjust(ctx, productID, delta, uc.now())
	if err != nil {
		if domain.IsNotFound(err) {
			return nil, domain.NewNotFound("Stock for product %s not found", productID)
		}
		return nil, err
	}

	uc.logger.Info("stock adjusted",
		"product_id", productID, "delta", delta, "available", s.Available, "low_stock", s.LowStock)
	return s, nil
}

// Announce publishes stock.updated for an applied adjustment, plus
// stock.low_alert when the row is at or below its minimum.
func (uc *Stocks) Announce(ctx context.Context, s *stock.Stock, delta int) {
	uc.announce(ctx, s, &delta)
}

func (uc *Stocks) announce(ctx context.Context, s *stock.Stock, delta *int) {
	data := map[string]any{
		"product_id":          s.ProductID.String(),
		"quantite_disponible": s.Available,
		"alerte_stock_bas":    s.LowStock,
	}
	if delta != nil {
		data["adjustment"] = *delta
	}
	uc.notifier.Notify(ctx, event.StockUpdated, data)

	if s.LowStock {
		uc.notifier.Notify(ctx, event.StockLowAlert, map[string]any{
			"product_id":          s.ProductID.String(),
			"quantite_disponible": s.Available,
			"quantite_minimum":    s.Minimum,
		})
	}
}
