package stock

import (
	"context"
	"time"

	"github.com/google/uuid"
)

const (
	DefaultMinimum = 10
	DefaultMaximum = 1000
)

type Stock struct {
	ID          uuid.UUID  `json:"id"`
	ProductID   uuid.UUID  `json:"produit_id"`
	Available   int        `json:"quantite_disponible"`
	Reserved    int        `json:"quantite_reservee"`
	Minimum     int        `json:"quantite_minimum"`
	Maximum     int        `json:"quantite_maximum"`
	LowStock    bool       `json:"alerte_stock_bas"`
	LastEntryAt *time.Time `json:"date_derniere_entree"`
	LastExitAt  *time.Time `json:"date_derniere_sortie"`
	UpdatedAt   time.Time  `json:"date_modification"`
}

// New returns an empty stock row for a freshly created product.
func New(productID uuid.UUID, now time.Time) *Stock {
	s := &Stock{
		ID:        uuid.New(),
		ProductID: productID,
		Minimum:   DefaultMinimum,
		Maximum:   DefaultMaximum,
		UpdatedAt: now,
	}
	s.Recompute()
	return s
}

// Recompute refreshes the derived low-stock flag. Every mutation calls it.
func (s *Stock) Recompute() {
	s.LowStock = s.Available < s.Minimum
}

type Patch struct {
	Available *int
	Reserved  *int
	Minimum   *int
	Maximum   *int
}

func (s *Stock) Apply(p Patch, now time.Time) {
	if p.Available != nil {
		s.Available = *p.Available
	}
	if p.Reserved != nil {
		s.Reserved = *p.Reserved
	}
	if p.Minimum != nil {
		s.Minimum = *p.Minimum
	}
	if p.Maximum != nil {
		s.Maximum = *p.Maximum
	}
	s.UpdatedAt = now
	s.Recompute()
}

// Adjust adds delta to the available quantity. It reports false and leaves
// the stock untouched when the result would be negative.
func (s *Stock) Adjust(delta int, now time.Time) bool {
	next := s.Available + delta
	if next < 0 {
		return false
	}
	s.Available = next
	switch {
	case delta > 0:
		s.LastEntryAt = &now
	case delta < 0:
		s.LastExitAt = &now
	}
	s.UpdatedAt = now
	s.Recompute()
	return true
}

type Repository interface {
	Create(ctx context.Context, s *Stock) error
	Get(ctx context.Context, id uuid.UUID) (*Stock, error)
	GetByProduct(ctx context.Context, productID uuid.UUID) (*Stock, error)
	List(ctx context.Context, skip, limit int) ([]*Stock, error)
	ListLow(ctx context.Context) ([]*Stock, error)
	Update(ctx context.Context, s *Stock) error
	Delete(ctx context.Context, id uuid.UUID) error
	// Adjust applies delta to the available quantity of the product's stock
	// as one atomic check-then-write. A result below zero is rejected with a
	// validation error and nothing is written.
	Adjust(ctx context.Context, productID uuid.UUID, delta int, now time.Time) (*Stock, error)
}
