package product

import (
	"context"
	"math"
	"time"

	"github.com/google/uuid"
)

type Status string

const (
	StatusActive     Status = "actif"
	StatusOutOfStock Status = "rupture"
	StatusArchived   Status = "archive"
	StatusPending    Status = "en_attente"
)

var Statuses = []any{StatusActive, StatusOutOfStock, StatusArchived, StatusPending}

const (
	DefaultTaxRate = 20.0
	DefaultUnit    = "g"
)

type Product struct {
	ID           uuid.UUID `json:"id"`
	SKU          string    `json:"sku"`
	Name         string    `json:"nom"`
	Description  *string   `json:"description"`
	CategoryID   uuid.UUID `json:"categorie_id"`
	PriceExclTax float64   `json:"prix_ht"`
	TaxRate      float64   `json:"taux_tva"`
	PriceInclTax float64   `json:"prix_ttc"`
	Unit         string    `json:"unite_mesure"`
	UnitWeight   *float64  `json:"poids_unitaire"`
	Supplier     *string   `json:"fournisseur"`
	Origin       *string   `json:"origine"`
	QualityNotes *string   `json:"notes_qualite"`
	Status       Status    `json:"statut"`
	CreatedAt    time.Time `json:"date_creation"`
	UpdatedAt    time.Time `json:"date_modification"`
}

// PriceInclTax returns excl * (1 + rate/100) rounded to cents.
func PriceInclTax(excl, rate float64) float64 {
	return round2(excl * (1 + rate/100))
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

// Reprice recomputes the tax-inclusive price from the current fields.
func (p *Product) Reprice() {
	p.PriceExclTax = round2(p.PriceExclTax)
	p.PriceInclTax = PriceInclTax(p.PriceExclTax, p.TaxRate)
}

type Patch struct {
	SKU          *string
	Name         *string
	Description  *string
	CategoryID   *uuid.UUID
	PriceExclTax *float64
	TaxRate      *float64
	Unit         *string
	UnitWeight   *float64
	Supplier     *string
	Origin       *string
	QualityNotes *string
	Status       *Status
}

// Apply merges patch into the product and reprices it when a price input moved.
func (p *Product) Apply(patch Patch, now time.Time) {
	if patch.SKU != nil {
		p.SKU = *patch.SKU
	}
	if patch.Name != nil {
		p.Name = *patch.Name
	}
	if patch.Description != nil {
		p.Description = patch.Description
	}
	if patch.CategoryID != nil {
		p.CategoryID = *patch.CategoryID
	}
	if patch.PriceExclTax != nil {
		p.PriceExclTax = *patch.PriceExclTax
	}
	if patch.TaxRate != nil {
		p.TaxRate = *patch.TaxRate
	}
	if patch.Unit != nil {
		p.Unit = *patch.Unit
	}
	if patch.UnitWeight != nil {
		p.UnitWeight = patch.UnitWeight
	}
	if patch.Supplier != nil {
		p.Supplier = patch.Supplier
	}
	if patch.Origin != nil {
		p.Origin = patch.Origin
	}
	if patch.QualityNotes != nil {
		p.QualityNotes = patch.QualityNotes
	}
	if patch.Status != nil {
		p.Status = *patch.Status
	}
	if patch.PriceExclTax != nil || patch.TaxRate != nil {
		p.Reprice()
	}
	p.UpdatedAt = now
}

// Filter narrows a product listing. Zero values mean "no filter"; all set
// fields combine with AND.
type Filter struct {
	Status     Status
	CategoryID uuid.UUID
	Search     string
	Skip       int
	Limit      int
}

type Repository interface {
	Create(ctx context.Context, p *Product) error
	Get(ctx context.Context, id uuid.UUID) (*Product, error)
	GetBySKU(ctx context.Context, sku string) (*Product, error)
	List(ctx context.Context, f Filter) ([]*Product, error)
	Update(ctx context.Context, p *Product) error
	// Delete removes the product and its stock row.
	Delete(ctx context.Context, id uuid.UUID) error
}
