package api

import (
	"errors"
	"math"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/google/uuid"

	"github.com/jeobran69367/Mspr4-produits/internal/domain/category"
	"github.com/jeobran69367/Mspr4-produits/internal/domain/product"
	"github.com/jeobran69367/Mspr4-produits/internal/domain/stock"
	"github.com/jeobran69367/Mspr4-produits/internal/usecase"
)

// maxDecimals rejects numbers with more than n digits after the point.
func maxDecimals(n int) validation.Rule {
	scale := math.Pow10(n)
	return validation.By(func(value any) error {
		value, isNil := validation.Indirect(value)
		v, ok := value.(float64)
		if isNil || !ok {
			return nil
		}
		scaled := v * scale
		if math.Abs(scaled-math.Round(scaled)) > 1e-6 {
			return errors.New("too many decimal places")
		}
		return nil
	})
}

type createCategoryRequest struct {
	Name        string  `json:"nom"`
	Description *string `json:"description"`
	Code        string  `json:"code"`
}

func (m createCategoryRequest) Validate() error {
	return validation.ValidateStruct(&m,
		validation.Field(&m.Name, validation.Required, validation.RuneLength(1, 100)),
		validation.Field(&m.Code, validation.Required, validation.RuneLength(1, 20)),
	)
}

func (m createCategoryRequest) params() usecase.CreateCategoryParams {
	return usecase.CreateCategoryParams{Name: m.Name, Description: m.Description, Code: m.Code}
}

type updateCategoryRequest struct {
	Name        *string `json:"nom"`
	Description *string `json:"description"`
	Code        *string `json:"code"`
}

func (m updateCategoryRequest) Validate() error {
	return validation.ValidateStruct(&m,
		validation.Field(&m.Name, validation.NilOrNotEmpty, validation.RuneLength(1, 100)),
		validation.Field(&m.Code, validation.NilOrNotEmpty, validation.RuneLength(1, 20)),
	)
}

func (m updateCategoryRequest) patch() category.Patch {
	return category.Patch{Name: m.Name, Description: m.Description, Code: m.Code}
}

type createProductRequest struct {
	SKU          string          `json:"sku"`
	Name         string          `json:"nom"`
	Description  *string         `json:"description"`
	CategoryID   *uuid.UUID      `json:"categorie_id"`
	PriceExclTax float64         `json:"prix_ht"`
	TaxRate      *float64        `json:"taux_tva"`
	Unit         string          `json:"unite_mesure"`
	UnitWeight   *float64        `json:"poids_unitaire"`
	Supplier     *string         `json:"fournisseur"`
	Origin       *string         `json:"origine"`
	QualityNotes *string         `json:"notes_qualite"`
	Status       *product.Status `json:"statut"`
}

func (m createProductRequest) Validate() error {
	return validation.ValidateStruct(&m,
		validation.Field(&m.SKU, validation.Required, validation.RuneLength(1, 50)),
		validation.Field(&m.Name, validation.Required, validation.RuneLength(1, 200)),
		validation.Field(&m.CategoryID, validation.Required),
		validation.Field(&m.PriceExclTax, validation.Required, validation.Min(0.0).Exclusive(), maxDecimals(2)),
		validation.Field(&m.TaxRate, validation.Min(0.0), validation.Max(100.0), maxDecimals(2)),
		validation.Field(&m.Unit, validation.RuneLength(0, 20)),
		validation.Field(&m.UnitWeight, validation.Min(0.0), maxDecimals(3)),
		validation.Field(&m.Supplier, validation.RuneLength(0, 100)),
		validation.Field(&m.Origin, validation.RuneLength(0, 100)),
		validation.Field(&m.Status, validation.In(product.Statuses...)),
	)
}

func (m createProductRequest) params() usecase.CreateProductParams {
	p := usecase.CreateProductParams{
		SKU:          m.SKU,
		Name:         m.Name,
		Description:  m.Description,
		PriceExclTax: m.PriceExclTax,
		TaxRate:      m.TaxRate,
		Unit:         m.Unit,
		UnitWeight:   m.UnitWeight,
		Supplier:     m.Supplier,
		Origin:       m.Origin,
		QualityNotes: m.QualityNotes,
	}
	if m.CategoryID != nil {
		p.CategoryID = *m.CategoryID
	}
	if m.Status != nil {
		p.Status = *m.Status
	}
	return p
}

type updateProductRequest struct {
	SKU          *string         `json:"sku"`
	Name         *string         `json:"nom"`
	Description  *string         `json:"description"`
	CategoryID   *uuid.UUID      `json:"categorie_id"`
	PriceExclTax *float64        `json:"prix_ht"`
	TaxRate      *float64        `json:"taux_tva"`
	Unit         *string         `json:"unite_mesure"`
	UnitWeight   *float64        `json:"poids_unitaire"`
	Supplier     *string         `json:"fournisseur"`
	Origin       *string         `json:"origine"`
	QualityNotes *string         `json:"notes_qualite"`
	Status       *product.Status `json:"statut"`
}

func (m updateProductRequest) Validate() error {
	return validation.ValidateStruct(&m,
		validation.Field(&m.SKU, validation.NilOrNotEmpty, validation.RuneLength(1, 50)),
		validation.Field(&m.Name, validation.NilOrNotEmpty, validation.RuneLength(1, 200)),
		validation.Field(&m.PriceExclTax, validation.NilOrNotEmpty, validation.Min(0.0).Exclusive(), maxDecimals(2)),
		validation.Field(&m.TaxRate, validation.Min(0.0), validation.Max(100.0), maxDecimals(2)),
		validation.Field(&m.Unit, validation.RuneLength(0, 20)),
		validation.Field(&m.UnitWeight, validation.Min(0.0), maxDecimals(3)),
		validation.Field(&m.Supplier, validation.RuneLength(0, 100)),
		validation.Field(&m.Origin, validation.RuneLength(0, 100)),
		validation.Field(&m.Status, validation.In(product.Statuses...)),
	)
}

func (m updateProductRequest) patch() product.Patch {
	return product.Patch{
		SKU:          m.SKU,
		Name:         m.Name,
		Description:  m.Description,
		CategoryID:   m.CategoryID,
		PriceExclTax: m.PriceExclTax,
		TaxRate:      m.TaxRate,
		Unit:         m.Unit,
		UnitWeight:   m.UnitWeight,
		Supplier:     m.Supplier,
		Origin:       m.Origin,
		QualityNotes: m.QualityNotes,
		Status:       m.Status,
	}
}

type createStockRequest struct {
	ProductID *uuid.UUID `json:"produit_id"`
	Available int        `json:"quantite_disponible"`
	Reserved  int        `json:"quantite_reservee"`
	Minimum   *int       `json:"quantite_minimum"`
	Maximum   *int       `json:"quantite_maximum"`
}

func (m createStockRequest) Validate() error {
	return validation.ValidateStruct(&m,
		validation.Field(&m.ProductID, validation.Required),
		validation.Field(&m.Available, validation.Min(0)),
		validation.Field(&m.Reserved, validation.Min(0)),
		validation.Field(&m.Minimum, validation.Min(0)),
		validation.Field(&m.Maximum, validation.Min(0)),
	)
}

func (m createStockRequest) params() usecase.CreateStockParams {
	p := usecase.CreateStockParams{
		Available: m.Available,
		Reserved:  m.Reserved,
		Minimum:   m.Minimum,
		Maximum:   m.Maximum,
	}
	if m.ProductID != nil {
		p.ProductID = *m.ProductID
	}
	return p
}

type updateStockRequest struct {
	Available *int `json:"quantite_disponible"`
	Reserved  *int `json:"quantite_reservee"`
	Minimum   *int `json:"quantite_minimum"`
	Maximum   *int `json:"quantite_maximum"`
}

func (m updateStockRequest) Validate() error {
	return validation.ValidateStruct(&m,
		validation.Field(&m.Available, validation.Min(0)),
		validation.Field(&m.Reserved, validation.Min(0)),
		validation.Field(&m.Minimum, validation.Min(0)),
		validation.Field(&m.Maximum, validation.Min(0)),
	)
}

func (m updateStockRequest) patch() stock.Patch {
	return stock.Patch{Available: m.Available, Reserved: m.Reserved, Minimum: m.Minimum, Maximum: m.Maximum}
}

type adjustStockRequest struct {
	Quantity *int `json:"quantite"`
}

func (m adjustStockRequest) Validate() error {
	return validation.ValidateStruct(&m,
		validation.Field(&m.Quantity, validation.NotNil),
	)
}
