package category

import (
	"context"
	"time"

	"github.com/google/uuid"
)

type Category struct {
	ID          uuid.UUID `json:"id"`
	Name        string    `json:"nom"`
	Description *string   `json:"description"`
	Code        string    `json:"code"`
	CreatedAt   time.Time `json:"date_creation"`
	UpdatedAt   time.Time `json:"date_modification"`
}

// Patch carries the optional fields of an update; nil means unchanged.
type Patch struct {
	Name        *string
	Description *string
	Code        *string
}

func (c *Category) Apply(p Patch, now time.Time) {
	if p.Name != nil {
		c.Name = *p.Name
	}
	if p.Description != nil {
		c.Description = p.Description
	}
	if p.Code != nil {
		c.Code = *p.Code
	}
	c.UpdatedAt = now
}

type Repository interface {
	Create(ctx context.Context, c *Category) error
	Get(ctx context.Context, id uuid.UUID) (*Category, error)
	GetByCode(ctx context.Context, code string) (*Category, error)
	List(ctx context.Context, skip, limit int) ([]*Category, error)
	Update(ctx context.Context, c *Category) error
	// Delete removes the category together with its products and their stock.
	Delete(ctx context.Context, id uuid.UUID) error
}
