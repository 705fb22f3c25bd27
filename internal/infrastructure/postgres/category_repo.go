package postgres

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/jeobran69367/Mspr4-produits/internal/domain"
	"github.com/jeobran69367/Mspr4-produits/internal/domain/category"
)

type CategoryRepository struct {
	pool *pgxpool.Pool
}

func NewCategoryRepository(pool *pgxpool.Pool) *CategoryRepository {
	return &CategoryRepository{pool: pool}
}

const categoryColumns = `id, nom, description, code, date_creation, date_modification`

func scanCategory(row pgx.Row) (*category.Category, error) {
	var c category.Category
	if err := row.Scan(&c.ID, &c.Name, &c.Description, &c.Code, &c.CreatedAt, &c.UpdatedAt); err != nil {
		return nil, err
	}
	return &c, nil
}

func (r *CategoryRepository) Create(ctx context.Context, c *category.Category) error {
	const sql = `
		INSERT INTO categories (id, nom, description, code, date_creation, date_modification)
		VALUES ($1, $2, $3, $4, $5, $6)
	`
	_, err := conn(ctx, r.pool).Exec(ctx, sql, c.ID, c.Name, c.Description, c.Code, c.CreatedAt, c.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert category: %w", translate(err, "category"))
	}
	return nil
}

func (r *CategoryRepository) Get(ctx context.Context, id uuid.UUID) (*category.Category, error) {
	sql := `SELECT ` + categoryColumns + ` FROM categories WHERE id = $1`
	c, err := scanCategory(conn(ctx, r.pool).QueryRow(ctx, sql, id))
	if err != nil {
		return nil, fmt.Errorf("get category: %w", translate(err, "category"))
	}
	return c, nil
}

func (r *CategoryRepository) GetByCode(ctx context.Context, code string) (*category.Category, error) {
	sql := `SELECT ` + categoryColumns + ` FROM categories WHERE code = $1`
	c, err := scanCategory(conn(ctx, r.pool).QueryRow(ctx, sql, code))
	if err != nil {
		return nil, fmt.Errorf("get category by code: %w", translate(err, "category"))
	}
	return c, nil
}

func (r *CategoryRepository) List(ctx context.Context, skip, limit int) ([]*category.Category, error) {
	sql := `SELECT ` + categoryColumns + ` FROM categories ORDER BY date_creation, id OFFSET $1 LIMIT $2`
	rows, err := conn(ctx, r.pool).Query(ctx, sql, skip, limit)
	if err != nil {
		return nil, fmt.Errorf("query categories: %w", err)
	}
	defer rows.Close()

	out := []*category.Category{}
	for rows.Next() {
		c, err := scanCategory(rows)
		if err != nil {
			return nil, fmt.Errorf("scan category: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (r *CategoryRepository) Update(ctx context.Context, c *category.Category) error {
	const sql = `
		UPDATE categories
		SET nom = $2, description = $3, code = $4, date_modification = $5
		WHERE id = $1
	`
	tag, err := conn(ctx, r.pool).Exec(ctx, sql, c.ID, c.Name, c.Description, c.Code, c.UpdatedAt)
	if err != nil {
		return fmt.Errorf("update category: %w", translate(err, "category"))
	}
	if tag.RowsAffected() == 0 {
		return domain.NewNotFound("category not found")
	}
	return nil
}

// Delete relies on ON DELETE CASCADE for products and stock.
func (r *CategoryRepository) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := conn(ctx, r.pool).Exec(ctx, `DELETE FROM categories WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete category: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.NewNotFound("category not found")
	}
	return nil
}
