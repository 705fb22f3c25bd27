package postgres

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/jeobran69367/Mspr4-produits/internal/domain"
	"github.com/jeobran69367/Mspr4-produits/internal/domain/product"
)

type ProductRepository struct {
	pool *pgxpool.Pool
}

func NewProductRepository(pool *pgxpool.Pool) *ProductRepository {
	return &ProductRepository{pool: pool}
}

const productColumns = `
	id, sku, nom, description, categorie_id,
	prix_ht::float8, taux_tva::float8, prix_ttc::float8,
	unite_mesure, poids_unitaire::float8, fournisseur, origine, notes_qualite,
	statut, date_creation, date_modification`

func scanProduct(row pgx.Row) (*product.Product, error) {
	var p product.Product
	err := row.Scan(
		&p.ID, &p.SKU, &p.Name, &p.Description, &p.CategoryID,
		&p.PriceExclTax, &p.TaxRate, &p.PriceInclTax,
		&p.Unit, &p.UnitWeight, &p.Supplier, &p.Origin, &p.QualityNotes,
		&p.Status, &p.CreatedAt, &p.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (r *ProductRepository) Create(ctx context.Context, p *product.Product) error {
	const sql = `
		INSERT INTO products (
			id, sku, nom, description, categorie_id,
			prix_ht, taux_tva, prix_ttc,
			unite_mesure, poids_unitaire, fournisseur, origine, notes_qualite,
			statut, date_creation, date_modification
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)
	`
	_, err := conn(ctx, r.pool).Exec(ctx, sql,
		p.ID, p.SKU, p.Name, p.Description, p.CategoryID,
		p.PriceExclTax, p.TaxRate, p.PriceInclTax,
		p.Unit, p.UnitWeight, p.Supplier, p.Origin, p.QualityNotes,
		string(p.Status), p.CreatedAt, p.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert product: %w", translate(err, "product"))
	}
	return nil
}

func (r *ProductRepository) Get(ctx context.Context, id uuid.UUID) (*product.Product, error) {
	sql := `SELECT ` + productColumns + ` FROM products WHERE id = $1`
	p, err := scanProduct(conn(ctx, r.pool).QueryRow(ctx, sql, id))
	if err != nil {
		return nil, fmt.Errorf("get product: %w", translate(err, "product"))
	}
	return p, nil
}

func (r *ProductRepository) GetBySKU(ctx context.Context, sku string) (*product.Product, error) {
	sql := `SELECT ` + productColumns + ` FROM products WHERE sku = $1`
	p, err := scanProduct(conn(ctx, r.pool).QueryRow(ctx, sql, sku))
	if err != nil {
		return nil, fmt.Errorf("get product by sku: %w", translate(err, "product"))
	}
	return p, nil
}

// List applies every set filter with AND. Search matches name or
// description, case-insensitively.
func (r *ProductRepository) List(ctx context.Context, f product.Filter) ([]*product.Product, error) {
	var (
		where []string
		args  []any
	)
	arg := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	if f.Status != "" {
		where = append(where, "statut = "+arg(string(f.Status)))
	}
	if f.CategoryID != uuid.Nil {
		where = append(where, "categorie_id = "+arg(f.CategoryID))
	}
	if f.Search != "" {
		p := arg("%" + escapeLike(f.Search) + "%")
		where = append(where, "(nom ILIKE "+p+" OR description ILIKE "+p+")")
	}

	sql := `SELECT ` + productColumns + ` FROM products`
	if len(where) > 0 {
		sql += " WHERE " + strings.Join(where, " AND ")
	}
	sql += " ORDER BY date_creation, id OFFSET " + arg(f.Skip) + " LIMIT " + arg(f.Limit)

	rows, err := conn(ctx, r.pool).Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("query products: %w", err)
	}
	defer rows.Close()

	out := []*product.Product{}
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, fmt.Errorf("scan product: %w", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func escapeLike(s string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(s)
}

func (r *ProductRepository) Update(ctx context.Context, p *product.Product) error {
	const sql = `
		UPDATE products
		SET sku = $2, nom = $3, description = $4, categorie_id = $5,
			prix_ht = $6, taux_tva = $7, prix_ttc = $8,
			unite_mesure = $9, poids_unitaire = $10, fournisseur = $11, origine = $12, notes_qualite = $13,
			statut = $14, date_modification = $15
		WHERE id = $1
	`
	tag, err := conn(ctx, r.pool).Exec(ctx, sql,
		p.ID, p.SKU, p.Name, p.Description, p.CategoryID,
		p.PriceExclTax, p.TaxRate, p.PriceInclTax,
		p.Unit, p.UnitWeight, p.Supplier, p.Origin, p.QualityNotes,
		string(p.Status), p.UpdatedAt)
	if err != nil {
		return fmt.Errorf("update product: %w", translate(err, "product"))
	}
	if tag.RowsAffected() == 0 {
		return domain.NewNotFound("product not found")
	}
	return nil
}

// Delete relies on ON DELETE CASCADE for the stock row.
func (r *ProductRepository) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := conn(ctx, r.pool).Exec(ctx, `DELETE FROM products WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete product: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.NewNotFound("product not found")
	}
	return nil
}
