package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/jeobran69367/Mspr4-produits/internal/domain"
	"github.com/jeobran69367/Mspr4-produits/internal/domain/stock"
)

type StockRepository struct {
	db querier
}

func NewStockRepository(pool *pgxpool.Pool) *StockRepository {
	return &StockRepository{db: pool}
}

const stockColumns = `
	id, produit_id, quantite_disponible, quantite_reservee,
	quantite_minimum, quantite_maximum, alerte_stock_bas,
	date_derniere_entree, date_derniere_sortie, date_modification`

func scanStock(row pgx.Row) (*stock.Stock, error) {
	var s stock.Stock
	err := row.Scan(
		&s.ID, &s.ProductID, &s.Available, &s.Reserved,
		&s.Minimum, &s.Maximum, &s.LowStock,
		&s.LastEntryAt, &s.LastExitAt, &s.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &s, nil
}

func collectStock(rows pgx.Rows) ([]*stock.Stock, error) {
	defer rows.Close()
	out := []*stock.Stock{}
	for rows.Next() {
		s, err := scanStock(rows)
		if err != nil {
			return nil, fmt.Errorf("scan stock: %w", err)
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

func (r *StockRepository) Create(ctx context.Context, s *stock.Stock) error {
	const sql = `
		INSERT INTO stock (
			id, produit_id, quantite_disponible, quantite_reservee,
			quantite_minimum, quantite_maximum, alerte_stock_bas,
			date_derniere_entree, date_derniere_sortie, date_modification
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`
	_, err := conn(ctx, r.db).Exec(ctx, sql,
		s.ID, s.ProductID, s.Available, s.Reserved,
		s.Minimum, s.Maximum, s.LowStock,
		s.LastEntryAt, s.LastExitAt, s.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert stock: %w", translate(err, "stock for this product"))
	}
	return nil
}

func (r *StockRepository) Get(ctx context.Context, id uuid.UUID) (*stock.Stock, error) {
	sql := `SELECT ` + stockColumns + ` FROM stock WHERE id = $1`
	s, err := scanStock(conn(ctx, r.db).QueryRow(ctx, sql, id))
	if err != nil {
		return nil, fmt.Errorf("get stock: %w", translate(err, "stock"))
	}
	return s, nil
}

func (r *StockRepository) GetByProduct(ctx context.Context, productID uuid.UUID) (*stock.Stock, error) {
	sql := `SELECT ` + stockColumns + ` FROM stock WHERE produit_id = $1`
	s, err := scanStock(conn(ctx, r.db).QueryRow(ctx, sql, productID))
	if err != nil {
		return nil, fmt.Errorf("get stock by product: %w", translate(err, "stock"))
	}
	return s, nil
}

func (r *StockRepository) List(ctx context.Context, skip, limit int) ([]*stock.Stock, error) {
	sql := `SELECT ` + stockColumns + ` FROM stock ORDER BY date_modification, id OFFSET $1 LIMIT $2`
	rows, err := conn(ctx, r.db).Query(ctx, sql, skip, limit)
	if err != nil {
		return nil, fmt.Errorf("query stock: %w", err)
	}
	return collectStock(rows)
}

func (r *StockRepository) ListLow(ctx context.Context) ([]*stock.Stock, error) {
	sql := `SELECT ` + stockColumns + ` FROM stock WHERE alerte_stock_bas ORDER BY quantite_disponible, id`
	rows, err := conn(ctx, r.db).Query(ctx, sql)
	if err != nil {
		return nil, fmt.Errorf("query low stock: %w", err)
	}
	return collectStock(rows)
}

func (r *StockRepository) Update(ctx context.Context, s *stock.Stock) error {
	const sql = `
		UPDATE stock
		SET quantite_disponible = $2, quantite_reservee = $3,
			quantite_minimum = $4, quantite_maximum = $5, alerte_stock_bas = $6,
			date_derniere_entree = $7, date_derniere_sortie = $8, date_modification = $9
		WHERE id = $1
	`
	tag, err := conn(ctx, r.db).Exec(ctx, sql,
		s.ID, s.Available, s.Reserved,
		s.Minimum, s.Maximum, s.LowStock,
		s.LastEntryAt, s.LastExitAt, s.UpdatedAt)
	if err != nil {
		return fmt.Errorf("update stock: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.NewNotFound("stock not found")
	}
	return nil
}

func (r *StockRepository) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := conn(ctx, r.db).Exec(ctx, `DELETE FROM stock WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete stock: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.NewNotFound("stock not found")
	}
	return nil
}

// Adjust is a single conditional UPDATE, so concurrent adjustments can never
// drive the quantity below zero. When no row matches, a follow-up read tells
// a missing stock row apart from a rejected delta.
func (r *StockRepository) Adjust(ctx context.Context, productID uuid.UUID, delta int, now time.Time) (*stock.Stock, error) {
	const sql = `
		UPDATE stock
		SET quantite_disponible = quantite_disponible + $2,
			alerte_stock_bas = (quantite_disponible + $2) < quantite_minimum,
			date_derniere_entree = CASE WHEN $2 > 0 THEN $3 ELSE date_derniere_entree END,
			date_derniere_sortie = CASE WHEN $2 < 0 THEN $3 ELSE date_derniere_sortie END,
			date_modification = $3
		WHERE produit_id = $1 AND quantite_disponible + $2 >= 0
		RETURNING ` + stockColumns

	q := conn(ctx, r.db)
	s, err := scanStock(q.QueryRow(ctx, sql, productID, delta, now))
	if err == nil {
		return s, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("adjust stock: %w", err)
	}

	current, err := r.GetByProduct(ctx, productID)
	if err != nil {
		return nil, err
	}
	return nil, domain.NewValidation("negative stock: %d available, adjustment %d", current.Available, delta)
}
