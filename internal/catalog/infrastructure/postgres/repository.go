package postgres

import (
	"context"
	"errors"
	"log/slog"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/mishimanto/ecommerce/internal/catalog/domain"
)

type Repository struct {
	log  *slog.Logger
	pool *pgxpool.Pool
}

func NewRepository(log *slog.Logger, pool *pgxpool.Pool) *Repository {
	return &Repository{log: log, pool: pool}
}

func (r *Repository) Product(ctx context.Context, productID, variantID int64) (domain.Product, error) {
	var p domain.Product
	var err error
	if variantID == 0 {
		err = r.pool.QueryRow(ctx, `
			SELECT id, name, sku, COALESCE(category_id, 0), price_cents, stock, status
			FROM products WHERE id = $1 AND deleted_at IS NULL`, productID).
			Scan(&p.ID, &p.Name, &p.SKU, &p.CategoryID, &p.PriceCents, &p.Stock, &p.Status)
	} else {
		// a variant without its own price sells at the product price
		err = r.pool.QueryRow(ctx, `
			SELECT p.id, v.id, p.name, v.name, v.sku, COALESCE(p.category_id, 0),
			       COALESCE(v.price_cents, p.price_cents), v.stock,
			       CASE WHEN v.active THEN p.status ELSE 'inactive' END
			FROM product_variants v JOIN products p ON p.id = v.product_id
			WHERE v.id = $1 AND p.id = $2 AND p.deleted_at IS NULL`, variantID, productID).
			Scan(&p.ID, &p.VariantID, &p.Name, &p.VariantName, &p.SKU, &p.CategoryID, &p.PriceCents, &p.Stock, &p.Status)
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Product{}, domain.ErrNotFound
	}
	if err != nil {
		return domain.Product{}, err
	}
	return p, nil
}
