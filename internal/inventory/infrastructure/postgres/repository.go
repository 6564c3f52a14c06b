package postgres

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/mishimanto/ecommerce/internal/inventory/domain"
)

// Querier is satisfied by pgx.Tx and *pgxpool.Pool.
type Querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Ledger applies stock changes through q. Bind it to the checkout
// transaction so reservations commit or roll back with the order.
type Ledger struct {
	q Querier
}

func NewLedger(q Querier) *Ledger {
	return &Ledger{q: q}
}

func (l *Ledger) Reserve(ctx context.Context, key domain.Key, qty int) error {
	if qty <= 0 {
		return domain.ErrInvalidQuantity
	}
	var (
		ct  pgconn.CommandTag
		err error
	)
	if key.VariantID == 0 {
		ct, err = l.q.Exec(ctx, `UPDATE products SET stock = stock - $1, updated_at = now()
			WHERE id = $2 AND stock >= $1`, qty, key.ProductID)
	} else {
		ct, err = l.q.Exec(ctx, `UPDATE product_variants SET stock = stock - $1, updated_at = now()
			WHERE id = $2 AND product_id = $3 AND stock >= $1`, qty, key.VariantID, key.ProductID)
	}
	if err != nil {
		return err
	}
	if ct.RowsAffected() == 0 {
		return domain.ErrInsufficientStock
	}
	return nil
}

func (l *Ledger) Release(ctx context.Context, key domain.Key, qty int) error {
	if qty <= 0 {
		return domain.ErrInvalidQuantity
	}
	var err error
	if key.VariantID == 0 {
		_, err = l.q.Exec(ctx, `UPDATE products SET stock = stock + $1, updated_at = now() WHERE id = $2`, qty, key.ProductID)
	} else {
		_, err = l.q.Exec(ctx, `UPDATE product_variants SET stock = stock + $1, updated_at = now()
			WHERE id = $2 AND product_id = $3`, qty, key.VariantID, key.ProductID)
	}
	return err
}

func (l *Ledger) Available(ctx context.Context, key domain.Key) (int, error) {
	var stock int
	var err error
	if key.VariantID == 0 {
		err = l.q.QueryRow(ctx, `SELECT stock FROM products WHERE id = $1`, key.ProductID).Scan(&stock)
	} else {
		err = l.q.QueryRow(ctx, `SELECT stock FROM product_variants WHERE id = $1 AND product_id = $2`,
			key.VariantID, key.ProductID).Scan(&stock)
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, nil
	}
	return stock, err
}
