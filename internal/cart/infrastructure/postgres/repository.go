package postgres

import (
	"context"
	"errors"
	"log/slog"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/mishimanto/ecommerce/internal/cart/domain"
)

type Repository struct {
	log  *slog.Logger
	pool *pgxpool.Pool
}

func NewRepository(log *slog.Logger, pool *pgxpool.Pool) *Repository {
	return &Repository{log: log, pool: pool}
}

func (r *Repository) Get(ctx context.Context, owner domain.Owner) (*domain.Cart, error) {
	var c domain.Cart
	var userID *int64
	var session *string
	err := r.pool.QueryRow(ctx, `SELECT id, user_id, session_token, coupon_code, created_at, updated_at
		FROM carts WHERE ($1::bigint <> 0 AND user_id = $1) OR ($1::bigint = 0 AND session_token = $2)`,
		owner.UserID, owner.SessionToken).Scan(&c.ID, &userID, &session, &c.CouponCode, &c.CreatedAt, &c.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if userID != nil {
		c.Owner.UserID = *userID
	}
	if session != nil {
		c.Owner.SessionToken = *session
	}

	rows, err := r.pool.Query(ctx, `SELECT id, product_id, variant_id, quantity, unit_price_cents, added_at
		FROM cart_items WHERE cart_id = $1 ORDER BY added_at, id`, c.ID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var it domain.Item
		if err := rows.Scan(&it.ID, &it.ProductID, &it.VariantID, &it.Quantity, &it.UnitPriceCents, &it.AddedAt); err != nil {
			return nil, err
		}
		c.Items = append(c.Items, it)
	}
	return &c, rows.Err()
}

// Save replaces the cart and its lines in one transaction.
func (r *Repository) Save(ctx context.Context, c *domain.Cart) error {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	_, err = tx.Exec(ctx, `INSERT INTO carts (id, user_id, session_token, coupon_code, created_at, updated_at)
		VALUES ($1, NULLIF($2, 0), NULLIF($3, ''), $4, $5, $6)
		ON CONFLICT (id) DO UPDATE SET user_id = EXCLUDED.user_id, session_token = EXCLUDED.session_token,
			coupon_code = EXCLUDED.coupon_code, updated_at = EXCLUDED.updated_at`,
		c.ID, c.Owner.UserID, c.Owner.SessionToken, c.CouponCode, c.CreatedAt, c.UpdatedAt)
	if err != nil {
		return err
	}
	if _, err := tx.Exec(ctx, `DELETE FROM cart_items WHERE cart_id = $1`, c.ID); err != nil {
		return err
	}

	batch := &pgx.Batch{}
	for _, it := range c.Items {
		batch.Queue(`INSERT INTO cart_items (id, cart_id, product_id, variant_id, quantity, unit_price_cents, added_at)
			VALUES ($1,$2,$3,$4,$5,$6,$7)`, it.ID, c.ID, it.ProductID, it.VariantID, it.Quantity, it.UnitPriceCents, it.AddedAt)
	}
	if batch.Len() > 0 {
		if err := tx.SendBatch(ctx, batch).Close(); err != nil {
			return err
		}
	}
	return tx.Commit(ctx)
}

func (r *Repository) Delete(ctx context.Context, cartID string) error {
	_, err := r.pool.Exec(ctx, `DELETE FROM carts WHERE id = $1`, cartID)
	return err
}

// Execer is satisfied by pgx.Tx.
type Execer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// ClearTx empties a cart inside the caller's transaction.
func ClearTx(ctx context.Context, tx Execer, cartID string) error {
	if _, err := tx.Exec(ctx, `DELETE FROM cart_items WHERE cart_id = $1`, cartID); err != nil {
		return err
	}
	_, err := tx.Exec(ctx, `UPDATE carts SET coupon_code = '', updated_at = now() WHERE id = $1`, cartID)
	return err
}
