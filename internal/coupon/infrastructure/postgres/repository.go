package postgres

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/mishimanto/ecommerce/internal/coupon/domain"
)

type Repository struct {
	log  *slog.Logger
	pool *pgxpool.Pool
}

func NewRepository(log *slog.Logger, pool *pgxpool.Pool) *Repository {
	return &Repository{log: log, pool: pool}
}

// Queryer is satisfied by pgx.Tx and *pgxpool.Pool.
type Queryer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

const couponColumns = `id, code, description, type, value::text, min_order_cents, max_discount_cents,
	usage_limit, per_user_limit, starts_at, expires_at, active, scope`

func (r *Repository) ByCode(ctx context.Context, code string) (domain.Coupon, error) {
	return Load(ctx, r.pool, `SELECT `+couponColumns+` FROM coupons WHERE code = $1 AND deleted_at IS NULL`, code)
}

// Load reads one coupon and its scope tables. Pass a FOR UPDATE query and a
// transaction to serialize concurrent redemptions of the same coupon.
func Load(ctx context.Context, q Queryer, query string, args ...any) (domain.Coupon, error) {
	var (
		c     domain.Coupon
		value string
		start *time.Time
		end   *time.Time
	)
	err := q.QueryRow(ctx, query, args...).Scan(&c.ID, &c.Code, &c.Description, &c.Type, &value,
		&c.MinOrderCents, &c.MaxDiscountCents, &c.UsageLimit, &c.PerUserLimit, &start, &end, &c.Active, &c.Scope)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Coupon{}, domain.ErrNotFound
	}
	if err != nil {
		return domain.Coupon{}, err
	}
	c.StartsAt, c.ExpiresAt = start, end
	if c.Value, err = decimal.NewFromString(value); err != nil {
		return domain.Coupon{}, err
	}

	if c.ProductIDs, err = ids(ctx, q, `SELECT product_id FROM coupon_products WHERE coupon_id = $1`, c.ID); err != nil {
		return domain.Coupon{}, err
	}
	if c.CategoryIDs, err = ids(ctx, q, `SELECT category_id FROM coupon_categories WHERE coupon_id = $1`, c.ID); err != nil {
		return domain.Coupon{}, err
	}
	if c.AllowedUserIDs, err = ids(ctx, q, `SELECT user_id FROM coupon_users WHERE coupon_id = $1`, c.ID); err != nil {
		return domain.Coupon{}, err
	}
	return c, nil
}

func ids(ctx context.Context, q Queryer, query string, id int64) ([]int64, error) {
	rows, err := q.Query(ctx, query, id)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, pgx.RowTo[int64])
}

func (r *Repository) CountUsage(ctx context.Context, couponID int64) (int, error) {
	return CountUsage(ctx, r.pool, couponID, 0)
}

func (r *Repository) CountUserUsage(ctx context.Context, couponID, userID int64) (int, error) {
	return CountUsage(ctx, r.pool, couponID, userID)
}

// CountUsage counts ledger rows; userID 0 counts every user.
func CountUsage(ctx context.Context, q Queryer, couponID, userID int64) (int, error) {
	var n int
	err := q.QueryRow(ctx, `SELECT count(*) FROM coupon_usages
		WHERE coupon_id = $1 AND ($2::bigint = 0 OR user_id = $2)`, couponID, userID).Scan(&n)
	return n, err
}

// Redeem locks the coupon row, rechecks its limits against the ledger and
// appends the usage. Run it inside the order transaction; concurrent
// redemptions of one coupon queue on the row lock.
func Redeem(ctx context.Context, q Queryer, code string, u domain.Usage) error {
	c, err := Load(ctx, q, `SELECT `+couponColumns+` FROM coupons WHERE code = $1 AND deleted_at IS NULL FOR UPDATE`,
		domain.NormalizeCode(code))
	if err != nil {
		return err
	}
	total, err := CountUsage(ctx, q, c.ID, 0)
	if err != nil {
		return err
	}
	mine, err := CountUsage(ctx, q, c.ID, u.UserID)
	if err != nil {
		return err
	}
	if err := c.CheckLimits(total, mine, u.UserID); err != nil {
		return domain.ErrExhausted.Wrap(err)
	}
	_, err = q.Exec(ctx, `INSERT INTO coupon_usages (coupon_id, order_id, user_id, discount_cents, used_at)
		VALUES ($1, $2, NULLIF($3, 0), $4, $5)`, c.ID, u.OrderID, u.UserID, u.DiscountCents, u.UsedAt)
	return err
}
