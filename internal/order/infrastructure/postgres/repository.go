package postgres

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	cartpg "github.com/mishimanto/ecommerce/internal/cart/infrastructure/postgres"
	coupondomain "github.com/mishimanto/ecommerce/internal/coupon/domain"
	couponpg "github.com/mishimanto/ecommerce/internal/coupon/infrastructure/postgres"
	invapp "github.com/mishimanto/ecommerce/internal/inventory/application"
	invpg "github.com/mishimanto/ecommerce/internal/inventory/infrastructure/postgres"
	"github.com/mishimanto/ecommerce/internal/order/application"
	"github.com/mishimanto/ecommerce/internal/order/domain"
	paymentpg "github.com/mishimanto/ecommerce/internal/payment/infrastructure/postgres"
	storage "github.com/mishimanto/ecommerce/internal/storage/postgres"
	"github.com/mishimanto/ecommerce/pkg/outbox"
)

type Repository struct {
	log  *slog.Logger
	pool *pgxpool.Pool
}

func NewRepository(log *slog.Logger, pool *pgxpool.Pool) *Repository {
	return &Repository{log: log, pool: pool}
}

// Place writes a checkout in one transaction: stock reservations, the coupon
// redemption, the order, its first payment attempt, the emptied cart and
// the outbox rows.
func (r *Repository) Place(ctx context.Context, p application.Placement) error {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	o := p.Order
	if err := invapp.NewService(invpg.NewLedger(tx)).ReserveAll(ctx, o.StockLines()); err != nil {
		return err
	}
	if p.Coupon != nil {
		err := couponpg.Redeem(ctx, tx, p.Coupon.Code, coupondomain.Usage{
			OrderID: o.ID, UserID: p.Coupon.UserID, DiscountCents: p.Coupon.DiscountCents, UsedAt: o.CreatedAt,
		})
		if err != nil {
			return err
		}
	}
	if err := storage.InsertOrder(ctx, tx, &o); err != nil {
		return fmt.Errorf("insert order: %w", err)
	}
	if err := paymentpg.Insert(ctx, tx, p.Payment); err != nil {
		return fmt.Errorf("insert payment: %w", err)
	}
	if p.CartID != "" {
		if err := cartpg.ClearTx(ctx, tx, p.CartID); err != nil {
			return fmt.Errorf("clear cart: %w", err)
		}
	}
	if err := outbox.Append(ctx, tx, p.Events...); err != nil {
		return fmt.Errorf("append outbox: %w", err)
	}
	return tx.Commit(ctx)
}

func (r *Repository) Get(ctx context.Context, id string) (domain.Order, error) {
	return storage.GetOrder(ctx, r.pool, id)
}

func (r *Repository) GetByNumber(ctx context.Context, number string) (domain.Order, error) {
	return storage.LoadOrder(ctx, r.pool, `number = $1`, number)
}

func (r *Repository) ListByUser(ctx context.Context, userID int64, limit, offset int) ([]domain.Order, error) {
	rows, err := r.pool.Query(ctx, `SELECT id FROM orders WHERE user_id = $1 AND deleted_at IS NULL
		ORDER BY created_at DESC LIMIT $2 OFFSET $3`, userID, limit, offset)
	if err != nil {
		return nil, err
	}
	ids, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, err
	}
	out := make([]domain.Order, 0, len(ids))
	for _, id := range ids {
		o, err := storage.LoadOrder(ctx, r.pool, `id = $1`, id)
		if err != nil {
			return nil, err
		}
		out = append(out, o)
	}
	return out, nil
}

func (r *Repository) Update(ctx context.Context, id string, fn application.UpdateFunc) (domain.Order, error) {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return domain.Order{}, err
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	o, err := storage.LockOrder(ctx, tx, id)
	if err != nil {
		return domain.Order{}, err
	}
	ch, err := fn(&o)
	if err != nil {
		return domain.Order{}, err
	}
	if len(ch.Events) == 0 {
		return o, nil
	}
	if len(ch.Release) > 0 {
		if err := invapp.NewService(invpg.NewLedger(tx)).ReleaseAll(ctx, ch.Release); err != nil {
			return domain.Order{}, fmt.Errorf("release stock: %w", err)
		}
	}
	if err := storage.UpdateOrder(ctx, tx, &o); err != nil {
		return domain.Order{}, fmt.Errorf("update order: %w", err)
	}
	if err := outbox.Append(ctx, tx, ch.Events...); err != nil {
		return domain.Order{}, fmt.Errorf("append outbox: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return domain.Order{}, err
	}
	return o, nil
}
