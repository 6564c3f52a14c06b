package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	orderdomain "github.com/mishimanto/ecommerce/internal/order/domain"
	"github.com/mishimanto/ecommerce/internal/payment/application"
	"github.com/mishimanto/ecommerce/internal/payment/domain"
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

// Execer is satisfied by pgx.Tx and *pgxpool.Pool.
type Execer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

const paymentColumns = `id, order_id, order_number, amount_cents, currency, method, status, transaction_id,
	gateway_reference, gateway_response, failure_reason, refunded_cents, created_at, updated_at,
	paid_at, failed_at, refunded_at`

func scan(row pgx.Row) (domain.Payment, error) {
	var (
		p   domain.Payment
		raw []byte
	)
	err := row.Scan(&p.ID, &p.OrderID, &p.OrderNumber, &p.AmountCents, &p.Currency, &p.Method, &p.Status,
		&p.TransactionID, &p.GatewayReference, &raw, &p.FailureReason, &p.RefundedCents, &p.CreatedAt, &p.UpdatedAt,
		&p.PaidAt, &p.FailedAt, &p.RefundedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Payment{}, domain.ErrNotFound
	}
	p.GatewayResponse = raw
	return p, err
}

func jsonb(raw json.RawMessage) any {
	if len(raw) == 0 {
		return nil
	}
	return string(raw)
}

// Insert writes a new attempt inside the caller's transaction.
func Insert(ctx context.Context, q Execer, p domain.Payment) error {
	_, err := q.Exec(ctx, `INSERT INTO payments (`+paymentColumns+`)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17)`,
		p.ID, p.OrderID, p.OrderNumber, p.AmountCents, p.Currency, p.Method, p.Status, p.TransactionID,
		p.GatewayReference, jsonb(p.GatewayResponse), p.FailureReason, p.RefundedCents, p.CreatedAt, p.UpdatedAt,
		p.PaidAt, p.FailedAt, p.RefundedAt)
	return err
}

func update(ctx context.Context, q Execer, p domain.Payment) error {
	_, err := q.Exec(ctx, `UPDATE payments SET status = $2, transaction_id = $3, gateway_reference = $4,
		gateway_response = COALESCE($5::jsonb, gateway_response), failure_reason = $6, refunded_cents = $7,
		updated_at = $8, paid_at = $9, failed_at = $10, refunded_at = $11
		WHERE id = $1`,
		p.ID, p.Status, p.TransactionID, p.GatewayReference, jsonb(p.GatewayResponse), p.FailureReason,
		p.RefundedCents, p.UpdatedAt, p.PaidAt, p.FailedAt, p.RefundedAt)
	return err
}

func (r *Repository) Get(ctx context.Context, id string) (domain.Payment, error) {
	if uuid.Validate(id) != nil {
		return domain.Payment{}, domain.ErrNotFound
	}
	return scan(r.pool.QueryRow(ctx, `SELECT `+paymentColumns+` FROM payments WHERE id = $1`, id))
}

func (r *Repository) ListByOrder(ctx context.Context, orderID string) ([]domain.Payment, error) {
	if uuid.Validate(orderID) != nil {
		return nil, nil
	}
	rows, err := r.pool.Query(ctx, `SELECT `+paymentColumns+` FROM payments WHERE order_id = $1 ORDER BY created_at`, orderID)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (domain.Payment, error) { return scan(row) })
}

func (r *Repository) Order(ctx context.Context, orderID string) (orderdomain.Order, error) {
	return storage.GetOrder(ctx, r.pool, orderID)
}

func (r *Repository) Create(ctx context.Context, p domain.Payment, guard application.GuardFunc) error {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	o, err := storage.LockOrder(ctx, tx, p.OrderID)
	if err != nil {
		return err
	}
	if err := guard(&o); err != nil {
		return err
	}
	if err := storage.UpdateOrder(ctx, tx, &o); err != nil {
		return fmt.Errorf("update order: %w", err)
	}
	if err := Insert(ctx, tx, p); err != nil {
		return fmt.Errorf("insert payment: %w", err)
	}
	return tx.Commit(ctx)
}

func (r *Repository) Attach(ctx context.Context, id, gatewayRef string, raw json.RawMessage) error {
	ct, err := r.pool.Exec(ctx, `UPDATE payments SET gateway_reference = $2,
		gateway_response = COALESCE($3::jsonb, gateway_response), updated_at = now() WHERE id = $1`,
		id, gatewayRef, jsonb(raw))
	if err != nil {
		return err
	}
	if ct.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// lock resolves ref to one payment row and locks it. Order numbers and
// gateway handles may name several attempts; the newest wins.
func lock(ctx context.Context, tx pgx.Tx, ref domain.Reference) (domain.Payment, error) {
	var col string
	switch ref.Kind {
	case domain.RefPaymentID:
		if uuid.Validate(ref.Value) != nil {
			return domain.Payment{}, domain.ErrNotFound
		}
		col = "id"
	case domain.RefOrderNumber:
		col = "order_number"
	case domain.RefGatewayReference:
		col = "gateway_reference"
	case domain.RefTransactionID:
		col = "transaction_id"
	default:
		return domain.Payment{}, domain.ErrNotFound.Withf("reference kind %q", ref.Kind)
	}
	if ref.Value == "" {
		return domain.Payment{}, domain.ErrNotFound
	}
	return scan(tx.QueryRow(ctx, `SELECT `+paymentColumns+` FROM payments
		WHERE `+col+` = $1 AND ($2 = '' OR method = $2)
		ORDER BY created_at DESC LIMIT 1 FOR UPDATE`, ref.Value, string(ref.Method)))
}

// Mutate locks the payment, then its order, and hands both to fn. Changes
// are written with fn's events in the same transaction; no events means
// nothing is written.
func (r *Repository) Mutate(ctx context.Context, ref domain.Reference, fn application.MutateFunc) (domain.Payment, orderdomain.Order, error) {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return domain.Payment{}, orderdomain.Order{}, err
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	p, err := lock(ctx, tx, ref)
	if err != nil {
		return domain.Payment{}, orderdomain.Order{}, err
	}
	o, err := storage.LockOrder(ctx, tx, p.OrderID)
	if err != nil {
		return domain.Payment{}, orderdomain.Order{}, err
	}

	events, err := fn(&p, &o)
	if err != nil {
		return domain.Payment{}, orderdomain.Order{}, err
	}
	if len(events) == 0 {
		return p, o, nil
	}

	if err := update(ctx, tx, p); err != nil {
		return domain.Payment{}, orderdomain.Order{}, fmt.Errorf("update payment: %w", err)
	}
	if err := storage.UpdateOrder(ctx, tx, &o); err != nil {
		return domain.Payment{}, orderdomain.Order{}, fmt.Errorf("update order: %w", err)
	}
	if err := outbox.Append(ctx, tx, events...); err != nil {
		return domain.Payment{}, orderdomain.Order{}, fmt.Errorf("append outbox: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return domain.Payment{}, orderdomain.Order{}, err
	}
	r.log.Debug("payment mutated", "payment_id", p.ID, "order_id", o.ID, "events", len(events))
	return p, o, nil
}
