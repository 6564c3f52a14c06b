package postgres

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	orderdomain "github.com/mishimanto/ecommerce/internal/order/domain"
)

// Queryer is satisfied by pgx.Tx and *pgxpool.Pool.
type Queryer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	SendBatch(ctx context.Context, b *pgx.Batch) pgx.BatchResults
}

const orderColumns = `id, number, user_id, status, payment_status, subtotal_cents, discount_cents, shipping_cents,
	tax_cents, total_cents, refunded_cents, currency, coupon_code, payment_method, shipping_address_id,
	billing_address_id, notes, cancel_reason, return_status, return_reason, created_at, updated_at,
	processed_at, shipped_at, delivered_at, cancelled_at, return_requested_at, return_approved_at, return_completed_at`

func scanOrder(row pgx.Row, o *orderdomain.Order) error {
	return row.Scan(&o.ID, &o.Number, &o.UserID, &o.Status, &o.PaymentStatus, &o.SubtotalCents, &o.DiscountCents,
		&o.ShippingCents, &o.TaxCents, &o.TotalCents, &o.RefundedCents, &o.Currency, &o.CouponCode, &o.PaymentMethod,
		&o.ShippingAddressID, &o.BillingAddressID, &o.Notes, &o.CancelReason, &o.ReturnStatus, &o.ReturnReason,
		&o.CreatedAt, &o.UpdatedAt, &o.ProcessedAt, &o.ShippedAt, &o.DeliveredAt, &o.CancelledAt,
		&o.ReturnRequestedAt, &o.ReturnApprovedAt, &o.ReturnCompletedAt)
}

// LoadOrder reads one live order and its items. cond is appended after WHERE and
// may end in FOR UPDATE.
func LoadOrder(ctx context.Context, q Queryer, cond string, args ...any) (orderdomain.Order, error) {
	var o orderdomain.Order
	err := scanOrder(q.QueryRow(ctx, `SELECT `+orderColumns+` FROM orders WHERE deleted_at IS NULL AND `+cond, args...), &o)
	if errors.Is(err, pgx.ErrNoRows) {
		return orderdomain.Order{}, orderdomain.ErrNotFound
	}
	if err != nil {
		return orderdomain.Order{}, err
	}
	if o.Items, err = orderItems(ctx, q, o.ID); err != nil {
		return orderdomain.Order{}, err
	}
	return o, nil
}

func GetOrder(ctx context.Context, q Queryer, id string) (orderdomain.Order, error) {
	if uuid.Validate(id) != nil {
		return orderdomain.Order{}, orderdomain.ErrNotFound
	}
	return LoadOrder(ctx, q, `id = $1`, id)
}

// LockOrder loads the order and holds its row until the transaction ends.
func LockOrder(ctx context.Context, q Queryer, id string) (orderdomain.Order, error) {
	if uuid.Validate(id) != nil {
		return orderdomain.Order{}, orderdomain.ErrNotFound
	}
	return LoadOrder(ctx, q, `id = $1 FOR UPDATE`, id)
}

func orderItems(ctx context.Context, q Queryer, orderID string) ([]orderdomain.Item, error) {
	rows, err := q.Query(ctx, `SELECT id, product_id, variant_id, product_name, variant_name, sku, unit_price_cents,
		quantity, refunded_quantity FROM order_items WHERE order_id = $1 ORDER BY position`, orderID)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (orderdomain.Item, error) {
		var it orderdomain.Item
		err := row.Scan(&it.ID, &it.ProductID, &it.VariantID, &it.ProductName, &it.VariantName, &it.SKU,
			&it.UnitPriceCents, &it.Quantity, &it.RefundedQuantity)
		return it, err
	})
}

// InsertOrder writes a new order with its item snapshots.
func InsertOrder(ctx context.Context, q Queryer, o *orderdomain.Order) error {
	_, err := q.Exec(ctx, `INSERT INTO orders (`+orderColumns+`)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,$20,$21,$22,$23,$24,$25,$26,$27,$28,$29)`,
		o.ID, o.Number, o.UserID, o.Status, o.PaymentStatus, o.SubtotalCents, o.DiscountCents, o.ShippingCents,
		o.TaxCents, o.TotalCents, o.RefundedCents, o.Currency, o.CouponCode, o.PaymentMethod, o.ShippingAddressID,
		o.BillingAddressID, o.Notes, o.CancelReason, o.ReturnStatus, o.ReturnReason, o.CreatedAt, o.UpdatedAt,
		o.ProcessedAt, o.ShippedAt, o.DeliveredAt, o.CancelledAt, o.ReturnRequestedAt, o.ReturnApprovedAt, o.ReturnCompletedAt)
	if err != nil {
		return err
	}
	batch := &pgx.Batch{}
	for i, it := range o.Items {
		batch.Queue(`INSERT INTO order_items (id, order_id, position, product_id, variant_id, product_name, variant_name,
			sku, unit_price_cents, quantity, refunded_quantity) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)`,
			it.ID, o.ID, i, it.ProductID, it.VariantID, it.ProductName, it.VariantName, it.SKU,
			it.UnitPriceCents, it.Quantity, it.RefundedQuantity)
	}
	return sendBatch(ctx, q, batch)
}

// UpdateOrder writes the mutable parts of an order: statuses, refunds, return
// state and timestamps. Item snapshots only change their refunded quantity.
func UpdateOrder(ctx context.Context, q Queryer, o *orderdomain.Order) error {
	_, err := q.Exec(ctx, `UPDATE orders SET status = $2, payment_status = $3, refunded_cents = $4, payment_method = $5,
		cancel_reason = $6, return_status = $7, return_reason = $8, updated_at = $9, processed_at = $10,
		shipped_at = $11, delivered_at = $12, cancelled_at = $13, return_requested_at = $14,
		return_approved_at = $15, return_completed_at = $16
		WHERE id = $1`,
		o.ID, o.Status, o.PaymentStatus, o.RefundedCents, o.PaymentMethod, o.CancelReason, o.ReturnStatus,
		o.ReturnReason, o.UpdatedAt, o.ProcessedAt, o.ShippedAt, o.DeliveredAt, o.CancelledAt,
		o.ReturnRequestedAt, o.ReturnApprovedAt, o.ReturnCompletedAt)
	if err != nil {
		return err
	}
	batch := &pgx.Batch{}
	for _, it := range o.Items {
		batch.Queue(`UPDATE order_items SET refunded_quantity = $2 WHERE id = $1 AND refunded_quantity <> $2`,
			it.ID, it.RefundedQuantity)
	}
	return sendBatch(ctx, q, batch)
}

func sendBatch(ctx context.Context, q Queryer, b *pgx.Batch) error {
	if b.Len() == 0 {
		return nil
	}
	return q.SendBatch(ctx, b).Close()
}
