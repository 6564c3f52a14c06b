package postgres

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	orderdomain "github.com/mishimanto/ecommerce/internal/order/domain"
	"github.com/mishimanto/ecommerce/internal/shipment/application"
	"github.com/mishimanto/ecommerce/internal/shipment/domain"
	storage "github.com/mishimanto/ecommerce/internal/storage/postgres"
	"github.com/mishimanto/ecommerce/pkg/outbox"
)

const uniqueViolation = "23505"

type Repository struct {
	log  *slog.Logger
	pool *pgxpool.Pool
}

func NewRepository(log *slog.Logger, pool *pgxpool.Pool) *Repository {
	return &Repository{log: log, pool: pool}
}

const shipmentColumns = `id, order_id, courier, tracking_id, status, raw_status, note, picked_up_at, delivered_at,
	created_at, updated_at`

func scan(row pgx.Row) (domain.Shipment, error) {
	var s domain.Shipment
	err := row.Scan(&s.ID, &s.OrderID, &s.Courier, &s.TrackingID, &s.Status, &s.RawStatus, &s.Note,
		&s.PickedUpAt, &s.DeliveredAt, &s.CreatedAt, &s.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Shipment{}, domain.ErrNotFound
	}
	return s, err
}

func (r *Repository) Get(ctx context.Context, id string) (domain.Shipment, error) {
	if uuid.Validate(id) != nil {
		return domain.Shipment{}, domain.ErrNotFound
	}
	return scan(r.pool.QueryRow(ctx, `SELECT `+shipmentColumns+` FROM shipments WHERE id = $1`, id))
}

func (r *Repository) ListByOrder(ctx context.Context, orderID string) ([]domain.Shipment, error) {
	if uuid.Validate(orderID) != nil {
		return nil, nil
	}
	rows, err := r.pool.Query(ctx, `SELECT `+shipmentColumns+` FROM shipments WHERE order_id = $1 ORDER BY created_at`, orderID)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (domain.Shipment, error) {
		return scan(row)
	})
}

func (r *Repository) Order(ctx context.Context, orderID string) (orderdomain.Order, error) {
	return storage.GetOrder(ctx, r.pool, orderID)
}

func (r *Repository) Create(ctx context.Context, s domain.Shipment, fn application.CreateFunc) (orderdomain.Order, error) {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return orderdomain.Order{}, err
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	o, err := storage.LockOrder(ctx, tx, s.OrderID)
	if err != nil {
		return orderdomain.Order{}, err
	}
	events, err := fn(&o)
	if err != nil {
		return orderdomain.Order{}, err
	}

	_, err = tx.Exec(ctx, `INSERT INTO shipments (`+shipmentColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		s.ID, s.OrderID, s.Courier, s.TrackingID, s.Status, s.RawStatus, s.Note, s.PickedUpAt, s.DeliveredAt,
		s.CreatedAt, s.UpdatedAt)
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
		return orderdomain.Order{}, domain.ErrDuplicateTracking.Withf("%s %s", s.Courier, s.TrackingID)
	}
	if err != nil {
		return orderdomain.Order{}, fmt.Errorf("insert shipment: %w", err)
	}
	if err := storage.UpdateOrder(ctx, tx, &o); err != nil {
		return orderdomain.Order{}, fmt.Errorf("update order: %w", err)
	}
	if err := outbox.Append(ctx, tx, events...); err != nil {
		return orderdomain.Order{}, fmt.Errorf("append outbox: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return orderdomain.Order{}, err
	}
	return o, nil
}

func lock(ctx context.Context, tx pgx.Tx, key application.Key) (domain.Shipment, error) {
	if key.ID != "" {
		if uuid.Validate(key.ID) != nil {
			return domain.Shipment{}, domain.ErrNotFound
		}
		return scan(tx.QueryRow(ctx, `SELECT `+shipmentColumns+` FROM shipments WHERE id = $1 FOR UPDATE`, key.ID))
	}
	return scan(tx.QueryRow(ctx, `SELECT `+shipmentColumns+` FROM shipments
		WHERE courier = $1 AND tracking_id = $2 FOR UPDATE`, key.Courier, key.TrackingID))
}

func (r *Repository) Mutate(ctx context.Context, key application.Key, fn application.MutateFunc) (domain.Shipment, orderdomain.Order, error) {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return domain.Shipment{}, orderdomain.Order{}, err
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	s, err := lock(ctx, tx, key)
	if err != nil {
		return domain.Shipment{}, orderdomain.Order{}, err
	}
	o, err := storage.LockOrder(ctx, tx, s.OrderID)
	if err != nil {
		return domain.Shipment{}, orderdomain.Order{}, err
	}

	events, err := fn(&s, &o)
	if err != nil {
		return domain.Shipment{}, orderdomain.Order{}, err
	}
	if len(events) == 0 {
		return s, o, nil
	}

	if _, err := tx.Exec(ctx, `UPDATE shipments SET status = $2, raw_status = $3, picked_up_at = $4, delivered_at = $5,
		updated_at = $6 WHERE id = $1`, s.ID, s.Status, s.RawStatus, s.PickedUpAt, s.DeliveredAt, s.UpdatedAt); err != nil {
		return domain.Shipment{}, orderdomain.Order{}, fmt.Errorf("update shipment: %w", err)
	}
	if err := storage.UpdateOrder(ctx, tx, &o); err != nil {
		return domain.Shipment{}, orderdomain.Order{}, fmt.Errorf("update order: %w", err)
	}
	if err := outbox.Append(ctx, tx, events...); err != nil {
		return domain.Shipment{}, orderdomain.Order{}, fmt.Errorf("append outbox: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return domain.Shipment{}, orderdomain.Order{}, err
	}
	r.log.Debug("shipment mutated", "shipment_id", s.ID, "order_id", o.ID, "events", len(events))
	return s, o, nil
}
