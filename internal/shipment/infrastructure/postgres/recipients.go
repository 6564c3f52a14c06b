package postgres

import (
	"context"
	"errors"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/mishimanto/ecommerce/internal/shipment/courier"
)

// Recipients reads delivery contacts from the address book.
type Recipients struct {
	pool *pgxpool.Pool
}

func NewRecipients(pool *pgxpool.Pool) *Recipients {
	return &Recipients{pool: pool}
}

func (r *Recipients) Recipient(ctx context.Context, addressID int64) (courier.Recipient, error) {
	var (
		rc           courier.Recipient
		line1, line2 string
	)
	err := r.pool.QueryRow(ctx, `SELECT name, phone, line1, line2, city, postcode FROM addresses WHERE id = $1`,
		addressID).Scan(&rc.Name, &rc.Phone, &line1, &line2, &rc.City, &rc.Postcode)
	if errors.Is(err, pgx.ErrNoRows) {
		return courier.Recipient{}, courier.ErrNoRecipient
	}
	if err != nil {
		return courier.Recipient{}, err
	}
	rc.Address = strings.TrimSuffix(strings.TrimSpace(line1+", "+line2), ",")
	return rc, nil
}
