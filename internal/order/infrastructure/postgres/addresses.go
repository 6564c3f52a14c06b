package postgres

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"
)

type AddressBook struct {
	pool *pgxpool.Pool
}

func NewAddressBook(pool *pgxpool.Pool) *AddressBook {
	return &AddressBook{pool: pool}
}

func (a *AddressBook) Owns(ctx context.Context, userID, addressID int64) (bool, error) {
	var ok bool
	err := a.pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM addresses WHERE id = $1 AND user_id = $2)`,
		addressID, userID).Scan(&ok)
	return ok, err
}
