package application

import (
	"context"

	"github.com/mishimanto/ecommerce/internal/inventory/domain"
)

// Ledger mutates stock. Implementations bound to a transaction make every
// call part of that transaction.
type Ledger interface {
	// Reserve decrements stock only if at least qty is available and
	// returns domain.ErrInsufficientStock otherwise.
	Reserve(ctx context.Context, key domain.Key, qty int) error
	Release(ctx context.Context, key domain.Key, qty int) error
	Available(ctx context.Context, key domain.Key) (int, error)
}
