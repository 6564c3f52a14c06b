package application

import (
	"context"
	"encoding/json"

	orderdomain "github.com/mishimanto/ecommerce/internal/order/domain"
	"github.com/mishimanto/ecommerce/internal/payment/domain"
	"github.com/mishimanto/ecommerce/pkg/outbox"
)

// MutateFunc changes a locked payment and its order. Returning events
// persists both; returning none leaves storage untouched.
type MutateFunc func(p *domain.Payment, o *orderdomain.Order) ([]outbox.Event, error)

// GuardFunc vets and adjusts the locked order before a new attempt is
// stored.
type GuardFunc func(o *orderdomain.Order) error

type Repository interface {
	Get(ctx context.Context, id string) (domain.Payment, error)
	ListByOrder(ctx context.Context, orderID string) ([]domain.Payment, error)
	Order(ctx context.Context, orderID string) (orderdomain.Order, error)
	// Create stores a new attempt while holding the order row.
	Create(ctx context.Context, p domain.Payment, guard GuardFunc) error
	// Attach records the gateway's handle for an initialized attempt.
	Attach(ctx context.Context, id, gatewayRef string, raw json.RawMessage) error
	// Mutate resolves ref, locks the payment then its order, and runs fn in
	// the same transaction. It returns domain.ErrNotFound for unknown refs.
	Mutate(ctx context.Context, ref domain.Reference, fn MutateFunc) (domain.Payment, orderdomain.Order, error)
}
