package application

import (
	"context"

	orderdomain "github.com/mishimanto/ecommerce/internal/order/domain"
	"github.com/mishimanto/ecommerce/internal/shipment/courier"
	"github.com/mishimanto/ecommerce/internal/shipment/domain"
	"github.com/mishimanto/ecommerce/pkg/outbox"
)

// Key names a shipment by id, or by courier and tracking id.
type Key struct {
	ID         string
	Courier    string
	TrackingID string
}

// CreateFunc ships the locked order. Its events are stored with the new
// shipment.
type CreateFunc func(o *orderdomain.Order) ([]outbox.Event, error)

// MutateFunc changes a locked shipment and its order. Returning no events
// leaves storage untouched.
type MutateFunc func(s *domain.Shipment, o *orderdomain.Order) ([]outbox.Event, error)

type Repository interface {
	Get(ctx context.Context, id string) (domain.Shipment, error)
	ListByOrder(ctx context.Context, orderID string) ([]domain.Shipment, error)
	Order(ctx context.Context, orderID string) (orderdomain.Order, error)
	// Create locks the order, runs fn and inserts s in one transaction.
	// A tracking id already used by the courier is domain.ErrDuplicateTracking.
	Create(ctx context.Context, s domain.Shipment, fn CreateFunc) (orderdomain.Order, error)
	// Mutate locks the shipment then its order.
	Mutate(ctx context.Context, key Key, fn MutateFunc) (domain.Shipment, orderdomain.Order, error)
}

type Recipients interface {
	Recipient(ctx context.Context, addressID int64) (courier.Recipient, error)
}
