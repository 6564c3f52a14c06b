package application

import (
	"context"

	cartdomain "github.com/mishimanto/ecommerce/internal/cart/domain"
	catdomain "github.com/mishimanto/ecommerce/internal/catalog/domain"
	couponapp "github.com/mishimanto/ecommerce/internal/coupon/application"
	invdomain "github.com/mishimanto/ecommerce/internal/inventory/domain"
	"github.com/mishimanto/ecommerce/internal/order/domain"
	payapp "github.com/mishimanto/ecommerce/internal/payment/application"
	paydomain "github.com/mishimanto/ecommerce/internal/payment/domain"
	"github.com/mishimanto/ecommerce/internal/payment/gateway"
	"github.com/mishimanto/ecommerce/pkg/outbox"
)

// Redemption is a coupon use recorded with the order.
type Redemption struct {
	Code          string
	UserID        int64
	DiscountCents int64
}

// Placement is everything the checkout transaction writes. Stock for every
// order line is reserved in the same transaction.
type Placement struct {
	Order   domain.Order
	Payment paydomain.Payment
	CartID  string
	Coupon  *Redemption
	Events  []outbox.Event
}

// Change is what an UpdateFunc asks the repository to persist besides the
// order itself.
type Change struct {
	Release []invdomain.Line
	Events  []outbox.Event
}

type UpdateFunc func(o *domain.Order) (Change, error)

type Repository interface {
	// Place fails with inventory ErrInsufficientStock or coupon ErrExhausted
	// and then writes nothing.
	Place(ctx context.Context, p Placement) error
	Get(ctx context.Context, id string) (domain.Order, error)
	GetByNumber(ctx context.Context, number string) (domain.Order, error)
	ListByUser(ctx context.Context, userID int64, limit, offset int) ([]domain.Order, error)
	// Update locks the order and persists fn's change only when it carries
	// events.
	Update(ctx context.Context, id string, fn UpdateFunc) (domain.Order, error)
}

type Carts interface {
	Get(ctx context.Context, owner cartdomain.Owner) (*cartdomain.Cart, error)
	Invalidate(ctx context.Context, owner cartdomain.Owner)
}

type Catalog interface {
	Product(ctx context.Context, productID, variantID int64) (catdomain.Product, error)
}

type Coupons interface {
	Evaluate(ctx context.Context, code string, req couponapp.Request) (couponapp.Result, error)
}

type AddressBook interface {
	Owns(ctx context.Context, userID, addressID int64) (bool, error)
}

type Payments interface {
	Initiate(ctx context.Context, paymentID string, urls gateway.URLs) (gateway.Session, error)
	ListByOrder(ctx context.Context, orderID string) ([]paydomain.Payment, error)
	RefundRemaining(ctx context.Context, paymentID, reason string, completeReturn bool) (payapp.Settlement, error)
}
