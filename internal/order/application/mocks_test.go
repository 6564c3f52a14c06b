package application

import (
	"context"
	"slices"

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

type mockRepository struct {
	orders   map[string]domain.Order
	placed   []Placement
	placeErr error
	released []invdomain.Line
	events   []outbox.Event
}

func newMockRepository() *mockRepository {
	return &mockRepository{orders: map[string]domain.Order{}}
}

func (m *mockRepository) Place(_ context.Context, p Placement) error {
	if m.placeErr != nil {
		return m.placeErr
	}
	m.placed = append(m.placed, p)
	m.orders[p.Order.ID] = p.Order
	m.events = append(m.events, p.Events...)
	return nil
}

func (m *mockRepository) Get(_ context.Context, id string) (domain.Order, error) {
	o, ok := m.orders[id]
	if !ok {
		return domain.Order{}, domain.ErrNotFound
	}
	o.Items = slices.Clone(o.Items)
	return o, nil
}

func (m *mockRepository) GetByNumber(_ context.Context, number string) (domain.Order, error) {
	for _, o := range m.orders {
		if o.Number == number {
			return o, nil
		}
	}
	return domain.Order{}, domain.ErrNotFound
}

func (m *mockRepository) ListByUser(_ context.Context, userID int64, limit, offset int) ([]domain.Order, error) {
	var out []domain.Order
	for _, o := range m.orders {
		if o.UserID == userID {
			out = append(out, o)
		}
	}
	return out, nil
}

func (m *mockRepository) Update(ctx context.Context, id string, fn UpdateFunc) (domain.Order, error) {
	o, err := m.Get(ctx, id)
	if err != nil {
		return domain.Order{}, err
	}
	ch, err := fn(&o)
	if err != nil {
		return domain.Order{}, err
	}
	if len(ch.Events) > 0 {
		m.orders[id] = o
		m.released = append(m.released, ch.Release...)
		m.events = append(m.events, ch.Events...)
	}
	return o, nil
}

func (m *mockRepository) eventTypes() []string {
	out := make([]string, 0, len(m.events))
	for _, e := range m.events {
		out = append(out, e.Type)
	}
	return out
}

type mockCarts struct {
	carts       map[int64]*cartdomain.Cart
	invalidated []cartdomain.Owner
}

func (m *mockCarts) Get(_ context.Context, owner cartdomain.Owner) (*cartdomain.Cart, error) {
	if c, ok := m.carts[owner.UserID]; ok {
		return c, nil
	}
	return &cartdomain.Cart{Owner: owner}, nil
}

func (m *mockCarts) Invalidate(_ context.Context, owner cartdomain.Owner) {
	m.invalidated = append(m.invalidated, owner)
}

type mockCatalog map[invdomain.Key]catdomain.Product

func (m mockCatalog) Product(_ context.Context, productID, variantID int64) (catdomain.Product, error) {
	p, ok := m[invdomain.Key{ProductID: productID, VariantID: variantID}]
	if !ok {
		return catdomain.Product{}, catdomain.ErrNotFound
	}
	return p, nil
}

type mockCoupons struct {
	result couponapp.Result
	err    error
	reqs   []couponapp.Request
}

func (m *mockCoupons) Evaluate(_ context.Context, _ string, req couponapp.Request) (couponapp.Result, error) {
	m.reqs = append(m.reqs, req)
	return m.result, m.err
}

type mockAddresses map[int64]int64

func (m mockAddresses) Owns(_ context.Context, userID, addressID int64) (bool, error) {
	return m[addressID] == userID, nil
}

type refundCall struct {
	paymentID      string
	completeReturn bool
}

type mockPayments struct {
	session  gateway.Session
	initErr  error
	payments []paydomain.Payment
	refunds  []refundCall
	repo     *mockRepository
}

func (m *mockPayments) Initiate(context.Context, string, gateway.URLs) (gateway.Session, error) {
	return m.session, m.initErr
}

func (m *mockPayments) ListByOrder(context.Context, string) ([]paydomain.Payment, error) {
	return m.payments, nil
}

func (m *mockPayments) RefundRemaining(_ context.Context, paymentID, _ string, completeReturn bool) (payapp.Settlement, error) {
	m.refunds = append(m.refunds, refundCall{paymentID, completeReturn})
	var o domain.Order
	for _, cur := range m.repo.orders {
		o = cur
	}
	if completeReturn {
		o.ReturnStatus = domain.ReturnCompleted
	}
	o.PaymentStatus = domain.PaymentRefunded
	return payapp.Settlement{Order: o}, nil
}
