package application

import (
	"context"
	"encoding/json"
	"slices"

	orderdomain "github.com/mishimanto/ecommerce/internal/order/domain"
	"github.com/mishimanto/ecommerce/internal/payment/domain"
	"github.com/mishimanto/ecommerce/internal/payment/gateway"
	"github.com/mishimanto/ecommerce/pkg/outbox"
)

type mockRepository struct {
	payments map[string]domain.Payment
	orders   map[string]orderdomain.Order
	events   []outbox.Event
	writes   int
}

func newMockRepository() *mockRepository {
	return &mockRepository{payments: map[string]domain.Payment{}, orders: map[string]orderdomain.Order{}}
}

func cloneOrder(o orderdomain.Order) orderdomain.Order {
	o.Items = slices.Clone(o.Items)
	return o
}

func (m *mockRepository) Get(_ context.Context, id string) (domain.Payment, error) {
	p, ok := m.payments[id]
	if !ok {
		return domain.Payment{}, domain.ErrNotFound
	}
	return p, nil
}

func (m *mockRepository) ListByOrder(_ context.Context, orderID string) ([]domain.Payment, error) {
	var out []domain.Payment
	for _, p := range m.payments {
		if p.OrderID == orderID {
			out = append(out, p)
		}
	}
	return out, nil
}

func (m *mockRepository) Order(_ context.Context, orderID string) (orderdomain.Order, error) {
	o, ok := m.orders[orderID]
	if !ok {
		return orderdomain.Order{}, orderdomain.ErrNotFound
	}
	return cloneOrder(o), nil
}

func (m *mockRepository) Create(_ context.Context, p domain.Payment, guard GuardFunc) error {
	o, ok := m.orders[p.OrderID]
	if !ok {
		return orderdomain.ErrNotFound
	}
	o = cloneOrder(o)
	if err := guard(&o); err != nil {
		return err
	}
	m.orders[o.ID] = o
	m.payments[p.ID] = p
	m.writes++
	return nil
}

func (m *mockRepository) Attach(_ context.Context, id, ref string, raw json.RawMessage) error {
	p, ok := m.payments[id]
	if !ok {
		return domain.ErrNotFound
	}
	p.GatewayReference, p.GatewayResponse = ref, raw
	m.payments[id] = p
	return nil
}

func (m *mockRepository) resolve(ref domain.Reference) (domain.Payment, bool) {
	var found domain.Payment
	ok := false
	for _, p := range m.payments {
		if !ref.Matches(&p) {
			continue
		}
		if !ok || p.CreatedAt.After(found.CreatedAt) {
			found, ok = p, true
		}
	}
	return found, ok
}

func (m *mockRepository) Mutate(_ context.Context, ref domain.Reference, fn MutateFunc) (domain.Payment, orderdomain.Order, error) {
	p, ok := m.resolve(ref)
	if !ok {
		return domain.Payment{}, orderdomain.Order{}, domain.ErrNotFound
	}
	o := cloneOrder(m.orders[p.OrderID])
	events, err := fn(&p, &o)
	if err != nil {
		return domain.Payment{}, orderdomain.Order{}, err
	}
	if len(events) > 0 {
		m.payments[p.ID] = p
		m.orders[o.ID] = cloneOrder(o)
		m.events = append(m.events, events...)
		m.writes++
	}
	return p, o, nil
}

func (m *mockRepository) eventTypes() []string {
	out := make([]string, 0, len(m.events))
	for _, e := range m.events {
		out = append(out, e.Type)
	}
	return out
}

type fakeGateway struct {
	method    domain.Method
	session   gateway.Session
	initErr   error
	verify    gateway.Verification
	refund    gateway.RefundResult
	refundErr error
	refunds   []int64
}

func (g *fakeGateway) Method() domain.Method { return g.method }
func (g *fakeGateway) SignatureHeader() string { return "" }
func (g *fakeGateway) AcceptsCallbacks() bool { return true }
func (g *fakeGateway) Verifier() gateway.Verifier { return nil }
func (g *fakeGateway) ParseCallback([]byte) (gateway.Callback, error) { return gateway.Callback{}, nil }

func (g *fakeGateway) Initialize(context.Context, gateway.InitRequest) (gateway.Session, error) {
	return g.session, g.initErr
}

func (g *fakeGateway) Verify(context.Context, domain.Payment) (gateway.Verification, error) {
	return g.verify, nil
}

func (g *fakeGateway) Refund(_ context.Context, _ domain.Payment, amount int64, _ string) (gateway.RefundResult, error) {
	g.refunds = append(g.refunds, amount)
	return g.refund, g.refundErr
}
