package application

import (
	"context"
	"slices"

	orderdomain "github.com/mishimanto/ecommerce/internal/order/domain"
	"github.com/mishimanto/ecommerce/internal/shipment/courier"
	"github.com/mishimanto/ecommerce/internal/shipment/domain"
	"github.com/mishimanto/ecommerce/pkg/outbox"
)

type mockRepository struct {
	shipments map[string]domain.Shipment
	orders    map[string]orderdomain.Order
	events    []outbox.Event
	writes    int
}

func newMockRepository() *mockRepository {
	return &mockRepository{shipments: map[string]domain.Shipment{}, orders: map[string]orderdomain.Order{}}
}

func cloneOrder(o orderdomain.Order) orderdomain.Order {
	o.Items = slices.Clone(o.Items)
	return o
}

func (m *mockRepository) Get(_ context.Context, id string) (domain.Shipment, error) {
	s, ok := m.shipments[id]
	if !ok {
		return domain.Shipment{}, domain.ErrNotFound
	}
	return s, nil
}

func (m *mockRepository) ListByOrder(_ context.Context, orderID string) ([]domain.Shipment, error) {
	var out []domain.Shipment
	for _, s := range m.shipments {
		if s.OrderID == orderID {
			out = append(out, s)
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

func (m *mockRepository) Create(_ context.Context, s domain.Shipment, fn CreateFunc) (orderdomain.Order, error) {
	for _, other := range m.shipments {
		if other.Courier == s.Courier && other.TrackingID == s.TrackingID {
			return orderdomain.Order{}, domain.ErrDuplicateTracking
		}
	}
	o, ok := m.orders[s.OrderID]
	if !ok {
		return orderdomain.Order{}, orderdomain.ErrNotFound
	}
	o = cloneOrder(o)
	events, err := fn(&o)
	if err != nil {
		return orderdomain.Order{}, err
	}
	m.orders[o.ID] = o
	m.shipments[s.ID] = s
	m.events = append(m.events, events...)
	m.writes++
	return o, nil
}

func (m *mockRepository) Mutate(_ context.Context, key Key, fn MutateFunc) (domain.Shipment, orderdomain.Order, error) {
	var (
		s     domain.Shipment
		found bool
	)
	for _, cand := range m.shipments {
		if (key.ID != "" && cand.ID == key.ID) ||
			(key.ID == "" && cand.Courier == key.Courier && cand.TrackingID == key.TrackingID) {
			s, found = cand, true
		}
	}
	if !found {
		return domain.Shipment{}, orderdomain.Order{}, domain.ErrNotFound
	}
	o := cloneOrder(m.orders[s.OrderID])
	events, err := fn(&s, &o)
	if err != nil {
		return domain.Shipment{}, orderdomain.Order{}, err
	}
	if len(events) == 0 {
		return m.shipments[s.ID], cloneOrder(m.orders[o.ID]), nil
	}
	m.shipments[s.ID] = s
	m.orders[o.ID] = o
	m.events = append(m.events, events...)
	m.writes++
	return s, o, nil
}

func (m *mockRepository) eventTypes() []string {
	out := make([]string, 0, len(m.events))
	for _, e := range m.events {
		out = append(out, e.Type)
	}
	return out
}

type fakeCourier struct {
	name     string
	tracking string
	status   string
	err      error
	bookings []courier.Booking
}

func (f *fakeCourier) Name() string { return f.name }

func (f *fakeCourier) CreateShipment(_ context.Context, b courier.Booking) (courier.Consignment, error) {
	f.bookings = append(f.bookings, b)
	if f.err != nil {
		return courier.Consignment{}, f.err
	}
	return courier.Consignment{TrackingID: f.tracking}, nil
}

func (f *fakeCourier) Track(context.Context, string) (string, error) {
	return f.status, f.err
}

func (f *fakeCourier) ParseWebhook(payload []byte) (courier.Update, error) {
	return courier.NewManual().ParseWebhook(payload)
}

type fakeRecipients map[int64]courier.Recipient

func (f fakeRecipients) Recipient(_ context.Context, id int64) (courier.Recipient, error) {
	return f[id], nil
}
