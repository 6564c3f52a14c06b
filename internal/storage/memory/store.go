// Package memory is a process-local implementation of every storage port.
// One mutex serializes all access, which gives each call the isolation of
// the Postgres transaction it stands in for. It backs local runs without a
// database and the HTTP tests.
package memory

import (
	"context"
	"slices"
	"sync"
	"time"

	cartdomain "github.com/mishimanto/ecommerce/internal/cart/domain"
	catdomain "github.com/mishimanto/ecommerce/internal/catalog/domain"
	coupondomain "github.com/mishimanto/ecommerce/internal/coupon/domain"
	invdomain "github.com/mishimanto/ecommerce/internal/inventory/domain"
	orderdomain "github.com/mishimanto/ecommerce/internal/order/domain"
	paydomain "github.com/mishimanto/ecommerce/internal/payment/domain"
	settledomain "github.com/mishimanto/ecommerce/internal/settlement/domain"
	"github.com/mishimanto/ecommerce/internal/shipment/courier"
	shipdomain "github.com/mishimanto/ecommerce/internal/shipment/domain"
	"github.com/mishimanto/ecommerce/pkg/outbox"
)

type Address struct {
	ID        int64
	UserID    int64
	Recipient courier.Recipient
}

type Store struct {
	mu sync.Mutex

	products  map[invdomain.Key]catdomain.Product
	addresses map[int64]Address
	carts     map[string]cartdomain.Cart
	coupons   map[string]coupondomain.Coupon
	usages    []coupondomain.Usage
	orders    map[string]orderdomain.Order
	payments  map[string]paydomain.Payment
	shipments map[string]shipdomain.Shipment
	receipts  []settledomain.Receipt
	outbox    []outboxRow
	nextEvent int64
}

type outboxRow struct {
	event      outbox.Event
	leaseUntil time.Time
}

func New() *Store {
	return &Store{
		products:  map[invdomain.Key]catdomain.Product{},
		addresses: map[int64]Address{},
		carts:     map[string]cartdomain.Cart{},
		coupons:   map[string]coupondomain.Coupon{},
		orders:    map[string]orderdomain.Order{},
		payments:  map[string]paydomain.Payment{},
		shipments: map[string]shipdomain.Shipment{},
	}
}

// AddProduct stores a sellable unit. A variant without a price sells at
// its product's price.
func (s *Store) AddProduct(p catdomain.Product) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if p.VariantID != 0 && p.PriceCents == 0 {
		p.PriceCents = s.products[invdomain.Key{ProductID: p.ID}].PriceCents
	}
	s.products[p.Key()] = p
}

func (s *Store) AddCoupon(c coupondomain.Coupon) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c.Code = coupondomain.NormalizeCode(c.Code)
	s.coupons[c.Code] = c
}

func (s *Store) AddAddress(a Address) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.addresses[a.ID] = a
}

// Events returns every outbox event appended so far.
func (s *Store) Events() []outbox.Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]outbox.Event, 0, len(s.outbox))
	for _, r := range s.outbox {
		out = append(out, r.event)
	}
	return out
}

// append must be called with mu held.
func (s *Store) append(events ...outbox.Event) {
	for _, ev := range events {
		s.nextEvent++
		ev.ID = s.nextEvent
		ev.Status = outbox.StatusPending
		s.outbox = append(s.outbox, outboxRow{event: ev})
	}
}

func cloneOrder(o orderdomain.Order) orderdomain.Order {
	o.Items = slices.Clone(o.Items)
	return o
}

func cloneCart(c cartdomain.Cart) *cartdomain.Cart {
	c.Items = slices.Clone(c.Items)
	return &c
}

func clonePayment(p paydomain.Payment) paydomain.Payment {
	p.GatewayResponse = slices.Clone(p.GatewayResponse)
	return p
}

// Outbox implements outbox.Store.
type Outbox struct{ s *Store }

func (s *Store) Outbox() Outbox { return Outbox{s} }

func (o Outbox) LockBatch(_ context.Context, relayID string, batchSize int, lease time.Duration) ([]outbox.Event, error) {
	o.s.mu.Lock()
	defer o.s.mu.Unlock()
	now := time.Now()
	var out []outbox.Event
	for i := range o.s.outbox {
		if len(out) == batchSize {
			break
		}
		r := &o.s.outbox[i]
		leased := r.event.Status == outbox.StatusInProgress && r.leaseUntil.Before(now)
		if r.event.Status != outbox.StatusPending && !leased {
			continue
		}
		r.event.Status, r.event.RelayID, r.leaseUntil = outbox.StatusInProgress, relayID, now.Add(lease)
		out = append(out, r.event)
	}
	return out, nil
}

func (o Outbox) MarkSent(_ context.Context, ids []int64) error {
	o.s.mu.Lock()
	defer o.s.mu.Unlock()
	for i := range o.s.outbox {
		if slices.Contains(ids, o.s.outbox[i].event.ID) {
			o.s.outbox[i].event.Status = outbox.StatusSent
		}
	}
	return nil
}

func (o Outbox) MarkFailed(_ context.Context, id int64, errMsg string) error {
	o.s.mu.Lock()
	defer o.s.mu.Unlock()
	for i := range o.s.outbox {
		if r := &o.s.outbox[i]; r.event.ID == id {
			r.event.Status = outbox.StatusFailed
			r.event.RetryCount++
			r.event.LastError = &errMsg
		}
	}
	return nil
}

func (o Outbox) ExtendLease(_ context.Context, relayID string, ids []int64, lease time.Duration) error {
	o.s.mu.Lock()
	defer o.s.mu.Unlock()
	until := time.Now().Add(lease)
	for i := range o.s.outbox {
		if r := &o.s.outbox[i]; r.event.RelayID == relayID && slices.Contains(ids, r.event.ID) {
			r.leaseUntil = until
		}
	}
	return nil
}

// Inbox implements the settlement receipt log.
type Inbox struct{ s *Store }

func (s *Store) Inbox() Inbox { return Inbox{s} }

func (i Inbox) Record(_ context.Context, r settledomain.Receipt) error {
	i.s.mu.Lock()
	defer i.s.mu.Unlock()
	r.Payload = slices.Clone(r.Payload)
	i.s.receipts = append(i.s.receipts, r)
	return nil
}

// Rejected returns rejected receipts, newest first.
func (i Inbox) Rejected(_ context.Context, limit int) ([]settledomain.Receipt, error) {
	i.s.mu.Lock()
	defer i.s.mu.Unlock()
	if limit <= 0 {
		limit = 50
	}
	var out []settledomain.Receipt
	for j := len(i.s.receipts) - 1; j >= 0 && len(out) < limit; j-- {
		if r := i.s.receipts[j]; r.Result.Outcome == settledomain.OutcomeRejected {
			out = append(out, r)
		}
	}
	return out, nil
}
