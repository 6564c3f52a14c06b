package memory

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	cartdomain "github.com/mishimanto/ecommerce/internal/cart/domain"
	catdomain "github.com/mishimanto/ecommerce/internal/catalog/domain"
	coupondomain "github.com/mishimanto/ecommerce/internal/coupon/domain"
	invdomain "github.com/mishimanto/ecommerce/internal/inventory/domain"
	orderapp "github.com/mishimanto/ecommerce/internal/order/application"
	orderdomain "github.com/mishimanto/ecommerce/internal/order/domain"
	paydomain "github.com/mishimanto/ecommerce/internal/payment/domain"
	settledomain "github.com/mishimanto/ecommerce/internal/settlement/domain"
	shipapp "github.com/mishimanto/ecommerce/internal/shipment/application"
	shipdomain "github.com/mishimanto/ecommerce/internal/shipment/domain"
	"github.com/mishimanto/ecommerce/pkg/outbox"
)

var now = time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC)

func seeded(stock int) *Store {
	s := New()
	s.AddProduct(catdomain.Product{ID: 1, Name: "Mug", SKU: "MUG", PriceCents: 1000, Stock: stock, Status: catdomain.StatusActive})
	s.AddCoupon(coupondomain.Coupon{ID: 5, Code: "once", Type: coupondomain.TypeFixed, Value: decimal.NewFromInt(1),
		Active: true, Scope: coupondomain.ScopeAll, UsageLimit: 1})
	return s
}

func placement(qty int, coupon bool) orderapp.Placement {
	o := orderdomain.Order{
		ID: uuid.NewString(), Number: "ORD-" + uuid.NewString()[:8], UserID: 7,
		Status: orderdomain.StatusPending, PaymentStatus: orderdomain.PaymentPending,
		Items:     []orderdomain.Item{{ID: uuid.NewString(), ProductID: 1, UnitPriceCents: 1000, Quantity: qty}},
		Currency:  "USD",
		CreatedAt: now,
	}
	p := orderapp.Placement{
		Order:   o,
		Payment: paydomain.New(o.ID, o.Number, 1000, "USD", paydomain.MethodCOD, now),
		Events:  []outbox.Event{{AggregateType: "order", AggregateID: o.ID, Type: "order.placed"}},
	}
	if coupon {
		p.Coupon = &orderapp.Redemption{Code: "ONCE", UserID: 7, DiscountCents: 100}
	}
	return p
}

func TestPlaceReservesAndClearsCart(t *testing.T) {
	s := seeded(5)
	ctx := context.Background()
	owner := cartdomain.Owner{UserID: 7}
	cart, err := cartdomain.New(owner, now)
	require.NoError(t, err)
	cart.Items = []cartdomain.Item{{ID: "i1", ProductID: 1, Quantity: 2, UnitPriceCents: 1000}}
	cart.CouponCode = "ONCE"
	require.NoError(t, s.Carts().Save(ctx, cart))

	p := placement(2, true)
	p.CartID = cart.ID
	require.NoError(t, s.Orders().Place(ctx, p))

	left, err := s.Ledger().Available(ctx, invdomain.Key{ProductID: 1})
	require.NoError(t, err)
	assert.Equal(t, 3, left)

	got, err := s.Carts().Get(ctx, owner)
	require.NoError(t, err)
	assert.True(t, got.Empty())
	assert.Empty(t, got.CouponCode)

	n, err := s.Coupons().CountUsage(ctx, 5)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Len(t, s.Events(), 1)

	pays, err := s.Payments().ListByOrder(ctx, p.Order.ID)
	require.NoError(t, err)
	assert.Len(t, pays, 1)
}

func TestPlaceWritesNothingOnFailure(t *testing.T) {
	s := seeded(5)
	ctx := context.Background()
	require.NoError(t, s.Orders().Place(ctx, placement(1, true)))

	// coupon already used up
	err := s.Orders().Place(ctx, placement(1, true))
	assert.ErrorIs(t, err, coupondomain.ErrExhausted)

	// not enough stock
	err = s.Orders().Place(ctx, placement(10, false))
	assert.ErrorIs(t, err, invdomain.ErrInsufficientStock)

	left, _ := s.Ledger().Available(ctx, invdomain.Key{ProductID: 1})
	assert.Equal(t, 4, left)
	assert.Len(t, s.Events(), 1)
}

func TestConcurrentPlacementsNeverOversell(t *testing.T) {
	s := seeded(10)
	ctx := context.Background()

	var (
		wg sync.WaitGroup
		ok atomic.Int32
	)
	for range 50 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if s.Orders().Place(ctx, placement(1, false)) == nil {
				ok.Add(1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(10), ok.Load())
	left, _ := s.Ledger().Available(ctx, invdomain.Key{ProductID: 1})
	assert.Equal(t, 0, left)
}

func TestUpdateReleasesOnlyWithEvents(t *testing.T) {
	s := seeded(5)
	ctx := context.Background()
	p := placement(2, false)
	require.NoError(t, s.Orders().Place(ctx, p))

	_, err := s.Orders().Update(ctx, p.Order.ID, func(o *orderdomain.Order) (orderapp.Change, error) {
		o.Notes = "dropped"
		return orderapp.Change{Release: o.StockLines()}, nil
	})
	require.NoError(t, err)
	got, _ := s.Orders().Get(ctx, p.Order.ID)
	assert.Empty(t, got.Notes)

	_, err = s.Orders().Update(ctx, p.Order.ID, func(o *orderdomain.Order) (orderapp.Change, error) {
		require.NoError(t, o.Cancel("changed mind", now))
		return orderapp.Change{Release: o.StockLines(), Events: []outbox.Event{{Type: "order.cancelled"}}}, nil
	})
	require.NoError(t, err)
	left, _ := s.Ledger().Available(ctx, invdomain.Key{ProductID: 1})
	assert.Equal(t, 5, left)

	_, err = s.Orders().Get(ctx, "missing")
	assert.ErrorIs(t, err, orderdomain.ErrNotFound)
}

func TestPaymentMutateNewestAttemptWins(t *testing.T) {
	s := seeded(5)
	ctx := context.Background()
	p := placement(1, false)
	require.NoError(t, s.Orders().Place(ctx, p))

	retry := paydomain.New(p.Order.ID, p.Order.Number, 1000, "USD", paydomain.MethodCOD, now.Add(time.Minute))
	require.NoError(t, s.Payments().Create(ctx, retry, func(*orderdomain.Order) error { return nil }))

	ref := paydomain.Reference{Kind: paydomain.RefOrderNumber, Value: p.Order.Number}
	got, _, err := s.Payments().Mutate(ctx, ref, func(*paydomain.Payment, *orderdomain.Order) ([]outbox.Event, error) {
		return nil, nil
	})
	require.NoError(t, err)
	assert.Equal(t, retry.ID, got.ID)

	_, _, err = s.Payments().Mutate(ctx, paydomain.Reference{Kind: paydomain.RefGatewayReference, Value: "nope"},
		func(*paydomain.Payment, *orderdomain.Order) ([]outbox.Event, error) { return nil, nil })
	assert.ErrorIs(t, err, paydomain.ErrNotFound)
}

func TestShipmentTrackingIsUniquePerCourier(t *testing.T) {
	s := seeded(5)
	ctx := context.Background()
	p := placement(1, false)
	require.NoError(t, s.Orders().Place(ctx, p))
	noop := func(*orderdomain.Order) ([]outbox.Event, error) { return nil, nil }

	_, err := s.Shipments().Create(ctx, shipdomain.New(p.Order.ID, "pathao", "T1", now), noop)
	require.NoError(t, err)
	_, err = s.Shipments().Create(ctx, shipdomain.New(p.Order.ID, "pathao", "T1", now), noop)
	assert.ErrorIs(t, err, shipdomain.ErrDuplicateTracking)
	_, err = s.Shipments().Create(ctx, shipdomain.New(p.Order.ID, "redx", "T1", now), noop)
	require.NoError(t, err)

	sh, _, err := s.Shipments().Mutate(ctx, shipapp.Key{Courier: "redx", TrackingID: "T1"},
		func(*shipdomain.Shipment, *orderdomain.Order) ([]outbox.Event, error) { return nil, nil })
	require.NoError(t, err)
	assert.Equal(t, "redx", sh.Courier)

	list, err := s.Shipments().ListByOrder(ctx, p.Order.ID)
	require.NoError(t, err)
	assert.Len(t, list, 2)
}

func TestOutboxLeases(t *testing.T) {
	s := seeded(5)
	ctx := context.Background()
	require.NoError(t, s.Orders().Place(ctx, placement(1, false)))
	require.NoError(t, s.Orders().Place(ctx, placement(1, false)))
	ob := s.Outbox()

	batch, err := ob.LockBatch(ctx, "r1", 10, time.Minute)
	require.NoError(t, err)
	require.Len(t, batch, 2)

	again, err := ob.LockBatch(ctx, "r2", 10, time.Minute)
	require.NoError(t, err)
	assert.Empty(t, again, "leased rows are not handed out twice")

	require.NoError(t, ob.MarkSent(ctx, []int64{batch[0].ID}))
	require.NoError(t, ob.MarkFailed(ctx, batch[1].ID, "broker down"))
	events := s.Events()
	assert.Equal(t, outbox.StatusSent, events[0].Status)
	assert.Equal(t, outbox.StatusFailed, events[1].Status)
	assert.Equal(t, 1, events[1].RetryCount)
}

func TestExpiredLeaseIsReclaimed(t *testing.T) {
	s := seeded(5)
	ctx := context.Background()
	require.NoError(t, s.Orders().Place(ctx, placement(1, false)))

	_, err := s.Outbox().LockBatch(ctx, "r1", 10, -time.Second)
	require.NoError(t, err)
	batch, err := s.Outbox().LockBatch(ctx, "r2", 10, time.Minute)
	require.NoError(t, err)
	require.Len(t, batch, 1)
	assert.Equal(t, "r2", batch[0].RelayID)
}

func TestAddresses(t *testing.T) {
	s := New()
	s.AddAddress(Address{ID: 3, UserID: 7})
	ctx := context.Background()

	ok, err := s.Addresses().Owns(ctx, 7, 3)
	require.NoError(t, err)
	assert.True(t, ok)
	ok, _ = s.Addresses().Owns(ctx, 8, 3)
	assert.False(t, ok)
	_, err = s.Addresses().Recipient(ctx, 99)
	assert.Error(t, err)
}

func TestInboxRejectedNewestFirst(t *testing.T) {
	s := New()
	ctx := context.Background()
	in := s.Inbox()
	require.NoError(t, in.Record(ctx, settledomain.Receipt{ID: "a", Result: settledomain.Rejected(settledomain.ReasonMalformed, "")}))
	require.NoError(t, in.Record(ctx, settledomain.Receipt{ID: "b", Result: settledomain.Result{Outcome: settledomain.OutcomeApplied}}))
	require.NoError(t, in.Record(ctx, settledomain.Receipt{ID: "c", Result: settledomain.Rejected(settledomain.ReasonStale, "")}))

	got, err := in.Rejected(ctx, 0)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "c", got[0].ID)

	got, _ = in.Rejected(ctx, 1)
	assert.Len(t, got, 1)
}
