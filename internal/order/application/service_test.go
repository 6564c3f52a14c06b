package application

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	cartdomain "github.com/mishimanto/ecommerce/internal/cart/domain"
	catdomain "github.com/mishimanto/ecommerce/internal/catalog/domain"
	couponapp "github.com/mishimanto/ecommerce/internal/coupon/application"
	coupondomain "github.com/mishimanto/ecommerce/internal/coupon/domain"
	invdomain "github.com/mishimanto/ecommerce/internal/inventory/domain"
	"github.com/mishimanto/ecommerce/internal/order/domain"
	paydomain "github.com/mishimanto/ecommerce/internal/payment/domain"
	"github.com/mishimanto/ecommerce/internal/payment/gateway"
	"github.com/mishimanto/ecommerce/internal/pricing"
	"github.com/mishimanto/ecommerce/pkg/logging"
)

var testNow = time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)

type fixture struct {
	svc      *Service
	repo     *mockRepository
	carts    *mockCarts
	catalog  mockCatalog
	coupons  *mockCoupons
	payments *mockPayments
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	cart, err := cartdomain.New(cartdomain.Owner{UserID: 7}, testNow)
	require.NoError(t, err)
	cart.Add(1, 0, 1, 1000, testNow)
	cart.Add(2, 0, 1, 1000, testNow)

	f := &fixture{
		repo:  newMockRepository(),
		carts: &mockCarts{carts: map[int64]*cartdomain.Cart{7: cart}},
		catalog: mockCatalog{
			{ProductID: 1}: {ID: 1, Name: "Mug", SKU: "MUG", CategoryID: 3, PriceCents: 1000, Stock: 5, Status: catdomain.StatusActive},
			{ProductID: 2}: {ID: 2, Name: "Cap", SKU: "CAP", CategoryID: 3, PriceCents: 1000, Stock: 5, Status: catdomain.StatusActive},
		},
		coupons:  &mockCoupons{},
		payments: &mockPayments{session: gateway.Session{Reference: "pi_1", ClientSecret: "sec"}},
	}
	f.payments.repo = f.repo
	f.svc = NewService(logging.Discard(), Deps{
		Repo:      f.repo,
		Carts:     f.carts,
		Catalog:   f.catalog,
		Coupons:   f.coupons,
		Addresses: mockAddresses{10: 7, 11: 8},
		Payments:  f.payments,
		Pricing:   pricing.NewEngine(pricing.DefaultConfig()),
	})
	f.svc.now = func() time.Time { return testNow }
	return f
}

func checkoutReq() CheckoutRequest {
	return CheckoutRequest{UserID: 7, PaymentMethod: "stripe", ShippingAddressID: 10}
}

func TestCheckoutWithCoupon(t *testing.T) {
	f := newFixture(t)
	f.carts.carts[7].CouponCode = "SAVE10"
	f.coupons.result = couponapp.Result{Coupon: coupondomain.Coupon{ID: 1, Code: "SAVE10"}, BaseCents: 2000, DiscountCents: 200}

	res, err := f.svc.Checkout(context.Background(), checkoutReq())
	require.NoError(t, err)
	require.NoError(t, res.InitError)

	o := res.Order
	assert.Equal(t, int64(2000), o.SubtotalCents)
	assert.Equal(t, int64(200), o.DiscountCents)
	assert.Equal(t, int64(1000), o.ShippingCents)
	assert.Equal(t, int64(140), o.TaxCents)
	assert.Equal(t, int64(2940), o.TotalCents)
	assert.Equal(t, domain.StatusPending, o.Status)
	assert.Equal(t, int64(10), o.BillingAddressID, "billing defaults to shipping")
	assert.Regexp(t, `^ORD-[0-9A-Z]{26}$`, o.Number)
	assert.Equal(t, "MUG", o.Items[0].SKU)

	require.Len(t, f.repo.placed, 1)
	p := f.repo.placed[0]
	assert.Equal(t, &Redemption{Code: "SAVE10", UserID: 7, DiscountCents: 200}, p.Coupon)
	assert.Equal(t, f.carts.carts[7].ID, p.CartID)
	assert.Equal(t, int64(2940), p.Payment.AmountCents)
	assert.Equal(t, paydomain.StatusPending, p.Payment.Status)
	assert.Equal(t, []string{domain.EventOrderPlaced}, f.repo.eventTypes())

	assert.Equal(t, int64(7), f.coupons.reqs[0].UserID, "coupon is re-evaluated for the known user")
	assert.Equal(t, int64(3), f.coupons.reqs[0].Lines[0].CategoryID)
	assert.Equal(t, []cartdomain.Owner{{UserID: 7}}, f.carts.invalidated)
	require.NotNil(t, res.Session)
	assert.Equal(t, "pi_1", res.Payment.GatewayReference)
}

func TestCheckoutInitFailureKeepsOrder(t *testing.T) {
	f := newFixture(t)
	f.payments.initErr = paydomain.ErrInitFailed.Wrap(errors.New("timeout"))

	res, err := f.svc.Checkout(context.Background(), checkoutReq())
	require.NoError(t, err)
	assert.ErrorIs(t, res.InitError, paydomain.ErrInitFailed)
	assert.Nil(t, res.Session)
	assert.Len(t, f.repo.placed, 1)
	assert.Equal(t, domain.StatusPending, f.repo.orders[res.Order.ID].Status)
}

func TestCheckoutRejections(t *testing.T) {
	cases := []struct {
		name  string
		setup func(f *fixture, req *CheckoutRequest)
		want  error
	}{
		{"unknown method", func(_ *fixture, req *CheckoutRequest) { req.PaymentMethod = "bitcoin" }, paydomain.ErrUnknownMethod},
		{"foreign address", func(_ *fixture, req *CheckoutRequest) { req.BillingAddressID = 11 }, ErrInvalidAddress},
		{"empty cart", func(f *fixture, _ *CheckoutRequest) { f.carts.carts[7].Clear(testNow) }, cartdomain.ErrEmptyCart},
		{"inactive product", func(f *fixture, _ *CheckoutRequest) {
			p := f.catalog[invdomain.Key{ProductID: 2}]
			p.Status = catdomain.StatusInactive
			f.catalog[invdomain.Key{ProductID: 2}] = p
		}, catdomain.ErrUnavailable},
		{"short stock", func(f *fixture, _ *CheckoutRequest) {
			p := f.catalog[invdomain.Key{ProductID: 1}]
			p.Stock = 0
			f.catalog[invdomain.Key{ProductID: 1}] = p
		}, invdomain.ErrInsufficientStock},
		{"price raised", func(f *fixture, _ *CheckoutRequest) {
			p := f.catalog[invdomain.Key{ProductID: 1}]
			p.PriceCents = 1500
			f.catalog[invdomain.Key{ProductID: 1}] = p
		}, ErrPriceChanged},
		{"price lowered", func(f *fixture, _ *CheckoutRequest) {
			p := f.catalog[invdomain.Key{ProductID: 2}]
			p.PriceCents = 800
			f.catalog[invdomain.Key{ProductID: 2}] = p
		}, ErrPriceChanged},
		{"coupon used up", func(f *fixture, _ *CheckoutRequest) {
			f.carts.carts[7].CouponCode = "SAVE10"
			f.coupons.err = coupondomain.ErrUserLimitReached
		}, coupondomain.ErrUserLimitReached},
		{"stock taken at commit", func(f *fixture, _ *CheckoutRequest) {
			f.repo.placeErr = invdomain.ErrInsufficientStock
		}, invdomain.ErrInsufficientStock},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			f := newFixture(t)
			req := checkoutReq()
			tc.setup(f, &req)

			_, err := f.svc.Checkout(context.Background(), req)
			assert.ErrorIs(t, err, tc.want)
			assert.Empty(t, f.repo.placed)
			assert.Empty(t, f.carts.invalidated)
			assert.True(t, IsCheckoutRejection(err))
		})
	}
}

func TestCheckoutPriceChangeKeepsCart(t *testing.T) {
	f := newFixture(t)
	f.carts.carts[7].CouponCode = "SAVE10"
	p := f.catalog[invdomain.Key{ProductID: 1}]
	p.PriceCents = 1500
	f.catalog[invdomain.Key{ProductID: 1}] = p

	_, err := f.svc.Checkout(context.Background(), checkoutReq())
	require.ErrorIs(t, err, ErrPriceChanged)
	assert.Empty(t, f.coupons.reqs)
	cart := f.carts.carts[7]
	require.Len(t, cart.Items, 2)
	assert.Equal(t, int64(1000), cart.Items[0].UnitPriceCents)
	assert.Equal(t, "SAVE10", cart.CouponCode)

	// Refreshing the cart line picks up the live price.
	_, err = cart.Update(cart.Items[0].ID, 1, 1500, testNow)
	require.NoError(t, err)
	f.coupons.result = couponapp.Result{Coupon: coupondomain.Coupon{ID: 1, Code: "SAVE10"}, BaseCents: 2500, DiscountCents: 250}

	res, err := f.svc.Checkout(context.Background(), checkoutReq())
	require.NoError(t, err)
	assert.Equal(t, int64(1500), res.Order.Items[0].UnitPriceCents)
	assert.Equal(t, int64(2500), res.Order.SubtotalCents)
	require.Len(t, f.coupons.reqs, 1)
	assert.Equal(t, int64(2500), f.coupons.reqs[0].SubtotalCents)
	assert.Equal(t, int64(1500), f.coupons.reqs[0].Lines[0].AmountCents)
}

func placed(t *testing.T, f *fixture) domain.Order {
	t.Helper()
	res, err := f.svc.Checkout(context.Background(), checkoutReq())
	require.NoError(t, err)
	f.repo.events = nil
	return res.Order
}

func TestCancelReleasesStock(t *testing.T) {
	f := newFixture(t)
	o := placed(t, f)

	_, err := f.svc.Cancel(context.Background(), 8, o.ID, "changed mind")
	assert.ErrorIs(t, err, domain.ErrNotFound)

	got, err := f.svc.Cancel(context.Background(), 7, o.ID, "changed mind")
	require.NoError(t, err)
	assert.Equal(t, domain.StatusCancelled, got.Status)
	assert.ElementsMatch(t, []invdomain.Line{
		{Key: invdomain.Key{ProductID: 1}, Quantity: 1},
		{Key: invdomain.Key{ProductID: 2}, Quantity: 1},
	}, f.repo.released)
	assert.Equal(t, []string{domain.EventOrderCancelled, domain.EventOrderStatusChanged}, f.repo.eventTypes())

	_, err = f.svc.Cancel(context.Background(), 7, o.ID, "again")
	assert.ErrorIs(t, err, domain.ErrNotCancellable)
	assert.Len(t, f.repo.released, 2)
}

func delivered(t *testing.T, f *fixture) domain.Order {
	t.Helper()
	o := placed(t, f)
	o.Status, o.PaymentStatus = domain.StatusDelivered, domain.PaymentPaid
	at := testNow.Add(-24 * time.Hour)
	o.DeliveredAt = &at
	f.repo.orders[o.ID] = o
	return o
}

func TestReturnFlowRefundsThroughPayments(t *testing.T) {
	f := newFixture(t)
	o := delivered(t, f)
	ctx := context.Background()

	got, err := f.svc.RequestReturn(ctx, 7, o.ID, "too small")
	require.NoError(t, err)
	assert.Equal(t, domain.ReturnRequested, got.ReturnStatus)
	assert.Equal(t, "too small", got.ReturnReason)

	got, err = f.svc.ApproveReturn(ctx, o.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusReturned, got.Status)

	f.payments.payments = []paydomain.Payment{
		{ID: "p-failed", Status: paydomain.StatusFailed, AmountCents: 2940},
		{ID: "p-ok", Status: paydomain.StatusCompleted, AmountCents: 2940},
	}
	got, err = f.svc.CompleteReturn(ctx, o.ID, "return")
	require.NoError(t, err)
	assert.Equal(t, []refundCall{{"p-ok", true}}, f.payments.refunds)
	assert.Equal(t, domain.ReturnCompleted, got.ReturnStatus)
}

func TestCompleteReturnWithoutSettledPayment(t *testing.T) {
	f := newFixture(t)
	o := delivered(t, f)
	o.Status, o.ReturnStatus = domain.StatusReturned, domain.ReturnApproved
	f.repo.orders[o.ID] = o

	got, err := f.svc.CompleteReturn(context.Background(), o.ID, "return")
	require.NoError(t, err)
	assert.Empty(t, f.payments.refunds)
	assert.Equal(t, domain.ReturnCompleted, got.ReturnStatus)
	assert.Equal(t, []string{domain.EventOrderStatusChanged}, f.repo.eventTypes())
}

func TestRequestReturnOutsideWindow(t *testing.T) {
	f := newFixture(t)
	o := delivered(t, f)
	f.svc.now = func() time.Time { return testNow.Add(20 * 24 * time.Hour) }

	_, err := f.svc.RequestReturn(context.Background(), 7, o.ID, "late")
	assert.ErrorIs(t, err, domain.ErrReturnWindow)
	assert.Empty(t, f.repo.events)
}

func TestGetAndTrack(t *testing.T) {
	f := newFixture(t)
	o := placed(t, f)
	ctx := context.Background()

	_, err := f.svc.Get(ctx, 8, o.ID)
	assert.ErrorIs(t, err, domain.ErrNotFound)
	got, err := f.svc.Get(ctx, 0, o.ID)
	require.NoError(t, err)
	assert.Equal(t, o.Number, got.Number)

	tr, err := f.svc.Track(ctx, o.Number)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusPending, tr.Status)

	list, err := f.svc.ListByUser(ctx, 7, 0, -1)
	require.NoError(t, err)
	assert.Len(t, list, 1)
}
