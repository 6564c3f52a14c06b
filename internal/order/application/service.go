package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	cartdomain "github.com/mishimanto/ecommerce/internal/cart/domain"
	catdomain "github.com/mishimanto/ecommerce/internal/catalog/domain"
	couponapp "github.com/mishimanto/ecommerce/internal/coupon/application"
	invdomain "github.com/mishimanto/ecommerce/internal/inventory/domain"
	"github.com/mishimanto/ecommerce/internal/order/domain"
	paydomain "github.com/mishimanto/ecommerce/internal/payment/domain"
	"github.com/mishimanto/ecommerce/internal/payment/gateway"
	"github.com/mishimanto/ecommerce/internal/pricing"
	"github.com/mishimanto/ecommerce/pkg/apperr"
	"github.com/mishimanto/ecommerce/pkg/outbox"
	"github.com/mishimanto/ecommerce/pkg/tracing"
)

var (
	ErrInvalidAddress = apperr.Validation("invalid_address", "address not found for this customer")
	// ErrPriceChanged leaves the cart as it is; updating the item refreshes its price.
	ErrPriceChanged   = apperr.Validation("price_changed", "a product price changed since it was added to the cart")
)

type Service struct {
	log       *slog.Logger
	repo      Repository
	carts     Carts
	catalog   Catalog
	coupons   Coupons
	addresses AddressBook
	payments  Payments
	pricing   *pricing.Engine
	now       func() time.Time
}

type Deps struct {
	Repo      Repository
	Carts     Carts
	Catalog   Catalog
	Coupons   Coupons
	Addresses AddressBook
	Payments  Payments
	Pricing   *pricing.Engine
}

func NewService(log *slog.Logger, d Deps) *Service {
	return &Service{
		log:       log,
		repo:      d.Repo,
		carts:     d.Carts,
		catalog:   d.Catalog,
		coupons:   d.Coupons,
		addresses: d.Addresses,
		payments:  d.Payments,
		pricing:   d.Pricing,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

type CheckoutRequest struct {
	UserID            int64        `json:"-"`
	PaymentMethod     string       `json:"payment_method"`
	ShippingAddressID int64        `json:"shipping_address_id"`
	BillingAddressID  int64        `json:"billing_address_id,omitempty"`
	Notes             string       `json:"notes,omitempty"`
	URLs              gateway.URLs `json:"-"`
}

// CheckoutResult is a placed order. InitError is set when the order exists
// but the gateway could not open a payment session; the payment can be
// retried.
type CheckoutResult struct {
	Order     domain.Order      `json:"order"`
	Payment   paydomain.Payment `json:"payment"`
	Session   *gateway.Session  `json:"session,omitempty"`
	InitError error             `json:"-"`
}

// Tracking is the public view of an order looked up by number.
type Tracking struct {
	Number        string               `json:"number"`
	Status        domain.Status        `json:"status"`
	PaymentStatus domain.PaymentStatus `json:"payment_status"`
	CreatedAt     time.Time            `json:"created_at"`
	ShippedAt     *time.Time           `json:"shipped_at,omitempty"`
	DeliveredAt   *time.Time           `json:"delivered_at,omitempty"`
}

func (s *Service) Checkout(ctx context.Context, req CheckoutRequest) (CheckoutResult, error) {
	method, err := paydomain.ParseMethod(req.PaymentMethod)
	if err != nil {
		return CheckoutResult{}, err
	}
	if req.BillingAddressID == 0 {
		req.BillingAddressID = req.ShippingAddressID
	}
	for _, id := range []int64{req.ShippingAddressID, req.BillingAddressID} {
		ok, err := s.addresses.Owns(ctx, req.UserID, id)
		if err != nil {
			return CheckoutResult{}, fmt.Errorf("check address: %w", err)
		}
		if !ok {
			return CheckoutResult{}, ErrInvalidAddress.Withf("address %d", id)
		}
	}

	owner := cartdomain.Owner{UserID: req.UserID}
	cart, err := s.carts.Get(ctx, owner)
	if err != nil {
		return CheckoutResult{}, err
	}
	if cart.Empty() {
		return CheckoutResult{}, cartdomain.ErrEmptyCart
	}

	now := s.now()
	o := domain.Order{
		ID:                uuid.NewString(),
		Number:            domain.NewNumber(now),
		UserID:            req.UserID,
		Status:            domain.StatusPending,
		PaymentStatus:     domain.PaymentPending,
		PaymentMethod:     string(method),
		ShippingAddressID: req.ShippingAddressID,
		BillingAddressID:  req.BillingAddressID,
		Notes:             req.Notes,
		CreatedAt:         now,
		UpdatedAt:         now,
	}
	lines := make([]pricing.Line, 0, len(cart.Items))
	couponReq := couponapp.Request{UserID: req.UserID}
	for _, it := range cart.Items {
		p, err := s.catalog.Product(ctx, it.ProductID, it.VariantID)
		if err != nil {
			return CheckoutResult{}, err
		}
		if !p.Sellable() {
			return CheckoutResult{}, catdomain.ErrUnavailable.Withf("%s", p.Key())
		}
		if p.Stock < it.Quantity {
			return CheckoutResult{}, invdomain.ErrInsufficientStock.Withf("%s: %d available", p.Key(), p.Stock)
		}
		if p.PriceCents != it.UnitPriceCents {
			return CheckoutResult{}, ErrPriceChanged.Withf("%s: %d in cart, now %d", p.Key(), it.UnitPriceCents, p.PriceCents)
		}
		lineCents := p.PriceCents * int64(it.Quantity)
		o.Items = append(o.Items, domain.Item{
			ID:             uuid.NewString(),
			ProductID:      it.ProductID,
			VariantID:      it.VariantID,
			ProductName:    p.Name,
			VariantName:    p.VariantName,
			SKU:            p.SKU,
			UnitPriceCents: p.PriceCents,
			Quantity:       it.Quantity,
		})
		lines = append(lines, pricing.Line{UnitPriceCents: p.PriceCents, Quantity: it.Quantity})
		couponReq.SubtotalCents += lineCents
		couponReq.Lines = append(couponReq.Lines, couponapp.Line{
			ProductID: it.ProductID, CategoryID: p.CategoryID, AmountCents: lineCents,
		})
	}

	var redemption *Redemption
	var discount int64
	if cart.CouponCode != "" {
		res, err := s.coupons.Evaluate(ctx, cart.CouponCode, couponReq)
		if err != nil {
			return CheckoutResult{}, err
		}
		discount = res.DiscountCents
		o.CouponCode = res.Coupon.Code
		redemption = &Redemption{Code: res.Coupon.Code, UserID: req.UserID, DiscountCents: discount}
	}

	t := s.pricing.Quote(lines, discount)
	if err := t.Check(); err != nil {
		return CheckoutResult{}, err
	}
	o.SubtotalCents, o.DiscountCents, o.ShippingCents = t.SubtotalCents, t.DiscountCents, t.ShippingCents
	o.TaxCents, o.TotalCents, o.Currency = t.TaxCents, t.TotalCents, t.Currency
	if err := o.CheckTotals(); err != nil {
		return CheckoutResult{}, err
	}

	pay := paydomain.New(o.ID, o.Number, o.TotalCents, o.Currency, method, now)
	ev, err := outbox.NewEvent(domain.AggregateType, o.ID, domain.EventOrderPlaced, domain.Placed(&o), tracing.Traceparent(ctx))
	if err != nil {
		return CheckoutResult{}, err
	}
	err = s.repo.Place(ctx, Placement{
		Order:   o,
		Payment: pay,
		CartID:  cart.ID,
		Coupon:  redemption,
		Events:  []outbox.Event{ev},
	})
	if err != nil {
		return CheckoutResult{}, err
	}
	s.carts.Invalidate(ctx, owner)
	s.log.Info("order placed", "order_id", o.ID, "order_number", o.Number, "total_cents", o.TotalCents, "provider", method)

	res := CheckoutResult{Order: o, Payment: pay}
	sess, err := s.payments.Initiate(ctx, pay.ID, req.URLs)
	if err != nil {
		s.log.Warn("order placed without payment session", "order_id", o.ID, "payment_id", pay.ID, "err", err)
		res.InitError = err
		return res, nil
	}
	res.Session = &sess
	res.Payment.GatewayReference = sess.Reference
	return res, nil
}

// Get returns an order for its owner. userID 0 skips the ownership check.
func (s *Service) Get(ctx context.Context, userID int64, id string) (domain.Order, error) {
	o, err := s.repo.Get(ctx, id)
	if err != nil {
		return domain.Order{}, err
	}
	if userID != 0 && o.UserID != userID {
		return domain.Order{}, domain.ErrNotFound
	}
	return o, nil
}

func (s *Service) Track(ctx context.Context, number string) (Tracking, error) {
	o, err := s.repo.GetByNumber(ctx, number)
	if err != nil {
		return Tracking{}, err
	}
	return Tracking{
		Number:        o.Number,
		Status:        o.Status,
		PaymentStatus: o.PaymentStatus,
		CreatedAt:     o.CreatedAt,
		ShippedAt:     o.ShippedAt,
		DeliveredAt:   o.DeliveredAt,
	}, nil
}

func (s *Service) ListByUser(ctx context.Context, userID int64, limit, offset int) ([]domain.Order, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}
	return s.repo.ListByUser(ctx, userID, limit, offset)
}

func owned(o *domain.Order, userID int64) error {
	if userID != 0 && o.UserID != userID {
		return domain.ErrNotFound
	}
	return nil
}

// Cancel releases the order's stock in the cancelling transaction. Money
// already collected is refunded separately.
func (s *Service) Cancel(ctx context.Context, userID int64, orderID, reason string) (domain.Order, error) {
	o, err := s.repo.Update(ctx, orderID, func(o *domain.Order) (Change, error) {
		if err := owned(o, userID); err != nil {
			return Change{}, err
		}
		from := o.Status
		if err := o.Cancel(reason, s.now()); err != nil {
			return Change{}, err
		}
		released := o.StockLines()
		events, err := s.events(ctx, o,
			event{domain.EventOrderCancelled, domain.OrderCancelled{OrderID: o.ID, Number: o.Number, Reason: reason, Released: released}},
			event{domain.EventOrderStatusChanged, domain.StatusChanged(o, from)})
		return Change{Release: released, Events: events}, err
	})
	if err != nil {
		return domain.Order{}, err
	}
	s.log.Info("order cancelled", "order_id", o.ID, "order_number", o.Number)
	return o, nil
}

func (s *Service) RequestReturn(ctx context.Context, userID int64, orderID, reason string) (domain.Order, error) {
	return s.transition(ctx, orderID, func(o *domain.Order) error {
		if err := owned(o, userID); err != nil {
			return err
		}
		return o.RequestReturn(reason, s.now())
	})
}

func (s *Service) ApproveReturn(ctx context.Context, orderID string) (domain.Order, error) {
	return s.transition(ctx, orderID, func(o *domain.Order) error {
		return o.ApproveReturn(s.now())
	})
}

// CompleteReturn refunds whatever is left of the settled payment and closes
// the return in the refund's transaction. Unpaid orders close without a
// refund.
func (s *Service) CompleteReturn(ctx context.Context, orderID, reason string) (domain.Order, error) {
	payments, err := s.payments.ListByOrder(ctx, orderID)
	if err != nil {
		return domain.Order{}, err
	}
	var settled *paydomain.Payment
	for i := range payments {
		if payments[i].Refundable() > 0 {
			settled = &payments[i]
		}
	}
	if settled == nil {
		return s.transition(ctx, orderID, func(o *domain.Order) error {
			return o.CompleteReturn(s.now())
		})
	}
	st, err := s.payments.RefundRemaining(ctx, settled.ID, reason, true)
	if err != nil {
		return domain.Order{}, err
	}
	return st.Order, nil
}

func (s *Service) transition(ctx context.Context, orderID string, fn func(o *domain.Order) error) (domain.Order, error) {
	return s.repo.Update(ctx, orderID, func(o *domain.Order) (Change, error) {
		from := o.Status
		if err := fn(o); err != nil {
			return Change{}, err
		}
		events, err := s.events(ctx, o, event{domain.EventOrderStatusChanged, domain.StatusChanged(o, from)})
		return Change{Events: events}, err
	})
}

type event struct {
	typ     string
	payload any
}

func (s *Service) events(ctx context.Context, o *domain.Order, evs ...event) ([]outbox.Event, error) {
	tp := tracing.Traceparent(ctx)
	out := make([]outbox.Event, 0, len(evs))
	for _, e := range evs {
		ev, err := outbox.NewEvent(domain.AggregateType, o.ID, e.typ, e.payload, tp)
		if err != nil {
			return nil, err
		}
		out = append(out, ev)
	}
	return out, nil
}

// IsCheckoutRejection reports whether err is the customer's to fix rather
// than a failure of the service.
func IsCheckoutRejection(err error) bool {
	return err != nil && !errors.Is(err, context.Canceled) && apperr.KindOf(err) != apperr.KindInternal
}
