package memory

import (
	"cmp"
	"context"
	"encoding/json"
	"slices"
	"time"

	"github.com/google/uuid"

	cartdomain "github.com/mishimanto/ecommerce/internal/cart/domain"
	coupondomain "github.com/mishimanto/ecommerce/internal/coupon/domain"
	invapp "github.com/mishimanto/ecommerce/internal/inventory/application"
	orderapp "github.com/mishimanto/ecommerce/internal/order/application"
	orderdomain "github.com/mishimanto/ecommerce/internal/order/domain"
	payapp "github.com/mishimanto/ecommerce/internal/payment/application"
	paydomain "github.com/mishimanto/ecommerce/internal/payment/domain"
	shipapp "github.com/mishimanto/ecommerce/internal/shipment/application"
	"github.com/mishimanto/ecommerce/internal/shipment/courier"
	shipdomain "github.com/mishimanto/ecommerce/internal/shipment/domain"
)

// Carts implements the cart repository.
type Carts struct{ s *Store }

func (s *Store) Carts() Carts { return Carts{s} }

func (c Carts) Get(_ context.Context, owner cartdomain.Owner) (*cartdomain.Cart, error) {
	c.s.mu.Lock()
	defer c.s.mu.Unlock()
	cart, ok := c.s.carts[owner.String()]
	if !ok {
		return nil, cartdomain.ErrNotFound
	}
	return cloneCart(cart), nil
}

func (c Carts) Save(_ context.Context, cart *cartdomain.Cart) error {
	c.s.mu.Lock()
	defer c.s.mu.Unlock()
	c.s.carts[cart.Owner.String()] = *cloneCart(*cart)
	return nil
}

func (c Carts) Delete(_ context.Context, cartID string) error {
	c.s.mu.Lock()
	defer c.s.mu.Unlock()
	for k, cart := range c.s.carts {
		if cart.ID == cartID {
			delete(c.s.carts, k)
		}
	}
	return nil
}

// clearCart empties the cart like a checkout does; callers hold mu.
func (s *Store) clearCart(cartID string) {
	for k, cart := range s.carts {
		if cart.ID == cartID {
			cart.Items, cart.CouponCode, cart.UpdatedAt = nil, "", time.Now().UTC()
			s.carts[k] = cart
		}
	}
}

// Coupons implements the coupon repository.
type Coupons struct{ s *Store }

func (s *Store) Coupons() Coupons { return Coupons{s} }

func (c Coupons) ByCode(_ context.Context, code string) (coupondomain.Coupon, error) {
	c.s.mu.Lock()
	defer c.s.mu.Unlock()
	cp, ok := c.s.coupons[coupondomain.NormalizeCode(code)]
	if !ok {
		return coupondomain.Coupon{}, coupondomain.ErrNotFound
	}
	return cp, nil
}

func (c Coupons) CountUsage(_ context.Context, couponID int64) (int, error) {
	c.s.mu.Lock()
	defer c.s.mu.Unlock()
	return c.s.countUsage(couponID, 0), nil
}

func (c Coupons) CountUserUsage(_ context.Context, couponID, userID int64) (int, error) {
	c.s.mu.Lock()
	defer c.s.mu.Unlock()
	return c.s.countUsage(couponID, userID), nil
}

func (s *Store) countUsage(couponID, userID int64) int {
	n := 0
	for _, u := range s.usages {
		if u.CouponID == couponID && (userID == 0 || u.UserID == userID) {
			n++
		}
	}
	return n
}

func (s *Store) redeem(code string, u coupondomain.Usage) error {
	c, ok := s.coupons[coupondomain.NormalizeCode(code)]
	if !ok {
		return coupondomain.ErrNotFound
	}
	if err := c.CheckLimits(s.countUsage(c.ID, 0), s.countUsage(c.ID, u.UserID), u.UserID); err != nil {
		return coupondomain.ErrExhausted.Wrap(err)
	}
	u.CouponID = c.ID
	s.usages = append(s.usages, u)
	return nil
}

// Addresses implements the address book and the courier recipient lookup.
type Addresses struct{ s *Store }

func (s *Store) Addresses() Addresses { return Addresses{s} }

func (a Addresses) Owns(_ context.Context, userID, addressID int64) (bool, error) {
	a.s.mu.Lock()
	defer a.s.mu.Unlock()
	addr, ok := a.s.addresses[addressID]
	return ok && addr.UserID == userID, nil
}

func (a Addresses) Recipient(_ context.Context, addressID int64) (courier.Recipient, error) {
	a.s.mu.Lock()
	defer a.s.mu.Unlock()
	addr, ok := a.s.addresses[addressID]
	if !ok {
		return courier.Recipient{}, courier.ErrNoRecipient
	}
	return addr.Recipient, nil
}

// Orders implements the order repository.
type Orders struct{ s *Store }

func (s *Store) Orders() Orders { return Orders{s} }

// Place applies a checkout atomically: nothing is written unless every
// line is reserved and the coupon still has room.
func (r Orders) Place(ctx context.Context, p orderapp.Placement) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	o := p.Order
	if p.Coupon != nil {
		c, ok := r.s.coupons[coupondomain.NormalizeCode(p.Coupon.Code)]
		if !ok {
			return coupondomain.ErrNotFound
		}
		if err := c.CheckLimits(r.s.countUsage(c.ID, 0), r.s.countUsage(c.ID, p.Coupon.UserID), p.Coupon.UserID); err != nil {
			return coupondomain.ErrExhausted.Wrap(err)
		}
	}
	if err := invapp.NewService(ledger{r.s}).ReserveAll(ctx, o.StockLines()); err != nil {
		return err
	}
	if p.Coupon != nil {
		err := r.s.redeem(p.Coupon.Code, coupondomain.Usage{
			OrderID: o.ID, UserID: p.Coupon.UserID, DiscountCents: p.Coupon.DiscountCents, UsedAt: o.CreatedAt,
		})
		if err != nil {
			return err
		}
	}
	r.s.orders[o.ID] = cloneOrder(o)
	r.s.payments[p.Payment.ID] = clonePayment(p.Payment)
	if p.CartID != "" {
		r.s.clearCart(p.CartID)
	}
	r.s.append(p.Events...)
	return nil
}

func (r Orders) Get(_ context.Context, id string) (orderdomain.Order, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	return r.s.order(id)
}

func (s *Store) order(id string) (orderdomain.Order, error) {
	o, ok := s.orders[id]
	if !ok || o.DeletedAt != nil {
		return orderdomain.Order{}, orderdomain.ErrNotFound
	}
	return cloneOrder(o), nil
}

func (r Orders) GetByNumber(_ context.Context, number string) (orderdomain.Order, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, o := range r.s.orders {
		if o.Number == number && o.DeletedAt == nil {
			return cloneOrder(o), nil
		}
	}
	return orderdomain.Order{}, orderdomain.ErrNotFound
}

func (r Orders) ListByUser(_ context.Context, userID int64, limit, offset int) ([]orderdomain.Order, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []orderdomain.Order
	for _, o := range r.s.orders {
		if o.UserID == userID && o.DeletedAt == nil {
			out = append(out, cloneOrder(o))
		}
	}
	slices.SortFunc(out, func(a, b orderdomain.Order) int { return b.CreatedAt.Compare(a.CreatedAt) })
	if offset >= len(out) {
		return []orderdomain.Order{}, nil
	}
	out = out[offset:]
	if limit > 0 && limit < len(out) {
		out = out[:limit]
	}
	return out, nil
}

func (r Orders) Update(ctx context.Context, id string, fn orderapp.UpdateFunc) (orderdomain.Order, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	o, err := r.s.order(id)
	if err != nil {
		return orderdomain.Order{}, err
	}
	ch, err := fn(&o)
	if err != nil {
		return orderdomain.Order{}, err
	}
	if len(ch.Events) == 0 {
		return o, nil
	}
	if len(ch.Release) > 0 {
		if err := invapp.NewService(ledger{r.s}).ReleaseAll(ctx, ch.Release); err != nil {
			return orderdomain.Order{}, err
		}
	}
	r.s.orders[o.ID] = cloneOrder(o)
	r.s.append(ch.Events...)
	return o, nil
}

// Payments implements the payment repository.
type Payments struct{ s *Store }

func (s *Store) Payments() Payments { return Payments{s} }

func (r Payments) Get(_ context.Context, id string) (paydomain.Payment, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	p, ok := r.s.payments[id]
	if !ok {
		return paydomain.Payment{}, paydomain.ErrNotFound
	}
	return clonePayment(p), nil
}

func (r Payments) ListByOrder(_ context.Context, orderID string) ([]paydomain.Payment, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []paydomain.Payment
	for _, p := range r.s.payments {
		if p.OrderID == orderID {
			out = append(out, clonePayment(p))
		}
	}
	slices.SortFunc(out, func(a, b paydomain.Payment) int { return a.CreatedAt.Compare(b.CreatedAt) })
	return out, nil
}

func (r Payments) Order(_ context.Context, orderID string) (orderdomain.Order, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	return r.s.order(orderID)
}

func (r Payments) Create(_ context.Context, p paydomain.Payment, guard payapp.GuardFunc) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	o, err := r.s.order(p.OrderID)
	if err != nil {
		return err
	}
	if err := guard(&o); err != nil {
		return err
	}
	r.s.orders[o.ID] = cloneOrder(o)
	r.s.payments[p.ID] = clonePayment(p)
	return nil
}

func (r Payments) Attach(_ context.Context, id, gatewayRef string, raw json.RawMessage) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	p, ok := r.s.payments[id]
	if !ok {
		return paydomain.ErrNotFound
	}
	p.GatewayReference, p.UpdatedAt = gatewayRef, time.Now().UTC()
	if raw != nil {
		p.GatewayResponse = slices.Clone(raw)
	}
	r.s.payments[id] = p
	return nil
}

// Mutate resolves ref to the newest matching attempt.
func (r Payments) Mutate(_ context.Context, ref paydomain.Reference, fn payapp.MutateFunc) (paydomain.Payment, orderdomain.Order, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	var (
		p     paydomain.Payment
		found bool
	)
	if ref.Value != "" {
		for _, cand := range r.s.payments {
			if ref.Matches(&cand) && (!found || cand.CreatedAt.After(p.CreatedAt)) {
				p, found = cand, true
			}
		}
	}
	if !found {
		return paydomain.Payment{}, orderdomain.Order{}, paydomain.ErrNotFound
	}
	p = clonePayment(p)
	o, err := r.s.order(p.OrderID)
	if err != nil {
		return paydomain.Payment{}, orderdomain.Order{}, err
	}
	events, err := fn(&p, &o)
	if err != nil {
		return paydomain.Payment{}, orderdomain.Order{}, err
	}
	if len(events) == 0 {
		return p, o, nil
	}
	r.s.payments[p.ID] = clonePayment(p)
	r.s.orders[o.ID] = cloneOrder(o)
	r.s.append(events...)
	return p, o, nil
}

// Shipments implements the shipment repository.
type Shipments struct{ s *Store }

func (s *Store) Shipments() Shipments { return Shipments{s} }

func (r Shipments) Get(_ context.Context, id string) (shipdomain.Shipment, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	sh, ok := r.s.shipments[id]
	if !ok {
		return shipdomain.Shipment{}, shipdomain.ErrNotFound
	}
	return sh, nil
}

func (r Shipments) ListByOrder(_ context.Context, orderID string) ([]shipdomain.Shipment, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []shipdomain.Shipment
	for _, sh := range r.s.shipments {
		if sh.OrderID == orderID {
			out = append(out, sh)
		}
	}
	slices.SortFunc(out, func(a, b shipdomain.Shipment) int {
		return cmp.Or(a.CreatedAt.Compare(b.CreatedAt), cmp.Compare(a.ID, b.ID))
	})
	return out, nil
}

func (r Shipments) Order(_ context.Context, orderID string) (orderdomain.Order, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	return r.s.order(orderID)
}

func (r Shipments) Create(_ context.Context, sh shipdomain.Shipment, fn shipapp.CreateFunc) (orderdomain.Order, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	o, err := r.s.order(sh.OrderID)
	if err != nil {
		return orderdomain.Order{}, err
	}
	if _, dup := r.s.shipmentByTracking(sh.Courier, sh.TrackingID); dup {
		return orderdomain.Order{}, shipdomain.ErrDuplicateTracking
	}
	events, err := fn(&o)
	if err != nil {
		return orderdomain.Order{}, err
	}
	if sh.ID == "" {
		sh.ID = uuid.NewString()
	}
	r.s.shipments[sh.ID] = sh
	r.s.orders[o.ID] = cloneOrder(o)
	r.s.append(events...)
	return o, nil
}

func (s *Store) shipmentByTracking(courierName, trackingID string) (shipdomain.Shipment, bool) {
	for _, sh := range s.shipments {
		if sh.Courier == courierName && sh.TrackingID == trackingID {
			return sh, true
		}
	}
	return shipdomain.Shipment{}, false
}

func (r Shipments) Mutate(_ context.Context, key shipapp.Key, fn shipapp.MutateFunc) (shipdomain.Shipment, orderdomain.Order, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	sh, ok := r.s.shipments[key.ID]
	if key.ID == "" {
		sh, ok = r.s.shipmentByTracking(key.Courier, key.TrackingID)
	}
	if !ok {
		return shipdomain.Shipment{}, orderdomain.Order{}, shipdomain.ErrNotFound
	}
	o, err := r.s.order(sh.OrderID)
	if err != nil {
		return shipdomain.Shipment{}, orderdomain.Order{}, err
	}
	events, err := fn(&sh, &o)
	if err != nil {
		return shipdomain.Shipment{}, orderdomain.Order{}, err
	}
	if len(events) == 0 {
		return sh, o, nil
	}
	r.s.shipments[sh.ID] = sh
	r.s.orders[o.ID] = cloneOrder(o)
	r.s.append(events...)
	return sh, o, nil
}
