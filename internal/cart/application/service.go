package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/mishimanto/ecommerce/internal/cart/domain"
	catdomain "github.com/mishimanto/ecommerce/internal/catalog/domain"
	couponapp "github.com/mishimanto/ecommerce/internal/coupon/application"
	invdomain "github.com/mishimanto/ecommerce/internal/inventory/domain"
	"github.com/mishimanto/ecommerce/internal/pricing"
)

type Service struct {
	log     *slog.Logger
	repo    Repository
	cache   Cache
	catalog Catalog
	coupons Coupons
	pricing *pricing.Engine
	now     func() time.Time
}

func NewService(log *slog.Logger, repo Repository, cache Cache, catalog Catalog, coupons Coupons, engine *pricing.Engine) *Service {
	return &Service{
		log:     log,
		repo:    repo,
		cache:   cache,
		catalog: catalog,
		coupons: coupons,
		pricing: engine,
		now:     func() time.Time { return time.Now().UTC() },
	}
}

type AddItemInput struct {
	ProductID int64 `json:"product_id"`
	VariantID int64 `json:"variant_id,omitempty"`
	Quantity  int   `json:"quantity"`
}

// Summary is a cart with its priced totals. CouponError explains why an
// applied coupon no longer counts; the coupon stays on the cart.
type Summary struct {
	Cart        *domain.Cart   `json:"cart"`
	Totals      pricing.Totals `json:"totals"`
	CouponError string         `json:"coupon_error,omitempty"`
}

// Get returns the owner's cart, or an unsaved empty one.
func (s *Service) Get(ctx context.Context, owner domain.Owner) (*domain.Cart, error) {
	c, err := s.load(ctx, owner)
	if errors.Is(err, domain.ErrNotFound) {
		return domain.New(owner, s.now())
	}
	return c, err
}

func (s *Service) load(ctx context.Context, owner domain.Owner) (*domain.Cart, error) {
	if !owner.Valid() {
		return nil, domain.ErrInvalidOwner
	}
	if s.cache != nil {
		c, err := s.cache.Get(ctx, owner)
		if err == nil {
			return c, nil
		}
		if !errors.Is(err, ErrCacheMiss) {
			s.log.Warn("cart cache read failed", "owner", owner.String(), "err", err)
		}
	}
	c, err := s.repo.Get(ctx, owner)
	if err != nil {
		return nil, err
	}
	if s.cache != nil {
		if err := s.cache.Set(ctx, c); err != nil {
			s.log.Warn("cart cache write failed", "owner", owner.String(), "err", err)
		}
	}
	return c, nil
}

func (s *Service) save(ctx context.Context, c *domain.Cart) error {
	if err := s.repo.Save(ctx, c); err != nil {
		return fmt.Errorf("save cart: %w", err)
	}
	s.Invalidate(ctx, c.Owner)
	return nil
}

// Invalidate drops the cached copy of owner's cart.
func (s *Service) Invalidate(ctx context.Context, owner domain.Owner) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Delete(ctx, owner); err != nil {
		s.log.Warn("cart cache invalidate failed", "owner", owner.String(), "err", err)
	}
}

// AddItem checks the live product and snapshots its current price. Stock
// must cover the resulting line quantity.
func (s *Service) AddItem(ctx context.Context, owner domain.Owner, in AddItemInput) (Summary, error) {
	if in.Quantity < 1 {
		return Summary{}, domain.ErrInvalidQuantity
	}
	c, err := s.Get(ctx, owner)
	if err != nil {
		return Summary{}, err
	}
	want := in.Quantity
	if i, ok := c.Find(in.ProductID, in.VariantID); ok {
		want += c.Items[i].Quantity
	}
	p, err := s.sellable(ctx, in.ProductID, in.VariantID, want)
	if err != nil {
		return Summary{}, err
	}
	c.Add(in.ProductID, in.VariantID, in.Quantity, p.PriceCents, s.now())
	if err := s.save(ctx, c); err != nil {
		return Summary{}, err
	}
	return s.summarize(ctx, c)
}

func (s *Service) UpdateItem(ctx context.Context, owner domain.Owner, itemID string, qty int) (Summary, error) {
	if qty < 1 {
		return Summary{}, domain.ErrInvalidQuantity
	}
	c, err := s.load(ctx, owner)
	if err != nil {
		return Summary{}, err
	}
	it, err := c.Item(itemID)
	if err != nil {
		return Summary{}, err
	}
	p, err := s.sellable(ctx, it.ProductID, it.VariantID, qty)
	if err != nil {
		return Summary{}, err
	}
	if _, err := c.Update(itemID, qty, p.PriceCents, s.now()); err != nil {
		return Summary{}, err
	}
	if err := s.save(ctx, c); err != nil {
		return Summary{}, err
	}
	return s.summarize(ctx, c)
}

func (s *Service) RemoveItem(ctx context.Context, owner domain.Owner, itemID string) (Summary, error) {
	c, err := s.load(ctx, owner)
	if err != nil {
		return Summary{}, err
	}
	if err := c.Remove(itemID, s.now()); err != nil {
		return Summary{}, err
	}
	if err := s.save(ctx, c); err != nil {
		return Summary{}, err
	}
	return s.summarize(ctx, c)
}

func (s *Service) Clear(ctx context.Context, owner domain.Owner) error {
	c, err := s.load(ctx, owner)
	if errors.Is(err, domain.ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	c.Clear(s.now())
	return s.save(ctx, c)
}

// ApplyCoupon stores code on the cart only if it currently evaluates.
func (s *Service) ApplyCoupon(ctx context.Context, owner domain.Owner, code string) (Summary, error) {
	c, err := s.load(ctx, owner)
	if errors.Is(err, domain.ErrNotFound) {
		return Summary{}, domain.ErrEmptyCart
	}
	if err != nil {
		return Summary{}, err
	}
	if c.Empty() {
		return Summary{}, domain.ErrEmptyCart
	}
	req, err := s.couponRequest(ctx, c)
	if err != nil {
		return Summary{}, err
	}
	res, err := s.coupons.Evaluate(ctx, code, req)
	if err != nil {
		return Summary{}, err
	}
	c.CouponCode = res.Coupon.Code
	c.UpdatedAt = s.now()
	if err := s.save(ctx, c); err != nil {
		return Summary{}, err
	}
	return s.summarize(ctx, c)
}

func (s *Service) RemoveCoupon(ctx context.Context, owner domain.Owner) (Summary, error) {
	c, err := s.load(ctx, owner)
	if err != nil {
		return Summary{}, err
	}
	if c.CouponCode != "" {
		c.CouponCode = ""
		c.UpdatedAt = s.now()
		if err := s.save(ctx, c); err != nil {
			return Summary{}, err
		}
	}
	return s.summarize(ctx, c)
}

// Merge moves an anonymous session cart into the user's cart at login.
func (s *Service) Merge(ctx context.Context, sessionToken string, userID int64) (Summary, error) {
	guestOwner := domain.Owner{SessionToken: sessionToken}
	userOwner := domain.Owner{UserID: userID}
	if !guestOwner.Valid() || !userOwner.Valid() {
		return Summary{}, domain.ErrInvalidOwner
	}

	guest, err := s.load(ctx, guestOwner)
	if errors.Is(err, domain.ErrNotFound) {
		return s.Summary(ctx, userOwner)
	}
	if err != nil {
		return Summary{}, err
	}
	user, err := s.Get(ctx, userOwner)
	if err != nil {
		return Summary{}, err
	}
	user.Merge(guest, s.now())
	if err := s.save(ctx, user); err != nil {
		return Summary{}, err
	}
	if err := s.repo.Delete(ctx, guest.ID); err != nil {
		return Summary{}, fmt.Errorf("delete session cart: %w", err)
	}
	s.Invalidate(ctx, guestOwner)
	return s.summarize(ctx, user)
}

func (s *Service) Summary(ctx context.Context, owner domain.Owner) (Summary, error) {
	c, err := s.Get(ctx, owner)
	if err != nil {
		return Summary{}, err
	}
	return s.summarize(ctx, c)
}

func (s *Service) summarize(ctx context.Context, c *domain.Cart) (Summary, error) {
	lines := make([]pricing.Line, 0, len(c.Items))
	for _, it := range c.Items {
		lines = append(lines, pricing.Line{UnitPriceCents: it.UnitPriceCents, Quantity: it.Quantity})
	}
	out := Summary{Cart: c}
	var discount int64
	if c.CouponCode != "" && !c.Empty() {
		req, err := s.couponRequest(ctx, c)
		if err != nil {
			return Summary{}, err
		}
		res, err := s.coupons.Evaluate(ctx, c.CouponCode, req)
		switch {
		case err == nil:
			discount = res.DiscountCents
		case couponapp.IsRuleFailure(err):
			out.CouponError = err.Error()
		default:
			return Summary{}, err
		}
	}
	out.Totals = s.pricing.Quote(lines, discount)
	return out, nil
}

func (s *Service) couponRequest(ctx context.Context, c *domain.Cart) (couponapp.Request, error) {
	req := couponapp.Request{UserID: c.Owner.UserID, SubtotalCents: c.SubtotalCents()}
	for _, it := range c.Items {
		p, err := s.catalog.Product(ctx, it.ProductID, it.VariantID)
		if err != nil && !errors.Is(err, catdomain.ErrNotFound) {
			return couponapp.Request{}, err
		}
		req.Lines = append(req.Lines, couponapp.Line{
			ProductID:   it.ProductID,
			CategoryID:  p.CategoryID,
			AmountCents: it.LineCents(),
		})
	}
	return req, nil
}

func (s *Service) sellable(ctx context.Context, productID, variantID int64, qty int) (catdomain.Product, error) {
	p, err := s.catalog.Product(ctx, productID, variantID)
	if err != nil {
		return catdomain.Product{}, err
	}
	if !p.Sellable() {
		return catdomain.Product{}, catdomain.ErrUnavailable.Withf("%s", p.Key())
	}
	if p.Stock < qty {
		return catdomain.Product{}, invdomain.ErrInsufficientStock.Withf("%s: %d available", p.Key(), p.Stock)
	}
	return p, nil
}
