package application

import (
	"context"
	"sync"

	"github.com/mishimanto/ecommerce/internal/cart/domain"
	catdomain "github.com/mishimanto/ecommerce/internal/catalog/domain"
	coupondomain "github.com/mishimanto/ecommerce/internal/coupon/domain"
)

type mockRepo struct {
	mu    sync.Mutex
	carts map[domain.Owner]*domain.Cart
	saves int
}

func newMockRepo() *mockRepo { return &mockRepo{carts: map[domain.Owner]*domain.Cart{}} }

func clone(c *domain.Cart) *domain.Cart {
	cp := *c
	cp.Items = append([]domain.Item(nil), c.Items...)
	return &cp
}

func (m *mockRepo) Get(_ context.Context, owner domain.Owner) (*domain.Cart, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.carts[owner]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return clone(c), nil
}

func (m *mockRepo) Save(_ context.Context, c *domain.Cart) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.saves++
	m.carts[c.Owner] = clone(c)
	return nil
}

func (m *mockRepo) Delete(_ context.Context, cartID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for k, c := range m.carts {
		if c.ID == cartID {
			delete(m.carts, k)
		}
	}
	return nil
}

type mockCache struct {
	carts   map[domain.Owner]*domain.Cart
	deletes int
}

func (m *mockCache) Get(_ context.Context, owner domain.Owner) (*domain.Cart, error) {
	c, ok := m.carts[owner]
	if !ok {
		return nil, ErrCacheMiss
	}
	return clone(c), nil
}

func (m *mockCache) Set(_ context.Context, c *domain.Cart) error {
	m.carts[c.Owner] = clone(c)
	return nil
}

func (m *mockCache) Delete(_ context.Context, owner domain.Owner) error {
	m.deletes++
	delete(m.carts, owner)
	return nil
}

type mockCatalog struct {
	products map[[2]int64]catdomain.Product
}

func (m *mockCatalog) Product(_ context.Context, productID, variantID int64) (catdomain.Product, error) {
	p, ok := m.products[[2]int64{productID, variantID}]
	if !ok {
		return catdomain.Product{}, catdomain.ErrNotFound
	}
	return p, nil
}

type mockCouponRepo struct {
	coupons map[string]coupondomain.Coupon
	usages  []coupondomain.Usage
}

func (m *mockCouponRepo) ByCode(_ context.Context, code string) (coupondomain.Coupon, error) {
	c, ok := m.coupons[code]
	if !ok {
		return coupondomain.Coupon{}, coupondomain.ErrNotFound
	}
	return c, nil
}

func (m *mockCouponRepo) CountUsage(_ context.Context, id int64) (int, error) {
	n := 0
	for _, u := range m.usages {
		if u.CouponID == id {
			n++
		}
	}
	return n, nil
}

func (m *mockCouponRepo) CountUserUsage(_ context.Context, id, userID int64) (int, error) {
	n := 0
	for _, u := range m.usages {
		if u.CouponID == id && u.UserID == userID {
			n++
		}
	}
	return n, nil
}
