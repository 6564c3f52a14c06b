package application

import (
	"context"
	"errors"

	"github.com/mishimanto/ecommerce/internal/cart/domain"
	catdomain "github.com/mishimanto/ecommerce/internal/catalog/domain"
	couponapp "github.com/mishimanto/ecommerce/internal/coupon/application"
)

var ErrCacheMiss = errors.New("cache miss")

type Repository interface {
	// Get returns domain.ErrNotFound when owner has no cart yet.
	Get(ctx context.Context, owner domain.Owner) (*domain.Cart, error)
	Save(ctx context.Context, c *domain.Cart) error
	Delete(ctx context.Context, cartID string) error
}

type Cache interface {
	Get(ctx context.Context, owner domain.Owner) (*domain.Cart, error)
	Set(ctx context.Context, c *domain.Cart) error
	Delete(ctx context.Context, owner domain.Owner) error
}

type Catalog interface {
	Product(ctx context.Context, productID, variantID int64) (catdomain.Product, error)
}

type Coupons interface {
	Evaluate(ctx context.Context, code string, req couponapp.Request) (couponapp.Result, error)
}
