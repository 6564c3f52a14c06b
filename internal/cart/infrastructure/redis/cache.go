package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand/v2"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/mishimanto/ecommerce/internal/cart/application"
	"github.com/mishimanto/ecommerce/internal/cart/domain"
)

// Cache is a read-through copy of carts keyed by owner. Entries expire
// after the base TTL plus up to five minutes of jitter so a burst of carts
// written together does not expire together.
type Cache struct {
	rdb     redis.Cmdable
	baseTTL time.Duration
}

func NewCache(rdb redis.Cmdable) *Cache {
	return &Cache{rdb: rdb, baseTTL: 15 * time.Minute}
}

func (c *Cache) Get(ctx context.Context, owner domain.Owner) (*domain.Cart, error) {
	data, err := c.rdb.Get(ctx, key(owner)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, application.ErrCacheMiss
	}
	if err != nil {
		return nil, fmt.Errorf("redis get: %w", err)
	}
	var cart domain.Cart
	if err := json.Unmarshal(data, &cart); err != nil {
		return nil, fmt.Errorf("unmarshal cart: %w", err)
	}
	return &cart, nil
}

func (c *Cache) Set(ctx context.Context, cart *domain.Cart) error {
	data, err := json.Marshal(cart)
	if err != nil {
		return fmt.Errorf("marshal cart: %w", err)
	}
	ttl := c.baseTTL + time.Duration(rand.IntN(5))*time.Minute
	if err := c.rdb.Set(ctx, key(cart.Owner), data, ttl).Err(); err != nil {
		return fmt.Errorf("redis set: %w", err)
	}
	return nil
}

func (c *Cache) Delete(ctx context.Context, owner domain.Owner) error {
	if err := c.rdb.Del(ctx, key(owner)).Err(); err != nil {
		return fmt.Errorf("redis del: %w", err)
	}
	return nil
}

func key(owner domain.Owner) string {
	return "cart:" + owner.String()
}
