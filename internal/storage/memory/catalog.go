package memory

import (
	"context"

	catdomain "github.com/mishimanto/ecommerce/internal/catalog/domain"
	invdomain "github.com/mishimanto/ecommerce/internal/inventory/domain"
)

// Catalog implements the catalog reader.
type Catalog struct{ s *Store }

func (s *Store) Catalog() Catalog { return Catalog{s} }

func (c Catalog) Product(_ context.Context, productID, variantID int64) (catdomain.Product, error) {
	c.s.mu.Lock()
	defer c.s.mu.Unlock()
	p, ok := c.s.products[invdomain.Key{ProductID: productID, VariantID: variantID}]
	if !ok {
		return catdomain.Product{}, catdomain.ErrNotFound
	}
	return p, nil
}

// ledger mutates stock; callers hold mu.
type ledger struct{ s *Store }

func (l ledger) Reserve(_ context.Context, key invdomain.Key, qty int) error {
	if qty <= 0 {
		return invdomain.ErrInvalidQuantity
	}
	p, ok := l.s.products[key]
	if !ok || p.Stock < qty {
		return invdomain.ErrInsufficientStock
	}
	p.Stock -= qty
	l.s.products[key] = p
	return nil
}

func (l ledger) Release(_ context.Context, key invdomain.Key, qty int) error {
	if qty <= 0 {
		return invdomain.ErrInvalidQuantity
	}
	p, ok := l.s.products[key]
	if !ok {
		return invdomain.ErrInsufficientStock.Withf("%s no longer exists", key)
	}
	p.Stock += qty
	l.s.products[key] = p
	return nil
}

func (l ledger) Available(_ context.Context, key invdomain.Key) (int, error) {
	return l.s.products[key].Stock, nil
}

// Ledger is the inventory ledger for callers outside a checkout.
type Ledger struct{ s *Store }

func (s *Store) Ledger() Ledger { return Ledger{s} }

func (l Ledger) Reserve(ctx context.Context, key invdomain.Key, qty int) error {
	l.s.mu.Lock()
	defer l.s.mu.Unlock()
	return ledger(l).Reserve(ctx, key, qty)
}

func (l Ledger) Release(ctx context.Context, key invdomain.Key, qty int) error {
	l.s.mu.Lock()
	defer l.s.mu.Unlock()
	return ledger(l).Release(ctx, key, qty)
}

func (l Ledger) Available(ctx context.Context, key invdomain.Key) (int, error) {
	l.s.mu.Lock()
	defer l.s.mu.Unlock()
	return ledger(l).Available(ctx, key)
}
