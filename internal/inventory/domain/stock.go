package domain

import (
	"cmp"
	"fmt"
	"slices"

	"github.com/mishimanto/ecommerce/pkg/apperr"
)

var (
	ErrInsufficientStock = apperr.Conflict("insufficient_stock", "insufficient stock")
	ErrInvalidQuantity   = apperr.Validation("invalid_quantity", "quantity must be positive")
)

// Key identifies a stock row. VariantID 0 is the base product.
type Key struct {
	ProductID int64 `json:"product_id"`
	VariantID int64 `json:"variant_id,omitempty"`
}

func (k Key) String() string {
	if k.VariantID == 0 {
		return fmt.Sprintf("product:%d", k.ProductID)
	}
	return fmt.Sprintf("product:%d:variant:%d", k.ProductID, k.VariantID)
}

func (k Key) compare(o Key) int {
	if c := cmp.Compare(k.ProductID, o.ProductID); c != 0 {
		return c
	}
	return cmp.Compare(k.VariantID, o.VariantID)
}

type Line struct {
	Key
	Quantity int `json:"quantity"`
}

// Normalize merges lines with the same key and sorts them, giving every
// transaction the same row lock order.
func Normalize(lines []Line) []Line {
	byKey := make(map[Key]int, len(lines))
	for _, l := range lines {
		byKey[l.Key] += l.Quantity
	}
	out := make([]Line, 0, len(byKey))
	for k, q := range byKey {
		out = append(out, Line{Key: k, Quantity: q})
	}
	slices.SortFunc(out, func(a, b Line) int { return a.Key.compare(b.Key) })
	return out
}

type StockReleased struct {
	OrderID string `json:"order_id"`
	Lines   []Line `json:"lines"`
}
