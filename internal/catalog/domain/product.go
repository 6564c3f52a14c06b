package domain

import (
	invdomain "github.com/mishimanto/ecommerce/internal/inventory/domain"
	"github.com/mishimanto/ecommerce/pkg/apperr"
)

type Status string

const (
	StatusActive   Status = "active"
	StatusInactive Status = "inactive"
	StatusDraft    Status = "draft"
)

var (
	ErrNotFound    = apperr.NotFound("product_not_found", "product not found")
	ErrUnavailable = apperr.Validation("product_unavailable", "product is not available")
)

// Product is the live catalog view of a sellable unit: a base product or
// one of its variants.
type Product struct {
	ID          int64
	VariantID   int64
	Name        string
	VariantName string
	SKU         string
	CategoryID  int64
	PriceCents  int64
	Stock       int
	Status      Status
}

func (p Product) Key() invdomain.Key {
	return invdomain.Key{ProductID: p.ID, VariantID: p.VariantID}
}

func (p Product) Sellable() bool { return p.Status == StatusActive }
