// Package pricing computes order totals. Every total in the system comes
// from Engine.Quote so carts and orders agree on the arithmetic.
package pricing

import (
	"github.com/shopspring/decimal"

	"github.com/mishimanto/ecommerce/pkg/apperr"
	"github.com/mishimanto/ecommerce/pkg/money"
)

type Config struct {
	TaxRate               decimal.Decimal
	ShippingCents         int64
	FreeShippingOverCents int64 // 0 disables free shipping
	Currency              string
}

func DefaultConfig() Config {
	return Config{
		TaxRate:               decimal.RequireFromString("0.05"),
		ShippingCents:         1000,
		FreeShippingOverCents: 10000,
		Currency:              "USD",
	}
}

type Line struct {
	UnitPriceCents int64
	Quantity       int
}

var ErrTotalsMismatch = apperr.New(apperr.KindInternal, "totals_mismatch", "quoted totals do not add up")

type Totals struct {
	SubtotalCents int64  `json:"subtotal_cents"`
	DiscountCents int64  `json:"discount_cents"`
	ShippingCents int64  `json:"shipping_cents"`
	TaxCents      int64  `json:"tax_cents"`
	TotalCents    int64  `json:"total_cents"`
	Currency      string `json:"currency"`
}

// Check verifies total = subtotal - discount + shipping + tax.
func (t Totals) Check() error {
	want := t.SubtotalCents - t.DiscountCents + t.ShippingCents + t.TaxCents
	if t.TotalCents != want {
		return ErrTotalsMismatch.Withf("total %d, components %d", t.TotalCents, want)
	}
	if t.DiscountCents < 0 || t.DiscountCents > t.SubtotalCents {
		return ErrTotalsMismatch.Withf("discount %d outside [0, %d]", t.DiscountCents, t.SubtotalCents)
	}
	return nil
}

type Engine struct {
	cfg Config
}

func NewEngine(cfg Config) *Engine {
	if cfg.Currency == "" {
		cfg.Currency = "USD"
	}
	return &Engine{cfg: cfg}
}

func (e *Engine) Config() Config { return e.cfg }

// Quote applies the discount to the subtotal first, then taxes the
// discounted subtotal plus shipping. Shipping eligibility is judged on the
// undiscounted subtotal.
func (e *Engine) Quote(lines []Line, discountCents int64) Totals {
	var subtotal int64
	for _, l := range lines {
		subtotal += l.UnitPriceCents * int64(l.Quantity)
	}
	discount := max(0, min(discountCents, subtotal))

	shipping := e.cfg.ShippingCents
	if subtotal == 0 || (e.cfg.FreeShippingOverCents > 0 && subtotal >= e.cfg.FreeShippingOverCents) {
		shipping = 0
	}
	tax := money.Mul(subtotal-discount+shipping, e.cfg.TaxRate)

	return Totals{
		SubtotalCents: subtotal,
		DiscountCents: discount,
		ShippingCents: shipping,
		TaxCents:      tax,
		TotalCents:    subtotal - discount + shipping + tax,
		Currency:      e.cfg.Currency,
	}
}
