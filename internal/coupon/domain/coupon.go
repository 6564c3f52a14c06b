package domain

import (
	"slices"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/mishimanto/ecommerce/pkg/apperr"
	"github.com/mishimanto/ecommerce/pkg/money"
)

type Type string

const (
	TypePercentage Type = "percentage"
	TypeFixed      Type = "fixed"
)

type Scope string

const (
	ScopeAll        Scope = "all"
	ScopeProducts   Scope = "products"
	ScopeCategories Scope = "categories"
)

var (
	ErrNotFound          = apperr.Validation("invalid_coupon", "invalid coupon code")
	ErrInactive          = apperr.Validation("coupon_inactive", "coupon is not active")
	ErrUsageLimitReached = apperr.Validation("coupon_usage_limit", "coupon usage limit reached")
	ErrUserLimitReached  = apperr.Validation("coupon_user_limit", "coupon already used the maximum number of times")
	ErrMinimumNotMet     = apperr.Validation("coupon_min_order", "order does not meet the coupon minimum")
	ErrNotEligible       = apperr.Validation("coupon_not_eligible", "coupon is not available for this customer")
	ErrNotApplicable     = apperr.Validation("coupon_not_applicable", "coupon does not apply to items in the cart")

	// ErrExhausted is raised at commit when the ledger filled up after the
	// coupon was evaluated.
	ErrExhausted = apperr.Conflict("coupon_exhausted", "coupon limit reached")
)

type Coupon struct {
	ID               int64
	Code             string
	Description      string
	Type             Type
	Value            decimal.Decimal
	MinOrderCents    int64
	MaxDiscountCents int64 // 0 means uncapped
	UsageLimit       int   // 0 means unlimited
	PerUserLimit     int   // 0 means unlimited
	StartsAt         *time.Time
	ExpiresAt        *time.Time
	Active           bool
	Scope            Scope
	ProductIDs       []int64
	CategoryIDs      []int64
	AllowedUserIDs   []int64
}

// Usage is one row of the append-only usage ledger.
type Usage struct {
	CouponID      int64     `json:"coupon_id"`
	OrderID       string    `json:"order_id"`
	UserID        int64     `json:"user_id"`
	DiscountCents int64     `json:"discount_cents"`
	UsedAt        time.Time `json:"used_at"`
}

func NormalizeCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

func (c Coupon) ActiveAt(now time.Time) bool {
	if !c.Active {
		return false
	}
	if c.StartsAt != nil && now.Before(*c.StartsAt) {
		return false
	}
	if c.ExpiresAt != nil && now.After(*c.ExpiresAt) {
		return false
	}
	return true
}

// CheckLimits compares ledger counts against the configured limits.
// userUses is ignored when userID is 0.
func (c Coupon) CheckLimits(totalUses, userUses int, userID int64) error {
	if c.UsageLimit > 0 && totalUses >= c.UsageLimit {
		return ErrUsageLimitReached
	}
	if userID != 0 && c.PerUserLimit > 0 && userUses >= c.PerUserLimit {
		return ErrUserLimitReached
	}
	return nil
}

// Allows reports whether userID may use the coupon. Anonymous callers never
// pass a non-empty allow-list.
func (c Coupon) Allows(userID int64) bool {
	if len(c.AllowedUserIDs) == 0 {
		return true
	}
	return userID != 0 && slices.Contains(c.AllowedUserIDs, userID)
}

func (c Coupon) AppliesTo(productID, categoryID int64) bool {
	switch c.Scope {
	case ScopeProducts:
		return slices.Contains(c.ProductIDs, productID)
	case ScopeCategories:
		return categoryID != 0 && slices.Contains(c.CategoryIDs, categoryID)
	default:
		return true
	}
}

// Discount computes the discount on base, clamped to [0, min(cap, base)]
// and rounded half-up to cents.
func (c Coupon) Discount(baseCents int64) int64 {
	if baseCents <= 0 {
		return 0
	}
	var d int64
	switch c.Type {
	case TypePercentage:
		d = money.Percent(baseCents, c.Value)
	case TypeFixed:
		d = money.FromDecimal(c.Value)
	}
	limit := baseCents
	if c.MaxDiscountCents > 0 && c.MaxDiscountCents < limit {
		limit = c.MaxDiscountCents
	}
	return max(0, min(d, limit))
}
