package domain

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func pct(v string) Coupon {
	return Coupon{Type: TypePercentage, Value: decimal.RequireFromString(v), Active: true, Scope: ScopeAll}
}

func fixed(v string) Coupon {
	return Coupon{Type: TypeFixed, Value: decimal.RequireFromString(v), Active: true, Scope: ScopeAll}
}

func TestDiscount(t *testing.T) {
	cases := []struct {
		name string
		c    Coupon
		base int64
		want int64
	}{
		{"ten percent", pct("10"), 2000, 200},
		{"rounds half up", pct("12.5"), 25, 3},
		{"capped", func() Coupon { c := pct("50"); c.MaxDiscountCents = 500; return c }(), 2000, 500},
		{"fixed", fixed("5.00"), 2000, 500},
		{"fixed never exceeds base", fixed("50.00"), 2000, 2000},
		{"negative value clamps to zero", fixed("-3"), 2000, 0},
		{"empty base", pct("10"), 0, 0},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, tc.c.Discount(tc.base))
		})
	}
}

func TestActiveAt(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	start := now.Add(-time.Hour)
	end := now.Add(time.Hour)

	c := pct("10")
	c.StartsAt, c.ExpiresAt = &start, &end
	assert.True(t, c.ActiveAt(now))
	assert.False(t, c.ActiveAt(end.Add(time.Second)))
	assert.False(t, c.ActiveAt(start.Add(-time.Second)))

	c.Active = false
	assert.False(t, c.ActiveAt(now))
}

func TestCheckLimits(t *testing.T) {
	c := pct("10")
	c.UsageLimit, c.PerUserLimit = 10, 1

	assert.NoError(t, c.CheckLimits(0, 0, 7))
	assert.ErrorIs(t, c.CheckLimits(10, 0, 7), ErrUsageLimitReached)
	assert.ErrorIs(t, c.CheckLimits(3, 1, 7), ErrUserLimitReached)
	assert.NoError(t, c.CheckLimits(3, 1, 0), "anonymous callers skip the per-user check")
}

func TestScopeAndAllowList(t *testing.T) {
	c := pct("10")
	c.Scope, c.CategoryIDs = ScopeCategories, []int64{4}
	assert.True(t, c.AppliesTo(1, 4))
	assert.False(t, c.AppliesTo(1, 5))

	c.Scope, c.ProductIDs = ScopeProducts, []int64{1}
	assert.True(t, c.AppliesTo(1, 0))
	assert.False(t, c.AppliesTo(2, 4))

	assert.True(t, c.Allows(0))
	c.AllowedUserIDs = []int64{9}
	assert.True(t, c.Allows(9))
	assert.False(t, c.Allows(8))
	assert.False(t, c.Allows(0))
}

func TestNormalizeCode(t *testing.T) {
	assert.Equal(t, "SAVE10", NormalizeCode("  save10 "))
}
