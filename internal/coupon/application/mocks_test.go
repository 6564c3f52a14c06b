package application

import (
	"context"

	"github.com/mishimanto/ecommerce/internal/coupon/domain"
)

type mockRepository struct {
	coupons map[string]domain.Coupon
	usages  []domain.Usage
	calls   []string
}

func (m *mockRepository) ByCode(_ context.Context, code string) (domain.Coupon, error) {
	m.calls = append(m.calls, "ByCode")
	c, ok := m.coupons[code]
	if !ok {
		return domain.Coupon{}, domain.ErrNotFound
	}
	return c, nil
}

func (m *mockRepository) CountUsage(_ context.Context, couponID int64) (int, error) {
	m.calls = append(m.calls, "CountUsage")
	n := 0
	for _, u := range m.usages {
		if u.CouponID == couponID {
			n++
		}
	}
	return n, nil
}

func (m *mockRepository) CountUserUsage(_ context.Context, couponID, userID int64) (int, error) {
	m.calls = append(m.calls, "CountUserUsage")
	n := 0
	for _, u := range m.usages {
		if u.CouponID == couponID && u.UserID == userID {
			n++
		}
	}
	return n, nil
}
