package application

import (
	"context"
	"errors"
	"time"

	"github.com/mishimanto/ecommerce/internal/coupon/domain"
)

type Repository interface {
	// ByCode returns domain.ErrNotFound for unknown codes.
	ByCode(ctx context.Context, code string) (domain.Coupon, error)
	CountUsage(ctx context.Context, couponID int64) (int, error)
	CountUserUsage(ctx context.Context, couponID, userID int64) (int, error)
}

type Line struct {
	ProductID   int64
	CategoryID  int64
	AmountCents int64
}

type Request struct {
	UserID        int64 // 0 for anonymous carts
	SubtotalCents int64
	Lines         []Line
}

type Result struct {
	Coupon        domain.Coupon
	BaseCents     int64
	DiscountCents int64
}

type Evaluator struct {
	repo Repository
	now  func() time.Time
}

func NewEvaluator(repo Repository, now func() time.Time) *Evaluator {
	if now == nil {
		now = time.Now
	}
	return &Evaluator{repo: repo, now: now}
}

// Evaluate runs the coupon rules in a fixed order and stops at the first
// failing one. Usage counts come from the usage ledger.
func (e *Evaluator) Evaluate(ctx context.Context, code string, req Request) (Result, error) {
	code = domain.NormalizeCode(code)
	if code == "" {
		return Result{}, domain.ErrNotFound
	}
	c, err := e.repo.ByCode(ctx, code)
	if err != nil {
		return Result{}, err
	}
	if !c.ActiveAt(e.now()) {
		return Result{}, domain.ErrInactive
	}

	total, err := e.repo.CountUsage(ctx, c.ID)
	if err != nil {
		return Result{}, err
	}
	if err := c.CheckLimits(total, 0, 0); err != nil {
		return Result{}, err
	}
	if req.UserID != 0 {
		mine, err := e.repo.CountUserUsage(ctx, c.ID, req.UserID)
		if err != nil {
			return Result{}, err
		}
		if err := c.CheckLimits(total, mine, req.UserID); err != nil {
			return Result{}, err
		}
	}

	if req.SubtotalCents < c.MinOrderCents {
		return Result{}, domain.ErrMinimumNotMet.Withf("minimum %d", c.MinOrderCents)
	}
	if !c.Allows(req.UserID) {
		return Result{}, domain.ErrNotEligible
	}

	var base int64
	for _, l := range req.Lines {
		if c.AppliesTo(l.ProductID, l.CategoryID) {
			base += l.AmountCents
		}
	}
	if base == 0 {
		return Result{}, domain.ErrNotApplicable
	}
	discount := c.Discount(base)
	if discount == 0 {
		return Result{}, domain.ErrNotApplicable
	}
	return Result{Coupon: c, BaseCents: base, DiscountCents: discount}, nil
}

// IsRuleFailure reports whether err is a coupon rule rejection rather than
// an infrastructure failure.
func IsRuleFailure(err error) bool {
	for _, target := range []error{
		domain.ErrNotFound, domain.ErrInactive, domain.ErrUsageLimitReached, domain.ErrUserLimitReached,
		domain.ErrMinimumNotMet, domain.ErrNotEligible, domain.ErrNotApplicable,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}
