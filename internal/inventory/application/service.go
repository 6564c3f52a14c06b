package application

import (
	"context"
	"errors"
	"fmt"

	"github.com/mishimanto/ecommerce/internal/inventory/domain"
)

type Service struct {
	ledger Ledger
}

func NewService(ledger Ledger) *Service {
	return &Service{ledger: ledger}
}

// ReserveAll reserves every line or none of them. Lines already reserved
// when a later one fails are released before returning, so callers without
// a transaction to roll back stay consistent too.
func (s *Service) ReserveAll(ctx context.Context, lines []domain.Line) error {
	lines = domain.Normalize(lines)
	for i, l := range lines {
		if l.Quantity <= 0 {
			return s.undo(ctx, lines[:i], domain.ErrInvalidQuantity.Withf("%s", l.Key))
		}
		if err := s.ledger.Reserve(ctx, l.Key, l.Quantity); err != nil {
			if errors.Is(err, domain.ErrInsufficientStock) {
				err = domain.ErrInsufficientStock.Withf("%s", l.Key)
			}
			return s.undo(ctx, lines[:i], err)
		}
	}
	return nil
}

func (s *Service) ReleaseAll(ctx context.Context, lines []domain.Line) error {
	for _, l := range domain.Normalize(lines) {
		if l.Quantity <= 0 {
			continue
		}
		if err := s.ledger.Release(ctx, l.Key, l.Quantity); err != nil {
			return fmt.Errorf("release %s: %w", l.Key, err)
		}
	}
	return nil
}

func (s *Service) Available(ctx context.Context, key domain.Key) (int, error) {
	return s.ledger.Available(ctx, key)
}

func (s *Service) undo(ctx context.Context, reserved []domain.Line, cause error) error {
	for _, l := range reserved {
		if err := s.ledger.Release(ctx, l.Key, l.Quantity); err != nil {
			return errors.Join(cause, fmt.Errorf("undo reservation %s: %w", l.Key, err))
		}
	}
	return cause
}
