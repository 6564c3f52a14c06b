package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/mishimanto/ecommerce/internal/catalog/domain"
)

type Reader interface {
	Product(ctx context.Context, productID, variantID int64) (domain.Product, error)
}

// Service reads live product data. Reads are idempotent, so a failed read
// is retried once; concurrent reads of the same product share one call.
type Service struct {
	log     *slog.Logger
	reader  Reader
	timeout time.Duration
	group   singleflight.Group
}

func NewService(log *slog.Logger, reader Reader, timeout time.Duration) *Service {
	return &Service{log: log, reader: reader, timeout: timeout}
}

func (s *Service) Product(ctx context.Context, productID, variantID int64) (domain.Product, error) {
	key := fmt.Sprintf("%d:%d", productID, variantID)
	v, err, _ := s.group.Do(key, func() (any, error) {
		return s.read(ctx, productID, variantID)
	})
	if err != nil {
		return domain.Product{}, err
	}
	return v.(domain.Product), nil
}

func (s *Service) read(ctx context.Context, productID, variantID int64) (domain.Product, error) {
	var lastErr error
	for attempt := 0; attempt < 2; attempt++ {
		readCtx, cancel := context.WithTimeout(ctx, s.timeout)
		p, err := s.reader.Product(readCtx, productID, variantID)
		cancel()
		if err == nil {
			return p, nil
		}
		if errors.Is(err, domain.ErrNotFound) || ctx.Err() != nil {
			return domain.Product{}, err
		}
		lastErr = err
		s.log.Warn("catalog read failed", "product_id", productID, "variant_id", variantID, "attempt", attempt+1, "err", err)
	}
	return domain.Product{}, fmt.Errorf("catalog read: %w", lastErr)
}
