package application

import (
	"context"
	"sync"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mishimanto/ecommerce/internal/inventory/domain"
)

// mapLedger is a conditional-decrement ledger over a map.
type mapLedger struct {
	mu    sync.Mutex
	stock map[domain.Key]int
}

func (l *mapLedger) Reserve(_ context.Context, k domain.Key, qty int) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.stock[k] < qty {
		return domain.ErrInsufficientStock
	}
	l.stock[k] -= qty
	return nil
}

func (l *mapLedger) Release(_ context.Context, k domain.Key, qty int) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.stock[k] += qty
	return nil
}

func (l *mapLedger) Available(_ context.Context, k domain.Key) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.stock[k], nil
}

var (
	keyA = domain.Key{ProductID: 1}
	keyB = domain.Key{ProductID: 2, VariantID: 9}
)

func TestReserveAllIsAllOrNothing(t *testing.T) {
	ledger := &mapLedger{stock: map[domain.Key]int{keyA: 5, keyB: 1}}
	svc := NewService(ledger)

	err := svc.ReserveAll(context.Background(), []domain.Line{{Key: keyA, Quantity: 2}, {Key: keyB, Quantity: 2}})
	require.ErrorIs(t, err, domain.ErrInsufficientStock)
	assert.Contains(t, err.Error(), keyB.String())

	assert.Equal(t, 5, ledger.stock[keyA])
	assert.Equal(t, 1, ledger.stock[keyB])
}

func TestReserveAllMergesDuplicateLines(t *testing.T) {
	ledger := &mapLedger{stock: map[domain.Key]int{keyA: 3}}
	svc := NewService(ledger)

	err := svc.ReserveAll(context.Background(), []domain.Line{{Key: keyA, Quantity: 2}, {Key: keyA, Quantity: 2}})
	require.ErrorIs(t, err, domain.ErrInsufficientStock)
	assert.Equal(t, 3, ledger.stock[keyA])

	require.NoError(t, svc.ReserveAll(context.Background(), []domain.Line{{Key: keyA, Quantity: 1}, {Key: keyA, Quantity: 2}}))
	assert.Equal(t, 0, ledger.stock[keyA])
}

func TestReserveAllRejectsNonPositiveQuantity(t *testing.T) {
	svc := NewService(&mapLedger{stock: map[domain.Key]int{keyA: 3}})
	err := svc.ReserveAll(context.Background(), []domain.Line{{Key: keyA, Quantity: 0}})
	assert.ErrorIs(t, err, domain.ErrInvalidQuantity)
}

func TestReleaseAllRestoresStock(t *testing.T) {
	ledger := &mapLedger{stock: map[domain.Key]int{keyA: 5}}
	svc := NewService(ledger)
	lines := []domain.Line{{Key: keyA, Quantity: 2}}

	require.NoError(t, svc.ReserveAll(context.Background(), lines))
	require.NoError(t, svc.ReleaseAll(context.Background(), lines))
	n, err := svc.Available(context.Background(), keyA)
	require.NoError(t, err)
	assert.Equal(t, 5, n)
}

func TestStockNeverNegativeUnderConcurrentReserves(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 50
	properties := gopter.NewProperties(parameters)

	properties.Property("successful reservations never exceed starting stock", prop.ForAll(
		func(start int, qtys []int) bool {
			ledger := &mapLedger{stock: map[domain.Key]int{keyA: start}}
			svc := NewService(ledger)

			var wg sync.WaitGroup
			var mu sync.Mutex
			reserved := 0
			for _, q := range qtys {
				wg.Add(1)
				go func(q int) {
					defer wg.Done()
					if svc.ReserveAll(context.Background(), []domain.Line{{Key: keyA, Quantity: q}}) == nil {
						mu.Lock()
						reserved += q
						mu.Unlock()
					}
				}(q)
			}
			wg.Wait()
			left := ledger.stock[keyA]
			return left >= 0 && reserved <= start && left == start-reserved
		},
		gen.IntRange(0, 20),
		gen.SliceOf(gen.IntRange(1, 5)),
	))

	properties.TestingRun(t)
}

func TestNormalizeSortsByKey(t *testing.T) {
	lines := domain.Normalize([]domain.Line{{Key: keyB, Quantity: 1}, {Key: keyA, Quantity: 1}, {Key: keyB, Quantity: 2}})
	require.Len(t, lines, 2)
	assert.Equal(t, keyA, lines[0].Key)
	assert.Equal(t, 3, lines[1].Quantity)
}
