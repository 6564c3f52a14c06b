package domain

import (
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	orderdomain "github.com/mishimanto/ecommerce/internal/order/domain"
)

var t0 = time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC)

func TestApplyForwardOnly(t *testing.T) {
	s := New("o-1", "pathao", "C1", t0)

	assert.True(t, s.Apply(StatusInTransit, "On The Way", t0.Add(time.Hour)))
	require.NotNil(t, s.PickedUpAt)
	assert.False(t, s.Apply(StatusPicked, "Picked", t0.Add(2*time.Hour)), "late picked update")
	assert.False(t, s.Apply(StatusInTransit, "On The Way", t0.Add(2*time.Hour)), "duplicate")
	assert.Equal(t, StatusInTransit, s.Status)

	assert.True(t, s.Apply(StatusDelivered, "Delivered", t0.Add(3*time.Hour)))
	require.NotNil(t, s.DeliveredAt)
	assert.False(t, s.Apply(StatusReturned, "Returned", t0.Add(4*time.Hour)), "delivered is terminal")
}

func TestApplyFailedDeliveryCanBeRetried(t *testing.T) {
	s := New("o-1", "redx", "R1", t0)
	require.True(t, s.Apply(StatusOutForDelivery, "out_for_delivery", t0))
	require.True(t, s.Apply(StatusFailed, "delivery_failed", t0))

	assert.False(t, s.Apply(StatusInTransit, "in_transit", t0))
	assert.True(t, s.Apply(StatusOutForDelivery, "out_for_delivery", t0))
	assert.True(t, s.Apply(StatusReturned, "returned", t0))
	assert.True(t, s.Status.Terminal())
}

func TestApplyUnknownStatus(t *testing.T) {
	s := New("o-1", "manual", "M1", t0)
	assert.False(t, s.Apply(Status("teleported"), "", t0))
	assert.Equal(t, StatusPending, s.Status)
}

func TestOrderTarget(t *testing.T) {
	to, ok := OrderTarget(StatusOutForDelivery)
	assert.True(t, ok)
	assert.Equal(t, orderdomain.StatusShipped, to)

	to, ok = OrderTarget(StatusDelivered)
	assert.True(t, ok)
	assert.Equal(t, orderdomain.StatusDelivered, to)

	for _, s := range []Status{StatusPending, StatusFailed, StatusReturned, StatusCancelled} {
		_, ok := OrderTarget(s)
		assert.False(t, ok, s)
	}
}

func TestChainRankNeverDecreases(t *testing.T) {
	all := []Status{StatusPending, StatusPicked, StatusInTransit, StatusOutForDelivery, StatusDelivered,
		StatusFailed, StatusReturned, StatusCancelled}

	properties := gopter.NewProperties(gopter.DefaultTestParameters())
	properties.Property("applied chain statuses only move forward", prop.ForAll(
		func(seq []int) bool {
			s := New("o-1", "manual", "M1", t0)
			best := 0
			for _, i := range seq {
				s.Apply(all[i], "", t0)
				if r, ok := rank[s.Status]; ok {
					if r < best {
						return false
					}
					best = r
				}
				if s.Status.Terminal() && s.Status != StatusDelivered && s.DeliveredAt != nil {
					return false
				}
			}
			return true
		},
		gen.SliceOf(gen.IntRange(0, len(all)-1)),
	))
	properties.TestingRun(t)
}
