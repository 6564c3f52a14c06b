package domain

import (
	"time"

	"github.com/google/uuid"

	orderdomain "github.com/mishimanto/ecommerce/internal/order/domain"
	"github.com/mishimanto/ecommerce/pkg/apperr"
)

type Status string

const (
	StatusPending        Status = "pending"
	StatusPicked         Status = "picked"
	StatusInTransit      Status = "in_transit"
	StatusOutForDelivery Status = "out_for_delivery"
	StatusDelivered      Status = "delivered"
	StatusFailed         Status = "failed"
	StatusReturned       Status = "returned"
	StatusCancelled      Status = "cancelled"
)

// rank orders the delivery chain. Failed, returned and cancelled are exits.
var rank = map[Status]int{
	StatusPending:        0,
	StatusPicked:         1,
	StatusInTransit:      2,
	StatusOutForDelivery: 3,
	StatusDelivered:      4,
}

var (
	ErrNotFound          = apperr.NotFound("shipment_not_found", "shipment not found")
	ErrUnknownCourier    = apperr.Validation("unknown_courier", "unknown courier")
	ErrUnknownStatus     = apperr.Validation("unknown_courier_status", "courier status is not recognised")
	ErrDuplicateTracking = apperr.Conflict("duplicate_tracking", "tracking id already belongs to a shipment")
	ErrNotShippable      = apperr.Conflict("not_shippable", "order is not ready to ship")
	ErrTrackingRequired  = apperr.Validation("tracking_required", "tracking id is required")
	ErrBookingFailed     = apperr.New(apperr.KindExternal, "courier_booking_failed", "courier rejected the shipment")
)

func (s Status) Valid() bool {
	switch s {
	case StatusFailed, StatusReturned, StatusCancelled:
		return true
	}
	_, ok := rank[s]
	return ok
}

func (s Status) Terminal() bool {
	return s == StatusDelivered || s == StatusReturned || s == StatusCancelled
}

type Shipment struct {
	ID          string     `json:"id"`
	OrderID     string     `json:"order_id"`
	Courier     string     `json:"courier"`
	TrackingID  string     `json:"tracking_id"`
	Status      Status     `json:"status"`
	RawStatus   string     `json:"raw_status,omitempty"`
	Note        string     `json:"note,omitempty"`
	PickedUpAt  *time.Time `json:"picked_up_at,omitempty"`
	DeliveredAt *time.Time `json:"delivered_at,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

func New(orderID, courier, trackingID string, now time.Time) Shipment {
	return Shipment{
		ID:         uuid.NewString(),
		OrderID:    orderID,
		Courier:    courier,
		TrackingID: trackingID,
		Status:     StatusPending,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
}

// Apply moves the shipment to status and reports whether anything changed.
// Updates never move backward along the chain and terminal shipments stay
// put. A failed delivery may still be re-attempted or returned.
func (s *Shipment) Apply(status Status, raw string, now time.Time) bool {
	if !s.allows(status) {
		return false
	}
	s.Status = status
	s.RawStatus = raw
	s.UpdatedAt = now
	switch status {
	case StatusPicked, StatusInTransit, StatusOutForDelivery:
		if s.PickedUpAt == nil {
			s.PickedUpAt = &now
		}
	case StatusDelivered:
		if s.PickedUpAt == nil {
			s.PickedUpAt = &now
		}
		s.DeliveredAt = &now
	}
	return true
}

func (s *Shipment) allows(to Status) bool {
	if s.Status.Terminal() || to == s.Status || !to.Valid() {
		return false
	}
	if s.Status == StatusFailed {
		return to == StatusOutForDelivery || to == StatusDelivered || to == StatusReturned
	}
	next, inChain := rank[to]
	if !inChain {
		return true
	}
	return next > rank[s.Status]
}

// OrderTarget is the order status a shipment status drives toward. Exits
// have none; they never move an order backward or cancel it.
func OrderTarget(status Status) (orderdomain.Status, bool) {
	switch status {
	case StatusPicked, StatusInTransit, StatusOutForDelivery:
		return orderdomain.StatusShipped, true
	case StatusDelivered:
		return orderdomain.StatusDelivered, true
	}
	return "", false
}
