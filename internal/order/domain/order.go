package domain

import (
	"fmt"
	"time"

	"github.com/mishimanto/ecommerce/pkg/apperr"
)

type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusShipped    Status = "shipped"
	StatusDelivered  Status = "delivered"
	StatusCancelled  Status = "cancelled"
	StatusReturned   Status = "returned"
)

// rank orders the forward fulfillment chain. Side exits have no rank.
var rank = map[Status]int{
	StatusPending:    0,
	StatusProcessing: 1,
	StatusShipped:    2,
	StatusDelivered:  3,
}

type PaymentStatus string

const (
	PaymentPending           PaymentStatus = "pending"
	PaymentPaid              PaymentStatus = "paid"
	PaymentFailed            PaymentStatus = "failed"
	PaymentRefunded          PaymentStatus = "refunded"
	PaymentPartiallyRefunded PaymentStatus = "partially_refunded"
)

type ReturnStatus string

const (
	ReturnNone      ReturnStatus = ""
	ReturnRequested ReturnStatus = "requested"
	ReturnApproved  ReturnStatus = "approved"
	ReturnCompleted ReturnStatus = "completed"
)

// MethodCashOnDelivery is the payment method whose orders ship unpaid.
const MethodCashOnDelivery = "cod"

// ReturnWindow is how long after delivery a return may be requested.
const ReturnWindow = 14 * 24 * time.Hour

var (
	ErrNotFound          = apperr.NotFound("order_not_found", "order not found")
	ErrInvalidTransition = apperr.Conflict("invalid_transition", "order cannot move to that status")
	ErrNotCancellable    = apperr.Conflict("not_cancellable", "only pending or processing orders can be cancelled")
	ErrAlreadyPaid       = apperr.Conflict("already_paid", "order is already paid")
	ErrReturnNotAllowed  = apperr.Conflict("return_not_allowed", "order is not eligible for return")
	ErrReturnWindow      = apperr.Conflict("return_window_closed", "return window has closed")
	ErrInvalidRefund     = apperr.Validation("invalid_refund", "refund exceeds what can be refunded")
	ErrTotalsMismatch    = apperr.New(apperr.KindInternal, "totals_mismatch", "order totals do not add up")
)

// Item is a snapshot of what was bought. Only RefundedQuantity changes
// after placement.
type Item struct {
	ID               string `json:"id"`
	ProductID        int64  `json:"product_id"`
	VariantID        int64  `json:"variant_id,omitempty"`
	ProductName      string `json:"product_name"`
	VariantName      string `json:"variant_name,omitempty"`
	SKU              string `json:"sku"`
	UnitPriceCents   int64  `json:"unit_price_cents"`
	Quantity         int    `json:"quantity"`
	RefundedQuantity int    `json:"refunded_quantity"`
}

func (i Item) LineCents() int64 { return i.UnitPriceCents * int64(i.Quantity) }

type Order struct {
	ID                string        `json:"id"`
	Number            string        `json:"number"`
	UserID            int64         `json:"user_id"`
	Status            Status        `json:"status"`
	PaymentStatus     PaymentStatus `json:"payment_status"`
	Items             []Item        `json:"items"`
	SubtotalCents     int64         `json:"subtotal_cents"`
	DiscountCents     int64         `json:"discount_cents"`
	ShippingCents     int64         `json:"shipping_cents"`
	TaxCents          int64         `json:"tax_cents"`
	TotalCents        int64         `json:"total_cents"`
	RefundedCents     int64         `json:"refunded_cents"`
	Currency          string        `json:"currency"`
	CouponCode        string        `json:"coupon_code,omitempty"`
	PaymentMethod     string        `json:"payment_method"`
	ShippingAddressID int64         `json:"shipping_address_id"`
	BillingAddressID  int64         `json:"billing_address_id"`
	Notes             string        `json:"notes,omitempty"`

	CancelReason string       `json:"cancel_reason,omitempty"`
	ReturnStatus ReturnStatus `json:"return_status,omitempty"`
	ReturnReason string       `json:"return_reason,omitempty"`

	CreatedAt         time.Time  `json:"created_at"`
	UpdatedAt         time.Time  `json:"updated_at"`
	ProcessedAt       *time.Time `json:"processed_at,omitempty"`
	ShippedAt         *time.Time `json:"shipped_at,omitempty"`
	DeliveredAt       *time.Time `json:"delivered_at,omitempty"`
	CancelledAt       *time.Time `json:"cancelled_at,omitempty"`
	ReturnRequestedAt *time.Time `json:"return_requested_at,omitempty"`
	ReturnApprovedAt  *time.Time `json:"return_approved_at,omitempty"`
	ReturnCompletedAt *time.Time `json:"return_completed_at,omitempty"`
	DeletedAt         *time.Time `json:"-"`
}

// CheckTotals enforces total = subtotal - discount + shipping + tax and
// that the subtotal is the sum of the item snapshots.
func (o *Order) CheckTotals() error {
	var sum int64
	for _, it := range o.Items {
		sum += it.LineCents()
	}
	if sum != o.SubtotalCents {
		return ErrTotalsMismatch.Withf("items %d, subtotal %d", sum, o.SubtotalCents)
	}
	if o.TotalCents != o.SubtotalCents-o.DiscountCents+o.ShippingCents+o.TaxCents {
		return ErrTotalsMismatch.Withf("total %d", o.TotalCents)
	}
	return nil
}

func (o *Order) Cancel(reason string, now time.Time) error {
	if o.Status != StatusPending && o.Status != StatusProcessing {
		return ErrNotCancellable.Withf("status %s", o.Status)
	}
	o.Status = StatusCancelled
	o.CancelReason = reason
	o.CancelledAt = &now
	o.UpdatedAt = now
	return nil
}

// MarkPaid records a settled payment. The fulfillment status moves to
// processing only from pending; later statuses are left alone.
func (o *Order) MarkPaid(now time.Time) {
	o.PaymentStatus = PaymentPaid
	if o.Status == StatusPending {
		o.Status = StatusProcessing
		o.ProcessedAt = &now
	}
	o.UpdatedAt = now
}

// MarkPaymentFailed leaves the fulfillment status unchanged so the customer
// can retry. It never overrides money that already moved.
func (o *Order) MarkPaymentFailed(now time.Time) bool {
	switch o.PaymentStatus {
	case PaymentPaid, PaymentRefunded, PaymentPartiallyRefunded:
		return false
	}
	o.PaymentStatus = PaymentFailed
	o.UpdatedAt = now
	return true
}

// Ship starts delivery. Cash orders may ship while still pending payment.
func (o *Order) Ship(now time.Time) error {
	if !o.Shippable() {
		return ErrInvalidTransition.Withf("%s -> %s", o.Status, StatusShipped)
	}
	o.Status = StatusShipped
	o.ShippedAt = &now
	o.UpdatedAt = now
	return nil
}

func (o *Order) Shippable() bool {
	return o.Status == StatusProcessing ||
		(o.Status == StatusPending && o.PaymentMethod == MethodCashOnDelivery)
}

// Advance moves the order forward along pending, processing, shipped,
// delivered. It reports false when to is not ahead of the current status,
// including when the order has left the chain.
func (o *Order) Advance(to Status, now time.Time) bool {
	cur, ok := rank[o.Status]
	next, ok2 := rank[to]
	if !ok || !ok2 || next <= cur {
		return false
	}
	o.Status = to
	switch to {
	case StatusProcessing:
		o.ProcessedAt = &now
	case StatusShipped:
		o.ShippedAt = &now
	case StatusDelivered:
		if o.ShippedAt == nil {
			o.ShippedAt = &now
		}
		o.DeliveredAt = &now
	}
	o.UpdatedAt = now
	return true
}

func (o *Order) RequestReturn(reason string, now time.Time) error {
	if o.Status != StatusDelivered || o.DeliveredAt == nil || o.ReturnStatus != ReturnNone {
		return ErrReturnNotAllowed
	}
	if now.Sub(*o.DeliveredAt) > ReturnWindow {
		return ErrReturnWindow
	}
	o.ReturnStatus = ReturnRequested
	o.ReturnReason = reason
	o.ReturnRequestedAt = &now
	o.UpdatedAt = now
	return nil
}

func (o *Order) ApproveReturn(now time.Time) error {
	if o.Status != StatusDelivered || o.ReturnStatus != ReturnRequested {
		return ErrReturnNotAllowed.Withf("return %q", o.ReturnStatus)
	}
	o.Status = StatusReturned
	o.ReturnStatus = ReturnApproved
	o.ReturnApprovedAt = &now
	o.UpdatedAt = now
	return nil
}

func (o *Order) CompleteReturn(now time.Time) error {
	if o.Status != StatusReturned || o.ReturnStatus != ReturnApproved {
		return ErrReturnNotAllowed.Withf("return %q", o.ReturnStatus)
	}
	o.ReturnStatus = ReturnCompleted
	o.ReturnCompletedAt = &now
	o.UpdatedAt = now
	return nil
}

// ApplyRefund adds a settled refund and derives the payment status from
// the running refunded total.
func (o *Order) ApplyRefund(amountCents int64, now time.Time) error {
	if amountCents <= 0 || o.RefundedCents+amountCents > o.TotalCents {
		return ErrInvalidRefund.Withf("refund %d, refunded %d of %d", amountCents, o.RefundedCents, o.TotalCents)
	}
	o.RefundedCents += amountCents
	if o.RefundedCents == o.TotalCents {
		o.PaymentStatus = PaymentRefunded
	} else {
		o.PaymentStatus = PaymentPartiallyRefunded
	}
	o.UpdatedAt = now
	return nil
}

// RefundItems records returned quantities per item id. Nothing changes if
// any entry is invalid.
func (o *Order) RefundItems(quantities map[string]int) error {
	idx := make(map[string]int, len(o.Items))
	for i, it := range o.Items {
		idx[it.ID] = i
	}
	for id, q := range quantities {
		i, ok := idx[id]
		if !ok {
			return ErrInvalidRefund.Withf("unknown item %s", id)
		}
		it := o.Items[i]
		if q <= 0 || it.RefundedQuantity+q > it.Quantity {
			return ErrInvalidRefund.Withf("item %s: %d more of %d", id, q, it.Quantity-it.RefundedQuantity)
		}
	}
	for id, q := range quantities {
		o.Items[idx[id]].RefundedQuantity += q
	}
	return nil
}

// RefundAll marks every remaining unit as refunded.
func (o *Order) RefundAll() {
	for i := range o.Items {
		o.Items[i].RefundedQuantity = o.Items[i].Quantity
	}
}

func (o *Order) String() string {
	return fmt.Sprintf("order %s (%s)", o.Number, o.ID)
}
