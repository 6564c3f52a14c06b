package domain

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/mishimanto/ecommerce/pkg/apperr"
)

type Method string

const (
	MethodStripe     Method = "stripe"
	MethodSSLCommerz Method = "sslcommerz"
	MethodCOD        Method = "cod"
)

func ParseMethod(s string) (Method, error) {
	switch m := Method(s); m {
	case MethodStripe, MethodSSLCommerz, MethodCOD:
		return m, nil
	}
	return "", ErrUnknownMethod.Withf("%q", s)
}

type Status string

const (
	StatusPending           Status = "pending"
	StatusCompleted         Status = "completed"
	StatusFailed            Status = "failed"
	StatusPartiallyRefunded Status = "partially_refunded"
	StatusRefunded          Status = "refunded"
)

var (
	ErrNotFound       = apperr.NotFound("payment_not_found", "payment not found")
	ErrUnknownMethod  = apperr.Validation("invalid_payment_method", "unsupported payment method")
	ErrInvalidRefund  = apperr.Validation("invalid_refund_amount", "refund amount must be positive and within the refundable balance")
	ErrNotRefundable  = apperr.Conflict("not_refundable", "payment has not settled")
	ErrNotPending     = apperr.Conflict("payment_not_pending", "payment is not pending")
	ErrAmountMismatch = apperr.Reconciliation("amount_mismatch", "settled amount does not match the payment")
	ErrUnknownOutcome = apperr.Validation("unknown_outcome", "unknown payment outcome")
	ErrInitFailed     = apperr.New(apperr.KindExternal, "payment_initiation_failed", "payment initiation failed, please retry")
	ErrRefundFailed   = apperr.New(apperr.KindExternal, "refund_failed", "gateway refused the refund")
	ErrRefundPending  = apperr.Conflict("refund_pending", "gateway accepted the refund but has not completed it")
)

// Payment is one attempt to collect money for an order.
type Payment struct {
	ID               string          `json:"id"`
	OrderID          string          `json:"order_id"`
	OrderNumber      string          `json:"order_number"`
	AmountCents      int64           `json:"amount_cents"`
	Currency         string          `json:"currency"`
	Method           Method          `json:"method"`
	Status           Status          `json:"status"`
	TransactionID    string          `json:"transaction_id,omitempty"`
	GatewayReference string          `json:"gateway_reference,omitempty"`
	GatewayResponse  json.RawMessage `json:"-"`
	FailureReason    string          `json:"failure_reason,omitempty"`
	RefundedCents    int64           `json:"refunded_cents"`
	CreatedAt        time.Time       `json:"created_at"`
	UpdatedAt        time.Time       `json:"updated_at"`
	PaidAt           *time.Time      `json:"paid_at,omitempty"`
	FailedAt         *time.Time      `json:"failed_at,omitempty"`
	RefundedAt       *time.Time      `json:"refunded_at,omitempty"`
}

func New(orderID, orderNumber string, amountCents int64, currency string, method Method, now time.Time) Payment {
	return Payment{
		ID:          uuid.NewString(),
		OrderID:     orderID,
		OrderNumber: orderNumber,
		AmountCents: amountCents,
		Currency:    currency,
		Method:      method,
		Status:      StatusPending,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}

// Settled reports whether money has moved for this attempt.
func (p *Payment) Settled() bool {
	switch p.Status {
	case StatusCompleted, StatusPartiallyRefunded, StatusRefunded:
		return true
	}
	return false
}

func (p *Payment) Refundable() int64 {
	if !p.Settled() {
		return 0
	}
	return p.AmountCents - p.RefundedCents
}

func (p *Payment) Complete(transactionID string, raw json.RawMessage, now time.Time) {
	p.Status = StatusCompleted
	if transactionID != "" {
		p.TransactionID = transactionID
	}
	if len(raw) > 0 {
		p.GatewayResponse = raw
	}
	p.FailureReason = ""
	p.PaidAt = &now
	p.UpdatedAt = now
}

func (p *Payment) Fail(reason string, raw json.RawMessage, now time.Time) {
	p.Status = StatusFailed
	p.FailureReason = reason
	if len(raw) > 0 {
		p.GatewayResponse = raw
	}
	p.FailedAt = &now
	p.UpdatedAt = now
}

func (p *Payment) ValidateRefund(amountCents int64) error {
	if !p.Settled() {
		return ErrNotRefundable.Withf("status %s", p.Status)
	}
	if amountCents <= 0 || amountCents > p.AmountCents-p.RefundedCents {
		return ErrInvalidRefund.Withf("requested %d, refundable %d", amountCents, p.AmountCents-p.RefundedCents)
	}
	return nil
}

// ApplyRefund records a gateway-confirmed refund. The payment is refunded
// exactly when the whole amount has been returned.
func (p *Payment) ApplyRefund(amountCents int64, now time.Time) error {
	if err := p.ValidateRefund(amountCents); err != nil {
		return err
	}
	p.RefundedCents += amountCents
	if p.RefundedCents == p.AmountCents {
		p.Status = StatusRefunded
	} else {
		p.Status = StatusPartiallyRefunded
	}
	p.RefundedAt = &now
	p.UpdatedAt = now
	return nil
}
