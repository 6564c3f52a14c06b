package domain

const AggregateType = "payment"

const (
	EventPaymentCompleted = "PaymentCompleted"
	EventPaymentFailed    = "PaymentFailed"
	EventPaymentRefunded  = "PaymentRefunded"
)

type PaymentCompleted struct {
	PaymentID     string `json:"payment_id"`
	OrderID       string `json:"order_id"`
	OrderNumber   string `json:"order_number"`
	Method        Method `json:"method"`
	AmountCents   int64  `json:"amount_cents"`
	Currency      string `json:"currency"`
	TransactionID string `json:"transaction_id,omitempty"`
}

type PaymentFailed struct {
	PaymentID   string `json:"payment_id"`
	OrderID     string `json:"order_id"`
	OrderNumber string `json:"order_number"`
	Method      Method `json:"method"`
	Reason      string `json:"reason,omitempty"`
}

type PaymentRefunded struct {
	PaymentID     string         `json:"payment_id"`
	OrderID       string         `json:"order_id"`
	OrderNumber   string         `json:"order_number"`
	AmountCents   int64          `json:"amount_cents"`
	RefundedCents int64          `json:"refunded_cents"`
	Status        Status         `json:"status"`
	Reason        string         `json:"reason,omitempty"`
	Items         map[string]int `json:"items,omitempty"`
	RefundID      string         `json:"refund_id,omitempty"`
}

// EventFor describes the change Settle made, by the payment's new status.
func EventFor(p *Payment) (string, any) {
	if p.Status == StatusFailed {
		return EventPaymentFailed, PaymentFailed{
			PaymentID: p.ID, OrderID: p.OrderID, OrderNumber: p.OrderNumber, Method: p.Method, Reason: p.FailureReason,
		}
	}
	return EventPaymentCompleted, PaymentCompleted{
		PaymentID: p.ID, OrderID: p.OrderID, OrderNumber: p.OrderNumber, Method: p.Method,
		AmountCents: p.AmountCents, Currency: p.Currency, TransactionID: p.TransactionID,
	}
}
