package domain

import "time"

type Outcome string

const (
	OutcomeApplied   Outcome = "applied"
	OutcomeDuplicate Outcome = "duplicate"
	OutcomeIgnored   Outcome = "ignored"
	OutcomeRejected  Outcome = "rejected"
)

type Reason string

const (
	ReasonNone                 Reason = ""
	ReasonBadSignature         Reason = "bad_signature"
	ReasonMalformed            Reason = "malformed_payload"
	ReasonUnknownGateway       Reason = "unknown_gateway"
	ReasonUnknownReference     Reason = "unknown_reference"
	ReasonAmountMismatch       Reason = "amount_mismatch"
	ReasonCallbacksUnsupported Reason = "callbacks_unsupported"
	ReasonUnhandledEvent       Reason = "unhandled_event"
	ReasonStale                Reason = "stale"
)

// Retryable reports whether the gateway should deliver the callback again.
// A reference can be unknown only because the payment row is not yet
// visible.
func (r Reason) Retryable() bool { return r == ReasonUnknownReference }

// Result is what happened to one callback.
type Result struct {
	Outcome   Outcome `json:"outcome"`
	Reason    Reason  `json:"reason,omitempty"`
	Event     string  `json:"event,omitempty"`
	Reference string  `json:"reference,omitempty"`
	PaymentID string  `json:"payment_id,omitempty"`
	OrderID   string  `json:"order_id,omitempty"`
	Detail    string  `json:"detail,omitempty"`
}

func Rejected(reason Reason, detail string) Result {
	return Result{Outcome: OutcomeRejected, Reason: reason, Detail: detail}
}

// Receipt is the inbox row for one received callback.
type Receipt struct {
	ID         string
	Provider   string
	Result     Result
	Payload    []byte
	ReceivedAt time.Time
}
