package domain

import (
	"encoding/json"
	"strings"
	"time"

	orderdomain "github.com/mishimanto/ecommerce/internal/order/domain"
)

type Outcome string

const (
	OutcomeSucceeded Outcome = "succeeded"
	OutcomeFailed    Outcome = "failed"
)

type Effect string

const (
	// EffectApplied means the payment and order changed.
	EffectApplied Effect = "applied"
	// EffectDuplicate means the payment already reflects the outcome.
	EffectDuplicate Effect = "duplicate"
	// EffectStale means the outcome arrived after a later, conflicting one.
	EffectStale Effect = "stale"
)

// Details is what a gateway reported about one payment. Zero AmountCents or
// empty Currency skip the corresponding check.
type Details struct {
	TransactionID string
	AmountCents   int64
	Currency      string
	Reason        string
	Raw           json.RawMessage
}

// Settle applies a gateway outcome to a payment and its order. It is the
// only place callbacks and verifications change payment state, and it is
// safe to call repeatedly with the same outcome.
func Settle(p *Payment, o *orderdomain.Order, outcome Outcome, d Details, now time.Time) (Effect, error) {
	switch outcome {
	case OutcomeSucceeded:
		if p.Settled() {
			return EffectDuplicate, nil
		}
		if d.AmountCents != 0 && d.AmountCents != p.AmountCents {
			return "", ErrAmountMismatch.Withf("reported %d, expected %d", d.AmountCents, p.AmountCents)
		}
		if d.Currency != "" && !strings.EqualFold(d.Currency, p.Currency) {
			return "", ErrAmountMismatch.Withf("reported currency %s, expected %s", d.Currency, p.Currency)
		}
		// a success after a failure is a customer retrying the same attempt
		p.Complete(d.TransactionID, d.Raw, now)
		o.MarkPaid(now)
		return EffectApplied, nil

	case OutcomeFailed:
		switch p.Status {
		case StatusFailed:
			return EffectDuplicate, nil
		case StatusPending:
			p.Fail(d.Reason, d.Raw, now)
			o.MarkPaymentFailed(now)
			return EffectApplied, nil
		default:
			return EffectStale, nil
		}
	}
	return "", ErrUnknownOutcome.Withf("%q", outcome)
}
