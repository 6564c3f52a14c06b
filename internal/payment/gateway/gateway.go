// Package gateway adapts external payment providers to one interface. The
// payment service and the settlement reconciler only see Gateway.
package gateway

import (
	"context"
	"encoding/json"

	"github.com/mishimanto/ecommerce/internal/payment/domain"
	"github.com/mishimanto/ecommerce/pkg/apperr"
)

var (
	ErrMalformed            = apperr.Validation("malformed_payload", "callback payload is malformed")
	ErrCallbacksUnsupported = apperr.Validation("callbacks_unsupported", "gateway does not send callbacks")
	ErrNoReference          = apperr.Conflict("no_gateway_reference", "payment was never initialized at the gateway")
)

type URLs struct {
	Success string `json:"success_url"`
	Fail    string `json:"fail_url"`
	Cancel  string `json:"cancel_url"`
	Notify  string `json:"notify_url"`
}

type Customer struct {
	Name     string
	Email    string
	Phone    string
	Address  string
	City     string
	Postcode string
	Country  string
}

type InitRequest struct {
	Payment  domain.Payment
	Customer Customer
	URLs     URLs
}

// Session is what the client needs to complete payment: a hosted page to
// redirect to, or a secret for client-side confirmation.
type Session struct {
	Reference    string          `json:"reference,omitempty"`
	RedirectURL  string          `json:"redirect_url,omitempty"`
	ClientSecret string          `json:"client_secret,omitempty"`
	Raw          json.RawMessage `json:"-"`
}

// Verification is a gateway's current view of a payment. An empty Outcome
// means the payment is still open.
type Verification struct {
	Outcome domain.Outcome
	Details domain.Details
}

// RefundResult reports a gateway's answer to a refund. Pending means the
// gateway took the request but has not moved the money yet.
type RefundResult struct {
	Succeeded bool
	Pending   bool
	RefundID  string
	Raw       json.RawMessage
}

// Callback is a parsed, already authenticated notification.
type Callback struct {
	Event     string
	Ignored   bool
	Reference domain.Reference
	Outcome   domain.Outcome
	Details   domain.Details
}

type Verifier interface {
	Verify(payload []byte, signature string) bool
}

type Gateway interface {
	Method() domain.Method
	Initialize(ctx context.Context, req InitRequest) (Session, error)
	Verify(ctx context.Context, p domain.Payment) (Verification, error)
	Refund(ctx context.Context, p domain.Payment, amountCents int64, reason string) (RefundResult, error)
	Verifier() Verifier
	// SignatureHeader names the request header carrying the signature, or
	// "" when it travels inside the payload.
	SignatureHeader() string
	AcceptsCallbacks() bool
	ParseCallback(payload []byte) (Callback, error)
}

type Registry struct {
	gateways map[domain.Method]Gateway
}

func NewRegistry(gateways ...Gateway) *Registry {
	r := &Registry{gateways: make(map[domain.Method]Gateway, len(gateways))}
	for _, g := range gateways {
		r.gateways[g.Method()] = g
	}
	return r
}

func (r *Registry) Get(m domain.Method) (Gateway, bool) {
	g, ok := r.gateways[m]
	return g, ok
}

func (r *Registry) Methods() []domain.Method {
	out := make([]domain.Method, 0, len(r.gateways))
	for m := range r.gateways {
		out = append(out, m)
	}
	return out
}
