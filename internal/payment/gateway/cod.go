package gateway

import (
	"context"

	"github.com/mishimanto/ecommerce/internal/payment/domain"
)

// COD collects cash at the door. Nothing is sent anywhere; the payment stays
// pending until staff record the collection.
type COD struct{}

func NewCOD() *COD { return &COD{} }

func (COD) Method() domain.Method { return domain.MethodCOD }
func (COD) SignatureHeader() string { return "" }
func (COD) AcceptsCallbacks() bool { return false }
func (COD) Verifier() Verifier { return rejectAll{} }

func (COD) Initialize(context.Context, InitRequest) (Session, error) { return Session{}, nil }

func (COD) Verify(context.Context, domain.Payment) (Verification, error) { return Verification{}, nil }

// Refund records a manual cash refund.
func (COD) Refund(context.Context, domain.Payment, int64, string) (RefundResult, error) {
	return RefundResult{Succeeded: true, RefundID: "manual"}, nil
}

func (COD) ParseCallback([]byte) (Callback, error) { return Callback{}, ErrCallbacksUnsupported }

type rejectAll struct{}

func (rejectAll) Verify([]byte, string) bool { return false }
