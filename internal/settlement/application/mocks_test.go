package application

import (
	"context"

	payapp "github.com/mishimanto/ecommerce/internal/payment/application"
	paydomain "github.com/mishimanto/ecommerce/internal/payment/domain"
	"github.com/mishimanto/ecommerce/internal/settlement/domain"
)

type applyCall struct {
	ref     paydomain.Reference
	outcome paydomain.Outcome
	details paydomain.Details
}

type mockPayments struct {
	settlement payapp.Settlement
	err        error
	calls      []applyCall
}

func (m *mockPayments) Apply(_ context.Context, ref paydomain.Reference, outcome paydomain.Outcome, d paydomain.Details) (payapp.Settlement, error) {
	m.calls = append(m.calls, applyCall{ref, outcome, d})
	return m.settlement, m.err
}

type mockInbox struct {
	receipts []domain.Receipt
	err      error
}

func (m *mockInbox) Record(_ context.Context, r domain.Receipt) error {
	if m.err != nil {
		return m.err
	}
	m.receipts = append(m.receipts, r)
	return nil
}
