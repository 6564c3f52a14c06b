package postgres

import (
	"context"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mishimanto/ecommerce/internal/settlement/domain"
)

func TestInboxRecord(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	at := time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC)
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO webhook_receipts")).
		WithArgs("r-1", "stripe", "payment_intent.succeeded", "stripe:gateway_reference=pi_1", "applied", "",
			"", "p-1", "o-1", []byte(`{}`), at).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err = NewInbox(db).Record(context.Background(), domain.Receipt{
		ID: "r-1", Provider: "stripe", Payload: []byte(`{}`), ReceivedAt: at,
		Result: domain.Result{
			Outcome: domain.OutcomeApplied, Event: "payment_intent.succeeded",
			Reference: "stripe:gateway_reference=pi_1", PaymentID: "p-1", OrderID: "o-1",
		},
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestInboxRecordRejectionWithoutIDs(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO webhook_receipts")).
		WithArgs("r-2", "sslcommerz", "", "", "rejected", "bad_signature", "", nil, nil, sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err = NewInbox(db).Record(context.Background(), domain.Receipt{
		ID: "r-2", Provider: "sslcommerz", Payload: []byte("tran_id=x"), ReceivedAt: time.Now(),
		Result: domain.Rejected(domain.ReasonBadSignature, ""),
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestInboxRejected(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	at := time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC)
	rows := sqlmock.NewRows([]string{"id", "provider", "event", "reference", "outcome", "reason", "detail",
		"payment_id", "order_id", "payload", "received_at"}).
		AddRow("r-3", "stripe", "payment_intent.succeeded", "stripe:gateway_reference=pi_9", "rejected",
			"unknown_reference", "", "", "", []byte(`{}`), at)
	mock.ExpectQuery(regexp.QuoteMeta("FROM webhook_receipts WHERE outcome = $1")).
		WithArgs("rejected", 50).
		WillReturnRows(rows)

	out, err := NewInbox(db).Rejected(context.Background(), 0)
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, domain.ReasonUnknownReference, out[0].Result.Reason)
	assert.Equal(t, domain.OutcomeRejected, out[0].Result.Outcome)
	assert.Equal(t, at, out[0].ReceivedAt)
	assert.NoError(t, mock.ExpectationsWereMet())
}
