package postgres

import (
	"context"
	"database/sql"

	"github.com/mishimanto/ecommerce/internal/settlement/domain"
)

// Inbox stores every received gateway callback with what happened to it.
type Inbox struct {
	db *sql.DB
}

func NewInbox(db *sql.DB) *Inbox {
	return &Inbox{db: db}
}

func (i *Inbox) Record(ctx context.Context, r domain.Receipt) error {
	_, err := i.db.ExecContext(ctx, `INSERT INTO webhook_receipts
		(id, provider, event, reference, outcome, reason, detail, payment_id, order_id, payload, received_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		r.ID, r.Provider, r.Result.Event, r.Result.Reference, string(r.Result.Outcome), string(r.Result.Reason),
		r.Result.Detail, nullable(r.Result.PaymentID), nullable(r.Result.OrderID), r.Payload, r.ReceivedAt)
	return err
}

// Rejected lists the most recent rejected callbacks for manual reconciliation.
func (i *Inbox) Rejected(ctx context.Context, limit int) ([]domain.Receipt, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := i.db.QueryContext(ctx, `SELECT id, provider, event, reference, outcome, reason, detail,
		COALESCE(payment_id::text, ''), COALESCE(order_id::text, ''), payload, received_at
		FROM webhook_receipts WHERE outcome = $1 ORDER BY received_at DESC LIMIT $2`,
		string(domain.OutcomeRejected), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.Receipt
	for rows.Next() {
		var (
			r               domain.Receipt
			outcome, reason string
		)
		if err := rows.Scan(&r.ID, &r.Provider, &r.Result.Event, &r.Result.Reference, &outcome, &reason,
			&r.Result.Detail, &r.Result.PaymentID, &r.Result.OrderID, &r.Payload, &r.ReceivedAt); err != nil {
			return nil, err
		}
		r.Result.Outcome, r.Result.Reason = domain.Outcome(outcome), domain.Reason(reason)
		out = append(out, r)
	}
	return out, rows.Err()
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}
