package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	orderdomain "github.com/mishimanto/ecommerce/internal/order/domain"
	"github.com/mishimanto/ecommerce/internal/payment/domain"
	"github.com/mishimanto/ecommerce/internal/payment/gateway"
	"github.com/mishimanto/ecommerce/pkg/apperr"
	"github.com/mishimanto/ecommerce/pkg/outbox"
	"github.com/mishimanto/ecommerce/pkg/tracing"
)

var ErrNotCashPayment = apperr.Conflict("not_cash_payment", "only cash on delivery payments can be collected")

type Service struct {
	log      *slog.Logger
	repo     Repository
	gateways *gateway.Registry
	now      func() time.Time
}

func NewService(log *slog.Logger, repo Repository, gateways *gateway.Registry) *Service {
	return &Service{
		log:      log,
		repo:     repo,
		gateways: gateways,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// Settlement is a payment and its order after a state change.
// RefundedCents is the amount refunded by the call that produced it.
type Settlement struct {
	Payment       domain.Payment    `json:"payment"`
	Order         orderdomain.Order `json:"order"`
	Effect        domain.Effect     `json:"effect,omitempty"`
	RefundedCents int64             `json:"refunded_cents,omitempty"`
}

type Attempt struct {
	Payment domain.Payment   `json:"payment"`
	Session *gateway.Session `json:"session,omitempty"`
}

type RefundRequest struct {
	PaymentID   string         `json:"-"`
	AmountCents int64          `json:"amount_cents"`
	Reason      string         `json:"reason"`
	Items       map[string]int `json:"items,omitempty"`
}

func (s *Service) gateway(m domain.Method) (gateway.Gateway, error) {
	g, ok := s.gateways.Get(m)
	if !ok {
		return nil, domain.ErrUnknownMethod.Withf("%q", m)
	}
	return g, nil
}

func (s *Service) Get(ctx context.Context, id string) (domain.Payment, error) {
	return s.repo.Get(ctx, id)
}

func (s *Service) ListByOrder(ctx context.Context, orderID string) ([]domain.Payment, error) {
	return s.repo.ListByOrder(ctx, orderID)
}

// Initiate opens the attempt at its gateway. A gateway failure leaves the
// attempt pending and is reported as payment_initiation_failed.
func (s *Service) Initiate(ctx context.Context, paymentID string, urls gateway.URLs) (gateway.Session, error) {
	p, err := s.repo.Get(ctx, paymentID)
	if err != nil {
		return gateway.Session{}, err
	}
	if p.Status != domain.StatusPending {
		return gateway.Session{}, domain.ErrNotPending.Withf("status %s", p.Status)
	}
	g, err := s.gateway(p.Method)
	if err != nil {
		return gateway.Session{}, err
	}
	sess, err := g.Initialize(ctx, gateway.InitRequest{Payment: p, URLs: urls})
	if err != nil {
		s.log.Warn("payment initiation failed", "payment_id", p.ID, "order_number", p.OrderNumber, "provider", p.Method, "err", err)
		return gateway.Session{}, domain.ErrInitFailed.Wrap(err)
	}
	if sess.Reference != "" || len(sess.Raw) > 0 {
		if err := s.repo.Attach(ctx, p.ID, sess.Reference, sess.Raw); err != nil {
			return gateway.Session{}, fmt.Errorf("attach gateway reference: %w", err)
		}
	}
	return sess, nil
}

// Retry starts a new attempt on an unpaid pending order, possibly with a
// different method. The attempt exists even when initiation fails.
func (s *Service) Retry(ctx context.Context, orderID string, userID int64, method string, urls gateway.URLs) (Attempt, error) {
	m, err := domain.ParseMethod(method)
	if err != nil {
		return Attempt{}, err
	}
	if _, err := s.gateway(m); err != nil {
		return Attempt{}, err
	}
	o, err := s.repo.Order(ctx, orderID)
	if err != nil {
		return Attempt{}, err
	}
	if userID != 0 && o.UserID != userID {
		return Attempt{}, orderdomain.ErrNotFound
	}

	p := domain.New(o.ID, o.Number, o.TotalCents, o.Currency, m, s.now())
	err = s.repo.Create(ctx, p, func(o *orderdomain.Order) error {
		if o.PaymentStatus == orderdomain.PaymentPaid || o.PaymentStatus == orderdomain.PaymentRefunded ||
			o.PaymentStatus == orderdomain.PaymentPartiallyRefunded {
			return orderdomain.ErrAlreadyPaid
		}
		if o.Status != orderdomain.StatusPending {
			return orderdomain.ErrInvalidTransition.Withf("cannot pay a %s order", o.Status)
		}
		o.PaymentMethod = string(m)
		o.UpdatedAt = s.now()
		return nil
	})
	if err != nil {
		return Attempt{}, err
	}

	sess, err := s.Initiate(ctx, p.ID, urls)
	if err != nil {
		return Attempt{Payment: p}, err
	}
	if fresh, gerr := s.repo.Get(ctx, p.ID); gerr == nil {
		p = fresh
	}
	return Attempt{Payment: p, Session: &sess}, nil
}

// Confirm asks the gateway for the attempt's state and settles it. A
// payment the gateway still considers open is returned unchanged.
func (s *Service) Confirm(ctx context.Context, paymentID string, userID int64) (Settlement, error) {
	p, err := s.repo.Get(ctx, paymentID)
	if err != nil {
		return Settlement{}, err
	}
	o, err := s.repo.Order(ctx, p.OrderID)
	if err != nil {
		return Settlement{}, err
	}
	if userID != 0 && o.UserID != userID {
		return Settlement{}, domain.ErrNotFound
	}
	g, err := s.gateway(p.Method)
	if err != nil {
		return Settlement{}, err
	}
	v, err := g.Verify(ctx, p)
	if err != nil {
		if apperr.KindOf(err) == apperr.KindInternal {
			err = apperr.External("gateway_unavailable", "payment gateway unavailable", err)
		}
		return Settlement{}, err
	}
	if v.Outcome == "" {
		return Settlement{Payment: p, Order: o}, nil
	}
	return s.Apply(ctx, domain.ByID(p.ID), v.Outcome, v.Details)
}

// Apply settles the payment named by ref with a gateway outcome. Replays
// return EffectDuplicate without touching storage.
func (s *Service) Apply(ctx context.Context, ref domain.Reference, outcome domain.Outcome, d domain.Details) (Settlement, error) {
	var effect domain.Effect
	p, o, err := s.repo.Mutate(ctx, ref, func(p *domain.Payment, o *orderdomain.Order) ([]outbox.Event, error) {
		from := o.Status
		eff, err := domain.Settle(p, o, outcome, d, s.now())
		if err != nil {
			return nil, err
		}
		effect = eff
		if eff != domain.EffectApplied {
			return nil, nil
		}
		return s.settleEvents(ctx, p, o, from)
	})
	if err != nil {
		return Settlement{}, err
	}
	if effect == domain.EffectApplied {
		s.log.Info("payment settled", "payment_id", p.ID, "order_id", o.ID, "status", p.Status, "order_status", o.Status)
	}
	return Settlement{Payment: p, Order: o, Effect: effect}, nil
}

// CollectCash records cash received for a cash on delivery attempt.
func (s *Service) CollectCash(ctx context.Context, paymentID string) (Settlement, error) {
	var effect domain.Effect
	p, o, err := s.repo.Mutate(ctx, domain.ByID(paymentID), func(p *domain.Payment, o *orderdomain.Order) ([]outbox.Event, error) {
		if p.Method != domain.MethodCOD {
			return nil, ErrNotCashPayment
		}
		if o.Status == orderdomain.StatusCancelled {
			return nil, orderdomain.ErrInvalidTransition.Withf("order is cancelled")
		}
		from := o.Status
		eff, err := domain.Settle(p, o, domain.OutcomeSucceeded, domain.Details{
			TransactionID: "cod-" + p.ID,
			AmountCents:   p.AmountCents,
		}, s.now())
		if err != nil {
			return nil, err
		}
		effect = eff
		if eff != domain.EffectApplied {
			return nil, nil
		}
		return s.settleEvents(ctx, p, o, from)
	})
	if err != nil {
		return Settlement{}, err
	}
	return Settlement{Payment: p, Order: o, Effect: effect}, nil
}

// Refund returns money through the gateway while the payment row is held.
// State changes only after the gateway confirms.
func (s *Service) Refund(ctx context.Context, req RefundRequest) (Settlement, error) {
	return s.refund(ctx, req.PaymentID, func(p *domain.Payment) int64 { return req.AmountCents }, req.Reason, req.Items, false)
}

// RefundRemaining refunds whatever is left on the payment. With
// completeReturn the order's approved return is completed in the same
// transaction.
func (s *Service) RefundRemaining(ctx context.Context, paymentID, reason string, completeReturn bool) (Settlement, error) {
	return s.refund(ctx, paymentID, func(p *domain.Payment) int64 { return p.Refundable() }, reason, nil, completeReturn)
}

func (s *Service) refund(ctx context.Context, paymentID string, amountOf func(*domain.Payment) int64,
	reason string, items map[string]int, completeReturn bool) (Settlement, error) {
	var amount int64
	p, o, err := s.repo.Mutate(ctx, domain.ByID(paymentID), func(p *domain.Payment, o *orderdomain.Order) ([]outbox.Event, error) {
		amount = amountOf(p)
		if err := p.ValidateRefund(amount); err != nil {
			return nil, err
		}
		now := s.now()
		from := o.Status
		if completeReturn {
			if err := o.CompleteReturn(now); err != nil {
				return nil, err
			}
			o.RefundAll()
		} else if len(items) > 0 {
			if err := o.RefundItems(items); err != nil {
				return nil, err
			}
		}
		if err := o.ApplyRefund(amount, now); err != nil {
			return nil, err
		}

		g, err := s.gateway(p.Method)
		if err != nil {
			return nil, err
		}
		res, err := g.Refund(ctx, *p, amount, reason)
		if err != nil {
			return nil, domain.ErrRefundFailed.Wrap(err)
		}
		if res.Pending {
			return nil, domain.ErrRefundPending.Withf("refund %s", res.RefundID)
		}
		if !res.Succeeded {
			return nil, domain.ErrRefundFailed.Withf("refund %s not accepted", res.RefundID)
		}
		if err := p.ApplyRefund(amount, now); err != nil {
			return nil, err
		}

		tp := tracing.Traceparent(ctx)
		ev, err := outbox.NewEvent(domain.AggregateType, p.ID, domain.EventPaymentRefunded, domain.PaymentRefunded{
			PaymentID: p.ID, OrderID: o.ID, OrderNumber: o.Number, AmountCents: amount,
			RefundedCents: p.RefundedCents, Status: p.Status, Reason: reason, Items: items, RefundID: res.RefundID,
		}, tp)
		if err != nil {
			return nil, err
		}
		events := []outbox.Event{ev}
		if completeReturn {
			ev, err := outbox.NewEvent(orderdomain.AggregateType, o.ID, orderdomain.EventOrderStatusChanged,
				orderdomain.StatusChanged(o, from), tp)
			if err != nil {
				return nil, err
			}
			events = append(events, ev)
		}
		return events, nil
	})
	if err != nil {
		if !errors.Is(err, domain.ErrNotFound) {
			s.log.Warn("refund failed", "payment_id", paymentID, "err", err)
		}
		return Settlement{}, err
	}
	s.log.Info("payment refunded", "payment_id", p.ID, "order_id", o.ID, "amount_cents", amount, "status", p.Status)
	return Settlement{Payment: p, Order: o, RefundedCents: amount}, nil
}

func (s *Service) settleEvents(ctx context.Context, p *domain.Payment, o *orderdomain.Order, from orderdomain.Status) ([]outbox.Event, error) {
	tp := tracing.Traceparent(ctx)
	typ, payload := domain.EventFor(p)
	ev, err := outbox.NewEvent(domain.AggregateType, p.ID, typ, payload, tp)
	if err != nil {
		return nil, err
	}
	events := []outbox.Event{ev}
	if o.Status != from {
		ev, err := outbox.NewEvent(orderdomain.AggregateType, o.ID, orderdomain.EventOrderStatusChanged,
			orderdomain.StatusChanged(o, from), tp)
		if err != nil {
			return nil, err
		}
		events = append(events, ev)
	}
	return events, nil
}
