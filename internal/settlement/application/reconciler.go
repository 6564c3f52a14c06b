package application

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	orderdomain "github.com/mishimanto/ecommerce/internal/order/domain"
	payapp "github.com/mishimanto/ecommerce/internal/payment/application"
	paydomain "github.com/mishimanto/ecommerce/internal/payment/domain"
	"github.com/mishimanto/ecommerce/internal/payment/gateway"
	"github.com/mishimanto/ecommerce/internal/settlement/domain"
	"github.com/mishimanto/ecommerce/pkg/apperr"
)

type Payments interface {
	Apply(ctx context.Context, ref paydomain.Reference, outcome paydomain.Outcome, d paydomain.Details) (payapp.Settlement, error)
}

type Inbox interface {
	Record(ctx context.Context, r domain.Receipt) error
}

type Reconciler struct {
	log      *slog.Logger
	gateways *gateway.Registry
	payments Payments
	inbox    Inbox
	tracer   trace.Tracer
	now      func() time.Time
}

func NewReconciler(log *slog.Logger, gateways *gateway.Registry, payments Payments, inbox Inbox) *Reconciler {
	return &Reconciler{
		log:      log,
		gateways: gateways,
		payments: payments,
		inbox:    inbox,
		tracer:   otel.Tracer("settlement"),
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// SignatureHeader names the header carrying method's callback signature,
// or "" when the signature travels in the payload.
func (r *Reconciler) SignatureHeader(method string) string {
	g, ok := r.gateways.Get(paydomain.Method(method))
	if !ok {
		return ""
	}
	return g.SignatureHeader()
}

// HandleCallback authenticates, parses and applies one gateway callback.
// Rejections are results, not errors; an error means the callback could
// not be processed and should be redelivered.
func (r *Reconciler) HandleCallback(ctx context.Context, method string, payload []byte, signature string) (domain.Result, error) {
	ctx, span := r.tracer.Start(ctx, "HandleCallback", trace.WithAttributes(attribute.String("provider", method)))
	defer span.End()

	res, err := r.handle(ctx, method, payload, signature)
	if err != nil {
		span.RecordError(err)
		return domain.Result{}, err
	}
	span.SetAttributes(attribute.String("outcome", string(res.Outcome)), attribute.String("reason", string(res.Reason)))
	if res.Outcome == domain.OutcomeRejected {
		r.log.Warn("callback rejected", "provider", method, "reason", res.Reason, "reference", res.Reference, "detail", res.Detail)
	}

	receipt := domain.Receipt{ID: uuid.NewString(), Provider: method, Result: res, Payload: payload, ReceivedAt: r.now()}
	if err := r.inbox.Record(ctx, receipt); err != nil {
		r.log.Error("record callback receipt", "provider", method, "outcome", res.Outcome, "err", err)
	}
	return res, nil
}

func (r *Reconciler) handle(ctx context.Context, method string, payload []byte, signature string) (domain.Result, error) {
	g, ok := r.gateways.Get(paydomain.Method(method))
	if !ok {
		return domain.Rejected(domain.ReasonUnknownGateway, method), nil
	}
	if !g.AcceptsCallbacks() {
		return domain.Rejected(domain.ReasonCallbacksUnsupported, method), nil
	}
	// nothing in the payload is trusted before this point
	if !g.Verifier().Verify(payload, signature) {
		return domain.Rejected(domain.ReasonBadSignature, ""), nil
	}
	cb, err := g.ParseCallback(payload)
	if err != nil {
		return domain.Rejected(domain.ReasonMalformed, err.Error()), nil
	}
	res := domain.Result{Event: cb.Event, Reference: cb.Reference.String()}
	if cb.Ignored {
		res.Outcome, res.Reason = domain.OutcomeIgnored, domain.ReasonUnhandledEvent
		return res, nil
	}

	s, err := r.payments.Apply(ctx, cb.Reference, cb.Outcome, cb.Details)
	switch {
	case err == nil:
	case errors.Is(err, paydomain.ErrNotFound), errors.Is(err, orderdomain.ErrNotFound):
		res.Outcome, res.Reason = domain.OutcomeRejected, domain.ReasonUnknownReference
		return res, nil
	case errors.Is(err, paydomain.ErrAmountMismatch):
		res.Outcome, res.Reason, res.Detail = domain.OutcomeRejected, domain.ReasonAmountMismatch, err.Error()
		return res, nil
	case apperr.IsKind(err, apperr.KindValidation):
		res.Outcome, res.Reason, res.Detail = domain.OutcomeRejected, domain.ReasonMalformed, err.Error()
		return res, nil
	default:
		return domain.Result{}, err
	}

	res.PaymentID, res.OrderID = s.Payment.ID, s.Order.ID
	switch s.Effect {
	case paydomain.EffectApplied:
		res.Outcome = domain.OutcomeApplied
	case paydomain.EffectDuplicate:
		res.Outcome = domain.OutcomeDuplicate
	default:
		res.Outcome, res.Reason = domain.OutcomeIgnored, domain.ReasonStale
	}
	return res, nil
}
