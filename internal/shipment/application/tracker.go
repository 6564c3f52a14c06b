package application

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	orderdomain "github.com/mishimanto/ecommerce/internal/order/domain"
	"github.com/mishimanto/ecommerce/internal/shipment/courier"
	"github.com/mishimanto/ecommerce/internal/shipment/domain"
	"github.com/mishimanto/ecommerce/pkg/outbox"
	"github.com/mishimanto/ecommerce/pkg/tracing"
)

type Tracker struct {
	log        *slog.Logger
	repo       Repository
	couriers   *courier.Registry
	statuses   courier.StatusMap
	recipients Recipients
	tracer     trace.Tracer
	now        func() time.Time
}

func NewTracker(log *slog.Logger, repo Repository, couriers *courier.Registry, statuses courier.StatusMap, recipients Recipients) *Tracker {
	return &Tracker{
		log:        log,
		repo:       repo,
		couriers:   couriers,
		statuses:   statuses,
		recipients: recipients,
		tracer:     otel.Tracer("shipment"),
		now:        func() time.Time { return time.Now().UTC() },
	}
}

type CreateRequest struct {
	OrderID    string `json:"-"`
	Courier    string `json:"courier"`
	TrackingID string `json:"tracking_id"`
	Note       string `json:"note"`
}

// Result is a shipment after an update. Changed is false for duplicate,
// late and backward updates.
type Result struct {
	Shipment domain.Shipment   `json:"shipment"`
	Order    orderdomain.Order `json:"order"`
	Changed  bool              `json:"changed"`
}

func (t *Tracker) courier(name string) (courier.Courier, error) {
	c, ok := t.couriers.Get(name)
	if !ok {
		return nil, domain.ErrUnknownCourier.Withf("%q", name)
	}
	return c, nil
}

// CreateShipment books the parcel with the courier, then stores the
// shipment and ships the order together.
func (t *Tracker) CreateShipment(ctx context.Context, req CreateRequest) (Result, error) {
	ctx, span := t.tracer.Start(ctx, "CreateShipment", trace.WithAttributes(attribute.String("courier", req.Courier)))
	defer span.End()

	c, err := t.courier(req.Courier)
	if err != nil {
		return Result{}, err
	}
	if _, manual := c.(courier.Manual); manual && req.TrackingID == "" {
		return Result{}, domain.ErrTrackingRequired
	}
	o, err := t.repo.Order(ctx, req.OrderID)
	if err != nil {
		return Result{}, err
	}
	if !o.Shippable() {
		return Result{}, domain.ErrNotShippable.Withf("order is %s", o.Status)
	}

	b := courier.Booking{OrderNumber: o.Number, ItemCount: len(o.Items), Note: req.Note, TrackingID: req.TrackingID}
	if o.PaymentMethod == orderdomain.MethodCashOnDelivery {
		b.CollectCents = o.TotalCents
	}
	if t.recipients != nil {
		if b.Recipient, err = t.recipients.Recipient(ctx, o.ShippingAddressID); err != nil {
			return Result{}, err
		}
	}
	cons, err := c.CreateShipment(ctx, b)
	if err != nil {
		span.RecordError(err)
		t.log.Error("courier booking failed", "courier", c.Name(), "order_id", o.ID, "err", err, "response", string(cons.Raw))
		return Result{}, domain.ErrBookingFailed.Wrap(err)
	}

	now := t.now()
	s := domain.New(o.ID, c.Name(), cons.TrackingID, now)
	s.Note = req.Note
	o, err = t.repo.Create(ctx, s, func(o *orderdomain.Order) ([]outbox.Event, error) {
		from := o.Status
		if err := o.Ship(now); err != nil {
			return nil, domain.ErrNotShippable.Wrap(err)
		}
		tp := tracing.Traceparent(ctx)
		created, err := outbox.NewEvent(domain.AggregateType, s.ID, domain.EventShipmentCreated, domain.ShipmentCreated{
			ShipmentID: s.ID, OrderID: o.ID, OrderNumber: o.Number, Courier: s.Courier, TrackingID: s.TrackingID,
		}, tp)
		if err != nil {
			return nil, err
		}
		changed, err := outbox.NewEvent(orderdomain.AggregateType, o.ID, orderdomain.EventOrderStatusChanged,
			orderdomain.StatusChanged(o, from), tp)
		if err != nil {
			return nil, err
		}
		return []outbox.Event{created, changed}, nil
	})
	if err != nil {
		// the courier holds a booking nobody will track
		t.log.Error("shipment not stored after booking", "courier", c.Name(), "tracking_id", s.TrackingID, "order_id", req.OrderID, "err", err)
		return Result{}, err
	}
	t.log.Info("shipment created", "shipment_id", s.ID, "order_id", o.ID, "courier", s.Courier, "tracking_id", s.TrackingID)
	return Result{Shipment: s, Order: o, Changed: true}, nil
}

// HandleWebhook parses a courier's status push and applies it.
func (t *Tracker) HandleWebhook(ctx context.Context, courierName string, payload []byte) (Result, error) {
	c, err := t.courier(courierName)
	if err != nil {
		return Result{}, err
	}
	u, err := c.ParseWebhook(payload)
	if err != nil {
		return Result{}, err
	}
	return t.HandleUpdate(ctx, c.Name(), u.TrackingID, u.RawStatus)
}

// HandleUpdate applies one courier status report. Updates that do not move
// the shipment forward are accepted and change nothing.
func (t *Tracker) HandleUpdate(ctx context.Context, courierName, trackingID, raw string) (Result, error) {
	ctx, span := t.tracer.Start(ctx, "HandleCourierUpdate", trace.WithAttributes(
		attribute.String("courier", courierName), attribute.String("tracking_id", trackingID)))
	defer span.End()

	if _, err := t.courier(courierName); err != nil {
		return Result{}, err
	}
	status, err := t.statuses.Resolve(courierName, raw)
	if err != nil {
		return Result{}, err
	}
	return t.apply(ctx, Key{Courier: courierName, TrackingID: trackingID}, status, raw)
}

// Refresh polls the courier for a shipment's current status.
func (t *Tracker) Refresh(ctx context.Context, shipmentID string) (Result, error) {
	ctx, span := t.tracer.Start(ctx, "RefreshShipment")
	defer span.End()

	s, err := t.repo.Get(ctx, shipmentID)
	if err != nil {
		return Result{}, err
	}
	c, err := t.courier(s.Courier)
	if err != nil {
		return Result{}, err
	}
	raw, err := c.Track(ctx, s.TrackingID)
	if errors.Is(err, courier.ErrTrackingUnsupported) {
		return Result{}, err
	}
	if err != nil {
		span.RecordError(err)
		return Result{}, domain.ErrBookingFailed.Withf("tracking request failed").Wrap(err)
	}
	status, err := t.statuses.Resolve(s.Courier, raw)
	if err != nil {
		return Result{}, err
	}
	return t.apply(ctx, Key{ID: s.ID}, status, raw)
}

func (t *Tracker) apply(ctx context.Context, key Key, status domain.Status, raw string) (Result, error) {
	changed := false
	s, o, err := t.repo.Mutate(ctx, key, func(s *domain.Shipment, o *orderdomain.Order) ([]outbox.Event, error) {
		from := s.Status
		now := t.now()
		if !s.Apply(status, raw, now) {
			return nil, nil
		}
		changed = true
		tp := tracing.Traceparent(ctx)
		ev, err := outbox.NewEvent(domain.AggregateType, s.ID, domain.EventShipmentUpdated, domain.ShipmentUpdated{
			ShipmentID: s.ID, OrderID: s.OrderID, Courier: s.Courier, TrackingID: s.TrackingID,
			From: from, To: s.Status, RawStatus: raw,
		}, tp)
		if err != nil {
			return nil, err
		}
		events := []outbox.Event{ev}

		target, ok := domain.OrderTarget(s.Status)
		orderFrom := o.Status
		if ok && o.Advance(target, now) {
			ev, err := outbox.NewEvent(orderdomain.AggregateType, o.ID, orderdomain.EventOrderStatusChanged,
				orderdomain.StatusChanged(o, orderFrom), tp)
			if err != nil {
				return nil, err
			}
			events = append(events, ev)
		}
		return events, nil
	})
	if err != nil {
		return Result{}, err
	}
	if changed {
		t.log.Info("shipment updated", "shipment_id", s.ID, "status", s.Status, "raw_status", raw, "order_status", o.Status)
	}
	return Result{Shipment: s, Order: o, Changed: changed}, nil
}

func (t *Tracker) Get(ctx context.Context, id string) (domain.Shipment, error) {
	return t.repo.Get(ctx, id)
}

func (t *Tracker) ListByOrder(ctx context.Context, orderID string) ([]domain.Shipment, error) {
	if _, err := t.repo.Order(ctx, orderID); err != nil {
		return nil, err
	}
	return t.repo.ListByOrder(ctx, orderID)
}
