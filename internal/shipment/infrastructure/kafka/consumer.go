package kafka

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/segmentio/kafka-go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/mishimanto/ecommerce/internal/shipment/application"
	"github.com/mishimanto/ecommerce/pkg/apperr"
	"github.com/mishimanto/ecommerce/pkg/idempotency"
	"github.com/mishimanto/ecommerce/pkg/metrics"
	"github.com/mishimanto/ecommerce/pkg/tracing"
)

// StatusEvent is one courier status report published to courier.events.
type StatusEvent struct {
	Courier    string `json:"courier"`
	TrackingID string `json:"tracking_id"`
	Status     string `json:"status"`
}

type Updater interface {
	HandleUpdate(ctx context.Context, courier, trackingID, raw string) (application.Result, error)
}

type Reader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

type Consumer struct {
	log     *slog.Logger
	reader  Reader
	tracker Updater
	idem    *idempotency.Store
	metrics *metrics.Metrics
	tracer  trace.Tracer
}

func NewReader(brokers []string, topic, group string) *kafka.Reader {
	return kafka.NewReader(kafka.ReaderConfig{
		Brokers: brokers,
		Topic:   topic,
		GroupID: group,
	})
}

func NewConsumer(log *slog.Logger, reader Reader, tracker Updater, idem *idempotency.Store, m *metrics.Metrics) *Consumer {
	return &Consumer{
		log:     log,
		reader:  reader,
		tracker: tracker,
		idem:    idem,
		metrics: m,
		tracer:  otel.Tracer("courier-consumer"),
	}
}

// Run consumes until ctx ends or an update fails for a reason other than
// bad input. Such a message stays uncommitted and is redelivered after a
// restart.
func (c *Consumer) Run(ctx context.Context) error {
	defer c.reader.Close()

	for {
		msg, err := c.reader.FetchMessage(ctx)
		if err != nil {
			return err
		}
		key := c.idem.Key(msg.Topic, msg.Partition, msg.Offset)
		seen, err := c.idem.Seen(ctx, key)
		if err != nil {
			c.log.Error("idempotency check failed", "err", err)
			continue
		}
		if seen {
			c.log.Info("duplicate message skipped", "key", key)
			_ = c.reader.CommitMessages(ctx, msg)
			continue
		}

		if err := c.handle(ctx, msg); err != nil {
			_ = c.idem.Forget(ctx, key)
			return err
		}
		if err := c.reader.CommitMessages(ctx, msg); err != nil {
			return err
		}
	}
}

func (c *Consumer) handle(ctx context.Context, msg kafka.Message) error {
	msgCtx := tracing.ExtractKafkaHeaders(ctx, msg.Headers)
	msgCtx, span := c.tracer.Start(msgCtx, "ConsumeCourierStatus")
	defer span.End()

	var ev StatusEvent
	if err := json.Unmarshal(msg.Value, &ev); err != nil {
		c.log.Error("unmarshal failed", "offset", msg.Offset, "err", err)
		c.count("unknown", "rejected")
		return nil
	}
	span.SetAttributes(attribute.String("courier", ev.Courier), attribute.String("tracking_id", ev.TrackingID))

	res, err := c.tracker.HandleUpdate(msgCtx, ev.Courier, ev.TrackingID, ev.Status)
	switch {
	case err == nil:
	case apperr.KindOf(err) != apperr.KindInternal:
		c.log.Warn("courier update rejected", "courier", ev.Courier, "tracking_id", ev.TrackingID, "status", ev.Status, "err", err)
		c.count(ev.Courier, "rejected")
		return nil
	default:
		span.RecordError(err)
		c.log.Error("courier update failed", "courier", ev.Courier, "tracking_id", ev.TrackingID, "err", err)
		c.count(ev.Courier, "error")
		return err
	}
	if res.Changed {
		c.count(ev.Courier, "updated")
	} else {
		c.count(ev.Courier, "unchanged")
	}
	return nil
}

func (c *Consumer) count(courier, outcome string) {
	if c.metrics != nil {
		c.metrics.CourierUpdates.WithLabelValues(courier, outcome).Inc()
	}
}
