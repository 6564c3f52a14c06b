package http

import (
	"context"
	"crypto/subtle"
	"io"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"github.com/mishimanto/ecommerce/internal/shipment/application"
	"github.com/mishimanto/ecommerce/internal/shipment/domain"
	"github.com/mishimanto/ecommerce/pkg/apperr"
	"github.com/mishimanto/ecommerce/pkg/httpx"
	"github.com/mishimanto/ecommerce/pkg/metrics"
)

const TokenHeader = "X-Webhook-Token"

type Tracker interface {
	CreateShipment(ctx context.Context, req application.CreateRequest) (application.Result, error)
	HandleWebhook(ctx context.Context, courier string, payload []byte) (application.Result, error)
	Refresh(ctx context.Context, shipmentID string) (application.Result, error)
	Get(ctx context.Context, id string) (domain.Shipment, error)
	ListByOrder(ctx context.Context, orderID string) ([]domain.Shipment, error)
}

type Handler struct {
	log     *slog.Logger
	tracker Tracker
	token   []byte
	metrics *metrics.Metrics
	tracer  trace.Tracer
}

// NewHandler serves the admin shipment routes and the courier webhook.
// Webhook calls must carry token in X-Webhook-Token; an empty token
// refuses every webhook.
func NewHandler(log *slog.Logger, tracker Tracker, token string, m *metrics.Metrics) *Handler {
	return &Handler{log: log, tracker: tracker, token: []byte(token), metrics: m, tracer: otel.Tracer("shipment-http")}
}

// WebhookRoutes is mounted under /webhooks/couriers.
func (h *Handler) WebhookRoutes() http.Handler {
	r := chi.NewRouter()
	r.Post("/{courier}", h.webhook)
	return r
}

// AdminRoutes is mounted under /admin/shipments.
func (h *Handler) AdminRoutes() http.Handler {
	r := chi.NewRouter()
	r.Get("/{shipmentID}", h.get)
	r.Post("/{shipmentID}/refresh", h.refresh)
	return r
}

func (h *Handler) authorized(r *http.Request) bool {
	got := []byte(r.Header.Get(TokenHeader))
	return len(h.token) > 0 && subtle.ConstantTimeCompare(got, h.token) == 1
}

func (h *Handler) webhook(w http.ResponseWriter, r *http.Request) {
	ctx, span := h.tracer.Start(r.Context(), "CourierWebhook")
	defer span.End()

	name := chi.URLParam(r, "courier")
	if !h.authorized(r) {
		h.count(name, "unauthorized")
		httpx.Fail(w, http.StatusUnauthorized, "bad_token", "invalid webhook token")
		return
	}
	payload, err := io.ReadAll(io.LimitReader(r.Body, 1<<20))
	if err != nil {
		httpx.Fail(w, http.StatusBadRequest, "malformed_payload", "unreadable body")
		return
	}
	res, err := h.tracker.HandleWebhook(ctx, name, payload)
	if err != nil {
		span.RecordError(err)
		if apperr.KindOf(err) == apperr.KindInternal {
			h.count(name, "error")
		} else {
			h.count(name, "rejected")
		}
		httpx.Error(w, h.log, err)
		return
	}
	if res.Changed {
		h.count(name, "updated")
	} else {
		h.count(name, "unchanged")
	}
	httpx.JSON(w, http.StatusOK, res)
}

func (h *Handler) count(courier, outcome string) {
	if h.metrics != nil {
		h.metrics.CourierUpdates.WithLabelValues(courier, outcome).Inc()
	}
}

// Create serves POST /admin/orders/{id}/shipments.
func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	ctx, span := h.tracer.Start(r.Context(), "CreateShipment")
	defer span.End()

	var req application.CreateRequest
	if err := httpx.Decode(r, &req); err != nil {
		httpx.Error(w, h.log, err)
		return
	}
	req.OrderID = chi.URLParam(r, "id")
	res, err := h.tracker.CreateShipment(ctx, req)
	if err != nil {
		httpx.Error(w, h.log, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, res)
}

// List serves GET /admin/orders/{id}/shipments.
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	ctx, span := h.tracer.Start(r.Context(), "ListShipments")
	defer span.End()

	list, err := h.tracker.ListByOrder(ctx, chi.URLParam(r, "id"))
	if err != nil {
		httpx.Error(w, h.log, err)
		return
	}
	if list == nil {
		list = []domain.Shipment{}
	}
	httpx.JSON(w, http.StatusOK, list)
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	ctx, span := h.tracer.Start(r.Context(), "GetShipment")
	defer span.End()

	s, err := h.tracker.Get(ctx, chi.URLParam(r, "shipmentID"))
	if err != nil {
		httpx.Error(w, h.log, err)
		return
	}
	httpx.JSON(w, http.StatusOK, s)
}

func (h *Handler) refresh(w http.ResponseWriter, r *http.Request) {
	ctx, span := h.tracer.Start(r.Context(), "RefreshShipment")
	defer span.End()

	res, err := h.tracker.Refresh(ctx, chi.URLParam(r, "shipmentID"))
	if err != nil {
		httpx.Error(w, h.log, err)
		return
	}
	httpx.JSON(w, http.StatusOK, res)
}
