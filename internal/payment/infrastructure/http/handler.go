package http

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"github.com/mishimanto/ecommerce/internal/payment/application"
	"github.com/mishimanto/ecommerce/internal/payment/domain"
	"github.com/mishimanto/ecommerce/internal/payment/gateway"
	"github.com/mishimanto/ecommerce/pkg/auth"
	"github.com/mishimanto/ecommerce/pkg/httpx"
	"github.com/mishimanto/ecommerce/pkg/metrics"
)

type Handler struct {
	log     *slog.Logger
	service *application.Service
	urls    gateway.URLs
	metrics *metrics.Metrics
	tracer  trace.Tracer
}

func NewHandler(log *slog.Logger, service *application.Service, urls gateway.URLs, m *metrics.Metrics) *Handler {
	return &Handler{
		log:     log,
		service: service,
		urls:    urls,
		metrics: m,
		tracer:  otel.Tracer("payment-http"),
	}
}

// Routes is mounted under /payments behind auth.Required.
func (h *Handler) Routes() http.Handler {
	r := chi.NewRouter()
	r.Post("/{paymentID}/confirm", h.confirm)
	return r
}

// AdminRoutes is mounted under /admin/payments.
func (h *Handler) AdminRoutes() http.Handler {
	r := chi.NewRouter()
	r.Get("/{paymentID}", h.get)
	r.Post("/{paymentID}/refund", h.refund)
	r.Post("/{paymentID}/collect", h.collect)
	return r
}

type retryReq struct {
	Method string `json:"payment_method"`
}

// Retry serves POST /orders/{id}/payments.
func (h *Handler) Retry(w http.ResponseWriter, r *http.Request) {
	ctx, span := h.tracer.Start(r.Context(), "RetryPayment")
	defer span.End()

	p, _ := auth.FromContext(ctx)
	var req retryReq
	if err := httpx.Decode(r, &req); err != nil {
		httpx.Error(w, h.log, err)
		return
	}
	a, err := h.service.Retry(ctx, chi.URLParam(r, "id"), p.UserID, req.Method, h.urls)
	if errors.Is(err, domain.ErrInitFailed) && a.Payment.ID != "" {
		// the attempt exists; the client may retry initiation later
		httpx.JSON(w, http.StatusAccepted, map[string]any{
			"payment": a.Payment,
			"error":   httpx.ErrorResponse{Error: domain.ErrInitFailed.Message, Code: domain.ErrInitFailed.Code},
		})
		return
	}
	if err != nil {
		httpx.Error(w, h.log, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, a)
}

func (h *Handler) confirm(w http.ResponseWriter, r *http.Request) {
	ctx, span := h.tracer.Start(r.Context(), "ConfirmPayment")
	defer span.End()

	p, _ := auth.FromContext(ctx)
	userID := p.UserID
	if p.HasRole(auth.RoleAdmin) {
		userID = 0
	}
	s, err := h.service.Confirm(ctx, chi.URLParam(r, "paymentID"), userID)
	if err != nil {
		httpx.Error(w, h.log, err)
		return
	}
	httpx.JSON(w, http.StatusOK, s)
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	ctx, span := h.tracer.Start(r.Context(), "GetPayment")
	defer span.End()

	p, err := h.service.Get(ctx, chi.URLParam(r, "paymentID"))
	if err != nil {
		httpx.Error(w, h.log, err)
		return
	}
	httpx.JSON(w, http.StatusOK, p)
}

func (h *Handler) refund(w http.ResponseWriter, r *http.Request) {
	ctx, span := h.tracer.Start(r.Context(), "RefundPayment")
	defer span.End()

	var req application.RefundRequest
	if err := httpx.Decode(r, &req); err != nil {
		httpx.Error(w, h.log, err)
		return
	}
	req.PaymentID = chi.URLParam(r, "paymentID")
	s, err := h.service.Refund(ctx, req)
	if err != nil {
		httpx.Error(w, h.log, err)
		return
	}
	if h.metrics != nil {
		h.metrics.RefundsCents.Add(float64(s.RefundedCents))
	}
	httpx.JSON(w, http.StatusOK, s)
}

func (h *Handler) collect(w http.ResponseWriter, r *http.Request) {
	ctx, span := h.tracer.Start(r.Context(), "CollectCash")
	defer span.End()

	s, err := h.service.CollectCash(ctx, chi.URLParam(r, "paymentID"))
	if err != nil {
		httpx.Error(w, h.log, err)
		return
	}
	httpx.JSON(w, http.StatusOK, s)
}
