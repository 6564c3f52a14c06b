package http

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"github.com/mishimanto/ecommerce/internal/order/application"
	"github.com/mishimanto/ecommerce/internal/order/domain"
	paydomain "github.com/mishimanto/ecommerce/internal/payment/domain"
	"github.com/mishimanto/ecommerce/internal/payment/gateway"
	"github.com/mishimanto/ecommerce/pkg/apperr"
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
		tracer:  otel.Tracer("order-http"),
	}
}

// Routes serves /orders. Tracking by number is public; everything else
// runs behind requireUser. retry, when set, serves POST /{id}/payments.
func (h *Handler) Routes(requireUser func(http.Handler) http.Handler, retry http.HandlerFunc) http.Handler {
	r := chi.NewRouter()
	r.Get("/track/{number}", h.track)
	r.Group(func(r chi.Router) {
		r.Use(requireUser)
		r.Get("/", h.list)
		r.Get("/{id}", h.get)
		r.Post("/{id}/cancel", h.cancel)
		r.Post("/{id}/return", h.requestReturn)
		if retry != nil {
			r.Post("/{id}/payments", retry)
		}
	})
	return r
}

// AdminRoutes serves /admin/orders. shipments, when set, serves
// /{id}/shipments.
func (h *Handler) AdminRoutes(shipments ShipmentRoutes) http.Handler {
	r := chi.NewRouter()
	r.Get("/{id}", h.adminGet)
	r.Post("/{id}/return/approve", h.approveReturn)
	r.Post("/{id}/return/complete", h.completeReturn)
	if shipments != nil {
		r.Get("/{id}/shipments", shipments.List)
		r.Post("/{id}/shipments", shipments.Create)
	}
	return r
}

// ShipmentRoutes are the shipment handlers that hang off an order.
type ShipmentRoutes interface {
	Create(w http.ResponseWriter, r *http.Request)
	List(w http.ResponseWriter, r *http.Request)
}

type checkoutResp struct {
	Order        domain.Order         `json:"order"`
	Payment      paydomain.Payment    `json:"payment"`
	Session      *gateway.Session     `json:"session,omitempty"`
	PaymentError *httpx.ErrorResponse `json:"payment_error,omitempty"`
}

// Checkout serves POST /checkout for an authenticated user.
func (h *Handler) Checkout(w http.ResponseWriter, r *http.Request) {
	ctx, span := h.tracer.Start(r.Context(), "Checkout")
	defer span.End()

	p, _ := auth.FromContext(ctx)
	var req application.CheckoutRequest
	if err := httpx.Decode(r, &req); err != nil {
		h.count("invalid")
		httpx.Error(w, h.log, err)
		return
	}
	req.UserID = p.UserID
	req.URLs = h.urls

	res, err := h.service.Checkout(ctx, req)
	if err != nil {
		if application.IsCheckoutRejection(err) {
			h.count("rejected")
		} else {
			h.count("error")
		}
		httpx.Error(w, h.log, err)
		return
	}
	out := checkoutResp{Order: res.Order, Payment: res.Payment, Session: res.Session}
	if res.InitError != nil {
		h.count("placed_unpaid")
		out.PaymentError = &httpx.ErrorResponse{Error: res.InitError.Error(), Code: apperr.CodeOf(res.InitError)}
	} else {
		h.count("placed")
	}
	httpx.JSON(w, http.StatusCreated, out)
}

func (h *Handler) count(outcome string) {
	if h.metrics != nil {
		h.metrics.Checkouts.WithLabelValues(outcome).Inc()
	}
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	ctx, span := h.tracer.Start(r.Context(), "ListOrders")
	defer span.End()

	p, _ := auth.FromContext(ctx)
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))
	orders, err := h.service.ListByUser(ctx, p.UserID, limit, offset)
	if err != nil {
		httpx.Error(w, h.log, err)
		return
	}
	httpx.JSON(w, http.StatusOK, orders)
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	ctx, span := h.tracer.Start(r.Context(), "GetOrder")
	defer span.End()

	p, _ := auth.FromContext(ctx)
	o, err := h.service.Get(ctx, p.UserID, chi.URLParam(r, "id"))
	if err != nil {
		httpx.Error(w, h.log, err)
		return
	}
	httpx.JSON(w, http.StatusOK, o)
}

func (h *Handler) adminGet(w http.ResponseWriter, r *http.Request) {
	ctx, span := h.tracer.Start(r.Context(), "AdminGetOrder")
	defer span.End()

	o, err := h.service.Get(ctx, 0, chi.URLParam(r, "id"))
	if err != nil {
		httpx.Error(w, h.log, err)
		return
	}
	httpx.JSON(w, http.StatusOK, o)
}

func (h *Handler) track(w http.ResponseWriter, r *http.Request) {
	ctx, span := h.tracer.Start(r.Context(), "TrackOrder")
	defer span.End()

	t, err := h.service.Track(ctx, chi.URLParam(r, "number"))
	if err != nil {
		httpx.Error(w, h.log, err)
		return
	}
	httpx.JSON(w, http.StatusOK, t)
}

type reasonReq struct {
	Reason string `json:"reason"`
}

// reasonOf reads an optional {"reason": ...} body.
func reasonOf(r *http.Request) (string, error) {
	if r.ContentLength == 0 {
		return "", nil
	}
	var req reasonReq
	if err := httpx.Decode(r, &req); err != nil {
		return "", err
	}
	return req.Reason, nil
}

func (h *Handler) cancel(w http.ResponseWriter, r *http.Request) {
	ctx, span := h.tracer.Start(r.Context(), "CancelOrder")
	defer span.End()

	p, _ := auth.FromContext(ctx)
	reason, err := reasonOf(r)
	if err != nil {
		httpx.Error(w, h.log, err)
		return
	}
	o, err := h.service.Cancel(ctx, p.UserID, chi.URLParam(r, "id"), reason)
	if err != nil {
		httpx.Error(w, h.log, err)
		return
	}
	httpx.JSON(w, http.StatusOK, o)
}

func (h *Handler) requestReturn(w http.ResponseWriter, r *http.Request) {
	ctx, span := h.tracer.Start(r.Context(), "RequestReturn")
	defer span.End()

	p, _ := auth.FromContext(ctx)
	reason, err := reasonOf(r)
	if err != nil {
		httpx.Error(w, h.log, err)
		return
	}
	o, err := h.service.RequestReturn(ctx, p.UserID, chi.URLParam(r, "id"), reason)
	if err != nil {
		httpx.Error(w, h.log, err)
		return
	}
	httpx.JSON(w, http.StatusOK, o)
}

func (h *Handler) approveReturn(w http.ResponseWriter, r *http.Request) {
	ctx, span := h.tracer.Start(r.Context(), "ApproveReturn")
	defer span.End()

	o, err := h.service.ApproveReturn(ctx, chi.URLParam(r, "id"))
	if err != nil {
		httpx.Error(w, h.log, err)
		return
	}
	httpx.JSON(w, http.StatusOK, o)
}

func (h *Handler) completeReturn(w http.ResponseWriter, r *http.Request) {
	ctx, span := h.tracer.Start(r.Context(), "CompleteReturn")
	defer span.End()

	reason, err := reasonOf(r)
	if err != nil {
		httpx.Error(w, h.log, err)
		return
	}
	o, err := h.service.CompleteReturn(ctx, chi.URLParam(r, "id"), reason)
	if err != nil {
		httpx.Error(w, h.log, err)
		return
	}
	httpx.JSON(w, http.StatusOK, o)
}
