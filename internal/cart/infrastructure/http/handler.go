package http

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"github.com/mishimanto/ecommerce/internal/cart/application"
	"github.com/mishimanto/ecommerce/internal/cart/domain"
	"github.com/mishimanto/ecommerce/pkg/apperr"
	"github.com/mishimanto/ecommerce/pkg/auth"
	"github.com/mishimanto/ecommerce/pkg/httpx"
)

// SessionHeader carries the anonymous cart token.
const SessionHeader = "X-Cart-Session"

type Handler struct {
	log     *slog.Logger
	service *application.Service
	tracer  trace.Tracer
}

func NewHandler(log *slog.Logger, service *application.Service) *Handler {
	return &Handler{
		log:     log,
		service: service,
		tracer:  otel.Tracer("cart-http"),
	}
}

// Routes expects auth.Optional to have run.
func (h *Handler) Routes() http.Handler {
	r := chi.NewRouter()
	r.Get("/", h.get)
	r.Delete("/", h.clear)
	r.Post("/items", h.addItem)
	r.Patch("/items/{itemID}", h.updateItem)
	r.Delete("/items/{itemID}", h.removeItem)
	r.Post("/coupon", h.applyCoupon)
	r.Delete("/coupon", h.removeCoupon)
	r.Post("/merge", h.merge)
	return r
}

func owner(r *http.Request) (domain.Owner, error) {
	if p, ok := auth.FromContext(r.Context()); ok {
		return domain.Owner{UserID: p.UserID}, nil
	}
	if token := r.Header.Get(SessionHeader); token != "" {
		return domain.Owner{SessionToken: token}, nil
	}
	return domain.Owner{}, domain.ErrInvalidOwner
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	ctx, span := h.tracer.Start(r.Context(), "GetCart")
	defer span.End()

	o, err := owner(r)
	if err != nil {
		httpx.Error(w, h.log, err)
		return
	}
	sum, err := h.service.Summary(ctx, o)
	if err != nil {
		httpx.Error(w, h.log, err)
		return
	}
	httpx.JSON(w, http.StatusOK, sum)
}

func (h *Handler) clear(w http.ResponseWriter, r *http.Request) {
	ctx, span := h.tracer.Start(r.Context(), "ClearCart")
	defer span.End()

	o, err := owner(r)
	if err != nil {
		httpx.Error(w, h.log, err)
		return
	}
	if err := h.service.Clear(ctx, o); err != nil {
		httpx.Error(w, h.log, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) addItem(w http.ResponseWriter, r *http.Request) {
	ctx, span := h.tracer.Start(r.Context(), "AddCartItem")
	defer span.End()

	o, err := owner(r)
	if err != nil {
		httpx.Error(w, h.log, err)
		return
	}
	var req application.AddItemInput
	if err := httpx.Decode(r, &req); err != nil {
		httpx.Error(w, h.log, err)
		return
	}
	sum, err := h.service.AddItem(ctx, o, req)
	if err != nil {
		httpx.Error(w, h.log, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, sum)
}

type updateItemReq struct {
	Quantity int `json:"quantity"`
}

func (h *Handler) updateItem(w http.ResponseWriter, r *http.Request) {
	ctx, span := h.tracer.Start(r.Context(), "UpdateCartItem")
	defer span.End()

	o, err := owner(r)
	if err != nil {
		httpx.Error(w, h.log, err)
		return
	}
	var req updateItemReq
	if err := httpx.Decode(r, &req); err != nil {
		httpx.Error(w, h.log, err)
		return
	}
	sum, err := h.service.UpdateItem(ctx, o, chi.URLParam(r, "itemID"), req.Quantity)
	if err != nil {
		httpx.Error(w, h.log, err)
		return
	}
	httpx.JSON(w, http.StatusOK, sum)
}

func (h *Handler) removeItem(w http.ResponseWriter, r *http.Request) {
	ctx, span := h.tracer.Start(r.Context(), "RemoveCartItem")
	defer span.End()

	o, err := owner(r)
	if err != nil {
		httpx.Error(w, h.log, err)
		return
	}
	sum, err := h.service.RemoveItem(ctx, o, chi.URLParam(r, "itemID"))
	if err != nil {
		httpx.Error(w, h.log, err)
		return
	}
	httpx.JSON(w, http.StatusOK, sum)
}

type couponReq struct {
	Code string `json:"code"`
}

func (h *Handler) applyCoupon(w http.ResponseWriter, r *http.Request) {
	ctx, span := h.tracer.Start(r.Context(), "ApplyCoupon")
	defer span.End()

	o, err := owner(r)
	if err != nil {
		httpx.Error(w, h.log, err)
		return
	}
	var req couponReq
	if err := httpx.Decode(r, &req); err != nil {
		httpx.Error(w, h.log, err)
		return
	}
	sum, err := h.service.ApplyCoupon(ctx, o, req.Code)
	if err != nil {
		httpx.Error(w, h.log, err)
		return
	}
	httpx.JSON(w, http.StatusOK, sum)
}

func (h *Handler) removeCoupon(w http.ResponseWriter, r *http.Request) {
	ctx, span := h.tracer.Start(r.Context(), "RemoveCoupon")
	defer span.End()

	o, err := owner(r)
	if err != nil {
		httpx.Error(w, h.log, err)
		return
	}
	sum, err := h.service.RemoveCoupon(ctx, o)
	if err != nil {
		httpx.Error(w, h.log, err)
		return
	}
	httpx.JSON(w, http.StatusOK, sum)
}

// merge folds the session cart named by the header into the caller's cart.
func (h *Handler) merge(w http.ResponseWriter, r *http.Request) {
	ctx, span := h.tracer.Start(r.Context(), "MergeCart")
	defer span.End()

	p, ok := auth.FromContext(ctx)
	if !ok {
		httpx.Error(w, h.log, apperr.Forbidden("login_required", "sign in to merge carts"))
		return
	}
	token := r.Header.Get(SessionHeader)
	if token == "" {
		httpx.Error(w, h.log, domain.ErrInvalidOwner)
		return
	}
	sum, err := h.service.Merge(ctx, token, p.UserID)
	if err != nil {
		httpx.Error(w, h.log, err)
		return
	}
	httpx.JSON(w, http.StatusOK, sum)
}
