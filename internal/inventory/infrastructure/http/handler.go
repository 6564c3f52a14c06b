package http

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"github.com/mishimanto/ecommerce/internal/inventory/domain"
	"github.com/mishimanto/ecommerce/pkg/apperr"
	"github.com/mishimanto/ecommerce/pkg/httpx"
)

var errBadKey = apperr.Validation("invalid_product", "product and variant ids must be numeric")

type Stock interface {
	Available(ctx context.Context, key domain.Key) (int, error)
}

type Handler struct {
	log    *slog.Logger
	stock  Stock
	tracer trace.Tracer
}

func NewHandler(log *slog.Logger, stock Stock) *Handler {
	return &Handler{log: log, stock: stock, tracer: otel.Tracer("inventory-http")}
}

// Routes is mounted under /admin/inventory.
func (h *Handler) Routes() http.Handler {
	r := chi.NewRouter()
	r.Get("/{productID}", h.available)
	r.Post("/check", h.check)
	return r
}

type availability struct {
	domain.Key
	Available int  `json:"available"`
	Requested int  `json:"requested,omitempty"`
	OK        bool `json:"ok"`
}

func (h *Handler) available(w http.ResponseWriter, r *http.Request) {
	ctx, span := h.tracer.Start(r.Context(), "StockAvailable")
	defer span.End()

	var key domain.Key
	var err error
	if key.ProductID, err = strconv.ParseInt(chi.URLParam(r, "productID"), 10, 64); err != nil {
		httpx.Error(w, h.log, errBadKey)
		return
	}
	if v := r.URL.Query().Get("variant_id"); v != "" {
		if key.VariantID, err = strconv.ParseInt(v, 10, 64); err != nil {
			httpx.Error(w, h.log, errBadKey)
			return
		}
	}
	n, err := h.stock.Available(ctx, key)
	if err != nil {
		httpx.Error(w, h.log, err)
		return
	}
	httpx.JSON(w, http.StatusOK, availability{Key: key, Available: n, OK: n > 0})
}

type checkReq struct {
	Lines []domain.Line `json:"lines"`
}

type checkResp struct {
	Available bool           `json:"available"`
	Lines     []availability `json:"lines"`
}

// check reports whether every line could be reserved right now. Nothing is
// held.
func (h *Handler) check(w http.ResponseWriter, r *http.Request) {
	ctx, span := h.tracer.Start(r.Context(), "CheckStock")
	defer span.End()

	var req checkReq
	if err := httpx.Decode(r, &req); err != nil {
		httpx.Error(w, h.log, err)
		return
	}
	resp := checkResp{Available: true, Lines: []availability{}}
	for _, l := range domain.Normalize(req.Lines) {
		if l.Quantity <= 0 {
			httpx.Error(w, h.log, domain.ErrInvalidQuantity.Withf("%s", l.Key))
			return
		}
		n, err := h.stock.Available(ctx, l.Key)
		if err != nil {
			httpx.Error(w, h.log, err)
			return
		}
		a := availability{Key: l.Key, Available: n, Requested: l.Quantity, OK: n >= l.Quantity}
		resp.Available = resp.Available && a.OK
		resp.Lines = append(resp.Lines, a)
	}
	httpx.JSON(w, http.StatusOK, resp)
}
