package http

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"github.com/mishimanto/ecommerce/internal/settlement/domain"
	"github.com/mishimanto/ecommerce/pkg/httpx"
	"github.com/mishimanto/ecommerce/pkg/metrics"
)

const maxPayload = 1 << 20

type Reconciler interface {
	SignatureHeader(method string) string
	HandleCallback(ctx context.Context, method string, payload []byte, signature string) (domain.Result, error)
}

// Receipts lists audited callbacks.
type Receipts interface {
	Rejected(ctx context.Context, limit int) ([]domain.Receipt, error)
}

type Handler struct {
	log     *slog.Logger
	rec     Reconciler
	metrics *metrics.Metrics
	tracer  trace.Tracer
}

func NewHandler(log *slog.Logger, rec Reconciler, m *metrics.Metrics) *Handler {
	return &Handler{log: log, rec: rec, metrics: m, tracer: otel.Tracer("settlement-http")}
}

// Routes is mounted under /webhooks/payments.
func (h *Handler) Routes() http.Handler {
	r := chi.NewRouter()
	r.Post("/{method}", h.callback)
	return r
}

// AdminRoutes is mounted under /admin/webhooks.
func (h *Handler) AdminRoutes(receipts Receipts) http.Handler {
	r := chi.NewRouter()
	r.Get("/rejected", func(w http.ResponseWriter, r *http.Request) {
		ctx, span := h.tracer.Start(r.Context(), "ListRejectedCallbacks")
		defer span.End()

		limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
		list, err := receipts.Rejected(ctx, limit)
		if err != nil {
			httpx.Error(w, h.log, err)
			return
		}
		out := make([]receiptView, 0, len(list))
		for _, rc := range list {
			out = append(out, receiptView{
				ID: rc.ID, Provider: rc.Provider, Result: rc.Result,
				Payload: string(rc.Payload), ReceivedAt: rc.ReceivedAt,
			})
		}
		httpx.JSON(w, http.StatusOK, out)
	})
	return r
}

type receiptView struct {
	ID         string        `json:"id"`
	Provider   string        `json:"provider"`
	Result     domain.Result `json:"result"`
	Payload    string        `json:"payload"`
	ReceivedAt time.Time     `json:"received_at"`
}

func (h *Handler) callback(w http.ResponseWriter, r *http.Request) {
	ctx, span := h.tracer.Start(r.Context(), "PaymentCallback")
	defer span.End()

	method := chi.URLParam(r, "method")
	payload, err := io.ReadAll(io.LimitReader(r.Body, maxPayload))
	if err != nil {
		httpx.Fail(w, http.StatusBadRequest, string(domain.ReasonMalformed), "unreadable body")
		return
	}
	var signature string
	if header := h.rec.SignatureHeader(method); header != "" {
		signature = r.Header.Get(header)
	}

	res, err := h.rec.HandleCallback(ctx, method, payload, signature)
	if err != nil {
		span.RecordError(err)
		h.count(method, "error")
		h.log.Error("callback processing failed", "provider", method, "err", err)
		httpx.Fail(w, http.StatusInternalServerError, "internal_error", "internal error")
		return
	}
	h.count(method, string(res.Outcome))
	httpx.JSON(w, StatusFor(res), res)
}

func (h *Handler) count(provider, outcome string) {
	if h.metrics != nil {
		h.metrics.Callbacks.WithLabelValues(provider, outcome).Inc()
	}
}

// StatusFor maps a callback result to the response the gateway sees. Only
// unknown references ask for redelivery.
func StatusFor(res domain.Result) int {
	if res.Outcome != domain.OutcomeRejected {
		return http.StatusOK
	}
	switch res.Reason {
	case domain.ReasonBadSignature:
		return http.StatusUnauthorized
	case domain.ReasonUnknownGateway, domain.ReasonCallbacksUnsupported:
		return http.StatusNotFound
	case domain.ReasonUnknownReference:
		return http.StatusConflict
	default:
		return http.StatusBadRequest
	}
}
