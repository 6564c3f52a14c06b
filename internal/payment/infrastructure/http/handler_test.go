package http

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	catdomain "github.com/mishimanto/ecommerce/internal/catalog/domain"
	orderapp "github.com/mishimanto/ecommerce/internal/order/application"
	orderdomain "github.com/mishimanto/ecommerce/internal/order/domain"
	"github.com/mishimanto/ecommerce/internal/payment/application"
	"github.com/mishimanto/ecommerce/internal/payment/domain"
	"github.com/mishimanto/ecommerce/internal/payment/gateway"
	"github.com/mishimanto/ecommerce/internal/storage/memory"
	"github.com/mishimanto/ecommerce/pkg/auth"
	"github.com/mishimanto/ecommerce/pkg/logging"
	"github.com/mishimanto/ecommerce/pkg/metrics"
)

// placeCOD stores a pending cash order of 1000 cents for user 7.
func placeCOD(t *testing.T, st *memory.Store) domain.Payment {
	t.Helper()
	now := time.Now().UTC()
	o := orderdomain.Order{
		ID: uuid.NewString(), Number: "ORD-" + uuid.NewString()[:8], UserID: 7,
		Status: orderdomain.StatusPending, PaymentStatus: orderdomain.PaymentPending,
		Items:         []orderdomain.Item{{ID: uuid.NewString(), ProductID: 1, UnitPriceCents: 1000, Quantity: 1}},
		SubtotalCents: 1000, TotalCents: 1000, Currency: "USD", PaymentMethod: string(domain.MethodCOD),
		CreatedAt: now, UpdatedAt: now,
	}
	p := domain.New(o.ID, o.Number, o.TotalCents, o.Currency, domain.MethodCOD, now)
	require.NoError(t, st.Orders().Place(context.Background(), orderapp.Placement{Order: o, Payment: p}))
	return p
}

func newHandler(t *testing.T) (*Handler, domain.Payment, *metrics.Metrics) {
	t.Helper()
	st := memory.New()
	st.AddProduct(catdomain.Product{ID: 1, Name: "Mug", SKU: "MUG", PriceCents: 1000, Stock: 5, Status: catdomain.StatusActive})
	p := placeCOD(t, st)
	m := metrics.New("test")
	svc := application.NewService(logging.Discard(), st.Payments(), gateway.NewRegistry(gateway.NewCOD()))
	return NewHandler(logging.Discard(), svc, gateway.URLs{}, m), p, m
}

func serve(h http.Handler, userID int64, roles []string, method, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if userID != 0 {
		req = req.WithContext(auth.WithPrincipal(req.Context(), auth.Principal{UserID: userID, Roles: roles}))
	}
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr
}

func settlement(t *testing.T, rr *httptest.ResponseRecorder) application.Settlement {
	t.Helper()
	var s application.Settlement
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &s))
	return s
}

func TestConfirmIsScopedToTheOwner(t *testing.T) {
	h, p, _ := newHandler(t)
	routes := h.Routes()

	rr := serve(routes, 8, nil, http.MethodPost, "/"+p.ID+"/confirm", "")
	assert.Equal(t, http.StatusNotFound, rr.Code)

	rr = serve(routes, 8, []string{auth.RoleAdmin}, http.MethodPost, "/"+p.ID+"/confirm", "")
	assert.Equal(t, http.StatusOK, rr.Code)

	rr = serve(routes, 7, nil, http.MethodPost, "/"+p.ID+"/confirm", "")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, domain.StatusPending, settlement(t, rr).Payment.Status, "cash stays pending until collected")
}

func TestCollectThenRefund(t *testing.T) {
	h, p, m := newHandler(t)
	admin := h.AdminRoutes()

	rr := serve(admin, 1, nil, http.MethodPost, "/"+p.ID+"/refund", `{"amount_cents":100}`)
	assert.Equal(t, http.StatusConflict, rr.Code, "nothing collected yet")

	rr = serve(admin, 1, nil, http.MethodPost, "/"+p.ID+"/collect", "")
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	s := settlement(t, rr)
	assert.Equal(t, domain.StatusCompleted, s.Payment.Status)
	assert.Equal(t, orderdomain.PaymentPaid, s.Order.PaymentStatus)
	assert.Equal(t, orderdomain.StatusProcessing, s.Order.Status)

	rr = serve(admin, 1, nil, http.MethodPost, "/"+p.ID+"/collect", "")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, domain.EffectDuplicate, settlement(t, rr).Effect)

	rr = serve(admin, 1, nil, http.MethodPost, "/"+p.ID+"/refund", `{"amount_cents":400,"reason":"damaged"}`)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	s = settlement(t, rr)
	assert.Equal(t, domain.StatusPartiallyRefunded, s.Payment.Status)
	assert.Equal(t, int64(400), s.RefundedCents)
	assert.Equal(t, 400.0, testutil.ToFloat64(m.RefundsCents))

	rr = serve(admin, 1, nil, http.MethodPost, "/"+p.ID+"/refund", `{"amount_cents":700}`)
	assert.Equal(t, http.StatusUnprocessableEntity, rr.Code)

	rr = serve(admin, 1, nil, http.MethodGet, "/"+p.ID, "")
	require.Equal(t, http.StatusOK, rr.Code)
	var got domain.Payment
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &got))
	assert.Equal(t, int64(400), got.RefundedCents)

	rr = serve(admin, 1, nil, http.MethodGet, "/missing", "")
	assert.Equal(t, http.StatusNotFound, rr.Code)
}
