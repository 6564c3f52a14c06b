package http

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mishimanto/ecommerce/internal/shipment/application"
	"github.com/mishimanto/ecommerce/internal/shipment/domain"
	"github.com/mishimanto/ecommerce/pkg/logging"
	"github.com/mishimanto/ecommerce/pkg/metrics"
)

type fakeTracker struct {
	courier string
	payload string
	created application.CreateRequest
	res     application.Result
	err     error
}

func (f *fakeTracker) CreateShipment(_ context.Context, req application.CreateRequest) (application.Result, error) {
	f.created = req
	return f.res, f.err
}

func (f *fakeTracker) HandleWebhook(_ context.Context, courier string, payload []byte) (application.Result, error) {
	f.courier, f.payload = courier, string(payload)
	return f.res, f.err
}

func (f *fakeTracker) Refresh(context.Context, string) (application.Result, error) { return f.res, f.err }

func (f *fakeTracker) Get(context.Context, string) (domain.Shipment, error) {
	return f.res.Shipment, f.err
}

func (f *fakeTracker) ListByOrder(context.Context, string) ([]domain.Shipment, error) { return nil, f.err }

func webhook(h *Handler, token, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/pathao", strings.NewReader(body))
	if token != "" {
		req.Header.Set(TokenHeader, token)
	}
	rr := httptest.NewRecorder()
	h.WebhookRoutes().ServeHTTP(rr, req)
	return rr
}

func TestWebhookRequiresToken(t *testing.T) {
	tr := &fakeTracker{}
	m := metrics.New("test")
	h := NewHandler(logging.Discard(), tr, "s3cret", m)

	assert.Equal(t, http.StatusUnauthorized, webhook(h, "", `{}`).Code)
	assert.Equal(t, http.StatusUnauthorized, webhook(h, "s3cre", `{}`).Code)
	assert.Empty(t, tr.courier)
	assert.Equal(t, 2.0, testutil.ToFloat64(m.CourierUpdates.WithLabelValues("pathao", "unauthorized")))

	open := NewHandler(logging.Discard(), tr, "", nil)
	assert.Equal(t, http.StatusUnauthorized, webhook(open, "", `{}`).Code, "no configured token refuses all")
}

func TestWebhookAppliesUpdate(t *testing.T) {
	tr := &fakeTracker{res: application.Result{Changed: true, Shipment: domain.Shipment{Status: domain.StatusPicked}}}
	m := metrics.New("test")
	h := NewHandler(logging.Discard(), tr, "s3cret", m)

	rr := webhook(h, "s3cret", `{"consignment_id":"DL1","order_status":"Order Picked"}`)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "pathao", tr.courier)
	assert.Contains(t, tr.payload, "DL1")
	assert.Equal(t, 1.0, testutil.ToFloat64(m.CourierUpdates.WithLabelValues("pathao", "updated")))
}

func TestWebhookErrors(t *testing.T) {
	cases := []struct {
		err  error
		want int
	}{
		{domain.ErrUnknownStatus, http.StatusUnprocessableEntity},
		{domain.ErrNotFound, http.StatusNotFound},
		{domain.ErrUnknownCourier, http.StatusUnprocessableEntity},
	}
	for _, tc := range cases {
		h := NewHandler(logging.Discard(), &fakeTracker{err: tc.err}, "s3cret", nil)
		assert.Equal(t, tc.want, webhook(h, "s3cret", `{}`).Code, tc.err.Error())
	}
}

func TestCreateShipment(t *testing.T) {
	tr := &fakeTracker{res: application.Result{Changed: true}}
	h := NewHandler(logging.Discard(), tr, "s3cret", nil)
	r := chi.NewRouter()
	r.Post("/admin/orders/{id}/shipments", h.Create)

	req := httptest.NewRequest(http.MethodPost, "/admin/orders/o-1/shipments", strings.NewReader(`{"courier":"manual","tracking_id":"M1"}`))
	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, req)
	assert.Equal(t, http.StatusCreated, rr.Code)
	assert.Equal(t, application.CreateRequest{OrderID: "o-1", Courier: "manual", TrackingID: "M1"}, tr.created)

	tr.err = domain.ErrNotShippable
	rr = httptest.NewRecorder()
	r.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/admin/orders/o-1/shipments", strings.NewReader(`{"courier":"manual"}`)))
	assert.Equal(t, http.StatusConflict, rr.Code)
}
