package http

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mishimanto/ecommerce/internal/inventory/domain"
	"github.com/mishimanto/ecommerce/pkg/logging"
)

type fakeStock map[domain.Key]int

func (f fakeStock) Available(_ context.Context, key domain.Key) (int, error) { return f[key], nil }

func serve(h *Handler, method, path, body string) *httptest.ResponseRecorder {
	rr := httptest.NewRecorder()
	h.Routes().ServeHTTP(rr, httptest.NewRequest(method, path, strings.NewReader(body)))
	return rr
}

func TestAvailable(t *testing.T) {
	h := NewHandler(logging.Discard(), fakeStock{{ProductID: 1, VariantID: 2}: 4})

	rr := serve(h, http.MethodGet, "/1?variant_id=2", "")
	require.Equal(t, http.StatusOK, rr.Code)
	var got availability
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &got))
	assert.Equal(t, 4, got.Available)
	assert.True(t, got.OK)

	assert.Equal(t, http.StatusUnprocessableEntity, serve(h, http.MethodGet, "/abc", "").Code)
}

func TestCheckMergesLinesAndReportsShortfall(t *testing.T) {
	h := NewHandler(logging.Discard(), fakeStock{{ProductID: 1}: 3, {ProductID: 2}: 10})

	rr := serve(h, http.MethodPost, "/check",
		`{"lines":[{"product_id":1,"quantity":2},{"product_id":2,"quantity":1},{"product_id":1,"quantity":2}]}`)
	require.Equal(t, http.StatusOK, rr.Code)
	var got checkResp
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &got))
	assert.False(t, got.Available)
	require.Len(t, got.Lines, 2)
	assert.Equal(t, 4, got.Lines[0].Requested)
	assert.False(t, got.Lines[0].OK)
	assert.True(t, got.Lines[1].OK)

	rr = serve(h, http.MethodPost, "/check", `{"lines":[{"product_id":1,"quantity":0}]}`)
	assert.Equal(t, http.StatusUnprocessableEntity, rr.Code)
}
