package httpx

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mishimanto/ecommerce/pkg/apperr"
	"github.com/mishimanto/ecommerce/pkg/logging"
)

func TestErrorMapping(t *testing.T) {
	cases := []struct {
		err    error
		status int
		code   string
	}{
		{apperr.Validation("empty_cart", "cart is empty"), http.StatusUnprocessableEntity, "empty_cart"},
		{fmt.Errorf("wrap: %w", apperr.Conflict("insufficient_stock", "insufficient stock")), http.StatusConflict, "insufficient_stock"},
		{apperr.NotFound("order_not_found", "order not found"), http.StatusNotFound, "order_not_found"},
		{apperr.External("payment_initiation_failed", "payment initiation failed, please retry", nil), http.StatusBadGateway, "payment_initiation_failed"},
		{errors.New("pq: connection refused"), http.StatusInternalServerError, "internal_error"},
	}
	for _, tc := range cases {
		rec := httptest.NewRecorder()
		Error(rec, logging.Discard(), tc.err)

		assert.Equal(t, tc.status, rec.Code)
		var body ErrorResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
		assert.Equal(t, tc.code, body.Code)
		assert.NotContains(t, body.Error, "pq:")
	}
}

func TestDecodeRejectsUnknownFields(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"quantity":1,"bogus":true}`))
	var v struct {
		Quantity int `json:"quantity"`
	}
	err := Decode(req, &v)
	assert.True(t, apperr.IsKind(err, apperr.KindValidation))
}
