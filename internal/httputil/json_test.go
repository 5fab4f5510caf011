package httputil

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"tradesim/internal/apperr"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReadJSON(t *testing.T) {
	var dst struct {
		Amount string `json:"amount"`
	}
	r := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"amount":"10.5"}`))
	require.NoError(t, ReadJSON(r, &dst))
	assert.Equal(t, "10.5", dst.Amount)

	r = httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"amount":"1","extra":true}`))
	assert.EqualError(t, ReadJSON(r, &dst), "invalid json")

	r = httptest.NewRequest(http.MethodPost, "/", strings.NewReader(``))
	assert.EqualError(t, ReadJSON(r, &dst), "empty body")
}

func TestWriteError(t *testing.T) {
	cases := []struct {
		err    error
		status int
		body   string
	}{
		{apperr.Validation("amount must be positive"), http.StatusBadRequest, "amount must be positive"},
		{fmt.Errorf("approve: %w", apperr.NotFound("order not found")), http.StatusNotFound, "approve: order not found"},
		{apperr.Conflict("invalid state"), http.StatusConflict, "invalid state"},
		{apperr.Forbidden("forbidden"), http.StatusForbidden, "forbidden"},
		{apperr.Unauthorized("invalid token"), http.StatusUnauthorized, "invalid token"},
		{errors.New("pq: connection refused"), http.StatusInternalServerError, "internal error"},
	}
	for _, tc := range cases {
		rec := httptest.NewRecorder()
		WriteError(rec, tc.err)
		assert.Equal(t, tc.status, rec.Code)
		var body ErrorResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
		assert.Equal(t, tc.body, body.Error)
		assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	}
}
