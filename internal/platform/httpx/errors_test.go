package httpx

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/require"

	"github.com/sisco70/tabacchi/internal/shared"
)

func TestRespondErrorMapsDomainErrors(t *testing.T) {
	cases := []struct {
		err    error
		status int
	}{
		{fmt.Errorf("order 7: %w", shared.ErrNotFound), http.StatusNotFound},
		{shared.Invalid("quantity below zero"), http.StatusBadRequest},
		{fmt.Errorf("close: %w", shared.ErrConfirmationRequired), http.StatusConflict},
		{shared.ErrStopped, http.StatusServiceUnavailable},
		{fmt.Errorf("%w: %w", shared.ErrValidation, shared.ErrInvalidState), http.StatusUnprocessableEntity},
		{errors.New("connection reset"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		rec := httptest.NewRecorder()
		RespondError(rec, tc.err)
		require.Equal(t, tc.status, rec.Code, tc.err.Error())
		require.Equal(t, "application/problem+json", rec.Header().Get("Content-Type"))
	}
}

func TestRespondErrorHidesInternalCause(t *testing.T) {
	rec := httptest.NewRecorder()
	RespondError(rec, errors.New("password authentication failed for user"))
	require.NotContains(t, rec.Body.String(), "password")
}

type loadRequest struct {
	Quantity float64 `json:"quantity" validate:"gte=0"`
	Code     string  `json:"code" validate:"required"`
}

func TestDecodeValidReportsFields(t *testing.T) {
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"quantity":-1}`))
	var body loadRequest
	require.False(t, DecodeValid(rec, req, validator.New(), &body))
	require.Equal(t, http.StatusBadRequest, rec.Code)

	var problem ProblemDetail
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &problem))
	require.Equal(t, map[string]any{"Quantity": "gte", "Code": "required"}, problem.Extensions["fields"])
}

func TestDecodeValidRejectsUnknownFields(t *testing.T) {
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"code":"800A","extra":1}`))
	var body loadRequest
	require.False(t, DecodeValid(rec, req, validator.New(), &body))
	require.Contains(t, rec.Body.String(), "Invalid Body")

	rec = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"code":"800A","quantity":1.5}`))
	require.True(t, DecodeValid(rec, req, validator.New(), &body))
	require.Equal(t, 1.5, body.Quantity)
}
